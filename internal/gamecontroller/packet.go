package gamecontroller

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Wire constants of the GameController broadcast.
const (
	PacketHeader   = "RGme"
	PacketVersion  = 14
	MaxNumPlayers  = 20
	BroadcastPort  = 3838
	packetWireSize = 4 + 10 + 4 + 2*teamWireSize
	teamWireSize   = 6 + 4 + MaxNumPlayers*2
)

var (
	// ErrBadHeader is returned for payloads that are not GameController data.
	ErrBadHeader = errors.New("gamecontroller: bad packet header")
	// ErrBadVersion is returned for packets of an unsupported protocol version.
	ErrBadVersion = errors.New("gamecontroller: unsupported packet version")
	// ErrTeamNotFound is returned when neither team slot carries our team number.
	ErrTeamNotFound = errors.New("gamecontroller: team not in packet")
)

// RobotInfo is one player slot of a team.
type RobotInfo struct {
	Penalty             uint8
	SecsTillUnpenalised uint8
}

// TeamInfo is one team block of a packet.
type TeamInfo struct {
	TeamNumber        uint8
	FieldPlayerColour uint8
	GoalkeeperColour  uint8
	Goalkeeper        uint8
	Score             uint8
	PenaltyShot       uint8
	SingleShots       uint16
	MessageBudget     uint16
	Players           [MaxNumPlayers]RobotInfo
}

// Packet mirrors the little-endian broadcast layout.
type Packet struct {
	Header           [4]byte
	Version          uint8
	PacketNumber     uint8
	PlayersPerTeam   uint8
	CompetitionPhase uint8
	CompetitionType  uint8
	GamePhase        uint8
	State            uint8
	SetPlay          uint8
	FirstHalf        uint8
	KickingTeam      uint8
	SecsRemaining    int16
	SecondaryTime    int16
	Teams            [2]TeamInfo
}

// Decode parses a GameController payload.
func Decode(payload []byte) (*Packet, error) {
	if len(payload) < packetWireSize {
		return nil, fmt.Errorf("gamecontroller: short packet: %d bytes (need %d)", len(payload), packetWireSize)
	}
	if string(payload[:4]) != PacketHeader {
		return nil, ErrBadHeader
	}
	var pkt Packet
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &pkt); err != nil {
		return nil, fmt.Errorf("gamecontroller: decode: %w", err)
	}
	if pkt.Version != PacketVersion {
		return nil, fmt.Errorf("%w: %d", ErrBadVersion, pkt.Version)
	}
	return &pkt, nil
}

// Encode serialises a packet into its wire representation.
func Encode(pkt *Packet) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(packetWireSize)
	if err := binary.Write(&buf, binary.LittleEndian, pkt); err != nil {
		return nil, fmt.Errorf("gamecontroller: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// NewPacket builds the broadcast a GameController would send for s as seen
// by one robot of team teamNumber. The opponent takes the second team slot.
func NewPacket(s State, teamNumber uint8, playerNumber int) (*Packet, error) {
	if playerNumber < 1 || playerNumber > MaxNumPlayers {
		return nil, fmt.Errorf("gamecontroller: player number %d out of range", playerNumber)
	}
	opponent := teamNumber + 1
	if opponent == 0 {
		opponent = teamNumber - 1
	}
	pkt := &Packet{
		Version:        PacketVersion,
		PlayersPerTeam: uint8(max(playerNumber, 7)),
		GamePhase:      uint8(s.GamePhase),
		State:          uint8(s.GameState),
		SetPlay:        uint8(s.SetPlay),
		FirstHalf:      1,
		KickingTeam:    opponent,
		SecondaryTime:  int16(s.SecondaryTime / time.Second),
	}
	copy(pkt.Header[:], PacketHeader)
	if s.KickingTeam {
		pkt.KickingTeam = teamNumber
	}
	pkt.Teams[0].TeamNumber = teamNumber
	pkt.Teams[1].TeamNumber = opponent
	pkt.Teams[0].Players[playerNumber-1].Penalty = uint8(s.Penalty)
	return pkt, nil
}

// StateFor extracts the referee state seen by one robot.
func (p *Packet) StateFor(teamNumber uint8, playerNumber int) (State, error) {
	if playerNumber < 1 || playerNumber > MaxNumPlayers {
		return State{}, fmt.Errorf("gamecontroller: player number %d out of range", playerNumber)
	}
	var team *TeamInfo
	for i := range p.Teams {
		if p.Teams[i].TeamNumber == teamNumber {
			team = &p.Teams[i]
			break
		}
	}
	if team == nil {
		return State{}, fmt.Errorf("%w: %d", ErrTeamNotFound, teamNumber)
	}
	return State{
		GameState:     GameState(p.State),
		Penalty:       Penalty(team.Players[playerNumber-1].Penalty),
		GamePhase:     GamePhase(p.GamePhase),
		KickingTeam:   p.KickingTeam == teamNumber,
		SetPlay:       SetPlay(p.SetPlay),
		SecondaryTime: time.Duration(p.SecondaryTime) * time.Second,
	}, nil
}
