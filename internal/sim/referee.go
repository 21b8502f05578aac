package sim

import (
	"time"

	"github.com/banshee-data/fieldpose/internal/gamecontroller"
)

// BroadcastInterval is the GameController send period.
const BroadcastInterval = 500 * time.Millisecond

// Game returns the referee state of the phase; valid after Prepare.
func (ph *Phase) Game() gamecontroller.State { return ph.game }

// RefereePackets renders the scenario's referee phases as the broadcasts a
// GameController would have sent to team teamNumber, starting at Epoch. A
// packet goes out at the start of every phase and every BroadcastInterval
// within it.
func (sc *Scenario) RefereePackets(teamNumber uint8) ([]gamecontroller.TimedPacket, error) {
	var out []gamecontroller.TimedPacket
	seq := uint8(0)
	start := Epoch
	for i := range sc.Phases {
		ph := &sc.Phases[i]
		length := time.Duration(ph.Cycles) * sc.period
		for off := time.Duration(0); off < length; off += BroadcastInterval {
			pkt, err := gamecontroller.NewPacket(ph.game, teamNumber, sc.Player.Number)
			if err != nil {
				return nil, err
			}
			pkt.PacketNumber = seq
			seq++
			out = append(out, gamecontroller.TimedPacket{Timestamp: start.Add(off), Packet: pkt})
		}
		start = start.Add(length)
	}
	return out, nil
}
