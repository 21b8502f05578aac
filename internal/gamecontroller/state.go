// Package gamecontroller models the referee state that drives the
// localization lifecycle, and decodes recorded GameController packets so
// that captured games can be replayed offline.
package gamecontroller

import (
	"fmt"
	"strings"
	"time"
)

// GameState is the primary referee state.
type GameState uint8

const (
	StateInitial GameState = iota
	StateReady
	StateSet
	StatePlaying
	StateFinished
	StateStandby
)

func (s GameState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateReady:
		return "ready"
	case StateSet:
		return "set"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	case StateStandby:
		return "standby"
	default:
		return "unknown"
	}
}

// Penalty is the per-robot penalty reported by the referee.
type Penalty uint8

const (
	PenaltyNone                 Penalty = 0
	PenaltyIllegalBallContact   Penalty = 1
	PenaltyPlayerPushing        Penalty = 2
	PenaltyIllegalMotionInSet   Penalty = 3
	PenaltyInactivePlayer       Penalty = 4
	PenaltyIllegalPosition      Penalty = 5
	PenaltyLeavingTheField      Penalty = 6
	PenaltyRequestForPickup     Penalty = 7
	PenaltyLocalGameStuck       Penalty = 8
	PenaltyIllegalPositionInSet Penalty = 9
	PenaltyPlayerStance         Penalty = 10
	PenaltySubstitute           Penalty = 14
	PenaltyManual               Penalty = 15
)

// GamePhase distinguishes regular play from shootouts and breaks.
type GamePhase uint8

const (
	PhaseNormal GamePhase = iota
	PhasePenaltyShootout
	PhaseOvertime
	PhaseTimeout
)

func (p GamePhase) String() string {
	switch p {
	case PhaseNormal:
		return "normal"
	case PhasePenaltyShootout:
		return "penalty-shootout"
	case PhaseOvertime:
		return "overtime"
	case PhaseTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// SetPlay is the currently running standard situation.
type SetPlay uint8

const (
	SetPlayNone SetPlay = iota
	SetPlayGoalKick
	SetPlayPushingFreeKick
	SetPlayCornerKick
	SetPlayKickIn
	SetPlayPenaltyKick
)

// State is the per-cycle snapshot of referee information relevant to this
// robot. KickingTeam is true when this robot's team has the kick.
type State struct {
	GameState     GameState
	Penalty       Penalty
	GamePhase     GamePhase
	KickingTeam   bool
	SetPlay       SetPlay
	SecondaryTime time.Duration
}

// Penalized reports whether the robot currently serves a penalty.
func (s State) Penalized() bool { return s.Penalty != PenaltyNone }

// InPenaltyShootout reports whether the game is in its shootout phase.
func (s State) InPenaltyShootout() bool { return s.GamePhase == PhasePenaltyShootout }

// ParseGameState converts a state name as printed by GameState.String.
func ParseGameState(name string) (GameState, error) {
	for s := StateInitial; s <= StateStandby; s++ {
		if strings.EqualFold(s.String(), name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown game state %q", name)
}

// ParseGamePhase converts a phase name as printed by GamePhase.String.
func ParseGamePhase(name string) (GamePhase, error) {
	if name == "" {
		return PhaseNormal, nil
	}
	for p := PhaseNormal; p <= PhaseTimeout; p++ {
		if strings.EqualFold(p.String(), name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown game phase %q", name)
}

var penaltyNames = map[string]Penalty{
	"":                        PenaltyNone,
	"none":                    PenaltyNone,
	"illegal-ball-contact":    PenaltyIllegalBallContact,
	"pushing":                 PenaltyPlayerPushing,
	"illegal-motion-in-set":   PenaltyIllegalMotionInSet,
	"inactive":                PenaltyInactivePlayer,
	"illegal-position":        PenaltyIllegalPosition,
	"leaving-the-field":       PenaltyLeavingTheField,
	"request-for-pickup":      PenaltyRequestForPickup,
	"local-game-stuck":        PenaltyLocalGameStuck,
	"illegal-position-in-set": PenaltyIllegalPositionInSet,
	"player-stance":           PenaltyPlayerStance,
	"substitute":              PenaltySubstitute,
	"manual":                  PenaltyManual,
}

func (p Penalty) String() string {
	if p == PenaltyNone {
		return "none"
	}
	for name, v := range penaltyNames {
		if v == p && name != "" && name != "none" {
			return name
		}
	}
	return fmt.Sprintf("penalty(%d)", uint8(p))
}

// ParsePenalty converts a kebab-case penalty name.
func ParsePenalty(name string) (Penalty, error) {
	if p, ok := penaltyNames[strings.ToLower(name)]; ok {
		return p, nil
	}
	return 0, fmt.Errorf("unknown penalty %q", name)
}
