package knowledge

import (
	"github.com/banshee-data/fieldpose/internal/gamecontroller"
	"github.com/banshee-data/fieldpose/internal/localization/hypothesis"
	"github.com/banshee-data/fieldpose/internal/localization/provider"
	"github.com/banshee-data/fieldpose/internal/localization/ukf"
	"github.com/banshee-data/fieldpose/internal/monitoring"
	"github.com/banshee-data/fieldpose/internal/percept"
)

// updateState re-seeds the hypothesis collection on referee transitions
// and referee pickups.
func (k *Knowledge) updateState(frame percept.Frame) {
	g := frame.Game
	prev := k.prevGame
	defer func() { k.prevGame = g }()

	if g.InPenaltyShootout() {
		if !prev.InPenaltyShootout() ||
			(g.GameState == gamecontroller.StateSet && prev.GameState != gamecontroller.StateSet) {
			k.resetPenaltyShootout(g.KickingTeam)
		}
		k.pickedUpInSet = false
		return
	}

	switch {
	case prev.Penalized() && !g.Penalized():
		if g.GameState == gamecontroller.StateSet || prev.Penalty == gamecontroller.PenaltyIllegalMotionInSet {
			k.resetManuallyPlaced(kickoff(g), "unpenalized in set")
		} else {
			k.resetPenalized()
		}

	case (g.GameState == gamecontroller.StateInitial && prev.GameState != gamecontroller.StateInitial) ||
		(g.GameState == gamecontroller.StateReady && prev.GameState == gamecontroller.StateInitial):
		k.resetInitial()
	}

	if g.GameState == gamecontroller.StateSet && pickedUp(frame) {
		k.resetManuallyPlaced(kickoff(g), "picked up in set")
		k.pickedUpInSet = true
		k.pickedUpThisCycle = true
		return
	}

	if prev.GameState == gamecontroller.StateSet && g.GameState != gamecontroller.StateSet {
		if g.GameState == gamecontroller.StatePlaying && k.pickedUpInSet {
			k.resetManuallyPlaced(kickoff(g), "playing after pickup in set")
		}
		k.pickedUpInSet = false
	}
}

// pickedUp reports a referee lifting the robot: no foot contact while the
// robot is not doing anything that lifts its feet on its own.
func pickedUp(frame percept.Frame) bool {
	if frame.Body.FootContact {
		return false
	}
	return frame.Motion.Type == percept.MotionStand || frame.Motion.Type == percept.MotionPenalized
}

// kickoff reports whether the own team takes the kickoff.
func kickoff(g gamecontroller.State) bool {
	return g.KickingTeam && g.SetPlay == gamecontroller.SetPlayNone
}

func (k *Knowledge) spawner() provider.Provider {
	return provider.New(k.field, k.player, k.Config.Spawn)
}

func (k *Knowledge) resetInitial() {
	p := k.spawner()
	n := 1
	if k.Config.Spawn.StartAnywhereAtSidelines {
		n = k.Config.MaxNumberOfHypotheses
	}
	cands := make([]provider.Candidate, 0, n)
	for i := 0; i < n; i++ {
		cands = append(cands, p.Initial(i, n, k.src))
	}
	k.reset("initial", cands, k.Config.Spawn.SigmaInitial)
}

func (k *Knowledge) resetPenalized() {
	p := k.spawner()
	cands := make([]provider.Candidate, 2)
	for i := range cands {
		cands[i], k.penalizedIndex = p.Penalized(k.penalizedIndex, k.src)
	}
	k.reset("penalized", cands, k.Config.Spawn.SigmaPenalized)
}

func (k *Knowledge) resetManuallyPlaced(kickoff bool, reason string) {
	p := k.spawner()
	cands := make([]provider.Candidate, provider.ManualPlacementSlots)
	idx := 0
	for i := range cands {
		cands[i], idx = p.ManuallyPlaced(idx, kickoff, k.src)
	}
	k.reset("manually placed: "+reason, cands, k.Config.Spawn.SigmaInitial)
}

func (k *Knowledge) resetPenaltyShootout(kicking bool) {
	p := k.spawner()
	n := 1
	if kicking && k.Config.Spawn.AlwaysUseMultiplePenaltyShootoutPositions {
		n = provider.PenaltyShootoutSlots
	}
	cands := make([]provider.Candidate, n)
	idx := 0
	for i := range cands {
		cands[i], idx = p.PenaltyShootout(idx, kicking, k.src)
	}
	k.reset("penalty shootout", cands, k.Config.Spawn.SigmaInitial)
}

// reset replaces the whole collection. IDs keep increasing across resets.
func (k *Knowledge) reset(reason string, cands []provider.Candidate, sigma [3]float64) {
	cov := ukf.Diag(sigma[0]*sigma[0], sigma[1]*sigma[1], sigma[2]*sigma[2])
	hyps := make([]*hypothesis.Hypothesis, 0, len(cands))
	for _, c := range cands {
		hyps = append(hyps, hypothesis.New(k.nextID, c.ClusterHint, c.Pose, cov))
		k.nextID++
	}
	k.hyps = hyps
	k.bestID = hyps[0].ID
	k.resetThisCycle = true

	monitoring.Debugf("localization reset (%s): %d hypotheses", reason, len(hyps))
	if k.debugEnabled() {
		k.DebugCollector.RecordReset(reason, len(hyps))
	}
}
