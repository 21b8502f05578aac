package knowledge

import (
	"math"

	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/localization/hypothesis"
	"github.com/banshee-data/fieldpose/internal/localization/ukf"
	"github.com/banshee-data/fieldpose/internal/monitoring"
	"github.com/banshee-data/fieldpose/internal/percept"
)

func (k *Knowledge) odometryPredict(delta geom.Pose2D) {
	for _, h := range k.hyps {
		h.Filter.OdometryPredict(delta, k.Config.FilterProcessNoise, k.Config.PredictProcessNoiseFraction)
	}
}

// measurementsTrusted reports whether this cycle's percepts may correct or
// evaluate the hypotheses.
func (k *Knowledge) measurementsTrusted(frame percept.Frame) bool {
	switch {
	case frame.Body.Fallen, frame.Body.Wonky:
		return false
	case frame.Game.Penalized():
		return false
	case !frame.Camera.Valid:
		return false
	case frame.Game.InPenaltyShootout():
		return k.Config.StrikerLocalizeInPSO && frame.Game.KickingTeam
	}
	return true
}

// gatedLines drops lines too far from the robot to be measured reliably
// from the current camera height.
func (k *Knowledge) gatedLines(frame percept.Frame) []percept.Line {
	maxDist := k.Config.MaxLineDistanceToCameraHeight * frame.Camera.Height
	if maxDist <= 0 {
		return frame.Lines
	}
	lines := make([]percept.Line, 0, len(frame.Lines))
	for _, l := range frame.Lines {
		if l.Segment.DistanceToSegment(geom.Vector2{}) <= maxDist {
			lines = append(lines, l)
		}
	}
	return lines
}

func (k *Knowledge) measurementUpdate(frame percept.Frame, lines []percept.Line) {
	p := k.Config.Hypothesis
	for _, h := range k.hyps {
		h.UpdateWithSetOfLines(lines, k.field, p)
		for _, c := range frame.CenterCircles {
			h.UpdateWithCenterCircle(c, k.field, p)
		}
		for _, a := range frame.PenaltyAreas {
			h.UpdateWithPenaltyArea(a, k.field, p)
		}
	}
}

// preferred reports whether a should survive a merge with b.
func (k *Knowledge) preferred(a, b *hypothesis.Hypothesis) bool {
	switch {
	case a.ID == k.bestID:
		return true
	case b.ID == k.bestID:
		return false
	case !b.Evaluated():
		return true
	case !a.Evaluated():
		return false
	}
	return a.MeanEvalError <= b.MeanEvalError
}

// mergeHypotheses fuses hypotheses that share a neighbourhood. Pairs are
// taken from the collection as it was at the start of the merge; the
// survivor absorbs the other through a pose update.
func (k *Knowledge) mergeHypotheses() {
	eps := geom.Vector2{X: k.Config.MergeRadius, Y: k.Config.MergeAngle}
	snapshot := append([]*hypothesis.Hypothesis(nil), k.hyps...)
	merged := make(map[int]bool)

	for i, a := range snapshot {
		if merged[a.ID] {
			continue
		}
		for _, b := range snapshot[i+1:] {
			if merged[b.ID] || !a.IsInNeighbourhood(b, eps) {
				continue
			}
			keep, drop := a, b
			if !k.preferred(a, b) {
				keep, drop = b, a
			}
			if err := keep.Filter.PoseSensorUpdate(drop.Pose(), drop.Filter.Cov); err != nil {
				monitoring.Logf("localization: merging hypothesis %d into %d failed: %v", drop.ID, keep.ID, err)
				continue
			}
			if !keep.Evaluated() {
				keep.MeanEvalError = drop.MeanEvalError
			}
			merged[drop.ID] = true
			if k.bestID == drop.ID {
				k.bestID = keep.ID
			}
			if k.debugEnabled() {
				k.DebugCollector.RecordMerge(keep.ID, drop.ID)
			}
			if drop == a {
				break
			}
		}
	}
	if len(merged) == 0 {
		return
	}
	live := k.hyps[:0]
	for _, h := range k.hyps {
		if !merged[h.ID] {
			live = append(live, h)
		}
	}
	k.hyps = live
}

// generateNewHypotheses spawns a hypothesis from a visible goal when sensor
// resetting is enabled, there is room in the collection and no existing
// hypothesis already explains the pose.
func (k *Knowledge) generateNewHypotheses(frame percept.Frame) {
	if !k.Config.UseSensorResetting || len(k.hyps) >= k.Config.MaxNumberOfHypotheses {
		return
	}
	c, ok := k.spawner().SensorResetting(frame.Goals, k.best().Pose(), k.src)
	if !ok || !k.field.IsInsidePlayableArea(c.Pose.Translation()) {
		return
	}
	s := k.Config.Spawn.SigmaInitial
	cand := hypothesis.New(k.nextID, c.ClusterHint, c.Pose, ukf.Diag(s[0]*s[0], s[1]*s[1], s[2]*s[2]))
	eps := geom.Vector2{X: k.Config.MergeRadius, Y: k.Config.MergeAngle}
	for _, h := range k.hyps {
		if h.IsInNeighbourhood(cand, eps) {
			return
		}
	}
	k.nextID++
	k.hyps = append(k.hyps, cand)
	monitoring.Debugf("localization: sensor resetting spawned hypothesis %d at %+v", cand.ID, c.Pose)
}

// evaluateHypotheses scores every hypothesis, drops those that left the
// playable area, selects the best with hysteresis and prunes clearly worse
// ones. The collection is never emptied.
func (k *Knowledge) evaluateHypotheses(lines []percept.Line) {
	for _, h := range k.hyps {
		h.Evaluate(lines, k.field, k.Config.Hypothesis)
	}

	inside := make([]*hypothesis.Hypothesis, 0, len(k.hyps))
	for _, h := range k.hyps {
		if k.field.IsInsidePlayableArea(h.Pose().Translation()) {
			inside = append(inside, h)
			continue
		}
		k.recordPrune(h, "left the field")
	}
	if len(inside) == 0 {
		keep := k.lookup(k.bestID)
		if keep == nil {
			keep = k.hyps[0]
		}
		inside = append(inside, keep)
	}
	k.hyps = inside

	var lowest *hypothesis.Hypothesis
	for _, h := range k.hyps {
		if h.Evaluated() && (lowest == nil || h.MeanEvalError < lowest.MeanEvalError) {
			lowest = h
		}
	}

	cur := k.lookup(k.bestID)
	switch {
	case cur == nil && lowest != nil:
		k.bestID = lowest.ID
	case cur == nil:
		k.bestID = k.hyps[0].ID
	case lowest == nil || lowest == cur:
	case !cur.Evaluated():
		k.bestID = lowest.ID
	case lowest.MeanEvalError < cur.MeanEvalError*(1-k.Config.HypothesisSelectionHysteresis):
		k.bestID = lowest.ID
	}

	best := k.lookup(k.bestID)
	bestErr := 0.0
	if best.Evaluated() {
		bestErr = best.MeanEvalError
	}
	live := k.hyps[:0]
	for _, h := range k.hyps {
		if h != best && h.Evaluated() &&
			h.MeanEvalError > k.Config.AbsoluteEvalThreshold &&
			h.MeanEvalError > k.Config.RelativeEvalThreshold*bestErr {
			k.recordPrune(h, "eval error")
			continue
		}
		live = append(live, h)
	}
	k.hyps = live
}

func (k *Knowledge) recordPrune(h *hypothesis.Hypothesis, reason string) {
	monitoring.Debugf("localization: dropping hypothesis %d (%s)", h.ID, reason)
	if k.debugEnabled() {
		k.DebugCollector.RecordPrune(h.ID, reason)
	}
}

// publishPoseEstimate emits the best hypothesis. A pose moving further than
// the jump thresholds since the last cycle records the jump time. The
// estimate is valid only when a single hypothesis survives and nothing
// disturbed the robot this cycle; in the penalty shootout only the
// hypothesis count matters.
func (k *Knowledge) publishPoseEstimate(frame percept.Frame) {
	pose := k.best().Pose()
	out := k.position
	out.Pose = pose
	out.HypothesisCount = len(k.hyps)
	out.BestID = k.bestID

	jumped := false
	if k.havePublished {
		prev := k.position.Pose
		if prev.Translation().DistanceTo(pose.Translation()) > k.Config.JumpDistanceThreshold ||
			math.Abs(geom.AngleDiff(prev.Rotation, pose.Rotation)) > k.Config.JumpAngleThreshold {
			jumped = true
			out.LastTimeJumped = frame.Timestamp
		}
	}

	single := len(k.hyps) == 1
	if frame.Game.InPenaltyShootout() {
		out.Valid = single
	} else {
		out.Valid = single && !k.resetThisCycle && !jumped && !k.pickedUpThisCycle && !frame.Game.Penalized()
	}

	k.position = out
	k.havePublished = true
}
