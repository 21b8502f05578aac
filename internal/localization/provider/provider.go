// Package provider generates candidate poses for each game situation: the
// sideline entry, penalty re-entry, manual placement, penalty shootout and
// goal-based sensor resetting.
//
// A Provider holds no mutable state. Policies that rotate through a list of
// presets take the preset index as an argument and return the next one, so
// the caller decides how the rotation continues.
package provider

import (
	"math"
	"math/rand/v2"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/percept"
	"gonum.org/v1/gonum/stat/distuv"
)

// ManualPlacementSlots is the number of manually placed presets.
const ManualPlacementSlots = 5

// PenaltyShootoutSlots is the number of kicker presets in multi-position mode.
const PenaltyShootoutSlots = 6

var (
	manualOffsetsY = [ManualPlacementSlots]float64{0, 1, -1, 2, -2}

	shootoutDistances = [2]float64{1.0, 1.6} // behind the penalty mark
	shootoutLateral   = [3]float64{0, 0.4, -0.4}
)

// Params configures spawn noise and the situational toggles.
type Params struct {
	SigmaInitial   [3]float64 // std-dev of x, y, heading
	SigmaPenalized [3]float64

	StartAnywhereAtSidelines                  bool
	AlwaysUseMultiplePenaltyShootoutPositions bool
}

// DefaultParams returns the spawn noise defaults.
func DefaultParams() Params {
	return Params{
		SigmaInitial:   [3]float64{0.15, 0.1, 0.1},
		SigmaPenalized: [3]float64{0.3, 0.15, 0.15},
	}
}

// Candidate is a spawn pose plus the branch of the policy that produced it.
type Candidate struct {
	Pose        geom.Pose2D
	ClusterHint int
}

// Provider computes spawn poses for one robot.
type Provider struct {
	Field  *field.Info
	Player percept.Player
	Params Params
}

// New returns a provider for the given field and player.
func New(fi *field.Info, player percept.Player, params Params) Provider {
	return Provider{Field: fi, Player: player, Params: params}
}

// Initial returns candidate index of n sideline entry poses. Odd player
// numbers enter from the left sideline facing into the field, even numbers
// from the right. With StartAnywhereAtSidelines the candidates are spread
// over the own half, alternating sides.
func (p Provider) Initial(index, n int, src rand.Source) Candidate {
	hw := p.Field.Dims.FieldWidth / 2
	left := p.Player.Number%2 == 1
	x := p.Player.SidelineSpawnX

	if p.Params.StartAnywhereAtSidelines && n > 1 {
		if index%2 == 1 {
			left = !left
		}
		slots := (n + 1) / 2
		half := p.Field.Dims.FieldLength / 2
		x = -half + (float64(index/2)+0.5)*half/float64(slots)
	}

	hint := 1
	pose := geom.NewPose2D(x, -hw, math.Pi/2)
	if left {
		hint = 0
		pose = geom.NewPose2D(x, hw, -math.Pi/2)
	}
	if p.Params.StartAnywhereAtSidelines {
		hint = index
	}
	return Candidate{Pose: jitter(pose, p.Params.SigmaInitial, src), ClusterHint: hint}
}

// Penalized returns the re-entry pose for index and the next index. The two
// re-entry spots lie on opposite sidelines next to the own half's penalty
// return line, facing into the field.
func (p Provider) Penalized(index int, src rand.Source) (Candidate, int) {
	hw := p.Field.Dims.FieldWidth / 2
	x := -p.Field.Dims.PenaltyReturnX
	side := index % 2

	pose := geom.NewPose2D(x, hw, -math.Pi/2)
	if side == 1 {
		pose = geom.NewPose2D(x, -hw, math.Pi/2)
	}
	return Candidate{Pose: jitter(pose, p.Params.SigmaPenalized, src), ClusterHint: side}, index + 1
}

// ManuallyPlaced returns the manual placement preset for index and the next
// index. The keeper always stands on the own goal line. Field players stand
// on the own penalty area front line with lateral offsets; with kickoff the
// last slot is just outside the center circle facing the opponent goal.
func (p Provider) ManuallyPlaced(index int, kickoff bool, src rand.Source) (Candidate, int) {
	slot := index % ManualPlacementSlots
	var pose geom.Pose2D
	switch {
	case p.Field.IsKeeper():
		pose = geom.NewPose2D(p.Field.XPosOwnGoalLine, 0, 0)
	case kickoff && slot == ManualPlacementSlots-1:
		pose = geom.NewPose2D(-p.Field.Dims.CenterCircleRadius, 0, 0)
	default:
		pose = geom.NewPose2D(p.Field.XPosOwnPenaltyArea, manualOffsetsY[slot], 0)
	}
	return Candidate{Pose: jitter(pose, p.Params.SigmaInitial, src), ClusterHint: slot}, index + 1
}

// PenaltyShootout returns the shootout pose for index and the next index.
// The kicker stands behind the opponent penalty mark, using one of several
// presets in multi-position mode; everyone else is the keeper on the own
// goal line.
func (p Provider) PenaltyShootout(index int, kicking bool, src rand.Source) (Candidate, int) {
	if !kicking {
		pose := geom.NewPose2D(p.Field.XPosOwnGoalLine, 0, 0)
		return Candidate{Pose: jitter(pose, p.Params.SigmaInitial, src)}, index + 1
	}

	slot := 0
	if p.Params.AlwaysUseMultiplePenaltyShootoutPositions {
		slot = index % PenaltyShootoutSlots
	}
	mark := p.Field.PenaltySpots[0]
	pose := geom.NewPose2D(
		mark.X-shootoutDistances[slot/len(shootoutLateral)],
		mark.Y+shootoutLateral[slot%len(shootoutLateral)],
		0,
	)
	return Candidate{Pose: jitter(pose, p.Params.SigmaInitial, src), ClusterHint: slot}, index + 1
}

// SensorResetting derives a pose from the first visible goal post pair. The
// pair may belong to either goal; the interpretation closer to hint wins.
// ok is false when no goal is visible.
func (p Provider) SensorResetting(goals []percept.GoalPosts, hint geom.Pose2D, src rand.Source) (c Candidate, ok bool) {
	if len(goals) == 0 {
		return Candidate{}, false
	}
	seen := goals[0]
	if seen.Left.DistanceTo(seen.Right) < 1e-6 {
		return Candidate{}, false
	}

	bestCost := math.Inf(1)
	for i, g := range []field.Goal{p.Field.OpponentGoal(), p.Field.OwnGoal()} {
		pose := poseFromPosts(seen, g)
		cost := pose.Translation().DistanceTo(hint.Translation()) + math.Abs(geom.AngleDiff(pose.Rotation, hint.Rotation))
		if cost < bestCost {
			bestCost = cost
			c = Candidate{Pose: pose, ClusterHint: i}
		}
	}
	c.Pose = jitter(c.Pose, p.Params.SigmaInitial, src)
	return c, true
}

// poseFromPosts solves for the robot pose that maps the robot-relative
// posts onto goal g.
func poseFromPosts(seen percept.GoalPosts, g field.Goal) geom.Pose2D {
	heading := g.RightPost.Sub(g.LeftPost).Angle() - seen.Right.Sub(seen.Left).Angle()
	mid := seen.Left.Add(seen.Right).Scale(0.5)
	pos := g.Center().Sub(mid.Rotate(heading))
	return geom.NewPose2D(pos.X, pos.Y, heading)
}

// jitter adds zero-mean Gaussian noise with per-axis standard deviations.
func jitter(pose geom.Pose2D, sigma [3]float64, src rand.Source) geom.Pose2D {
	if src == nil {
		return pose
	}
	v := [3]float64{pose.X, pose.Y, pose.Rotation}
	for i := range v {
		if sigma[i] <= 0 {
			continue
		}
		v[i] += distuv.Normal{Mu: 0, Sigma: sigma[i], Src: src}.Rand()
	}
	return geom.NewPose2D(v[0], v[1], v[2])
}
