package sim

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/percept"
)

const lineSamples = 64

// Synthesizer produces the landmark percepts a robot at a true pose would
// report. A nil Src disables noise.
type Synthesizer struct {
	Field  *field.Info
	Camera Camera
	Noise  Noise
	Src    rand.Source
}

// Percepts holds the landmark percepts of one cycle.
type Percepts struct {
	Lines         []percept.Line
	CenterCircles []percept.CenterCircle
	PenaltyAreas  []percept.PenaltyArea
	Goals         []percept.GoalPosts
}

// Visible reports whether a field point can be seen from truth.
func (s Synthesizer) Visible(truth geom.Pose2D, p geom.Vector2) bool {
	local := truth.ToLocal(p)
	if local.Norm() > s.Camera.Range {
		return false
	}
	return math.Abs(local.Angle()) <= s.Camera.FieldOfView/2
}

// Observe returns the percepts visible from truth, in the robot frame.
func (s Synthesizer) Observe(truth geom.Pose2D) Percepts {
	var out Percepts

	for _, l := range s.Field.Lines {
		seg, ok := s.visiblePart(truth, l.Segment)
		if !ok {
			continue
		}
		out.Lines = append(out.Lines, percept.Line{Segment: geom.Segment{
			From: s.jitterPoint(truth.ToLocal(seg.From)),
			To:   s.jitterPoint(truth.ToLocal(seg.To)),
		}})
	}

	// The center line and the penalty area fronts run along the field's y
	// axis, so their robot-relative direction is π/2 minus the heading.
	axis := s.jitterAngle(math.Pi/2 - truth.Rotation)

	if s.Visible(truth, geom.Vector2{}) {
		out.CenterCircles = append(out.CenterCircles, percept.CenterCircle{
			Center:           s.jitterPoint(truth.ToLocal(geom.Vector2{})),
			Orientation:      geom.NormalizeAngle(axis),
			OrientationValid: true,
		})
	}

	for _, pa := range s.Field.PenaltyAreas {
		if !s.Visible(truth, pa.FrontCenter) {
			continue
		}
		out.PenaltyAreas = append(out.PenaltyAreas, percept.PenaltyArea{
			Center:           s.jitterPoint(truth.ToLocal(pa.FrontCenter)),
			Orientation:      geom.NormalizeAngle(axis),
			OrientationValid: true,
		})
	}

	for _, g := range s.Field.Goals {
		if !s.Visible(truth, g.LeftPost) || !s.Visible(truth, g.RightPost) {
			continue
		}
		out.Goals = append(out.Goals, percept.GoalPosts{
			Left:  s.jitterPoint(truth.ToLocal(g.LeftPost)),
			Right: s.jitterPoint(truth.ToLocal(g.RightPost)),
		})
	}
	return out
}

// visiblePart returns the longest visible stretch of a field segment.
func (s Synthesizer) visiblePart(truth geom.Pose2D, seg geom.Segment) (geom.Segment, bool) {
	d := seg.Direction()
	var best geom.Segment
	bestLen := 0.0
	start := -1
	for i := 0; i <= lineSamples; i++ {
		t := float64(i) / lineSamples
		vis := s.Visible(truth, seg.From.Add(d.Scale(t)))
		if vis && start < 0 {
			start = i
		}
		if start >= 0 && (!vis || i == lineSamples) {
			end := i
			if !vis {
				end = i - 1
			}
			cand := geom.Segment{
				From: seg.From.Add(d.Scale(float64(start) / lineSamples)),
				To:   seg.From.Add(d.Scale(float64(end) / lineSamples)),
			}
			if l := cand.Length(); l > bestLen {
				best, bestLen = cand, l
			}
			start = -1
		}
	}
	return best, bestLen >= s.Camera.MinLineLength
}

func (s Synthesizer) jitterPoint(p geom.Vector2) geom.Vector2 {
	if s.Src == nil || s.Noise.Position <= 0 {
		return p
	}
	n := distuv.Normal{Mu: 0, Sigma: s.Noise.Position, Src: s.Src}
	return geom.Vector2{X: p.X + n.Rand(), Y: p.Y + n.Rand()}
}

func (s Synthesizer) jitterAngle(a float64) float64 {
	if s.Src == nil || s.Noise.Angle <= 0 {
		return a
	}
	return a + distuv.Normal{Mu: 0, Sigma: s.Noise.Angle, Src: s.Src}.Rand()
}

// NoisyOdometry returns the commanded motion with proportional and
// absolute Gaussian error.
func NoisyOdometry(cmd geom.Pose2D, n Noise, src rand.Source) geom.Pose2D {
	if src == nil {
		return cmd
	}
	v := [3]float64{cmd.X, cmd.Y, cmd.Rotation}
	for i := range v {
		sigma := n.OdometryFraction[i]*math.Abs(v[i]) + n.OdometryFloor[i]
		if sigma <= 0 {
			continue
		}
		v[i] += distuv.Normal{Mu: 0, Sigma: sigma, Src: src}.Rand()
	}
	return geom.Pose2D{X: v[0], Y: v[1], Rotation: v[2]}
}
