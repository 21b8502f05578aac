// Package hypothesis implements one candidate robot pose: a UKF state plus
// the landmark association and running evaluation error used to rank
// candidates against each other.
package hypothesis

import (
	"math"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/localization/ukf"
	"github.com/banshee-data/fieldpose/internal/monitoring"
	"github.com/banshee-data/fieldpose/internal/percept"
	"gonum.org/v1/gonum/mat"
)

// Unevaluated is the MeanEvalError of a hypothesis that has not yet been
// compared against any line percept.
const Unevaluated = -1.0

// minTangents is the number of circle tangents needed before an internal
// circle estimate is trusted.
const minTangents = 3

// Params configures association and measurement noise.
type Params struct {
	// Line association gates.
	LineAssociationMaxDistance float64 // metres, perpendicular offset to the field line
	LineAssociationMaxAngle    float64 // radians, undirected
	LineSegmentTolerance       float64 // metres beyond the field line's end points

	// Measurement variances. Translational variances grow with the squared
	// distance of the percept from the robot.
	LineDistanceVariance     float64
	LineAngleVariance        float64
	CircleVariance           float64
	CircleAngleVariance      float64
	PenaltyAreaVariance      float64
	PenaltyAreaAngleVariance float64

	// Evaluation.
	EvalLowPassFactor   float64 // weight of the newest cycle error
	UnassociatedPenalty float64 // error charged per unassociated line

	UseCircleTangents                    bool
	CircleTangentTolerance               float64 // metres, |distance to center - radius|
	IgnoreCirclePerceptsNearGoalSupport  bool
	GoalSupportViewAngle                 float64 // half field of view in radians
	GoalSupportMaxDistance               float64
	IgnorePenaltyAreasWithoutOrientation bool
}

// DefaultParams returns the association and noise defaults.
func DefaultParams() Params {
	return Params{
		LineAssociationMaxDistance:          0.5,
		LineAssociationMaxAngle:             0.3,
		LineSegmentTolerance:                0.3,
		LineDistanceVariance:                0.005,
		LineAngleVariance:                   0.01,
		CircleVariance:                      0.02,
		CircleAngleVariance:                 0.02,
		PenaltyAreaVariance:                 0.03,
		PenaltyAreaAngleVariance:            0.03,
		EvalLowPassFactor:                   0.2,
		UnassociatedPenalty:                 0.5,
		UseCircleTangents:                   true,
		CircleTangentTolerance:              0.15,
		IgnoreCirclePerceptsNearGoalSupport: true,
		GoalSupportViewAngle:                0.5,
		GoalSupportMaxDistance:              2.5,
	}
}

// Hypothesis is one tracked pose candidate.
type Hypothesis struct {
	Filter        ukf.Pose2D
	MeanEvalError float64
	ID            int
	ClusterID     int
}

// New creates an unevaluated hypothesis around mean with covariance cov.
func New(id, clusterID int, mean geom.Pose2D, cov mat.Symmetric) *Hypothesis {
	return &Hypothesis{
		Filter:        ukf.New(mean, cov),
		MeanEvalError: Unevaluated,
		ID:            id,
		ClusterID:     clusterID,
	}
}

// Pose returns the mean pose.
func (h *Hypothesis) Pose() geom.Pose2D { return h.Filter.MeanPose() }

// Evaluated reports whether the hypothesis carries an evaluation error.
func (h *Hypothesis) Evaluated() bool { return h.MeanEvalError >= 0 }

// Clone returns an independent copy.
func (h *Hypothesis) Clone() *Hypothesis {
	c := *h
	c.Filter = h.Filter.Clone()
	return &c
}

// IsInNeighbourhood reports whether other lies within eps.X metres and
// eps.Y radians of h.
func (h *Hypothesis) IsInNeighbourhood(other *Hypothesis, eps geom.Vector2) bool {
	a, b := h.Pose(), other.Pose()
	return a.Translation().DistanceTo(b.Translation()) < eps.X &&
		math.Abs(geom.AngleDiff(a.Rotation, b.Rotation)) < eps.Y
}

// Association is a percept line matched to a field line.
type Association struct {
	FieldLine field.Line
	Error     float64 // mean end point distance to the field line, metres
}

// Associate matches a robot-relative line against the field lines as seen
// from pose. ok is false when no field line passes the gates.
func Associate(line geom.Segment, pose geom.Pose2D, fi *field.Info, p Params) (Association, bool) {
	seen := line.Transform(pose)
	center := seen.Center()
	angle := seen.Angle()

	best := Association{Error: math.Inf(1)}
	found := false
	for _, fl := range fi.Lines {
		if geom.AxisAngleDiff(angle, fl.Direction()) > p.LineAssociationMaxAngle {
			continue
		}
		if fl.Segment.DistanceToLine(center) > p.LineAssociationMaxDistance {
			continue
		}
		if !withinExtent(fl, center, p.LineSegmentTolerance) {
			continue
		}
		err := 0.5 * (fl.Segment.DistanceToLine(seen.From) + fl.Segment.DistanceToLine(seen.To))
		if err < best.Error {
			best = Association{FieldLine: fl, Error: err}
			found = true
		}
	}
	return best, found
}

// withinExtent checks that pt projects onto the field line's extent grown
// by tol at both ends.
func withinExtent(fl field.Line, pt geom.Vector2, tol float64) bool {
	lo, hi, v := fl.Segment.From.X, fl.Segment.To.X, pt.X
	if fl.Orientation == field.AlongY {
		lo, hi, v = fl.Segment.From.Y, fl.Segment.To.Y, pt.Y
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return v >= lo-tol && v <= hi+tol
}

// Evaluate scores the hypothesis against this cycle's line percepts and
// low-pass filters the result into MeanEvalError. An empty percept set
// leaves the error unchanged.
func (h *Hypothesis) Evaluate(lines []percept.Line, fi *field.Info, p Params) {
	if len(lines) == 0 {
		return
	}
	pose := h.Pose()
	var sum float64
	for _, l := range lines {
		if a, ok := Associate(l.Segment, pose, fi, p); ok {
			sum += a.Error
			continue
		}
		sum += p.UnassociatedPenalty
	}
	cycleErr := sum / float64(len(lines))

	if !h.Evaluated() {
		h.MeanEvalError = cycleErr
		return
	}
	h.MeanEvalError = (1-p.EvalLowPassFactor)*h.MeanEvalError + p.EvalLowPassFactor*cycleErr
}

// headingFromAxis returns the robot heading that turns a robot-relative
// direction phi onto the field direction fieldDir. Lines are undirected, so
// of the two solutions the one closer to current is returned.
func headingFromAxis(phi, fieldDir, current float64) float64 {
	theta := geom.NormalizeAngle(fieldDir - phi)
	flipped := geom.NormalizeAngle(theta + math.Pi)
	if math.Abs(geom.AngleDiff(flipped, current)) < math.Abs(geom.AngleDiff(theta, current)) {
		return flipped
	}
	return theta
}

// UpdateWithSetOfLines applies a one-dimensional pose update for every line
// that associates with a field line. Lines that do not associate may be
// tangents of the center circle; with enough of them the circle center is
// estimated and applied as a field point. It returns the number of updates
// applied.
func (h *Hypothesis) UpdateWithSetOfLines(lines []percept.Line, fi *field.Info, p Params) int {
	applied := 0
	var tangentCenters []geom.Vector2

	for _, l := range lines {
		pose := h.Pose()
		a, ok := Associate(l.Segment, pose, fi, p)
		if !ok {
			if p.UseCircleTangents {
				if c, ok := circleCenterFromTangent(l.Segment, pose, fi, p); ok {
					tangentCenters = append(tangentCenters, c)
				}
			}
			continue
		}

		foot := l.Segment.ClosestPointOnLine(geom.Vector2{})
		dist2 := foot.Dot(foot)
		heading := headingFromAxis(l.Segment.Angle(), a.FieldLine.Direction(), pose.Rotation)
		offset := foot.Rotate(heading)

		var position float64
		axis := ukf.AxisX
		if a.FieldLine.Orientation == field.AlongY {
			position = a.FieldLine.Offset() - offset.X
		} else {
			axis = ukf.AxisY
			position = a.FieldLine.Offset() - offset.Y
		}

		cov := ukf.Diag(p.LineDistanceVariance*(1+dist2), p.LineAngleVariance)
		if err := h.Filter.Pose1DSensorUpdate(position, heading, axis, cov); err != nil {
			monitoring.Debugf("hypothesis %d: line update against %s skipped: %v", h.ID, a.FieldLine.Name, err)
			continue
		}
		applied++
	}

	if len(tangentCenters) >= minTangents {
		var c geom.Vector2
		for _, t := range tangentCenters {
			c = c.Add(t)
		}
		c = c.Scale(1 / float64(len(tangentCenters)))
		v := p.CircleVariance * (1 + c.Dot(c))
		if err := h.Filter.FieldPointUpdate(c, geom.Vector2{}, ukf.Diag(v, v)); err != nil {
			monitoring.Debugf("hypothesis %d: circle tangent update skipped: %v", h.ID, err)
		} else {
			applied++
		}
	}
	return applied
}

// circleCenterFromTangent treats line as a tangent of the center circle and
// returns the implied robot-relative circle center. The side of the line is
// chosen towards the circle center predicted by pose.
func circleCenterFromTangent(line geom.Segment, pose geom.Pose2D, fi *field.Info, p Params) (geom.Vector2, bool) {
	r := fi.Dims.CenterCircleRadius
	if line.Length() > 2*r {
		return geom.Vector2{}, false
	}
	predicted := pose.ToLocal(geom.Vector2{})
	if math.Abs(line.DistanceToLine(predicted)-r) > p.CircleTangentTolerance {
		return geom.Vector2{}, false
	}
	foot := line.ClosestPointOnLine(predicted)
	normal := predicted.Sub(foot).Normalized()
	return foot.Add(normal.Scale(r)), true
}

// goalSupportInView reports whether, seen from pose, the structure behind
// either goal lies within the camera's view and range.
func goalSupportInView(pose geom.Pose2D, fi *field.Info, p Params) bool {
	for _, g := range fi.Goals {
		rel := pose.ToLocal(fi.GoalSupportCenter(g))
		if rel.Norm() < p.GoalSupportMaxDistance && math.Abs(rel.Angle()) < p.GoalSupportViewAngle {
			return true
		}
	}
	return false
}

// UpdateWithCenterCircle fuses a center circle percept. With a valid
// orientation the full pose is observed, otherwise only the circle center
// as a field point. It reports whether an update was applied.
func (h *Hypothesis) UpdateWithCenterCircle(c percept.CenterCircle, fi *field.Info, p Params) bool {
	pose := h.Pose()
	if p.IgnoreCirclePerceptsNearGoalSupport && goalSupportInView(pose, fi, p) {
		monitoring.Debugf("hypothesis %d: center circle ignored, goal support in view", h.ID)
		return false
	}
	return h.updateWithFeature(c.Center, c.Orientation, c.OrientationValid, geom.Vector2{}, math.Pi/2,
		p.CircleVariance, p.CircleAngleVariance, "center circle")
}

// UpdateWithPenaltyArea fuses a penalty area percept against whichever
// penalty area is closer to where the hypothesis expects it. It reports
// whether an update was applied.
func (h *Hypothesis) UpdateWithPenaltyArea(a percept.PenaltyArea, fi *field.Info, p Params) bool {
	if !a.OrientationValid && p.IgnorePenaltyAreasWithoutOrientation {
		return false
	}
	seen := h.Pose().ToField(a.Center)
	landmark := fi.PenaltyAreas[0].FrontCenter
	if own := fi.PenaltyAreas[1].FrontCenter; seen.DistanceTo(own) < seen.DistanceTo(landmark) {
		landmark = own
	}
	return h.updateWithFeature(a.Center, a.Orientation, a.OrientationValid, landmark, math.Pi/2,
		p.PenaltyAreaVariance, p.PenaltyAreaAngleVariance, "penalty area")
}

// updateWithFeature observes a point landmark whose accompanying line
// direction (undirected) is fieldDir in the field frame.
func (h *Hypothesis) updateWithFeature(rel geom.Vector2, phi float64, oriented bool, landmark geom.Vector2, fieldDir, posVar, angVar float64, what string) bool {
	v := posVar * (1 + rel.Dot(rel))
	var err error
	if oriented {
		heading := headingFromAxis(phi, fieldDir, h.Pose().Rotation)
		pos := landmark.Sub(rel.Rotate(heading))
		err = h.Filter.PoseSensorUpdate(geom.Pose2D{X: pos.X, Y: pos.Y, Rotation: heading}, ukf.Diag(v, v, angVar))
	} else {
		err = h.Filter.FieldPointUpdate(rel, landmark, ukf.Diag(v, v))
	}
	if err != nil {
		monitoring.Debugf("hypothesis %d: %s update skipped: %v", h.ID, what, err)
		return false
	}
	return true
}
