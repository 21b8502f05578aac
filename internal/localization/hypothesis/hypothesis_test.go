package hypothesis

import (
	"math"
	"testing"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/localization/ukf"
	"github.com/banshee-data/fieldpose/internal/percept"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testField(t *testing.T) *field.Info {
	t.Helper()
	fi, err := field.New(field.DefaultDimensions(), 3)
	require.NoError(t, err)
	return fi
}

func seg(x0, y0, x1, y1 float64) geom.Segment {
	return geom.Segment{From: geom.Vector2{X: x0, Y: y0}, To: geom.Vector2{X: x1, Y: y1}}
}

// seenFrom expresses a field segment in the frame of pose.
func seenFrom(pose geom.Pose2D, s geom.Segment) percept.Line {
	return percept.Line{Segment: geom.Segment{From: pose.ToLocal(s.From), To: pose.ToLocal(s.To)}}
}

func positionError(h *Hypothesis, truth geom.Pose2D) float64 {
	return h.Pose().Translation().DistanceTo(truth.Translation())
}

// ---------------------------------------------------------------------------
// Neighbourhood
// ---------------------------------------------------------------------------

func TestIsInNeighbourhood(t *testing.T) {
	t.Parallel()

	eps := geom.Vector2{X: 0.3, Y: 0.3}
	a := New(1, 0, geom.NewPose2D(1, 1, 0), ukf.Diag(0.1, 0.1, 0.1))

	tests := []struct {
		name string
		pose geom.Pose2D
		want bool
	}{
		{"close", geom.NewPose2D(1.05, 0.98, 0.01), true},
		{"too far", geom.NewPose2D(2, 1, 0), false},
		{"turned", geom.NewPose2D(1, 1, 0.5), false},
		{"wrapped angle", geom.NewPose2D(1, 1, 2*math.Pi-0.1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New(2, 0, tt.pose, ukf.Diag(0.1, 0.1, 0.1))
			assert.Equal(t, tt.want, a.IsInNeighbourhood(b, eps))
			assert.Equal(t, tt.want, b.IsInNeighbourhood(a, eps))
		})
	}
}

// ---------------------------------------------------------------------------
// Association and evaluation
// ---------------------------------------------------------------------------

func TestAssociate(t *testing.T) {
	t.Parallel()
	fi := testField(t)
	p := DefaultParams()

	a, ok := Associate(seg(1, -1, 1, 1), geom.NewPose2D(-1, 0, 0), fi, p)
	require.True(t, ok)
	assert.Equal(t, "center line", a.FieldLine.Name)
	assert.InDelta(t, 0, a.Error, 1e-12)

	_, ok = Associate(seg(0, 0, 1, 1), geom.NewPose2D(-1, 0, 0), fi, p)
	assert.False(t, ok, "diagonal line matches no field axis")

	_, ok = Associate(seg(1, 4.5, 1, 5.5), geom.NewPose2D(-1, 0, 0), fi, p)
	assert.False(t, ok, "beyond the center line's extent")
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	fi := testField(t)
	p := DefaultParams()
	truth := geom.NewPose2D(-1, 0, 0)
	good := []percept.Line{seenFrom(truth, seg(0, -1, 0, 1))}
	bad := []percept.Line{{Segment: seg(0, 0, 1, 1)}}

	h := New(1, 0, truth, ukf.Diag(0.01, 0.01, 0.01))
	h.Evaluate(nil, fi, p)
	assert.False(t, h.Evaluated(), "no percepts leaves the hypothesis unevaluated")

	h.Evaluate(bad, fi, p)
	assert.InDelta(t, p.UnassociatedPenalty, h.MeanEvalError, 1e-12)

	h.Evaluate(good, fi, p)
	assert.InDelta(t, (1-p.EvalLowPassFactor)*p.UnassociatedPenalty, h.MeanEvalError, 1e-12)

	fresh := New(2, 0, truth, ukf.Diag(0.01, 0.01, 0.01))
	fresh.Evaluate(good, fi, p)
	assert.InDelta(t, 0, fresh.MeanEvalError, 1e-9)

	off := New(3, 0, geom.NewPose2D(-1.3, 0, 0), ukf.Diag(0.01, 0.01, 0.01))
	off.Evaluate(good, fi, p)
	assert.InDelta(t, 0.3, off.MeanEvalError, 1e-9)
}

// ---------------------------------------------------------------------------
// Line updates
// ---------------------------------------------------------------------------

func TestUpdateWithLineParallelToCenterLine(t *testing.T) {
	t.Parallel()
	fi := testField(t)

	// Facing the center line, a line 0.4 m ahead places the robot 0.4 m
	// behind it.
	h := New(1, 0, geom.Pose2D{}, ukf.Diag(0.1, 0.1, 0.05))
	n := h.UpdateWithSetOfLines([]percept.Line{{Segment: seg(0.4, -1, 0.4, 1)}}, fi, DefaultParams())
	require.Equal(t, 1, n)

	pose := h.Pose()
	assert.Less(t, pose.X, -0.3)
	assert.Greater(t, pose.X, -0.4)
	assert.InDelta(t, 0, pose.Y, 1e-9)
	assert.InDelta(t, 0.1, h.Filter.Cov.At(1, 1), 1e-9)
	assert.InDelta(t, 0, pose.Rotation, 1e-9)
}

func TestUpdateWithSidelineCorrectsY(t *testing.T) {
	t.Parallel()
	fi := testField(t)
	truth := geom.NewPose2D(1, 2.5, math.Pi/2+0.05)
	line := seenFrom(truth, seg(0, 3, 2, 3))

	h := New(1, 0, geom.NewPose2D(1, 2.3, math.Pi/2), ukf.Diag(0.1, 0.1, 0.05))
	require.Equal(t, 1, h.UpdateWithSetOfLines([]percept.Line{line}, fi, DefaultParams()))

	pose := h.Pose()
	assert.Greater(t, pose.Y, 2.4)
	assert.InDelta(t, 1, pose.X, 1e-9)
	assert.Greater(t, pose.Rotation, math.Pi/2)
}

func TestUpdateWithCircleTangents(t *testing.T) {
	t.Parallel()
	fi := testField(t)
	r := fi.Dims.CenterCircleRadius
	truth := geom.NewPose2D(-1.5, 0, 0)

	var lines []percept.Line
	for _, deg := range []float64{150, 180, 210} {
		a := deg * math.Pi / 180
		touch := geom.Vector2{X: r * math.Cos(a), Y: r * math.Sin(a)}
		dir := geom.Vector2{X: -math.Sin(a), Y: math.Cos(a)}.Scale(0.15)
		lines = append(lines, seenFrom(truth, geom.Segment{From: touch.Sub(dir), To: touch.Add(dir)}))
	}

	t.Run("enabled", func(t *testing.T) {
		h := New(1, 0, geom.NewPose2D(-1.4, 0.05, 0), ukf.Diag(0.05, 0.05, 0.001))
		before := positionError(h, truth)
		require.Equal(t, 1, h.UpdateWithSetOfLines(lines, fi, DefaultParams()))
		assert.Less(t, positionError(h, truth), before)
	})

	t.Run("disabled", func(t *testing.T) {
		p := DefaultParams()
		p.UseCircleTangents = false
		h := New(1, 0, geom.NewPose2D(-1.4, 0.05, 0), ukf.Diag(0.05, 0.05, 0.001))
		assert.Equal(t, 0, h.UpdateWithSetOfLines(lines, fi, p))
		assert.InDelta(t, -1.4, h.Pose().X, 1e-12)
	})
}

// ---------------------------------------------------------------------------
// Center circle and penalty area
// ---------------------------------------------------------------------------

func TestUpdateWithCenterCircle(t *testing.T) {
	t.Parallel()
	fi := testField(t)
	p := DefaultParams()
	truth := geom.NewPose2D(-1, 0.5, 0.1)
	center := truth.ToLocal(geom.Vector2{})

	t.Run("with orientation", func(t *testing.T) {
		h := New(1, 0, geom.NewPose2D(-0.8, 0.3, 0), ukf.Diag(0.1, 0.1, 0.05))
		before := positionError(h, truth)
		ok := h.UpdateWithCenterCircle(percept.CenterCircle{Center: center, Orientation: math.Pi/2 - 0.1, OrientationValid: true}, fi, p)
		require.True(t, ok)
		assert.Less(t, positionError(h, truth), before)
		assert.Greater(t, h.Pose().Rotation, 0.05)
	})

	t.Run("without orientation", func(t *testing.T) {
		h := New(1, 0, geom.NewPose2D(-0.8, 0.3, 0.1), ukf.Diag(0.1, 0.1, 0.01))
		before := positionError(h, truth)
		require.True(t, h.UpdateWithCenterCircle(percept.CenterCircle{Center: center}, fi, p))
		assert.Less(t, positionError(h, truth), before)
	})

	t.Run("goal support in view", func(t *testing.T) {
		h := New(1, 0, geom.NewPose2D(3.5, 0, 0), ukf.Diag(0.1, 0.1, 0.05))
		c := percept.CenterCircle{Center: geom.Vector2{X: 1.5}}
		assert.False(t, h.UpdateWithCenterCircle(c, fi, p))
		assert.InDelta(t, 3.5, h.Pose().X, 1e-12)

		lenient := p
		lenient.IgnoreCirclePerceptsNearGoalSupport = false
		assert.True(t, h.UpdateWithCenterCircle(c, fi, lenient))
	})
}

func TestUpdateWithPenaltyArea(t *testing.T) {
	t.Parallel()
	fi := testField(t)
	truth := geom.NewPose2D(2, 0.5, 0.2)
	front := fi.PenaltyAreas[0].FrontCenter
	area := percept.PenaltyArea{Center: truth.ToLocal(front), Orientation: math.Pi/2 - 0.2, OrientationValid: true}

	h := New(1, 0, geom.NewPose2D(2.2, 0.3, 0.1), ukf.Diag(0.1, 0.1, 0.05))
	before := positionError(h, truth)
	require.True(t, h.UpdateWithPenaltyArea(area, fi, DefaultParams()))
	assert.Less(t, positionError(h, truth), before)

	p := DefaultParams()
	p.IgnorePenaltyAreasWithoutOrientation = true
	area.OrientationValid = false
	assert.False(t, h.UpdateWithPenaltyArea(area, fi, p))
}

func TestClone(t *testing.T) {
	t.Parallel()

	h := New(4, 2, geom.NewPose2D(1, 2, 0.3), ukf.Diag(0.1, 0.2, 0.3))
	c := h.Clone()
	c.Filter.Mean.SetVec(0, 9)
	c.Filter.Cov.SetSym(0, 0, 9)

	assert.InDelta(t, 1, h.Pose().X, 1e-12)
	assert.InDelta(t, 0.1, h.Filter.Cov.At(0, 0), 1e-12)
	assert.Equal(t, 4, c.ID)
	assert.Equal(t, 2, c.ClusterID)
}
