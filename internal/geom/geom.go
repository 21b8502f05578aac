// Package geom provides the small 2D value types shared by the field model,
// the filters and the percept adapters. All lengths are metres and all
// angles are radians.
package geom

import "math"

// Vector2 is a point or direction in the ground plane.
type Vector2 struct {
	X float64
	Y float64
}

// Add returns v + o.
func (v Vector2) Add(o Vector2) Vector2 { return Vector2{v.X + o.X, v.Y + o.Y} }

// Sub returns v - o.
func (v Vector2) Sub(o Vector2) Vector2 { return Vector2{v.X - o.X, v.Y - o.Y} }

// Scale returns s * v.
func (v Vector2) Scale(s float64) Vector2 { return Vector2{v.X * s, v.Y * s} }

// Dot returns the scalar product.
func (v Vector2) Dot(o Vector2) float64 { return v.X*o.X + v.Y*o.Y }

// Norm returns the Euclidean length.
func (v Vector2) Norm() float64 { return math.Hypot(v.X, v.Y) }

// Angle returns the direction of v in (-π, π].
func (v Vector2) Angle() float64 { return math.Atan2(v.Y, v.X) }

// Rotate returns v rotated counter-clockwise by a.
func (v Vector2) Rotate(a float64) Vector2 {
	s, c := math.Sincos(a)
	return Vector2{c*v.X - s*v.Y, s*v.X + c*v.Y}
}

// Normalized returns the unit vector along v, or the zero vector.
func (v Vector2) Normalized() Vector2 {
	n := v.Norm()
	if n == 0 {
		return Vector2{}
	}
	return v.Scale(1 / n)
}

// DistanceTo returns |v - o|.
func (v Vector2) DistanceTo(o Vector2) float64 { return v.Sub(o).Norm() }

// NormalizeAngle maps a to (-π, π].
func NormalizeAngle(a float64) float64 {
	if a > -math.Pi && a <= math.Pi {
		return a
	}
	a = math.Mod(a+math.Pi, 2*math.Pi)
	if a <= 0 {
		a += 2 * math.Pi
	}
	return a - math.Pi
}

// AngleDiff returns the wrapped difference a - b in (-π, π].
func AngleDiff(a, b float64) float64 { return NormalizeAngle(a - b) }

// AxisAngleDiff returns the smallest absolute difference between two
// undirected line orientations, in [0, π/2].
func AxisAngleDiff(a, b float64) float64 {
	d := math.Abs(math.Mod(a-b, math.Pi))
	if d > math.Pi/2 {
		d = math.Pi - d
	}
	return d
}

// Pose2D is a ground-plane pose: translation plus heading.
type Pose2D struct {
	X        float64
	Y        float64
	Rotation float64
}

// NewPose2D builds a pose with a normalised rotation.
func NewPose2D(x, y, rotation float64) Pose2D {
	return Pose2D{X: x, Y: y, Rotation: NormalizeAngle(rotation)}
}

// Translation returns the position part of the pose.
func (p Pose2D) Translation() Vector2 { return Vector2{p.X, p.Y} }

// ToField maps a point given in the pose's local frame into the parent frame.
func (p Pose2D) ToField(local Vector2) Vector2 {
	return local.Rotate(p.Rotation).Add(p.Translation())
}

// ToLocal maps a parent-frame point into the pose's local frame.
func (p Pose2D) ToLocal(global Vector2) Vector2 {
	return global.Sub(p.Translation()).Rotate(-p.Rotation)
}

// Plus composes p with a motion expressed in p's own frame.
func (p Pose2D) Plus(delta Pose2D) Pose2D {
	t := p.ToField(delta.Translation())
	return NewPose2D(t.X, t.Y, p.Rotation+delta.Rotation)
}

// Inverse returns the pose that undoes p.
func (p Pose2D) Inverse() Pose2D {
	t := p.Translation().Scale(-1).Rotate(-p.Rotation)
	return NewPose2D(t.X, t.Y, -p.Rotation)
}

// RelativeTo returns p expressed in the frame of base.
func (p Pose2D) RelativeTo(base Pose2D) Pose2D {
	t := base.ToLocal(p.Translation())
	return NewPose2D(t.X, t.Y, p.Rotation-base.Rotation)
}

// Segment is a finite line segment.
type Segment struct {
	From Vector2
	To   Vector2
}

// Direction returns the unnormalised From→To vector.
func (s Segment) Direction() Vector2 { return s.To.Sub(s.From) }

// Length returns the segment length.
func (s Segment) Length() float64 { return s.Direction().Norm() }

// Angle returns the direction angle of the segment.
func (s Segment) Angle() float64 { return s.Direction().Angle() }

// Center returns the midpoint.
func (s Segment) Center() Vector2 { return s.From.Add(s.To).Scale(0.5) }

// Transform maps both end points through pose.ToField.
func (s Segment) Transform(pose Pose2D) Segment {
	return Segment{From: pose.ToField(s.From), To: pose.ToField(s.To)}
}

// ClosestPointOnLine returns the foot of the perpendicular from p onto the
// infinite line through the segment.
func (s Segment) ClosestPointOnLine(p Vector2) Vector2 {
	d := s.Direction()
	l2 := d.Dot(d)
	if l2 == 0 {
		return s.From
	}
	t := p.Sub(s.From).Dot(d) / l2
	return s.From.Add(d.Scale(t))
}

// DistanceToLine returns the perpendicular distance from p to the infinite line.
func (s Segment) DistanceToLine(p Vector2) float64 {
	return p.DistanceTo(s.ClosestPointOnLine(p))
}

// DistanceToSegment returns the distance from p to the nearest segment point.
func (s Segment) DistanceToSegment(p Vector2) float64 {
	d := s.Direction()
	l2 := d.Dot(d)
	if l2 == 0 {
		return p.DistanceTo(s.From)
	}
	t := math.Max(0, math.Min(1, p.Sub(s.From).Dot(d)/l2))
	return p.DistanceTo(s.From.Add(d.Scale(t)))
}
