// Package field derives the static geometry of the playing field from its
// dimension constants. The field frame has its origin at the center spot,
// x towards the opponent goal and y towards the left sideline when looking
// at the opponent goal.
//
// An Info value is immutable after construction and may be shared freely.
package field

import (
	"fmt"
	"math"

	"github.com/banshee-data/fieldpose/internal/geom"
)

// Dimensions holds the field dimension constants in metres.
type Dimensions struct {
	FieldLength        float64 `json:"field_length" yaml:"field_length"`
	FieldWidth         float64 `json:"field_width" yaml:"field_width"`
	PenaltyAreaLength  float64 `json:"penalty_area_length" yaml:"penalty_area_length"`
	PenaltyAreaWidth   float64 `json:"penalty_area_width" yaml:"penalty_area_width"`
	GoalAreaLength     float64 `json:"goal_area_length" yaml:"goal_area_length"`
	GoalAreaWidth      float64 `json:"goal_area_width" yaml:"goal_area_width"`
	CenterCircleRadius float64 `json:"center_circle_radius" yaml:"center_circle_radius"`
	PenaltyMarkDist    float64 `json:"penalty_mark_distance" yaml:"penalty_mark_distance"` // from goal line
	GoalInnerWidth     float64 `json:"goal_inner_width" yaml:"goal_inner_width"`
	GoalDepth          float64 `json:"goal_depth" yaml:"goal_depth"`
	LineWidth          float64 `json:"line_width" yaml:"line_width"`
	BorderStripWidth   float64 `json:"border_strip_width" yaml:"border_strip_width"`
	PenaltyReturnX     float64 `json:"penalty_return_x" yaml:"penalty_return_x"` // |x| of the re-entry spots
}

// DefaultDimensions returns the standard-platform field layout.
func DefaultDimensions() Dimensions {
	return Dimensions{
		FieldLength:        9.0,
		FieldWidth:         6.0,
		PenaltyAreaLength:  1.65,
		PenaltyAreaWidth:   4.0,
		GoalAreaLength:     0.6,
		GoalAreaWidth:      2.2,
		CenterCircleRadius: 0.75,
		PenaltyMarkDist:    1.3,
		GoalInnerWidth:     1.5,
		GoalDepth:          0.5,
		LineWidth:          0.05,
		BorderStripWidth:   0.7,
		PenaltyReturnX:     1.0,
	}
}

// Validate reports dimensions that cannot describe a field.
func (d Dimensions) Validate() error {
	if d.FieldLength <= 0 || d.FieldWidth <= 0 {
		return fmt.Errorf("field length and width must be positive, got %gx%g", d.FieldLength, d.FieldWidth)
	}
	if d.PenaltyAreaLength <= 0 || d.PenaltyAreaLength >= d.FieldLength/2 {
		return fmt.Errorf("penalty_area_length %g out of range", d.PenaltyAreaLength)
	}
	if d.PenaltyAreaWidth <= 0 || d.PenaltyAreaWidth > d.FieldWidth {
		return fmt.Errorf("penalty_area_width %g out of range", d.PenaltyAreaWidth)
	}
	if d.GoalAreaLength < 0 || d.GoalAreaLength >= d.PenaltyAreaLength {
		return fmt.Errorf("goal_area_length %g out of range", d.GoalAreaLength)
	}
	if d.CenterCircleRadius <= 0 {
		return fmt.Errorf("center_circle_radius must be positive, got %g", d.CenterCircleRadius)
	}
	if d.BorderStripWidth < 0 {
		return fmt.Errorf("border_strip_width must be non-negative, got %g", d.BorderStripWidth)
	}
	return nil
}

// LineOrientation says which field axis a line runs along.
type LineOrientation int

const (
	AlongX LineOrientation = iota // y is constant on the line
	AlongY                        // x is constant on the line
)

func (o LineOrientation) String() string {
	if o == AlongX {
		return "along-x"
	}
	return "along-y"
}

// Line is a straight field marking.
type Line struct {
	Name        string
	Segment     geom.Segment
	Orientation LineOrientation
}

// Offset returns the constant coordinate of the line: y for AlongX lines,
// x for AlongY lines.
func (l Line) Offset() float64 {
	if l.Orientation == AlongX {
		return l.Segment.From.Y
	}
	return l.Segment.From.X
}

// Direction returns the field-frame angle of the line's axis.
func (l Line) Direction() float64 {
	if l.Orientation == AlongX {
		return 0
	}
	return math.Pi / 2
}

// Goal describes one goal by its post positions. Left and right are as
// seen by a robot standing on the field looking into the goal.
type Goal struct {
	Own       bool
	LeftPost  geom.Vector2
	RightPost geom.Vector2
}

// Center returns the midpoint between the posts.
func (g Goal) Center() geom.Vector2 { return g.LeftPost.Add(g.RightPost).Scale(0.5) }

// PenaltyArea describes one penalty area by the midpoint of its front line.
type PenaltyArea struct {
	Own         bool
	FrontCenter geom.Vector2
}

// Info is the derived, immutable field geometry.
type Info struct {
	Dims         Dimensions
	PlayerNumber int

	Lines        []Line
	Goals        [2]Goal         // opponent, own
	PenaltySpots [2]geom.Vector2 // opponent, own
	PenaltyAreas [2]PenaltyArea  // opponent, own

	XPosOpponentGoalLine float64
	XPosOwnGoalLine      float64
	YPosLeftSideline     float64
	YPosRightSideline    float64
	XPosOwnPenaltyArea   float64 // front line of the own penalty area
	XPosOppPenaltyArea   float64
}

// New derives field geometry for the given dimensions and player number.
func New(dims Dimensions, playerNumber int) (*Info, error) {
	if err := dims.Validate(); err != nil {
		return nil, fmt.Errorf("invalid field dimensions: %w", err)
	}
	if playerNumber < 1 {
		return nil, fmt.Errorf("player number must be >= 1, got %d", playerNumber)
	}

	hl := dims.FieldLength / 2
	hw := dims.FieldWidth / 2
	pa := dims.PenaltyAreaWidth / 2
	ga := dims.GoalAreaWidth / 2
	gp := dims.GoalInnerWidth / 2

	info := &Info{
		Dims:                 dims,
		PlayerNumber:         playerNumber,
		XPosOpponentGoalLine: hl,
		XPosOwnGoalLine:      -hl,
		YPosLeftSideline:     hw,
		YPosRightSideline:    -hw,
		XPosOwnPenaltyArea:   -hl + dims.PenaltyAreaLength,
		XPosOppPenaltyArea:   hl - dims.PenaltyAreaLength,
	}

	alongY := func(name string, x, y0, y1 float64) Line {
		return Line{Name: name, Orientation: AlongY, Segment: geom.Segment{From: geom.Vector2{X: x, Y: y0}, To: geom.Vector2{X: x, Y: y1}}}
	}
	alongX := func(name string, y, x0, x1 float64) Line {
		return Line{Name: name, Orientation: AlongX, Segment: geom.Segment{From: geom.Vector2{X: x0, Y: y}, To: geom.Vector2{X: x1, Y: y}}}
	}

	info.Lines = []Line{
		alongY("opponent goal line", hl, -hw, hw),
		alongY("own goal line", -hl, -hw, hw),
		alongX("left sideline", hw, -hl, hl),
		alongX("right sideline", -hw, -hl, hl),
		alongY("center line", 0, -hw, hw),

		alongY("opponent penalty area front", hl-dims.PenaltyAreaLength, -pa, pa),
		alongX("opponent penalty area left", pa, hl-dims.PenaltyAreaLength, hl),
		alongX("opponent penalty area right", -pa, hl-dims.PenaltyAreaLength, hl),
		alongY("own penalty area front", -hl+dims.PenaltyAreaLength, -pa, pa),
		alongX("own penalty area left", pa, -hl, -hl+dims.PenaltyAreaLength),
		alongX("own penalty area right", -pa, -hl, -hl+dims.PenaltyAreaLength),
	}
	if dims.GoalAreaLength > 0 {
		info.Lines = append(info.Lines,
			alongY("opponent goal area front", hl-dims.GoalAreaLength, -ga, ga),
			alongX("opponent goal area left", ga, hl-dims.GoalAreaLength, hl),
			alongX("opponent goal area right", -ga, hl-dims.GoalAreaLength, hl),
			alongY("own goal area front", -hl+dims.GoalAreaLength, -ga, ga),
			alongX("own goal area left", ga, -hl, -hl+dims.GoalAreaLength),
			alongX("own goal area right", -ga, -hl, -hl+dims.GoalAreaLength),
		)
	}

	// Seen from the field, the opponent goal's left post has positive y and
	// the own goal's left post has negative y.
	info.Goals = [2]Goal{
		{Own: false, LeftPost: geom.Vector2{X: hl, Y: gp}, RightPost: geom.Vector2{X: hl, Y: -gp}},
		{Own: true, LeftPost: geom.Vector2{X: -hl, Y: -gp}, RightPost: geom.Vector2{X: -hl, Y: gp}},
	}
	info.PenaltySpots = [2]geom.Vector2{
		{X: hl - dims.PenaltyMarkDist},
		{X: -hl + dims.PenaltyMarkDist},
	}
	info.PenaltyAreas = [2]PenaltyArea{
		{Own: false, FrontCenter: geom.Vector2{X: info.XPosOppPenaltyArea}},
		{Own: true, FrontCenter: geom.Vector2{X: info.XPosOwnPenaltyArea}},
	}
	return info, nil
}

// MustNew is New for static configurations known to be valid.
func MustNew(dims Dimensions, playerNumber int) *Info {
	info, err := New(dims, playerNumber)
	if err != nil {
		panic(err)
	}
	return info
}

// IsKeeper reports whether the configured player is the goalkeeper.
func (f *Info) IsKeeper() bool { return f.PlayerNumber == 1 }

// IsInsideField reports whether p lies inside the field lines grown by margin.
func (f *Info) IsInsideField(p geom.Vector2, margin float64) bool {
	return math.Abs(p.X) <= f.Dims.FieldLength/2+margin && math.Abs(p.Y) <= f.Dims.FieldWidth/2+margin
}

// IsInsidePlayableArea reports whether p lies on the carpet, i.e. inside the
// field including its border strip.
func (f *Info) IsInsidePlayableArea(p geom.Vector2) bool {
	return f.IsInsideField(p, f.Dims.BorderStripWidth)
}

// OpponentGoal returns the goal the team attacks.
func (f *Info) OpponentGoal() Goal { return f.Goals[0] }

// OwnGoal returns the goal the team defends.
func (f *Info) OwnGoal() Goal { return f.Goals[1] }

// GoalSupportCenter returns the middle of the structure behind the goal
// line, where the goal frame meets the ground.
func (f *Info) GoalSupportCenter(g Goal) geom.Vector2 {
	c := g.Center()
	if g.Own {
		return geom.Vector2{X: c.X - f.Dims.GoalDepth, Y: c.Y}
	}
	return geom.Vector2{X: c.X + f.Dims.GoalDepth, Y: c.Y}
}
