// Package percept defines the per-cycle input snapshot consumed by the
// localization core. Percept positions are robot-relative ground
// coordinates in metres: x forward, y left.
package percept

import (
	"time"

	"github.com/banshee-data/fieldpose/internal/gamecontroller"
	"github.com/banshee-data/fieldpose/internal/geom"
)

// Line is one detected straight field-line segment.
type Line struct {
	Segment geom.Segment
}

// CenterCircle is a detected center circle. When OrientationValid is set,
// Orientation is the direction of the center line through the circle in the
// robot frame (the line is undirected, so it is known modulo π).
type CenterCircle struct {
	Center           geom.Vector2
	Orientation      float64
	OrientationValid bool
}

// PenaltyArea is a detected penalty area, reported at the midpoint of its
// front line. Orientation is the direction of the front line modulo π.
type PenaltyArea struct {
	Center           geom.Vector2
	Orientation      float64
	OrientationValid bool
}

// GoalPosts is a pair of goal posts of the same goal. Left and right are as
// seen by the robot.
type GoalPosts struct {
	Left  geom.Vector2
	Right geom.Vector2
}

// CameraMatrix summarises the camera-to-ground transform for gating.
type CameraMatrix struct {
	Valid  bool
	Height float64 // metres above ground
	Pitch  float64 // radians, positive looking down
}

// BodyPose is the robot's body state.
type BodyPose struct {
	Fallen      bool
	FootContact bool
	Wonky       bool // unstable stance, odometry and vision unreliable
}

// MotionType is the motion currently executed.
type MotionType uint8

const (
	MotionStand MotionType = iota
	MotionWalk
	MotionKick
	MotionSpecialAction
	MotionPenalized
	MotionGetUp
)

// Motion describes the executed motion.
type Motion struct {
	Type MotionType
}

// Player is the static per-robot configuration.
type Player struct {
	Number         int     `json:"number" yaml:"number"`
	SidelineSpawnX float64 `json:"sideline_spawn_x" yaml:"sideline_spawn_x"`
}

// Frame is the immutable snapshot handed to the localization for one cycle.
type Frame struct {
	Timestamp time.Time
	Game      gamecontroller.State

	// Odometry is the motion since the previous cycle, in the robot frame
	// of the previous cycle.
	Odometry geom.Pose2D

	Lines         []Line
	CenterCircles []CenterCircle
	PenaltyAreas  []PenaltyArea
	Goals         []GoalPosts

	Camera CameraMatrix
	Body   BodyPose
	Motion Motion
}
