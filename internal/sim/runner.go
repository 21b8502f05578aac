package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/localization/debug"
	"github.com/banshee-data/fieldpose/internal/localization/knowledge"
	"github.com/banshee-data/fieldpose/internal/monitoring"
	"github.com/banshee-data/fieldpose/internal/percept"
	"github.com/banshee-data/fieldpose/internal/timeutil"
)

// Epoch is the simulated wall-clock start of every run.
var Epoch = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

// Recorder persists one processed cycle.
type Recorder interface {
	RecordCycle(runID string, cycle uint64, ts time.Time, pos knowledge.RobotPosition,
		hyps []knowledge.HypothesisState, truth *geom.Pose2D) error
}

// Runner executes a scenario against one localization instance.
type Runner struct {
	Scenario  *Scenario
	Field     *field.Info
	Knowledge *knowledge.Knowledge
	Clock     *timeutil.MockClock

	// Recorder and RunID are optional; when set every cycle is stored.
	Recorder Recorder
	RunID    string

	// Debug receives the pipeline internals of every cycle when enabled.
	Debug *debug.DebugCollector

	synth  Synthesizer
	odoSrc rand.Source
	truth  geom.Pose2D
}

// Result summarises a run.
type Result struct {
	Cycles      int
	ValidCycles int
	Truth       geom.Pose2D
	Estimate    geom.Pose2D
	Final       knowledge.RobotPosition

	FinalError    float64 // metres
	FinalHeading  float64 // absolute heading error, radians
	MaxValidError float64

	// Pipeline event counts; only filled when a debug collector is enabled.
	Resets int
	Merges int
	Prunes int
}

// NewRunner builds the field, the localization and the synthetic sensors
// for sc. All randomness derives from the scenario seed.
func NewRunner(sc *Scenario, cfg knowledge.Config) (*Runner, error) {
	fi, err := field.New(*sc.Field, sc.Player.Number)
	if err != nil {
		return nil, err
	}
	k, err := knowledge.New(fi, sc.Player, cfg, rand.NewPCG(sc.Seed, 1))
	if err != nil {
		return nil, err
	}
	return &Runner{
		Scenario:  sc,
		Field:     fi,
		Knowledge: k,
		Clock:     timeutil.NewMockClock(Epoch),
		synth: Synthesizer{
			Field:  fi,
			Camera: sc.Camera,
			Noise:  sc.Noise,
			Src:    rand.NewPCG(sc.Seed, 2),
		},
		odoSrc: rand.NewPCG(sc.Seed, 3),
		truth:  sc.Start.Pose2D(),
	}, nil
}

// Truth returns the current ground-truth pose.
func (r *Runner) Truth() geom.Pose2D { return r.truth }

// Run executes all phases. It stops early with ctx.Err() when ctx is
// cancelled between cycles.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	var res Result
	if r.Debug != nil {
		r.Knowledge.DebugCollector = r.Debug
	}

	cycle := uint64(0)
	for pi := range r.Scenario.Phases {
		ph := &r.Scenario.Phases[pi]
		if ph.Teleport != nil {
			r.truth = ph.Teleport.Pose2D()
		}
		monitoring.Debugf("sim: phase %d %q (%s) for %d cycles", pi, ph.Name, ph.game.GameState, ph.Cycles)

		for i := 0; i < ph.Cycles; i++ {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			cycle++

			frame := r.step(ph)
			if r.Debug != nil {
				r.Debug.BeginFrame(cycle)
			}
			pos := r.Knowledge.Update(frame)
			if f := r.emitDebug(); f != nil {
				res.Resets += len(f.Resets)
				res.Merges += len(f.Merges)
				res.Prunes += len(f.Prunes)
			}

			res.Cycles++
			errNow := pos.Pose.Translation().DistanceTo(r.truth.Translation())
			if pos.Valid {
				res.ValidCycles++
				res.MaxValidError = math.Max(res.MaxValidError, errNow)
			}
			res.Final = pos

			if r.Recorder != nil {
				truth := r.truth
				if err := r.Recorder.RecordCycle(r.RunID, cycle, frame.Timestamp, pos, r.Knowledge.Hypotheses(), &truth); err != nil {
					return res, fmt.Errorf("record cycle %d: %w", cycle, err)
				}
			}
			r.Clock.Advance(r.Scenario.Period())
		}
	}

	res.Truth = r.truth
	res.Estimate = res.Final.Pose
	res.FinalError = res.Estimate.Translation().DistanceTo(res.Truth.Translation())
	res.FinalHeading = math.Abs(geom.AngleDiff(res.Estimate.Rotation, res.Truth.Rotation))
	return res, nil
}

func (r *Runner) emitDebug() *debug.DebugFrame {
	if r.Debug == nil {
		return nil
	}
	return r.Debug.Emit()
}

// step advances the true robot by one cycle of ph and builds the frame the
// robot would perceive.
func (r *Runner) step(ph *Phase) percept.Frame {
	cmd := ph.Walk.Pose2D()
	moving := cmd != (geom.Pose2D{}) && !ph.PickedUp && !ph.Fallen && !ph.game.Penalized()

	var odometry geom.Pose2D
	if moving {
		r.truth = r.truth.Plus(cmd)
		odometry = NoisyOdometry(cmd, r.Scenario.Noise, r.odoSrc)
	}

	motion := percept.MotionStand
	switch {
	case ph.game.Penalized():
		motion = percept.MotionPenalized
	case ph.Fallen:
		motion = percept.MotionGetUp
	case moving:
		motion = percept.MotionWalk
	}

	frame := percept.Frame{
		Timestamp: r.Clock.Now(),
		Game:      ph.game,
		Odometry:  odometry,
		Camera:    percept.CameraMatrix{Valid: !ph.Blind, Height: r.Scenario.Camera.Height},
		Body:      percept.BodyPose{Fallen: ph.Fallen, FootContact: !ph.PickedUp},
		Motion:    percept.Motion{Type: motion},
	}
	if ph.Blind || ph.Fallen || ph.PickedUp {
		return frame
	}
	p := r.synth.Observe(r.truth)
	frame.Lines = p.Lines
	frame.CenterCircles = p.CenterCircles
	frame.PenaltyAreas = p.PenaltyAreas
	frame.Goals = p.Goals
	return frame
}
