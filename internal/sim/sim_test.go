package sim

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/gamecontroller"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/localization/debug"
	"github.com/banshee-data/fieldpose/internal/localization/knowledge"
	"github.com/banshee-data/fieldpose/internal/localization/provider"
	"github.com/banshee-data/fieldpose/internal/monitoring"
	"github.com/banshee-data/fieldpose/internal/percept"
)

func init() {
	monitoring.SetLogger(nil)
}

const walkScenario = `
name: walk
seed: 3
player: {number: 2, sideline_spawn_x: -1.5}
start: {x: -1.5, y: -3.0, rotation: 1.5707963}
noise:
  odometry_fraction: [0.05, 0.05, 0.05]
  odometry_floor: [0.0005, 0.0005, 0.0005]
  position: 0.01
  angle: 0.01
phases:
  - {name: initial, cycles: 5, game_state: initial}
  - {name: walk in, cycles: 80, game_state: ready, walk: {x: 0.01, y: 0, rotation: 0}}
  - {name: playing, cycles: 40, game_state: playing}
`

func mustScenario(t *testing.T, src string) *Scenario {
	t.Helper()
	sc, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return sc
}

// ---------------------------------------------------------------------------
// scenario parsing
// ---------------------------------------------------------------------------

func TestParseScenario_Defaults(t *testing.T) {
	t.Parallel()
	sc := mustScenario(t, walkScenario)

	assert.Equal(t, "walk", sc.Name)
	assert.Equal(t, field.DefaultDimensions(), *sc.Field)
	assert.Equal(t, 33*time.Millisecond, sc.Period())
	assert.Equal(t, 125, sc.TotalCycles())
	assert.Equal(t, 0.5, sc.Camera.Height)
	assert.Equal(t, 4.0, sc.Camera.Range)

	require.Len(t, sc.Phases, 3)
	assert.Equal(t, gamecontroller.StateReady, sc.Phases[1].game.GameState)
	assert.Equal(t, 0.01, sc.Phases[1].Walk.X)
}

func TestParseScenario_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "phases: [unterminated"},
		{"no phases", "player: {number: 1}"},
		{"no player", "phases: [{cycles: 1, game_state: initial}]"},
		{"zero cycles", "player: {number: 1}\nphases: [{cycles: 0, game_state: initial}]"},
		{"unknown state", "player: {number: 1}\nphases: [{cycles: 1, game_state: halftime}]"},
		{"unknown penalty", "player: {number: 1}\nphases: [{cycles: 1, game_state: playing, penalty: offside}]"},
		{"bad period", "player: {number: 1}\ncycle_period: fast\nphases: [{cycles: 1, game_state: initial}]"},
		{"bad field", "player: {number: 1}\nfield: {field_length: -1}\nphases: [{cycles: 1, game_state: initial}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseScenario([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadScenario_ShippedFiles(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"sideline_walk.yaml", "penalized.yaml"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			sc, err := LoadScenario("../../scenarios/" + name)
			require.NoError(t, err)
			assert.Greater(t, sc.TotalCycles(), 0)
		})
	}
}

// ---------------------------------------------------------------------------
// percept synthesis
// ---------------------------------------------------------------------------

func TestSynthesizer_ObserveOpponentGoal(t *testing.T) {
	t.Parallel()
	fi := field.MustNew(field.DefaultDimensions(), 2)
	s := Synthesizer{Field: fi, Camera: Camera{FieldOfView: 1.0, Range: 4.0, MinLineLength: 0.3}}
	truth := geom.NewPose2D(2, 0, 0)

	p := s.Observe(truth)

	require.Len(t, p.Goals, 1)
	assert.InDelta(t, 2.5, p.Goals[0].Left.X, 1e-9)
	assert.InDelta(t, 0.75, p.Goals[0].Left.Y, 1e-9)
	assert.InDelta(t, -0.75, p.Goals[0].Right.Y, 1e-9)

	require.Len(t, p.PenaltyAreas, 1)
	assert.InDelta(t, 0.85, p.PenaltyAreas[0].Center.X, 1e-9)
	assert.InDelta(t, math.Pi/2, p.PenaltyAreas[0].Orientation, 1e-9)

	assert.Empty(t, p.CenterCircles, "center circle is behind the robot")
	assert.NotEmpty(t, p.Lines)
	for _, l := range p.Lines {
		assert.GreaterOrEqual(t, l.Segment.Length(), 0.3)
		assert.True(t, s.Visible(truth, truth.ToField(l.Segment.Center())))
	}
}

func TestSynthesizer_GoalPostsRecoverPose(t *testing.T) {
	t.Parallel()
	fi := field.MustNew(field.DefaultDimensions(), 2)
	s := Synthesizer{Field: fi, Camera: Camera{FieldOfView: 1.2, Range: 5.0, MinLineLength: 0.3}}
	truth := geom.NewPose2D(1.5, 0.4, 0.1)

	p := s.Observe(truth)
	require.Len(t, p.Goals, 1)

	prov := provider.New(fi, testPlayer(), provider.DefaultParams())
	c, ok := prov.SensorResetting(p.Goals, truth, nil)
	require.True(t, ok)
	assert.InDelta(t, truth.X, c.Pose.X, 1e-9)
	assert.InDelta(t, truth.Y, c.Pose.Y, 1e-9)
	assert.InDelta(t, truth.Rotation, c.Pose.Rotation, 1e-9)
}

func TestSynthesizer_CenterCircleOrientation(t *testing.T) {
	t.Parallel()
	fi := field.MustNew(field.DefaultDimensions(), 2)
	s := Synthesizer{Field: fi, Camera: Camera{FieldOfView: 1.0, Range: 4.0, MinLineLength: 0.3}}
	truth := geom.NewPose2D(-1.5, -3, math.Pi/2)

	p := s.Observe(truth)
	require.Len(t, p.CenterCircles, 1)
	c := p.CenterCircles[0]
	assert.True(t, c.OrientationValid)
	assert.InDelta(t, 3.0, c.Center.X, 1e-9)
	assert.InDelta(t, -1.5, c.Center.Y, 1e-9)
	assert.InDelta(t, 0.0, c.Orientation, 1e-9)
}

func TestSynthesizer_NothingOutOfRange(t *testing.T) {
	t.Parallel()
	fi := field.MustNew(field.DefaultDimensions(), 2)
	s := Synthesizer{Field: fi, Camera: Camera{FieldOfView: 1.0, Range: 0.2, MinLineLength: 0.3}}

	p := s.Observe(geom.NewPose2D(1, 1, 0))
	assert.Empty(t, p.Lines)
	assert.Empty(t, p.Goals)
	assert.Empty(t, p.CenterCircles)
	assert.Empty(t, p.PenaltyAreas)
}

func TestNoisyOdometry(t *testing.T) {
	t.Parallel()
	cmd := geom.Pose2D{X: 0.01, Y: 0, Rotation: 0.02}
	assert.Equal(t, cmd, NoisyOdometry(cmd, Noise{OdometryFraction: [3]float64{1, 1, 1}}, nil))

	zero := NoisyOdometry(geom.Pose2D{}, Noise{OdometryFraction: [3]float64{0.1, 0.1, 0.1}}, newSource(1))
	assert.Equal(t, geom.Pose2D{}, zero, "proportional noise on a standstill is zero")
}

// ---------------------------------------------------------------------------
// runner
// ---------------------------------------------------------------------------

func TestRunner_ConvergesOnWalk(t *testing.T) {
	t.Parallel()
	sc := mustScenario(t, walkScenario)
	r, err := NewRunner(sc, knowledge.DefaultConfig())
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 125, res.Cycles)
	assert.Less(t, res.FinalError, 0.35, "final position error")
	assert.Less(t, res.FinalHeading, 0.25, "final heading error")
	assert.Greater(t, res.ValidCycles, 0)
	assert.Equal(t, r.Truth(), res.Truth)
	assert.InDelta(t, -2.2, res.Truth.Y, 0.01, "truth walked 0.8 m into the field")
}

type countingRecorder struct {
	cycles []uint64
	truths int
}

func (c *countingRecorder) RecordCycle(_ string, cycle uint64, _ time.Time, _ knowledge.RobotPosition,
	hyps []knowledge.HypothesisState, truth *geom.Pose2D) error {
	c.cycles = append(c.cycles, cycle)
	if truth != nil && len(hyps) > 0 {
		c.truths++
	}
	return nil
}

type failingRecorder struct{}

func (failingRecorder) RecordCycle(string, uint64, time.Time, knowledge.RobotPosition, []knowledge.HypothesisState, *geom.Pose2D) error {
	return errors.New("disk full")
}

func TestRunner_RecordsEveryCycle(t *testing.T) {
	t.Parallel()
	sc := mustScenario(t, walkScenario)
	r, err := NewRunner(sc, knowledge.DefaultConfig())
	require.NoError(t, err)
	rec := &countingRecorder{}
	r.Recorder = rec
	r.RunID = "run"

	_, err = r.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, rec.cycles, sc.TotalCycles())
	assert.Equal(t, uint64(1), rec.cycles[0])
	assert.Equal(t, uint64(sc.TotalCycles()), rec.cycles[len(rec.cycles)-1])
	assert.Equal(t, sc.TotalCycles(), rec.truths)

	// The simulated clock advanced one period per cycle
	assert.Equal(t, Epoch.Add(time.Duration(sc.TotalCycles())*sc.Period()), r.Clock.Now())
}

func TestRunner_RecorderErrorStops(t *testing.T) {
	t.Parallel()
	r, err := NewRunner(mustScenario(t, walkScenario), knowledge.DefaultConfig())
	require.NoError(t, err)
	r.Recorder = failingRecorder{}

	res, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, res.Cycles)
}

func TestRunner_Cancelled(t *testing.T) {
	t.Parallel()
	r, err := NewRunner(mustScenario(t, walkScenario), knowledge.DefaultConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Cycles)
}

func TestRunner_DebugCountsResets(t *testing.T) {
	t.Parallel()
	r, err := NewRunner(mustScenario(t, walkScenario), knowledge.DefaultConfig())
	require.NoError(t, err)
	r.Debug = debug.NewDebugCollector()
	r.Debug.SetEnabled(true)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	// READY straight from INITIAL re-seeds once
	assert.Equal(t, 1, res.Resets)
}

func TestRunner_PickedUpInSet(t *testing.T) {
	t.Parallel()
	sc := mustScenario(t, `
seed: 5
player: {number: 4, sideline_spawn_x: -1.0}
start: {x: -1.0, y: -3.0, rotation: 1.5707963}
phases:
  - {cycles: 3, game_state: initial}
  - {cycles: 3, game_state: set}
  - {cycles: 2, game_state: set, picked_up: true, teleport: {x: -2.85, y: 0, rotation: 0}}
`)
	r, err := NewRunner(sc, knowledge.DefaultConfig())
	require.NoError(t, err)

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Final.Valid)
	assert.Equal(t, provider.ManualPlacementSlots, res.Final.HypothesisCount)
}

func TestRunner_PenalizedReturn(t *testing.T) {
	t.Parallel()
	sc, err := LoadScenario("../../scenarios/penalized.yaml")
	require.NoError(t, err)
	r, err := NewRunner(sc, knowledge.DefaultConfig())
	require.NoError(t, err)
	r.Debug = debug.NewDebugCollector()
	r.Debug.SetEnabled(true)

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	// READY after INITIAL, then the two re-entry spots after the penalty
	assert.Equal(t, 2, res.Resets)
	assert.GreaterOrEqual(t, res.Final.HypothesisCount, 1)
	assert.LessOrEqual(t, res.Final.HypothesisCount, 2)

	nearest := math.Inf(1)
	for _, h := range r.Knowledge.Hypotheses() {
		nearest = math.Min(nearest, h.Pose.Translation().DistanceTo(res.Truth.Translation()))
	}
	assert.Less(t, nearest, 0.5, "one hypothesis tracks the re-entry side")
}

func testPlayer() percept.Player { return percept.Player{Number: 2, SidelineSpawnX: -1.5} }

func newSource(seed uint64) rand.Source { return rand.NewPCG(seed, seed) }

func TestScenario_RefereePackets(t *testing.T) {
	t.Parallel()
	sc := mustScenario(t, `
player: {number: 3}
cycle_period: 100ms
phases:
  - {cycles: 12, game_state: ready}
  - {cycles: 3, game_state: playing, penalty: pushing}
`)
	packets, err := sc.RefereePackets(21)
	require.NoError(t, err)

	// 1.2 s of READY at 2 Hz, then one packet for the short penalty phase
	require.Len(t, packets, 4)
	assert.Equal(t, Epoch, packets[0].Timestamp)
	assert.Equal(t, Epoch.Add(1200*time.Millisecond), packets[3].Timestamp)

	tl := gamecontroller.NewTimeline(packets)
	st, err := tl.At(Epoch.Add(time.Second)).StateFor(21, 3)
	require.NoError(t, err)
	assert.Equal(t, sc.Phases[0].Game(), st)

	st, err = tl.At(Epoch.Add(1250 * time.Millisecond)).StateFor(21, 3)
	require.NoError(t, err)
	assert.Equal(t, gamecontroller.StatePlaying, st.GameState)
	assert.Equal(t, gamecontroller.PenaltyPlayerPushing, st.Penalty)

	for i, p := range packets {
		assert.Equal(t, uint8(i), p.Packet.PacketNumber)
	}
}
