// Package sim drives the localization with synthetic input. A YAML
// scenario describes the field, the player and a sequence of game phases;
// the runner moves a ground-truth robot through them, synthesises noisy
// odometry and landmark percepts, and feeds one percept.Frame per cycle to
// the localization.
package sim

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/fieldpose/internal/field"
	"github.com/banshee-data/fieldpose/internal/gamecontroller"
	"github.com/banshee-data/fieldpose/internal/geom"
	"github.com/banshee-data/fieldpose/internal/percept"
)

const defaultCyclePeriod = 33 * time.Millisecond

// Pose is a YAML-friendly pose; rotation in radians.
type Pose struct {
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
	Rotation float64 `yaml:"rotation"`
}

// Pose2D converts to the geometry type.
func (p Pose) Pose2D() geom.Pose2D { return geom.NewPose2D(p.X, p.Y, p.Rotation) }

// Camera describes what the synthetic camera can see.
type Camera struct {
	Height        float64 `yaml:"height"`        // metres
	FieldOfView   float64 `yaml:"field_of_view"` // full horizontal opening angle, radians
	Range         float64 `yaml:"range"`         // metres
	MinLineLength float64 `yaml:"min_line_length"`
}

// Noise holds the standard deviations of the synthetic sensor errors.
type Noise struct {
	// Odometry error per cycle as a fraction of the commanded motion, plus
	// an absolute floor.
	OdometryFraction [3]float64 `yaml:"odometry_fraction"`
	OdometryFloor    [3]float64 `yaml:"odometry_floor"`

	Position float64 `yaml:"position"` // percept position, metres
	Angle    float64 `yaml:"angle"`    // percept orientation, radians
}

// Phase is a span of cycles with constant referee state and motion.
type Phase struct {
	Name      string `yaml:"name"`
	Cycles    int    `yaml:"cycles"`
	GameState string `yaml:"game_state"`
	GamePhase string `yaml:"game_phase,omitempty"`
	Penalty   string `yaml:"penalty,omitempty"`

	KickingTeam bool `yaml:"kicking_team,omitempty"`

	// Walk is the per-cycle motion command in the robot frame.
	Walk Pose `yaml:"walk"`

	// Teleport moves the true robot at the start of the phase, as a
	// referee placing it would.
	Teleport *Pose `yaml:"teleport,omitempty"`

	PickedUp bool `yaml:"picked_up,omitempty"`
	Fallen   bool `yaml:"fallen,omitempty"`
	Blind    bool `yaml:"blind,omitempty"` // no percepts at all

	game gamecontroller.State
}

// Scenario is a complete simulation description.
type Scenario struct {
	Name        string            `yaml:"name"`
	Seed        uint64            `yaml:"seed"`
	CyclePeriod string            `yaml:"cycle_period,omitempty"`
	Field       *field.Dimensions `yaml:"field,omitempty"`
	Player      percept.Player    `yaml:"player"`
	Start       Pose              `yaml:"start"`
	Camera      Camera            `yaml:"camera"`
	Noise       Noise             `yaml:"noise"`
	Phases      []Phase           `yaml:"phases"`

	period time.Duration
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a YAML scenario.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}
	if err := sc.Prepare(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Prepare fills defaults and resolves the referee names of every phase.
func (sc *Scenario) Prepare() error {
	if sc.Field == nil {
		d := field.DefaultDimensions()
		sc.Field = &d
	}
	if err := sc.Field.Validate(); err != nil {
		return fmt.Errorf("scenario %q: %w", sc.Name, err)
	}
	if sc.Player.Number < 1 {
		return fmt.Errorf("scenario %q: player number must be >= 1, got %d", sc.Name, sc.Player.Number)
	}

	sc.period = defaultCyclePeriod
	if sc.CyclePeriod != "" {
		d, err := time.ParseDuration(sc.CyclePeriod)
		if err != nil || d <= 0 {
			return fmt.Errorf("scenario %q: invalid cycle_period %q", sc.Name, sc.CyclePeriod)
		}
		sc.period = d
	}

	if sc.Camera.Height == 0 {
		sc.Camera.Height = 0.5
	}
	if sc.Camera.FieldOfView == 0 {
		sc.Camera.FieldOfView = 1.0
	}
	if sc.Camera.Range == 0 {
		sc.Camera.Range = 4.0
	}
	if sc.Camera.MinLineLength == 0 {
		sc.Camera.MinLineLength = 0.3
	}

	if len(sc.Phases) == 0 {
		return fmt.Errorf("scenario %q: at least one phase is required", sc.Name)
	}
	for i := range sc.Phases {
		ph := &sc.Phases[i]
		if ph.Cycles <= 0 {
			return fmt.Errorf("scenario %q phase %d: cycles must be positive", sc.Name, i)
		}
		gs, err := gamecontroller.ParseGameState(ph.GameState)
		if err != nil {
			return fmt.Errorf("scenario %q phase %d: %w", sc.Name, i, err)
		}
		gp, err := gamecontroller.ParseGamePhase(ph.GamePhase)
		if err != nil {
			return fmt.Errorf("scenario %q phase %d: %w", sc.Name, i, err)
		}
		pen, err := gamecontroller.ParsePenalty(ph.Penalty)
		if err != nil {
			return fmt.Errorf("scenario %q phase %d: %w", sc.Name, i, err)
		}
		ph.game = gamecontroller.State{GameState: gs, GamePhase: gp, Penalty: pen, KickingTeam: ph.KickingTeam}
	}
	return nil
}

// Period returns the simulated cycle period.
func (sc *Scenario) Period() time.Duration { return sc.period }

// TotalCycles returns the number of cycles over all phases.
func (sc *Scenario) TotalCycles() int {
	n := 0
	for _, ph := range sc.Phases {
		n += ph.Cycles
	}
	return n
}
