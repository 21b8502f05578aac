package knowledge

import (
	"fmt"

	"github.com/banshee-data/fieldpose/internal/localization/hypothesis"
	"github.com/banshee-data/fieldpose/internal/localization/provider"
)

// Config holds the tuning of the localization pipeline. Build it with
// DefaultConfig or from a tuning file via config.TuningConfig.
type Config struct {
	// Process noise added per cycle (variance) and per unit of odometry.
	FilterProcessNoise          [3]float64
	PredictProcessNoiseFraction [3]float64

	// Hypotheses closer than MergeRadius metres and MergeAngle radians are
	// fused.
	MergeRadius float64
	MergeAngle  float64

	// A hypothesis is pruned when its error exceeds both the absolute
	// threshold and RelativeEvalThreshold times the best error.
	AbsoluteEvalThreshold float64
	RelativeEvalThreshold float64

	// The best hypothesis is replaced only by one whose error is lower by
	// more than this fraction.
	HypothesisSelectionHysteresis float64

	MaxNumberOfHypotheses int

	UseSensorResetting   bool
	StrikerLocalizeInPSO bool

	// Published poses moving further than this between cycles are jumps.
	JumpDistanceThreshold float64
	JumpAngleThreshold    float64

	// Lines further away than this multiple of the camera height are not
	// trusted.
	MaxLineDistanceToCameraHeight float64

	Hypothesis hypothesis.Params
	Spawn      provider.Params
}

// DefaultConfig returns the built-in tuning.
func DefaultConfig() Config {
	return Config{
		FilterProcessNoise:            [3]float64{0.0004, 0.0004, 0.0003},
		PredictProcessNoiseFraction:   [3]float64{0.2, 0.2, 0.3},
		MergeRadius:                   0.3,
		MergeAngle:                    0.3,
		AbsoluteEvalThreshold:         0.3,
		RelativeEvalThreshold:         2.0,
		HypothesisSelectionHysteresis: 0.2,
		MaxNumberOfHypotheses:         12,
		JumpDistanceThreshold:         0.5,
		JumpAngleThreshold:            0.5,
		MaxLineDistanceToCameraHeight: 10,
		Hypothesis:                    hypothesis.DefaultParams(),
		Spawn:                         provider.DefaultParams(),
	}
}

// Validate reports settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.MaxNumberOfHypotheses < provider.PenaltyShootoutSlots {
		return fmt.Errorf("max number of hypotheses must be at least %d, got %d",
			provider.PenaltyShootoutSlots, c.MaxNumberOfHypotheses)
	}
	if c.MergeRadius < 0 || c.MergeAngle < 0 {
		return fmt.Errorf("merge neighbourhood must be non-negative, got %g m / %g rad", c.MergeRadius, c.MergeAngle)
	}
	if c.HypothesisSelectionHysteresis < 0 || c.HypothesisSelectionHysteresis >= 1 {
		return fmt.Errorf("hypothesis selection hysteresis must be in [0,1), got %g", c.HypothesisSelectionHysteresis)
	}
	if c.AbsoluteEvalThreshold < 0 || c.RelativeEvalThreshold < 1 {
		return fmt.Errorf("eval thresholds out of range: absolute %g, relative %g", c.AbsoluteEvalThreshold, c.RelativeEvalThreshold)
	}
	if c.Hypothesis.EvalLowPassFactor <= 0 || c.Hypothesis.EvalLowPassFactor > 1 {
		return fmt.Errorf("eval low-pass factor must be in (0,1], got %g", c.Hypothesis.EvalLowPassFactor)
	}
	for i, v := range c.FilterProcessNoise {
		if v < 0 || c.PredictProcessNoiseFraction[i] < 0 {
			return fmt.Errorf("process noise must be non-negative (axis %d)", i)
		}
	}
	return nil
}
