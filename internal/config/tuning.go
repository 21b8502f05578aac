package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/fieldpose/internal/localization/knowledge"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/localization.defaults.json"

// TuningConfig represents the root configuration for localization tuning.
// Every field is optional: unset fields fall back to the built-in defaults
// through the Get* accessors.
type TuningConfig struct {
	// Spawn noise (std-dev of x, y, heading)
	SigmaInitial   *[3]float64 `json:"sigma_initial,omitempty"`
	SigmaPenalized *[3]float64 `json:"sigma_penalized,omitempty"`

	// Process noise
	FilterProcessNoise          *[3]float64 `json:"filter_process_noise,omitempty"`
	PredictProcessNoiseFraction *[3]float64 `json:"predict_process_noise_fraction,omitempty"`

	// Hypothesis management
	MergeRadius                   *float64 `json:"merge_radius,omitempty"`
	MergeAngle                    *float64 `json:"merge_angle,omitempty"`
	AbsoluteEvalThreshold         *float64 `json:"absolute_eval_threshold,omitempty"`
	RelativeEvalThreshold         *float64 `json:"relative_eval_threshold,omitempty"`
	HypothesisSelectionHysteresis *float64 `json:"hypothesis_selection_hysteresis,omitempty"`
	MaxNumberOfHypotheses         *int     `json:"max_number_of_hypotheses,omitempty"`
	EvalLowPassFactor             *float64 `json:"eval_low_pass_factor,omitempty"`
	UnassociatedPenalty           *float64 `json:"unassociated_penalty,omitempty"`

	// Situational toggles
	StartAnywhereAtSidelines                  *bool `json:"start_anywhere_at_sidelines,omitempty"`
	UseSensorResetting                        *bool `json:"use_sensor_resetting,omitempty"`
	StrikerLocalizeInPSO                      *bool `json:"striker_localize_in_pso,omitempty"`
	AlwaysUseMultiplePenaltyShootoutPositions *bool `json:"always_use_multiple_penalty_shootout_positions,omitempty"`
	IgnoreCirclePerceptsNearGoalSupport       *bool `json:"ignore_circle_percepts_near_goal_support,omitempty"`
	IgnorePenaltyAreasWithoutOrientation      *bool `json:"ignore_penalty_areas_without_orientation,omitempty"`
	UseCircleTangents                         *bool `json:"use_circle_tangents,omitempty"`

	CircleTangentTolerance *float64 `json:"circle_tangent_tolerance,omitempty"`

	// Line association
	LineAssociationMaxDistance *float64 `json:"line_association_max_distance,omitempty"`
	LineAssociationMaxAngle    *float64 `json:"line_association_max_angle,omitempty"`
	LineSegmentTolerance       *float64 `json:"line_segment_tolerance,omitempty"`

	// Measurement variances
	LineDistanceVariance     *float64 `json:"line_distance_variance,omitempty"`
	LineAngleVariance        *float64 `json:"line_angle_variance,omitempty"`
	CircleVariance           *float64 `json:"circle_variance,omitempty"`
	CircleAngleVariance      *float64 `json:"circle_angle_variance,omitempty"`
	PenaltyAreaVariance      *float64 `json:"penalty_area_variance,omitempty"`
	PenaltyAreaAngleVariance *float64 `json:"penalty_area_angle_variance,omitempty"`

	// Gating and publishing
	MaxLineDistanceToCameraHeight *float64 `json:"max_line_distance_to_camera_height,omitempty"`
	GoalSupportViewAngle          *float64 `json:"goal_support_view_angle,omitempty"`
	GoalSupportMaxDistance        *float64 `json:"goal_support_max_distance,omitempty"`
	JumpDistanceThreshold         *float64 `json:"jump_distance_threshold,omitempty"`
	JumpAngleThreshold            *float64 `json:"jump_angle_threshold,omitempty"`

	// Cycle period used by the simulator and replay tools
	CyclePeriod *string `json:"cycle_period,omitempty"` // duration string like "33ms"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/localization/knowledge/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	for name, v := range map[string]*[3]float64{
		"sigma_initial":                  c.SigmaInitial,
		"sigma_penalized":                c.SigmaPenalized,
		"filter_process_noise":           c.FilterProcessNoise,
		"predict_process_noise_fraction": c.PredictProcessNoiseFraction,
	} {
		if v == nil {
			continue
		}
		for i, x := range v {
			if x < 0 {
				return fmt.Errorf("%s[%d] must be non-negative, got %f", name, i, x)
			}
		}
	}

	if c.MaxNumberOfHypotheses != nil && *c.MaxNumberOfHypotheses < 6 {
		return fmt.Errorf("max_number_of_hypotheses must be at least 6, got %d", *c.MaxNumberOfHypotheses)
	}

	if c.HypothesisSelectionHysteresis != nil {
		if h := *c.HypothesisSelectionHysteresis; h < 0 || h >= 1 {
			return fmt.Errorf("hypothesis_selection_hysteresis must be in [0,1), got %f", h)
		}
	}

	if c.EvalLowPassFactor != nil {
		if f := *c.EvalLowPassFactor; f <= 0 || f > 1 {
			return fmt.Errorf("eval_low_pass_factor must be in (0,1], got %f", f)
		}
	}

	if c.RelativeEvalThreshold != nil && *c.RelativeEvalThreshold < 1 {
		return fmt.Errorf("relative_eval_threshold must be at least 1, got %f", *c.RelativeEvalThreshold)
	}

	for name, v := range map[string]*float64{
		"merge_radius":                  c.MergeRadius,
		"merge_angle":                   c.MergeAngle,
		"absolute_eval_threshold":       c.AbsoluteEvalThreshold,
		"line_association_max_distance": c.LineAssociationMaxDistance,
		"line_association_max_angle":    c.LineAssociationMaxAngle,
		"jump_distance_threshold":       c.JumpDistanceThreshold,
		"jump_angle_threshold":          c.JumpAngleThreshold,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}

	// Validate CyclePeriod can be parsed if set
	if c.CyclePeriod != nil && *c.CyclePeriod != "" {
		if _, err := time.ParseDuration(*c.CyclePeriod); err != nil {
			return fmt.Errorf("invalid cycle_period '%s': %w", *c.CyclePeriod, err)
		}
	}

	return nil
}

// GetCyclePeriod parses and returns the CyclePeriod as a time.Duration.
func (c *TuningConfig) GetCyclePeriod() time.Duration {
	if c.CyclePeriod == nil || *c.CyclePeriod == "" {
		return 33 * time.Millisecond // default: one camera frame at 30 Hz
	}
	d, err := time.ParseDuration(*c.CyclePeriod)
	if err != nil {
		return 33 * time.Millisecond
	}
	return d
}

func getVec3(v *[3]float64, def [3]float64) [3]float64 {
	if v == nil {
		return def
	}
	return *v
}

func getFloat(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func getBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetSigmaInitial returns the sigma_initial value or the default.
func (c *TuningConfig) GetSigmaInitial() [3]float64 {
	return getVec3(c.SigmaInitial, [3]float64{0.15, 0.1, 0.1})
}

// GetSigmaPenalized returns the sigma_penalized value or the default.
func (c *TuningConfig) GetSigmaPenalized() [3]float64 {
	return getVec3(c.SigmaPenalized, [3]float64{0.3, 0.15, 0.15})
}

// GetFilterProcessNoise returns the filter_process_noise value or the default.
func (c *TuningConfig) GetFilterProcessNoise() [3]float64 {
	return getVec3(c.FilterProcessNoise, [3]float64{0.0004, 0.0004, 0.0003})
}

// GetPredictProcessNoiseFraction returns the predict_process_noise_fraction value or the default.
func (c *TuningConfig) GetPredictProcessNoiseFraction() [3]float64 {
	return getVec3(c.PredictProcessNoiseFraction, [3]float64{0.2, 0.2, 0.3})
}

// GetMergeRadius returns the merge_radius value or the default.
func (c *TuningConfig) GetMergeRadius() float64 { return getFloat(c.MergeRadius, 0.3) }

// GetMergeAngle returns the merge_angle value or the default.
func (c *TuningConfig) GetMergeAngle() float64 { return getFloat(c.MergeAngle, 0.3) }

// GetAbsoluteEvalThreshold returns the absolute_eval_threshold value or the default.
func (c *TuningConfig) GetAbsoluteEvalThreshold() float64 {
	return getFloat(c.AbsoluteEvalThreshold, 0.3)
}

// GetRelativeEvalThreshold returns the relative_eval_threshold value or the default.
func (c *TuningConfig) GetRelativeEvalThreshold() float64 {
	return getFloat(c.RelativeEvalThreshold, 2.0)
}

// GetHypothesisSelectionHysteresis returns the hypothesis_selection_hysteresis value or the default.
func (c *TuningConfig) GetHypothesisSelectionHysteresis() float64 {
	return getFloat(c.HypothesisSelectionHysteresis, 0.2)
}

// GetMaxNumberOfHypotheses returns the max_number_of_hypotheses value or the default.
func (c *TuningConfig) GetMaxNumberOfHypotheses() int {
	if c.MaxNumberOfHypotheses == nil {
		return 12
	}
	return *c.MaxNumberOfHypotheses
}

// GetEvalLowPassFactor returns the eval_low_pass_factor value or the default.
func (c *TuningConfig) GetEvalLowPassFactor() float64 { return getFloat(c.EvalLowPassFactor, 0.2) }

// GetUnassociatedPenalty returns the unassociated_penalty value or the default.
func (c *TuningConfig) GetUnassociatedPenalty() float64 {
	return getFloat(c.UnassociatedPenalty, 0.5)
}

// GetStartAnywhereAtSidelines returns the start_anywhere_at_sidelines value or the default.
func (c *TuningConfig) GetStartAnywhereAtSidelines() bool {
	return getBool(c.StartAnywhereAtSidelines, false)
}

// GetUseSensorResetting returns the use_sensor_resetting value or the default.
func (c *TuningConfig) GetUseSensorResetting() bool { return getBool(c.UseSensorResetting, false) }

// GetStrikerLocalizeInPSO returns the striker_localize_in_pso value or the default.
func (c *TuningConfig) GetStrikerLocalizeInPSO() bool { return getBool(c.StrikerLocalizeInPSO, false) }

// GetAlwaysUseMultiplePenaltyShootoutPositions returns the
// always_use_multiple_penalty_shootout_positions value or the default.
func (c *TuningConfig) GetAlwaysUseMultiplePenaltyShootoutPositions() bool {
	return getBool(c.AlwaysUseMultiplePenaltyShootoutPositions, false)
}

// GetIgnoreCirclePerceptsNearGoalSupport returns the
// ignore_circle_percepts_near_goal_support value or the default.
func (c *TuningConfig) GetIgnoreCirclePerceptsNearGoalSupport() bool {
	return getBool(c.IgnoreCirclePerceptsNearGoalSupport, true)
}

// GetIgnorePenaltyAreasWithoutOrientation returns the
// ignore_penalty_areas_without_orientation value or the default.
func (c *TuningConfig) GetIgnorePenaltyAreasWithoutOrientation() bool {
	return getBool(c.IgnorePenaltyAreasWithoutOrientation, false)
}

// GetUseCircleTangents returns the use_circle_tangents value or the default.
func (c *TuningConfig) GetUseCircleTangents() bool { return getBool(c.UseCircleTangents, true) }

// GetMaxLineDistanceToCameraHeight returns the max_line_distance_to_camera_height value or the default.
func (c *TuningConfig) GetMaxLineDistanceToCameraHeight() float64 {
	return getFloat(c.MaxLineDistanceToCameraHeight, 10)
}

// ToKnowledgeConfig converts the tuning file into the localization
// configuration, filling unset fields with defaults.
func (c *TuningConfig) ToKnowledgeConfig() knowledge.Config {
	cfg := knowledge.DefaultConfig()

	cfg.FilterProcessNoise = c.GetFilterProcessNoise()
	cfg.PredictProcessNoiseFraction = c.GetPredictProcessNoiseFraction()
	cfg.MergeRadius = c.GetMergeRadius()
	cfg.MergeAngle = c.GetMergeAngle()
	cfg.AbsoluteEvalThreshold = c.GetAbsoluteEvalThreshold()
	cfg.RelativeEvalThreshold = c.GetRelativeEvalThreshold()
	cfg.HypothesisSelectionHysteresis = c.GetHypothesisSelectionHysteresis()
	cfg.MaxNumberOfHypotheses = c.GetMaxNumberOfHypotheses()
	cfg.UseSensorResetting = c.GetUseSensorResetting()
	cfg.StrikerLocalizeInPSO = c.GetStrikerLocalizeInPSO()
	cfg.MaxLineDistanceToCameraHeight = c.GetMaxLineDistanceToCameraHeight()
	cfg.JumpDistanceThreshold = getFloat(c.JumpDistanceThreshold, cfg.JumpDistanceThreshold)
	cfg.JumpAngleThreshold = getFloat(c.JumpAngleThreshold, cfg.JumpAngleThreshold)

	cfg.Spawn.SigmaInitial = c.GetSigmaInitial()
	cfg.Spawn.SigmaPenalized = c.GetSigmaPenalized()
	cfg.Spawn.StartAnywhereAtSidelines = c.GetStartAnywhereAtSidelines()
	cfg.Spawn.AlwaysUseMultiplePenaltyShootoutPositions = c.GetAlwaysUseMultiplePenaltyShootoutPositions()

	h := &cfg.Hypothesis
	h.EvalLowPassFactor = c.GetEvalLowPassFactor()
	h.UnassociatedPenalty = c.GetUnassociatedPenalty()
	h.UseCircleTangents = c.GetUseCircleTangents()
	h.IgnoreCirclePerceptsNearGoalSupport = c.GetIgnoreCirclePerceptsNearGoalSupport()
	h.IgnorePenaltyAreasWithoutOrientation = c.GetIgnorePenaltyAreasWithoutOrientation()
	h.LineAssociationMaxDistance = getFloat(c.LineAssociationMaxDistance, h.LineAssociationMaxDistance)
	h.LineAssociationMaxAngle = getFloat(c.LineAssociationMaxAngle, h.LineAssociationMaxAngle)
	h.LineSegmentTolerance = getFloat(c.LineSegmentTolerance, h.LineSegmentTolerance)
	h.CircleTangentTolerance = getFloat(c.CircleTangentTolerance, h.CircleTangentTolerance)
	h.LineDistanceVariance = getFloat(c.LineDistanceVariance, h.LineDistanceVariance)
	h.LineAngleVariance = getFloat(c.LineAngleVariance, h.LineAngleVariance)
	h.CircleVariance = getFloat(c.CircleVariance, h.CircleVariance)
	h.CircleAngleVariance = getFloat(c.CircleAngleVariance, h.CircleAngleVariance)
	h.PenaltyAreaVariance = getFloat(c.PenaltyAreaVariance, h.PenaltyAreaVariance)
	h.PenaltyAreaAngleVariance = getFloat(c.PenaltyAreaAngleVariance, h.PenaltyAreaAngleVariance)
	h.GoalSupportViewAngle = getFloat(c.GoalSupportViewAngle, h.GoalSupportViewAngle)
	h.GoalSupportMaxDistance = getFloat(c.GoalSupportMaxDistance, h.GoalSupportMaxDistance)

	return cfg
}
