package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEmptyTuningConfigDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.GetMergeRadius() != 0.3 {
		t.Errorf("GetMergeRadius() = %f, want 0.3", cfg.GetMergeRadius())
	}
	if cfg.GetMaxNumberOfHypotheses() != 12 {
		t.Errorf("GetMaxNumberOfHypotheses() = %d, want 12", cfg.GetMaxNumberOfHypotheses())
	}
	if cfg.GetUseSensorResetting() {
		t.Errorf("GetUseSensorResetting() = true, want false")
	}
	if !cfg.GetUseCircleTangents() {
		t.Errorf("GetUseCircleTangents() = false, want true")
	}
	if cfg.GetCyclePeriod() != 33*time.Millisecond {
		t.Errorf("GetCyclePeriod() = %v, want 33ms", cfg.GetCyclePeriod())
	}
	if got := cfg.GetSigmaInitial(); got != [3]float64{0.15, 0.1, 0.1} {
		t.Errorf("GetSigmaInitial() = %v, want [0.15 0.1 0.1]", got)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "merge_radius": 0.5,
  "max_number_of_hypotheses": 8,
  "use_sensor_resetting": true,
  "sigma_penalized": [0.4, 0.2, 0.2],
  "cycle_period": "16ms"
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.MergeRadius == nil || *cfg.MergeRadius != 0.5 {
		t.Errorf("Expected MergeRadius 0.5, got %v", cfg.MergeRadius)
	}
	if cfg.GetMaxNumberOfHypotheses() != 8 {
		t.Errorf("GetMaxNumberOfHypotheses() = %d, want 8", cfg.GetMaxNumberOfHypotheses())
	}
	if !cfg.GetUseSensorResetting() {
		t.Errorf("GetUseSensorResetting() = false, want true")
	}
	if got := cfg.GetSigmaPenalized(); got != [3]float64{0.4, 0.2, 0.2} {
		t.Errorf("GetSigmaPenalized() = %v, want [0.4 0.2 0.2]", got)
	}
	if cfg.GetCyclePeriod() != 16*time.Millisecond {
		t.Errorf("GetCyclePeriod() = %v, want 16ms", cfg.GetCyclePeriod())
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	if err := os.WriteFile(configPath, []byte(`{"merge_angle": 0.1}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.GetMergeAngle() != 0.1 {
		t.Errorf("GetMergeAngle() = %f, want 0.1", cfg.GetMergeAngle())
	}
	// Unset fields fall back to defaults
	if cfg.GetMergeRadius() != 0.3 {
		t.Errorf("GetMergeRadius() = %f, want 0.3", cfg.GetMergeRadius())
	}
	if cfg.GetHypothesisSelectionHysteresis() != 0.2 {
		t.Errorf("GetHypothesisSelectionHysteresis() = %f, want 0.2", cfg.GetHypothesisSelectionHysteresis())
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/config.json")
	if err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}

func TestLoadTuningConfigWrongExtension(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(`{}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil || !strings.Contains(err.Error(), ".json") {
		t.Errorf("Expected extension error, got %v", err)
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.json")

	if err := os.WriteFile(configPath, []byte("not valid json"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("Expected error for invalid JSON, got nil")
	}
}

func TestLoadTuningConfigFailsValidation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "bad.json")

	if err := os.WriteFile(configPath, []byte(`{"max_number_of_hypotheses": 3}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "empty config",
			cfg:     EmptyTuningConfig(),
			wantErr: false,
		},
		{
			name:    "valid hypothesis limit",
			cfg:     &TuningConfig{MaxNumberOfHypotheses: ptrInt(6)},
			wantErr: false,
		},
		{
			name:    "too few hypotheses",
			cfg:     &TuningConfig{MaxNumberOfHypotheses: ptrInt(5)},
			wantErr: true,
		},
		{
			name:    "hysteresis of one",
			cfg:     &TuningConfig{HypothesisSelectionHysteresis: ptrFloat64(1)},
			wantErr: true,
		},
		{
			name:    "zero low pass",
			cfg:     &TuningConfig{EvalLowPassFactor: ptrFloat64(0)},
			wantErr: true,
		},
		{
			name:    "relative threshold below one",
			cfg:     &TuningConfig{RelativeEvalThreshold: ptrFloat64(0.5)},
			wantErr: true,
		},
		{
			name:    "negative merge radius",
			cfg:     &TuningConfig{MergeRadius: ptrFloat64(-0.1)},
			wantErr: true,
		},
		{
			name:    "negative sigma",
			cfg:     &TuningConfig{SigmaInitial: &[3]float64{0.1, -0.1, 0.1}},
			wantErr: true,
		},
		{
			name:    "invalid cycle period",
			cfg:     &TuningConfig{CyclePeriod: ptrString("soon")},
			wantErr: true,
		},
		{
			name:    "valid cycle period",
			cfg:     &TuningConfig{CyclePeriod: ptrString("20ms")},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config does not validate: %v", err)
	}
	// Every field is present in the canonical defaults file
	if cfg.MergeRadius == nil || cfg.SigmaInitial == nil || cfg.CyclePeriod == nil {
		t.Error("Expected defaults file to set every field")
	}

	// The defaults file agrees with the built-in fallbacks
	fromFile := cfg.ToKnowledgeConfig()
	fromEmpty := EmptyTuningConfig().ToKnowledgeConfig()
	if fromFile != fromEmpty {
		t.Errorf("defaults file diverges from built-in defaults:\nfile:  %+v\nempty: %+v", fromFile, fromEmpty)
	}
}

func TestToKnowledgeConfig(t *testing.T) {
	cfg := &TuningConfig{
		MergeRadius:              ptrFloat64(0.45),
		StartAnywhereAtSidelines: ptrBool(true),
		LineDistanceVariance:     ptrFloat64(0.01),
		SigmaPenalized:           &[3]float64{0.5, 0.2, 0.2},
	}

	kc := cfg.ToKnowledgeConfig()
	if kc.MergeRadius != 0.45 {
		t.Errorf("MergeRadius = %f, want 0.45", kc.MergeRadius)
	}
	if !kc.Spawn.StartAnywhereAtSidelines {
		t.Error("Spawn.StartAnywhereAtSidelines = false, want true")
	}
	if kc.Hypothesis.LineDistanceVariance != 0.01 {
		t.Errorf("Hypothesis.LineDistanceVariance = %f, want 0.01", kc.Hypothesis.LineDistanceVariance)
	}
	if kc.Spawn.SigmaPenalized != [3]float64{0.5, 0.2, 0.2} {
		t.Errorf("Spawn.SigmaPenalized = %v", kc.Spawn.SigmaPenalized)
	}
	if err := kc.Validate(); err != nil {
		t.Errorf("converted config does not validate: %v", err)
	}
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
