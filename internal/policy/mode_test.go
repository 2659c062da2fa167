package policy

import (
	"errors"
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
	}{
		{"", ModeStandard},
		{"strict", ModeStrict},
		{"Standard", ModeStandard},
		{" flexible ", ModeFlexible},
		{"permissive", ModePermissive},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	if _, err := ParseMode("yolo"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestValidateThreshold(t *testing.T) {
	for _, v := range []float64{0, 0.15, 1} {
		if err := ValidateThreshold("drift", v); err != nil {
			t.Errorf("ValidateThreshold(%v): %v", v, err)
		}
	}
	for _, v := range []float64{-0.1, 1.5} {
		if err := ValidateThreshold("drift", v); !errors.Is(err, ErrInvalidThreshold) {
			t.Errorf("ValidateThreshold(%v) = %v, want ErrInvalidThreshold", v, err)
		}
	}
}

func TestExecutionControlForModes(t *testing.T) {
	tests := []struct {
		mode                             Mode
		holdDrift, holdLowConf, haltHigh bool
	}{
		{ModeStrict, true, true, true},
		{ModeStandard, true, false, false},
		{ModeFlexible, true, false, false},
		{ModePermissive, false, false, false},
	}
	for _, tt := range tests {
		cfg := ExecutionControlFor(tt.mode, 0.15, 0)
		if cfg.HoldOnDriftPrediction != tt.holdDrift {
			t.Errorf("%s: HoldOnDriftPrediction = %v", tt.mode, cfg.HoldOnDriftPrediction)
		}
		if cfg.HoldOnLowConfidence != tt.holdLowConf {
			t.Errorf("%s: HoldOnLowConfidence = %v", tt.mode, cfg.HoldOnLowConfidence)
		}
		if cfg.HaltOnHighDrift != tt.haltHigh {
			t.Errorf("%s: HaltOnHighDrift = %v", tt.mode, cfg.HaltOnHighDrift)
		}
		if !cfg.HaltOnCriticalDrift || !cfg.EnablePreFlightDriftPrediction || !cfg.EnableCircuitBreakerCheck || !cfg.EnableBaselineComparison {
			t.Errorf("%s: always-on checks disabled: %+v", tt.mode, cfg)
		}
		if cfg.HoldOnForbiddenWithOverride || cfg.EnableMCPValidation {
			t.Errorf("%s: unexpected optional checks: %+v", tt.mode, cfg)
		}
		if cfg.HoldTimeout != 30*time.Second {
			t.Errorf("%s: HoldTimeout = %v", tt.mode, cfg.HoldTimeout)
		}
	}
}

func TestExecutionControlForBaselineThreshold(t *testing.T) {
	if got := ExecutionControlFor(ModeStandard, 0.15, 0).BaselineDeviationThreshold; got != 0.3 {
		t.Errorf("default baseline threshold = %v, want 0.3", got)
	}
	if got := ExecutionControlFor(ModeStandard, 0.15, 0.5).BaselineDeviationThreshold; got != 0.5 {
		t.Errorf("explicit baseline threshold = %v, want 0.5", got)
	}
	if got := ExecutionControlFor(ModeStandard, 0.2, 0).DriftPredictionThreshold; got != 0.2 {
		t.Errorf("drift threshold = %v, want 0.2", got)
	}
}
