package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/promptspeak/internal/model"
)

var (
	// ErrInvalidMode is returned for a mode outside strict|standard|flexible|permissive.
	ErrInvalidMode = errors.New("invalid governance mode")
	// ErrInvalidThreshold is returned for a threshold outside [0, 1].
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
)

// Mode selects how aggressively drift is held and halted.
type Mode string

const (
	ModeStrict     Mode = "strict"
	ModeStandard   Mode = "standard"
	ModeFlexible   Mode = "flexible"
	ModePermissive Mode = "permissive"
)

// Defaults applied when a caller configures nothing.
const (
	DefaultMode           = ModeStandard
	DefaultDriftThreshold = 0.15
	DefaultHoldTimeout    = 30 * time.Second
)

// ParseMode validates s. Empty input yields DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return DefaultMode, nil
	case ModeStrict, ModeStandard, ModeFlexible, ModePermissive:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// ValidateThreshold checks that v lies in [0, 1].
func ValidateThreshold(name string, v float64) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%w: %s=%v", ErrInvalidThreshold, name, v)
	}
	return nil
}

// ExecutionControlFor maps a mode and thresholds onto engine configuration.
// A zero baseline threshold defaults to twice the drift threshold.
// Flexible behaves like standard.
func ExecutionControlFor(mode Mode, driftThreshold, baselineThreshold float64) model.ExecutionControlConfig {
	if baselineThreshold == 0 {
		baselineThreshold = driftThreshold * 2
	}
	return model.ExecutionControlConfig{
		EnablePreFlightDriftPrediction: true,
		DriftPredictionThreshold:       driftThreshold,
		EnableCircuitBreakerCheck:      true,
		EnableBaselineComparison:       true,
		BaselineDeviationThreshold:     baselineThreshold,
		HoldOnDriftPrediction:          mode != ModePermissive,
		HoldOnLowConfidence:            mode == ModeStrict,
		HoldOnForbiddenWithOverride:    false,
		HoldTimeout:                    DefaultHoldTimeout,
		EnableMCPValidation:            false,
		HaltOnCriticalDrift:            true,
		HaltOnHighDrift:                mode == ModeStrict,
	}
}
