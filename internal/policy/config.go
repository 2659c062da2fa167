package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/promptspeak/internal/alert"
	"github.com/ppiankov/promptspeak/internal/gatekeeper"
	"github.com/ppiankov/promptspeak/internal/identity"
	"github.com/ppiankov/promptspeak/internal/model"
	"github.com/ppiankov/promptspeak/internal/redact"
)

// Hold store drivers.
const (
	HoldDriverMemory = "memory"
	HoldDriverFile   = "file"
	HoldDriverSQLite = "sqlite"
)

// HoldsConfig selects where held calls are kept.
type HoldsConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// PolicyConfig holds all configurable governance parameters.
type PolicyConfig struct {
	Mode                       Mode    `yaml:"mode"`
	DriftThreshold             float64 `yaml:"drift_threshold"`
	BaselineDeviationThreshold float64 `yaml:"baseline_deviation_threshold"`
	Frame                      string  `yaml:"frame"`
	AgentID                    string  `yaml:"agent_id"`

	SensitiveData     bool                `yaml:"sensitive_data"`
	SensitivePatterns []redact.PatternDef `yaml:"sensitive_patterns"`

	DeniedTools        []string      `yaml:"denied_tools"`
	HoldPatterns       []string      `yaml:"hold_patterns"`
	HoldOnForbidden    bool          `yaml:"hold_on_forbidden"`
	HoldTimeout        time.Duration `yaml:"hold_timeout"`
	BaselineWarmup     int           `yaml:"baseline_warmup"`
	BreakerTimeout     time.Duration `yaml:"breaker_timeout"`
	MCPValidationTools []string      `yaml:"mcp_validation_tools"`

	Agents map[string]*identity.AgentProfile `yaml:"agents"`
	Holds  HoldsConfig                       `yaml:"holds"`
	Alerts []alert.AlertConfig               `yaml:"alerts"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *PolicyConfig {
	return &PolicyConfig{
		Mode:           DefaultMode,
		DriftThreshold: DefaultDriftThreshold,
		Frame:          model.DefaultFrame,
		SensitiveData:  true,
		HoldTimeout:    DefaultHoldTimeout,
		BaselineWarmup: gatekeeper.DefaultBaselineWarmup,
		BreakerTimeout: gatekeeper.DefaultBreakerTimeout,
		Holds:          HoldsConfig{Driver: HoldDriverMemory},
	}
}

// DefaultPath returns ~/.promptspeak/policy.yaml, or "" when the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".promptspeak", "policy.yaml")
}

// LoadConfig loads policy configuration from a YAML file.
// Empty path falls back to ~/.promptspeak/policy.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func LoadConfig(path string) (*PolicyConfig, error) {
	cfg, _, err := LoadConfigWithHash(path)
	return cfg, err
}

// LoadConfigWithHash loads policy configuration and returns its SHA-256 hash.
// The hash is computed over the raw YAML bytes on disk.
// When no file exists (defaults used), the hash is the SHA-256 of empty input.
func LoadConfigWithHash(path string) (*PolicyConfig, string, error) {
	if path == "" {
		path = DefaultPath()
	}

	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, "", fmt.Errorf("failed to read policy config: %w", err)
		}
	}

	h := sha256.Sum256(data)
	hash := "sha256:" + hex.EncodeToString(h[:])

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, "", fmt.Errorf("failed to parse policy config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, hash, nil
}

// Validate checks mode, thresholds and hold driver.
func (c *PolicyConfig) Validate() error {
	mode, err := ParseMode(string(c.Mode))
	if err != nil {
		return err
	}
	c.Mode = mode
	if err := ValidateThreshold("drift_threshold", c.DriftThreshold); err != nil {
		return err
	}
	if err := ValidateThreshold("baseline_deviation_threshold", c.BaselineDeviationThreshold); err != nil {
		return err
	}
	switch c.Holds.Driver {
	case "", HoldDriverMemory, HoldDriverFile, HoldDriverSQLite:
	default:
		return fmt.Errorf("unknown hold driver %q", c.Holds.Driver)
	}
	if _, err := redact.CompilePatterns(c.SensitivePatterns); err != nil {
		return err
	}
	return nil
}

// ExecutionControl returns the engine configuration for this policy.
func (c *PolicyConfig) ExecutionControl() model.ExecutionControlConfig {
	ec := ExecutionControlFor(c.Mode, c.DriftThreshold, c.BaselineDeviationThreshold)
	if c.HoldTimeout > 0 {
		ec.HoldTimeout = c.HoldTimeout
	}
	ec.HoldOnForbiddenWithOverride = c.HoldOnForbidden
	if len(c.MCPValidationTools) > 0 {
		ec.EnableMCPValidation = true
		ec.MCPValidationTools = append([]string(nil), c.MCPValidationTools...)
	}
	return ec
}

// Rules returns the gatekeeper tool rules for this policy.
func (c *PolicyConfig) Rules() gatekeeper.Rules {
	var reg *identity.Registry
	if len(c.Agents) > 0 {
		reg = identity.NewRegistry(c.Agents)
	}
	return gatekeeper.Rules{
		DeniedTools:  c.DeniedTools,
		HoldPatterns: c.HoldPatterns,
		Registry:     reg,
	}
}

// Classifier builds the sensitive-data classifier for this policy.
func (c *PolicyConfig) Classifier() (*redact.Classifier, error) {
	return redact.NewClassifier(c.SensitivePatterns)
}

// OpenHoldStore opens the configured hold store.
func (c *PolicyConfig) OpenHoldStore() (gatekeeper.HoldStore, error) {
	switch c.Holds.Driver {
	case "", HoldDriverMemory:
		return gatekeeper.NewMemoryHoldStore(), nil
	case HoldDriverFile:
		dir := c.Holds.Path
		if dir == "" {
			dir = gatekeeper.DefaultHoldDir()
		}
		return gatekeeper.NewFileHoldStore(dir)
	case HoldDriverSQLite:
		path := c.Holds.Path
		if path == "" {
			path = filepath.Join(filepath.Dir(gatekeeper.DefaultHoldDir()), "holds.db")
		}
		return gatekeeper.OpenSQLiteHoldStore(path)
	default:
		return nil, fmt.Errorf("unknown hold driver %q", c.Holds.Driver)
	}
}

// NewGatekeeper builds a gatekeeper configured from this policy.
func (c *PolicyConfig) NewGatekeeper(opts ...gatekeeper.Option) (*gatekeeper.Gatekeeper, error) {
	store, err := c.OpenHoldStore()
	if err != nil {
		return nil, fmt.Errorf("open hold store: %w", err)
	}
	base := []gatekeeper.Option{
		gatekeeper.WithHoldStore(store),
		gatekeeper.WithConfig(c.ExecutionControl()),
		gatekeeper.WithRules(c.Rules()),
		gatekeeper.WithBaselineWarmup(c.BaselineWarmup),
		gatekeeper.WithBreakerTimeout(c.BreakerTimeout),
	}
	return gatekeeper.New(append(base, opts...)...), nil
}

// DefaultConfigYAML returns a commented policy file matching DefaultConfig.
func DefaultConfigYAML() string {
	return `# PromptSpeak policy.
# Missing keys fall back to the values shown here.

# strict | standard | flexible | permissive
mode: standard
drift_threshold: 0.15
# Defaults to twice drift_threshold when unset.
# baseline_deviation_threshold: 0.3
frame: "` + model.DefaultFrame + `"
# agent_id: my-agent

# Block calls whose arguments hold SSNs, card numbers, keys or credentials.
sensitive_data: true
# sensitive_patterns:
#   - name: employee_id
#     regex: 'EMP-[0-9]{6}'

denied_tools: []
# Glob patterns; matching tools are held for human review.
hold_patterns: []
hold_on_forbidden: false
hold_timeout: 30s
baseline_warmup: 10
breaker_timeout: 5m
# mcp_validation_tools: [mcp_*]

# agents:
#   billing-bot:
#     allow_tools: [invoice_*, send_email]
#     deny_tools: [invoice_delete]
#     frames: ["` + model.DefaultFrame + `"]

# memory | file | sqlite. Use file or sqlite to resolve holds from the CLI.
holds:
  driver: memory

# alerts:
#   - url: https://hooks.slack.com/services/...
#     format: slack
#     events: [blocked, held, drift]
`
}
