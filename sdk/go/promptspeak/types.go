package promptspeak

import (
	"errors"

	"github.com/ppiankov/promptspeak/internal/gatekeeper"
	"github.com/ppiankov/promptspeak/internal/model"
	"github.com/ppiankov/promptspeak/internal/policy"
	"github.com/ppiankov/promptspeak/internal/telemetry"
)

// Decision is the governance outcome for one tool call.
type Decision = model.Decision

const (
	Allowed = model.Allowed
	Blocked = model.Blocked
	Held    = model.Held
)

// DefaultFrame is the policy-context label used when none is configured.
const DefaultFrame = model.DefaultFrame

type (
	GovernanceEvent        = model.GovernanceEvent
	HoldRequest            = model.HoldRequest
	HoldStatus             = model.HoldStatus
	DriftAlert             = model.DriftAlert
	DriftSeverity          = model.DriftSeverity
	Interception           = model.Interception
	DecisionRequest        = model.DecisionRequest
	ExecuteResult          = model.ExecuteResult
	PostAudit              = model.PostAudit
	ExecutionControlConfig = model.ExecutionControlConfig
)

// Engine decides tool calls. The default implementation is Gatekeeper.
type Engine = policy.Engine

// Classifier detects sensitive data in serialized arguments.
type Classifier = policy.Classifier

// EventSink receives every governance event.
type EventSink = policy.EventSink

// Gatekeeper is the built-in rule-based engine.
type Gatekeeper = gatekeeper.Gatekeeper

// GatekeeperOption configures a Gatekeeper.
type GatekeeperOption = gatekeeper.Option

// Rules are the Gatekeeper's denied-tool and hold-pattern lists.
type Rules = gatekeeper.Rules

// Metrics collects Prometheus counters for decisions.
type Metrics = telemetry.Metrics

// NewMetrics creates a metrics set on its own registry.
func NewMetrics() *Metrics {
	return telemetry.NewMetrics()
}

// Mode selects how aggressively the batch guard holds calls.
type Mode = policy.Mode

const (
	ModeStrict     = policy.ModeStrict
	ModeStandard   = policy.ModeStandard
	ModeFlexible   = policy.ModeFlexible
	ModePermissive = policy.ModePermissive
)

// Configuration and invocation errors.
var (
	ErrNoExecute        = errors.New("tool has no execute function")
	ErrInvalidMode      = policy.ErrInvalidMode
	ErrInvalidThreshold = policy.ErrInvalidThreshold
)

// ExecutionControlFor maps a mode and thresholds to engine configuration.
// A zero baseline threshold defaults to twice the drift threshold.
func ExecutionControlFor(mode Mode, driftThreshold, baselineThreshold float64) ExecutionControlConfig {
	return policy.ExecutionControlFor(mode, driftThreshold, baselineThreshold)
}

// InterceptionFor builds the stand-in result for a non-allowed event.
func InterceptionFor(ev GovernanceEvent) Interception {
	return model.InterceptionFor(ev)
}
