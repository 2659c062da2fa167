package model

import "time"

// Decision is the governance outcome for one tool call.
type Decision string

const (
	Allowed Decision = "allowed"
	Blocked Decision = "blocked"
	Held    Decision = "held"
)

// DefaultFrame is the policy-context label used when a caller sets none.
const DefaultFrame = "⊕◊▶α"

// Reasons attached by the decision core.
const (
	ReasonSensitiveData = "Sensitive data detected in tool arguments"
	ReasonBlocked       = "Blocked by governance pipeline"
	ReasonPassed        = "Passed governance pipeline"
)

// DecisionRequest is the shape submitted to the decision engine.
// Tool is always a sanitized name by the time an engine sees it.
type DecisionRequest struct {
	AgentID   string         `json:"agent_id"`
	Frame     string         `json:"frame"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// HoldStatus is the lifecycle state of a hold request.
type HoldStatus string

const (
	HoldPending  HoldStatus = "pending"
	HoldApproved HoldStatus = "approved"
	HoldDenied   HoldStatus = "denied"
	HoldConsumed HoldStatus = "consumed"
	HoldExpired  HoldStatus = "expired"
)

// HoldRequest describes a call parked pending out-of-band resolution.
type HoldRequest struct {
	HoldID     string         `json:"hold_id"`
	AgentID    string         `json:"agent_id"`
	Tool       string         `json:"tool"`
	Frame      string         `json:"frame"`
	Arguments  map[string]any `json:"arguments,omitempty"`
	Reason     string         `json:"reason"`
	Status     HoldStatus     `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	// ApprovalExpiresAt bounds how long an approved hold may be consumed.
	ApprovalExpiresAt *time.Time `json:"approval_expires_at,omitempty"`
}

// DriftSeverity grades how far an agent strayed from its baseline.
type DriftSeverity string

const (
	SeverityLow      DriftSeverity = "low"
	SeverityMedium   DriftSeverity = "medium"
	SeverityHigh     DriftSeverity = "high"
	SeverityCritical DriftSeverity = "critical"
)

// SeverityRank maps severity to a comparable integer.
var SeverityRank = map[DriftSeverity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// DriftAlert is one drift finding reported by a post-execution audit.
type DriftAlert struct {
	AgentID    string        `json:"agent_id"`
	Tool       string        `json:"tool"`
	Severity   DriftSeverity `json:"severity"`
	Score      float64       `json:"score"`
	Message    string        `json:"message"`
	DetectedAt time.Time     `json:"detected_at"`
}

// PostAudit is the engine's audit of an allowed call.
type PostAudit struct {
	DriftDetected bool         `json:"drift_detected"`
	Alerts        []DriftAlert `json:"alerts"`
}

// ExecuteResult is the raw decision returned by an engine.
type ExecuteResult struct {
	Allowed     bool         `json:"allowed"`
	Held        bool         `json:"held"`
	HoldRequest *HoldRequest `json:"hold_request,omitempty"`
	Error       string       `json:"error,omitempty"`
	PostAudit   *PostAudit   `json:"post_audit,omitempty"`
}

// HasDrift reports whether the post-audit carries at least one alert.
func (r ExecuteResult) HasDrift() bool {
	return r.PostAudit != nil && r.PostAudit.DriftDetected && len(r.PostAudit.Alerts) > 0
}

// ExecutionControlConfig is the policy an engine applies to every request.
type ExecutionControlConfig struct {
	EnablePreFlightDriftPrediction bool          `json:"enable_pre_flight_drift_prediction" yaml:"enable_pre_flight_drift_prediction"`
	DriftPredictionThreshold       float64       `json:"drift_prediction_threshold" yaml:"drift_prediction_threshold"`
	EnableCircuitBreakerCheck      bool          `json:"enable_circuit_breaker_check" yaml:"enable_circuit_breaker_check"`
	EnableBaselineComparison       bool          `json:"enable_baseline_comparison" yaml:"enable_baseline_comparison"`
	BaselineDeviationThreshold     float64       `json:"baseline_deviation_threshold" yaml:"baseline_deviation_threshold"`
	HoldOnDriftPrediction          bool          `json:"hold_on_drift_prediction" yaml:"hold_on_drift_prediction"`
	HoldOnLowConfidence            bool          `json:"hold_on_low_confidence" yaml:"hold_on_low_confidence"`
	HoldOnForbiddenWithOverride    bool          `json:"hold_on_forbidden_with_override" yaml:"hold_on_forbidden_with_override"`
	HoldTimeout                    time.Duration `json:"hold_timeout" yaml:"hold_timeout"`
	EnableMCPValidation            bool          `json:"enable_mcp_validation" yaml:"enable_mcp_validation"`
	MCPValidationTools             []string      `json:"mcp_validation_tools" yaml:"mcp_validation_tools"`
	HaltOnCriticalDrift            bool          `json:"halt_on_critical_drift" yaml:"halt_on_critical_drift"`
	HaltOnHighDrift                bool          `json:"halt_on_high_drift" yaml:"halt_on_high_drift"`
}

// GovernanceEvent is the immutable audit record of one decision.
// HoldRequest is set only for held decisions; DriftAlerts only for
// allowed decisions whose post-audit reported drift.
type GovernanceEvent struct {
	EventID       string         `json:"event_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Tool          string         `json:"tool"`
	Arguments     map[string]any `json:"arguments"`
	Decision      Decision       `json:"decision"`
	Reason        string         `json:"reason"`
	AgentID       string         `json:"agent_id"`
	Frame         string         `json:"frame"`
	ExecuteResult *ExecuteResult `json:"execute_result,omitempty"`
	HoldRequest   *HoldRequest   `json:"hold_request,omitempty"`
	DriftAlerts   []DriftAlert   `json:"drift_alerts,omitempty"`
}

// Interception stands in for a tool result when a call was not allowed.
// It never carries the call's arguments or a real result.
type Interception struct {
	Allowed    bool   `json:"allowed"`
	Held       bool   `json:"held"`
	Reason     string `json:"reason"`
	HoldID     string `json:"hold_id,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// InterceptionFor builds the interception matching a non-allowed event.
func InterceptionFor(ev GovernanceEvent) Interception {
	ic := Interception{
		Allowed: false,
		Held:    ev.Decision == Held,
		Reason:  ev.Reason,
	}
	if ev.HoldRequest != nil {
		ic.HoldID = ev.HoldRequest.HoldID
		ic.Suggestion = "await resolution of hold " + ev.HoldRequest.HoldID
	} else if ev.Reason == ReasonSensitiveData {
		ic.Suggestion = "remove sensitive values from the arguments"
	}
	return ic
}

// CloneArguments deep-copies nested maps and slices so the copy never
// shares mutable state with args. A nil map stays nil.
func CloneArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return CloneArguments(tv)
	case []any:
		if tv == nil {
			return tv
		}
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Clone returns a copy of h whose arguments and timestamps are not
// shared with h.
func (h HoldRequest) Clone() HoldRequest {
	out := h
	out.Arguments = CloneArguments(h.Arguments)
	if h.ResolvedAt != nil {
		t := *h.ResolvedAt
		out.ResolvedAt = &t
	}
	if h.ApprovalExpiresAt != nil {
		t := *h.ApprovalExpiresAt
		out.ApprovalExpiresAt = &t
	}
	return out
}
