package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/promptspeak/internal/identity"
	"github.com/ppiankov/promptspeak/internal/model"
	"github.com/ppiankov/promptspeak/internal/redact"
	"github.com/ppiankov/promptspeak/internal/telemetry"
)

// MaxToolNameLen bounds sanitized tool names.
const MaxToolNameLen = 64

// DefaultEventPrefix is used when a call names no event prefix.
const DefaultEventPrefix = "ps"

// UnnamedTool replaces a tool name that sanitizes to nothing.
const UnnamedTool = "unnamed_tool"

// Engine decides tool calls. Implementations must be safe for concurrent use.
type Engine interface {
	Execute(ctx context.Context, req model.DecisionRequest) model.ExecuteResult
	SetExecutionControlConfig(cfg model.ExecutionControlConfig)
	StopPeriodicCleanup()
}

// Classifier detects sensitive data in serialized arguments.
type Classifier interface {
	ContainsSensitiveData(text string) bool
}

// EventSink receives every governance event after it is built.
type EventSink interface {
	Emit(ctx context.Context, ev model.GovernanceEvent) error
}

// Call is one tool call submitted for evaluation.
type Call struct {
	Tool           string
	Arguments      map[string]any
	AgentID        string
	Frame          string
	SensitiveCheck bool
	// EventPrefix selects the event id sequence ("pst", "psg", ...).
	EventPrefix string
}

// Evaluator is the decision core shared by every guard surface.
// Engine is required; the other fields are optional.
type Evaluator struct {
	Engine     Engine
	Classifier Classifier
	Sink       EventSink
	Logger     *zap.Logger
	Tracer     trace.Tracer
	Metrics    *telemetry.Metrics
	// Surface labels metrics and spans ("tool", "middleware", "mcp").
	Surface string
	Now     func() time.Time
}

// EvaluateCall runs the sensitive-data pre-check, consults the engine and
// classifies the result into an immutable event. It never returns an
// error: engine faults surface as non-allowed events.
func (e *Evaluator) EvaluateCall(ctx context.Context, call Call) model.GovernanceEvent {
	start := time.Now()
	tool := SanitizeToolName(call.Tool)

	ctx, span := telemetry.StartEvaluation(ctx, e.Tracer, e.Surface, tool, call.AgentID)
	defer span.End()

	ev := model.GovernanceEvent{
		EventID:   identity.NextEventID(eventPrefix(call.EventPrefix)),
		Timestamp: e.now(),
		Tool:      tool,
		Arguments: model.CloneArguments(call.Arguments),
		AgentID:   call.AgentID,
		Frame:     call.Frame,
	}

	if call.SensitiveCheck && e.classifier().ContainsSensitiveData(CanonicalJSON(call.Arguments)) {
		ev.Decision = model.Blocked
		ev.Reason = model.ReasonSensitiveData
	} else {
		res := e.Engine.Execute(ctx, model.DecisionRequest{
			AgentID:   call.AgentID,
			Frame:     call.Frame,
			Tool:      tool,
			Arguments: model.CloneArguments(call.Arguments),
		})
		classify(&ev, res)
	}

	telemetry.RecordDecision(span, ev)
	e.Metrics.RecordDecision(e.Surface, ev, time.Since(start))
	e.logger().Debug("governance decision",
		zap.String("event_id", ev.EventID),
		zap.String("agent_id", ev.AgentID),
		zap.String("tool", ev.Tool),
		zap.String("decision", string(ev.Decision)),
		zap.String("reason", ev.Reason))

	if e.Sink != nil {
		if err := e.Sink.Emit(ctx, ev); err != nil {
			e.logger().Warn("event sink failed", zap.String("event_id", ev.EventID), zap.Error(err))
		}
	}
	return ev
}

// classify maps a raw engine result onto ev.
func classify(ev *model.GovernanceEvent, res model.ExecuteResult) {
	r := res
	if res.HoldRequest != nil {
		hr := res.HoldRequest.Clone()
		r.HoldRequest = &hr
	}
	ev.ExecuteResult = &r

	switch {
	case res.Held && res.HoldRequest != nil:
		ev.Decision = model.Held
		ev.Reason = res.HoldRequest.Reason
		if ev.Reason == "" {
			ev.Reason = res.Error
		}
		hr := res.HoldRequest.Clone()
		ev.HoldRequest = &hr
	case !res.Allowed:
		ev.Decision = model.Blocked
		ev.Reason = res.Error
		if ev.Reason == "" {
			ev.Reason = model.ReasonBlocked
		}
	default:
		ev.Decision = model.Allowed
		ev.Reason = model.ReasonPassed
		if res.HasDrift() {
			ev.DriftAlerts = append([]model.DriftAlert(nil), res.PostAudit.Alerts...)
		}
	}
}

func eventPrefix(p string) string {
	if p == "" {
		return DefaultEventPrefix
	}
	return p
}

func (e *Evaluator) classifier() Classifier {
	if e.Classifier == nil {
		return (*redact.Classifier)(nil)
	}
	return e.Classifier
}

func (e *Evaluator) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e *Evaluator) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// SanitizeToolName replaces every character outside [A-Za-z0-9_] with '_'
// and truncates to MaxToolNameLen. An empty result becomes UnnamedTool.
func SanitizeToolName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= MaxToolNameLen {
			break
		}
	}
	out := b.String()
	if len(out) > MaxToolNameLen {
		out = out[:MaxToolNameLen]
	}
	if out == "" {
		return UnnamedTool
	}
	return out
}

// CanonicalJSON serializes args with sorted keys. Values that cannot be
// encoded fall back to their %v form so the classifier still sees them.
func CanonicalJSON(args map[string]any) string {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return string(data)
}
