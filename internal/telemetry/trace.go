package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/promptspeak/internal/model"
)

const instrumentationName = "github.com/ppiankov/promptspeak"

// SpanEvaluate is the span wrapping one decision-core evaluation.
const SpanEvaluate = "promptspeak.evaluate"

// Tracer returns the tracer from tp, or from the global provider when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// StartEvaluation opens the evaluation span for one tool call.
func StartEvaluation(ctx context.Context, tracer trace.Tracer, surface, tool, agentID string) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = Tracer(nil)
	}
	return tracer.Start(ctx, SpanEvaluate, trace.WithAttributes(
		attribute.String("promptspeak.surface", surface),
		attribute.String("promptspeak.tool", tool),
		attribute.String("promptspeak.agent_id", agentID),
	))
}

// RecordDecision annotates span with the outcome of ev.
func RecordDecision(span trace.Span, ev model.GovernanceEvent) {
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.String("promptspeak.event_id", ev.EventID),
		attribute.String("promptspeak.decision", string(ev.Decision)),
		attribute.String("promptspeak.frame", ev.Frame),
	)
	if ev.Reason != "" {
		span.SetAttributes(attribute.String("promptspeak.reason", ev.Reason))
	}
	if ev.HoldRequest != nil {
		span.SetAttributes(attribute.String("promptspeak.hold_id", ev.HoldRequest.HoldID))
	}

	attrs := []attribute.KeyValue{attribute.String("decision", string(ev.Decision))}
	if len(ev.DriftAlerts) > 0 {
		attrs = append(attrs, attribute.Int("drift_alerts", len(ev.DriftAlerts)))
	}
	span.AddEvent("governance.decision", trace.WithAttributes(attrs...))
}
