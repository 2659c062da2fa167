package telemetry

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ppiankov/promptspeak/internal/model"
)

func TestRecordDecisionSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	_, span := StartEvaluation(context.Background(), Tracer(tp), SurfaceTool, "send_payment", "agent-1")
	RecordDecision(span, model.GovernanceEvent{
		EventID:     "pst_1_1",
		Decision:    model.Held,
		Reason:      "needs review",
		Frame:       model.DefaultFrame,
		HoldRequest: &model.HoldRequest{HoldID: "hold_1"},
	})
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != SpanEvaluate {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}

	attrs := attribute.NewSet(spans[0].Attributes()...)
	checks := map[string]string{
		"promptspeak.surface":  SurfaceTool,
		"promptspeak.tool":     "send_payment",
		"promptspeak.decision": "held",
		"promptspeak.hold_id":  "hold_1",
	}
	for key, want := range checks {
		v, ok := attrs.Value(attribute.Key(key))
		if !ok || v.AsString() != want {
			t.Errorf("attribute %s = %v, want %q", key, v, want)
		}
	}

	events := spans[0].Events()
	if len(events) != 1 || events[0].Name != "governance.decision" {
		t.Fatalf("expected governance.decision event, got %v", events)
	}
}

func TestMetricsRecordDecision(t *testing.T) {
	m := NewMetrics()
	m.RecordDecision(SurfaceMiddleware, model.GovernanceEvent{Decision: model.Blocked}, time.Millisecond)
	m.RecordDecision(SurfaceMiddleware, model.GovernanceEvent{
		Decision:    model.Allowed,
		DriftAlerts: []model.DriftAlert{{Severity: model.SeverityHigh}},
	}, time.Millisecond)
	m.RecordHoldResolution(model.HoldApproved)

	if got := testutil.ToFloat64(m.decisionsTotal.WithLabelValues(SurfaceMiddleware, "blocked")); got != 1 {
		t.Errorf("blocked count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.driftAlertsTotal.WithLabelValues("high")); got != 1 {
		t.Errorf("high drift count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.holdResolutions.WithLabelValues("approved")); got != 1 {
		t.Errorf("approved count = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordDecision(SurfaceTool, model.GovernanceEvent{Decision: model.Allowed}, 0)
	m.RecordHoldResolution(model.HoldDenied)
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.RecordDecision(SurfaceTool, model.GovernanceEvent{Decision: model.Allowed}, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `promptspeak_decisions_total{decision="allowed",surface="tool"} 1`) {
		t.Fatalf("metrics output missing decision counter:\n%s", rec.Body.String())
	}
}
