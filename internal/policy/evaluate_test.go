package policy

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/promptspeak/internal/model"
	"github.com/ppiankov/promptspeak/internal/telemetry"
)

type stubEngine struct {
	mu       sync.Mutex
	result   model.ExecuteResult
	requests []model.DecisionRequest
}

func (s *stubEngine) Execute(_ context.Context, req model.DecisionRequest) model.ExecuteResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.result
}

func (s *stubEngine) SetExecutionControlConfig(model.ExecutionControlConfig) {}

func (s *stubEngine) StopPeriodicCleanup() {}

func (s *stubEngine) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type recordingSink struct {
	events []model.GovernanceEvent
	err    error
}

func (r *recordingSink) Emit(_ context.Context, ev model.GovernanceEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func testCall(tool string, args map[string]any) Call {
	return Call{
		Tool:           tool,
		Arguments:      args,
		AgentID:        "agent-1",
		Frame:          model.DefaultFrame,
		SensitiveCheck: true,
		EventPrefix:    "pst",
	}
}

func TestEvaluateSensitiveDataBlocksWithoutEngine(t *testing.T) {
	engine := &stubEngine{result: model.ExecuteResult{Allowed: true}}
	e := &Evaluator{Engine: engine}

	ev := e.EvaluateCall(context.Background(), testCall("send_message", map[string]any{"message": "SSN: 123-45-6789"}))

	assert.Equal(t, model.Blocked, ev.Decision)
	assert.Equal(t, model.ReasonSensitiveData, ev.Reason)
	assert.Nil(t, ev.ExecuteResult)
	assert.Zero(t, engine.calls(), "engine must not be consulted")
}

func TestEvaluateSensitiveCheckDisabled(t *testing.T) {
	engine := &stubEngine{result: model.ExecuteResult{Allowed: true}}
	e := &Evaluator{Engine: engine}
	call := testCall("send_message", map[string]any{"message": "SSN: 123-45-6789"})
	call.SensitiveCheck = false

	ev := e.EvaluateCall(context.Background(), call)
	assert.Equal(t, model.Allowed, ev.Decision)
	assert.Equal(t, 1, engine.calls())
}

func TestEvaluateHeld(t *testing.T) {
	engine := &stubEngine{result: model.ExecuteResult{
		Held:        true,
		HoldRequest: &model.HoldRequest{HoldID: "hold_42", Reason: "needs human review"},
	}}
	e := &Evaluator{Engine: engine}

	ev := e.EvaluateCall(context.Background(), testCall("send_payment", map[string]any{"amount": 10}))
	assert.Equal(t, model.Held, ev.Decision)
	assert.Equal(t, "needs human review", ev.Reason)
	require.NotNil(t, ev.HoldRequest)
	assert.Equal(t, "hold_42", ev.HoldRequest.HoldID)
	require.NotNil(t, ev.ExecuteResult)
	assert.True(t, ev.ExecuteResult.Held)
}

func TestEvaluateHeldWithoutHoldRequestIsBlocked(t *testing.T) {
	engine := &stubEngine{result: model.ExecuteResult{Held: true}}
	e := &Evaluator{Engine: engine}

	ev := e.EvaluateCall(context.Background(), testCall("x", nil))
	assert.Equal(t, model.Blocked, ev.Decision)
	assert.Equal(t, model.ReasonBlocked, ev.Reason)
	assert.Nil(t, ev.HoldRequest)
}

func TestEvaluateBlockedUsesEngineError(t *testing.T) {
	engine := &stubEngine{result: model.ExecuteResult{Error: `tool "rm" is forbidden`}}
	e := &Evaluator{Engine: engine}

	ev := e.EvaluateCall(context.Background(), testCall("rm", nil))
	assert.Equal(t, model.Blocked, ev.Decision)
	assert.Equal(t, `tool "rm" is forbidden`, ev.Reason)
}

func TestEvaluateAllowedWithDrift(t *testing.T) {
	alerts := []model.DriftAlert{{Severity: model.SeverityMedium, Score: 0.4}}
	engine := &stubEngine{result: model.ExecuteResult{
		Allowed:   true,
		PostAudit: &model.PostAudit{DriftDetected: true, Alerts: alerts},
	}}
	e := &Evaluator{Engine: engine}

	ev := e.EvaluateCall(context.Background(), testCall("read_file", map[string]any{"path": "/tmp/test.txt"}))
	assert.Equal(t, model.Allowed, ev.Decision)
	assert.Equal(t, model.ReasonPassed, ev.Reason)
	assert.Equal(t, alerts, ev.DriftAlerts)
	assert.Nil(t, ev.HoldRequest)
}

func TestEvaluateAllowedDriftWithoutAlerts(t *testing.T) {
	engine := &stubEngine{result: model.ExecuteResult{
		Allowed:   true,
		PostAudit: &model.PostAudit{DriftDetected: true},
	}}
	e := &Evaluator{Engine: engine}

	ev := e.EvaluateCall(context.Background(), testCall("read_file", nil))
	assert.Empty(t, ev.DriftAlerts)
}

func TestEvaluateSanitizesToolName(t *testing.T) {
	engine := &stubEngine{result: model.ExecuteResult{Allowed: true}}
	e := &Evaluator{Engine: engine}

	ev := e.EvaluateCall(context.Background(), testCall("Read a file!", nil))
	assert.Equal(t, "Read_a_file_", ev.Tool)
	require.Equal(t, 1, engine.calls())
	assert.Equal(t, "Read_a_file_", engine.requests[0].Tool)
	assert.Equal(t, "agent-1", engine.requests[0].AgentID)
	assert.Equal(t, model.DefaultFrame, engine.requests[0].Frame)
}

func TestEvaluateEventIDs(t *testing.T) {
	e := &Evaluator{Engine: &stubEngine{result: model.ExecuteResult{Allowed: true}}}

	a := e.EvaluateCall(context.Background(), testCall("x", nil))
	b := e.EvaluateCall(context.Background(), testCall("x", nil))
	assert.True(t, strings.HasPrefix(a.EventID, "pst_"))
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.False(t, a.Timestamp.IsZero())

	call := testCall("x", nil)
	call.EventPrefix = ""
	c := e.EvaluateCall(context.Background(), call)
	assert.True(t, strings.HasPrefix(c.EventID, DefaultEventPrefix+"_"))
}

func TestEvaluateArgumentsCopied(t *testing.T) {
	e := &Evaluator{Engine: &stubEngine{result: model.ExecuteResult{Allowed: true}}}
	args := map[string]any{"path": "/tmp/a"}

	ev := e.EvaluateCall(context.Background(), testCall("read_file", args))
	args["path"] = "/tmp/b"
	assert.Equal(t, "/tmp/a", ev.Arguments["path"])
}

func TestEvaluateEmitsToSink(t *testing.T) {
	sink := &recordingSink{err: errors.New("sink down")}
	e := &Evaluator{
		Engine:  &stubEngine{result: model.ExecuteResult{Allowed: true}},
		Sink:    sink,
		Metrics: telemetry.NewMetrics(),
		Surface: telemetry.SurfaceTool,
	}

	ev := e.EvaluateCall(context.Background(), testCall("read_file", nil))
	require.Len(t, sink.events, 1)
	assert.Equal(t, ev.EventID, sink.events[0].EventID)
}

type upperClassifier struct{}

func (upperClassifier) ContainsSensitiveData(text string) bool {
	return strings.Contains(text, "TOPSECRET")
}

func TestEvaluateCustomClassifier(t *testing.T) {
	e := &Evaluator{Engine: &stubEngine{result: model.ExecuteResult{Allowed: true}}, Classifier: upperClassifier{}}

	ev := e.EvaluateCall(context.Background(), testCall("x", map[string]any{"note": "TOPSECRET"}))
	assert.Equal(t, model.Blocked, ev.Decision)

	ev = e.EvaluateCall(context.Background(), testCall("x", map[string]any{"note": "SSN: 123-45-6789"}))
	assert.Equal(t, model.Allowed, ev.Decision, "custom classifier replaces the default")
}

func TestSanitizeToolName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"readFile", "readFile"},
		{"read-file", "read_file"},
		{"search the web", "search_the_web"},
		{"", UnnamedTool},
		{"café", "caf_"},
		{strings.Repeat("a", 100), strings.Repeat("a", 64)},
		{strings.Repeat("é", 100), strings.Repeat("_", 64)},
	}
	for _, tt := range tests {
		if got := SanitizeToolName(tt.in); got != tt.want {
			t.Errorf("SanitizeToolName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	got := CanonicalJSON(map[string]any{"b": 1, "a": map[string]any{"z": 1, "y": 2}})
	assert.Equal(t, `{"a":{"y":2,"z":1},"b":1}`, got)
}

func TestCanonicalJSONUnencodable(t *testing.T) {
	got := CanonicalJSON(map[string]any{"ch": make(chan int)})
	assert.Contains(t, got, "ch")
}
