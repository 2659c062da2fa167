package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ppiankov/promptspeak/internal/model"
)

func sampleEvent(decision model.Decision) model.GovernanceEvent {
	return model.GovernanceEvent{
		EventID:   "psg_1700000000000_1",
		Timestamp: time.Unix(1700000000, 0).UTC(),
		Tool:      "send_email",
		Arguments: map[string]any{"to": "ops@example.com", "password": "hunter2", "count": 3},
		Decision:  decision,
		Reason:    "Passed governance pipeline",
		AgentID:   "agent-1",
		Frame:     model.DefaultFrame,
	}
}

func TestLogEmitterMasksArguments(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := NewLogEmitter(zap.New(core))

	require.NoError(t, e.Emit(context.Background(), sampleEvent(model.Allowed)))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "send_email", fields["tool"])
	args, ok := fields["arguments"].(map[string]any)
	require.True(t, ok, "arguments field should be a map, got %T", fields["arguments"])
	assert.Equal(t, "***", args["password"])
	assert.Equal(t, 3, args["count"])
}

func TestLogEmitterWarnsOnBlocked(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	e := NewLogEmitter(zap.New(core), "to")

	ev := sampleEvent(model.Held)
	ev.HoldRequest = &model.HoldRequest{HoldID: "hold_1"}
	require.NoError(t, e.Emit(context.Background(), ev))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "hold_1", fields["hold_id"])
	assert.Equal(t, "***", fields["arguments"].(map[string]any)["to"])
}

func TestMultiEmitterRunsAllAndJoinsErrors(t *testing.T) {
	errFirst := errors.New("first failed")
	var order []string
	m := NewMultiEmitter(
		EmitterFunc(func(context.Context, model.GovernanceEvent) error {
			order = append(order, "a")
			return errFirst
		}),
		nil,
		EmitterFunc(func(context.Context, model.GovernanceEvent) error {
			order = append(order, "b")
			return nil
		}),
	)

	assert.Equal(t, 2, m.Len())
	err := m.Emit(context.Background(), sampleEvent(model.Blocked))
	assert.ErrorIs(t, err, errFirst)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestMultiEmitterEmpty(t *testing.T) {
	assert.NoError(t, NewMultiEmitter().Emit(context.Background(), sampleEvent(model.Allowed)))
}
