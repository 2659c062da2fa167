// Package events delivers governance events to audit destinations.
package events

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ppiankov/promptspeak/internal/model"
	"github.com/ppiankov/promptspeak/internal/redact"
)

// Emitter receives governance events. Emit must be safe for concurrent use.
type Emitter interface {
	Emit(ctx context.Context, ev model.GovernanceEvent) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev model.GovernanceEvent) error

func (f EmitterFunc) Emit(ctx context.Context, ev model.GovernanceEvent) error {
	return f(ctx, ev)
}

// LogEmitter writes each event as a structured log line with sensitive
// argument values masked.
type LogEmitter struct {
	log       *zap.Logger
	extraKeys []string
}

// NewLogEmitter returns a LogEmitter writing to log. extraKeys are masked
// in addition to redact.DefaultPIIKeys.
func NewLogEmitter(log *zap.Logger, extraKeys ...string) *LogEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogEmitter{log: log, extraKeys: extraKeys}
}

func (e *LogEmitter) Emit(_ context.Context, ev model.GovernanceEvent) error {
	fields := []zap.Field{
		zap.String("event_id", ev.EventID),
		zap.Time("timestamp", ev.Timestamp),
		zap.String("agent_id", ev.AgentID),
		zap.String("tool", ev.Tool),
		zap.String("frame", ev.Frame),
		zap.String("decision", string(ev.Decision)),
		zap.String("reason", ev.Reason),
		zap.Any("arguments", redact.RedactAuto(ev.Arguments, e.extraKeys)),
	}
	if ev.HoldRequest != nil {
		fields = append(fields, zap.String("hold_id", ev.HoldRequest.HoldID))
	}
	if n := len(ev.DriftAlerts); n > 0 {
		fields = append(fields, zap.Int("drift_alerts", n))
	}

	switch ev.Decision {
	case model.Allowed:
		e.log.Info("governance event", fields...)
	default:
		e.log.Warn("governance event", fields...)
	}
	return nil
}

// MultiEmitter fans events out to every emitter in order. All emitters
// run even when one fails; the errors are joined.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter skips nil emitters.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	m := &MultiEmitter{}
	for _, e := range emitters {
		if e != nil {
			m.emitters = append(m.emitters, e)
		}
	}
	return m
}

// Len returns the number of wrapped emitters.
func (m *MultiEmitter) Len() int {
	return len(m.emitters)
}

func (m *MultiEmitter) Emit(ctx context.Context, ev model.GovernanceEvent) error {
	var errs []error
	for _, e := range m.emitters {
		if err := e.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
