package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/promptspeak/internal/model"
)

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	configs    []AlertConfig
	policyHash string
	log        *zap.Logger
	wg         sync.WaitGroup
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// Returns nil if configs is empty; a nil Dispatcher drops every event.
func NewDispatcher(configs []AlertConfig) *Dispatcher {
	if len(configs) == 0 {
		return nil
	}
	return &Dispatcher{configs: configs, log: zap.NewNop()}
}

// WithLogger sets the logger used for delivery failures.
// Like WithPolicyHash it must be called before the dispatcher is shared.
func (d *Dispatcher) WithLogger(l *zap.Logger) *Dispatcher {
	if d != nil && l != nil {
		d.log = l
	}
	return d
}

// WithPolicyHash stamps outgoing alerts with the active policy hash.
func (d *Dispatcher) WithPolicyHash(hash string) *Dispatcher {
	if d != nil {
		d.policyHash = hash
	}
	return d
}

// Dispatch sends the event to all webhooks whose Events list matches.
// Matching is based on event.Decision or event.Type.
// Fires goroutines and does not block the caller.
func (d *Dispatcher) Dispatch(event AlertEvent) {
	if d == nil {
		return
	}
	if event.PolicyHash == "" {
		event.PolicyHash = d.policyHash
	}
	for _, cfg := range d.configs {
		if matches(cfg.Events, event) {
			d.wg.Add(1)
			go func(cfg AlertConfig) {
				defer d.wg.Done()
				if err := Send(context.Background(), cfg, event); err != nil {
					d.log.Warn("alert delivery failed",
						zap.String("url", cfg.URL),
						zap.String("event_id", event.EventID),
						zap.Error(err))
				}
			}(cfg)
		}
	}
}

// Emit converts a governance event into alerts: one for the decision and
// one per drift alert. It never blocks on delivery.
func (d *Dispatcher) Emit(_ context.Context, ev model.GovernanceEvent) error {
	if d == nil {
		return nil
	}
	for _, a := range FromGovernanceEvent(ev) {
		d.Dispatch(a)
	}
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

// FromGovernanceEvent maps ev to its alert payloads.
func FromGovernanceEvent(ev model.GovernanceEvent) []AlertEvent {
	base := AlertEvent{
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
		EventID:   ev.EventID,
		AgentID:   ev.AgentID,
		Tool:      ev.Tool,
		Frame:     ev.Frame,
		Decision:  string(ev.Decision),
		Reason:    ev.Reason,
	}
	if ev.HoldRequest != nil {
		base.HoldID = ev.HoldRequest.HoldID
	}
	out := []AlertEvent{base}
	for _, da := range ev.DriftAlerts {
		a := base
		a.Type = EventDrift
		a.Reason = da.Message
		a.DriftSeverity = string(da.Severity)
		a.DriftScore = da.Score
		out = append(out, a)
	}
	return out
}

func matches(events []string, event AlertEvent) bool {
	for _, e := range events {
		if event.Type != "" {
			if e == event.Type {
				return true
			}
			continue
		}
		if e == event.Decision {
			return true
		}
	}
	return false
}
