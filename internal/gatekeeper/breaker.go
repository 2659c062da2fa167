package gatekeeper

import (
	"sync"
	"time"
)

// BreakerState represents the state of an agent's circuit breaker.
type BreakerState string

const (
	// StateClosed indicates the agent's calls are evaluated normally.
	StateClosed BreakerState = "closed"
	// StateOpen indicates the agent is halted and every call is blocked.
	StateOpen BreakerState = "open"
	// StateHalfOpen indicates the halt timed out and the next call probes.
	StateHalfOpen BreakerState = "half-open"
)

// DefaultBreakerTimeout is how long a halted agent stays blocked.
const DefaultBreakerTimeout = 5 * time.Minute

type agentBreaker struct {
	state     BreakerState
	reason    string
	openUntil time.Time
}

// breakers tracks one circuit per agent.
type breakers struct {
	mu      sync.Mutex
	timeout time.Duration
	agents  map[string]*agentBreaker
}

func newBreakers(timeout time.Duration) *breakers {
	if timeout <= 0 {
		timeout = DefaultBreakerTimeout
	}
	return &breakers{timeout: timeout, agents: make(map[string]*agentBreaker)}
}

// allow reports whether agentID may proceed. An open circuit whose timeout
// elapsed moves to half-open and lets the call through as a probe.
func (b *breakers) allow(agentID string, now time.Time) (bool, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.agents[agentID]
	if !ok || cb.state == StateClosed {
		return true, ""
	}
	if cb.state == StateOpen {
		if now.Before(cb.openUntil) {
			return false, cb.reason
		}
		cb.state = StateHalfOpen
	}
	return true, ""
}

// trip opens the circuit for agentID.
func (b *breakers) trip(agentID, reason string, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agents[agentID] = &agentBreaker{
		state:     StateOpen,
		reason:    reason,
		openUntil: now.Add(b.timeout),
	}
}

// fail re-opens a half-open circuit for another timeout, keeping the
// original halt reason. It reports whether the circuit changed.
func (b *breakers) fail(agentID string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.agents[agentID]
	if !ok || cb.state != StateHalfOpen {
		return false
	}
	cb.state = StateOpen
	cb.openUntil = now.Add(b.timeout)
	return true
}

// succeed closes a half-open circuit after a clean probe.
func (b *breakers) succeed(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.agents[agentID]; ok && cb.state == StateHalfOpen {
		delete(b.agents, agentID)
	}
}

func (b *breakers) state(agentID string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.agents[agentID]; ok {
		return cb.state
	}
	return StateClosed
}

func (b *breakers) reset(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.agents, agentID)
}
