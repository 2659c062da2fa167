package promptspeak

import (
	"sync"

	"github.com/ppiankov/promptspeak/internal/gatekeeper"
	"github.com/ppiankov/promptspeak/internal/policy"
)

// Handle lazily constructs an engine and shares it between guards.
// It is safe for concurrent use.
type Handle struct {
	mu      sync.Mutex
	engine  Engine
	factory func() Engine
}

// NewHandle returns a handle that builds its engine with factory on first
// use. A nil factory builds a standard-mode Gatekeeper with the periodic
// hold sweep disabled.
func NewHandle(factory func() Engine) *Handle {
	return &Handle{factory: factory}
}

// DefaultHandle is the process-wide handle used by guards that were given
// neither an engine nor a handle.
var DefaultHandle = NewHandle(nil)

// Engine returns the shared engine, constructing it if needed.
func (h *Handle) Engine() Engine {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine == nil {
		if h.factory != nil {
			h.engine = h.factory()
		} else {
			h.engine = defaultEngine()
		}
	}
	return h.engine
}

// Reset stops the current engine's periodic cleanup and drops it. The next
// Engine call constructs a fresh one. Guards already holding the old
// engine keep using it.
func (h *Handle) Reset() {
	h.mu.Lock()
	e := h.engine
	h.engine = nil
	h.mu.Unlock()

	if e != nil {
		e.StopPeriodicCleanup()
	}
}

// ResetSharedGatekeeper resets DefaultHandle.
func ResetSharedGatekeeper() {
	DefaultHandle.Reset()
}

func defaultEngine() Engine {
	return gatekeeper.New(
		gatekeeper.WithConfig(policy.ExecutionControlFor(policy.DefaultMode, policy.DefaultDriftThreshold, 0)),
		gatekeeper.WithCleanupInterval(0),
	)
}
