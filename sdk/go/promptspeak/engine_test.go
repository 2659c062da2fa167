package promptspeak

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Execute(_ context.Context, req DecisionRequest) ExecuteResult {
	args := m.Called(req)
	return args.Get(0).(ExecuteResult)
}

func (m *mockEngine) SetExecutionControlConfig(cfg ExecutionControlConfig) {
	m.Called(cfg)
}

func (m *mockEngine) StopPeriodicCleanup() {
	m.Called()
}

func toolIs(name string) any {
	return mock.MatchedBy(func(r DecisionRequest) bool { return r.Tool == name })
}

// scriptEngine decides by tool name and records every request.
type scriptEngine struct {
	mu       sync.Mutex
	decide   func(DecisionRequest) ExecuteResult
	requests []DecisionRequest
	stopped  int
}

func (s *scriptEngine) Execute(_ context.Context, req DecisionRequest) ExecuteResult {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.decide(req)
}

func (s *scriptEngine) SetExecutionControlConfig(ExecutionControlConfig) {}

func (s *scriptEngine) StopPeriodicCleanup() {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
}

func allowAll(DecisionRequest) ExecuteResult {
	return ExecuteResult{Allowed: true}
}

type recordingSink struct {
	mu     sync.Mutex
	events []GovernanceEvent
}

func (r *recordingSink) Emit(_ context.Context, ev GovernanceEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}
