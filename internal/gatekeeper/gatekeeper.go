// Package gatekeeper is the default rule-based decision engine. It applies
// per-agent circuit breaking, tool deny and hold rules, baseline drift
// prediction and post-execution drift audits, and keeps held calls in a
// HoldStore until they are resolved out of band.
package gatekeeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/promptspeak/internal/identity"
	"github.com/ppiankov/promptspeak/internal/model"
)

// DefaultCleanupInterval is how often expired holds are swept.
const DefaultCleanupInterval = time.Minute

// Rules are the static tool rules applied before drift checks.
type Rules struct {
	DeniedTools  []string
	HoldPatterns []string
	Registry     *identity.Registry
}

// Option configures a Gatekeeper.
type Option func(*Gatekeeper)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gatekeeper) {
		if l != nil {
			g.log = l
		}
	}
}

// WithHoldStore sets the hold store. The default is a MemoryHoldStore.
func WithHoldStore(s HoldStore) Option {
	return func(g *Gatekeeper) { g.holds = s }
}

// WithRules sets the initial tool rules.
func WithRules(r Rules) Option {
	return func(g *Gatekeeper) { g.rules = r }
}

// WithConfig sets the initial execution-control configuration.
func WithConfig(cfg model.ExecutionControlConfig) Option {
	return func(g *Gatekeeper) { g.cfg = cfg }
}

// WithBaselineWarmup sets how many allowed calls define an agent's baseline.
func WithBaselineWarmup(n int) Option {
	return func(g *Gatekeeper) { g.warmup = n }
}

// WithBreakerTimeout sets how long a halted agent stays blocked.
func WithBreakerTimeout(d time.Duration) Option {
	return func(g *Gatekeeper) { g.breakerTimeout = d }
}

// WithCleanupInterval sets the hold sweep interval. Zero disables the
// periodic sweep.
func WithCleanupInterval(d time.Duration) Option {
	return func(g *Gatekeeper) { g.cleanupInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gatekeeper) { g.now = now }
}

// Gatekeeper is safe for concurrent use.
type Gatekeeper struct {
	log             *zap.Logger
	holds           HoldStore
	now             func() time.Time
	warmup          int
	breakerTimeout  time.Duration
	cleanupInterval time.Duration

	mu    sync.RWMutex
	cfg   model.ExecutionControlConfig
	rules Rules

	// holdMu serializes hold lookup and creation so concurrent identical
	// calls share one pending hold.
	holdMu sync.Mutex

	breakers  *breakers
	baselines *baselines

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// DefaultConfig returns the standard-mode execution-control configuration.
func DefaultConfig() model.ExecutionControlConfig {
	return model.ExecutionControlConfig{
		EnablePreFlightDriftPrediction: true,
		DriftPredictionThreshold:       0.15,
		EnableCircuitBreakerCheck:      true,
		EnableBaselineComparison:       true,
		BaselineDeviationThreshold:     0.3,
		HoldOnDriftPrediction:          true,
		HoldTimeout:                    30 * time.Second,
		HaltOnCriticalDrift:            true,
	}
}

// New creates a Gatekeeper and starts its periodic hold sweep.
func New(opts ...Option) *Gatekeeper {
	g := &Gatekeeper{
		log:             zap.NewNop(),
		now:             time.Now,
		cfg:             DefaultConfig(),
		cleanupInterval: DefaultCleanupInterval,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.holds == nil {
		g.holds = NewMemoryHoldStore()
	}
	g.breakers = newBreakers(g.breakerTimeout)
	g.baselines = newBaselines(g.warmup)

	if g.cleanupInterval > 0 {
		go g.cleanupLoop(g.cleanupInterval)
	} else {
		close(g.done)
	}
	return g
}

// SetExecutionControlConfig replaces the configuration.
func (g *Gatekeeper) SetExecutionControlConfig(cfg model.ExecutionControlConfig) {
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
}

// ExecutionControlConfig returns the current configuration.
func (g *Gatekeeper) ExecutionControlConfig() model.ExecutionControlConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// SetRules replaces the tool rules.
func (g *Gatekeeper) SetRules(r Rules) {
	g.mu.Lock()
	g.rules = r
	g.mu.Unlock()
}

// StopPeriodicCleanup stops the hold sweep. Safe to call more than once.
func (g *Gatekeeper) StopPeriodicCleanup() {
	g.stopOnce.Do(func() { close(g.stop) })
	<-g.done
}

// Close stops the sweep and closes the hold store.
func (g *Gatekeeper) Close() error {
	g.StopPeriodicCleanup()
	return g.holds.Close()
}

func (g *Gatekeeper) cleanupLoop(interval time.Duration) {
	defer close(g.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			g.ExpireHolds(context.Background())
		}
	}
}

// ExpireHolds sweeps expired holds once and returns how many changed.
func (g *Gatekeeper) ExpireHolds(ctx context.Context) int {
	n, err := g.holds.Expire(ctx, g.now())
	if err != nil {
		g.log.Warn("hold sweep failed", zap.Error(err))
	}
	if n > 0 {
		g.log.Info("expired holds", zap.Int("count", n))
	}
	return n
}

// Execute decides one request. Faults are folded into a blocked result.
// A half-open probe that is not allowed re-opens the agent's circuit.
func (g *Gatekeeper) Execute(ctx context.Context, req model.DecisionRequest) model.ExecuteResult {
	now := g.now()
	res := g.decide(ctx, req, now)
	if !res.Allowed && g.breakers.fail(req.AgentID, now) {
		g.log.Warn("breaker probe failed, circuit re-opened",
			zap.String("agent_id", req.AgentID),
			zap.String("reason", res.Error))
	}
	return res
}

func (g *Gatekeeper) decide(ctx context.Context, req model.DecisionRequest, now time.Time) model.ExecuteResult {
	g.mu.RLock()
	cfg := g.cfg
	rules := g.rules
	g.mu.RUnlock()

	if cfg.EnableCircuitBreakerCheck {
		if ok, reason := g.breakers.allow(req.AgentID, now); !ok {
			return blocked(fmt.Sprintf("circuit breaker open for agent %s: %s", req.AgentID, reason))
		}
	}

	if !rules.Registry.FrameAllowed(req.AgentID, req.Frame) {
		return blocked(fmt.Sprintf("frame %q is not permitted for agent %s", req.Frame, req.AgentID))
	}
	if !rules.Registry.ToolInScope(req.AgentID, req.Tool) {
		return blocked(fmt.Sprintf("tool %q is outside the scope of agent %s", req.Tool, req.AgentID))
	}

	if cfg.EnableMCPValidation && len(cfg.MCPValidationTools) > 0 {
		if _, ok := identity.MatchAny(cfg.MCPValidationTools, req.Tool); !ok {
			return blocked(fmt.Sprintf("tool %q is not a registered MCP tool", req.Tool))
		}
	}

	_, denied := identity.MatchAny(rules.DeniedTools, req.Tool)
	if denied && !cfg.HoldOnForbiddenWithOverride {
		return blocked(fmt.Sprintf("tool %q is forbidden", req.Tool))
	}

	if consumed, ok, err := g.holds.ConsumeApproved(ctx, req.AgentID, req.Tool, now); err != nil {
		return blocked(fmt.Sprintf("hold store: %v", err))
	} else if ok {
		g.log.Info("approved hold consumed",
			zap.String("hold_id", consumed.HoldID),
			zap.String("agent_id", req.AgentID),
			zap.String("tool", req.Tool))
		return g.allow(req, cfg, now)
	}

	if denied {
		return g.hold(ctx, req, cfg, now, fmt.Sprintf("tool %q is forbidden and requires an override", req.Tool))
	}

	if pattern, ok := identity.MatchAny(rules.HoldPatterns, req.Tool); ok {
		return g.hold(ctx, req, cfg, now, fmt.Sprintf("tool %q matches hold pattern %q", req.Tool, pattern))
	}

	if cfg.EnablePreFlightDriftPrediction {
		if score := g.baselines.predict(req.AgentID, req.Tool); score > cfg.DriftPredictionThreshold && cfg.HoldOnDriftPrediction {
			return g.hold(ctx, req, cfg, now, fmt.Sprintf("predicted drift %.2f exceeds threshold %.2f", score, cfg.DriftPredictionThreshold))
		}
	}

	if cfg.HoldOnLowConfidence {
		if dev := g.baselines.deviation(req.AgentID); dev > cfg.DriftPredictionThreshold {
			return g.hold(ctx, req, cfg, now, fmt.Sprintf("low confidence: baseline deviation %.2f exceeds %.2f", dev, cfg.DriftPredictionThreshold))
		}
	}

	return g.allow(req, cfg, now)
}

// allow records the call and runs the post-execution audit.
func (g *Gatekeeper) allow(req model.DecisionRequest, cfg model.ExecutionControlConfig, now time.Time) model.ExecuteResult {
	res := model.ExecuteResult{Allowed: true}
	if !cfg.EnableBaselineComparison {
		g.breakers.succeed(req.AgentID)
		return res
	}

	dev := g.baselines.record(req.AgentID, req.Tool)
	audit := &model.PostAudit{}
	res.PostAudit = audit
	if dev <= cfg.BaselineDeviationThreshold {
		g.breakers.succeed(req.AgentID)
		return res
	}

	alert := driftAlert(req.AgentID, req.Tool, dev, now)
	audit.DriftDetected = true
	audit.Alerts = []model.DriftAlert{alert}

	halt := (alert.Severity == model.SeverityCritical && cfg.HaltOnCriticalDrift) ||
		(alert.Severity == model.SeverityHigh && cfg.HaltOnHighDrift)
	if halt && cfg.EnableCircuitBreakerCheck {
		g.breakers.trip(req.AgentID, alert.Message, now)
		g.baselines.clearRecent(req.AgentID)
		g.log.Warn("agent halted",
			zap.String("agent_id", req.AgentID),
			zap.String("severity", string(alert.Severity)),
			zap.Float64("score", dev))
	} else {
		g.breakers.succeed(req.AgentID)
	}
	return res
}

// hold parks the call. A pending hold for the same agent and tool is reused.
func (g *Gatekeeper) hold(ctx context.Context, req model.DecisionRequest, cfg model.ExecutionControlConfig, now time.Time, reason string) model.ExecuteResult {
	g.holdMu.Lock()
	defer g.holdMu.Unlock()

	pending, err := g.holds.List(ctx, model.HoldPending)
	if err != nil {
		return blocked(fmt.Sprintf("hold store: %v", err))
	}
	for _, h := range pending {
		if h.AgentID == req.AgentID && h.Tool == req.Tool && (h.ExpiresAt.IsZero() || now.Before(h.ExpiresAt)) {
			hr := h
			return model.ExecuteResult{Held: true, HoldRequest: &hr, Error: hr.Reason}
		}
	}

	hr := model.HoldRequest{
		HoldID:    "hold_" + uuid.NewString(),
		AgentID:   req.AgentID,
		Tool:      req.Tool,
		Frame:     req.Frame,
		Arguments: model.CloneArguments(req.Arguments),
		Reason:    reason,
		Status:    model.HoldPending,
		CreatedAt: now,
	}
	if cfg.HoldTimeout > 0 {
		hr.ExpiresAt = now.Add(cfg.HoldTimeout)
	}
	if err := g.holds.Create(ctx, hr); err != nil {
		return blocked(fmt.Sprintf("hold store: %v", err))
	}
	g.log.Info("call held",
		zap.String("hold_id", hr.HoldID),
		zap.String("agent_id", req.AgentID),
		zap.String("tool", req.Tool),
		zap.String("reason", reason))
	return model.ExecuteResult{Held: true, HoldRequest: &hr, Error: reason}
}

func blocked(reason string) model.ExecuteResult {
	return model.ExecuteResult{Allowed: false, Error: reason}
}

// ApproveHold approves a pending hold. A positive ttl bounds how long the
// approval may be consumed; zero leaves it open until consumed.
//
// Approvals are keyed by agent and tool only. The next call from that agent
// to that tool consumes the approval whatever its arguments, and a pending
// hold is likewise shared by every call to the tool until it is resolved.
func (g *Gatekeeper) ApproveHold(ctx context.Context, id string, ttl time.Duration) (model.HoldRequest, error) {
	h, err := g.holds.Resolve(ctx, id, model.HoldApproved, ttl, g.now())
	if err != nil {
		return h, fmt.Errorf("approve hold %s: %w", id, err)
	}
	g.log.Info("hold approved", zap.String("hold_id", id))
	return h, nil
}

// DenyHold denies a pending hold.
func (g *Gatekeeper) DenyHold(ctx context.Context, id string) (model.HoldRequest, error) {
	h, err := g.holds.Resolve(ctx, id, model.HoldDenied, 0, g.now())
	if err != nil {
		return h, fmt.Errorf("deny hold %s: %w", id, err)
	}
	g.log.Info("hold denied", zap.String("hold_id", id))
	return h, nil
}

// PendingHolds lists holds awaiting resolution, oldest first.
func (g *Gatekeeper) PendingHolds(ctx context.Context) ([]model.HoldRequest, error) {
	return g.holds.List(ctx, model.HoldPending)
}

// Hold returns one hold by id.
func (g *Gatekeeper) Hold(ctx context.Context, id string) (model.HoldRequest, error) {
	return g.holds.Get(ctx, id)
}

// BreakerState reports the circuit state for agentID.
func (g *Gatekeeper) BreakerState(agentID string) BreakerState {
	return g.breakers.state(agentID)
}

// ResetAgent clears the agent's baseline and closes its circuit.
func (g *Gatekeeper) ResetAgent(agentID string) {
	g.baselines.reset(agentID)
	g.breakers.reset(agentID)
}
