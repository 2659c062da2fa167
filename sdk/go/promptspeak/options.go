package promptspeak

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// sharedConfig holds settings accepted by both guard surfaces.
type sharedConfig struct {
	logger     *zap.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	classifier Classifier
	sink       EventSink
}

// ToolOption configures GovernedTool.
type ToolOption interface {
	applyTool(*toolConfig)
}

// MiddlewareOption configures NewMiddleware and NewGatekeeper.
type MiddlewareOption interface {
	applyMiddleware(*middlewareConfig)
}

// SharedOption configures either guard surface.
type SharedOption func(*sharedConfig)

func (f SharedOption) applyTool(c *toolConfig)             { f(&c.shared) }
func (f SharedOption) applyMiddleware(c *middlewareConfig) { f(&c.shared) }

type toolOptionFunc func(*toolConfig)

func (f toolOptionFunc) applyTool(c *toolConfig) { f(c) }

type middlewareOptionFunc func(*middlewareConfig)

func (f middlewareOptionFunc) applyMiddleware(c *middlewareConfig) { f(c) }

// WithLogger sets the logger for decisions and engine activity.
func WithLogger(l *zap.Logger) SharedOption {
	return func(c *sharedConfig) { c.logger = l }
}

// WithMetrics records decisions into m.
func WithMetrics(m *Metrics) SharedOption {
	return func(c *sharedConfig) { c.metrics = m }
}

// WithTracer records one span per evaluation.
func WithTracer(t trace.Tracer) SharedOption {
	return func(c *sharedConfig) { c.tracer = t }
}

// WithClassifier replaces the built-in sensitive-data classifier.
func WithClassifier(cl Classifier) SharedOption {
	return func(c *sharedConfig) { c.classifier = cl }
}

// WithEventSink forwards every governance event to sink.
func WithEventSink(sink EventSink) SharedOption {
	return func(c *sharedConfig) { c.sink = sink }
}

// --- Single-call guard ---

type toolConfig struct {
	shared         sharedConfig
	frame          string
	sensitiveCheck bool
	agentID        string
	onBlocked      func(GovernanceEvent)
	onHeld         func(HoldRequest)
	engine         Engine
	handle         *Handle
}

// WithFrame sets the policy frame sent with every call.
func WithFrame(frame string) ToolOption {
	return toolOptionFunc(func(c *toolConfig) { c.frame = frame })
}

// WithSensitiveDataCheck toggles the sensitive-data pre-check.
func WithSensitiveDataCheck(enabled bool) ToolOption {
	return toolOptionFunc(func(c *toolConfig) { c.sensitiveCheck = enabled })
}

// WithAgentID fixes the agent identity instead of generating one.
func WithAgentID(id string) ToolOption {
	return toolOptionFunc(func(c *toolConfig) { c.agentID = id })
}

// WithOnBlocked is called synchronously for every blocked call.
func WithOnBlocked(fn func(GovernanceEvent)) ToolOption {
	return toolOptionFunc(func(c *toolConfig) { c.onBlocked = fn })
}

// WithOnHeld is called synchronously for every held call.
func WithOnHeld(fn func(HoldRequest)) ToolOption {
	return toolOptionFunc(func(c *toolConfig) { c.onHeld = fn })
}

// WithEngine uses e instead of the shared handle.
func WithEngine(e Engine) ToolOption {
	return toolOptionFunc(func(c *toolConfig) { c.engine = e })
}

// WithHandle resolves the engine from h instead of DefaultHandle.
func WithHandle(h *Handle) ToolOption {
	return toolOptionFunc(func(c *toolConfig) { c.handle = h })
}

// --- Batch generation guard ---

type middlewareConfig struct {
	shared            sharedConfig
	mode              Mode
	driftThreshold    float64
	baselineThreshold float64
	sensitiveData     bool
	agentID           string
	frame             string
	onBlocked         func(GovernanceEvent)
	onHeld            func(HoldRequest)
	onDrift           func([]DriftAlert)
	onDecision        func(GovernanceEvent)
	engine            Engine
	repairArgs        bool
	gatekeeperOpts    []GatekeeperOption
}

// WithMode sets strict, standard, flexible or permissive.
func WithMode(m Mode) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.mode = m })
}

// WithDriftThreshold sets the drift prediction threshold in [0,1].
func WithDriftThreshold(v float64) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.driftThreshold = v })
}

// WithBaselineDeviationThreshold sets the baseline deviation threshold in
// [0,1]. Unset, it is twice the drift threshold.
func WithBaselineDeviationThreshold(v float64) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.baselineThreshold = v })
}

// WithSensitiveData toggles the sensitive-data pre-check.
func WithSensitiveData(enabled bool) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.sensitiveData = enabled })
}

// WithMiddlewareAgentID fixes the agent identity instead of generating one.
func WithMiddlewareAgentID(id string) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.agentID = id })
}

// WithDefaultFrame sets the policy frame sent with every call.
func WithDefaultFrame(frame string) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.frame = frame })
}

// OnBlocked is called for every blocked call, before OnDecision.
func OnBlocked(fn func(GovernanceEvent)) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.onBlocked = fn })
}

// OnHeld is called for every held call, before OnDecision.
func OnHeld(fn func(HoldRequest)) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.onHeld = fn })
}

// OnDrift is called with the alerts of an allowed call whose audit
// reported drift, before OnDecision.
func OnDrift(fn func([]DriftAlert)) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.onDrift = fn })
}

// OnDecision is called once per proposed tool call, in order.
func OnDecision(fn func(GovernanceEvent)) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.onDecision = fn })
}

// WithMiddlewareEngine injects an engine. The middleware then leaves the
// engine's execution-control configuration untouched.
func WithMiddlewareEngine(e Engine) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.engine = e })
}

// WithArgumentRepair repairs malformed tool-call argument JSON before
// falling back to an empty argument set.
func WithArgumentRepair(enabled bool) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) { c.repairArgs = enabled })
}

// WithGatekeeperOptions configures the privately owned Gatekeeper, for
// example its rules or hold store.
func WithGatekeeperOptions(opts ...GatekeeperOption) MiddlewareOption {
	return middlewareOptionFunc(func(c *middlewareConfig) {
		c.gatekeeperOpts = append(c.gatekeeperOpts, opts...)
	})
}
