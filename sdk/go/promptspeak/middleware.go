package promptspeak

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"

	"github.com/ppiankov/promptspeak/internal/gatekeeper"
	"github.com/ppiankov/promptspeak/internal/identity"
	"github.com/ppiankov/promptspeak/internal/policy"
	"github.com/ppiankov/promptspeak/internal/telemetry"
)

// GovernanceContextKey is the params key TransformParams adds.
const GovernanceContextKey = "_promptSpeak"

// NoticePrefix starts every notice appended for a dropped tool call.
const NoticePrefix = "[PromptSpeak]"

// ToolCall is one tool call proposed by a generation step. Args is the
// serialized JSON argument object.
type ToolCall struct {
	ToolCallType string `json:"toolCallType"`
	ToolCallID   string `json:"toolCallId"`
	ToolName     string `json:"toolName"`
	Args         string `json:"args"`
}

// Usage reports token counts of a generation step.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// GenerateResult is the output of a generation step.
type GenerateResult struct {
	Text         string         `json:"text,omitempty"`
	ToolCalls    []ToolCall     `json:"toolCalls,omitempty"`
	ToolResults  []any          `json:"toolResults,omitempty"`
	FinishReason string         `json:"finishReason,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Params are the host pipeline's generation parameters.
type Params map[string]any

// GovernanceContext is attached to params under GovernanceContextKey.
type GovernanceContext struct {
	AgentID        string  `json:"agentId"`
	Mode           Mode    `json:"mode"`
	DriftThreshold float64 `json:"driftThreshold"`
	Frame          string  `json:"frame"`
}

// StreamPart is one chunk of a streamed generation.
type StreamPart struct {
	Type      string    `json:"type"`
	TextDelta string    `json:"textDelta,omitempty"`
	ToolCall  *ToolCall `json:"toolCall,omitempty"`
}

// StreamResult is the output of a streaming generation step.
type StreamResult struct {
	Stream <-chan StreamPart
	Extra  map[string]any
}

// GenerateFunc runs the underlying generation step.
type GenerateFunc func(ctx context.Context) (*GenerateResult, error)

// StreamFunc runs the underlying streaming generation step.
type StreamFunc func(ctx context.Context) (*StreamResult, error)

// Middleware filters the tool calls of generation results. It is safe for
// concurrent use.
type Middleware struct {
	cfg     middlewareConfig
	agentID string
	eval    *policy.Evaluator
	owned   *Gatekeeper
	log     *zap.Logger
}

func newMiddlewareConfig(opts []MiddlewareOption) (middlewareConfig, error) {
	cfg := middlewareConfig{
		mode:           policy.DefaultMode,
		driftThreshold: policy.DefaultDriftThreshold,
		sensitiveData:  true,
		frame:          DefaultFrame,
	}
	for _, o := range opts {
		o.applyMiddleware(&cfg)
	}

	mode, err := policy.ParseMode(string(cfg.mode))
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	if err := policy.ValidateThreshold("drift_threshold", cfg.driftThreshold); err != nil {
		return cfg, err
	}
	if err := policy.ValidateThreshold("baseline_deviation_threshold", cfg.baselineThreshold); err != nil {
		return cfg, err
	}
	if cfg.frame == "" {
		cfg.frame = DefaultFrame
	}
	return cfg, nil
}

// NewMiddleware builds a batch generation guard. Unless an engine is
// injected, it owns a private Gatekeeper configured from the mode and
// thresholds; Close stops it.
func NewMiddleware(opts ...MiddlewareOption) (*Middleware, error) {
	cfg, err := newMiddlewareConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("promptspeak: %w", err)
	}

	m := &Middleware{cfg: cfg, log: cfg.shared.logger}
	if m.log == nil {
		m.log = zap.NewNop()
	}

	engine := cfg.engine
	if engine == nil {
		m.owned = newGatekeeper(cfg)
		engine = m.owned
	}

	m.agentID = cfg.agentID
	if m.agentID == "" {
		m.agentID = identity.NewAgentID(identity.MiddlewareAgentPrefix)
	}

	m.eval = &policy.Evaluator{
		Engine:     engine,
		Classifier: cfg.shared.classifier,
		Sink:       cfg.shared.sink,
		Logger:     cfg.shared.logger,
		Tracer:     cfg.shared.tracer,
		Metrics:    cfg.shared.metrics,
		Surface:    telemetry.SurfaceMiddleware,
	}
	return m, nil
}

// NewGatekeeper returns a standalone Gatekeeper configured the way
// NewMiddleware configures its private engine.
func NewGatekeeper(opts ...MiddlewareOption) (*Gatekeeper, error) {
	cfg, err := newMiddlewareConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("promptspeak: %w", err)
	}
	return newGatekeeper(cfg), nil
}

// NewGatekeeperFromPolicy builds a Gatekeeper from a policy YAML file,
// including its rules and hold store.
func NewGatekeeperFromPolicy(path string, opts ...GatekeeperOption) (*Gatekeeper, error) {
	cfg, err := policy.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("promptspeak: %w", err)
	}
	return cfg.NewGatekeeper(opts...)
}

// GatekeeperRules sets the denied-tool and hold-pattern lists of a Gatekeeper.
func GatekeeperRules(r Rules) GatekeeperOption {
	return gatekeeper.WithRules(r)
}

func newGatekeeper(cfg middlewareConfig) *Gatekeeper {
	base := []gatekeeper.Option{
		gatekeeper.WithConfig(policy.ExecutionControlFor(cfg.mode, cfg.driftThreshold, cfg.baselineThreshold)),
		gatekeeper.WithCleanupInterval(0),
	}
	if cfg.shared.logger != nil {
		base = append(base, gatekeeper.WithLogger(cfg.shared.logger))
	}
	return gatekeeper.New(append(base, cfg.gatekeeperOpts...)...)
}

// AgentID returns the identity attached to every evaluated call.
func (m *Middleware) AgentID() string {
	return m.agentID
}

// Gatekeeper returns the privately owned engine, or nil when one was injected.
func (m *Middleware) Gatekeeper() *Gatekeeper {
	return m.owned
}

// Close stops the privately owned engine. Injected engines are left running.
func (m *Middleware) Close() error {
	if m.owned == nil {
		return nil
	}
	return m.owned.Close()
}

// TransformParams returns a copy of params with the governance context
// added. No existing key is removed.
func (m *Middleware) TransformParams(params Params) Params {
	out := make(Params, len(params)+1)
	maps.Copy(out, params)
	out[GovernanceContextKey] = GovernanceContext{
		AgentID:        m.agentID,
		Mode:           m.cfg.mode,
		DriftThreshold: m.cfg.driftThreshold,
		Frame:          m.cfg.frame,
	}
	return out
}

// WrapGenerate runs doGenerate and evaluates every proposed tool call in
// order. Allowed calls are kept; each dropped call adds a notice line to
// the text. Errors from doGenerate are returned unchanged.
func (m *Middleware) WrapGenerate(ctx context.Context, doGenerate GenerateFunc, _ Params) (*GenerateResult, error) {
	result, err := doGenerate(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil || len(result.ToolCalls) == 0 {
		return result, nil
	}

	allowed := make([]ToolCall, 0, len(result.ToolCalls))
	var notices []string

	for _, tc := range result.ToolCalls {
		ev := m.evaluate(ctx, tc)
		if ev.Decision == Allowed {
			allowed = append(allowed, tc)
			continue
		}
		notices = append(notices, fmt.Sprintf("%s Tool \"%s\" %s: %s", NoticePrefix, tc.ToolName, ev.Decision, ev.Reason))
	}

	out := *result
	out.ToolCalls = allowed
	if len(notices) > 0 {
		note := strings.Join(notices, "\n")
		if result.Text != "" {
			out.Text = result.Text + "\n\n" + note
		} else {
			out.Text = note
		}
	}
	return &out, nil
}

// evaluate runs one call through the decision core and fires callbacks:
// OnBlocked or OnHeld, or OnDrift, then OnDecision.
func (m *Middleware) evaluate(ctx context.Context, tc ToolCall) GovernanceEvent {
	ev := m.eval.EvaluateCall(ctx, policy.Call{
		Tool:           tc.ToolName,
		Arguments:      m.parseArgs(tc),
		AgentID:        m.agentID,
		Frame:          m.cfg.frame,
		SensitiveCheck: m.cfg.sensitiveData,
		EventPrefix:    identity.MiddlewareEventPrefix,
	})

	switch ev.Decision {
	case Blocked:
		if m.cfg.onBlocked != nil {
			m.cfg.onBlocked(ev)
		}
	case Held:
		if m.cfg.onHeld != nil {
			m.cfg.onHeld(*ev.HoldRequest)
		}
	case Allowed:
		if len(ev.DriftAlerts) > 0 && m.cfg.onDrift != nil {
			m.cfg.onDrift(ev.DriftAlerts)
		}
	}
	if m.cfg.onDecision != nil {
		m.cfg.onDecision(ev)
	}
	return ev
}

// parseArgs decodes a call's argument JSON. Anything that is not a JSON
// object becomes an empty map.
func (m *Middleware) parseArgs(tc ToolCall) map[string]any {
	if args, ok := decodeObject(tc.Args); ok {
		return args
	}
	if m.cfg.repairArgs {
		repaired, err := jsonrepair.JSONRepair(tc.Args)
		if err == nil {
			if args, ok := decodeObject(repaired); ok {
				m.log.Debug("repaired tool call arguments",
					zap.String("tool_call_id", tc.ToolCallID),
					zap.String("tool", tc.ToolName))
				return args
			}
		}
	}
	m.log.Debug("unparseable tool call arguments",
		zap.String("tool_call_id", tc.ToolCallID),
		zap.String("tool", tc.ToolName))
	return map[string]any{}
}

func decodeObject(s string) (map[string]any, bool) {
	var args map[string]any
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, false
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, true
}

// WrapStream runs doStream and returns its result untouched. Streamed tool
// calls are not inspected.
func (m *Middleware) WrapStream(ctx context.Context, doStream StreamFunc, _ Params) (*StreamResult, error) {
	return doStream(ctx)
}
