package promptspeak

import (
	"context"
	"encoding/json"

	"github.com/ppiankov/promptspeak/internal/identity"
	"github.com/ppiankov/promptspeak/internal/policy"
	"github.com/ppiankov/promptspeak/internal/telemetry"
)

// CallOptions carries host-framework metadata for one tool invocation.
type CallOptions struct {
	ToolCallID string
	Metadata   map[string]any
}

// ExecuteFunc is the body of a tool.
type ExecuteFunc[I, O any] func(ctx context.Context, input I, opts CallOptions) (O, error)

// Tool describes a callable tool. Only Execute is replaced by GovernedTool;
// every other field passes through unchanged.
type Tool[I, O any] struct {
	Name        string
	Description string
	// Parameters is the tool's input schema, opaque to the guard.
	Parameters any
	Extensions map[string]any
	Execute    ExecuteFunc[I, O]
}

// Outcome is the result of a governed invocation: the wrapped tool's
// result when allowed, an Interception otherwise.
type Outcome[O any] struct {
	Result       O
	Interception *Interception
}

// Allowed reports whether the wrapped tool ran.
func (o Outcome[O]) Allowed() bool {
	return o.Interception == nil
}

// GovernedTool wraps t so every invocation is evaluated before it runs.
// Blocked and held calls never reach t.Execute and return an Interception.
// The engine is resolved once, at wrap time.
func GovernedTool[I, O any](t Tool[I, O], opts ...ToolOption) Tool[I, Outcome[O]] {
	cfg := toolConfig{
		frame:          DefaultFrame,
		sensitiveCheck: true,
	}
	for _, o := range opts {
		o.applyTool(&cfg)
	}

	agentID := cfg.agentID
	if agentID == "" {
		agentID = identity.NewAgentID(identity.ToolAgentPrefix)
	}

	var eval *policy.Evaluator
	if t.Execute != nil {
		eval = &policy.Evaluator{
			Engine:     resolveEngine(cfg),
			Classifier: cfg.shared.classifier,
			Sink:       cfg.shared.sink,
			Logger:     cfg.shared.logger,
			Tracer:     cfg.shared.tracer,
			Metrics:    cfg.shared.metrics,
			Surface:    telemetry.SurfaceTool,
		}
	}
	name := toolName(t)

	return Tool[I, Outcome[O]]{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  t.Parameters,
		Extensions:  t.Extensions,
		Execute: func(ctx context.Context, input I, callOpts CallOptions) (Outcome[O], error) {
			if t.Execute == nil {
				return Outcome[O]{}, ErrNoExecute
			}

			ev := eval.EvaluateCall(ctx, policy.Call{
				Tool:           name,
				Arguments:      argumentsOf(input),
				AgentID:        agentID,
				Frame:          cfg.frame,
				SensitiveCheck: cfg.sensitiveCheck,
				EventPrefix:    identity.ToolEventPrefix,
			})

			switch ev.Decision {
			case Held:
				if cfg.onHeld != nil {
					cfg.onHeld(*ev.HoldRequest)
				}
				return intercepted[O](ev), nil
			case Blocked:
				if cfg.onBlocked != nil {
					cfg.onBlocked(ev)
				}
				return intercepted[O](ev), nil
			}

			res, err := t.Execute(ctx, input, callOpts)
			return Outcome[O]{Result: res}, err
		},
	}
}

func resolveEngine(cfg toolConfig) Engine {
	if cfg.engine != nil {
		return cfg.engine
	}
	if cfg.handle != nil {
		return cfg.handle.Engine()
	}
	return DefaultHandle.Engine()
}

func intercepted[O any](ev GovernanceEvent) Outcome[O] {
	ic := InterceptionFor(ev)
	return Outcome[O]{Interception: &ic}
}

// toolName is the name the engine sees: Name, else Description.
func toolName[I, O any](t Tool[I, O]) string {
	if t.Name != "" {
		return t.Name
	}
	return t.Description
}

// argumentsOf converts a tool input into an argument map. Maps pass
// through; structs go through their JSON form; anything that is not a
// JSON object lands under the "input" key.
func argumentsOf(input any) map[string]any {
	switch v := input.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return v
	}
	data, err := json.Marshal(input)
	if err != nil {
		return map[string]any{"input": input}
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil || args == nil {
		return map[string]any{"input": input}
	}
	return args
}
