package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/promptspeak/internal/gatekeeper"
	"github.com/ppiankov/promptspeak/internal/identity"
	"github.com/ppiankov/promptspeak/internal/model"
	"github.com/ppiankov/promptspeak/internal/policy"
)

// --- Input/Output types ---

// CheckInput defines parameters for the promptspeak_check tool.
type CheckInput struct {
	Tool      string         `json:"tool" jsonschema:"name of the tool the agent wants to call"`
	Arguments map[string]any `json:"arguments,omitempty" jsonschema:"arguments of the proposed call"`
	AgentID   string         `json:"agent_id,omitempty" jsonschema:"calling agent; defaults to the server agent"`
	Frame     string         `json:"frame,omitempty" jsonschema:"policy frame label"`
}

// CheckOutput contains the governance decision.
type CheckOutput struct {
	EventID     string             `json:"event_id"`
	Tool        string             `json:"tool"`
	Decision    string             `json:"decision"`
	Reason      string             `json:"reason"`
	HoldID      string             `json:"hold_id,omitempty"`
	Suggestion  string             `json:"suggestion,omitempty"`
	DriftAlerts []model.DriftAlert `json:"drift_alerts,omitempty"`
}

// PendingInput has no parameters.
type PendingInput struct{}

// PendingOutput lists all pending holds.
type PendingOutput struct {
	Holds []PendingItem `json:"holds"`
}

// PendingItem describes a single hold request.
type PendingItem struct {
	HoldID    string `json:"hold_id"`
	AgentID   string `json:"agent_id"`
	Tool      string `json:"tool"`
	Reason    string `json:"reason"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

// ResolveInput defines parameters for the promptspeak_resolve tool.
type ResolveInput struct {
	HoldID     string `json:"hold_id" jsonschema:"id of the hold to resolve"`
	Resolution string `json:"resolution" jsonschema:"approve or deny"`
	Duration   string `json:"duration,omitempty" jsonschema:"how long an approval stays usable, e.g. 10m; defaults to 5m"`
}

// ResolveOutput confirms the resolution.
type ResolveOutput struct {
	HoldID            string `json:"hold_id"`
	Status            string `json:"status"`
	Duration          string `json:"duration,omitempty"`
	ApprovalExpiresAt string `json:"approval_expires_at,omitempty"`
}

// ResetAgentInput defines parameters for the promptspeak_reset_agent tool.
type ResetAgentInput struct {
	AgentID string `json:"agent_id" jsonschema:"agent whose baseline and breaker are cleared"`
}

// ResetAgentOutput reports the breaker state after the reset.
type ResetAgentOutput struct {
	AgentID string `json:"agent_id"`
	Breaker string `json:"breaker"`
}

// --- Handlers ---

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if strings.TrimSpace(input.Tool) == "" {
		return nil, CheckOutput{}, fmt.Errorf("tool is required")
	}
	eval, cfg := s.evaluator()

	agentID := input.AgentID
	if agentID == "" {
		agentID = s.agentID
	}
	frame := input.Frame
	if frame == "" {
		frame = cfg.Frame
	}

	ev := eval.EvaluateCall(ctx, policy.Call{
		Tool:           input.Tool,
		Arguments:      input.Arguments,
		AgentID:        agentID,
		Frame:          frame,
		SensitiveCheck: cfg.SensitiveData,
		EventPrefix:    identity.MCPEventPrefix,
	})

	out := CheckOutput{
		EventID:     ev.EventID,
		Tool:        ev.Tool,
		Decision:    string(ev.Decision),
		Reason:      ev.Reason,
		DriftAlerts: ev.DriftAlerts,
	}
	if ev.Decision != model.Allowed {
		ic := model.InterceptionFor(ev)
		out.HoldID = ic.HoldID
		out.Suggestion = ic.Suggestion
	}
	return nil, out, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list, err := s.gk.PendingHolds(ctx)
	if err != nil {
		return nil, PendingOutput{}, err
	}

	items := make([]PendingItem, len(list))
	for i, h := range list {
		items[i] = PendingItem{
			HoldID:    h.HoldID,
			AgentID:   h.AgentID,
			Tool:      h.Tool,
			Reason:    h.Reason,
			CreatedAt: h.CreatedAt.Format(time.RFC3339),
			ExpiresAt: h.ExpiresAt.Format(time.RFC3339),
		}
	}
	return nil, PendingOutput{Holds: items}, nil
}

func (s *Server) handleResolve(ctx context.Context, req *mcpsdk.CallToolRequest, input ResolveInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	duration := gatekeeper.DefaultApprovalTTL
	if input.Duration != "" {
		var err error
		duration, err = time.ParseDuration(input.Duration)
		if err != nil {
			return nil, ResolveOutput{}, fmt.Errorf("invalid duration %q: %w", input.Duration, err)
		}
		if duration <= 0 {
			return nil, ResolveOutput{}, fmt.Errorf("duration must be positive, got %s", input.Duration)
		}
	}

	var (
		hold model.HoldRequest
		err  error
	)
	switch strings.ToLower(input.Resolution) {
	case "approve", "approved":
		hold, err = s.gk.ApproveHold(ctx, input.HoldID, duration)
	case "deny", "denied":
		hold, err = s.gk.DenyHold(ctx, input.HoldID)
	default:
		return nil, ResolveOutput{}, fmt.Errorf("invalid resolution %q: want approve or deny", input.Resolution)
	}
	if err != nil {
		return nil, ResolveOutput{}, err
	}
	s.metrics.RecordHoldResolution(hold.Status)

	out := ResolveOutput{
		HoldID: hold.HoldID,
		Status: string(hold.Status),
	}
	if hold.ApprovalExpiresAt != nil {
		out.Duration = duration.String()
		out.ApprovalExpiresAt = hold.ApprovalExpiresAt.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleResetAgent(ctx context.Context, req *mcpsdk.CallToolRequest, input ResetAgentInput) (*mcpsdk.CallToolResult, ResetAgentOutput, error) {
	if input.AgentID == "" {
		return nil, ResetAgentOutput{}, fmt.Errorf("agent_id is required")
	}
	s.gk.ResetAgent(input.AgentID)
	return nil, ResetAgentOutput{
		AgentID: input.AgentID,
		Breaker: string(s.gk.BreakerState(input.AgentID)),
	}, nil
}
