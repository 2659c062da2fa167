package identity

import "strings"

// AgentProfile defines the tool scope and frames for a registered agent.
type AgentProfile struct {
	AllowTools []string `yaml:"allow_tools" json:"allow_tools"`
	DenyTools  []string `yaml:"deny_tools,omitempty" json:"deny_tools,omitempty"`
	Frames     []string `yaml:"frames,omitempty" json:"frames,omitempty"`
}

// Registry maps agent IDs to their profiles. Unregistered agents are
// unrestricted; the registry only narrows known agents.
type Registry struct {
	agents map[string]*AgentProfile
}

// NewRegistry creates a Registry from an agents config map.
func NewRegistry(agents map[string]*AgentProfile) *Registry {
	if agents == nil {
		agents = make(map[string]*AgentProfile)
	}
	return &Registry{agents: agents}
}

// Lookup returns the profile for the given ID, or nil if not found.
func (r *Registry) Lookup(agentID string) *AgentProfile {
	if r == nil {
		return nil
	}
	return r.agents[agentID]
}

// IsRegistered returns true if the agent ID exists in the registry.
func (r *Registry) IsRegistered(agentID string) bool {
	return r.Lookup(agentID) != nil
}

// ToolInScope reports whether agentID may call tool. Deny patterns win
// over allow patterns. An empty AllowTools list allows every tool.
func (r *Registry) ToolInScope(agentID, tool string) bool {
	p := r.Lookup(agentID)
	if p == nil {
		return true
	}
	for _, pattern := range p.DenyTools {
		if MatchPattern(pattern, tool) {
			return false
		}
	}
	if len(p.AllowTools) == 0 {
		return true
	}
	for _, pattern := range p.AllowTools {
		if MatchPattern(pattern, tool) {
			return true
		}
	}
	return false
}

// FrameAllowed reports whether agentID may operate under frame.
// An empty Frames list allows any frame.
func (r *Registry) FrameAllowed(agentID, frame string) bool {
	p := r.Lookup(agentID)
	if p == nil || len(p.Frames) == 0 {
		return true
	}
	for _, f := range p.Frames {
		if f == "*" || f == frame {
			return true
		}
	}
	return false
}

// MatchPattern checks if a value matches a glob-like pattern.
// Supports: *x* (contains), *_suffix (suffix), prefix_* (prefix), exact match.
// Matching is case-insensitive.
func MatchPattern(pattern, value string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}

	lowerValue := strings.ToLower(value)
	lowerPattern := strings.ToLower(pattern)

	if strings.HasPrefix(lowerPattern, "*") && strings.HasSuffix(lowerPattern, "*") {
		return strings.Contains(lowerValue, lowerPattern[1:len(lowerPattern)-1])
	}
	if strings.HasPrefix(lowerPattern, "*") {
		return strings.HasSuffix(lowerValue, lowerPattern[1:])
	}
	if strings.HasSuffix(lowerPattern, "*") {
		return strings.HasPrefix(lowerValue, lowerPattern[:len(lowerPattern)-1])
	}
	return lowerValue == lowerPattern
}

// MatchAny returns the first pattern in patterns matching value.
func MatchAny(patterns []string, value string) (string, bool) {
	for _, p := range patterns {
		if MatchPattern(p, value) {
			return p, true
		}
	}
	return "", false
}
