package policydiff

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ppiankov/promptspeak/internal/policy"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// RuleChange represents a tool rule or pattern that was added or removed.
type RuleChange struct {
	Type    string `json:"type"` // "added", "removed"
	Section string `json:"section"`
	Rule    string `json:"rule"`
}

// DiffResult holds the comparison of two PolicyConfigs.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	RuleChanges []RuleChange `json:"rule_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// modeStrictness orders modes from loosest to strictest.
var modeStrictness = map[policy.Mode]int{
	policy.ModePermissive: 0,
	policy.ModeFlexible:   1,
	policy.ModeStandard:   1,
	policy.ModeStrict:     2,
}

// Diff compares two PolicyConfigs and returns the differences.
func Diff(old, new *policy.PolicyConfig) *DiffResult {
	r := &DiffResult{}

	if old.Mode != new.Mode {
		r.Changes = append(r.Changes, Change{
			Field:   "mode",
			Old:     string(old.Mode),
			New:     string(new.Mode),
			Comment: strictness(modeStrictness[new.Mode]-modeStrictness[old.Mode], true),
		})
	}

	// Lower thresholds flag drift sooner.
	diffFloat(r, "drift_threshold", old.DriftThreshold, new.DriftThreshold)
	diffFloat(r, "baseline_deviation_threshold", old.BaselineDeviationThreshold, new.BaselineDeviationThreshold)

	diffBool(r, "sensitive_data", old.SensitiveData, new.SensitiveData)
	diffBool(r, "hold_on_forbidden", old.HoldOnForbidden, new.HoldOnForbidden)
	diffDuration(r, "hold_timeout", old.HoldTimeout, new.HoldTimeout)
	diffDuration(r, "breaker_timeout", old.BreakerTimeout, new.BreakerTimeout)
	diffString(r, "frame", old.Frame, new.Frame)
	diffString(r, "agent_id", old.AgentID, new.AgentID)
	diffString(r, "holds.driver", old.Holds.Driver, new.Holds.Driver)
	diffString(r, "holds.path", old.Holds.Path, new.Holds.Path)
	if old.BaselineWarmup != new.BaselineWarmup {
		r.Changes = append(r.Changes, Change{
			Field: "baseline_warmup",
			Old:   strconv.Itoa(old.BaselineWarmup),
			New:   strconv.Itoa(new.BaselineWarmup),
		})
	}

	diffList(r, "denied_tools", old.DeniedTools, new.DeniedTools)
	diffList(r, "hold_patterns", old.HoldPatterns, new.HoldPatterns)
	diffList(r, "mcp_validation_tools", old.MCPValidationTools, new.MCPValidationTools)
	diffList(r, "sensitive_patterns", patternKeys(old), patternKeys(new))

	diffMapKeys(r, "agents", agentKeys(old), agentKeys(new))
	diffMapKeys(r, "alerts", alertKeys(old), alertKeys(new))

	r.HasChanges = len(r.Changes) > 0 || len(r.RuleChanges) > 0
	return r
}

func strictness(delta int, higherIsStricter bool) string {
	switch {
	case delta == 0:
		return ""
	case (delta > 0) == higherIsStricter:
		return "stricter"
	default:
		return "looser"
	}
}

func diffFloat(r *DiffResult, field string, old, new float64) {
	if old == new {
		return
	}
	delta := 1
	if new < old {
		delta = -1
	}
	r.Changes = append(r.Changes, Change{
		Field:   field,
		Old:     strconv.FormatFloat(old, 'g', -1, 64),
		New:     strconv.FormatFloat(new, 'g', -1, 64),
		Comment: strictness(delta, false),
	})
}

func diffBool(r *DiffResult, field string, old, new bool) {
	if old == new {
		return
	}
	comment := "looser"
	if new {
		comment = "stricter"
	}
	r.Changes = append(r.Changes, Change{
		Field:   field,
		Old:     strconv.FormatBool(old),
		New:     strconv.FormatBool(new),
		Comment: comment,
	})
}

func diffDuration(r *DiffResult, field string, old, new time.Duration) {
	if old != new {
		r.Changes = append(r.Changes, Change{Field: field, Old: old.String(), New: new.String()})
	}
}

func diffString(r *DiffResult, field, old, new string) {
	if old != new {
		r.Changes = append(r.Changes, Change{Field: field, Old: old, New: new})
	}
}

func diffList(r *DiffResult, section string, oldItems, newItems []string) {
	oldSet := toSet(oldItems)
	newSet := toSet(newItems)
	for _, item := range newItems {
		if !oldSet[item] {
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "added", Section: section, Rule: item})
			oldSet[item] = true
		}
	}
	for _, item := range oldItems {
		if !newSet[item] {
			r.RuleChanges = append(r.RuleChanges, RuleChange{Type: "removed", Section: section, Rule: item})
			newSet[item] = true
		}
	}
}

func diffMapKeys(r *DiffResult, section string, oldKeys, newKeys []string) {
	oldSet := toSet(oldKeys)
	newSet := toSet(newKeys)

	for _, k := range newKeys {
		if !oldSet[k] {
			r.Changes = append(r.Changes, Change{Field: section, New: k, Comment: "added"})
		}
	}
	for _, k := range oldKeys {
		if !newSet[k] {
			r.Changes = append(r.Changes, Change{Field: section, Old: k, Comment: "removed"})
		}
	}
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

func agentKeys(cfg *policy.PolicyConfig) []string {
	keys := make([]string, 0, len(cfg.Agents))
	for k := range cfg.Agents {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func alertKeys(cfg *policy.PolicyConfig) []string {
	keys := make([]string, 0, len(cfg.Alerts))
	for _, a := range cfg.Alerts {
		keys = append(keys, a.URL)
	}
	sort.Strings(keys)
	return keys
}

func patternKeys(cfg *policy.PolicyConfig) []string {
	keys := make([]string, 0, len(cfg.SensitivePatterns))
	for _, p := range cfg.SensitivePatterns {
		keys = append(keys, fmt.Sprintf("%s=%s", p.Name, p.Regex))
	}
	return keys
}
