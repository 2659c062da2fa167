package policydiff

import (
	"strings"
	"testing"

	"github.com/ppiankov/promptspeak/internal/alert"
	"github.com/ppiankov/promptspeak/internal/identity"
	"github.com/ppiankov/promptspeak/internal/policy"
)

func findChange(r *DiffResult, field string) (Change, bool) {
	for _, c := range r.Changes {
		if c.Field == field {
			return c, true
		}
	}
	return Change{}, false
}

func TestIdenticalPoliciesNoChanges(t *testing.T) {
	r := Diff(policy.DefaultConfig(), policy.DefaultConfig())
	if r.HasChanges {
		t.Errorf("expected no changes, got %d changes + %d rule changes",
			len(r.Changes), len(r.RuleChanges))
	}
}

func TestModeChangeStrictness(t *testing.T) {
	tests := []struct {
		from, to policy.Mode
		want     string
	}{
		{policy.ModeStandard, policy.ModeStrict, "stricter"},
		{policy.ModeStrict, policy.ModePermissive, "looser"},
		{policy.ModeStandard, policy.ModeFlexible, ""},
	}
	for _, tt := range tests {
		a := policy.DefaultConfig()
		b := policy.DefaultConfig()
		a.Mode, b.Mode = tt.from, tt.to

		c, ok := findChange(Diff(a, b), "mode")
		if !ok {
			t.Fatalf("%s→%s: mode change not found", tt.from, tt.to)
		}
		if c.Comment != tt.want {
			t.Errorf("%s→%s: got %q, want %q", tt.from, tt.to, c.Comment, tt.want)
		}
	}
}

func TestThresholdChange(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.DriftThreshold = 0.05

	c, ok := findChange(Diff(a, b), "drift_threshold")
	if !ok {
		t.Fatal("drift_threshold change not found")
	}
	if c.Old != "0.15" || c.New != "0.05" {
		t.Errorf("expected 0.15→0.05, got %s→%s", c.Old, c.New)
	}
	if c.Comment != "stricter" {
		t.Errorf("lower threshold should be stricter, got %q", c.Comment)
	}
}

func TestSensitiveDataDisabledIsLooser(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.SensitiveData = false

	c, ok := findChange(Diff(a, b), "sensitive_data")
	if !ok || c.Comment != "looser" {
		t.Fatalf("expected looser sensitive_data change, got %+v", c)
	}
}

func TestToolRuleChanges(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	a.DeniedTools = []string{"shell_exec", "rm_*"}
	b.DeniedTools = []string{"shell_exec", "drop_table"}
	b.HoldPatterns = []string{"send_*"}

	r := Diff(a, b)
	want := map[string]bool{
		"added denied_tools drop_table": true,
		"removed denied_tools rm_*":     true,
		"added hold_patterns send_*":    true,
	}
	if len(r.RuleChanges) != len(want) {
		t.Fatalf("expected %d rule changes, got %+v", len(want), r.RuleChanges)
	}
	for _, rc := range r.RuleChanges {
		key := rc.Type + " " + rc.Section + " " + rc.Rule
		if !want[key] {
			t.Errorf("unexpected rule change %q", key)
		}
	}
}

func TestAgentAndAlertSections(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	a.Agents = map[string]*identity.AgentProfile{"old-bot": {}}
	b.Agents = map[string]*identity.AgentProfile{"new-bot": {}}
	b.Alerts = []alert.AlertConfig{{URL: "https://example.com/hook"}}

	r := Diff(a, b)
	text := FormatText(r)
	for _, want := range []string{"agents: + new-bot", "agents: - old-bot", "alerts: + https://example.com/hook"} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}
}

func TestFormatTextNoChanges(t *testing.T) {
	r := Diff(policy.DefaultConfig(), policy.DefaultConfig())
	r.OldPath, r.NewPath = "a.yaml", "b.yaml"
	if !strings.Contains(FormatText(r), "No changes detected.") {
		t.Error("expected no-changes message")
	}
}

func TestFormatTextScalarsAndRules(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Mode = policy.ModeStrict
	b.DeniedTools = []string{"shell_exec"}

	text := FormatText(Diff(a, b))
	if !strings.Contains(text, "standard → strict  (stricter)") {
		t.Errorf("missing mode line:\n%s", text)
	}
	if !strings.Contains(text, "+ denied_tools: shell_exec") {
		t.Errorf("missing rule line:\n%s", text)
	}
}

func TestFormatTextSummaryLine(t *testing.T) {
	a := policy.DefaultConfig()
	b := policy.DefaultConfig()
	b.Mode = policy.ModeStrict
	b.SensitiveData = false
	b.DriftThreshold = 0.05

	text := FormatText(Diff(a, b))
	if !strings.Contains(text, "Summary: 2 stricter, 1 looser") {
		t.Errorf("missing summary:\n%s", text)
	}
}
