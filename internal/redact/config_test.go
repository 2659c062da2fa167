package redact

import (
	"strings"
	"testing"
)

func TestCompilePatternsValid(t *testing.T) {
	patterns, err := CompilePatterns([]PatternDef{
		{Name: "employee_id", Regex: `\bEMP-[0-9]{6}\b`},
	})
	if err != nil {
		t.Fatalf("CompilePatterns: %v", err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	if patterns[0].Type != "EMPLOYEE_ID" {
		t.Errorf("expected type EMPLOYEE_ID, got %s", patterns[0].Type)
	}
}

func TestCompilePatternsInvalidRegex(t *testing.T) {
	_, err := CompilePatterns([]PatternDef{{Name: "bad", Regex: "[unclosed"}})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
	if !strings.Contains(err.Error(), "invalid regex") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCompilePatternsMissingName(t *testing.T) {
	if _, err := CompilePatterns([]PatternDef{{Regex: "x"}}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if _, err := CompilePatterns([]PatternDef{{Name: "x"}}); err == nil {
		t.Fatal("expected error for missing regex")
	}
}

func TestClassifierExtraPatterns(t *testing.T) {
	c, err := NewClassifier([]PatternDef{{Name: "employee_id", Regex: `\bEMP-[0-9]{6}\b`}})
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	text := `{"employee":"EMP-123456"}`
	if ContainsSensitiveData(text) {
		t.Fatal("built-in detectors should not match employee ids")
	}
	if !c.ContainsSensitiveData(text) {
		t.Fatal("classifier should apply extra pattern")
	}
	matches := c.Scan(text)
	if len(matches) != 1 || matches[0].Type != "EMPLOYEE_ID" {
		t.Fatalf("unexpected matches: %v", matches)
	}
}

func TestNilClassifierUsesBuiltins(t *testing.T) {
	var c *Classifier
	if !c.ContainsSensitiveData("SSN: 123-45-6789") {
		t.Fatal("nil classifier should still detect SSNs")
	}
	if len(c.Scan("nothing")) != 0 {
		t.Fatal("expected no matches")
	}
}
