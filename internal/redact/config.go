package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternDef defines an operator-supplied pattern, usually from the
// sensitive_patterns list of a policy file.
type PatternDef struct {
	Name  string `yaml:"name" json:"name"`
	Regex string `yaml:"regex" json:"regex"`
}

// ExtraPattern is a compiled custom pattern ready for scanning.
type ExtraPattern struct {
	Name  string
	Regex *regexp.Regexp
	Type  PatternType
}

// CompilePatterns validates and compiles pattern definitions.
func CompilePatterns(defs []PatternDef) ([]ExtraPattern, error) {
	var patterns []ExtraPattern
	for i, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("sensitive_patterns[%d]: name is required", i)
		}
		if def.Regex == "" {
			return nil, fmt.Errorf("sensitive_patterns[%d]: regex is required", i)
		}
		re, err := regexp.Compile(def.Regex)
		if err != nil {
			return nil, fmt.Errorf("sensitive_patterns[%d] %q: invalid regex: %w", i, def.Name, err)
		}
		patterns = append(patterns, ExtraPattern{
			Name:  def.Name,
			Regex: re,
			Type:  PatternType(strings.ToUpper(def.Name)),
		})
	}
	return patterns, nil
}

// Classifier detects sensitive data using the built-in detectors plus
// any extra patterns. The zero value uses built-ins only.
type Classifier struct {
	extra []ExtraPattern
}

// NewClassifier compiles defs into a classifier.
func NewClassifier(defs []PatternDef) (*Classifier, error) {
	extra, err := CompilePatterns(defs)
	if err != nil {
		return nil, err
	}
	return &Classifier{extra: extra}, nil
}

// ContainsSensitiveData reports whether text holds sensitive data.
func (c *Classifier) ContainsSensitiveData(text string) bool {
	if c == nil {
		return ContainsSensitiveData(text)
	}
	return containsAny(text, c.extra)
}

// Scan returns every match in text, sorted by position.
func (c *Classifier) Scan(text string) []Match {
	if c == nil {
		return Scan(text)
	}
	return ScanWithExtra(text, c.extra)
}
