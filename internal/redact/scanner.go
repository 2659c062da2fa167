package redact

import (
	"regexp"
	"sort"
	"strings"
)

// PatternType identifies the category of sensitive data.
type PatternType string

const (
	PatternSSN        PatternType = "SSN"
	PatternCard       PatternType = "CARD"
	PatternBearer     PatternType = "BEARER"
	PatternAPIKey     PatternType = "API_KEY"
	PatternAWSKey     PatternType = "AWS_KEY"
	PatternPrivateKey PatternType = "PRIVATE_KEY"
	PatternCred       PatternType = "CRED"
)

// Match is a single occurrence of sensitive data in text.
type Match struct {
	Type  PatternType `json:"type"`
	Value string      `json:"value"`
	Start int         `json:"start"`
	End   int         `json:"end"`
}

// Compiled patterns for sensitive data detection.
var (
	// US social security numbers in the dashed form.
	ssnRe = regexp.MustCompile(`\b[0-9]{3}-[0-9]{2}-[0-9]{4}\b`)

	// 16-digit cards in groups of four, and 15-digit Amex (4-6-5).
	// Candidates must also pass the Luhn check.
	cardRe = regexp.MustCompile(`\b(?:[0-9]{4}[ -]?){3}[0-9]{4}\b|\b[0-9]{4}[ -]?[0-9]{6}[ -]?[0-9]{5}\b`)

	// Authorization header values.
	bearerRe = regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._~+/=\-]{16,}`)

	// Provider-style secret keys: sk-..., pk_live_..., ghp_..., xoxb-...
	apiKeyRe = regexp.MustCompile(`\b(?:(?:sk|pk|rk)[-_](?:live[-_]|test[-_]|proj[-_])?[A-Za-z0-9]{16,}|gh[pousr]_[A-Za-z0-9]{36}|xox[abprs]-[A-Za-z0-9\-]{10,})`)

	// AWS access key ids.
	awsKeyRe = regexp.MustCompile(`\b(?:AKIA|ASIA)[0-9A-Z]{16}\b`)

	// PEM private key headers.
	privateKeyRe = regexp.MustCompile(`-----BEGIN (?:[A-Z]+ )?PRIVATE KEY-----`)

	// Credentials: key=value or "key":"value" pairs where key names a secret.
	credKVRe = regexp.MustCompile(`(?i)(?:password|passwd|pwd|client_secret|secret|api_key|apikey|access_token|auth_token|refresh_token|private_key)["']?[ \t]*[=:][ \t]*["']?[^\s"',}]{4,}`)
)

type detector struct {
	typ   PatternType
	re    *regexp.Regexp
	valid func(string) bool
}

var detectors = []detector{
	{typ: PatternPrivateKey, re: privateKeyRe},
	{typ: PatternBearer, re: bearerRe},
	{typ: PatternAPIKey, re: apiKeyRe},
	{typ: PatternAWSKey, re: awsKeyRe},
	{typ: PatternCred, re: credKVRe},
	{typ: PatternSSN, re: ssnRe},
	{typ: PatternCard, re: cardRe, valid: luhnValid},
}

// Scan finds all sensitive patterns in text and returns deduplicated matches
// sorted by position (earliest first).
func Scan(text string) []Match {
	return ScanWithExtra(text, nil)
}

// ScanWithExtra is like Scan but also applies operator-defined patterns.
func ScanWithExtra(text string, extra []ExtraPattern) []Match {
	seen := make(map[string]bool)
	var matches []Match

	add := func(typ PatternType, value string, start int) {
		value = strings.TrimRight(value, ".,;:\"'`)}]")
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		matches = append(matches, Match{Type: typ, Value: value, Start: start, End: start + len(value)})
	}

	for _, d := range detectors {
		for _, loc := range d.re.FindAllStringIndex(text, -1) {
			v := text[loc[0]:loc[1]]
			if d.valid != nil && !d.valid(v) {
				continue
			}
			add(d.typ, v, loc[0])
		}
	}

	for _, ep := range extra {
		for _, loc := range ep.Regex.FindAllStringIndex(text, -1) {
			add(ep.Type, text[loc[0]:loc[1]], loc[0])
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})

	return matches
}

// ContainsSensitiveData reports whether text holds at least one match.
// It stops at the first hit.
func ContainsSensitiveData(text string) bool {
	return containsAny(text, nil)
}

func containsAny(text string, extra []ExtraPattern) bool {
	for _, d := range detectors {
		if d.valid == nil {
			if d.re.MatchString(text) {
				return true
			}
			continue
		}
		for _, v := range d.re.FindAllString(text, -1) {
			if d.valid(v) {
				return true
			}
		}
	}
	for _, ep := range extra {
		if ep.Regex.MatchString(text) {
			return true
		}
	}
	return false
}

// luhnValid runs the Luhn checksum over the digits in s.
func luhnValid(s string) bool {
	var digits []int
	for _, c := range s {
		if c >= '0' && c <= '9' {
			digits = append(digits, int(c-'0'))
		}
	}
	if len(digits) < 13 {
		return false
	}
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
