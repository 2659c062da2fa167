package redact

import (
	"sort"
	"strings"
)

// DefaultPIIKeys are the argument keys masked before events are logged.
var DefaultPIIKeys = []string{
	"name", "email", "phone", "ssn", "social_security",
	"address", "date_of_birth", "dob", "passport",
	"credit_card", "card_number", "cvv", "password",
	"token", "api_key", "secret", "authorization",
}

// MaskValue replaces a value with "***". Numbers and bools are preserved.
func MaskValue(v any) any {
	switch v.(type) {
	case int, int64, float64, bool:
		return v
	case nil:
		return nil
	default:
		return "***"
	}
}

// RedactMap redacts specified keys in a map. Nested maps are walked;
// string values under other keys are masked when they hold sensitive data.
func RedactMap(data map[string]any, keys []string) map[string]any {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[strings.ToLower(k)] = true
	}
	return redactMap(data, keySet)
}

func redactMap(data map[string]any, keySet map[string]bool) map[string]any {
	if data == nil {
		return nil
	}
	result := make(map[string]any, len(data))
	for k, v := range data {
		if keySet[strings.ToLower(k)] {
			result[k] = MaskValue(v)
			continue
		}
		switch tv := v.(type) {
		case map[string]any:
			result[k] = redactMap(tv, keySet)
		case string:
			if ContainsSensitiveData(tv) {
				result[k] = RedactText(tv)
			} else {
				result[k] = tv
			}
		default:
			result[k] = v
		}
	}
	return result
}

// RedactAuto redacts default PII keys plus any extra keys from a map.
func RedactAuto(data map[string]any, extraKeys []string) map[string]any {
	allKeys := append([]string{}, DefaultPIIKeys...)
	allKeys = append(allKeys, extraKeys...)
	return RedactMap(data, allKeys)
}

// RedactText replaces every sensitive match in text with a typed marker
// such as "[SSN]".
func RedactText(text string) string {
	matches := Scan(text)
	if len(matches) == 0 {
		return text
	}
	// Longest values first so overlapping matches (a bearer header and the
	// key inside it) collapse into the outer marker.
	sort.SliceStable(matches, func(i, j int) bool {
		return len(matches[i].Value) > len(matches[j].Value)
	})
	result := text
	for _, m := range matches {
		result = strings.ReplaceAll(result, m.Value, "["+string(m.Type)+"]")
	}
	return result
}
