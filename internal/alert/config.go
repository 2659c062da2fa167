package alert

// Alert event names matched against AlertConfig.Events.
const (
	EventBlocked = "blocked"
	EventHeld    = "held"
	EventAllowed = "allowed"
	EventDrift   = "drift"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["blocked", "held", "drift"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp     string  `json:"timestamp"`
	EventID       string  `json:"event_id"`
	AgentID       string  `json:"agent_id"`
	Tool          string  `json:"tool"`
	Frame         string  `json:"frame,omitempty"`
	Decision      string  `json:"decision"`
	Reason        string  `json:"reason"`
	HoldID        string  `json:"hold_id,omitempty"`
	DriftSeverity string  `json:"drift_severity,omitempty"`
	DriftScore    float64 `json:"drift_score,omitempty"`
	PolicyHash    string  `json:"policy_hash,omitempty"`
	Type          string  `json:"type,omitempty"` // "drift"
}
