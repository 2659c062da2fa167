package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	title := fmt.Sprintf("PromptSpeak: %s", event.Decision)
	if event.Type == EventDrift {
		title = fmt.Sprintf("PromptSpeak: %s drift", event.DriftSeverity)
	}

	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Tool:* %s", event.Tool)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Agent:* %s", event.AgentID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", severityFor(event))},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)},
	}
	if event.HoldID != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Hold:* %s", event.HoldID)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": title,
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("promptspeak %s: %s", event.Decision, event.Tool),
			"severity": severityFor(event),
			"source":   "promptspeak",
			"custom_details": map[string]any{
				"event_id": event.EventID,
				"agent_id": event.AgentID,
				"tool":     event.Tool,
				"reason":   event.Reason,
				"hold_id":  event.HoldID,
			},
		},
	}
	return json.Marshal(payload)
}

// severityFor maps an alert onto PagerDuty severities.
func severityFor(event AlertEvent) string {
	if event.Type == EventDrift {
		switch event.DriftSeverity {
		case "critical":
			return "critical"
		case "high":
			return "error"
		case "medium":
			return "warning"
		default:
			return "info"
		}
	}
	switch event.Decision {
	case EventBlocked:
		return "error"
	case EventHeld:
		return "warning"
	default:
		return "info"
	}
}
