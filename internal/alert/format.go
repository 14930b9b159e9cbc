package alert

import (
	"encoding/json"
	"fmt"
)

// Payload formats accepted in AlertConfig.Format.
const (
	FormatGeneric   = "generic"
	FormatSlack     = "slack"
	FormatPagerDuty = "pagerduty"
)

// FormatPayload builds the webhook body for the given format.
// Unknown formats fall back to the generic JSON event.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case FormatSlack:
		return json.Marshal(slackMessage(event))
	case FormatPagerDuty:
		return json.Marshal(pagerDutyEvent(event))
	default:
		return json.Marshal(event)
	}
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

func slackMessage(event AlertEvent) map[string][]slackBlock {
	field := func(label, value string) slackText {
		return slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s:* %s", label, value)}
	}
	fields := []slackText{
		field("Actor", fmt.Sprintf("%s (%s)", event.ActorID, event.Role)),
		field("Resource", event.Resource),
		field("Risk", fmt.Sprintf("%.4f", event.RiskScore)),
		field("Reason", event.Reason),
	}
	if event.ActionID != "" {
		fields = append(fields, field("Action ID", "`"+event.ActionID+"`"))
	}
	return map[string][]slackBlock{"blocks": {
		{Type: "header", Text: &slackText{Type: "plain_text", Text: "toolgate: " + headline(event)}},
		{Type: "section", Fields: fields},
	}}
}

type pagerDutyPayload struct {
	Summary  string         `json:"summary"`
	Severity string         `json:"severity"`
	Source   string         `json:"source"`
	Details  map[string]any `json:"custom_details"`
}

type pagerDutyBody struct {
	EventAction string           `json:"event_action"`
	DedupKey    string           `json:"dedup_key,omitempty"`
	Payload     pagerDutyPayload `json:"payload"`
}

// pagerDutyEvent keys incidents by action id so that a hold and its
// resolution land on the same incident.
func pagerDutyEvent(event AlertEvent) pagerDutyBody {
	return pagerDutyBody{
		EventAction: "trigger",
		DedupKey:    event.ActionID,
		Payload: pagerDutyPayload{
			Summary:  fmt.Sprintf("toolgate %s: %s", headline(event), event.Resource),
			Severity: severityFor(event),
			Source:   "toolgate",
			Details: map[string]any{
				"action_id":   event.ActionID,
				"actor_id":    event.ActorID,
				"role":        event.Role,
				"action":      event.Action,
				"resource":    event.Resource,
				"risk_score":  event.RiskScore,
				"reason":      event.Reason,
				"policy_hash": event.PolicyHash,
			},
		},
	}
}

func headline(event AlertEvent) string {
	if event.Type != "" {
		return event.Type
	}
	return event.Decision
}

func severityFor(event AlertEvent) string {
	switch {
	case event.Type == TypeIntegrityViolation, event.Type == TypeSigningUnavailable:
		return "critical"
	case event.Decision == "DENIED":
		return "error"
	case event.RiskScore >= 0.5:
		return "warning"
	default:
		return "info"
	}
}
