package alert

// Event types that are not decisions.
const (
	TypeIntegrityViolation = "integrity_violation"
	TypeSigningUnavailable = "signing_unavailable"
)

// AlertConfig defines a webhook alert destination.
type AlertConfig struct {
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Events  []string          `yaml:"events"  json:"events"` // ["DENIED", "PENDING_APPROVAL", "integrity_violation"]
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// AlertEvent is the payload sent to webhook endpoints.
type AlertEvent struct {
	Timestamp  string  `json:"timestamp"`
	ActionID   string  `json:"action_id,omitempty"`
	ActorID    string  `json:"actor_id,omitempty"`
	Role       string  `json:"role,omitempty"`
	Action     string  `json:"action,omitempty"`
	Resource   string  `json:"resource,omitempty"`
	Decision   string  `json:"decision,omitempty"`
	Reason     string  `json:"reason"`
	RiskScore  float64 `json:"risk_score"`
	PolicyHash string  `json:"policy_hash,omitempty"`
	Type       string  `json:"type,omitempty"` // "integrity_violation" etc.
}
