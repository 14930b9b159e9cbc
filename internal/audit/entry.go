package audit

import (
	"time"
	"unicode/utf8"

	"github.com/ppiankov/toolgate/internal/model"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// GenesisSignature stands in for the previous signature of the first entry.
const GenesisSignature = "genesis:0000000000000000000000000000000000000000000000000000000000000000"

// Entry is one immutable record in the audit ledger.
// Signature covers every other field plus the previous entry's signature.
type Entry struct {
	ID         uint64            `json:"id"`
	Timestamp  string            `json:"ts"`
	ActionID   string            `json:"action_id"`
	ActorID    string            `json:"actor_id"`
	Role       model.Role        `json:"role"`
	Action     model.ActionKind  `json:"action"`
	Resource   string            `json:"resource"`
	Decision   model.Decision    `json:"decision"`
	RiskScore  float64           `json:"risk_score"`
	Reason     string            `json:"reason"`
	PolicyHash string            `json:"policy_hash"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Signature  string            `json:"signature,omitempty"`
}

// Time parses the entry timestamp.
func (e Entry) Time() (time.Time, error) {
	return time.Parse(TimestampFormat, e.Timestamp)
}

func (e Entry) clone() Entry {
	if e.Metadata != nil {
		m := make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			m[k] = v
		}
		e.Metadata = m
	}
	return e
}

func (e Entry) validate() error {
	if !e.Role.Valid() {
		return &model.ValidationError{Field: "role", Value: e.Role, Reason: "unknown role"}
	}
	if _, known := e.Action.RequiredPermission(); !known {
		return &model.ValidationError{Field: "action", Value: e.Action, Reason: "unknown action kind"}
	}
	if !e.Decision.Terminal() && e.Decision != model.PendingApproval {
		return &model.ValidationError{Field: "decision", Value: e.Decision, Reason: "unknown decision"}
	}
	if e.ActorID == "" {
		return &model.ValidationError{Field: "actor_id", Value: e.ActorID, Reason: "must not be empty"}
	}
	return e.checkText()
}

// checkText rejects strings that are not valid UTF-8. JSON encoding would
// replace the bad bytes with U+FFFD, so distinct values would share one
// signing input.
func (e Entry) checkText() error {
	fields := []struct{ name, value string }{
		{"action_id", e.ActionID},
		{"actor_id", e.ActorID},
		{"resource", e.Resource},
		{"reason", e.Reason},
		{"policy_hash", e.PolicyHash},
		{"ts", e.Timestamp},
		{"signature", e.Signature},
	}
	for _, f := range fields {
		if !utf8.ValidString(f.value) {
			return &model.ValidationError{Field: f.name, Value: f.value, Reason: "must be valid UTF-8"}
		}
	}
	for k, v := range e.Metadata {
		if !utf8.ValidString(k) || !utf8.ValidString(v) {
			return &model.ValidationError{Field: "metadata", Value: k, Reason: "keys and values must be valid UTF-8"}
		}
	}
	return nil
}
