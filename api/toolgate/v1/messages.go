package toolgatev1

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// AuthorizeRequest asks for a decision on one action by the calling actor.
type AuthorizeRequest struct {
	Action    string            `json:"action"`
	Resource  string            `json:"resource"`
	Sensitive *bool             `json:"sensitive,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Breakdown explains a risk score term by term.
type Breakdown struct {
	Base        float64 `json:"base"`
	Role        float64 `json:"role"`
	Sensitivity float64 `json:"sensitivity"`
	Sensitive   bool    `json:"sensitive"`
	Tier        int     `json:"tier"`
	Score       float64 `json:"score"`
}

// Decision is returned by Authorize and Resolve.
type Decision struct {
	ActionID  string     `json:"action_id"`
	Decision  string     `json:"decision"`
	RiskScore float64    `json:"risk_score"`
	Threshold float64    `json:"threshold"`
	Reason    string     `json:"reason"`
	EntryID   uint64     `json:"entry_id"`
	Breakdown *Breakdown `json:"breakdown,omitempty"`
}

// ResolveRequest approves or denies a held action.
type ResolveRequest struct {
	ActionID string `json:"action_id"`
	Approve  bool   `json:"approve"`
	Reason   string `json:"reason,omitempty"`
}

// ListPendingRequest filters by status; empty lists every record.
type ListPendingRequest struct {
	Status string `json:"status,omitempty"`
}

// PendingAction is one held action.
type PendingAction struct {
	ActionID   string            `json:"action_id"`
	ActorID    string            `json:"actor_id"`
	Role       string            `json:"role"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource"`
	RiskScore  float64           `json:"risk_score"`
	Reason     string            `json:"reason"`
	Status     string            `json:"status"`
	CreatedAt  string            `json:"created_at"`
	ResolvedAt string            `json:"resolved_at,omitempty"`
	ResolvedBy string            `json:"resolved_by,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ListPendingResponse holds pending actions in creation order.
type ListPendingResponse struct {
	Pending []PendingAction `json:"pending"`
}

// ReadAuditRequest filters the ledger. From and To are RFC 3339.
type ReadAuditRequest struct {
	ActorID  string `json:"actor_id,omitempty"`
	Resource string `json:"resource,omitempty"`
	Decision string `json:"decision,omitempty"`
	ActionID string `json:"action_id,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// AuditEntry is one signed ledger entry.
type AuditEntry struct {
	ID         uint64            `json:"id"`
	Timestamp  string            `json:"ts"`
	ActionID   string            `json:"action_id"`
	ActorID    string            `json:"actor_id"`
	Role       string            `json:"role"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource"`
	Decision   string            `json:"decision"`
	RiskScore  float64           `json:"risk_score"`
	Reason     string            `json:"reason"`
	PolicyHash string            `json:"policy_hash"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Signature  string            `json:"signature,omitempty"`
}

// ReadAuditResponse holds entries in append order.
type ReadAuditResponse struct {
	Entries []AuditEntry `json:"entries"`
}

// Finding describes one entry that failed verification.
type Finding struct {
	Position int    `json:"position"`
	ID       uint64 `json:"id"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}

// IntegrityReport is the result of VerifyAudit.
type IntegrityReport struct {
	Valid           bool      `json:"valid"`
	TamperedCount   int       `json:"tampered_count"`
	Entries         int       `json:"entries"`
	FirstTamperedID uint64    `json:"first_tampered_id,omitempty"`
	Findings        []Finding `json:"findings,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// SetThresholdRequest changes the approval threshold.
type SetThresholdRequest struct {
	Value float64 `json:"value"`
}

// SetThresholdResponse reports the threshold now in effect.
type SetThresholdResponse struct {
	Threshold float64 `json:"threshold"`
}

// ToStruct converts a JSON-tagged value to a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("toolgatev1: marshal: %w", err)
	}
	s := &structpb.Struct{}
	if string(raw) == "null" {
		return s, nil
	}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("toolgatev1: to struct: %w", err)
	}
	return s, nil
}

// FromStruct decodes a Struct into a JSON-tagged value.
// Unknown fields are ignored.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("toolgatev1: from struct: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("toolgatev1: unmarshal: %w", err)
	}
	return nil
}
