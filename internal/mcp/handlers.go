package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/gateway"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
)

// --- Input/Output types ---

// AuthorizeInput defines parameters for toolgate_authorize and toolgate_check.
type AuthorizeInput struct {
	Action    string            `json:"action" jsonschema:"execute, register_tool or register_agent"`
	Resource  string            `json:"resource" jsonschema:"tool name, optionally followed by arguments"`
	Sensitive *bool             `json:"sensitive,omitempty" jsonschema:"override the sensitive-tool classification"`
	Metadata  map[string]string `json:"metadata,omitempty" jsonschema:"free-form context recorded with the decision"`
}

// DecisionOutput is the decision for an action.
type DecisionOutput struct {
	ActionID  string            `json:"action_id,omitempty"`
	Decision  string            `json:"decision"`
	RiskScore float64           `json:"risk_score"`
	Threshold float64           `json:"threshold"`
	Reason    string            `json:"reason"`
	EntryID   uint64            `json:"entry_id,omitempty"`
	Breakdown *policy.Breakdown `json:"breakdown,omitempty"`
}

// ResolveInput defines parameters for toolgate_resolve.
type ResolveInput struct {
	ActionID string `json:"action_id" jsonschema:"action_id of the held action"`
	Approve  bool   `json:"approve" jsonschema:"true to approve, false to deny"`
	Reason   string `json:"reason,omitempty" jsonschema:"reason recorded with the resolution"`
}

// PendingInput defines parameters for toolgate_pending.
type PendingInput struct {
	Status string `json:"status,omitempty" jsonschema:"pending, approved, denied or expired; empty lists all"`
}

// PendingOutput lists held actions.
type PendingOutput struct {
	Pending []PendingItem `json:"pending"`
}

// PendingItem describes a single held action.
type PendingItem struct {
	ActionID   string  `json:"action_id"`
	ActorID    string  `json:"actor_id"`
	Role       string  `json:"role"`
	Action     string  `json:"action"`
	Resource   string  `json:"resource"`
	RiskScore  float64 `json:"risk_score"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
	ResolvedBy string  `json:"resolved_by,omitempty"`
}

// AuditReadInput defines parameters for toolgate_audit_read.
type AuditReadInput struct {
	ActorID  string `json:"actor_id,omitempty" jsonschema:"only entries by this actor"`
	Resource string `json:"resource,omitempty" jsonschema:"only entries for this resource"`
	Decision string `json:"decision,omitempty" jsonschema:"APPROVED, DENIED or PENDING_APPROVAL"`
	ActionID string `json:"action_id,omitempty" jsonschema:"only entries for this action"`
	Since    string `json:"since,omitempty" jsonschema:"only entries newer than this duration, e.g. 1h"`
	Limit    int    `json:"limit,omitempty" jsonschema:"keep only the last N entries"`
}

// AuditReadOutput holds ledger entries in append order.
type AuditReadOutput struct {
	Entries []audit.Entry `json:"entries"`
}

// AuditVerifyInput is empty.
type AuditVerifyInput struct{}

// SetThresholdInput defines parameters for toolgate_set_threshold.
type SetThresholdInput struct {
	Value float64 `json:"value" jsonschema:"new approval threshold in [0,1]"`
}

// SetThresholdOutput reports the threshold in effect.
type SetThresholdOutput struct {
	Threshold float64 `json:"threshold"`
}

// --- Handlers ---

func (s *Server) request(in AuthorizeInput) gateway.Request {
	return gateway.Request{
		Actor:     s.actor,
		Action:    in.Action,
		Resource:  in.Resource,
		Sensitive: in.Sensitive,
		Metadata:  in.Metadata,
	}
}

func decisionOutput(d gateway.Decision, withBreakdown bool) DecisionOutput {
	out := DecisionOutput{
		ActionID:  d.ActionID,
		Decision:  string(d.Decision),
		RiskScore: d.RiskScore,
		Threshold: d.Threshold,
		Reason:    d.Reason,
		EntryID:   d.EntryID,
	}
	if withBreakdown {
		b := d.Breakdown
		out.Breakdown = &b
	}
	return out
}

func (s *Server) handleAuthorize(ctx context.Context, _ *mcpsdk.CallToolRequest, input AuthorizeInput) (*mcpsdk.CallToolResult, DecisionOutput, error) {
	d, err := s.gw.Authorize(ctx, s.request(input))
	if err != nil {
		return nil, DecisionOutput{}, err
	}
	out := decisionOutput(d, true)
	if d.Decision != model.Approved {
		s.logger.Info("mcp action not approved",
			zap.String("action_id", d.ActionID),
			zap.String("decision", string(d.Decision)))
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleCheck(_ context.Context, _ *mcpsdk.CallToolRequest, input AuthorizeInput) (*mcpsdk.CallToolResult, DecisionOutput, error) {
	d, err := s.gw.Check(s.request(input))
	if err != nil {
		return nil, DecisionOutput{}, err
	}
	return nil, decisionOutput(d, true), nil
}

func (s *Server) handleResolve(ctx context.Context, _ *mcpsdk.CallToolRequest, input ResolveInput) (*mcpsdk.CallToolResult, DecisionOutput, error) {
	if strings.TrimSpace(input.ActionID) == "" {
		return nil, DecisionOutput{}, fmt.Errorf("action_id is required")
	}
	d, err := s.gw.Resolve(ctx, gateway.Resolution{
		ActionID: input.ActionID,
		Resolver: s.actor,
		Approve:  input.Approve,
		Reason:   input.Reason,
	})
	if err != nil {
		return nil, DecisionOutput{}, err
	}
	return nil, decisionOutput(d, false), nil
}

func (s *Server) handlePending(ctx context.Context, _ *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	st, err := approval.ParseStatus(input.Status)
	if err != nil {
		return nil, PendingOutput{}, err
	}
	list, err := s.gw.ListPending(ctx, s.actor, st)
	if err != nil {
		return nil, PendingOutput{}, err
	}
	items := make([]PendingItem, len(list))
	for i, p := range list {
		items[i] = PendingItem{
			ActionID:   p.ActionID,
			ActorID:    p.ActorID,
			Role:       string(p.Role),
			Action:     string(p.Action),
			Resource:   p.Resource,
			RiskScore:  p.RiskScore,
			Status:     string(p.Status),
			CreatedAt:  p.CreatedAt.UTC().Format(time.RFC3339),
			ResolvedBy: p.ResolvedBy,
		}
	}
	return nil, PendingOutput{Pending: items}, nil
}

func (s *Server) handleAuditRead(ctx context.Context, _ *mcpsdk.CallToolRequest, input AuditReadInput) (*mcpsdk.CallToolResult, AuditReadOutput, error) {
	f := audit.Filter{
		ActorID:  input.ActorID,
		Resource: input.Resource,
		ActionID: input.ActionID,
		Decision: model.Decision(strings.ToUpper(input.Decision)),
		Limit:    input.Limit,
	}
	if input.Since != "" {
		d, err := time.ParseDuration(input.Since)
		if err != nil {
			return nil, AuditReadOutput{}, fmt.Errorf("invalid since %q: %w", input.Since, err)
		}
		f.From = time.Now().Add(-d)
	}
	return nil, AuditReadOutput{Entries: s.gw.ReadAudit(ctx, s.actor, f)}, nil
}

func (s *Server) handleAuditVerify(ctx context.Context, _ *mcpsdk.CallToolRequest, _ AuditVerifyInput) (*mcpsdk.CallToolResult, audit.IntegrityReport, error) {
	report, err := s.gw.VerifyAudit(ctx, s.actor)
	if err != nil {
		return nil, audit.IntegrityReport{}, err
	}
	if !report.Valid {
		return &mcpsdk.CallToolResult{IsError: true}, report, nil
	}
	return nil, report, nil
}

func (s *Server) handleSetThreshold(ctx context.Context, _ *mcpsdk.CallToolRequest, input SetThresholdInput) (*mcpsdk.CallToolResult, SetThresholdOutput, error) {
	if err := s.gw.SetThreshold(ctx, s.actor, input.Value); err != nil {
		return nil, SetThresholdOutput{}, err
	}
	return nil, SetThresholdOutput{Threshold: s.gw.Threshold()}, nil
}
