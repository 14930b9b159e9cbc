package server

import (
	"time"

	toolgatev1 "github.com/ppiankov/toolgate/api/toolgate/v1"
	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/gateway"
)

func decisionToPB(d gateway.Decision) *toolgatev1.Decision {
	out := &toolgatev1.Decision{
		ActionID:  d.ActionID,
		Decision:  string(d.Decision),
		RiskScore: d.RiskScore,
		Threshold: d.Threshold,
		Reason:    d.Reason,
		EntryID:   d.EntryID,
	}
	// Resolutions carry no breakdown.
	if d.Breakdown.Score != 0 || d.Breakdown.Base != 0 {
		b := d.Breakdown
		out.Breakdown = &toolgatev1.Breakdown{
			Base:        b.Base,
			Role:        b.Role,
			Sensitivity: b.Sensitivity,
			Sensitive:   b.Sensitive,
			Tier:        b.Tier,
			Score:       b.Score,
		}
	}
	return out
}

func pendingToPB(p approval.Pending) toolgatev1.PendingAction {
	out := toolgatev1.PendingAction{
		ActionID:   p.ActionID,
		ActorID:    p.ActorID,
		Role:       string(p.Role),
		Action:     string(p.Action),
		Resource:   p.Resource,
		RiskScore:  p.RiskScore,
		Reason:     p.Reason,
		Status:     string(p.Status),
		CreatedAt:  p.CreatedAt.UTC().Format(time.RFC3339),
		ResolvedBy: p.ResolvedBy,
		Metadata:   p.Metadata,
	}
	if p.ResolvedAt != nil {
		out.ResolvedAt = p.ResolvedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func entryToPB(e audit.Entry) toolgatev1.AuditEntry {
	return toolgatev1.AuditEntry{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		ActionID:   e.ActionID,
		ActorID:    e.ActorID,
		Role:       string(e.Role),
		Action:     string(e.Action),
		Resource:   e.Resource,
		Decision:   string(e.Decision),
		RiskScore:  e.RiskScore,
		Reason:     e.Reason,
		PolicyHash: e.PolicyHash,
		Metadata:   e.Metadata,
		Signature:  e.Signature,
	}
}

func reportToPB(r audit.IntegrityReport) *toolgatev1.IntegrityReport {
	out := &toolgatev1.IntegrityReport{
		Valid:           r.Valid,
		TamperedCount:   r.TamperedCount,
		Entries:         r.Entries,
		FirstTamperedID: r.FirstTamperedID,
		Error:           r.Error,
	}
	for _, f := range r.Findings {
		out.Findings = append(out.Findings, toolgatev1.Finding{
			Position: f.Position,
			ID:       f.ID,
			Kind:     f.Kind,
			Detail:   f.Detail,
		})
	}
	return out
}
