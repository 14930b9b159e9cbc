package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/toolgate/internal/policy"
)

const separator = "──────────────────────────────────────────────────────────────────────────────"

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	title := "Audit"
	if result.ActionID != "" {
		title = "Action: " + result.ActionID
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("%s | No entries found.\n", title)
	}

	var b strings.Builder

	first := formatDateRange(result.Summary.FirstTimestamp)
	last := formatTimeOnly(result.Summary.LastTimestamp)
	b.WriteString(fmt.Sprintf("%s | %s–%s UTC\n", title, first, last))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		b.WriteString(fmt.Sprintf("%-6d %-9s %-17s %-6.2f %-12s %-14s %-14s %s\n",
			e.ID,
			formatTimeOnly(e.Timestamp),
			string(e.Decision),
			e.RiskScore,
			truncate(e.ActorID, 12),
			truncate(string(e.Role), 14),
			truncate(string(e.Action), 14),
			truncate(e.Resource, 40)))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

// FormatReport renders an IntegrityReport for terminal output.
func FormatReport(r IntegrityReport) string {
	var b strings.Builder
	switch {
	case r.Unverified():
		fmt.Fprintf(&b, "UNVERIFIED: %s\n", r.Error)
	case r.Valid:
		fmt.Fprintf(&b, "OK: %d entries, chain intact\n", r.Entries)
	default:
		fmt.Fprintf(&b, "TAMPERED: %d of %d entries unverifiable, first at id %d\n",
			r.TamperedCount, r.Entries, r.FirstTamperedID)
	}
	for _, f := range r.Findings {
		fmt.Fprintf(&b, "  #%d id=%d %s: %s\n", f.Position, f.ID, f.Kind, f.Detail)
	}
	return b.String()
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	parts := []string{}
	if s.ApprovedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d approved", s.ApprovedCount))
	}
	if s.DeniedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d denied", s.DeniedCount))
	}
	if s.PendingCount > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", s.PendingCount))
	}
	if s.AdminCount > 0 {
		parts = append(parts, fmt.Sprintf("%d admin", s.AdminCount))
	}
	return fmt.Sprintf("Summary: %s | Max risk: %s\n", strings.Join(parts, ", "), policy.FormatScore(s.MaxRisk))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
