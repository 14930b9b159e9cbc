package audit

import (
	"github.com/ppiankov/toolgate/internal/model"
)

// ReplaySummary holds decision counts and metadata for a replayed range.
type ReplaySummary struct {
	Total          int     `json:"total"`
	ApprovedCount  int     `json:"approved_count"`
	DeniedCount    int     `json:"denied_count"`
	PendingCount   int     `json:"pending_count"`
	AdminCount     int     `json:"admin_count"`
	FirstTimestamp string  `json:"first_timestamp"`
	LastTimestamp  string  `json:"last_timestamp"`
	MaxRisk        float64 `json:"max_risk"`
}

// ReplayResult holds filtered entries and their summary.
type ReplayResult struct {
	ActionID string        `json:"action_id,omitempty"`
	Entries  []Entry       `json:"entries"`
	Summary  ReplaySummary `json:"summary"`
}

// Replay returns the entries matching filter with a summary.
// Undecodable records are skipped.
func Replay(records []Record, filter Filter) *ReplayResult {
	result := &ReplayResult{ActionID: filter.ActionID, Entries: []Entry{}}
	for _, rec := range records {
		if rec.Err != nil || !filter.Match(rec.Entry) {
			continue
		}
		result.Entries = append(result.Entries, rec.Entry)
	}
	if filter.Limit > 0 && len(result.Entries) > filter.Limit {
		result.Entries = result.Entries[len(result.Entries)-filter.Limit:]
	}
	for _, e := range result.Entries {
		updateSummary(&result.Summary, e)
	}
	return result
}

// ReplayEntries is Replay over already decoded entries.
func ReplayEntries(entries []Entry, filter Filter) *ReplayResult {
	records := make([]Record, len(entries))
	for i, e := range entries {
		records[i] = Record{Entry: e}
	}
	return Replay(records, filter)
}

func updateSummary(s *ReplaySummary, e Entry) {
	s.Total++

	switch e.Decision {
	case model.Approved:
		s.ApprovedCount++
	case model.Denied:
		s.DeniedCount++
	case model.PendingApproval:
		s.PendingCount++
	}

	if !e.Action.Scoreable() {
		s.AdminCount++
	}
	if e.RiskScore > s.MaxRisk {
		s.MaxRisk = e.RiskScore
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = e.Timestamp
	}
	s.LastTimestamp = e.Timestamp
}
