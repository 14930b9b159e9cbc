// Package policydiff compares two policy configs and classifies each
// change as stricter or looser.
package policydiff

import (
	"sort"

	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
)

// Change represents a scalar field change.
type Change struct {
	Field   string `json:"field"`
	Old     string `json:"old"`
	New     string `json:"new"`
	Comment string `json:"comment,omitempty"`
}

// ListChange represents an entry added to or removed from a list section.
type ListChange struct {
	Section string `json:"section"`
	Type    string `json:"type"` // "added", "removed"
	Value   string `json:"value"`
}

// DiffResult holds the comparison of two Configs.
type DiffResult struct {
	OldPath     string       `json:"old_path"`
	NewPath     string       `json:"new_path"`
	Changes     []Change     `json:"changes"`
	ListChanges []ListChange `json:"list_changes"`
	HasChanges  bool         `json:"has_changes"`
}

// Diff compares two Configs and returns the differences.
func Diff(old, new *policy.Config) *DiffResult {
	r := &DiffResult{Changes: []Change{}, ListChanges: []ListChange{}}

	// A lower threshold holds more actions.
	diffScore(r, "threshold", old.Threshold, new.Threshold, false)

	diffScore(r, "weights.base.execute", old.Weights.Base.Execute, new.Weights.Base.Execute, true)
	diffScore(r, "weights.base.registration", old.Weights.Base.Registration, new.Weights.Base.Registration, true)
	for _, role := range model.Roles {
		diffScore(r, "weights.roles."+string(role),
			old.Weights.Roles.WeightFor(role), new.Weights.Roles.WeightFor(role), true)
	}
	diffScore(r, "weights.sensitive", old.Weights.Sensitive, new.Weights.Sensitive, true)

	if old.PendingTTL != new.PendingTTL {
		c := Change{Field: "pending_ttl", Old: old.PendingTTL.String(), New: new.PendingTTL.String()}
		switch {
		case new.PendingTTL <= 0:
			c.Comment = "expiry disabled"
		case old.PendingTTL <= 0 || new.PendingTTL < old.PendingTTL:
			c.Comment = "shorter"
		default:
			c.Comment = "longer"
		}
		r.Changes = append(r.Changes, c)
	}

	diffList(r, "sensitive_tools", old.SensitiveTools, new.SensitiveTools)
	diffList(r, "alerts", alertURLs(old), alertURLs(new))

	r.HasChanges = len(r.Changes) > 0 || len(r.ListChanges) > 0
	return r
}

func diffScore(r *DiffResult, field string, old, new float64, higherIsStricter bool) {
	if old != new {
		r.Changes = append(r.Changes, Change{
			Field:   field,
			Old:     policy.FormatScore(old),
			New:     policy.FormatScore(new),
			Comment: scoreComment(old, new, higherIsStricter),
		})
	}
}

func scoreComment(old, new float64, higherIsStricter bool) string {
	if (new > old) == higherIsStricter {
		return "stricter"
	}
	return "looser"
}

func diffList(r *DiffResult, section string, oldItems, newItems []string) {
	oldSet := make(map[string]bool)
	for _, k := range oldItems {
		oldSet[k] = true
	}
	newSet := make(map[string]bool)
	for _, k := range newItems {
		newSet[k] = true
	}

	for _, k := range sorted(newItems) {
		if !oldSet[k] {
			r.ListChanges = append(r.ListChanges, ListChange{Section: section, Type: "added", Value: k})
		}
	}
	for _, k := range sorted(oldItems) {
		if !newSet[k] {
			r.ListChanges = append(r.ListChanges, ListChange{Section: section, Type: "removed", Value: k})
		}
	}
}

func sorted(items []string) []string {
	out := append([]string(nil), items...)
	sort.Strings(out)
	return out
}

func alertURLs(cfg *policy.Config) []string {
	urls := make([]string, 0, len(cfg.Alerts))
	for _, a := range cfg.Alerts {
		urls = append(urls, a.URL)
	}
	return urls
}
