package policydiff

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// FormatText renders the diff result as aligned text, top-level fields
// first, then weights, then list additions and removals.
func FormatText(r *DiffResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s -> %s\n", r.OldPath, r.NewPath)
	if !r.HasChanges {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	var top, weights []Change
	for _, c := range r.Changes {
		if name, ok := strings.CutPrefix(c.Field, "weights."); ok {
			c.Field = name
			weights = append(weights, c)
		} else {
			top = append(top, c)
		}
	}

	if len(top) > 0 {
		b.WriteString("\n")
		writeChanges(&b, "  ", top)
	}
	if len(weights) > 0 {
		b.WriteString("\n  Weights:\n")
		writeChanges(&b, "    ", weights)
	}

	section := ""
	for _, lc := range r.ListChanges {
		if lc.Section != section {
			section = lc.Section
			fmt.Fprintf(&b, "\n  %s:\n", section)
		}
		sign := "+"
		if lc.Type == "removed" {
			sign = "-"
		}
		fmt.Fprintf(&b, "    %s %s\n", sign, lc.Value)
	}

	stricter, looser := tally(r.Changes)
	fmt.Fprintf(&b, "\n%d stricter, %d looser, %d list changes\n", stricter, looser, len(r.ListChanges))
	return b.String()
}

func writeChanges(w io.Writer, indent string, changes []Change) {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, c := range changes {
		line := c.Old + " -> " + c.New
		if c.Comment != "" {
			line += "  (" + c.Comment + ")"
		}
		fmt.Fprintf(tw, "%s%s:\t%s\n", indent, c.Field, line)
	}
	tw.Flush()
}

func tally(changes []Change) (stricter, looser int) {
	for _, c := range changes {
		switch c.Comment {
		case "stricter", "shorter":
			stricter++
		case "looser", "longer", "expiry disabled":
			looser++
		}
	}
	return stricter, looser
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}
