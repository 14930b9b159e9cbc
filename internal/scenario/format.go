package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ppiankov/toolgate/internal/policy"
)

// Summary totals a batch of scenario runs.
type Summary struct {
	Files       int  `json:"files"`
	FailedFiles int  `json:"failed_files"`
	Cases       int  `json:"cases"`
	Passed      int  `json:"passed"`
	OK          bool `json:"ok"`
}

// Summarize totals results.
func Summarize(results []*RunResult) Summary {
	s := Summary{Files: len(results)}
	for _, r := range results {
		s.Cases += r.Total
		s.Passed += r.Passed
		if r.Failed > 0 {
			s.FailedFiles++
		}
	}
	s.OK = s.FailedFiles == 0
	return s
}

// FormatText renders results with one line per file and a table of failing cases.
func FormatText(results []*RunResult) string {
	var b strings.Builder
	sum := Summarize(results)

	for _, r := range results {
		status := "PASS"
		if r.Failed > 0 {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "%s  %s (%d/%d)\n", status, r.Name, r.Passed, r.Total)
		if r.Failed == 0 {
			continue
		}
		tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  #\tROLE\tRESOURCE\tEXPECTED\tGOT\tRISK\tREASON")
		for _, c := range r.Cases {
			if c.Passed {
				continue
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				c.Index, c.Role, shorten(c.Resource, 32), c.Expected, c.Actual, policy.FormatScore(c.Risk), c.Reason)
		}
		tw.Flush()
	}

	fmt.Fprintf(&b, "\n%d/%d cases passed", sum.Passed, sum.Cases)
	if sum.FailedFiles > 0 {
		fmt.Fprintf(&b, ", %d/%d files failed", sum.FailedFiles, sum.Files)
	}
	b.WriteString("\n")
	return b.String()
}

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// FormatJSON renders the summary and every result.
func FormatJSON(results []*RunResult) (string, error) {
	doc := struct {
		Summary Summary      `json:"summary"`
		Results []*RunResult `json:"results"`
	}{Summarize(results), results}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(data), nil
}
