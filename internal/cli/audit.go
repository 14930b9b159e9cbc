package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/audit"
)

var (
	tailLines    int
	verifyRemote bool
	replayActor  string
	replayFrom   string
	replayTo     string
	replayFormat string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditReplayCmd)
	auditVerifyCmd.Flags().BoolVar(&verifyRemote, "remote", false, "Ask the running server to verify its ledger")
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditReplayCmd.Flags().StringVar(&replayActor, "actor", "", "Only entries by this actor")
	auditReplayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339)")
	auditReplayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339)")
	auditReplayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit ledger operations",
	Long:  "Commands for verifying and inspecting the signed, hash-chained audit ledger.\nThey read the store selected by --store directly and never append to it.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the signature chain of the ledger",
	Long:  "Recomputes every entry's keyed digest from genesis with the signing key.\nExits 0 if the chain is intact, 1 if any entry is tampered or unverifiable.",
	Args:  cobra.NoArgs,
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show recent ledger entries",
	Args:  cobra.NoArgs,
	RunE:  runAuditTail,
}

var auditReplayCmd = &cobra.Command{
	Use:   "replay [action-id]",
	Short: "Replay ledger entries as a decision timeline",
	Long:  "Filters the ledger by action ID, actor and time range and renders\na timeline with a decision summary.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditReplay,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	var report audit.IntegrityReport

	if verifyRemote {
		c, err := dialServer()
		if err != nil {
			return err
		}
		defer c.Close()
		r, err := c.VerifyAudit(ctx)
		if err != nil {
			return err
		}
		report = audit.IntegrityReport{
			Valid:           r.Valid,
			TamperedCount:   r.TamperedCount,
			Entries:         r.Entries,
			FirstTamperedID: r.FirstTamperedID,
			Error:           r.Error,
		}
		for _, f := range r.Findings {
			report.Findings = append(report.Findings, audit.Finding{Position: f.Position, ID: f.ID, Kind: f.Kind, Detail: f.Detail})
		}
	} else {
		signer, err := loadSigner()
		if err != nil {
			return err
		}
		records, err := storeRecords(ctx)
		if err != nil {
			return err
		}
		report = audit.VerifyRecords(records, signer)
	}

	if report.Valid {
		fmt.Print(audit.FormatReport(report))
		return nil
	}
	fmt.Fprint(os.Stderr, audit.FormatReport(report))
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	records, err := storeRecords(context.Background())
	if err != nil {
		return err
	}

	start := len(records) - tailLines
	if start < 0 {
		start = 0
	}
	for _, rec := range records[start:] {
		if rec.Err != nil {
			fmt.Printf("<unreadable: %v>\n", rec.Err)
			continue
		}
		out, _ := json.MarshalIndent(rec.Entry, "", "  ")
		fmt.Println(string(out))
	}
	return nil
}

func runAuditReplay(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{ActorID: replayActor}
	if len(args) == 1 {
		filter.ActionID = args[0]
	}

	if replayFrom != "" {
		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", replayFrom, err)
		}
		filter.From = from
	}
	if replayTo != "" {
		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", replayTo, err)
		}
		filter.To = to
	}

	records, err := storeRecords(context.Background())
	if err != nil {
		return err
	}
	result := audit.Replay(records, filter)

	switch replayFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(audit.FormatTimeline(result))
	}
	return nil
}
