package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/audit"
)

var (
	pendingStatus string
	pendingJSON   bool
)

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.Flags().StringVar(&pendingStatus, "status", "pending", "Filter by status (pending|approved|denied|expired); empty lists all")
	pendingCmd.Flags().BoolVar(&pendingJSON, "json", false, "Print the raw records as JSON")
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List actions held for approval",
	Long:  "Asks the running server for held actions with their status, requester, risk and age.",
	Args:  cobra.NoArgs,
	RunE:  runPending,
}

func runPending(cmd *cobra.Command, args []string) error {
	c, err := dialServer()
	if err != nil {
		return err
	}
	defer c.Close()

	list, err := c.Pending(context.Background(), pendingStatus)
	if err != nil {
		return fmt.Errorf("failed to list pending actions: %w", err)
	}

	if pendingJSON {
		out, err := json.MarshalIndent(list, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	if len(list) == 0 {
		fmt.Println("No pending actions.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION ID\tSTATUS\tACTOR\tROLE\tRISK\tRESOURCE\tAGE")
	now := time.Now()
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\t%s\t%s\n",
			p.ActionID, p.Status, p.ActorID, p.Role, p.RiskScore, truncate(p.Resource, 40), age(p.CreatedAt, now))
	}
	return tw.Flush()
}

// age renders how long ago ts (ledger timestamp layout or RFC 3339) was.
func age(ts string, now time.Time) string {
	t, err := time.Parse(audit.TimestampFormat, ts)
	if err != nil {
		if t, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return ts
		}
	}
	return now.Sub(t).Truncate(time.Second).String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
