package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var resolveReason string

func init() {
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(denyCmd)
	approveCmd.Flags().StringVar(&resolveReason, "reason", "", "Reason recorded with the decision")
	denyCmd.Flags().StringVar(&resolveReason, "reason", "", "Reason recorded with the decision")
}

var approveCmd = &cobra.Command{
	Use:   "approve <action-id>",
	Short: "Approve a held action",
	Long:  "Resolves a held action as APPROVED. The caller must hold modify_risk_threshold\nand cannot approve their own request. The resolution is recorded in the ledger.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(args[0], true)
	},
}

var denyCmd = &cobra.Command{
	Use:   "deny <action-id>",
	Short: "Deny a held action",
	Long:  "Resolves a held action as DENIED. The resolution is recorded in the ledger.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runResolve(args[0], false)
	},
}

func runResolve(actionID string, approve bool) error {
	c, err := dialServer()
	if err != nil {
		return err
	}
	defer c.Close()

	res, err := c.Resolve(context.Background(), actionID, approve, resolveReason)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (entry %d): %s\n", res.Decision, actionID, res.EntryID, res.Reason)
	return nil
}
