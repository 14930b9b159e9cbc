package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(thresholdCmd)
}

var thresholdCmd = &cobra.Command{
	Use:   "threshold <value>",
	Short: "Change the approval threshold on the running server",
	Long:  "Sets the score above which actions are held for approval. Requires\nmodify_risk_threshold; every attempt, allowed or not, is recorded in the ledger.",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreshold,
}

func runThreshold(cmd *cobra.Command, args []string) error {
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid threshold %q: %w", args[0], err)
	}

	c, err := dialServer()
	if err != nil {
		return err
	}
	defer c.Close()

	got, err := c.SetThreshold(context.Background(), v)
	if err != nil {
		return err
	}
	fmt.Printf("Threshold set to %.4f\n", got)
	return nil
}
