package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/policydiff"
)

var policyDiffFormat string

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyDiffCmd)
	policyDiffCmd.Flags().StringVarP(&policyDiffFormat, "format", "f", "text", "Output format (text|json)")
}

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Policy file operations",
}

var policyDiffCmd = &cobra.Command{
	Use:   "diff <old.yaml> <new.yaml>",
	Short: "Compare two policy files",
	Long:  "Loads both files over the defaults and lists every changed threshold, weight,\nsensitive tool and alert, marking each as stricter or looser.",
	Args:  cobra.ExactArgs(2),
	RunE:  runPolicyDiff,
}

func runPolicyDiff(cmd *cobra.Command, args []string) error {
	oldCfg, err := policy.LoadConfig(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	newCfg, err := policy.LoadConfig(args[1])
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}

	r := policydiff.Diff(oldCfg, newCfg)
	r.OldPath, r.NewPath = args[0], args[1]

	switch policyDiffFormat {
	case "json":
		out, err := policydiff.FormatJSON(r)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(policydiff.FormatText(r))
	}
	return nil
}
