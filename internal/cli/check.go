package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/gateway"
	"github.com/ppiankov/toolgate/internal/identity"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/scenario"
)

var (
	checkRole      string
	checkAction    string
	checkSensitive string
	checkScenario  string
	checkFormat    string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkRole, "role", "analyst", "Role of the requesting actor")
	checkCmd.Flags().StringVar(&checkAction, "action", "execute", "Action kind (execute|register_tool|register_agent)")
	checkCmd.Flags().StringVar(&checkSensitive, "sensitive", "auto", "Sensitivity override (auto|true|false)")
	checkCmd.Flags().StringVar(&checkScenario, "scenario", "", "Glob of scenario YAML files to assert instead of a single resource")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check [resource]",
	Short: "Preview a decision without recording it",
	Long: "Scores one action against the local policy and prints the decision with its breakdown.\n" +
		"With --scenario, runs every case in the matching files and exits 1 if any fail.\n" +
		"Nothing is written to the ledger.",
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	if checkScenario != "" {
		return runScenarios()
	}
	if len(args) != 1 {
		return fmt.Errorf("a resource is required without --scenario")
	}

	role, err := model.ParseRole(checkRole)
	if err != nil {
		return err
	}
	var sensitive *bool
	if checkSensitive != "auto" {
		v, err := strconv.ParseBool(checkSensitive)
		if err != nil {
			return fmt.Errorf("invalid --sensitive %q: %w", checkSensitive, err)
		}
		sensitive = &v
	}

	cfg, hash, err := policy.LoadConfigWithHash(policyPath)
	if err != nil {
		return err
	}
	gw, err := scenario.NewDryRunGateway(cfg, hash)
	if err != nil {
		return err
	}
	d, err := gw.Check(gateway.Request{
		Actor:     identity.Actor{ID: "check", Role: role},
		Action:    checkAction,
		Resource:  args[0],
		Sensitive: sensitive,
	})
	if err != nil {
		return err
	}

	if checkFormat == "json" {
		out, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	b := d.Breakdown
	fmt.Printf("Decision:  %s\n", d.Decision)
	fmt.Printf("Risk:      %s (threshold %s)\n", policy.FormatScore(d.RiskScore), policy.FormatScore(d.Threshold))
	fmt.Printf("Breakdown: base %s + role %s + sensitive %s (tier %d)\n",
		policy.FormatScore(b.Base), policy.FormatScore(b.Role), policy.FormatScore(b.Sensitivity), b.Tier)
	fmt.Printf("Reason:    %s\n", d.Reason)
	fmt.Printf("Policy:    %s\n", gw.PolicyHash())
	return nil
}

func runScenarios() error {
	matches, err := filepath.Glob(checkScenario)
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no scenario files match pattern: %s", checkScenario)
	}

	var results []*scenario.RunResult
	for _, path := range matches {
		r, err := scenario.LoadAndRun(path, policyPath)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, r)
	}

	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(scenario.FormatText(results))
	}

	if !scenario.Summarize(results).OK {
		os.Exit(1)
	}
	return nil
}
