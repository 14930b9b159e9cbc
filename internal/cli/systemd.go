package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/toolgate/internal/systemd"
)

var (
	unitBinary  string
	unitUser    string
	unitDataDir string
	unitOut     string
	unitAddr    string
)

func init() {
	rootCmd.AddCommand(systemdCmd)
	f := systemdCmd.Flags()
	f.StringVar(&unitBinary, "binary", systemd.DefaultBinary, "Path to the toolgate binary")
	f.StringVar(&unitUser, "user", "toolgate", "Service user")
	f.StringVar(&unitDataDir, "data-dir", "/var/lib/toolgate", "Writable directory for the ledger and pending approvals")
	f.StringVar(&unitAddr, "addr", "", "Listen address passed to serve (empty keeps the serve default)")
	f.StringVarP(&unitOut, "output", "o", "", "Write the unit to this file instead of stdout")
}

var systemdCmd = &cobra.Command{
	Use:   "systemd",
	Short: "Print a systemd unit for toolgate serve",
	Long: "Prints a hardened unit file that runs the gateway server.\n" +
		"Secrets go in /etc/toolgate/toolgate.env; `systemctl reload` re-reads the policy.",
	Args: cobra.NoArgs,
	RunE: runSystemd,
}

func runSystemd(cmd *cobra.Command, args []string) error {
	opts := systemd.UnitOptions{
		Binary:  unitBinary,
		User:    unitUser,
		Addr:    unitAddr,
		DataDir: unitDataDir,
	}
	// The per-user default under $HOME is wrong for a system service.
	if f := cmd.Flag("policy"); f != nil && f.Changed {
		opts.Policy = policyPath
	}
	unit := systemd.ServeUnit(opts)
	if unitOut == "" {
		fmt.Print(unit)
		return nil
	}
	if err := os.WriteFile(unitOut, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("failed to write unit: %w", err)
	}
	fmt.Printf("Wrote %s\n", unitOut)
	return nil
}
