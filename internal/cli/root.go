package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/logging"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/server"
	"github.com/ppiankov/toolgate/internal/signing"
)

var (
	logLevel    string
	logFormat   string
	policyPath  string
	keyPath     string
	signingAlg  string
	storeKind   string
	auditLog    string
	storeDSN    string
	pendingDir  string
	actorsPath  string
	serverAddr  string
	clientKey   string
	clientToken string
)

// logger is built once flags are parsed.
var logger = zap.NewNop()

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&logLevel, "log-level", envOr("TOOLGATE_LOG_LEVEL", "info"), "Log level (debug|info|warn|error)")
	pf.StringVar(&logFormat, "log-format", envOr("TOOLGATE_LOG_FORMAT", "console"), "Log format (console|json)")
	pf.StringVar(&policyPath, "policy", envOr("TOOLGATE_POLICY", policy.DefaultPath()), "Path to policy YAML")
	pf.StringVar(&keyPath, "signing-key", envOr("TOOLGATE_SIGNING_KEY_FILE", ""), "Path to hex signing key (default: $TOOLGATE_SIGNING_KEY, then ~/.toolgate/signing.key)")
	pf.StringVar(&signingAlg, "alg", envOr("TOOLGATE_SIGNING_ALG", signing.AlgHMACSHA256), "Keyed digest (hmac-sha256|blake2b-256)")
	pf.StringVar(&storeKind, "store", envOr("TOOLGATE_STORE", "jsonl"), "Ledger store (jsonl|sqlite|postgres|memory)")
	pf.StringVar(&auditLog, "audit-log", envOr("TOOLGATE_AUDIT_LOG", toolgatePath("audit.jsonl")), "Path to the JSONL ledger")
	pf.StringVar(&storeDSN, "dsn", envOr("TOOLGATE_DSN", ""), "SQLite path or Postgres DSN for --store sqlite|postgres")
	pf.StringVar(&pendingDir, "pending-dir", envOr("TOOLGATE_PENDING_DIR", approval.DefaultDir()), "Directory for pending approvals")
	pf.StringVar(&actorsPath, "actors", envOr("TOOLGATE_ACTORS", toolgatePath("actors.yaml")), "Path to actor directory YAML")
	pf.StringVar(&serverAddr, "server", envOr("TOOLGATE_SERVER", server.DefaultAddr), "Address of a running toolgate server")
	pf.StringVar(&clientKey, "api-key", os.Getenv("TOOLGATE_API_KEY"), "API key for server commands")
	pf.StringVar(&clientToken, "token", os.Getenv("TOOLGATE_TOKEN"), "Bearer token for server commands")
}

var rootCmd = &cobra.Command{
	Use:           "toolgate",
	Short:         "Security gateway for agent tool calls",
	Long:          "Scores, authorizes and records every tool call an agent makes.\nRisky calls are held for human approval; every decision lands in a signed, hash-chained ledger.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

// toolgatePath returns ~/.toolgate/<name>, or "" without a home directory.
func toolgatePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".toolgate", name)
}
