package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/identity"
	tgmcp "github.com/ppiankov/toolgate/internal/mcp"
	"github.com/ppiankov/toolgate/internal/model"
)

var (
	mcpActor string
	mcpRole  string
)

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpActor, "actor", os.Getenv("TOOLGATE_ACTOR"), "Actor ID the session runs as (required)")
	mcpCmd.Flags().StringVar(&mcpRole, "role", "", "Role to use when the actor is not in the directory")
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP tool server for agent integration",
	Long: "Runs toolgate as an MCP (Model Context Protocol) server over stdio, bound to one actor.\n" +
		"Exposes gateway tools: authorize, check, resolve, pending, audit read/verify, threshold.\n" +
		"The session owns the ledger selected by --store; do not share it with a running server.",
	Args: cobra.NoArgs,
	RunE: runMCP,
}

// mcpIdentity resolves the session actor from the directory, falling back to --role.
func mcpIdentity() (identity.Actor, error) {
	if mcpActor == "" {
		return identity.Actor{}, fmt.Errorf("--actor is required")
	}
	if dir, err := identity.LoadDirectory(actorsPath); err == nil {
		if a, ok := dir.Lookup(mcpActor); ok {
			return a, nil
		}
	}
	if mcpRole == "" {
		return identity.Actor{}, fmt.Errorf("actor %q is not in %s and --role is not set", mcpActor, actorsPath)
	}
	role, err := model.ParseRole(mcpRole)
	if err != nil {
		return identity.Actor{}, err
	}
	return identity.Actor{ID: mcpActor, Role: role}, nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	actor, err := mcpIdentity()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := buildStack(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	srv, err := tgmcp.New(tgmcp.Config{Gateway: st.gw, Actor: actor, Version: version, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger.Info("mcp server running on stdio", zap.String("actor_id", actor.ID), zap.String("role", string(actor.Role)))
	return srv.Run(ctx)
}
