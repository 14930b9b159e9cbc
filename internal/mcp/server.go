// Package mcp exposes the gateway to agents as MCP tools over stdio.
// An MCP session acts as the single actor it was started for.
package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/gateway"
	"github.com/ppiankov/toolgate/internal/identity"
)

// Config holds MCP server configuration.
type Config struct {
	Gateway *gateway.Gateway
	Actor   identity.Actor
	Version string
	Logger  *zap.Logger
}

// Server wraps the MCP SDK server with the gateway.
type Server struct {
	mcpServer *mcpsdk.Server
	gw        *gateway.Gateway
	actor     identity.Actor
	logger    *zap.Logger
}

// New creates an MCP server and registers its tools.
func New(cfg Config) (*Server, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("mcp: gateway is required")
	}
	if cfg.Actor.ID == "" || !cfg.Actor.Role.Valid() {
		return nil, errors.New("mcp: a valid actor is required")
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		gw:     cfg.Gateway,
		actor:  cfg.Actor,
		logger: cfg.Logger.With(zap.String("actor_id", cfg.Actor.ID)),
	}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "toolgate",
			Version: cfg.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", zap.String("role", string(s.actor.Role)))
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all toolgate tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_authorize",
		Description: "Request a decision for a tool execution or registration. The decision is recorded in the audit ledger. DENIED and PENDING_APPROVAL return an error result; a held action carries an action_id for approval.",
	}, s.handleAuthorize)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_check",
		Description: "Preview the decision and risk breakdown for an action without recording it (dry-run).",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_resolve",
		Description: "Approve or deny a held action. Requires modify_risk_threshold; actors cannot resolve their own requests.",
	}, s.handleResolve)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_pending",
		Description: "List held actions, optionally filtered by status (pending, approved, denied, expired).",
	}, s.handlePending)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_audit_read",
		Description: "Read audit ledger entries. Returns nothing for roles without view_audit.",
	}, s.handleAuditRead)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_audit_verify",
		Description: "Verify the audit ledger hash chain and report tampered entries.",
	}, s.handleAuditVerify)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "toolgate_set_threshold",
		Description: "Change the approval threshold. Requires modify_risk_threshold; refused attempts are recorded.",
	}, s.handleSetThreshold)
}
