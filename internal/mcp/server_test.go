package mcp

import (
	"bytes"
	"context"
	"errors"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/gateway"
	"github.com/ppiankov/toolgate/internal/identity"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/signing"
)

func newTestGateway(t *testing.T) *gateway.Gateway {
	t.Helper()
	signer, err := signing.NewHMAC(bytes.Repeat([]byte{0x55}, signing.MinKeyLen))
	if err != nil {
		t.Fatal(err)
	}
	ledger, err := audit.Open(context.Background(), audit.NewMemoryStore(), signer)
	if err != nil {
		t.Fatal(err)
	}
	gw, err := gateway.New(gateway.Config{
		Ledger:     ledger,
		Pending:    approval.NewMemoryStore(),
		Policy:     policy.DefaultConfig(),
		PolicyHash: "sha256:mcp",
	})
	if err != nil {
		t.Fatal(err)
	}
	return gw
}

func newTestServer(t *testing.T, gw *gateway.Gateway, id string, role model.Role) *Server {
	t.Helper()
	s, err := New(Config{Gateway: gw, Actor: identity.Actor{ID: id, Role: role}})
	if err != nil {
		t.Fatalf("failed to create MCP server: %v", err)
	}
	return s
}

func TestNewRequiresActor(t *testing.T) {
	gw := newTestGateway(t)
	if _, err := New(Config{Gateway: gw}); err == nil {
		t.Error("expected error without actor")
	}
	if _, err := New(Config{Gateway: gw, Actor: identity.Actor{ID: "x", Role: "root"}}); err == nil {
		t.Error("expected error for unknown role")
	}
	if _, err := New(Config{Actor: identity.Actor{ID: "x", Role: model.RoleAnalyst}}); err == nil {
		t.Error("expected error without gateway")
	}
}

func TestAuthorizeApproved(t *testing.T) {
	s := newTestServer(t, newTestGateway(t), "ana", model.RoleAnalyst)

	result, out, err := s.handleAuthorize(context.Background(), &mcpsdk.CallToolRequest{}, AuthorizeInput{
		Action:   "execute",
		Resource: "echo",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil && result.IsError {
		t.Fatal("expected success, got error result")
	}
	if out.Decision != "APPROVED" || out.RiskScore != 0.2 || out.EntryID != 1 {
		t.Fatalf("unexpected output: %+v", out)
	}
	if out.Breakdown == nil || out.Breakdown.Role != 0.1 {
		t.Errorf("breakdown: %+v", out.Breakdown)
	}
}

func TestAuthorizeHeldIsErrorResult(t *testing.T) {
	s := newTestServer(t, newTestGateway(t), "red", model.RoleRedTeam)

	result, out, err := s.handleAuthorize(context.Background(), &mcpsdk.CallToolRequest{}, AuthorizeInput{
		Action:   "execute",
		Resource: "http_request https://example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatal("expected IsError result for held action")
	}
	if out.Decision != "PENDING_APPROVAL" || out.ActionID == "" {
		t.Fatalf("unexpected output: %+v", out)
	}
}

func TestAuthorizeGuestDenied(t *testing.T) {
	s := newTestServer(t, newTestGateway(t), "anon", model.RoleGuest)

	result, out, err := s.handleAuthorize(context.Background(), &mcpsdk.CallToolRequest{}, AuthorizeInput{
		Action:   "execute",
		Resource: "echo",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result == nil || !result.IsError || out.Decision != "DENIED" {
		t.Fatalf("expected DENIED error result, got %+v", out)
	}
}

func TestAuthorizeInvalidInput(t *testing.T) {
	s := newTestServer(t, newTestGateway(t), "ana", model.RoleAnalyst)
	_, _, err := s.handleAuthorize(context.Background(), &mcpsdk.CallToolRequest{}, AuthorizeInput{Action: "launch", Resource: "echo"})
	var ve *model.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCheckDryRun(t *testing.T) {
	gw := newTestGateway(t)
	s := newTestServer(t, gw, "red", model.RoleRedTeam)

	_, out, err := s.handleCheck(context.Background(), &mcpsdk.CallToolRequest{}, AuthorizeInput{
		Action:   "register_tool",
		Resource: "scanner",
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision != "PENDING_APPROVAL" || out.RiskScore != 0.75 || out.Breakdown.Tier != 2 {
		t.Errorf("unexpected check: %+v", out)
	}
	if gw.Ledger().Len() != 0 {
		t.Error("check must not record")
	}
}

func TestResolveFlow(t *testing.T) {
	gw := newTestGateway(t)
	red := newTestServer(t, gw, "red", model.RoleRedTeam)
	admin := newTestServer(t, gw, "root", model.RoleAdministrator)
	ctx := context.Background()

	_, held, err := red.handleAuthorize(ctx, &mcpsdk.CallToolRequest{}, AuthorizeInput{Action: "execute", Resource: "shell"})
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := red.handleResolve(ctx, &mcpsdk.CallToolRequest{}, ResolveInput{ActionID: held.ActionID, Approve: true}); !errors.Is(err, gateway.ErrPermissionDenied) {
		t.Errorf("red_team resolve: %v", err)
	}
	if _, _, err := admin.handleResolve(ctx, &mcpsdk.CallToolRequest{}, ResolveInput{}); err == nil {
		t.Error("expected error for empty action_id")
	}

	_, pending, err := admin.handlePending(ctx, &mcpsdk.CallToolRequest{}, PendingInput{Status: "pending"})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending.Pending) != 1 || pending.Pending[0].ActorID != "red" {
		t.Fatalf("pending: %+v", pending)
	}

	_, out, err := admin.handleResolve(ctx, &mcpsdk.CallToolRequest{}, ResolveInput{ActionID: held.ActionID, Approve: true, Reason: "scoped"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Decision != "APPROVED" || out.Breakdown != nil {
		t.Errorf("resolution: %+v", out)
	}

	_, pending, err = admin.handlePending(ctx, &mcpsdk.CallToolRequest{}, PendingInput{Status: "pending"})
	if err != nil {
		t.Fatal(err)
	}
	if len(pending.Pending) != 0 {
		t.Errorf("still pending: %+v", pending.Pending)
	}
}

func TestPendingRequiresViewAudit(t *testing.T) {
	s := newTestServer(t, newTestGateway(t), "anon", model.RoleGuest)
	if _, _, err := s.handlePending(context.Background(), &mcpsdk.CallToolRequest{}, PendingInput{}); !errors.Is(err, gateway.ErrPermissionDenied) {
		t.Errorf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestAuditReadAndVerify(t *testing.T) {
	gw := newTestGateway(t)
	ana := newTestServer(t, gw, "ana", model.RoleAnalyst)
	guest := newTestServer(t, gw, "anon", model.RoleGuest)
	ctx := context.Background()

	for _, res := range []string{"echo", "calc", "http_request"} {
		if _, _, err := ana.handleAuthorize(ctx, &mcpsdk.CallToolRequest{}, AuthorizeInput{Action: "execute", Resource: res}); err != nil {
			t.Fatal(err)
		}
	}

	_, out, err := ana.handleAuditRead(ctx, &mcpsdk.CallToolRequest{}, AuditReadInput{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Entries) != 2 || out.Entries[1].Resource != "http_request" {
		t.Errorf("limit: %+v", out.Entries)
	}

	_, out, err = ana.handleAuditRead(ctx, &mcpsdk.CallToolRequest{}, AuditReadInput{Resource: "calc", Since: "1h"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Entries) != 1 {
		t.Errorf("filtered: %d", len(out.Entries))
	}

	if _, _, err := ana.handleAuditRead(ctx, &mcpsdk.CallToolRequest{}, AuditReadInput{Since: "forever"}); err == nil {
		t.Error("expected error for bad duration")
	}

	_, out, err = guest.handleAuditRead(ctx, &mcpsdk.CallToolRequest{}, AuditReadInput{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Entries) != 0 {
		t.Errorf("guest read %d entries", len(out.Entries))
	}

	result, report, err := ana.handleAuditVerify(ctx, &mcpsdk.CallToolRequest{}, AuditVerifyInput{})
	if err != nil {
		t.Fatal(err)
	}
	if (result != nil && result.IsError) || !report.Valid || report.Entries != 3 {
		t.Errorf("verify: %+v", report)
	}
}

func TestSetThresholdTool(t *testing.T) {
	gw := newTestGateway(t)
	admin := newTestServer(t, gw, "root", model.RoleAdministrator)
	blue := newTestServer(t, gw, "blue", model.RoleBlueTeam)
	ctx := context.Background()

	_, out, err := admin.handleSetThreshold(ctx, &mcpsdk.CallToolRequest{}, SetThresholdInput{Value: 0.35})
	if err != nil {
		t.Fatal(err)
	}
	if out.Threshold != 0.35 {
		t.Errorf("threshold: %v", out.Threshold)
	}
	if _, _, err := blue.handleSetThreshold(ctx, &mcpsdk.CallToolRequest{}, SetThresholdInput{Value: 0.9}); !errors.Is(err, gateway.ErrPermissionDenied) {
		t.Errorf("blue_team: %v", err)
	}
	if gw.Threshold() != 0.35 {
		t.Errorf("threshold changed to %v", gw.Threshold())
	}
}
