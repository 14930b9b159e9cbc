package toolgate

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/gateway"
	"github.com/ppiankov/toolgate/internal/identity"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/signing"
)

var admin = identity.Actor{ID: "root", Role: model.RoleAdministrator}

func newTestGateway(t *testing.T) *gateway.Gateway {
	t.Helper()
	signer, err := signing.NewHMAC(bytes.Repeat([]byte{0x51}, signing.MinKeyLen))
	if err != nil {
		t.Fatal(err)
	}
	ledger, err := audit.Open(context.Background(), audit.NewMemoryStore(), signer)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ledger.Close() })
	gw, err := gateway.New(gateway.Config{
		Ledger:     ledger,
		Pending:    approval.NewMemoryStore(),
		Policy:     policy.DefaultConfig(),
		PolicyHash: policy.HashBytes(nil),
	})
	if err != nil {
		t.Fatal(err)
	}
	return gw
}

func newTestGuard(t *testing.T, gw *gateway.Gateway, actor, role string) *Guard {
	t.Helper()
	g, err := NewGuard(gw, actor, role)
	if err != nil {
		t.Fatalf("failed to create guard: %v", err)
	}
	return g
}

func requireBlocked(t *testing.T, err error) *BlockedError {
	t.Helper()
	if err == nil {
		t.Fatal("expected BlockedError, got nil")
	}
	var blocked *BlockedError
	if !errors.As(err, &blocked) {
		t.Fatalf("expected *BlockedError, got %T: %v", err, err)
	}
	return blocked
}
