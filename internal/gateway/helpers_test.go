package gateway

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/approval"
	"github.com/ppiankov/toolgate/internal/audit"
	"github.com/ppiankov/toolgate/internal/identity"
	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/signing"
)

var (
	analyst = identity.Actor{ID: "ana", Role: model.RoleAnalyst}
	redTeam = identity.Actor{ID: "red", Role: model.RoleRedTeam}
	admin   = identity.Actor{ID: "root", Role: model.RoleAdministrator}
	admin2  = identity.Actor{ID: "ops", Role: model.RoleAdministrator}
	guest   = identity.Actor{ID: "anon", Role: model.RoleGuest}
	reader  = identity.Actor{ID: "ro", Role: model.RoleReadOnly}
)

// switchSigner fails while down is set.
type switchSigner struct {
	inner signing.Signer
	down  atomic.Bool
}

func (s *switchSigner) Algorithm() string { return s.inner.Algorithm() }

func (s *switchSigner) Sign(data []byte) (string, error) {
	if s.down.Load() {
		return "", errors.New("key file unreadable")
	}
	return s.inner.Sign(data)
}

type fixture struct {
	gw      *Gateway
	ledger  *audit.Ledger
	pending *approval.MemoryStore
	signer  *switchSigner
	clock   *fakeClock
}

type fakeClock struct {
	now atomic.Int64
}

func newFakeClock(t time.Time) *fakeClock {
	c := &fakeClock{}
	c.now.Store(t.UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, c.now.Load()).UTC() }

func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

func newFixture(t *testing.T, cfg *policy.Config, logger *zap.Logger) *fixture {
	t.Helper()
	inner, err := signing.NewHMAC(bytes.Repeat([]byte{0x2a}, signing.MinKeyLen))
	if err != nil {
		t.Fatal(err)
	}
	signer := &switchSigner{inner: inner}
	clock := newFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	ledger, err := audit.Open(context.Background(), audit.NewMemoryStore(), signer, audit.WithClock(clock.Now))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ledger.Close() })

	pending := approval.NewMemoryStore()
	if cfg == nil {
		cfg = policy.DefaultConfig()
	}
	gw, err := New(Config{
		Ledger:     ledger,
		Pending:    pending,
		Policy:     cfg,
		PolicyHash: "sha256:test",
		Logger:     logger,
		Clock:      clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{gw: gw, ledger: ledger, pending: pending, signer: signer, clock: clock}
}

func (f *fixture) entries(t *testing.T) []audit.Entry {
	t.Helper()
	return f.ledger.Read(context.Background(), model.RoleAdministrator, audit.Filter{})
}

func execReq(actor identity.Actor, resource string) Request {
	return Request{Actor: actor, Action: "execute", Resource: resource}
}

func boolPtr(b bool) *bool { return &b }

func identityWithRole(id string, role model.Role) identity.Actor {
	return identity.Actor{ID: id, Role: role}
}
