package audit

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/signing"
)

var errBadRecord = errors.New("bad record")

var testKey = bytes.Repeat([]byte{0x07}, signing.MinKeyLen)

func testSigner(t testing.TB) signing.Signer {
	t.Helper()
	s, err := signing.NewHMAC(testKey)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testEntry(actor string, decision model.Decision) Entry {
	return Entry{
		ActionID:   "act-" + actor,
		ActorID:    actor,
		Role:       model.RoleAnalyst,
		Action:     model.ActionExecute,
		Resource:   "echo",
		Decision:   decision,
		RiskScore:  0.2,
		Reason:     "within threshold",
		PolicyHash: "sha256:test",
	}
}

// stepClock returns a clock advancing one second per call from start.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Second)
		return t
	}
}

func openJSONLLedger(t *testing.T, opts ...Option) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	store, err := OpenJSONL(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	l, err := Open(context.Background(), store, testSigner(t), opts...)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func appendN(t *testing.T, l *Ledger, n int) []Entry {
	t.Helper()
	out := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		e, err := l.Append(context.Background(), testEntry("alice", model.Approved))
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		out = append(out, e)
	}
	return out
}

// flakySigner fails while down is set.
type flakySigner struct {
	inner signing.Signer
	down  atomic.Bool
}

func (s *flakySigner) Algorithm() string { return s.inner.Algorithm() }

func (s *flakySigner) Sign(data []byte) (string, error) {
	if s.down.Load() {
		return "", errors.New("hsm offline")
	}
	return s.inner.Sign(data)
}

// flakyStore fails appends while down is set.
type flakyStore struct {
	*MemoryStore
	down atomic.Bool
}

func (s *flakyStore) Append(ctx context.Context, e Entry) error {
	if s.down.Load() {
		return errors.New("disk full")
	}
	return s.MemoryStore.Append(ctx, e)
}

type recordingSink struct {
	mu   sync.Mutex
	ids  []uint64
	fail bool
}

func (s *recordingSink) Publish(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, e.ID)
	if s.fail {
		return errors.New("mirror down")
	}
	return nil
}
