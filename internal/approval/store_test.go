package approval

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/toolgate/internal/model"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func storesUnderTest(t *testing.T) map[string]Store {
	return map[string]Store{
		"file":   newTestStore(t),
		"memory": NewMemoryStore(),
	}
}

func pending(id string, created time.Time) Pending {
	return Pending{
		ActionID:  id,
		ActorID:   "alice",
		Role:      model.RoleRedTeam,
		Action:    model.ActionExecute,
		Resource:  "http_request",
		RiskScore: 0.65,
		Reason:    "risk 0.6500 exceeds threshold 0.5000",
		Metadata:  map[string]string{"ticket": "T-1"},
		CreatedAt: created,
	}
}

func TestRequestAndGet(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Request(pending("a1", time.Now())); err != nil {
				t.Fatalf("Request failed: %v", err)
			}
			p, err := s.Get("a1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if p.Status != StatusPending {
				t.Errorf("expected pending, got %s", p.Status)
			}
			if p.ActorID != "alice" || p.Role != model.RoleRedTeam || p.RiskScore != 0.65 {
				t.Errorf("unexpected record: %+v", p)
			}
			if p.Metadata["ticket"] != "T-1" {
				t.Errorf("expected metadata preserved, got %v", p.Metadata)
			}
		})
	}
}

func TestRequestIdempotent(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			first := pending("a1", time.Now())
			s.Request(first)
			second := pending("a1", time.Now())
			second.Reason = "overwritten"
			s.Request(second)

			p, _ := s.Get("a1")
			if p.Reason != first.Reason {
				t.Errorf("expected original reason, got %s", p.Reason)
			}
		})
	}
}

func TestResolveOnce(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			s.Request(pending("a1", time.Now()))

			p, err := s.Resolve("a1", StatusApproved, "root", "looks fine", time.Now())
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if p.Status != StatusApproved || p.ResolvedBy != "root" || p.ResolvedAt == nil {
				t.Fatalf("unexpected resolved record: %+v", p)
			}

			_, err = s.Resolve("a1", StatusDenied, "root", "changed mind", time.Now())
			if !errors.Is(err, ErrAlreadyResolved) {
				t.Fatalf("expected ErrAlreadyResolved, got %v", err)
			}
			got, _ := s.Get("a1")
			if got.Status != StatusApproved {
				t.Fatalf("second resolution must not change status, got %s", got.Status)
			}
		})
	}
}

func TestResolveRejectsPendingTarget(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			s.Request(pending("a1", time.Now()))
			if _, err := s.Resolve("a1", StatusPending, "root", "", time.Now()); err == nil {
				t.Fatal("expected error resolving to pending")
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get: expected ErrNotFound, got %v", err)
			}
			if _, err := s.Resolve("nope", StatusDenied, "root", "", time.Now()); !errors.Is(err, ErrNotFound) {
				t.Errorf("Resolve: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestListOrderAndFilter(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			s.Request(pending("c", base.Add(2*time.Minute)))
			s.Request(pending("a", base))
			s.Request(pending("b", base.Add(time.Minute)))
			s.Resolve("b", StatusDenied, "root", "no", base.Add(3*time.Minute))

			all, err := s.List("")
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(all) != 3 || all[0].ActionID != "a" || all[1].ActionID != "b" || all[2].ActionID != "c" {
				t.Fatalf("unexpected order: %+v", all)
			}

			open, _ := s.List(StatusPending)
			if len(open) != 2 {
				t.Fatalf("expected 2 pending, got %d", len(open))
			}
		})
	}
}

func TestInvalidKeyRejected(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"", "../escape", "a/b", "a b"} {
		if err := s.Request(pending(key, time.Now())); err == nil {
			t.Errorf("expected error for key %q", key)
		}
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	s1, _ := NewFileStore(dir)
	s1.Request(pending("a1", time.Now()))

	s2, _ := NewFileStore(dir)
	p, err := s2.Get("a1")
	if err != nil {
		t.Fatalf("reopened store: %v", err)
	}
	if p.Status != StatusPending {
		t.Fatalf("expected pending, got %s", p.Status)
	}
}

func TestFileStoreCorruptRecordSkippedInList(t *testing.T) {
	s := newTestStore(t)
	s.Request(pending("good", time.Now()))
	if err := os.WriteFile(filepath.Join(s.dir, "bad.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	list, err := s.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ActionID != "good" {
		t.Fatalf("expected only the good record, got %+v", list)
	}
	if _, err := s.Get("bad"); err == nil {
		t.Fatal("expected error reading corrupt record")
	}
}

func TestCleanup(t *testing.T) {
	s := newTestStore(t)
	s.Request(pending("a", time.Now()))
	s.Request(pending("b", time.Now()))

	if err := s.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	list, _ := s.List("")
	if len(list) != 0 {
		t.Errorf("expected 0 after cleanup, got %d", len(list))
	}
}

func TestConcurrentResolveSingleWinner(t *testing.T) {
	for name, s := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			s.Request(pending("race", time.Now()))

			var wg sync.WaitGroup
			var mu sync.Mutex
			wins := 0
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := s.Resolve("race", StatusApproved, "root", "", time.Now()); err == nil {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			if wins != 1 {
				t.Fatalf("expected exactly one successful resolution, got %d", wins)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	for in, want := range map[string]Status{"": "", "pending": StatusPending, " Approved ": StatusApproved, "EXPIRED": StatusExpired, "denied": StatusDenied} {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Errorf("ParseStatus(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseStatus("consumed"); err == nil {
		t.Error("expected error for unknown status")
	}
}
