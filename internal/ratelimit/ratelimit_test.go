package ratelimit

import (
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- Config tests ---

func TestHasLimitsEmpty(t *testing.T) {
	if (ActorLimits{}).HasLimits() {
		t.Error("expected empty config to have no limits")
	}
}

func TestHasLimitsConfigured(t *testing.T) {
	cfg := ActorLimits{"Authorize": {MaxRequests: 10, Window: time.Minute}}
	if !cfg.HasLimits() {
		t.Error("expected HasLimits=true for configured limit")
	}
}

func TestHasLimitsZeroValues(t *testing.T) {
	for _, l := range []*Limit{{MaxRequests: 0, Window: time.Minute}, {MaxRequests: 10, Window: 0}, nil} {
		if (ActorLimits{"Authorize": l}).HasLimits() {
			t.Errorf("expected HasLimits=false for %+v", l)
		}
	}
}

func TestParseLimit(t *testing.T) {
	l, err := ParseLimit("120/1m")
	if err != nil {
		t.Fatal(err)
	}
	if l.MaxRequests != 120 || l.Window != time.Minute {
		t.Errorf("unexpected limit: %+v", l)
	}
	for _, bad := range []string{"", "120", "0/1m", "x/1m", "10/soon", "10/-1s"} {
		if _, err := ParseLimit(bad); err == nil {
			t.Errorf("ParseLimit(%q) accepted", bad)
		}
	}
}

// --- Limiter tests ---

func TestLimiterNoConfig(t *testing.T) {
	l := NewLimiter(nil)
	for i := 0; i < 100; i++ {
		if r := l.Allow("ana", "Authorize", t0); r.Exceeded {
			t.Fatal("unconfigured limiter refused a call")
		}
	}
}

func TestLimiterExceedingRateRefused(t *testing.T) {
	l := NewLimiter(Config{"*": {"Authorize": {MaxRequests: 3, Window: time.Minute}}})

	for i := 0; i < 3; i++ {
		if r := l.Allow("ana", "Authorize", t0.Add(time.Duration(i)*time.Second)); r.Exceeded {
			t.Fatalf("call %d refused within limit", i+1)
		}
	}
	r := l.Allow("ana", "Authorize", t0.Add(10*time.Second))
	if !r.Exceeded {
		t.Fatal("fourth call allowed")
	}
	if r.Category != "Authorize" || r.Current != 3 {
		t.Errorf("unexpected result: %+v", r)
	}

	// other actors have their own window
	if r := l.Allow("red", "Authorize", t0.Add(10*time.Second)); r.Exceeded {
		t.Error("limit leaked across actors")
	}
}

func TestLimiterRefillsOverWindow(t *testing.T) {
	l := NewLimiter(Config{"*": {"Authorize": {MaxRequests: 1, Window: time.Minute}}})

	l.Allow("ana", "Authorize", t0)
	if r := l.Allow("ana", "Authorize", t0.Add(30*time.Second)); !r.Exceeded {
		t.Fatal("expected second call refused")
	}
	if r := l.Allow("ana", "Authorize", t0.Add(time.Minute)); r.Exceeded {
		t.Error("bucket did not refill")
	}
}

func TestLimiterSteadyRateAfterBurst(t *testing.T) {
	l := NewLimiter(Config{"*": {"Authorize": {MaxRequests: 60, Window: time.Minute}}})

	for i := 0; i < 60; i++ {
		if r := l.Allow("ana", "Authorize", t0); r.Exceeded {
			t.Fatalf("burst call %d refused", i+1)
		}
	}
	if r := l.Allow("ana", "Authorize", t0); !r.Exceeded || r.Limit != 60 || r.Reason == "" {
		t.Fatalf("expected burst exhausted, got %+v", r)
	}

	// one token per second after the burst, never a full window at once
	at := t0.Add(time.Second)
	if r := l.Allow("ana", "Authorize", at); r.Exceeded {
		t.Fatal("refilled token refused")
	}
	if r := l.Allow("ana", "Authorize", at); !r.Exceeded {
		t.Fatal("second call in the same second allowed")
	}
}

func TestLimiterBoundaryBurstRefused(t *testing.T) {
	l := NewLimiter(Config{"*": {"Authorize": {MaxRequests: 10, Window: time.Minute}}})

	allowed := 0
	for _, at := range []time.Time{t0.Add(59 * time.Second), t0.Add(61 * time.Second)} {
		for i := 0; i < 10; i++ {
			if r := l.Allow("ana", "Authorize", at); !r.Exceeded {
				allowed++
			}
		}
	}
	if allowed > 11 {
		t.Errorf("expected at most 11 calls across the boundary, got %d", allowed)
	}
}

func TestLimiterCategoriesIndependent(t *testing.T) {
	l := NewLimiter(Config{"*": {"Authorize": {MaxRequests: 1, Window: time.Minute}}})

	l.Allow("ana", "Authorize", t0)
	if r := l.Allow("ana", "ReadAudit", t0); r.Exceeded {
		t.Error("unlimited category refused")
	}
}

func TestLimiterLookupOrder(t *testing.T) {
	l := NewLimiter(Config{
		"bot": {"*": {MaxRequests: 1, Window: time.Minute}},
		"*":   {"Authorize": {MaxRequests: 5, Window: time.Minute}},
	})

	l.Allow("bot", "ReadAudit", t0)
	if r := l.Allow("bot", "ReadAudit", t0); !r.Exceeded {
		t.Error("actor wildcard category not applied")
	}
	for i := 0; i < 5; i++ {
		if r := l.Allow("ana", "Authorize", t0); r.Exceeded {
			t.Fatalf("global limit applied early at %d", i)
		}
	}
	if r := l.Allow("ana", "Authorize", t0); !r.Exceeded {
		t.Error("global fallback not applied")
	}
}

func TestLimiterConcurrent(t *testing.T) {
	l := NewLimiter(Config{"*": {"Authorize": {MaxRequests: 50, Window: time.Hour}}})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r := l.Allow("ana", "Authorize", t0); !r.Exceeded {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if allowed != 50 {
		t.Errorf("expected exactly 50 allowed, got %d", allowed)
	}
}
