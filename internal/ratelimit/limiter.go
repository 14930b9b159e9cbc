package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Category string
	Current  int
	Limit    int
	Reason   string
}

// bucketKey identifies one actor's bucket for one category.
type bucketKey struct {
	actor    string
	category string
}

// Limiter keeps a token bucket per (actor, category). A Limit of N per
// window refills at N/window and bursts up to N. Safe for concurrent use.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	buckets map[bucketKey]*rate.Limiter
}

// NewLimiter returns a Limiter enforcing cfg. A nil or empty cfg allows everything.
func NewLimiter(cfg Config) *Limiter {
	return &Limiter{cfg: cfg, buckets: make(map[bucketKey]*rate.Limiter)}
}

// lookup resolves actor then category, each falling back to "*".
func (l *Limiter) lookup(actorID, category string) *Limit {
	limits := l.cfg[actorID]
	if limits == nil {
		limits = l.cfg["*"]
	}
	if limits == nil || !limits.HasLimits() {
		return nil
	}
	if lim := limits[category]; lim != nil {
		return lim
	}
	return limits["*"]
}

func (l *Limiter) bucket(actorID, category string, lim *Limit) *rate.Limiter {
	key := bucketKey{actor: actorID, category: category}

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(lim.refillRate(), lim.MaxRequests)
		l.buckets[key] = b
	}
	return b
}

// Allow takes one token from actorID's bucket for category, or reports
// the limit as exceeded when the bucket is empty.
func (l *Limiter) Allow(actorID, category string, now time.Time) CheckResult {
	lim := l.lookup(actorID, category)
	if !lim.active() {
		return CheckResult{}
	}

	b := l.bucket(actorID, category, lim)
	if b.AllowN(now, 1) {
		return CheckResult{}
	}

	used := lim.MaxRequests - int(b.TokensAt(now))
	return CheckResult{
		Exceeded: true,
		Category: category,
		Current:  used,
		Limit:    lim.MaxRequests,
		Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
			used, lim.MaxRequests, lim.Window),
	}
}
