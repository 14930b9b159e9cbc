// Package ratelimit caps how many calls an actor may make per window.
// Limits are keyed by actor ID ("*" for everyone else) and then by call
// category, which the server sets to the RPC method name.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Limit defines the rate limit for a single call category.
// Zero values mean no limit for that category.
type Limit struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

func (l *Limit) active() bool {
	return l != nil && l.MaxRequests > 0 && l.Window > 0
}

// refillRate is the steady refill rate, MaxRequests per Window.
func (l *Limit) refillRate() rate.Limit {
	return rate.Limit(float64(l.MaxRequests) / l.Window.Seconds())
}

// ActorLimits maps call categories to their limits for one actor.
// The "*" category applies to categories without their own entry.
type ActorLimits map[string]*Limit

// HasLimits returns true if any category has a configured limit.
func (c ActorLimits) HasLimits() bool {
	for _, l := range c {
		if l.active() {
			return true
		}
	}
	return false
}

// Config maps actor IDs to their limits. The "*" actor applies to
// actors without their own entry.
type Config map[string]ActorLimits

// ParseLimit parses "N/duration", for example "120/1m".
func ParseLimit(s string) (*Limit, error) {
	n, w, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return nil, fmt.Errorf("ratelimit: %q is not N/duration", s)
	}
	max, err := strconv.Atoi(n)
	if err != nil || max <= 0 {
		return nil, fmt.Errorf("ratelimit: invalid request count %q", n)
	}
	window, err := time.ParseDuration(w)
	if err != nil || window <= 0 {
		return nil, fmt.Errorf("ratelimit: invalid window %q", w)
	}
	return &Limit{MaxRequests: max, Window: window}, nil
}
