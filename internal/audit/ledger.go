package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/model"
	"github.com/ppiankov/toolgate/internal/policy"
	"github.com/ppiankov/toolgate/internal/signing"
)

// Ledger is the append-only, hash-chained audit log.
//
// Appends are serialized by a single writer lock; that order is the chain
// order and the read order. Readers see an immutable prefix of the hot
// in-memory sequence and never block the writer for long.
type Ledger struct {
	mu      sync.Mutex // single writer
	nextID  uint64
	prevSig string

	hotMu   sync.RWMutex
	entries []Entry

	store  Store
	signer signing.Signer
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the ledger logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *Ledger) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithSinks adds mirrors that receive every appended entry.
func WithSinks(sinks ...Sink) Option {
	return func(ld *Ledger) {
		for _, s := range sinks {
			if s != nil {
				ld.sinks = append(ld.sinks, s)
			}
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(ld *Ledger) { ld.now = now }
}

// Open builds a Ledger over store, recovering the chain tail and the hot
// sequence from the records already stored.
func Open(ctx context.Context, store Store, signer signing.Signer, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("audit: nil store")
	}
	if signer == nil {
		return nil, fmt.Errorf("%w: no signer configured", signing.ErrSigningUnavailable)
	}
	l := &Ledger{
		nextID:  1,
		prevSig: GenesisSignature,
		store:   store,
		signer:  signer,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	records, err := store.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: load ledger: %w", err)
	}
	skipped := 0
	for _, rec := range records {
		if rec.Err != nil {
			skipped++
			continue
		}
		l.entries = append(l.entries, rec.Entry)
		if rec.Entry.ID >= l.nextID {
			l.nextID = rec.Entry.ID + 1
			l.prevSig = rec.Entry.Signature
		}
	}
	if skipped > 0 {
		l.logger.Warn("ledger contains undecodable records", zap.Int("count", skipped))
	}
	l.logger.Debug("ledger opened", zap.Int("entries", len(l.entries)), zap.Uint64("next_id", l.nextID))
	return l, nil
}

// Append assigns the entry id and timestamp, signs it against the previous
// signature, stores it durably and only then makes it visible to readers.
// On error nothing is visible and the chain does not advance.
func (l *Ledger) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := e.validate(); err != nil {
		return Entry{}, err
	}
	e = e.clone()

	l.mu.Lock()
	defer l.mu.Unlock()

	e.ID = l.nextID
	e.Timestamp = l.now().UTC().Format(TimestampFormat)
	e.Signature = ""

	input, err := SigningInput(e, l.prevSig)
	if err != nil {
		return Entry{}, err
	}
	sig, err := l.signer.Sign(input)
	if err != nil {
		if !errors.Is(err, signing.ErrSigningUnavailable) {
			err = fmt.Errorf("%w: %v", signing.ErrSigningUnavailable, err)
		}
		l.logger.Error("audit signing failed", zap.Uint64("id", e.ID), zap.Error(err))
		return Entry{}, err
	}
	e.Signature = sig

	if err := l.store.Append(ctx, e); err != nil {
		l.logger.Error("audit store write failed", zap.Uint64("id", e.ID), zap.Error(err))
		return Entry{}, fmt.Errorf("audit: append: %w", err)
	}

	l.hotMu.Lock()
	l.entries = append(l.entries, e)
	l.hotMu.Unlock()
	l.nextID++
	l.prevSig = sig

	for _, s := range l.sinks {
		if err := s.Publish(ctx, e); err != nil {
			l.logger.Warn("audit mirror failed", zap.Uint64("id", e.ID), zap.Error(err))
		}
	}
	return e.clone(), nil
}

// Probe signs a fixed input to check that signing works.
func (l *Ledger) Probe() error {
	if _, err := l.signer.Sign([]byte("toolgate-probe")); err != nil {
		if !errors.Is(err, signing.ErrSigningUnavailable) {
			err = fmt.Errorf("%w: %v", signing.ErrSigningUnavailable, err)
		}
		return err
	}
	return nil
}

// Filter selects ledger entries. Zero fields match everything;
// From and To are inclusive.
type Filter struct {
	ActorID  string
	Resource string
	From     time.Time
	To       time.Time
	Decision model.Decision
	ActionID string
	// Limit > 0 keeps only the last Limit matches.
	Limit int
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.Resource != "" && e.Resource != f.Resource {
		return false
	}
	if f.Decision != "" && e.Decision != f.Decision {
		return false
	}
	if f.ActionID != "" && e.ActionID != f.ActionID {
		return false
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		ts, err := e.Time()
		if err != nil {
			return false
		}
		if !f.From.IsZero() && ts.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && ts.After(f.To) {
			return false
		}
	}
	return true
}

// Read returns the matching entries in append order. A role without
// view_audit gets an empty slice, never an error.
func (l *Ledger) Read(_ context.Context, role model.Role, f Filter) []Entry {
	out := []Entry{}
	if !role.Valid() || !policy.HasPermission(role, model.PermViewAudit) {
		return out
	}

	for _, e := range l.snapshot() {
		if f.Match(e) {
			out = append(out, e.clone())
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Len returns the number of visible entries.
func (l *Ledger) Len() int {
	l.hotMu.RLock()
	defer l.hotMu.RUnlock()
	return len(l.entries)
}

func (l *Ledger) snapshot() []Entry {
	l.hotMu.RLock()
	defer l.hotMu.RUnlock()
	return l.entries[:len(l.entries):len(l.entries)]
}

// VerifyIntegrity recomputes the chain over the durable store.
func (l *Ledger) VerifyIntegrity(ctx context.Context) IntegrityReport {
	// Hold the writer lock so the durable view is a consistent prefix.
	l.mu.Lock()
	records, err := l.store.Records(ctx)
	visible := l.Len()
	l.mu.Unlock()

	if err != nil {
		return IntegrityReport{Entries: visible, Error: fmt.Sprintf("read store: %v", err)}
	}
	report := VerifyRecords(records, l.signer)
	if missing := visible - report.Entries; missing > 0 && report.Error == "" {
		if report.Valid {
			report.FirstTamperedID = uint64(report.Entries + 1)
		}
		report.Valid = false
		report.TamperedCount += missing
		report.Findings = append(report.Findings, Finding{
			Position: report.Entries + 1,
			ID:       uint64(report.Entries + 1),
			Kind:     FindingMissing,
			Detail:   fmt.Sprintf("%d entries missing from store", missing),
		})
		report.Entries = visible
	}
	if !report.Valid {
		l.logger.Error("audit integrity check failed",
			zap.Int("tampered", report.TamperedCount),
			zap.Uint64("first_tampered_id", report.FirstTamperedID),
			zap.String("error", report.Error))
	}
	return report
}

// Close closes the durable store.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.Close()
}
