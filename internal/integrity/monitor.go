// Package integrity re-verifies the audit ledger at startup and on an
// interval. A ledger that turns invalid is recorded as a tamper event,
// logged at error and sent to the integrity_violation webhooks.
package integrity

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/alert"
	"github.com/ppiankov/toolgate/internal/audit"
)

// DefaultInterval is used when Config.Interval is zero.
const DefaultInterval = 5 * time.Minute

// Verifier is the part of the ledger the monitor needs.
type Verifier interface {
	VerifyIntegrity(ctx context.Context) audit.IntegrityReport
}

// TamperEvent is one line of the tamper log.
type TamperEvent struct {
	Timestamp       string `json:"timestamp"`
	Hostname        string `json:"hostname"`
	Type            string `json:"type"`
	Entries         int    `json:"entries"`
	TamperedCount   int    `json:"tampered_count"`
	FirstTamperedID uint64 `json:"first_tampered_id,omitempty"`
	Error           string `json:"error,omitempty"`
}

// Config wires a Monitor.
type Config struct {
	Ledger   Verifier
	Interval time.Duration
	// Alerts returns the current dispatcher; it may return nil.
	Alerts func() *alert.Dispatcher
	// TamperLog, when set, receives a JSON line per failing transition.
	TamperLog string
	Logger    *zap.Logger
	Clock     func() time.Time
}

// Monitor tracks the last verification result so that a persisting
// failure alerts once, not on every tick.
type Monitor struct {
	cfg Config

	mu     sync.Mutex
	last   *audit.IntegrityReport
	failed bool
}

// NewMonitor returns a Monitor. It does not run a check.
func NewMonitor(cfg Config) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Alerts == nil {
		cfg.Alerts = func() *alert.Dispatcher { return nil }
	}
	return &Monitor{cfg: cfg}
}

// Check verifies the ledger once and reports whether this check is a
// transition from valid (or unchecked) to invalid.
func (m *Monitor) Check(ctx context.Context) (audit.IntegrityReport, bool) {
	report := m.cfg.Ledger.VerifyIntegrity(ctx)

	m.mu.Lock()
	wasFailed := m.failed
	m.failed = !report.Valid
	m.last = &report
	m.mu.Unlock()

	if report.Valid {
		if wasFailed {
			m.cfg.Logger.Warn("audit ledger verifies again", zap.Int("entries", report.Entries))
		} else {
			m.cfg.Logger.Debug("audit ledger verified", zap.Int("entries", report.Entries))
		}
		return report, false
	}
	if wasFailed {
		return report, false
	}

	event := TamperEvent{
		Timestamp:       m.cfg.Clock().UTC().Format(audit.TimestampFormat),
		Type:            alert.TypeIntegrityViolation,
		Entries:         report.Entries,
		TamperedCount:   report.TamperedCount,
		FirstTamperedID: report.FirstTamperedID,
		Error:           report.Error,
	}
	event.Hostname, _ = os.Hostname()

	m.cfg.Logger.Error("audit ledger integrity violation",
		zap.Int("entries", report.Entries),
		zap.Int("tampered", report.TamperedCount),
		zap.Uint64("first_tampered_id", report.FirstTamperedID),
		zap.String("error", report.Error))
	if err := m.writeTamperEvent(event); err != nil {
		m.cfg.Logger.Error("failed to write tamper log", zap.String("path", m.cfg.TamperLog), zap.Error(err))
	}
	m.cfg.Alerts().Dispatch(alertFor(event))
	return report, true
}

// Last returns the most recent report, if any check has run.
func (m *Monitor) Last() (audit.IntegrityReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return audit.IntegrityReport{}, false
	}
	return *m.last, true
}

// Run checks immediately and then on every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

func (m *Monitor) writeTamperEvent(event TamperEvent) error {
	if m.cfg.TamperLog == "" {
		return nil
	}
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.cfg.TamperLog), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(m.cfg.TamperLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func alertFor(event TamperEvent) alert.AlertEvent {
	reason := fmt.Sprintf("%d of %d audit entries failed verification", event.TamperedCount, event.Entries)
	if event.FirstTamperedID > 0 {
		reason += fmt.Sprintf(", first at id %d", event.FirstTamperedID)
	}
	if event.Error != "" {
		reason = "audit ledger could not be verified: " + event.Error
	}
	return alert.AlertEvent{
		Timestamp: event.Timestamp,
		Reason:    reason,
		Type:      alert.TypeIntegrityViolation,
	}
}
