// Package mirror copies ledger entries to secondary destinations.
// Mirrors are for search and alerting; the durable store stays the
// source of truth for integrity checks.
package mirror

import (
	"context"

	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/audit"
)

// LogSink writes every entry to a structured logger.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a sink that logs entries at info level.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(_ context.Context, e audit.Entry) error {
	s.logger.Info("audit_entry",
		zap.Uint64("id", e.ID),
		zap.String("ts", e.Timestamp),
		zap.String("action_id", e.ActionID),
		zap.String("actor_id", e.ActorID),
		zap.String("role", string(e.Role)),
		zap.String("action", string(e.Action)),
		zap.String("resource", e.Resource),
		zap.String("decision", string(e.Decision)),
		zap.Float64("risk_score", e.RiskScore),
		zap.String("reason", e.Reason),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
