package mirror

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/ppiankov/toolgate/internal/audit"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// ClickHouseSchema creates the mirror table.
const ClickHouseSchema = `
CREATE TABLE IF NOT EXISTS toolgate_audit (
	id UInt64,
	ts DateTime64(3, 'UTC'),
	action_id String,
	actor_id String,
	role LowCardinality(String),
	action LowCardinality(String),
	resource String,
	decision LowCardinality(String),
	risk_score Float64,
	reason String,
	policy_hash String,
	metadata Map(String, String),
	signature String
) ENGINE = MergeTree ORDER BY (ts, id)`

// batchWriter inserts one batch of entries.
type batchWriter interface {
	writeBatch(ctx context.Context, entries []audit.Entry) error
	close() error
}

// ClickHouseSink mirrors entries to ClickHouse asynchronously.
// Publish never blocks: entries are buffered and batch-inserted in a
// background goroutine, and dropped with a warning when the buffer is full.
type ClickHouseSink struct {
	w       batchWriter
	buffer  chan audit.Entry
	done    chan struct{}
	flushed chan struct{}
	logger  *zap.Logger
}

// NewClickHouseSink connects to dsn, creates the mirror table and starts the flush loop.
func NewClickHouseSink(ctx context.Context, dsn string, logger *zap.Logger) (*ClickHouseSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mirror: clickhouse dsn: %w", err)
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("mirror: clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mirror: clickhouse ping: %w", err)
	}
	if err := conn.Exec(ctx, ClickHouseSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("mirror: clickhouse schema: %w", err)
	}
	return newClickHouseSink(&clickhouseConn{conn: conn}, logger), nil
}

func newClickHouseSink(w batchWriter, logger *zap.Logger) *ClickHouseSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ClickHouseSink{
		w:       w,
		buffer:  make(chan audit.Entry, bufferSize),
		done:    make(chan struct{}),
		flushed: make(chan struct{}),
		logger:  logger,
	}
	go s.flushLoop()
	return s
}

// Publish queues an entry for insertion.
func (s *ClickHouseSink) Publish(_ context.Context, e audit.Entry) error {
	select {
	case s.buffer <- e:
		return nil
	default:
		s.logger.Warn("clickhouse buffer full, dropping entry", zap.Uint64("id", e.ID))
		return fmt.Errorf("mirror: clickhouse buffer full")
	}
}

// Close drains buffered entries and closes the connection.
func (s *ClickHouseSink) Close() error {
	close(s.done)
	<-s.flushed
	return s.w.close()
}

func (s *ClickHouseSink) flushLoop() {
	defer close(s.flushed)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]audit.Entry, 0, flushBatch)

	for {
		select {
		case e := <-s.buffer:
			batch = append(batch, e)
			if len(batch) >= flushBatch {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.done:
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
		drainLoop:
			for {
				select {
				case e := <-s.buffer:
					batch = append(batch, e)
				case <-drainCtx.Done():
					break drainLoop
				default:
					break drainLoop
				}
			}
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

func (s *ClickHouseSink) flush(entries []audit.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.w.writeBatch(ctx, entries); err != nil {
		s.logger.Error("clickhouse batch send failed",
			zap.Int("batch_size", len(entries)),
			zap.Error(err),
		)
	}
}

type clickhouseConn struct {
	conn driver.Conn
}

func (c *clickhouseConn) writeBatch(ctx context.Context, entries []audit.Entry) error {
	batch, err := c.conn.PrepareBatch(ctx, `
		INSERT INTO toolgate_audit (
			id, ts, action_id, actor_id, role, action, resource,
			decision, risk_score, reason, policy_hash, metadata, signature
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range entries {
		ts, err := e.Time()
		if err != nil {
			ts = time.Now().UTC()
		}
		meta := e.Metadata
		if meta == nil {
			meta = map[string]string{}
		}
		if err := batch.Append(
			e.ID,
			ts,
			e.ActionID,
			e.ActorID,
			string(e.Role),
			string(e.Action),
			e.Resource,
			string(e.Decision),
			e.RiskScore,
			e.Reason,
			e.PolicyHash,
			meta,
			e.Signature,
		); err != nil {
			return fmt.Errorf("append entry %d: %w", e.ID, err)
		}
	}
	return batch.Send()
}

func (c *clickhouseConn) close() error {
	return c.conn.Close()
}
