package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Record is one entry as read back from durable storage.
// Err is set when the stored bytes could not be decoded.
type Record struct {
	Entry Entry
	Err   error
}

// Store is the durable append log behind a Ledger.
// Implementations persist in append order, never update or delete,
// and return records in the same order.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Records(ctx context.Context) ([]Record, error)
	Close() error
}

// Sink receives every entry after it is durably stored.
// Sink failures are logged and never fail an append.
type Sink interface {
	Publish(ctx context.Context, e Entry) error
}

// MemoryStore keeps encoded entries in process memory.
type MemoryStore struct {
	mu    sync.Mutex
	lines [][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Records(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.lines))
	for _, line := range s.lines {
		out = append(out, decodeRecord(line))
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func decodeRecord(line []byte) Record {
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Record{Err: fmt.Errorf("decode: %w", err)}
	}
	return Record{Entry: e}
}
