package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const maxLineSize = 1 << 20

// ledgerFile is the part of *os.File the store writes through.
type ledgerFile interface {
	io.Writer
	io.Closer
	Sync() error
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
}

// JSONLStore is an append-only JSONL file, one entry per line,
// synced to disk after every write. A failed write is rolled back to the
// previous size; if the rollback fails the store refuses further writes.
type JSONLStore struct {
	path   string
	file   ledgerFile
	mu     sync.Mutex
	broken error
}

// OpenJSONL opens (or creates) a JSONL ledger file for appending.
func OpenJSONL(path string) (*JSONLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open file: %w", err)
	}
	return &JSONLStore{path: path, file: file}, nil
}

// Path returns the file backing the store.
func (s *JSONLStore) Path() string {
	return s.path
}

func (s *JSONLStore) Append(_ context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return fmt.Errorf("audit: store unusable after failed rollback: %w", s.broken)
	}
	fi, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("audit: stat log: %w", err)
	}
	size := fi.Size()

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return s.rollback(size, fmt.Errorf("audit: write entry: %w", err))
	}
	if err := s.file.Sync(); err != nil {
		return s.rollback(size, fmt.Errorf("audit: sync: %w", err))
	}
	return nil
}

// rollback truncates a partially written entry so the next append
// reuses its id without leaving a duplicate line behind.
func (s *JSONLStore) rollback(size int64, cause error) error {
	if err := s.file.Truncate(size); err != nil {
		s.broken = errors.Join(cause, err)
		return fmt.Errorf("%w (rollback failed: %v)", cause, err)
	}
	if err := s.file.Sync(); err != nil {
		s.broken = errors.Join(cause, err)
		return fmt.Errorf("%w (rollback sync failed: %v)", cause, err)
	}
	return cause
}

// Records re-reads the file from disk.
func (s *JSONLStore) Records(_ context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ReadFile(s.path)
}

// Close flushes and closes the underlying file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// ReadFile decodes every non-empty line of a JSONL ledger file.
// Undecodable lines are returned as records with Err set.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	var out []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		out = append(out, decodeRecord(line))
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("audit: scan log: %w", err)
	}
	return out, nil
}
