package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/toolgate/internal/model"
)

var (
	// ErrNotFound is returned for an unknown action id.
	ErrNotFound = errors.New("approval: pending action not found")
	// ErrAlreadyResolved is returned when a record has left the pending state.
	ErrAlreadyResolved = errors.New("approval: action already resolved")
)

// validKey matches alphanumeric, dash, underscore, and dot characters only.
var validKey = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// validateKey rejects keys that could cause path traversal.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("key must not contain '..'")
	}
	if !validKey.MatchString(key) {
		return fmt.Errorf("key contains invalid characters: only alphanumeric, dash, underscore, and dot are allowed")
	}
	return nil
}

// Status represents the state of a held action.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// ParseStatus accepts a status name; empty means any status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	switch st {
	case "", StatusPending, StatusApproved, StatusDenied, StatusExpired:
		return st, nil
	}
	return "", &model.ValidationError{Field: "status", Value: s, Reason: "unknown status"}
}

// Pending is a held action awaiting a human decision.
type Pending struct {
	ActionID   string            `json:"action_id"`
	ActorID    string            `json:"actor_id"`
	Role       model.Role        `json:"role"`
	Action     model.ActionKind  `json:"action"`
	Resource   string            `json:"resource"`
	RiskScore  float64           `json:"risk_score"`
	Reason     string            `json:"reason"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     Status            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	ResolvedBy string            `json:"resolved_by,omitempty"`
	Resolution string            `json:"resolution,omitempty"`
}

// Resolved reports whether the record has left the pending state.
func (p Pending) Resolved() bool {
	return p.Status != StatusPending
}

// Store persists pending actions.
type Store interface {
	// Request records a new pending action. Requesting an existing id is a no-op.
	Request(p Pending) error
	Get(actionID string) (Pending, error)
	// Resolve moves a pending record to status exactly once.
	Resolve(actionID string, status Status, resolver, reason string, at time.Time) (Pending, error)
	// List returns records in creation order, optionally restricted to one status.
	List(status Status) ([]Pending, error)
}

func checkResolution(p *Pending, status Status) error {
	if status == StatusPending || status == "" {
		return fmt.Errorf("approval: cannot resolve to %q", status)
	}
	if p.Resolved() {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, p.ActionID, p.Status)
	}
	return nil
}

func sortPending(list []Pending) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ActionID < list[j].ActionID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

// FileStore manages one JSON file per pending action.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore backed by the given directory.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create approval directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// DefaultDir returns the default pending store directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "toolgate-pending")
	}
	return filepath.Join(home, ".toolgate", "pending")
}

func (s *FileStore) Request(p Pending) error {
	if err := validateKey(p.ActionID); err != nil {
		return fmt.Errorf("invalid action id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(p.ActionID)
	if _, err := os.Stat(path); err == nil {
		return nil // already exists
	}

	p.Status = StatusPending
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return s.writeAtomic(path, p)
}

func (s *FileStore) Get(actionID string) (Pending, error) {
	if err := validateKey(actionID); err != nil {
		return Pending{}, fmt.Errorf("invalid action id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.read(actionID)
	if err != nil {
		return Pending{}, err
	}
	return *p, nil
}

func (s *FileStore) Resolve(actionID string, status Status, resolver, reason string, at time.Time) (Pending, error) {
	if err := validateKey(actionID); err != nil {
		return Pending{}, fmt.Errorf("invalid action id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.read(actionID)
	if err != nil {
		return Pending{}, err
	}
	if err := checkResolution(p, status); err != nil {
		return *p, err
	}

	at = at.UTC()
	p.Status = status
	p.ResolvedAt = &at
	p.ResolvedBy = resolver
	p.Resolution = reason

	if err := s.writeAtomic(s.path(actionID), *p); err != nil {
		return Pending{}, err
	}
	return *p, nil
}

func (s *FileStore) List(status Status) ([]Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var list []Pending
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		p, err := s.read(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		if status != "" && p.Status != status {
			continue
		}
		list = append(list, *p)
	}
	sortPending(list)
	return list, nil
}

// Cleanup removes all records in the store.
func (s *FileStore) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) read(key string) (*Pending, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, err
	}

	var p Pending
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("approval: corrupt record %s: %w", key, err)
	}
	return &p, nil
}

func (s *FileStore) writeAtomic(path string, p Pending) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// MemoryStore keeps pending actions in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Pending
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Pending)}
}

func (s *MemoryStore) Request(p Pending) error {
	if err := validateKey(p.ActionID); err != nil {
		return fmt.Errorf("invalid action id: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[p.ActionID]; ok {
		return nil
	}
	p.Status = StatusPending
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	p.Metadata = copyMetadata(p.Metadata)
	s.records[p.ActionID] = p
	return nil
}

func (s *MemoryStore) Get(actionID string) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[actionID]
	if !ok {
		return Pending{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
	}
	p.Metadata = copyMetadata(p.Metadata)
	return p, nil
}

func (s *MemoryStore) Resolve(actionID string, status Status, resolver, reason string, at time.Time) (Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.records[actionID]
	if !ok {
		return Pending{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
	}
	if err := checkResolution(&p, status); err != nil {
		return p, err
	}
	at = at.UTC()
	p.Status = status
	p.ResolvedAt = &at
	p.ResolvedBy = resolver
	p.Resolution = reason
	s.records[actionID] = p
	return p, nil
}

func (s *MemoryStore) List(status Status) ([]Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]Pending, 0, len(s.records))
	for _, p := range s.records {
		if status != "" && p.Status != status {
			continue
		}
		p.Metadata = copyMetadata(p.Metadata)
		list = append(list, p)
	}
	sortPending(list)
	return list, nil
}

func copyMetadata(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
