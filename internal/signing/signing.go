// Package signing provides the keyed digests that chain audit entries.
package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ErrSigningUnavailable means no signature can be produced. Callers must
// stop recording rather than write unsigned entries.
var ErrSigningUnavailable = errors.New("signing: keyed digest unavailable")

// MinKeyLen is the shortest accepted key, in bytes.
const MinKeyLen = 32

// EnvKey names the environment variable holding a hex-encoded key.
const EnvKey = "TOOLGATE_SIGNING_KEY"

// Algorithm names.
const (
	AlgHMACSHA256 = "hmac-sha256"
	AlgBLAKE2b256 = "blake2b-256"
)

// Signer produces a keyed digest over arbitrary input.
type Signer interface {
	Algorithm() string
	// Sign returns "<algorithm>:<hex digest>".
	Sign(data []byte) (string, error)
}

// New returns the Signer for algorithm, keyed with key.
func New(algorithm string, key []byte) (Signer, error) {
	switch strings.ToLower(algorithm) {
	case "", AlgHMACSHA256:
		return NewHMAC(key)
	case AlgBLAKE2b256:
		return NewBLAKE2b(key)
	default:
		return nil, fmt.Errorf("signing: unknown algorithm %q", algorithm)
	}
}

// HMACSigner signs with HMAC-SHA256.
type HMACSigner struct {
	key []byte
}

// NewHMAC returns an HMAC-SHA256 signer.
func NewHMAC(key []byte) (*HMACSigner, error) {
	if err := checkKey(key, 0); err != nil {
		return nil, err
	}
	return &HMACSigner{key: cloneKey(key)}, nil
}

func (s *HMACSigner) Algorithm() string { return AlgHMACSHA256 }

func (s *HMACSigner) Sign(data []byte) (string, error) {
	return digest(s.Algorithm(), hmac.New(sha256.New, s.key), data)
}

// BLAKE2bSigner signs with keyed BLAKE2b-256.
type BLAKE2bSigner struct {
	key []byte
}

// NewBLAKE2b returns a keyed BLAKE2b-256 signer. Keys longer than 64 bytes are rejected.
func NewBLAKE2b(key []byte) (*BLAKE2bSigner, error) {
	if err := checkKey(key, blake2b.Size); err != nil {
		return nil, err
	}
	return &BLAKE2bSigner{key: cloneKey(key)}, nil
}

func (s *BLAKE2bSigner) Algorithm() string { return AlgBLAKE2b256 }

func (s *BLAKE2bSigner) Sign(data []byte) (string, error) {
	h, err := blake2b.New256(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	return digest(s.Algorithm(), h, data)
}

func digest(alg string, h hash.Hash, data []byte) (string, error) {
	if _, err := h.Write(data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	return alg + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the signature of data and compares it in constant time.
// Any signing failure reports false.
func Verify(s Signer, data []byte, signature string) bool {
	want, err := s.Sign(data)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(signature))
}

func checkKey(key []byte, max int) error {
	if len(key) < MinKeyLen {
		return fmt.Errorf("%w: key is %d bytes, need at least %d", ErrSigningUnavailable, len(key), MinKeyLen)
	}
	if max > 0 && len(key) > max {
		return fmt.Errorf("%w: key is %d bytes, at most %d allowed", ErrSigningUnavailable, len(key), max)
	}
	return nil
}

func cloneKey(key []byte) []byte {
	out := make([]byte, len(key))
	copy(out, key)
	return out
}

// GenerateKey returns MinKeyLen random bytes.
func GenerateKey() ([]byte, error) {
	key := make([]byte, MinKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("signing: generate key: %w", err)
	}
	return key, nil
}

// DecodeKey parses a hex-encoded key, ignoring surrounding whitespace.
func DecodeKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: key is not hex: %v", ErrSigningUnavailable, err)
	}
	if len(key) < MinKeyLen {
		return nil, fmt.Errorf("%w: key is %d bytes, need at least %d", ErrSigningUnavailable, len(key), MinKeyLen)
	}
	return key, nil
}

// LoadKey reads a hex key from path. An empty path falls back to $TOOLGATE_SIGNING_KEY.
// A missing or short key is reported as ErrSigningUnavailable.
func LoadKey(path string) ([]byte, error) {
	if path == "" {
		v := os.Getenv(EnvKey)
		if v == "" {
			return nil, fmt.Errorf("%w: no key file and %s is unset", ErrSigningUnavailable, EnvKey)
		}
		return DecodeKey(v)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read key: %v", ErrSigningUnavailable, err)
	}
	return DecodeKey(string(data))
}

// WriteKey writes key as hex to path with owner-only permissions.
// An existing file is never overwritten.
func WriteKey(path string, key []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("signing: create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("signing: create key file: %w", err)
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("signing: write key: %w", err)
	}
	return f.Close()
}

// DefaultKeyPath returns ~/.toolgate/signing.key.
func DefaultKeyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".toolgate", "signing.key")
}
