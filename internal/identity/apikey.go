package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix starts every API key. The actor ID follows, then a dot and the secret:
// tgk_<actor>.<secret>
const KeyPrefix = "tgk_"

// GenerateAPIKey returns a new key for actorID and its bcrypt hash.
func GenerateAPIKey(actorID string) (key, hash string, err error) {
	if actorID == "" || strings.Contains(actorID, ".") {
		return "", "", fmt.Errorf("identity: actor id must be non-empty and contain no dots")
	}
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("identity: generate key: %w", err)
	}
	key = KeyPrefix + actorID + "." + hex.EncodeToString(b)
	hash, err = HashAPIKey(key)
	return key, hash, err
}

// HashAPIKey returns the bcrypt hash stored in the directory.
func HashAPIKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("identity: hash key: %w", err)
	}
	return string(h), nil
}

// ParseAPIKey extracts the actor ID from a key.
func ParseAPIKey(key string) (string, bool) {
	if !strings.HasPrefix(key, KeyPrefix) {
		return "", false
	}
	rest := strings.TrimPrefix(key, KeyPrefix)
	idx := strings.LastIndexByte(rest, '.')
	if idx <= 0 || idx == len(rest)-1 {
		return "", false
	}
	return rest[:idx], true
}

// APIKeyAuthenticator checks keys against the directory's bcrypt hashes.
type APIKeyAuthenticator struct {
	dir *Directory
}

// NewAPIKeyAuthenticator returns an authenticator over dir.
func NewAPIKeyAuthenticator(dir *Directory) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{dir: dir}
}

func (a *APIKeyAuthenticator) Authenticate(_ context.Context, c Credentials) (Actor, error) {
	id, ok := ParseAPIKey(c.APIKey)
	if !ok {
		return Actor{}, fmt.Errorf("%w: malformed api key", ErrUnauthenticated)
	}
	actor, ok := a.dir.Lookup(id)
	if !ok {
		return Actor{}, fmt.Errorf("%w: unknown actor", ErrUnauthenticated)
	}
	hash := a.dir.actors[id].APIKeyHash
	if hash == "" {
		return Actor{}, fmt.Errorf("%w: actor has no api key", ErrUnauthenticated)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(c.APIKey)); err != nil {
		return Actor{}, fmt.Errorf("%w: invalid api key", ErrUnauthenticated)
	}
	return actor, nil
}
