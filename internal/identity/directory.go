// Package identity resolves callers to actors and roles.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/toolgate/internal/model"
)

// ErrUnauthenticated is returned when credentials are missing or invalid.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// Actor is an authenticated caller.
type Actor struct {
	ID   string     `json:"id"`
	Role model.Role `json:"role"`
}

// ActorConfig is one directory record.
type ActorConfig struct {
	Role       string `yaml:"role" json:"role"`
	APIKeyHash string `yaml:"api_key_hash,omitempty" json:"-"`
	Disabled   bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

type directoryFile struct {
	Actors map[string]*ActorConfig `yaml:"actors"`
}

// Directory maps actor IDs to their roles and key hashes.
type Directory struct {
	actors map[string]*ActorConfig
	roles  map[string]model.Role
}

// NewDirectory validates the records and builds a Directory.
func NewDirectory(actors map[string]*ActorConfig) (*Directory, error) {
	d := &Directory{
		actors: make(map[string]*ActorConfig, len(actors)),
		roles:  make(map[string]model.Role, len(actors)),
	}
	for id, cfg := range actors {
		if id == "" || cfg == nil {
			return nil, fmt.Errorf("identity: empty actor record")
		}
		role, err := model.ParseRole(cfg.Role)
		if err != nil {
			return nil, fmt.Errorf("identity: actor %q: %w", id, err)
		}
		d.actors[id] = cfg
		d.roles[id] = role
	}
	return d, nil
}

// LoadDirectory reads a YAML actor directory.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read directory: %w", err)
	}
	var f directoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("identity: parse directory: %w", err)
	}
	return NewDirectory(f.Actors)
}

// Lookup returns the actor for id. Disabled actors are not returned.
func (d *Directory) Lookup(id string) (Actor, bool) {
	if d == nil {
		return Actor{}, false
	}
	cfg := d.actors[id]
	if cfg == nil || cfg.Disabled {
		return Actor{}, false
	}
	return Actor{ID: id, Role: d.roles[id]}, true
}

// IDs returns the known actor IDs, sorted.
func (d *Directory) IDs() []string {
	ids := make([]string, 0, len(d.actors))
	for id := range d.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Credentials are what a transport extracted from a request.
type Credentials struct {
	Bearer string
	APIKey string
}

// Authenticator resolves credentials to an actor.
type Authenticator interface {
	Authenticate(ctx context.Context, c Credentials) (Actor, error)
}

// Chain tries API keys first, then bearer tokens. Nil members are skipped.
type Chain struct {
	APIKeys *APIKeyAuthenticator
	Tokens  *JWTAuthenticator
}

func (c Chain) Authenticate(ctx context.Context, cred Credentials) (Actor, error) {
	switch {
	case cred.APIKey != "" && c.APIKeys != nil:
		return c.APIKeys.Authenticate(ctx, cred)
	case cred.Bearer != "" && c.Tokens != nil:
		return c.Tokens.Authenticate(ctx, cred)
	default:
		return Actor{}, fmt.Errorf("%w: no usable credentials", ErrUnauthenticated)
	}
}

type actorKey struct{}

// WithActor stores the authenticated actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored by WithActor.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
