package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ppiankov/toolgate/internal/model"
)

// DefaultIssuer is the iss claim on issued tokens.
const DefaultIssuer = "toolgate"

// Claims is the bearer token payload. Subject is the actor ID.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTAuthenticator validates HS256 bearer tokens.
// When a directory is set, the token's actor must exist there with the same role.
type JWTAuthenticator struct {
	secret []byte
	issuer string
	dir    *Directory
	now    func() time.Time
}

// NewJWTAuthenticator returns an authenticator for tokens signed with secret.
func NewJWTAuthenticator(secret []byte, dir *Directory) (*JWTAuthenticator, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("identity: jwt secret must be at least 32 bytes")
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &JWTAuthenticator{secret: s, issuer: DefaultIssuer, dir: dir, now: time.Now}, nil
}

// Issue signs a token for actor valid for ttl.
func (a *JWTAuthenticator) Issue(actor Actor, ttl time.Duration) (string, error) {
	if !actor.Role.Valid() || actor.ID == "" {
		return "", fmt.Errorf("identity: invalid actor %+v", actor)
	}
	now := a.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: string(actor.Role),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *JWTAuthenticator) Authenticate(_ context.Context, c Credentials) (Actor, error) {
	token, err := jwt.ParseWithClaims(c.Bearer, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return Actor{}, fmt.Errorf("%w: invalid token claims", ErrUnauthenticated)
	}
	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	actor := Actor{ID: claims.Subject, Role: role}
	if a.dir != nil {
		known, ok := a.dir.Lookup(actor.ID)
		if !ok {
			return Actor{}, fmt.Errorf("%w: unknown or disabled actor", ErrUnauthenticated)
		}
		if known.Role != actor.Role {
			return Actor{}, fmt.Errorf("%w: token role does not match directory", ErrUnauthenticated)
		}
	}
	return actor, nil
}
