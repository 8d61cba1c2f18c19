package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles known to the permission table.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// ErrUnauthenticated is returned when a token does not resolve to an identity.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the resolved caller of a connection.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

// Authenticator resolves a connection token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// Claims are the JWT claims carried by connection tokens.
type Claims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator validates HS256 tokens.
type JWTAuthenticator struct {
	secret []byte
	issuer string
}

// NewJWTAuthenticator creates an authenticator for secret. A non-empty issuer
// is enforced on validation and set on issued tokens.
func NewJWTAuthenticator(secret, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), issuer: issuer}
}

// Authenticate parses and validates token.
func (a *JWTAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrUnauthenticated)
	}

	id := Identity{ID: claims.Subject, Name: claims.Name, Role: claims.Role}
	if id.Name == "" {
		id.Name = id.ID
	}
	if id.Role == "" {
		id.Role = RoleViewer
	}
	return id, nil
}

// Issue signs a token for id valid for ttl.
func (a *JWTAuthenticator) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: id.Name,
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// TokenAuthenticator resolves fixed tokens, for static deployments and tests.
type TokenAuthenticator map[string]Identity

// Authenticate looks token up.
func (t TokenAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	id, ok := t[token]
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}
