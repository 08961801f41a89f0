// Package auth authenticates callers of the management endpoints: the test URL minting
// route and the outbound webhook settings.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// InternalSecretHeader carries INTERNAL_API_SECRET on calls from the app backend.
	InternalSecretHeader = "X-Internal-Secret"
	// UserIDHeader names the user an internal call acts for. Optional.
	UserIDHeader = "X-User-Id"

	audience = "sim-api"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid or expired credentials")
)

// Claims of a session token. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	Internal bool
}

// CanAccess reports whether the caller may manage resources owned by ownerID.
// Internal callers without a user act for everyone.
func (p Principal) CanAccess(ownerID string) bool {
	if p.Internal && p.UserID == "" {
		return true
	}

	return p.UserID != "" && p.UserID == ownerID
}

// Credentials are the raw authentication inputs of one request.
type Credentials struct {
	Authorization  string
	InternalSecret string
	UserID         string
}

// Authenticator verifies session bearer tokens and the shared internal secret.
// An empty secret disables the matching credential kind.
type Authenticator struct {
	sessionSecret  []byte
	internalSecret []byte
	Now            func() time.Time
}

func NewAuthenticator(sessionSecret, internalSecret string) *Authenticator {
	return &Authenticator{
		sessionSecret:  []byte(sessionSecret),
		internalSecret: []byte(internalSecret),
		Now:            time.Now,
	}
}

// Enabled reports whether any credential kind can succeed.
func (a *Authenticator) Enabled() bool {
	return len(a.sessionSecret) > 0 || len(a.internalSecret) > 0
}

// Authenticate resolves the caller. The internal secret takes precedence over a bearer token.
func (a *Authenticator) Authenticate(creds Credentials) (Principal, error) {
	if creds.InternalSecret != "" {
		if len(a.internalSecret) == 0 || subtle.ConstantTimeCompare([]byte(creds.InternalSecret), a.internalSecret) != 1 {
			return Principal{}, ErrInvalidCredentials
		}

		return Principal{UserID: creds.UserID, Internal: true}, nil
	}

	if creds.Authorization == "" {
		return Principal{}, ErrMissingCredentials
	}

	scheme, token, ok := strings.Cut(creds.Authorization, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return Principal{}, ErrInvalidCredentials
	}

	claims, err := a.ParseSession(token)
	if err != nil {
		return Principal{}, err
	}

	return Principal{UserID: claims.Subject}, nil
}

// IssueSession signs a session token for userID.
func (a *Authenticator) IssueSession(userID string, ttl time.Duration) (string, error) {
	if len(a.sessionSecret) == 0 {
		return "", fmt.Errorf("%w: session secret is not configured", ErrInvalidCredentials)
	}

	now := a.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.sessionSecret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	return signed, nil
}

// ParseSession validates a session token. Test webhook tokens are rejected by audience.
func (a *Authenticator) ParseSession(token string) (*Claims, error) {
	if len(a.sessionSecret) == 0 {
		return nil, ErrInvalidCredentials
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return a.sessionSecret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}

	return claims, nil
}
