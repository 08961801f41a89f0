// Package testtoken issues and verifies the short-lived signed tokens that authorize
// calls to a webhook's test URL.
package testtoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const audience = "webhook-test"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrEmptySecret  = errors.New("test token secret is empty")
)

// Claims binds a token to one webhook. The subject is the webhook id.
type Claims struct {
	jwt.RegisteredClaims

	WorkflowID string `json:"wid,omitempty"`
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	Now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	return &Issuer{secret: []byte(secret), ttl: ttl, Now: time.Now}, nil
}

// Issue signs a token for webhookID and returns it with its expiry.
func (i *Issuer) Issue(webhookID, workflowID string) (string, time.Time, error) {
	now := i.Now()
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   webhookID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		WorkflowID: workflowID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign test token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify checks the signature, expiry and webhook binding of token. Every failure is ErrInvalidToken.
func (i *Issuer) Verify(token, webhookID string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return i.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Subject != webhookID {
		return nil, fmt.Errorf("%w: token is bound to another webhook", ErrInvalidToken)
	}

	return claims, nil
}
