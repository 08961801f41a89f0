// Package providers implements the per-provider webhook strategies: authenticity checks,
// handshakes, payload validation and acknowledgments.
package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned by every failed authenticity check. The wrapped
	// detail is for logs only; clients always receive a generic message.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidPayload indicates the parsed body does not satisfy the webhook's schema.
	ErrInvalidPayload = errors.New("invalid payload")
)

func unauthorized(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnauthorized, fmt.Sprintf(format, args...))
}

// PayloadError lists the schema violations of a rejected payload.
type PayloadError struct {
	Violations []string
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("%v: %d schema violation(s)", ErrInvalidPayload, len(e.Violations))
}

func (e *PayloadError) Unwrap() error {
	return ErrInvalidPayload
}
