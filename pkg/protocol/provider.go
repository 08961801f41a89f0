package protocol

import (
	"context"

	"github.com/wastorga/sim/pkg/models"
)

// RateLimitPolicy decides how a rate-limited delivery is answered to the provider.
type RateLimitPolicy int

const (
	// RateLimitSoft answers 200 so the provider does not retry or disable the endpoint.
	RateLimitSoft RateLimitPolicy = iota
	// RateLimitStrict answers 429 with a Retry-After header.
	RateLimitStrict
)

func (p RateLimitPolicy) String() string {
	if p == RateLimitStrict {
		return "strict"
	}

	return "soft"
}

// ParseRateLimitPolicy maps "soft"/"strict" to a policy. ok is false for any other value.
func ParseRateLimitPolicy(value string) (RateLimitPolicy, bool) {
	switch value {
	case "soft":
		return RateLimitSoft, true
	case "strict":
		return RateLimitStrict, true
	default:
		return RateLimitSoft, false
	}
}

// Provider is the strategy for one external webhook source.
type Provider interface {
	// ID is the value stored in Webhook.Provider.
	ID() string

	// Verify checks the authenticity of req against the webhook's provider config.
	// It must only read RawBody, never a re-serialized Body.
	Verify(ctx context.Context, webhook *models.Webhook, req *InboundRequest) error

	// RateLimitPolicy is the default answer when the owner exceeds their rate limit.
	RateLimitPolicy() RateLimitPolicy

	// Acknowledge is the success response once the execution has been queued.
	Acknowledge(req *InboundRequest) *Response
}

// WebhookFinder resolves the active webhook at path.
type WebhookFinder func(ctx context.Context, path string) (*models.Webhook, error)

// Challenger is implemented by providers that perform a verification handshake.
type Challenger interface {
	// Challenge returns a response when req is a handshake for this provider, nil otherwise.
	Challenge(ctx context.Context, req *InboundRequest, find WebhookFinder) (*Response, error)
}

// PayloadValidator is implemented by providers that validate the parsed body before queueing.
type PayloadValidator interface {
	ValidatePayload(ctx context.Context, webhook *models.Webhook, req *InboundRequest) error
}
