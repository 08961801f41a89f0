package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

// Generic handles plain HTTP webhooks with optional token auth and JSON-schema validation.
//
// Provider config keys:
//   - requireAuth: enables token auth
//   - token: the expected token
//   - secretHeaderName: header carrying the token; defaults to "Authorization: Bearer <token>"
//   - jsonSchema: a JSON schema object the body must satisfy
type Generic struct{}

func NewGeneric() *Generic {
	return &Generic{}
}

func (g *Generic) ID() string {
	return "generic"
}

func (g *Generic) Verify(_ context.Context, webhook *models.Webhook, req *protocol.InboundRequest) error {
	if !webhook.ConfigBool("requireAuth") {
		return nil
	}

	expected := webhook.ConfigString("token")
	if expected == "" {
		return unauthorized("auth required but no token configured")
	}

	if header := webhook.ConfigString("secretHeaderName"); header != "" {
		if !tokensEqual(req.Header(header), expected) {
			return unauthorized("token in %s header does not match", header)
		}

		return nil
	}

	authorization := req.Header("Authorization")

	token, found := strings.CutPrefix(authorization, "Bearer ")
	if !found || !tokensEqual(token, expected) {
		return unauthorized("bearer token does not match")
	}

	return nil
}

func (g *Generic) ValidatePayload(_ context.Context, webhook *models.Webhook, req *protocol.InboundRequest) error {
	schema := webhook.ConfigMap("jsonSchema")
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(req.Body))
	if err != nil {
		return fmt.Errorf("failed to evaluate json schema: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}

	return &PayloadError{Violations: violations}
}

func (g *Generic) RateLimitPolicy() protocol.RateLimitPolicy {
	return protocol.RateLimitSoft
}

func (g *Generic) Acknowledge(req *protocol.InboundRequest) *protocol.Response {
	return protocol.JSON(http.StatusOK, map[string]any{
		"message":   "Webhook processed",
		"requestId": req.RequestID,
	})
}
