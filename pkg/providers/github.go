package providers

import (
	"context"
	"net/http"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/protocol"
)

// GitHub verifies X-Hub-Signature-256. GitHub redelivers on failure, so rate limits are strict.
type GitHub struct{}

func NewGitHub() *GitHub {
	return &GitHub{}
}

func (g *GitHub) ID() string {
	return "github"
}

func (g *GitHub) Verify(_ context.Context, webhook *models.Webhook, req *protocol.InboundRequest) error {
	secret := webhook.ConfigString("secret")
	if secret == "" {
		return nil
	}

	return verifyHexSignature(req.Header("X-Hub-Signature-256"), "sha256=", hmacSHA256([]byte(secret), req.RawBody))
}

func (g *GitHub) RateLimitPolicy() protocol.RateLimitPolicy {
	return protocol.RateLimitStrict
}

func (g *GitHub) Acknowledge(req *protocol.InboundRequest) *protocol.Response {
	return protocol.JSON(http.StatusOK, map[string]any{"message": "Webhook processed", "requestId": req.RequestID})
}
