package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/protocol"
)

// WhatsApp covers the Meta Cloud API: hub.* subscription handshakes and app-secret signatures.
type WhatsApp struct{}

func NewWhatsApp() *WhatsApp {
	return &WhatsApp{}
}

func (w *WhatsApp) ID() string {
	return "whatsapp"
}

func (w *WhatsApp) Verify(_ context.Context, webhook *models.Webhook, req *protocol.InboundRequest) error {
	secret := webhook.ConfigString("appSecret")
	if secret == "" {
		return nil
	}

	return verifyHexSignature(req.Header("X-Hub-Signature-256"), "sha256=", hmacSHA256([]byte(secret), req.RawBody))
}

// Challenge answers hub.mode=subscribe by echoing hub.challenge when hub.verify_token
// matches the verificationToken of the webhook registered at the request path.
func (w *WhatsApp) Challenge(ctx context.Context, req *protocol.InboundRequest, find protocol.WebhookFinder) (*protocol.Response, error) {
	if req.Query.Get("hub.mode") != "subscribe" {
		return nil, nil
	}

	token := req.Query.Get("hub.verify_token")
	challenge := req.Query.Get("hub.challenge")

	if token == "" || challenge == "" {
		return nil, nil
	}

	webhook, err := find(ctx, req.Path)
	if errors.Is(err, persistence.ErrWebhookNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	if webhook == nil || webhook.Provider != w.ID() {
		return nil, nil
	}

	if !tokensEqual(token, webhook.ConfigString("verificationToken")) {
		return protocol.Text(http.StatusForbidden, "Verification token mismatch"), nil
	}

	return protocol.Text(http.StatusOK, challenge), nil
}

func (w *WhatsApp) RateLimitPolicy() protocol.RateLimitPolicy {
	return protocol.RateLimitSoft
}

func (w *WhatsApp) Acknowledge(req *protocol.InboundRequest) *protocol.Response {
	return protocol.JSON(http.StatusOK, map[string]any{"message": "Webhook processed", "requestId": req.RequestID})
}
