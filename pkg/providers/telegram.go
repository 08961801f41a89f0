package providers

import (
	"context"
	"net/http"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/protocol"
)

// Telegram checks the secret token set through setWebhook.
type Telegram struct{}

func NewTelegram() *Telegram {
	return &Telegram{}
}

func (t *Telegram) ID() string {
	return "telegram"
}

func (t *Telegram) Verify(_ context.Context, webhook *models.Webhook, req *protocol.InboundRequest) error {
	expected := webhook.ConfigString("secretToken")
	if expected == "" {
		return nil
	}

	if !tokensEqual(req.Header("X-Telegram-Bot-Api-Secret-Token"), expected) {
		return unauthorized("telegram secret token mismatch")
	}

	return nil
}

func (t *Telegram) RateLimitPolicy() protocol.RateLimitPolicy {
	return protocol.RateLimitSoft
}

func (t *Telegram) Acknowledge(req *protocol.InboundRequest) *protocol.Response {
	return protocol.JSON(http.StatusOK, map[string]any{"message": "Webhook processed", "requestId": req.RequestID})
}
