package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/protocol"
)

// MicrosoftTeams verifies outgoing-webhook HMAC auth and answers Graph validation requests.
type MicrosoftTeams struct{}

func NewMicrosoftTeams() *MicrosoftTeams {
	return &MicrosoftTeams{}
}

func (m *MicrosoftTeams) ID() string {
	return "microsoftteams"
}

// Verify checks "Authorization: HMAC <base64>" keyed with the base64-decoded hmacSecret.
func (m *MicrosoftTeams) Verify(_ context.Context, webhook *models.Webhook, req *protocol.InboundRequest) error {
	secret := webhook.ConfigString("hmacSecret")
	if secret == "" {
		return nil
	}

	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return unauthorized("teams hmac secret is not base64 encoded")
	}

	return verifyBase64Signature(req.Header("Authorization"), "HMAC ", hmacSHA256(key, req.RawBody))
}

// Challenge echoes the validationToken query parameter of a Graph subscription, but only
// for a path registered to a Teams webhook.
func (m *MicrosoftTeams) Challenge(ctx context.Context, req *protocol.InboundRequest, find protocol.WebhookFinder) (*protocol.Response, error) {
	token := req.Query.Get("validationToken")
	if token == "" {
		return nil, nil
	}

	webhook, err := find(ctx, req.Path)
	if errors.Is(err, persistence.ErrWebhookNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	if webhook == nil || webhook.Provider != m.ID() {
		return nil, nil
	}

	return protocol.Text(http.StatusOK, token), nil
}

func (m *MicrosoftTeams) RateLimitPolicy() protocol.RateLimitPolicy {
	return protocol.RateLimitSoft
}

// Acknowledge replies with a message activity, which Teams renders in the channel.
func (m *MicrosoftTeams) Acknowledge(_ *protocol.InboundRequest) *protocol.Response {
	return protocol.JSON(http.StatusOK, map[string]any{"type": "message", "text": "Sim"})
}
