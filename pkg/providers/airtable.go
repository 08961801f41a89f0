package providers

import (
	"context"
	"net/http"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/protocol"
)

// Airtable pings carry no signature; the payload is fetched by the workflow itself.
type Airtable struct{}

func NewAirtable() *Airtable {
	return &Airtable{}
}

func (a *Airtable) ID() string {
	return "airtable"
}

func (a *Airtable) Verify(context.Context, *models.Webhook, *protocol.InboundRequest) error {
	return nil
}

func (a *Airtable) RateLimitPolicy() protocol.RateLimitPolicy {
	return protocol.RateLimitSoft
}

func (a *Airtable) Acknowledge(req *protocol.InboundRequest) *protocol.Response {
	return protocol.JSON(http.StatusOK, map[string]any{"message": "Webhook processed", "requestId": req.RequestID})
}
