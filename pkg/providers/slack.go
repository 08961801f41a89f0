package providers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/protocol"
)

const slackTimestampTolerance = 5 * time.Minute

// Slack verifies v0 request signatures and answers url_verification handshakes.
type Slack struct {
	Now func() time.Time
}

func NewSlack() *Slack {
	return &Slack{Now: time.Now}
}

func (s *Slack) ID() string {
	return "slack"
}

// Verify checks X-Slack-Signature when a signingSecret is configured.
func (s *Slack) Verify(_ context.Context, webhook *models.Webhook, req *protocol.InboundRequest) error {
	secret := webhook.ConfigString("signingSecret")
	if secret == "" {
		return nil
	}

	timestamp := req.Header("X-Slack-Request-Timestamp")

	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return unauthorized("invalid slack request timestamp")
	}

	skew := s.Now().Sub(time.Unix(seconds, 0))
	if skew > slackTimestampTolerance || skew < -slackTimestampTolerance {
		return unauthorized("slack request timestamp outside tolerance")
	}

	expected := hmacSHA256([]byte(secret), []byte("v0:"+timestamp+":"), req.RawBody)

	return verifyHexSignature(req.Header("X-Slack-Signature"), "v0=", expected)
}

// Challenge answers {"type":"url_verification"} with the echoed challenge.
func (s *Slack) Challenge(_ context.Context, req *protocol.InboundRequest, _ protocol.WebhookFinder) (*protocol.Response, error) {
	body := req.BodyMap()
	if body == nil || body["type"] != "url_verification" {
		return nil, nil
	}

	challenge, ok := body["challenge"].(string)
	if !ok {
		return nil, nil
	}

	return protocol.JSON(http.StatusOK, map[string]any{"challenge": challenge}), nil
}

func (s *Slack) RateLimitPolicy() protocol.RateLimitPolicy {
	return protocol.RateLimitSoft
}

func (s *Slack) Acknowledge(req *protocol.InboundRequest) *protocol.Response {
	return protocol.JSON(http.StatusOK, map[string]any{"message": "Webhook processed", "requestId": req.RequestID})
}
