package providers_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/protocol"
	"github.com/wastorga/sim/pkg/providers"
)

func sign(key, payload []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(payload)

	return mac.Sum(nil)
}

func request(body string, headers map[string]string) *protocol.InboundRequest {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}

	return &protocol.InboundRequest{RequestID: "req-1", Headers: h, Query: url.Values{}, RawBody: []byte(body)}
}

func TestGitHub_Verify(t *testing.T) {
	t.Parallel()

	body := `{"action":"opened","number":7}`
	hook := &models.Webhook{Provider: "github", ProviderConfig: map[string]any{"secret": "gh-secret"}}
	valid := "sha256=" + hex.EncodeToString(sign([]byte("gh-secret"), []byte(body)))

	tests := []struct {
		name    string
		body    string
		header  string
		wantErr bool
	}{
		{"valid signature", body, valid, false},
		{"one byte changed", `{"action":"opened","number":8}`, valid, true},
		{"missing header", body, "", true},
		{"garbage header", body, "sha256=zz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := request(tt.body, map[string]string{"X-Hub-Signature-256": tt.header})
			err := providers.NewGitHub().Verify(context.Background(), hook, req)

			if tt.wantErr {
				assert.ErrorIs(t, err, providers.ErrUnauthorized)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerify_HeaderCaseAndOrderIrrelevant(t *testing.T) {
	t.Parallel()

	body := `{"ok":true}`
	hook := &models.Webhook{ProviderConfig: map[string]any{"appSecret": "meta"}}
	sig := "sha256=" + hex.EncodeToString(sign([]byte("meta"), []byte(body)))

	req := &protocol.InboundRequest{
		RawBody: []byte(body),
		Headers: http.Header{
			"content-type":        {"application/json"},
			"x-hub-signature-256": {sig},
			"X-Other":             {"1"},
		},
	}

	assert.NoError(t, providers.NewWhatsApp().Verify(context.Background(), hook, req))
}

func TestSlack_Verify(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	slack := &providers.Slack{Now: func() time.Time { return now }}
	hook := &models.Webhook{ProviderConfig: map[string]any{"signingSecret": "slack-secret"}}
	body := `token=abc&command=%2Fdeploy`

	signed := func(ts int64, payload string) *protocol.InboundRequest {
		timestamp := strconv.FormatInt(ts, 10)
		sig := "v0=" + hex.EncodeToString(sign([]byte("slack-secret"), []byte("v0:"+timestamp+":"+payload)))

		return request(payload, map[string]string{
			"X-Slack-Request-Timestamp": timestamp,
			"X-Slack-Signature":         sig,
		})
	}

	assert.NoError(t, slack.Verify(context.Background(), hook, signed(now.Unix(), body)))

	stale := signed(now.Add(-10*time.Minute).Unix(), body)
	assert.ErrorIs(t, slack.Verify(context.Background(), hook, stale), providers.ErrUnauthorized)

	tampered := signed(now.Unix(), body)
	tampered.RawBody = []byte(body + "x")
	assert.ErrorIs(t, slack.Verify(context.Background(), hook, tampered), providers.ErrUnauthorized)

	noSecret := &models.Webhook{}
	assert.NoError(t, slack.Verify(context.Background(), noSecret, request(body, nil)))
}

func TestSlack_Challenge(t *testing.T) {
	t.Parallel()

	req := request("", nil)
	req.Body = map[string]any{"type": "url_verification", "challenge": "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}

	resp, err := providers.NewSlack().Challenge(context.Background(), req, nil)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, map[string]any{"challenge": "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}, resp.Body)

	req.Body = map[string]any{"type": "event_callback"}
	resp, err = providers.NewSlack().Challenge(context.Background(), req, nil)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestGeneric_Verify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  map[string]any
		headers map[string]string
		wantErr bool
	}{
		{"auth not required", nil, nil, false},
		{"bearer ok", map[string]any{"requireAuth": true, "token": "t0k"}, map[string]string{"Authorization": "Bearer t0k"}, false},
		{"bearer wrong", map[string]any{"requireAuth": true, "token": "t0k"}, map[string]string{"Authorization": "Bearer nope"}, true},
		{"custom header ok", map[string]any{"requireAuth": true, "token": "t0k", "secretHeaderName": "X-Api-Key"}, map[string]string{"x-api-key": "t0k"}, false},
		{"custom header missing", map[string]any{"requireAuth": true, "token": "t0k", "secretHeaderName": "X-Api-Key"}, nil, true},
		{"no token configured", map[string]any{"requireAuth": true}, map[string]string{"Authorization": "Bearer "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hook := &models.Webhook{ProviderConfig: tt.config}
			err := providers.NewGeneric().Verify(context.Background(), hook, request("{}", tt.headers))

			if tt.wantErr {
				assert.ErrorIs(t, err, providers.ErrUnauthorized)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGeneric_ValidatePayload(t *testing.T) {
	t.Parallel()

	hook := &models.Webhook{ProviderConfig: map[string]any{
		"jsonSchema": map[string]any{
			"type":     "object",
			"required": []any{"email"},
			"properties": map[string]any{
				"email": map[string]any{"type": "string"},
			},
		},
	}}

	ok := request("", nil)
	ok.Body = map[string]any{"email": "a@b.c"}
	assert.NoError(t, providers.NewGeneric().ValidatePayload(context.Background(), hook, ok))

	bad := request("", nil)
	bad.Body = map[string]any{"name": "x"}

	err := providers.NewGeneric().ValidatePayload(context.Background(), hook, bad)
	require.ErrorIs(t, err, providers.ErrInvalidPayload)

	var payloadErr *providers.PayloadError
	require.ErrorAs(t, err, &payloadErr)
	assert.NotEmpty(t, payloadErr.Violations)
}

func TestMicrosoftTeams(t *testing.T) {
	t.Parallel()

	key := []byte("teams-key-bytes")
	hook := &models.Webhook{ProviderConfig: map[string]any{"hmacSecret": base64.StdEncoding.EncodeToString(key)}}
	body := `{"type":"message","text":"hi"}`
	auth := "HMAC " + base64.StdEncoding.EncodeToString(sign(key, []byte(body)))

	teams := providers.NewMicrosoftTeams()
	assert.NoError(t, teams.Verify(context.Background(), hook, request(body, map[string]string{"Authorization": auth})))
	assert.ErrorIs(t, teams.Verify(context.Background(), hook, request(body+" ", map[string]string{"Authorization": auth})), providers.ErrUnauthorized)

	assert.Equal(t, map[string]any{"type": "message", "text": "Sim"}, teams.Acknowledge(request("", nil)).Body)
}

func TestMicrosoftTeams_Challenge(t *testing.T) {
	t.Parallel()

	hooks := map[string]*models.Webhook{
		"teams": {Provider: "microsoftteams", Path: "teams"},
		"gh":    {Provider: "github", Path: "gh"},
	}
	find := func(_ context.Context, path string) (*models.Webhook, error) {
		if hook, ok := hooks[path]; ok {
			return hook, nil
		}

		return nil, persistence.ErrWebhookNotFound
	}

	tests := []struct {
		name  string
		path  string
		token string
		want  string
	}{
		{name: "registered teams path", path: "teams", token: "abc123", want: "abc123"},
		{name: "unknown path", path: "nope", token: "abc123"},
		{name: "other provider", path: "gh", token: "abc123"},
		{name: "no token", path: "teams"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := request("", nil)
			req.Path = tt.path

			if tt.token != "" {
				req.Query.Set("validationToken", tt.token)
			}

			resp, err := providers.NewMicrosoftTeams().Challenge(context.Background(), req, find)
			require.NoError(t, err)

			if tt.want == "" {
				assert.Nil(t, resp)

				return
			}

			require.NotNil(t, resp)
			assert.Equal(t, http.StatusOK, resp.Status)
			assert.Equal(t, tt.want, resp.Text)
		})
	}

	failing := func(context.Context, string) (*models.Webhook, error) {
		return nil, errors.New("database unavailable")
	}

	req := request("", nil)
	req.Path = "teams"
	req.Query.Set("validationToken", "abc123")

	_, err := providers.NewMicrosoftTeams().Challenge(context.Background(), req, failing)
	assert.Error(t, err)
}

func TestTelegram_Verify(t *testing.T) {
	t.Parallel()

	hook := &models.Webhook{ProviderConfig: map[string]any{"secretToken": "tg"}}
	tg := providers.NewTelegram()

	assert.NoError(t, tg.Verify(context.Background(), hook, request("{}", map[string]string{"X-Telegram-Bot-Api-Secret-Token": "tg"})))
	assert.Error(t, tg.Verify(context.Background(), hook, request("{}", nil)))
}

func TestWhatsApp_Challenge(t *testing.T) {
	t.Parallel()

	hook := &models.Webhook{Provider: "whatsapp", Path: "wa", ProviderConfig: map[string]any{"verificationToken": "vt"}}
	find := func(_ context.Context, path string) (*models.Webhook, error) {
		if path == "wa" {
			return hook, nil
		}

		return nil, persistence.ErrWebhookNotFound
	}

	build := func(path, token string) *protocol.InboundRequest {
		req := request("", nil)
		req.Path = path
		req.Query = url.Values{"hub.mode": {"subscribe"}, "hub.verify_token": {token}, "hub.challenge": {"1158201444"}}

		return req
	}

	wa := providers.NewWhatsApp()

	resp, err := wa.Challenge(context.Background(), build("wa", "vt"), find)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "1158201444", resp.Text)

	resp, err = wa.Challenge(context.Background(), build("wa", "wrong"), find)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp, err = wa.Challenge(context.Background(), build("other", "vt"), find)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := providers.Default()

	assert.Equal(t, "slack", reg.Get("slack").ID())
	assert.Equal(t, "generic", reg.Get("does-not-exist").ID())
	assert.Len(t, reg.Challengers(), 3)
	assert.Equal(t, []string{"generic", "slack", "github", "whatsapp", "telegram", "microsoftteams", "airtable"}, reg.IDs())

	assert.Equal(t, protocol.RateLimitStrict, reg.RateLimitPolicy(&models.Webhook{Provider: "github"}))
	assert.Equal(t, protocol.RateLimitSoft, reg.RateLimitPolicy(&models.Webhook{Provider: "slack"}))
	assert.Equal(t, protocol.RateLimitStrict, reg.RateLimitPolicy(&models.Webhook{
		Provider:       "slack",
		ProviderConfig: map[string]any{providers.RateLimitResponseKey: "strict"},
	}))
}
