package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wastorga/sim/pkg/auth"
	"github.com/wastorga/sim/pkg/config"
	"github.com/wastorga/sim/pkg/events"
	"github.com/wastorga/sim/pkg/execution"
	"github.com/wastorga/sim/pkg/log"
	"github.com/wastorga/sim/pkg/mocks"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/notify"
	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/persistence/file"
	"github.com/wastorga/sim/pkg/ratelimit"
	"github.com/wastorga/sim/pkg/testtoken"
	"github.com/wastorga/sim/pkg/usage"
	"github.com/wastorga/sim/pkg/web"
	"github.com/wastorga/sim/pkg/webhooks"
)

type executorFunc func(ctx context.Context, job execution.Job) (execution.Result, error)

func (f executorFunc) Execute(ctx context.Context, job execution.Job) (execution.Result, error) {
	return f(ctx, job)
}

type failingCheck struct{}

func (failingCheck) HealthCheck(context.Context) error {
	return errors.New("connection refused")
}

const (
	sessionSecret  = "session-secret"
	internalSecret = "internal-secret"
)

type testApp struct {
	app    *fiber.App
	store  *file.Persistence
	bus    *mocks.MockEventBus
	tokens *testtoken.Issuer
	auth   *auth.Authenticator
	owner  map[string]string
}

type testAppOptions struct {
	checks   map[string]web.HealthChecker
	outbound persistence.OutboundWebhookRepository
}

func setupTestApp(t *testing.T, checks map[string]web.HealthChecker) *testApp {
	t.Helper()

	return newTestApp(t, testAppOptions{checks: checks})
}

func newTestApp(t *testing.T, opts testAppOptions) *testApp {
	t.Helper()

	cfg := config.Default()
	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Workflows().Save(ctx, &models.Workflow{ID: "wf-1", UserID: "user-1", Name: "Orders", IsDeployed: true}))
	require.NoError(t, store.Webhooks().Save(ctx, &models.Webhook{
		ID: "wh-1", WorkflowID: "wf-1", Path: "orders", Provider: "generic", Active: true,
	}))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "wf-1", mock.AnythingOfType("events.WebhookExecutionRequested")).Return(nil)
	bus.On("GenerateID").Return("evt-1").Maybe()

	executor := executorFunc(func(_ context.Context, job execution.Job) (execution.Result, error) {
		return execution.Result{
			Success:     true,
			Output:      map[string]any{"echo": job.Body},
			ExecutionID: "exec-1",
			ExecutedAt:  time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC),
		}, nil
	})

	tokens, err := testtoken.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	authenticator := auth.NewAuthenticator(sessionSecret, internalSecret)

	session, err := authenticator.IssueSession("user-1", time.Hour)
	require.NoError(t, err)

	registry := webhooks.NewRegistry(store.Webhooks())

	pipeline := webhooks.NewPipeline(webhooks.Options{
		Registry:     registry,
		Limiter:      ratelimit.NewLimiter(ratelimit.NewMemoryStore(), cfg.RateLimits, log.Discard()),
		Usage:        usage.NewLimiter(store.Subscriptions(), store.Usage(), cfg.Usage, log.Discard()),
		Dispatcher:   execution.NewDispatcher(bus, executor, time.Second, log.Discard()),
		Tokens:       tokens,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Logger:       log.Discard(),
	})

	outbound := opts.outbound
	if outbound == nil {
		outbound = store.OutboundWebhooks()
	}

	deliverer := notify.NewDeliverer(nil, time.Second, 1, store.Deliveries(), log.Discard())
	notifier := notify.NewService(outbound, deliverer, log.Discard())

	checks := opts.checks
	if checks == nil {
		checks = map[string]web.HealthChecker{"persistence": store}
	}

	handlers := web.NewAPIHandlers(web.Options{
		Pipeline:  pipeline,
		Registry:  registry,
		Notifier:  notifier,
		Tokens:    tokens,
		Auth:      authenticator,
		Workflows: store.Workflows(),
		Validator: validator.New(validator.WithRequiredStructEnabled()),
		BaseURL:   "https://sim.example",
		Checks:    checks,
		Logger:    log.Discard(),
	})

	app := fiber.New()
	handlers.Register(app)

	return &testApp{
		app:    app,
		store:  store,
		bus:    bus,
		tokens: tokens,
		auth:   authenticator,
		owner:  map[string]string{"Authorization": "Bearer " + session},
	}
}

func doRequest(t *testing.T, app *fiber.App, method, target string, body any, headers ...map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader

	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)

		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for _, set := range headers {
		for key, value := range set {
			req.Header.Set(key, value)
		}
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, raw
}

// as performs an authenticated request on behalf of the workflow owner.
func (ta *testApp) as(t *testing.T, method, target string, body any) (*http.Response, []byte) {
	t.Helper()

	return doRequest(t, ta.app, method, target, body, ta.owner)
}

func TestAPIHandlers_Trigger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		target         string
		body           any
		expectedStatus int
		expectedBody   string
		contentType    string
	}{
		{
			name:           "get existing path",
			method:         http.MethodGet,
			target:         "/api/webhooks/trigger/orders",
			expectedStatus: http.StatusOK,
			expectedBody:   "OK",
			contentType:    "text/plain",
		},
		{
			name:           "get unknown path",
			method:         http.MethodGet,
			target:         "/api/webhooks/trigger/nope",
			expectedStatus: http.StatusNotFound,
			expectedBody:   "Webhook not found",
			contentType:    "text/plain",
		},
		{
			name:           "teams validation on unknown path",
			method:         http.MethodGet,
			target:         "/api/webhooks/trigger/nope?validationToken=abc123",
			expectedStatus: http.StatusNotFound,
			expectedBody:   "Webhook not found",
			contentType:    "text/plain",
		},
		{
			name:           "teams validation on generic path",
			method:         http.MethodGet,
			target:         "/api/webhooks/trigger/orders?validationToken=abc123",
			expectedStatus: http.StatusOK,
			expectedBody:   "OK",
			contentType:    "text/plain",
		},
		{
			name:           "post unknown path",
			method:         http.MethodPost,
			target:         "/api/webhooks/trigger/nope",
			body:           map[string]any{"a": 1},
			expectedStatus: http.StatusNotFound,
			expectedBody:   "Webhook not found",
			contentType:    "text/plain",
		},
		{
			name:           "post queues execution",
			method:         http.MethodPost,
			target:         "/api/webhooks/trigger/orders",
			body:           map[string]any{"order": 42},
			expectedStatus: http.StatusOK,
			expectedBody:   `"message":"Webhook processed"`,
			contentType:    "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ta := setupTestApp(t, nil)

			resp, body := doRequest(t, ta.app, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Contains(t, string(body), tt.expectedBody)
			assert.Contains(t, resp.Header.Get("Content-Type"), tt.contentType)
		})
	}
}

func TestAPIHandlers_TriggerPublishesJob(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t, nil)

	resp, _ := doRequest(t, ta.app, http.MethodPost, "/api/webhooks/trigger/orders?source=shop", `{"order":42}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ta.bus.AssertNumberOfCalls(t, "Publish", 1)

	event, ok := ta.bus.Calls[0].Arguments.Get(2).(events.WebhookExecutionRequested)
	require.True(t, ok)
	assert.Equal(t, "wh-1", event.WebhookID)
	assert.Equal(t, "wf-1", event.WorkflowID)
	assert.Equal(t, map[string]any{"order": float64(42)}, event.Body)
	assert.NotEmpty(t, event.RequestID)
}

func TestAPIHandlers_TestURLRoundTrip(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t, nil)

	resp, body := ta.as(t, http.MethodPost, "/api/webhooks/wh-1/test-url", map[string]any{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var testURL web.TestURLResponse
	require.NoError(t, json.Unmarshal(body, &testURL))
	assert.True(t, strings.HasPrefix(testURL.URL, "https://sim.example/api/webhooks/test/wh-1?token="))
	assert.True(t, testURL.ExpiresAt.After(time.Now()))

	parsed, err := url.Parse(testURL.URL)
	require.NoError(t, err)

	resp, body = doRequest(t, ta.app, http.MethodPost, parsed.RequestURI(), `{"ping":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result map[string]any
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "exec-1", result["executionId"])
	assert.Equal(t, "test", result["mode"])
	assert.Equal(t, "live", result["target"])
	assert.Equal(t, map[string]any{"echo": map[string]any{"ping": true}}, result["output"])

	ta.bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestAPIHandlers_TestWebhookTokens(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t, nil)

	resp, body := doRequest(t, ta.app, http.MethodPost, "/api/webhooks/test/wh-1", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Missing token"}`, string(body))

	resp, body = doRequest(t, ta.app, http.MethodPost, "/api/webhooks/test/wh-1?token=forged", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Invalid or expired token"}`, string(body))

	other, _, err := ta.tokens.Issue("wh-other", "wf-1")
	require.NoError(t, err)

	resp, _ = doRequest(t, ta.app, http.MethodPost, "/api/webhooks/test/wh-1?token="+other, `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIHandlers_TestURLUnknownWebhook(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t, nil)

	resp, body := ta.as(t, http.MethodPost, "/api/webhooks/missing/test-url", map[string]any{})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "webhook_not_found")
}

func TestAPIHandlers_LogWebhookCRUD(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t, nil)
	base := "/api/workflows/wf-1/log-webhook"

	resp, body := ta.as(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"data":[]}`, string(body))

	resp, body = ta.as(t, http.MethodPost, base, map[string]any{
		"url":    "https://hooks.example/sim",
		"secret": "s3cret",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created web.DataResponse[notify.ConfigView]
	require.NoError(t, json.Unmarshal(body, &created))
	assert.True(t, created.Data.HasSecret)
	assert.NotContains(t, string(body), "s3cret")

	id := created.Data.ID

	resp, body = ta.as(t, http.MethodPut, base+"/"+id, map[string]any{
		"levelFilter": []string{"error"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var updated web.DataResponse[notify.ConfigView]
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, []models.LogLevel{models.LevelError}, updated.Data.LevelFilter)
	assert.True(t, updated.Data.HasSecret)

	resp, _ = ta.as(t, http.MethodGet, base+"/"+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = ta.as(t, http.MethodDelete, base+"?webhookId="+id, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ta.as(t, http.MethodGet, base+"/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "outbound_webhook_not_found")

	resp, _ = ta.as(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIHandlers_LogWebhookValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    any
		field   string
		message string
	}{
		{"missing url", map[string]any{}, notify.FieldURL, notify.MsgURLRequired},
		{"bad scheme", map[string]any{"url": "ftp://hooks.example"}, notify.FieldURL, notify.MsgURLScheme},
		{"empty levels", map[string]any{"url": "https://hooks.example", "levelFilter": []string{}}, notify.FieldLevelFilter, notify.MsgLevelRequired},
		{"empty triggers", map[string]any{"url": "https://hooks.example", "triggerFilter": []string{}}, notify.FieldTriggerFilter, notify.MsgTriggerRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ta := setupTestApp(t, nil)

			resp, body := ta.as(t, http.MethodPost, "/api/workflows/wf-1/log-webhook", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var verr web.ValidationErrorResponse
			require.NoError(t, json.Unmarshal(body, &verr))
			assert.Equal(t, "Validation failed", verr.Error)
			assert.Equal(t, tt.message, verr.Fields[tt.field])
			assert.NotEmpty(t, verr.Details)

			resp, body = ta.as(t, http.MethodGet, "/api/workflows/wf-1/log-webhook", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.JSONEq(t, `{"data":[]}`, string(body))
		})
	}
}

func TestAPIHandlers_LogWebhookInvalidJSON(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t, nil)

	resp, body := ta.as(t, http.MethodPost, "/api/workflows/wf-1/log-webhook", `{"url":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "Invalid JSON format")
}

func TestAPIHandlers_LogWebhookTestSend(t *testing.T) {
	t.Parallel()

	received := make(chan http.Header, 1)

	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Clone()

		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(receiver.Close)

	ta := setupTestApp(t, nil)
	base := "/api/workflows/wf-1/log-webhook"

	resp, body := ta.as(t, http.MethodPost, base, map[string]any{"url": receiver.URL})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created web.DataResponse[notify.ConfigView]
	require.NoError(t, json.Unmarshal(body, &created))

	resp, body = ta.as(t, http.MethodPost, base+"/test?webhookId="+created.Data.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var result web.DataResponse[notify.TestResult]
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Data.Success)
	assert.Equal(t, http.StatusOK, result.Data.Status)
	assert.Equal(t, "OK", result.Data.StatusText)

	headers := <-received
	assert.Empty(t, headers.Get(notify.SignatureHeader))
	assert.Equal(t, created.Data.ID, headers.Get(notify.WebhookIDHeader))
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t, nil)

	resp, body := doRequest(t, ta.app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"status":"healthy"`)

	ta = setupTestApp(t, map[string]web.HealthChecker{"redis": failingCheck{}})

	resp, body = doRequest(t, ta.app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "connection refused")
}

func TestAPIHandlers_ManagementRoutesRequireOwner(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t, nil)

	require.NoError(t, ta.store.Workflows().Save(context.Background(), &models.Workflow{ID: "wf-2", UserID: "user-2"}))

	stranger, err := ta.auth.IssueSession("user-2", time.Hour)
	require.NoError(t, err)

	foreign, err := auth.NewAuthenticator("other-secret", "").IssueSession("user-1", time.Hour)
	require.NoError(t, err)

	attacker := map[string]any{"url": "https://attacker.example/hook", "includeFinalOutput": true}

	tests := []struct {
		name           string
		method         string
		target         string
		body           any
		headers        map[string]string
		expectedStatus int
		expectedType   string
	}{
		{"mint without credentials", http.MethodPost, "/api/webhooks/wh-1/test-url", nil, nil, http.StatusUnauthorized, "unauthorized"},
		{"mint with forged session", http.MethodPost, "/api/webhooks/wh-1/test-url", nil, map[string]string{"Authorization": "Bearer " + foreign}, http.StatusUnauthorized, "unauthorized"},
		{"mint with wrong internal secret", http.MethodPost, "/api/webhooks/wh-1/test-url", nil, map[string]string{auth.InternalSecretHeader: "guess"}, http.StatusUnauthorized, "unauthorized"},
		{"mint for another user's workflow", http.MethodPost, "/api/webhooks/wh-1/test-url", nil, map[string]string{"Authorization": "Bearer " + stranger}, http.StatusForbidden, "forbidden"},
		{"create without credentials", http.MethodPost, "/api/workflows/wf-1/log-webhook", attacker, nil, http.StatusUnauthorized, "unauthorized"},
		{"create on another user's workflow", http.MethodPost, "/api/workflows/wf-1/log-webhook", attacker, map[string]string{"Authorization": "Bearer " + stranger}, http.StatusForbidden, "forbidden"},
		{"list without credentials", http.MethodGet, "/api/workflows/wf-1/log-webhook", nil, nil, http.StatusUnauthorized, "unauthorized"},
		{"test send on another user's workflow", http.MethodPost, "/api/workflows/wf-1/log-webhook/test?webhookId=x", nil, map[string]string{"Authorization": "Bearer " + stranger}, http.StatusForbidden, "forbidden"},
		{"delete on another user's workflow", http.MethodDelete, "/api/workflows/wf-1/log-webhook/x", nil, map[string]string{"Authorization": "Bearer " + stranger}, http.StatusForbidden, "forbidden"},
		{
			name:           "internal caller acting for another user",
			method:         http.MethodGet,
			target:         "/api/workflows/wf-1/log-webhook",
			headers:        map[string]string{auth.InternalSecretHeader: internalSecret, auth.UserIDHeader: "user-2"},
			expectedStatus: http.StatusForbidden,
			expectedType:   "forbidden",
		},
		{"unknown workflow", http.MethodGet, "/api/workflows/missing/log-webhook", nil, map[string]string{"Authorization": "Bearer " + stranger}, http.StatusNotFound, "workflow_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, body := doRequest(t, ta.app, tt.method, tt.target, tt.body, tt.headers)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode, string(body))
			assert.Contains(t, string(body), tt.expectedType)
			assert.NotContains(t, string(body), "token=")
		})
	}

	views, err := ta.store.OutboundWebhooks().ListByWorkflow(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestAPIHandlers_ManagementRoutesAcceptOwnerCredentials(t *testing.T) {
	t.Parallel()

	ta := setupTestApp(t, nil)

	tests := []struct {
		name    string
		headers map[string]string
	}{
		{"owner session", ta.owner},
		{"internal secret", map[string]string{auth.InternalSecretHeader: internalSecret}},
		{"internal secret acting for owner", map[string]string{auth.InternalSecretHeader: internalSecret, auth.UserIDHeader: "user-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, body := doRequest(t, ta.app, http.MethodPost, "/api/webhooks/wh-1/test-url", nil, tt.headers)
			assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))

			resp, body = doRequest(t, ta.app, http.MethodGet, "/api/workflows/wf-1/log-webhook", nil, tt.headers)
			assert.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		})
	}
}

func TestAPIHandlers_InternalErrorsAreGeneric(t *testing.T) {
	t.Parallel()

	repo := &mocks.MockOutboundWebhookRepository{}
	repo.On("ListByWorkflow", mock.Anything, "wf-1").
		Return(nil, errors.New(`pq: password authentication failed for user "sim_admin" at 10.0.3.7:5432`))

	ta := newTestApp(t, testAppOptions{outbound: repo})

	resp, body := ta.as(t, http.MethodGet, "/api/workflows/wf-1/log-webhook", nil)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(body, &problem))
	assert.Equal(t, "internal_error", problem["type"])
	assert.Equal(t, "Internal server error", problem["detail"])
	assert.NotContains(t, string(body), "sim_admin")
	assert.NotContains(t, string(body), "10.0.3.7")
	repo.AssertExpectations(t)
}
