package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wastorga/sim/pkg/config"
	"github.com/wastorga/sim/pkg/execution"
	"github.com/wastorga/sim/pkg/log"
	"github.com/wastorga/sim/pkg/mocks"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/notify"
	"github.com/wastorga/sim/pkg/persistence/file"
	"github.com/wastorga/sim/pkg/ratelimit"
)

type noopExecutor struct{}

func (noopExecutor) Execute(context.Context, execution.Job) (execution.Result, error) {
	return execution.Result{Success: true, ExecutionID: "exec-1"}, nil
}

func newTestAPI(t *testing.T, mutate func(*config.Config)) (*API, *mocks.MockEventBus) {
	t.Helper()

	cfg := config.Default()
	cfg.TestTokenSecret = "test-secret"
	cfg.BaseURL = "https://sim.example"

	if mutate != nil {
		mutate(&cfg)
	}

	store := file.NewPersistence(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Workflows().Save(ctx, &models.Workflow{ID: "wf-1", UserID: "user-1", IsDeployed: true}))
	require.NoError(t, store.Webhooks().Save(ctx, &models.Webhook{
		ID: "wh-1", WorkflowID: "wf-1", Path: "orders", Provider: "generic", Active: true,
	}))

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, "wf-1", mock.Anything).Return(nil).Maybe()

	deliverer := notify.NewDeliverer(nil, time.Second, 1, store.Deliveries(), log.Discard())
	notifier := notify.NewService(store.OutboundWebhooks(), deliverer, log.Discard())

	api, err := NewAPI(cfg, log.Discard(), store, ratelimit.NewMemoryStore(), bus, noopExecutor{}, notifier, nil)
	require.NoError(t, err)

	return api, bus
}

func TestAPI_Routes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		target         string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{name: "root", method: http.MethodGet, target: "/", expectedStatus: http.StatusOK, expectedBody: "Sim Webhooks"},
		{name: "liveness", method: http.MethodGet, target: "/livez", expectedStatus: http.StatusOK, expectedBody: "OK"},
		{name: "readiness", method: http.MethodGet, target: "/readyz", expectedStatus: http.StatusOK, expectedBody: "OK"},
		{name: "health", method: http.MethodGet, target: "/health", expectedStatus: http.StatusOK, expectedBody: `"persistence":"ok"`},
		{name: "trigger verification", method: http.MethodGet, target: "/api/webhooks/trigger/orders", expectedStatus: http.StatusOK, expectedBody: "OK"},
		{
			name:           "trigger delivery",
			method:         http.MethodPost,
			target:         "/api/webhooks/trigger/orders",
			body:           `{"order":42}`,
			expectedStatus: http.StatusOK,
			expectedBody:   "Webhook processed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			api, _ := newTestAPI(t, nil)
			app := api.App()

			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}

			req := httptest.NewRequest(tt.method, tt.target, body)
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}

			resp, err := app.Test(req)
			require.NoError(t, err)

			defer func() { _ = resp.Body.Close() }()

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			assert.Contains(t, string(raw), tt.expectedBody)
		})
	}
}

func TestAPI_RejectsOversizedBody(t *testing.T) {
	t.Parallel()

	api, bus := newTestAPI(t, func(cfg *config.Config) {
		cfg.MaxBodyBytes = 64
	})
	app := api.App()

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/trigger/orders", strings.NewReader(`{"data":"`+strings.Repeat("x", 256)+`"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Request body too large"}`, string(raw))
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewAPI_RequiresTokenSecret(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.TestTokenSecret = ""

	store := file.NewPersistence(t.TempDir())

	_, err := NewAPI(cfg, log.Discard(), store, ratelimit.NewMemoryStore(), &mocks.MockEventBus{}, noopExecutor{}, nil, nil)
	require.Error(t, err)
}

func TestAPI_ReadinessFollowsPersistence(t *testing.T) {
	t.Parallel()

	store := mocks.NewMockPersistence()
	store.On("HealthCheck", mock.Anything).Return(errors.New("connection refused"))

	cfg := config.Default()
	cfg.TestTokenSecret = "test-secret"

	api, err := NewAPI(cfg, log.Discard(), store, ratelimit.NewMemoryStore(), &mocks.MockEventBus{}, noopExecutor{}, nil, nil)
	require.NoError(t, err)

	app := api.App()

	for _, target := range []string{"/readyz", "/health"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		require.NoError(t, err)

		_ = resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, target)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/livez", nil))
	require.NoError(t, err)

	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
