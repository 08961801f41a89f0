package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wastorga/sim/pkg/events"
	"github.com/wastorga/sim/pkg/mocks"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/persistence/file"
)

func newTestService(t *testing.T) (*Service, *file.Persistence) {
	t.Helper()

	d, store := newTestDeliverer(t)

	return NewService(store.OutboundWebhooks(), d, slog.New(slog.NewTextHandler(io.Discard, nil))), store
}

func ptr[T any](v T) *T {
	return &v
}

func TestService_CreateAppliesDefaults(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, "wf-1", Input{URL: ptr("https://example.com/hook"), Secret: ptr("s3cret")})
	require.NoError(t, err)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "wf-1", view.WorkflowID)
	assert.True(t, view.HasSecret)
	assert.True(t, view.Active)
	assert.Equal(t, DefaultLevelFilter, view.LevelFilter)
	assert.Equal(t, models.AllTriggerTypes, view.TriggerFilter)

	encoded, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "s3cret")

	listed, err := svc.List(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, view.ID, listed[0].ID)
}

func TestService_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   Input
		field   string
		message string
	}{
		{"missing url", Input{}, FieldURL, MsgURLRequired},
		{"blank url", Input{URL: ptr("  ")}, FieldURL, MsgURLRequired},
		{"not a url", Input{URL: ptr("not a url")}, FieldURL, MsgURLInvalid},
		{"ftp scheme", Input{URL: ptr("ftp://example.com/hook")}, FieldURL, MsgURLScheme},
		{
			"empty level filter",
			Input{URL: ptr("https://example.com/hook"), LevelFilter: []models.LogLevel{}},
			FieldLevelFilter, MsgLevelRequired,
		},
		{
			"empty trigger filter",
			Input{URL: ptr("https://example.com/hook"), TriggerFilter: []models.TriggerType{}},
			FieldTriggerFilter, MsgTriggerRequired,
		},
		{
			"unknown level",
			Input{URL: ptr("https://example.com/hook"), LevelFilter: []models.LogLevel{"debug"}},
			FieldLevelFilter, MsgInvalidLevel,
		},
		{
			"unknown trigger",
			Input{URL: ptr("https://example.com/hook"), TriggerFilter: []models.TriggerType{"cron"}},
			FieldTriggerFilter, MsgInvalidTrigger,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, _ := newTestService(t)

			_, err := svc.Create(context.Background(), "wf-1", tt.input)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.message, verr.FieldMessage(tt.field))

			listed, err := svc.List(context.Background(), "wf-1")
			require.NoError(t, err)
			assert.Empty(t, listed)
		})
	}
}

func TestService_DuplicateURL(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, "wf-1", Input{URL: ptr("https://example.com/a")})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "wf-1", Input{URL: ptr("https://example.com/a")})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgURLAlreadyExists, verr.FieldMessage(FieldURL))

	// another workflow may reuse the url
	_, err = svc.Create(ctx, "wf-2", Input{URL: ptr("https://example.com/a")})
	require.NoError(t, err)

	// updating a config with its own url is not a duplicate
	_, err = svc.Update(ctx, "wf-1", first.ID, Input{URL: ptr("https://example.com/a"), Active: ptr(false)})
	require.NoError(t, err)

	second, err := svc.Create(ctx, "wf-1", Input{URL: ptr("https://example.com/b")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "wf-1", second.ID, Input{URL: ptr("https://example.com/a")})
	require.ErrorAs(t, err, &verr)
}

func TestService_UpdateKeepsSecret(t *testing.T) {
	t.Parallel()

	svc, store := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, "wf-1", Input{URL: ptr("https://example.com/hook"), Secret: ptr("s3cret")})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "wf-1", view.ID, Input{Secret: ptr(""), IncludeFinalOutput: ptr(true)})
	require.NoError(t, err)
	assert.True(t, updated.HasSecret)
	assert.True(t, updated.IncludeFinalOutput)
	assert.Equal(t, "https://example.com/hook", updated.URL)

	stored, err := store.OutboundWebhooks().GetByID(ctx, "wf-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", stored.Secret)

	_, err = svc.Update(ctx, "wf-1", view.ID, Input{Secret: ptr("rotated")})
	require.NoError(t, err)

	stored, err = store.OutboundWebhooks().GetByID(ctx, "wf-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotated", stored.Secret)
}

// Clearing the level filter of an existing config is rejected and the stored config is untouched.
func TestService_UpdateRejectsEmptyLevelFilter(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, "wf-1", Input{URL: ptr("https://example.com/hook")})
	require.NoError(t, err)

	_, err = svc.Update(ctx, "wf-1", view.ID, Input{LevelFilter: []models.LogLevel{}})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, MsgLevelRequired, verr.FieldMessage(FieldLevelFilter))

	stored, err := svc.Get(ctx, "wf-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultLevelFilter, stored.LevelFilter)
}

func TestService_NotFound(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "wf-1", "missing")
	assert.True(t, persistence.IsOutboundWebhookNotFound(err))

	_, err = svc.Update(ctx, "wf-1", "missing", Input{})
	assert.True(t, persistence.IsOutboundWebhookNotFound(err))

	err = svc.Delete(ctx, "wf-1", "missing")
	assert.True(t, persistence.IsOutboundWebhookNotFound(err))

	_, err = svc.TestWebhook(ctx, "wf-1", "missing")
	assert.True(t, persistence.IsOutboundWebhookNotFound(err))
}

func TestService_Delete(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, "wf-1", Input{URL: ptr("https://example.com/hook")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, "wf-1", view.ID))

	listed, err := svc.List(ctx, "wf-1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestService_TestWebhook(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	server := httptest.NewServer(rec.handler(http.StatusAccepted))
	t.Cleanup(server.Close)

	svc, _ := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, "wf-1", Input{
		URL:                ptr(server.URL),
		Secret:             ptr("s3cret"),
		IncludeFinalOutput: ptr(true),
		// test sends ignore filters
		LevelFilter:   []models.LogLevel{models.LevelError},
		TriggerFilter: []models.TriggerType{models.TriggerAPI},
		Active:        ptr(false),
	})
	require.NoError(t, err)

	result, err := svc.TestWebhook(ctx, "wf-1", view.ID)
	require.NoError(t, err)
	assert.Equal(t, TestResult{Success: true, Status: http.StatusAccepted, StatusText: "Accepted"}, result)

	requests := rec.all()
	require.Len(t, requests, 1)
	assert.Equal(t, Sign("s3cret", requests[0].body), requests[0].header.Get(SignatureHeader))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(requests[0].body, &payload))
	assert.Equal(t, "info", payload["level"])
	assert.Equal(t, "manual", payload["trigger"])
	assert.True(t, strings.HasPrefix(payload["executionId"].(string), "test-"))
	assert.Contains(t, payload, "finalOutput")
	assert.NotContains(t, payload, "traceSpans")
}

func TestService_TestWebhookFailureIsSingleAttempt(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	server := httptest.NewServer(rec.handler(http.StatusServiceUnavailable))
	t.Cleanup(server.Close)

	svc, _ := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, "wf-1", Input{URL: ptr(server.URL)})
	require.NoError(t, err)

	result, err := svc.TestWebhook(ctx, "wf-1", view.ID)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusServiceUnavailable, result.Status)
	assert.Equal(t, "Service Unavailable", result.StatusText)
	assert.NotEmpty(t, result.Error)
	assert.Len(t, rec.all(), 1)
}

func TestService_HandleExecutionCompleted(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	server := httptest.NewServer(rec.handler(http.StatusOK))
	t.Cleanup(server.Close)

	svc, store := newTestService(t)
	ctx := context.Background()

	view, err := svc.Create(ctx, "wf-1", Input{URL: ptr(server.URL), IncludeUsageData: ptr(true)})
	require.NoError(t, err)

	_, err = svc.Create(ctx, "wf-1", Input{
		URL:         ptr(server.URL + "/errors-only"),
		LevelFilter: []models.LogLevel{models.LevelError},
	})
	require.NoError(t, err)

	event := &events.WorkflowExecutionCompleted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowExecutionCompletedEvent, "wf-1"),
		ExecutionID: "exec-9",
		Level:       "info",
		Trigger:     "webhook",
		Cost:        1.5,
		FinishedAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Usage:       map[string]any{"currentPeriodCost": 3.0},
	}

	require.NoError(t, svc.HandleExecutionCompleted(ctx, event))

	requests := rec.all()
	require.Len(t, requests, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(requests[0].body, &payload))
	assert.Equal(t, "exec-9", payload["executionId"])
	assert.Equal(t, "2026-03-01T00:00:00Z", payload["timestamp"])
	assert.Contains(t, payload, "usage")

	records, err := store.Deliveries().ListByConfig(ctx, view.ID, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	err = svc.HandleExecutionCompleted(ctx, &events.WebhookExecutionRequested{})
	assert.Error(t, err)
}

func TestService_NotifyPropagatesStoreErrors(t *testing.T) {
	t.Parallel()

	repo := &mocks.MockOutboundWebhookRepository{}
	repo.On("ListByWorkflow", mock.Anything, "wf-1").Return(nil, errors.New("disk on fire"))

	d, _ := newTestDeliverer(t)
	svc := NewService(repo, d, slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.Notify(context.Background(), sampleCompletion())
	assert.ErrorContains(t, err, "disk on fire")
	repo.AssertExpectations(t)
}
