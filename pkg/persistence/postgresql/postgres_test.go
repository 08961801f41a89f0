package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"outbound_webhook_deliveries", "outbound_webhooks", "webhooks", "workflows",
		"subscriptions", "user_stats", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("sim_test"),
			postgres.WithUsername("sim"),
			postgres.WithPassword("sim"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func seedWorkflow(ctx context.Context, t *testing.T, p *postgresql.Persistence, deployed bool) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		ID:         uuid.NewString(),
		UserID:     "user-1",
		Name:       "Support triage",
		IsDeployed: deployed,
	}
	require.NoError(t, p.Workflows().Save(ctx, workflow))

	return workflow
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer db.Close()

	var version int
	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestWebhookRepository_FindByPath(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	workflow := seedWorkflow(ctx, t, p, true)

	hook := &models.Webhook{
		ID:             uuid.NewString(),
		WorkflowID:     workflow.ID,
		Path:           "support-inbox",
		Provider:       "slack",
		ProviderConfig: map[string]any{"signingSecret": "shh"},
		Active:         true,
	}
	require.NoError(t, p.Webhooks().Save(ctx, hook))

	gotHook, gotWorkflow, err := p.Webhooks().FindByPath(ctx, "support-inbox")
	require.NoError(t, err)
	assert.Equal(t, hook.ID, gotHook.ID)
	assert.Equal(t, "shh", gotHook.ConfigString("signingSecret"))
	assert.Equal(t, workflow.UserID, gotWorkflow.UserID)
	assert.True(t, gotWorkflow.IsDeployed)

	again, _, err := p.Webhooks().FindByPath(ctx, "support-inbox")
	require.NoError(t, err)
	assert.Equal(t, gotHook, again)

	_, _, err = p.Webhooks().FindByPath(ctx, "missing")
	assert.True(t, persistence.IsWebhookNotFound(err))
}

func TestWebhookRepository_InactiveAndUniquePath(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	workflow := seedWorkflow(ctx, t, p, true)

	inactive := &models.Webhook{ID: uuid.NewString(), WorkflowID: workflow.ID, Path: "shared", Provider: "generic"}
	require.NoError(t, p.Webhooks().Save(ctx, inactive))

	_, _, err := p.Webhooks().FindByPath(ctx, "shared")
	assert.True(t, persistence.IsWebhookNotFound(err))

	_, _, err = p.Webhooks().FindByID(ctx, inactive.ID)
	require.NoError(t, err)

	first := &models.Webhook{ID: uuid.NewString(), WorkflowID: workflow.ID, Path: "shared", Provider: "generic", Active: true}
	require.NoError(t, p.Webhooks().Save(ctx, first))

	second := &models.Webhook{ID: uuid.NewString(), WorkflowID: workflow.ID, Path: "shared", Provider: "generic", Active: true}
	err = p.Webhooks().Save(ctx, second)
	assert.ErrorIs(t, err, persistence.ErrWebhookPathTaken)
}

func TestOutboundWebhookRepository_CRUD(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	workflow := seedWorkflow(ctx, t, p, true)
	repo := p.OutboundWebhooks()

	config := &models.OutboundWebhookConfig{
		ID:                     uuid.NewString(),
		WorkflowID:             workflow.ID,
		URL:                    "https://hooks.example.com/a",
		Secret:                 "s3cret",
		PayloadInclusionPolicy: models.PayloadInclusionPolicy{IncludeFinalOutput: true},
		LevelFilter:            []models.LogLevel{models.LevelError},
		TriggerFilter:          []models.TriggerType{models.TriggerWebhook, models.TriggerAPI},
		Active:                 true,
	}
	require.NoError(t, repo.Save(ctx, config))

	got, err := repo.GetByID(ctx, workflow.ID, config.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got.Secret)
	assert.True(t, got.IncludeFinalOutput)
	assert.Equal(t, []models.LogLevel{models.LevelError}, got.LevelFilter)
	assert.Equal(t, []models.TriggerType{models.TriggerWebhook, models.TriggerAPI}, got.TriggerFilter)

	duplicate := *config
	duplicate.ID = uuid.NewString()
	assert.ErrorIs(t, repo.Save(ctx, &duplicate), persistence.ErrOutboundURLTaken)

	list, err := repo.ListByWorkflow(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, workflow.ID, config.ID))
	assert.True(t, persistence.IsOutboundWebhookNotFound(repo.Delete(ctx, workflow.ID, config.ID)))
}

func TestDeliveryRepository_RecordAndPrune(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	workflow := seedWorkflow(ctx, t, p, true)

	config := &models.OutboundWebhookConfig{
		ID:            uuid.NewString(),
		WorkflowID:    workflow.ID,
		URL:           "https://hooks.example.com/b",
		LevelFilter:   models.AllLogLevels,
		TriggerFilter: models.AllTriggerTypes,
		Active:        true,
	}
	require.NoError(t, p.OutboundWebhooks().Save(ctx, config))

	old := &models.DeliveryRecord{
		ID: uuid.NewString(), ConfigID: config.ID, WorkflowID: workflow.ID, ExecutionID: "exec-1",
		Attempts: 3, StatusCode: 500, Error: "HTTP 500", DeliveredAt: time.Now().Add(-48 * time.Hour),
	}
	recent := &models.DeliveryRecord{
		ID: uuid.NewString(), ConfigID: config.ID, WorkflowID: workflow.ID, ExecutionID: "exec-2",
		Attempts: 1, StatusCode: 200, Success: true, DeliveredAt: time.Now(),
	}
	require.NoError(t, p.Deliveries().Record(ctx, old))
	require.NoError(t, p.Deliveries().Record(ctx, recent))

	removed, err := p.Deliveries().PruneBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	records, err := p.Deliveries().ListByConfig(ctx, config.ID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "exec-2", records[0].ExecutionID)
}

func TestUsageRepository_NoStatsRow(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	cost, err := p.Usage().CurrentPeriodCost(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, cost)

	subs, err := p.Subscriptions().ListByReference(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, subs)
}
