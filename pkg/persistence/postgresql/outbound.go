package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
)

// OutboundWebhookRepository stores per-workflow notification endpoints.
type OutboundWebhookRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewOutboundWebhookRepository(db *sql.DB, logger *slog.Logger) *OutboundWebhookRepository {
	return &OutboundWebhookRepository{db: db, logger: logger}
}

const selectOutboundWebhook = `
	SELECT
		id
	  , workflow_id
	  , url
	  , COALESCE(secret, '')
	  , include_final_output
	  , include_trace_spans
	  , include_rate_limits
	  , include_usage_data
	  , level_filter
	  , trigger_filter
	  , active
	  , created_at
	  , updated_at
	FROM outbound_webhooks
`

// ListByWorkflow returns every config of the workflow, oldest first.
func (r *OutboundWebhookRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.OutboundWebhookConfig, error) {
	rows, err := r.db.QueryContext(ctx, selectOutboundWebhook+" WHERE workflow_id = $1 ORDER BY created_at ASC", workflowID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to list outbound webhooks", "workflow_id", workflowID, "error", err)

		return nil, fmt.Errorf("failed to query outbound webhooks: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	configs := make([]*models.OutboundWebhookConfig, 0)

	for rows.Next() {
		config, err := scanOutboundWebhook(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbound webhook: %w", err)
		}

		configs = append(configs, config)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate outbound webhooks: %w", err)
	}

	return configs, nil
}

func (r *OutboundWebhookRepository) GetByID(ctx context.Context, workflowID, id string) (*models.OutboundWebhookConfig, error) {
	row := r.db.QueryRowContext(ctx, selectOutboundWebhook+" WHERE workflow_id = $1 AND id = $2", workflowID, id)

	config, err := scanOutboundWebhook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &persistence.OutboundWebhookError{
			Op: "GetByID", WorkflowID: workflowID, ConfigID: id, Err: persistence.ErrOutboundWebhookNotFound,
		}
	}

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to get outbound webhook", "config_id", id, "error", err)

		return nil, fmt.Errorf("failed to get outbound webhook: %w", err)
	}

	return config, nil
}

// Save inserts or updates a config. The (workflow, url) pair is unique.
func (r *OutboundWebhookRepository) Save(ctx context.Context, config *models.OutboundWebhookConfig) error {
	query := `
		INSERT INTO outbound_webhooks (
			id, workflow_id, url, secret,
			include_final_output, include_trace_spans, include_rate_limits, include_usage_data,
			level_filter, trigger_filter, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id)
		DO UPDATE SET
			url = EXCLUDED.url,
			secret = EXCLUDED.secret,
			include_final_output = EXCLUDED.include_final_output,
			include_trace_spans = EXCLUDED.include_trace_spans,
			include_rate_limits = EXCLUDED.include_rate_limits,
			include_usage_data = EXCLUDED.include_usage_data,
			level_filter = EXCLUDED.level_filter,
			trigger_filter = EXCLUDED.trigger_filter,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}

	config.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		config.ID,
		config.WorkflowID,
		config.URL,
		sql.NullString{String: config.Secret, Valid: config.Secret != ""},
		config.IncludeFinalOutput,
		config.IncludeTraceSpans,
		config.IncludeRateLimits,
		config.IncludeUsageData,
		pq.Array(levelStrings(config.LevelFilter)),
		pq.Array(triggerStrings(config.TriggerFilter)),
		config.Active,
		config.CreatedAt,
		config.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return &persistence.OutboundWebhookError{
				Op: "Save", WorkflowID: config.WorkflowID, ConfigID: config.ID, Err: persistence.ErrOutboundURLTaken,
			}
		}

		r.logger.ErrorContext(ctx, "Failed to save outbound webhook", "config_id", config.ID, "error", err)

		return fmt.Errorf("failed to save outbound webhook: %w", err)
	}

	return nil
}

func (r *OutboundWebhookRepository) Delete(ctx context.Context, workflowID, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM outbound_webhooks WHERE workflow_id = $1 AND id = $2", workflowID, id)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete outbound webhook", "config_id", id, "error", err)

		return fmt.Errorf("failed to delete outbound webhook: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return &persistence.OutboundWebhookError{
			Op: "Delete", WorkflowID: workflowID, ConfigID: id, Err: persistence.ErrOutboundWebhookNotFound,
		}
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOutboundWebhook(row scanner) (*models.OutboundWebhookConfig, error) {
	var (
		config   models.OutboundWebhookConfig
		levels   []string
		triggers []string
	)

	err := row.Scan(
		&config.ID,
		&config.WorkflowID,
		&config.URL,
		&config.Secret,
		&config.IncludeFinalOutput,
		&config.IncludeTraceSpans,
		&config.IncludeRateLimits,
		&config.IncludeUsageData,
		pq.Array(&levels),
		pq.Array(&triggers),
		&config.Active,
		&config.CreatedAt,
		&config.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, level := range levels {
		config.LevelFilter = append(config.LevelFilter, models.LogLevel(level))
	}

	for _, trigger := range triggers {
		config.TriggerFilter = append(config.TriggerFilter, models.TriggerType(trigger))
	}

	return &config, nil
}

func levelStrings(levels []models.LogLevel) []string {
	out := make([]string, len(levels))
	for i, level := range levels {
		out[i] = string(level)
	}

	return out
}

func triggerStrings(triggers []models.TriggerType) []string {
	out := make([]string, len(triggers))
	for i, trigger := range triggers {
		out[i] = string(trigger)
	}

	return out
}
