package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
)

const uniqueViolation = "23505"

// WebhookRepository handles webhook lookups joined with their workflow.
type WebhookRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWebhookRepository creates a new webhook repository.
func NewWebhookRepository(db *sql.DB, logger *slog.Logger) *WebhookRepository {
	return &WebhookRepository{db: db, logger: logger}
}

const selectWebhookWithWorkflow = `
	SELECT
		w.id
	  , w.workflow_id
	  , COALESCE(w.block_id, '')
	  , w.path
	  , w.provider
	  , w.provider_config
	  , w.is_active
	  , w.created_at
	  , w.updated_at
	  , f.id
	  , f.user_id
	  , COALESCE(f.workspace_id, '')
	  , f.name
	  , f.is_deployed
	  , f.deployed_at
	  , f.created_at
	  , f.updated_at
	FROM webhooks w
	INNER JOIN workflows f ON f.id = w.workflow_id
`

// FindByPath returns the active webhook registered at path.
func (r *WebhookRepository) FindByPath(ctx context.Context, path string) (*models.Webhook, *models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, selectWebhookWithWorkflow+" WHERE w.path = $1 AND w.is_active LIMIT 1", path)

	webhook, workflow, err := scanWebhookWithWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, persistence.NewWebhookPathError("FindByPath", path, persistence.ErrWebhookNotFound)
	}

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to find webhook by path", "path", path, "error", err)

		return nil, nil, persistence.NewWebhookPathError("FindByPath", path, err)
	}

	return webhook, workflow, nil
}

// FindByID returns the webhook with the given id regardless of its active flag.
func (r *WebhookRepository) FindByID(ctx context.Context, id string) (*models.Webhook, *models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, selectWebhookWithWorkflow+" WHERE w.id = $1", id)

	webhook, workflow, err := scanWebhookWithWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, persistence.NewWebhookError("FindByID", id, persistence.ErrWebhookNotFound)
	}

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to find webhook by id", "webhook_id", id, "error", err)

		return nil, nil, persistence.NewWebhookError("FindByID", id, err)
	}

	return webhook, workflow, nil
}

// Save inserts or updates a webhook.
func (r *WebhookRepository) Save(ctx context.Context, webhook *models.Webhook) error {
	query := `
		INSERT INTO webhooks (
			id, workflow_id, block_id, path, provider, provider_config, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id)
		DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			block_id = EXCLUDED.block_id,
			path = EXCLUDED.path,
			provider = EXCLUDED.provider,
			provider_config = EXCLUDED.provider_config,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`

	config := webhook.ProviderConfig
	if config == nil {
		config = map[string]any{}
	}

	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to serialize provider config: %w", err)
	}

	now := time.Now().UTC()
	if webhook.CreatedAt.IsZero() {
		webhook.CreatedAt = now
	}

	webhook.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, query,
		webhook.ID,
		webhook.WorkflowID,
		sql.NullString{String: webhook.BlockID, Valid: webhook.BlockID != ""},
		webhook.Path,
		webhook.Provider,
		string(configJSON),
		webhook.Active,
		webhook.CreatedAt,
		webhook.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return persistence.NewWebhookPathError("Save", webhook.Path, persistence.ErrWebhookPathTaken)
		}

		r.logger.ErrorContext(ctx, "Failed to save webhook", "webhook_id", webhook.ID, "error", err)

		return fmt.Errorf("failed to save webhook: %w", err)
	}

	r.logger.DebugContext(ctx, "Webhook saved successfully", "webhook_id", webhook.ID, "path", webhook.Path)

	return nil
}

func scanWebhookWithWorkflow(row *sql.Row) (*models.Webhook, *models.Workflow, error) {
	var (
		webhook    models.Webhook
		workflow   models.Workflow
		configJSON []byte
		deployedAt sql.NullTime
	)

	err := row.Scan(
		&webhook.ID,
		&webhook.WorkflowID,
		&webhook.BlockID,
		&webhook.Path,
		&webhook.Provider,
		&configJSON,
		&webhook.Active,
		&webhook.CreatedAt,
		&webhook.UpdatedAt,
		&workflow.ID,
		&workflow.UserID,
		&workflow.WorkspaceID,
		&workflow.Name,
		&workflow.IsDeployed,
		&deployedAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, nil, err
	}

	if len(configJSON) > 0 {
		err = json.Unmarshal(configJSON, &webhook.ProviderConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to deserialize provider config: %w", err)
		}
	}

	if deployedAt.Valid {
		workflow.DeployedAt = &deployedAt.Time
	}

	return &webhook, &workflow, nil
}
