package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

// GetByID returns a workflow by its ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	query := `
		SELECT
			id
		  , user_id
		  , COALESCE(workspace_id, '')
		  , name
		  , is_deployed
		  , deployed_at
		  , created_at
		  , updated_at
		FROM workflows
		WHERE id = $1
	`

	var (
		workflow   models.Workflow
		deployedAt sql.NullTime
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&workflow.ID,
		&workflow.UserID,
		&workflow.WorkspaceID,
		&workflow.Name,
		&workflow.IsDeployed,
		&deployedAt,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("workflow %s: %w", id, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to get workflow", "workflow_id", id, "error", err)

		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	if deployedAt.Valid {
		workflow.DeployedAt = &deployedAt.Time
	}

	return &workflow, nil
}

// Save inserts or updates a workflow.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	query := `
		INSERT INTO workflows (
			id, user_id, workspace_id, name, is_deployed, deployed_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id)
		DO UPDATE SET
			user_id = EXCLUDED.user_id,
			workspace_id = EXCLUDED.workspace_id,
			name = EXCLUDED.name,
			is_deployed = EXCLUDED.is_deployed,
			deployed_at = EXCLUDED.deployed_at,
			updated_at = EXCLUDED.updated_at
	`

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	var deployedAt sql.NullTime
	if workflow.DeployedAt != nil {
		deployedAt = sql.NullTime{Time: *workflow.DeployedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		workflow.ID,
		workflow.UserID,
		sql.NullString{String: workflow.WorkspaceID, Valid: workflow.WorkspaceID != ""},
		workflow.Name,
		workflow.IsDeployed,
		deployedAt,
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to save workflow", "workflow_id", workflow.ID, "error", err)

		return fmt.Errorf("failed to save workflow: %w", err)
	}

	return nil
}
