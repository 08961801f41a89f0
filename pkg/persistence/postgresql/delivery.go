package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/wastorga/sim/pkg/models"
)

// DeliveryRepository keeps the audit trail of outbound notifications.
type DeliveryRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewDeliveryRepository(db *sql.DB, logger *slog.Logger) *DeliveryRepository {
	return &DeliveryRepository{db: db, logger: logger}
}

func (r *DeliveryRepository) Record(ctx context.Context, record *models.DeliveryRecord) error {
	query := `
		INSERT INTO outbound_webhook_deliveries (
			id, config_id, workflow_id, execution_id, attempts, status_code, success, error, delivered_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.ConfigID,
		record.WorkflowID,
		record.ExecutionID,
		record.Attempts,
		record.StatusCode,
		record.Success,
		sql.NullString{String: record.Error, Valid: record.Error != ""},
		record.DeliveredAt,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to record delivery", "config_id", record.ConfigID, "error", err)

		return fmt.Errorf("failed to record delivery: %w", err)
	}

	return nil
}

// ListByConfig returns the most recent deliveries of a config, newest first.
func (r *DeliveryRepository) ListByConfig(ctx context.Context, configID string, limit int) ([]*models.DeliveryRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := `
		SELECT id, config_id, workflow_id, execution_id, attempts, status_code, success, COALESCE(error, ''), delivered_at
		FROM outbound_webhook_deliveries
		WHERE config_id = $1
		ORDER BY delivered_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, configID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliveries: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.DeliveryRecord, 0)

	for rows.Next() {
		var record models.DeliveryRecord

		err := rows.Scan(
			&record.ID,
			&record.ConfigID,
			&record.WorkflowID,
			&record.ExecutionID,
			&record.Attempts,
			&record.StatusCode,
			&record.Success,
			&record.Error,
			&record.DeliveredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}

		records = append(records, &record)
	}

	return records, rows.Err()
}

// PruneBefore deletes deliveries older than cutoff and reports how many were removed.
func (r *DeliveryRepository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM outbound_webhook_deliveries WHERE delivered_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune deliveries: %w", err)
	}

	return result.RowsAffected()
}
