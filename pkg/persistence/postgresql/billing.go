package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/wastorga/sim/pkg/models"
)

// SubscriptionRepository reads billing subscriptions maintained by the billing service.
type SubscriptionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSubscriptionRepository(db *sql.DB, logger *slog.Logger) *SubscriptionRepository {
	return &SubscriptionRepository{db: db, logger: logger}
}

func (r *SubscriptionRepository) ListByReference(ctx context.Context, referenceID string) ([]*models.Subscription, error) {
	query := `
		SELECT id, reference_id, plan, status, period_start, period_end
		FROM subscriptions
		WHERE reference_id = $1
	`

	rows, err := r.db.QueryContext(ctx, query, referenceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	subs := make([]*models.Subscription, 0)

	for rows.Next() {
		var (
			sub         models.Subscription
			plan        string
			periodStart sql.NullTime
			periodEnd   sql.NullTime
		)

		err := rows.Scan(&sub.ID, &sub.ReferenceID, &plan, &sub.Status, &periodStart, &periodEnd)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}

		sub.Plan = models.Plan(plan)
		sub.PeriodStart = periodStart.Time
		sub.PeriodEnd = periodEnd.Time
		subs = append(subs, &sub)
	}

	return subs, rows.Err()
}

// UsageRepository reads the accumulated cost of the current billing period.
type UsageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewUsageRepository(db *sql.DB, logger *slog.Logger) *UsageRepository {
	return &UsageRepository{db: db, logger: logger}
}

// CurrentPeriodCost returns 0 for users without a stats row.
func (r *UsageRepository) CurrentPeriodCost(ctx context.Context, userID string) (float64, error) {
	var cost float64

	err := r.db.QueryRowContext(ctx, "SELECT current_period_cost FROM user_stats WHERE user_id = $1", userID).Scan(&cost)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("failed to query usage: %w", err)
	}

	return cost, nil
}
