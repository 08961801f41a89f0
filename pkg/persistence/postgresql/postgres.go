// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"
	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	webhooks     *WebhookRepository
	workflows    *WorkflowRepository
	outbound     *OutboundWebhookRepository
	deliveries   *DeliveryRepository
	subscription *SubscriptionRepository
	usage        *UsageRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and migrates the schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger = logger.With("component", "postgres_persistence")

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		webhooks:     NewWebhookRepository(database, logger),
		workflows:    NewWorkflowRepository(database, logger),
		outbound:     NewOutboundWebhookRepository(database, logger),
		deliveries:   NewDeliveryRepository(database, logger),
		subscription: NewSubscriptionRepository(database, logger),
		usage:        NewUsageRepository(database, logger),
	}, nil
}

func (p *Persistence) Webhooks() persistence.WebhookRepository {
	return p.webhooks
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return p.workflows
}

func (p *Persistence) OutboundWebhooks() persistence.OutboundWebhookRepository {
	return p.outbound
}

func (p *Persistence) Deliveries() persistence.DeliveryRepository {
	return p.deliveries
}

func (p *Persistence) Subscriptions() persistence.SubscriptionRepository {
	return p.subscription
}

func (p *Persistence) Usage() persistence.UsageRepository {
	return p.usage
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

type rowCloser interface {
	Close() error
}

func closeRows(ctx context.Context, logger *slog.Logger, rows rowCloser) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}
