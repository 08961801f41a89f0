// Package persistence provides the storage boundary for webhooks, workflows and outbound notification settings.
package persistence

import (
	"context"
	"time"

	"github.com/wastorga/sim/pkg/models"
)

// WebhookRepository resolves inbound webhooks together with their owning workflow.
type WebhookRepository interface {
	// FindByPath returns the active webhook at path joined with its workflow.
	FindByPath(ctx context.Context, path string) (*models.Webhook, *models.Workflow, error)
	// FindByID returns the webhook with the given id joined with its workflow, active or not.
	FindByID(ctx context.Context, id string) (*models.Webhook, *models.Workflow, error)
	Save(ctx context.Context, webhook *models.Webhook) error
}

type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
}

type OutboundWebhookRepository interface {
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.OutboundWebhookConfig, error)
	GetByID(ctx context.Context, workflowID, id string) (*models.OutboundWebhookConfig, error)
	Save(ctx context.Context, config *models.OutboundWebhookConfig) error
	Delete(ctx context.Context, workflowID, id string) error
}

type DeliveryRepository interface {
	Record(ctx context.Context, record *models.DeliveryRecord) error
	ListByConfig(ctx context.Context, configID string, limit int) ([]*models.DeliveryRecord, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SubscriptionRepository is a read-only view of billing subscriptions.
type SubscriptionRepository interface {
	ListByReference(ctx context.Context, referenceID string) ([]*models.Subscription, error)
}

// UsageRepository is a read-only view of accumulated execution cost.
type UsageRepository interface {
	CurrentPeriodCost(ctx context.Context, userID string) (float64, error)
}

type Persistence interface {
	Webhooks() WebhookRepository
	Workflows() WorkflowRepository
	OutboundWebhooks() OutboundWebhookRepository
	Deliveries() DeliveryRepository
	Subscriptions() SubscriptionRepository
	Usage() UsageRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
