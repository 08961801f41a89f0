package webhooks

import (
	"context"
	"fmt"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
)

// Registry resolves inbound webhooks and their owning workflows.
type Registry struct {
	repo persistence.WebhookRepository
}

func NewRegistry(repo persistence.WebhookRepository) *Registry {
	return &Registry{repo: repo}
}

// FindWebhookAndWorkflow returns the active webhook at path joined with its workflow.
// A miss is reported as persistence.ErrWebhookNotFound.
func (r *Registry) FindWebhookAndWorkflow(ctx context.Context, path string) (*models.Webhook, *models.Workflow, error) {
	webhook, workflow, err := r.repo.FindByPath(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	if webhook == nil || workflow == nil || !webhook.Active {
		return nil, nil, persistence.NewWebhookPathError("find", path, persistence.ErrWebhookNotFound)
	}

	return webhook, workflow, nil
}

// FindByID returns the webhook with id and its workflow, active or not.
func (r *Registry) FindByID(ctx context.Context, id string) (*models.Webhook, *models.Workflow, error) {
	webhook, workflow, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if webhook == nil || workflow == nil {
		return nil, nil, persistence.NewWebhookError("find", id, persistence.ErrWebhookNotFound)
	}

	return webhook, workflow, nil
}

// Find adapts the registry to protocol.WebhookFinder for provider handshakes.
func (r *Registry) Find(ctx context.Context, path string) (*models.Webhook, error) {
	webhook, _, err := r.FindWebhookAndWorkflow(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to find webhook for handshake: %w", err)
	}

	return webhook, nil
}
