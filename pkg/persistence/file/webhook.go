package file

import (
	"context"
	"time"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
)

// WebhookRepository handles webhook-related file operations.
type WebhookRepository struct {
	p *Persistence
}

func (r *WebhookRepository) FindByPath(ctx context.Context, path string) (*models.Webhook, *models.Workflow, error) {
	webhooks, err := r.all()
	if err != nil {
		return nil, nil, persistence.NewWebhookPathError("FindByPath", path, err)
	}

	for _, webhook := range webhooks {
		if webhook.Active && webhook.Path == path {
			return r.withWorkflow(ctx, webhook)
		}
	}

	return nil, nil, persistence.NewWebhookPathError("FindByPath", path, persistence.ErrWebhookNotFound)
}

func (r *WebhookRepository) FindByID(ctx context.Context, id string) (*models.Webhook, *models.Workflow, error) {
	var webhook models.Webhook

	found, err := readJSON(r.p.path("webhooks", id+".json"), &webhook)
	if err != nil {
		return nil, nil, persistence.NewWebhookError("FindByID", id, err)
	}

	if !found {
		return nil, nil, persistence.NewWebhookError("FindByID", id, persistence.ErrWebhookNotFound)
	}

	return r.withWorkflow(ctx, &webhook)
}

// Save rejects a second active webhook on the same path.
func (r *WebhookRepository) Save(_ context.Context, webhook *models.Webhook) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if webhook.Active {
		existing, err := r.all()
		if err != nil {
			return err
		}

		for _, other := range existing {
			if other.ID != webhook.ID && other.Active && other.Path == webhook.Path {
				return persistence.NewWebhookPathError("Save", webhook.Path, persistence.ErrWebhookPathTaken)
			}
		}
	}

	now := time.Now().UTC()
	if webhook.CreatedAt.IsZero() {
		webhook.CreatedAt = now
	}

	webhook.UpdatedAt = now

	return writeJSON(r.p.path("webhooks", webhook.ID+".json"), webhook)
}

func (r *WebhookRepository) withWorkflow(ctx context.Context, webhook *models.Webhook) (*models.Webhook, *models.Workflow, error) {
	workflow, err := r.p.workflows.GetByID(ctx, webhook.WorkflowID)
	if err != nil {
		return nil, nil, persistence.NewWebhookError("FindWorkflow", webhook.ID, err)
	}

	return webhook, workflow, nil
}

func (r *WebhookRepository) all() ([]*models.Webhook, error) {
	files, err := listJSON(r.p.path("webhooks"))
	if err != nil {
		return nil, err
	}

	webhooks := make([]*models.Webhook, 0, len(files))

	for _, file := range files {
		var webhook models.Webhook

		found, err := readJSON(file, &webhook)
		if err != nil {
			return nil, err
		}

		if found {
			webhooks = append(webhooks, &webhook)
		}
	}

	return webhooks, nil
}
