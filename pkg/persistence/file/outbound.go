package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
)

// outboundRecord keeps the secret on disk; the model never serializes it.
type outboundRecord struct {
	*models.OutboundWebhookConfig

	Secret string `json:"secret,omitempty"`
}

// OutboundWebhookRepository stores configs under outbound/<workflowID>/<id>.json.
type OutboundWebhookRepository struct {
	p *Persistence
}

func (r *OutboundWebhookRepository) ListByWorkflow(_ context.Context, workflowID string) ([]*models.OutboundWebhookConfig, error) {
	files, err := listJSON(r.p.path("outbound", workflowID))
	if err != nil {
		return nil, err
	}

	configs := make([]*models.OutboundWebhookConfig, 0, len(files))

	for _, file := range files {
		config, err := readOutbound(file)
		if err != nil {
			return nil, err
		}

		if config != nil {
			configs = append(configs, config)
		}
	}

	sort.SliceStable(configs, func(i, j int) bool {
		return configs[i].CreatedAt.Before(configs[j].CreatedAt)
	})

	return configs, nil
}

func (r *OutboundWebhookRepository) GetByID(_ context.Context, workflowID, id string) (*models.OutboundWebhookConfig, error) {
	config, err := readOutbound(r.p.path("outbound", workflowID, id+".json"))
	if err != nil {
		return nil, err
	}

	if config == nil {
		return nil, &persistence.OutboundWebhookError{
			Op: "GetByID", WorkflowID: workflowID, ConfigID: id, Err: persistence.ErrOutboundWebhookNotFound,
		}
	}

	return config, nil
}

func (r *OutboundWebhookRepository) Save(ctx context.Context, config *models.OutboundWebhookConfig) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	existing, err := r.ListByWorkflow(ctx, config.WorkflowID)
	if err != nil {
		return err
	}

	for _, other := range existing {
		if other.ID != config.ID && other.URL == config.URL {
			return &persistence.OutboundWebhookError{
				Op: "Save", WorkflowID: config.WorkflowID, ConfigID: config.ID, Err: persistence.ErrOutboundURLTaken,
			}
		}
	}

	now := time.Now().UTC()
	if config.CreatedAt.IsZero() {
		config.CreatedAt = now
	}

	config.UpdatedAt = now

	return writeJSON(
		r.p.path("outbound", config.WorkflowID, config.ID+".json"),
		outboundRecord{OutboundWebhookConfig: config, Secret: config.Secret},
	)
}

func (r *OutboundWebhookRepository) Delete(_ context.Context, workflowID, id string) error {
	err := os.Remove(r.p.path("outbound", workflowID, id+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return &persistence.OutboundWebhookError{
			Op: "Delete", WorkflowID: workflowID, ConfigID: id, Err: persistence.ErrOutboundWebhookNotFound,
		}
	}

	if err != nil {
		return fmt.Errorf("failed to delete outbound webhook %s: %w", id, err)
	}

	return nil
}

func readOutbound(file string) (*models.OutboundWebhookConfig, error) {
	record := outboundRecord{OutboundWebhookConfig: &models.OutboundWebhookConfig{}}

	found, err := readJSON(file, &record)
	if err != nil || !found {
		return nil, err
	}

	record.OutboundWebhookConfig.Secret = record.Secret

	return record.OutboundWebhookConfig, nil
}
