// Package file provides file-based persistence for local development and tests.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/wastorga/sim/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Each record is stored as one JSON document under a per-collection directory.
type Persistence struct {
	root string
	// mu serializes writes so uniqueness checks and the following write are atomic.
	mu sync.Mutex

	webhooks      *WebhookRepository
	workflows     *WorkflowRepository
	outbound      *OutboundWebhookRepository
	deliveries    *DeliveryRepository
	subscriptions *SubscriptionRepository
	usage         *UsageRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workflows = &WorkflowRepository{p: p}
	p.webhooks = &WebhookRepository{p: p}
	p.outbound = &OutboundWebhookRepository{p: p}
	p.deliveries = &DeliveryRepository{p: p}
	p.subscriptions = &SubscriptionRepository{p: p}
	p.usage = &UsageRepository{p: p}

	return p
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
	return p.subscriptions
}

func (p *Persistence) Usage() persistence.UsageRepository {
	return p.usage
}

// SubscriptionStore exposes the writable subscription store used to seed local data.
func (p *Persistence) SubscriptionStore() *SubscriptionRepository {
	return p.subscriptions
}

// UsageStore exposes the writable usage store used to seed local data.
func (p *Persistence) UsageStore() *UsageRepository {
	return p.usage
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (p *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks that the root directory exists.
func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (p *Persistence) path(elem ...string) string {
	return filepath.Clean(filepath.Join(append([]string{p.root}, elem...)...))
}

// readJSON decodes the document at file into v. A missing file reports found=false.
func readJSON(file string, v any) (bool, error) {
	body, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s: %w", file, err)
	}

	err = json.Unmarshal(body, v)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", file, err)
	}

	return true, nil
}

// writeJSON replaces file atomically: readers see either the old or the new document.
func writeJSON(file string, v any) error {
	dir := filepath.Dir(file)

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", file, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", file, err)
	}

	// The temp name does not end in .json, so listJSON never picks it up.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(file)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", file, err)
	}

	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to write %s: %w", file, err)
	}

	err = os.Rename(tmpName, file)
	if err != nil {
		_ = os.Remove(tmpName)

		return fmt.Errorf("failed to replace %s: %w", file, err)
	}

	return nil
}

// listJSON returns the documents of dir in file-name order.
func listJSON(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	return matches, nil
}

func removeFile(file string) error {
	err := os.Remove(file)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", file, err)
	}

	return nil
}
