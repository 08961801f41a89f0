// Package models defines the records shared by the trigger pipeline and the outbound notifier.
package models

import (
	"time"
)

// Webhook is an inbound trigger endpoint bound to a workflow block.
type Webhook struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflowId"`
	BlockID        string         `json:"blockId,omitempty"`
	Path           string         `json:"path"`
	Provider       string         `json:"provider"`
	ProviderConfig map[string]any `json:"providerConfig,omitempty"`
	Active         bool           `json:"isActive"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// ConfigString returns a string entry of the provider config, or "" when absent.
func (w *Webhook) ConfigString(key string) string {
	if w == nil || w.ProviderConfig == nil {
		return ""
	}

	value, ok := w.ProviderConfig[key].(string)
	if !ok {
		return ""
	}

	return value
}

// ConfigBool returns a boolean entry of the provider config. String "true" counts.
func (w *Webhook) ConfigBool(key string) bool {
	if w == nil || w.ProviderConfig == nil {
		return false
	}

	switch value := w.ProviderConfig[key].(type) {
	case bool:
		return value
	case string:
		return value == "true"
	default:
		return false
	}
}

// ConfigMap returns a nested object entry of the provider config.
func (w *Webhook) ConfigMap(key string) map[string]any {
	if w == nil || w.ProviderConfig == nil {
		return nil
	}

	value, _ := w.ProviderConfig[key].(map[string]any)

	return value
}
