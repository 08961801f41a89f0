package models

import (
	"slices"
	"time"
)

// PayloadInclusionPolicy selects the optional sections of an outbound notification.
type PayloadInclusionPolicy struct {
	IncludeFinalOutput bool `json:"includeFinalOutput"`
	IncludeTraceSpans  bool `json:"includeTraceSpans"`
	IncludeRateLimits  bool `json:"includeRateLimits"`
	IncludeUsageData   bool `json:"includeUsageData"`
}

// OutboundWebhookConfig is a user-configured endpoint that receives execution notifications.
type OutboundWebhookConfig struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflowId"`
	URL        string `json:"url"`
	// Secret is write-only and never serialized.
	Secret string `json:"-"`

	PayloadInclusionPolicy

	LevelFilter   []LogLevel    `json:"levelFilter"`
	TriggerFilter []TriggerType `json:"triggerFilter"`
	Active        bool          `json:"active"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

func (c *OutboundWebhookConfig) HasSecret() bool {
	return c.Secret != ""
}

// Accepts reports whether an execution with the given level and trigger should be delivered.
func (c *OutboundWebhookConfig) Accepts(level LogLevel, trigger TriggerType) bool {
	return c.Active &&
		slices.Contains(c.LevelFilter, level) &&
		slices.Contains(c.TriggerFilter, trigger)
}

// DeliveryRecord is the audit entry of one outbound notification.
type DeliveryRecord struct {
	ID          string    `json:"id"`
	ConfigID    string    `json:"configId"`
	WorkflowID  string    `json:"workflowId"`
	ExecutionID string    `json:"executionId"`
	Attempts    int       `json:"attempts"`
	StatusCode  int       `json:"statusCode"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	DeliveredAt time.Time `json:"deliveredAt"`
}
