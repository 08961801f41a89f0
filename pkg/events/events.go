// Package events defines the messages exchanged with the execution workers over the event bus.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const Topic = "sim.webhooks.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// WebhookExecutionRequestedEvent asks the execution workers to run a workflow for an inbound webhook.
	WebhookExecutionRequestedEvent EventType = "webhook.execution.requested"
	// WorkflowExecutionCompletedEvent is emitted by the workers when a run finished, successfully or not.
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

// WebhookExecutionRequested carries everything a worker needs to execute the workflow
// behind an accepted webhook call.
type WebhookExecutionRequested struct {
	BaseEvent

	RequestID       string            `json:"request_id"`
	WebhookID       string            `json:"webhook_id"`
	UserID          string            `json:"user_id"`
	Provider        string            `json:"provider"`
	BlockID         string            `json:"block_id,omitempty"`
	Path            string            `json:"path"`
	Body            any               `json:"body"`
	Headers         map[string]string `json:"headers"`
	TestMode        bool              `json:"test_mode"`
	ExecutionTarget string            `json:"execution_target"`
}

func (e WebhookExecutionRequested) GetType() EventType {
	return WebhookExecutionRequestedEvent
}

// WorkflowExecutionCompleted describes a finished run. Optional sections are filled by the
// worker when available and attached to outbound notifications on request.
type WorkflowExecutionCompleted struct {
	BaseEvent

	ExecutionID string    `json:"execution_id"`
	Level       string    `json:"level"`
	Trigger     string    `json:"trigger"`
	Cost        float64   `json:"cost"`
	FinishedAt  time.Time `json:"finished_at"`
	FinalOutput any       `json:"final_output,omitempty"`
	TraceSpans  []any     `json:"trace_spans,omitempty"`
	RateLimits  any       `json:"rate_limits,omitempty"`
	Usage       any       `json:"usage,omitempty"`
}

func (e WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}
