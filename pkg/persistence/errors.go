package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWebhookNotFound indicates no active webhook matched the path or id.
	ErrWebhookNotFound = errors.New("webhook not found")

	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrOutboundWebhookNotFound indicates an outbound notification config was not found.
	ErrOutboundWebhookNotFound = errors.New("outbound webhook not found")

	// ErrWebhookPathTaken indicates another active webhook already owns the path.
	ErrWebhookPathTaken = errors.New("webhook path already in use")

	// ErrOutboundURLTaken indicates the workflow already has an outbound webhook with the URL.
	ErrOutboundURLTaken = errors.New("outbound webhook url already exists")
)

// WebhookError wraps webhook lookup errors with the identifier that was queried.
type WebhookError struct {
	Op        string
	WebhookID string
	Path      string
	Err       error
}

func (e *WebhookError) Error() string {
	target := e.WebhookID
	if e.Path != "" {
		target = "path " + e.Path
	}

	return fmt.Sprintf("%s operation failed for webhook %s: %v", e.Op, target, e.Err)
}

func (e *WebhookError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for webhook errors.
func (e *WebhookError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWebhookPathError creates a webhook error for a lookup by path.
func NewWebhookPathError(op, path string, err error) *WebhookError {
	return &WebhookError{Op: op, Path: path, Err: err}
}

// NewWebhookError creates a webhook error for a lookup by id.
func NewWebhookError(op, webhookID string, err error) *WebhookError {
	return &WebhookError{Op: op, WebhookID: webhookID, Err: err}
}

// OutboundWebhookError wraps outbound config errors with context.
type OutboundWebhookError struct {
	Op         string
	WorkflowID string
	ConfigID   string
	Err        error
}

func (e *OutboundWebhookError) Error() string {
	return fmt.Sprintf("%s operation failed for outbound webhook %s in workflow %s: %v", e.Op, e.ConfigID, e.WorkflowID, e.Err)
}

func (e *OutboundWebhookError) Unwrap() error {
	return e.Err
}

func (e *OutboundWebhookError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWebhookNotFound checks if an error indicates a webhook was not found.
func IsWebhookNotFound(err error) bool {
	return errors.Is(err, ErrWebhookNotFound)
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsOutboundWebhookNotFound checks if an error indicates an outbound config was not found.
func IsOutboundWebhookNotFound(err error) bool {
	return errors.Is(err, ErrOutboundWebhookNotFound)
}
