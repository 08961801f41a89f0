package web

import (
	"time"

	"github.com/wastorga/sim/pkg/notify"
)

// ErrorResponse represents a plain API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ValidationErrorResponse is returned when an outbound webhook input is rejected.
// Fields carries the first message of each offending field.
type ValidationErrorResponse struct {
	Error   string              `json:"error"`
	Details []notify.FieldError `json:"details"`
	Fields  map[string]string   `json:"fields"`
}

func NewValidationErrorResponse(verr *notify.ValidationError) ValidationErrorResponse {
	fields := make(map[string]string, len(verr.Fields))
	for field := range verr.Fields {
		fields[field] = verr.FieldMessage(field)
	}

	return ValidationErrorResponse{
		Error:   "Validation failed",
		Details: verr.Details(),
		Fields:  fields,
	}
}

// TestURLResponse is the signed test URL of an inbound webhook.
type TestURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DataResponse wraps log-webhook payloads the way the settings UI reads them.
type DataResponse[T any] struct {
	Data T `json:"data"`
}

// logWebhookParams identifies one outbound webhook of a workflow.
type logWebhookParams struct {
	WorkflowID string `validate:"required,max=255"`
	WebhookID  string `validate:"required,max=255"`
}
