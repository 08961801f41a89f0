// Package notify manages outbound webhook subscriptions and delivers signed execution
// notifications to them.
package notify

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

const (
	FieldURL           = "url"
	FieldLevelFilter   = "levelFilter"
	FieldTriggerFilter = "triggerFilter"
	FieldGeneral       = "general"
)

const (
	MsgURLRequired      = "Please enter a webhook URL"
	MsgURLScheme        = "URL must start with http:// or https://"
	MsgURLInvalid       = "Please enter a valid URL (e.g., https://example.com/webhook)"
	MsgLevelRequired    = "Please select at least one log level filter"
	MsgTriggerRequired  = "Please select at least one trigger filter"
	MsgInvalidLevel     = "Invalid log level"
	MsgInvalidTrigger   = "Invalid trigger type"
	MsgURLAlreadyExists = "A webhook with this URL already exists"
)

var ErrValidation = errors.New("validation failed")

// FieldError is one violation, addressed by the JSON path of the offending field.
type FieldError struct {
	Message string   `json:"message"`
	Path    []string `json:"path"`
}

// ValidationError collects field violations of an outbound webhook input.
type ValidationError struct {
	Fields map[string][]string
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: map[string][]string{}}
}

func (e *ValidationError) Add(field, message string) {
	for _, existing := range e.Fields[field] {
		if existing == message {
			return
		}
	}

	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, detail := range e.Details() {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.Join(detail.Path, "."), detail.Message))
	}

	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Details flattens the violations in field order.
func (e *ValidationError) Details() []FieldError {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}

	sort.Strings(fields)

	details := make([]FieldError, 0, len(fields))

	for _, field := range fields {
		for _, message := range e.Fields[field] {
			details = append(details, FieldError{Message: message, Path: []string{field}})
		}
	}

	return details
}

// FieldMessage returns the first violation of field, or "".
func (e *ValidationError) FieldMessage(field string) string {
	if messages := e.Fields[field]; len(messages) > 0 {
		return messages[0]
	}

	return ""
}
