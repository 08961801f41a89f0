package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/wastorga/sim/pkg/notify"
	"github.com/wastorga/sim/pkg/persistence"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func unauthorized(c fiber.Ctx) error {
	problem := problems.NewStatusProblem(401).
		WithInstance(c.Path()).
		WithType("unauthorized").
		WithDetail("Authentication required")

	return c.Status(fiber.StatusUnauthorized).JSON(problem)
}

func forbidden(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(403).
		WithInstance(c.Path()).
		WithType("forbidden").
		WithDetail(detail)

	return c.Status(fiber.StatusForbidden).JSON(problem)
}

func notFound(c fiber.Ctx, kind, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

// internalError logs err with the request id and answers with a generic problem.
func (h *APIHandlers) internalError(c fiber.Ctx, err error) error {
	h.logger.ErrorContext(c.Context(), "Request failed",
		"request_id", requestID(c),
		"method", c.Method(),
		"path", c.Path(),
		"error", err,
	)

	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithDetail("Internal server error")

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps notify and persistence errors to responses.
func (h *APIHandlers) handleServiceError(c fiber.Ctx, err error) error {
	var verr *notify.ValidationError

	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(NewValidationErrorResponse(verr))

	case persistence.IsOutboundWebhookNotFound(err):
		return notFound(c, "outbound_webhook_not_found", "Webhook not found")

	case persistence.IsWorkflowNotFound(err):
		return notFound(c, "workflow_not_found", "Workflow not found")

	case persistence.IsWebhookNotFound(err):
		return notFound(c, "webhook_not_found", "Webhook not found")

	default:
		return h.internalError(c, err)
	}
}
