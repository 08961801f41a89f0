package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/wastorga/sim/pkg/auth"
)

type principalKey struct{}

// requireAuth resolves the caller from a session bearer token or the internal secret header.
func (h *APIHandlers) requireAuth(c fiber.Ctx) error {
	if h.auth == nil {
		return unauthorized(c)
	}

	p, err := h.auth.Authenticate(auth.Credentials{
		Authorization:  c.Get(fiber.HeaderAuthorization),
		InternalSecret: c.Get(auth.InternalSecretHeader),
		UserID:         c.Get(auth.UserIDHeader),
	})
	if err != nil {
		h.logger.WarnContext(c.Context(), "Rejected unauthenticated request",
			"request_id", requestID(c), "path", c.Path(), "error", err)

		return unauthorized(c)
	}

	c.Locals(principalKey{}, p)

	return c.Next()
}

// requireWorkflowAccess checks that the caller owns the workflow named by :id.
func (h *APIHandlers) requireWorkflowAccess(c fiber.Ctx) error {
	workflow, err := h.workflows.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	if workflow == nil {
		return notFound(c, "workflow_not_found", "Workflow not found")
	}

	if !principal(c).CanAccess(workflow.UserID) {
		return forbidden(c, "You do not have access to this workflow")
	}

	return c.Next()
}

func principal(c fiber.Ctx) auth.Principal {
	p, _ := c.Locals(principalKey{}).(auth.Principal)

	return p
}
