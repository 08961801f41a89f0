// Package web provides HTTP handlers for inbound webhook triggers and outbound log webhooks.
package web

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"
	"github.com/wastorga/sim/pkg/auth"
	"github.com/wastorga/sim/pkg/log"
	"github.com/wastorga/sim/pkg/notify"
	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/protocol"
	"github.com/wastorga/sim/pkg/testtoken"
	"github.com/wastorga/sim/pkg/webhooks"
)

// HealthChecker is a dependency reported by the /health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Options wires the handlers to their collaborators.
type Options struct {
	Pipeline  *webhooks.Pipeline
	Registry  *webhooks.Registry
	Notifier  *notify.Service
	Tokens    *testtoken.Issuer
	Auth      *auth.Authenticator
	Workflows persistence.WorkflowRepository
	Validator *validator.Validate
	BaseURL   string
	Checks    map[string]HealthChecker
	Logger    *slog.Logger
}

type APIHandlers struct {
	pipeline  *webhooks.Pipeline
	registry  *webhooks.Registry
	notifier  *notify.Service
	tokens    *testtoken.Issuer
	auth      *auth.Authenticator
	workflows persistence.WorkflowRepository
	validator *validator.Validate
	baseURL   string
	checks    map[string]HealthChecker
	logger    *slog.Logger
}

func NewAPIHandlers(opts Options) *APIHandlers {
	logger := opts.Logger
	if logger == nil {
		logger = log.WithModule("web")
	}

	return &APIHandlers{
		pipeline:  opts.Pipeline,
		registry:  opts.Registry,
		notifier:  opts.Notifier,
		tokens:    opts.Tokens,
		auth:      opts.Auth,
		workflows: opts.Workflows,
		validator: opts.Validator,
		baseURL:   opts.BaseURL,
		checks:    opts.Checks,
		logger:    logger,
	}
}

// Register mounts the webhook routes under /api. Test URL minting and the log webhook
// settings require an authenticated caller that owns the workflow.
func (h *APIHandlers) Register(app fiber.Router) {
	api := app.Group("/api")

	hooks := api.Group("/webhooks")
	hooks.Get("/trigger/:path", h.TriggerGet)
	hooks.Post("/trigger/:path", h.TriggerPost)
	hooks.Post("/test/:id", h.TestWebhook)
	hooks.Post("/:id/test-url", h.CreateTestURL, h.requireAuth)

	logs := api.Group("/workflows/:id/log-webhook")
	logs.Get("/", h.ListLogWebhooks, h.requireAuth, h.requireWorkflowAccess)
	logs.Post("/", h.CreateLogWebhook, h.requireAuth, h.requireWorkflowAccess)
	logs.Delete("/", h.DeleteLogWebhook, h.requireAuth, h.requireWorkflowAccess)
	logs.Post("/test", h.TestLogWebhook, h.requireAuth, h.requireWorkflowAccess)
	logs.Get("/:webhookId", h.GetLogWebhook, h.requireAuth, h.requireWorkflowAccess)
	logs.Put("/:webhookId", h.UpdateLogWebhook, h.requireAuth, h.requireWorkflowAccess)
	logs.Delete("/:webhookId", h.DeleteLogWebhook, h.requireAuth, h.requireWorkflowAccess)

	app.Get("/health", h.HealthCheck)
}

// inboundRequest copies the fiber request; fiber reuses its buffers after the handler returns.
func inboundRequest(c fiber.Ctx, path string) *protocol.InboundRequest {
	headers := http.Header{}

	for key, values := range c.GetReqHeaders() {
		for _, value := range values {
			headers.Add(key, value)
		}
	}

	query := url.Values{}
	for key, value := range c.Queries() {
		query.Set(key, value)
	}

	return &protocol.InboundRequest{
		RequestID:  requestID(c),
		Method:     c.Method(),
		Path:       path,
		Headers:    headers,
		Query:      query,
		RawBody:    bytes.Clone(c.Body()),
		RemoteAddr: c.IP(),
		ReceivedAt: time.Now(),
	}
}

// requestID prefers the id assigned by the requestid middleware.
func requestID(c fiber.Ctx) string {
	if id := requestid.FromContext(c); id != "" {
		return id
	}

	return uuid.New().String()
}

func render(c fiber.Ctx, resp *protocol.Response) error {
	for key, value := range resp.Headers {
		c.Set(key, value)
	}

	c.Status(resp.Status)

	if resp.IsText() {
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

		return c.SendString(resp.Text)
	}

	return c.JSON(resp.Body)
}

func (h *APIHandlers) TriggerGet(c fiber.Ctx) error {
	req := inboundRequest(c, c.Params("path"))

	return render(c, h.pipeline.HandleGet(c.Context(), req))
}

func (h *APIHandlers) TriggerPost(c fiber.Ctx) error {
	req := inboundRequest(c, c.Params("path"))

	return render(c, h.pipeline.HandlePost(c.Context(), req))
}

func (h *APIHandlers) TestWebhook(c fiber.Ctx) error {
	id := c.Params("id")
	req := inboundRequest(c, id)

	return render(c, h.pipeline.HandleTest(c.Context(), id, c.Query("token"), req))
}

// CreateTestURL issues a signed, expiring URL that runs the webhook's live graph.
func (h *APIHandlers) CreateTestURL(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Webhook ID is required")
	}

	webhook, workflow, err := h.registry.FindByID(c.Context(), id)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	if !principal(c).CanAccess(workflow.UserID) {
		return forbidden(c, "You do not have access to this workflow")
	}

	token, expiresAt, err := h.tokens.Issue(webhook.ID, workflow.ID)
	if err != nil {
		return h.internalError(c, err)
	}

	testURL := h.baseURL + "/api/webhooks/test/" + url.PathEscape(webhook.ID) + "?token=" + url.QueryEscape(token)

	return c.JSON(TestURLResponse{URL: testURL, ExpiresAt: expiresAt.UTC()})
}

func (h *APIHandlers) ListLogWebhooks(c fiber.Ctx) error {
	views, err := h.notifier.List(c.Context(), c.Params("id"))
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(DataResponse[[]notify.ConfigView]{Data: views})
}

func (h *APIHandlers) GetLogWebhook(c fiber.Ctx) error {
	params, err := h.logWebhookParams(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	view, err := h.notifier.Get(c.Context(), params.WorkflowID, params.WebhookID)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(DataResponse[notify.ConfigView]{Data: view})
}

func (h *APIHandlers) CreateLogWebhook(c fiber.Ctx) error {
	var input notify.Input
	if err := c.Bind().JSON(&input); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	view, err := h.notifier.Create(c.Context(), c.Params("id"), input)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(DataResponse[notify.ConfigView]{Data: view})
}

func (h *APIHandlers) UpdateLogWebhook(c fiber.Ctx) error {
	params, err := h.logWebhookParams(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	var input notify.Input
	if err := c.Bind().JSON(&input); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	view, err := h.notifier.Update(c.Context(), params.WorkflowID, params.WebhookID, input)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(DataResponse[notify.ConfigView]{Data: view})
}

func (h *APIHandlers) DeleteLogWebhook(c fiber.Ctx) error {
	params, err := h.logWebhookParams(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	if err := h.notifier.Delete(c.Context(), params.WorkflowID, params.WebhookID); err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(DataResponse[fiber.Map]{Data: fiber.Map{"success": true}})
}

func (h *APIHandlers) TestLogWebhook(c fiber.Ctx) error {
	params, err := h.logWebhookParams(c)
	if err != nil {
		return badRequest(c, err.Error())
	}

	result, err := h.notifier.TestWebhook(c.Context(), params.WorkflowID, params.WebhookID)
	if err != nil {
		return h.handleServiceError(c, err)
	}

	return c.JSON(DataResponse[notify.TestResult]{Data: result})
}

// logWebhookParams reads the outbound webhook id from the path, falling back to ?webhookId=.
func (h *APIHandlers) logWebhookParams(c fiber.Ctx) (logWebhookParams, error) {
	params := logWebhookParams{
		WorkflowID: c.Params("id"),
		WebhookID:  c.Params("webhookId"),
	}

	if params.WebhookID == "" {
		params.WebhookID = c.Query("webhookId")
	}

	if err := h.validator.Struct(params); err != nil {
		return params, err
	}

	return params, nil
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	checkers := fiber.Map{}
	healthy := true

	for name, check := range h.checks {
		if err := check.HealthCheck(c.Context()); err != nil {
			checkers[name] = err.Error()
			healthy = false

			continue
		}

		checkers[name] = "ok"
	}

	status := "unhealthy"
	message := "Webhook service is unhealthy"
	httpStatus := http.StatusServiceUnavailable

	if healthy {
		status = "healthy"
		message = "Webhook service is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":    status,
		"message":   message,
		"checkers":  checkers,
		"timestamp": time.Now().UTC(),
	})
}
