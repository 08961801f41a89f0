// Package webhooks implements the inbound trigger pipeline: challenge handling, lookup,
// provider authentication, rate and usage limits, and hand-off to execution.
package webhooks

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/wastorga/sim/pkg/execution"
	"github.com/wastorga/sim/pkg/log"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/otelhelper"
	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/protocol"
	"github.com/wastorga/sim/pkg/providers"
	"github.com/wastorga/sim/pkg/ratelimit"
	"github.com/wastorga/sim/pkg/testtoken"
	"github.com/wastorga/sim/pkg/usage"
	"go.opentelemetry.io/otel/attribute"
)

type RateLimiter interface {
	CheckRateLimitWithSubscription(
		ctx context.Context,
		userID string,
		subscription *models.Subscription,
		trigger models.TriggerType,
		isTestMode bool,
	) (ratelimit.Result, error)
}

type UsageChecker interface {
	Subscription(ctx context.Context, userID string) (*models.Subscription, error)
	CheckUsageLimits(ctx context.Context, workflow *models.Workflow, webhook *models.Webhook, requestID string, isTestMode bool) error
}

type Dispatcher interface {
	Queue(ctx context.Context, job execution.Job) (execution.Ack, error)
	Execute(ctx context.Context, job execution.Job) execution.Result
}

type TokenVerifier interface {
	Verify(token, webhookID string) (*testtoken.Claims, error)
}

// Pipeline processes trigger and test requests. Stages run in a fixed order and the first
// stage that produces a response ends the request.
type Pipeline struct {
	registry     *Registry
	providers    *providers.Registry
	limiter      RateLimiter
	usage        UsageChecker
	dispatcher   Dispatcher
	tokens       TokenVerifier
	maxBodyBytes int64
	logger       *slog.Logger
	Now          func() time.Time
}

type Options struct {
	Registry     *Registry
	Providers    *providers.Registry
	Limiter      RateLimiter
	Usage        UsageChecker
	Dispatcher   Dispatcher
	Tokens       TokenVerifier
	MaxBodyBytes int64
	Logger       *slog.Logger
}

func NewPipeline(opts Options) *Pipeline {
	registry := opts.Providers
	if registry == nil {
		registry = providers.Default()
	}

	return &Pipeline{
		registry:     opts.Registry,
		providers:    registry,
		limiter:      opts.Limiter,
		usage:        opts.Usage,
		dispatcher:   opts.Dispatcher,
		tokens:       opts.Tokens,
		maxBodyBytes: opts.MaxBodyBytes,
		logger:       opts.Logger.With("module", "webhooks"),
		Now:          time.Now,
	}
}

func (p *Pipeline) requestContext(ctx context.Context, req *protocol.InboundRequest) context.Context {
	logger := log.WithRequest(p.logger, req.RequestID).With("path", req.Path)

	return log.ContextWithLogger(ctx, logger)
}

func (p *Pipeline) requestLogger(ctx context.Context) *slog.Logger {
	return log.FromContext(ctx, p.logger)
}

// HandleGet answers provider handshakes, otherwise confirms the endpoint exists.
func (p *Pipeline) HandleGet(ctx context.Context, req *protocol.InboundRequest) *protocol.Response {
	ctx = p.requestContext(ctx, req)

	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "webhook.get",
		attribute.String(otelhelper.RequestIDKey, req.RequestID),
		attribute.String(otelhelper.WebhookPathKey, req.Path),
	)
	defer span.End()

	if req.Body == nil {
		req.Body = map[string]any{}
	}

	if resp := p.HandleProviderChallenges(ctx, req); resp != nil {
		return resp
	}

	_, _, resp := p.lookup(ctx, req.Path)
	if resp != nil {
		return resp
	}

	p.requestLogger(ctx).InfoContext(ctx, "Webhook verification successful")

	return protocol.Text(http.StatusOK, "OK")
}

// HandlePost runs the full trigger pipeline for one delivery.
func (p *Pipeline) HandlePost(ctx context.Context, req *protocol.InboundRequest) (out *protocol.Response) {
	ctx = p.requestContext(ctx, req)

	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "webhook.post",
		attribute.String(otelhelper.RequestIDKey, req.RequestID),
		attribute.String(otelhelper.WebhookPathKey, req.Path),
	)

	defer func() {
		if out != nil {
			otelhelper.SetStatusCode(span, out.Status)
		}

		span.End()
	}()

	p.requestLogger(ctx).InfoContext(ctx, "Processing webhook request")

	if resp := p.ParseWebhookBody(ctx, req); resp != nil {
		return resp
	}

	if resp := p.HandleProviderChallenges(ctx, req); resp != nil {
		return resp
	}

	webhook, workflow, resp := p.lookup(ctx, req.Path)
	if resp != nil {
		return resp
	}

	span.SetAttributes(
		attribute.String(otelhelper.WebhookIDKey, webhook.ID),
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.ProviderKey, webhook.Provider),
	)

	if resp := p.VerifyProviderAuth(ctx, webhook, req); resp != nil {
		return resp
	}

	if resp := p.CheckRateLimits(ctx, workflow, webhook, req); resp != nil {
		return resp
	}

	if resp := p.CheckUsageLimits(ctx, workflow, webhook, req.RequestID, false); resp != nil {
		return resp
	}

	return p.QueueWebhookExecution(ctx, webhook, workflow, req)
}

// ParseWebhookBody decodes RawBody into Body. Only an oversized body is rejected.
func (p *Pipeline) ParseWebhookBody(ctx context.Context, req *protocol.InboundRequest) *protocol.Response {
	if p.maxBodyBytes > 0 && int64(len(req.RawBody)) > p.maxBodyBytes {
		p.requestLogger(ctx).WarnContext(ctx, "Webhook body too large", "size", len(req.RawBody), "limit", p.maxBodyBytes)

		return protocol.JSON(http.StatusRequestEntityTooLarge, map[string]any{"error": "Request body too large"})
	}

	if len(req.RawBody) == 0 {
		req.RawBody = []byte("{}")
	}

	req.Body = ParseBody(req.RawBody, req.Header("Content-Type"))

	return nil
}

// HandleProviderChallenges returns the first handshake response any provider produces.
func (p *Pipeline) HandleProviderChallenges(ctx context.Context, req *protocol.InboundRequest) *protocol.Response {
	for _, challenger := range p.providers.Challengers() {
		resp, err := challenger.Challenge(ctx, req, p.registry.Find)
		if err != nil {
			p.requestLogger(ctx).ErrorContext(ctx, "Provider challenge failed", "error", err)

			return protocol.Text(http.StatusInternalServerError, "Internal Server Error")
		}

		if resp != nil {
			p.requestLogger(ctx).InfoContext(ctx, "Answered provider challenge", "status", resp.Status)

			return resp
		}
	}

	return nil
}

func (p *Pipeline) lookup(ctx context.Context, path string) (*models.Webhook, *models.Workflow, *protocol.Response) {
	webhook, workflow, err := p.registry.FindWebhookAndWorkflow(ctx, path)
	if err == nil {
		return webhook, workflow, nil
	}

	if isNotFound(err) {
		p.requestLogger(ctx).WarnContext(ctx, "No active webhook found for path")

		return nil, nil, protocol.Text(http.StatusNotFound, "Webhook not found")
	}

	p.requestLogger(ctx).ErrorContext(ctx, "Failed to look up webhook", "error", err)

	return nil, nil, protocol.Text(http.StatusInternalServerError, "Internal Server Error")
}

// isNotFound also covers a webhook whose workflow is gone.
func isNotFound(err error) bool {
	return persistence.IsWebhookNotFound(err) || persistence.IsWorkflowNotFound(err)
}

// VerifyProviderAuth checks the request against the webhook's provider strategy.
// Clients only ever see a generic 401.
func (p *Pipeline) VerifyProviderAuth(ctx context.Context, webhook *models.Webhook, req *protocol.InboundRequest) *protocol.Response {
	provider := p.providers.Get(webhook.Provider)

	err := provider.Verify(ctx, webhook, req)
	if err == nil {
		return nil
	}

	if errors.Is(err, providers.ErrUnauthorized) {
		p.requestLogger(ctx).WarnContext(ctx, "Webhook authentication failed",
			"webhook_id", webhook.ID, "provider", provider.ID(), "reason", err)
	} else {
		p.requestLogger(ctx).ErrorContext(ctx, "Webhook verification error",
			"webhook_id", webhook.ID, "provider", provider.ID(), "error", err)
	}

	return protocol.JSON(http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
}

// CheckRateLimits counts the delivery against the owner's webhook quota. Exceeding it
// answers according to the provider's rate-limit policy; the workflow is not executed.
func (p *Pipeline) CheckRateLimits(
	ctx context.Context,
	workflow *models.Workflow,
	webhook *models.Webhook,
	req *protocol.InboundRequest,
) *protocol.Response {
	result, ok := p.checkRate(ctx, workflow, false)
	if ok {
		return nil
	}

	retryAfter := result.RetryAfter(p.Now())
	retrySeconds := int(retryAfter / time.Second)

	if p.providers.RateLimitPolicy(webhook) == protocol.RateLimitStrict {
		return protocol.JSON(http.StatusTooManyRequests, map[string]any{
			"error":      "Rate limit exceeded",
			"retryAfter": retrySeconds,
		}).WithHeader("Retry-After", strconv.Itoa(retrySeconds))
	}

	return protocol.JSON(http.StatusOK, map[string]any{
		"message":    "Rate limit exceeded",
		"requestId":  req.RequestID,
		"retryAfter": retrySeconds,
	})
}

func (p *Pipeline) checkRate(ctx context.Context, workflow *models.Workflow, isTestMode bool) (ratelimit.Result, bool) {
	subscription, err := p.usage.Subscription(ctx, workflow.UserID)
	if err != nil {
		p.requestLogger(ctx).WarnContext(ctx, "Failed to resolve subscription, using free tier", "user_id", workflow.UserID, "error", err)
	}

	result, err := p.limiter.CheckRateLimitWithSubscription(ctx, workflow.UserID, subscription, models.TriggerWebhook, isTestMode)
	if err != nil {
		p.requestLogger(ctx).ErrorContext(ctx, "Rate limit check failed, allowing request", "error", err)

		return result, true
	}

	if !result.Allowed {
		p.requestLogger(ctx).WarnContext(ctx, "Webhook rate limit exceeded",
			"user_id", workflow.UserID, "limit", result.Limit, "test_mode", isTestMode)
	}

	return result, result.Allowed
}

// CheckUsageLimits rejects executions of owners that used up their plan's cost budget.
func (p *Pipeline) CheckUsageLimits(
	ctx context.Context,
	workflow *models.Workflow,
	webhook *models.Webhook,
	requestID string,
	isTestMode bool,
) *protocol.Response {
	err := p.usage.CheckUsageLimits(ctx, workflow, webhook, requestID, isTestMode)
	if err == nil {
		return nil
	}

	var exceeded *usage.ExceededError
	if errors.As(err, &exceeded) {
		return protocol.JSON(http.StatusPaymentRequired, map[string]any{
			"error":        "Usage limit exceeded",
			"message":      exceeded.Message(),
			"currentUsage": exceeded.CurrentUsage,
			"limit":        exceeded.Limit,
		})
	}

	p.requestLogger(ctx).ErrorContext(ctx, "Usage limit check failed, allowing request", "error", err)

	return nil
}

// QueueWebhookExecution hands the delivery to the workers against the deployed graph.
func (p *Pipeline) QueueWebhookExecution(
	ctx context.Context,
	webhook *models.Webhook,
	workflow *models.Workflow,
	req *protocol.InboundRequest,
) *protocol.Response {
	if !workflow.IsDeployed {
		p.requestLogger(ctx).WarnContext(ctx, "Webhook targets a workflow that is not deployed", "workflow_id", workflow.ID)

		return protocol.JSON(http.StatusForbidden, map[string]any{"error": "Workflow is not deployed"})
	}

	provider := p.providers.Get(webhook.Provider)

	if validator, ok := provider.(protocol.PayloadValidator); ok {
		err := validator.ValidatePayload(ctx, webhook, req)

		var payloadErr *providers.PayloadError

		switch {
		case errors.As(err, &payloadErr):
			p.requestLogger(ctx).WarnContext(ctx, "Webhook payload failed schema validation", "violations", len(payloadErr.Violations))

			return protocol.JSON(http.StatusBadRequest, map[string]any{
				"error":   "Payload validation failed",
				"details": payloadErr.Violations,
			})
		case err != nil:
			p.requestLogger(ctx).ErrorContext(ctx, "Payload validation error", "error", err)

			return protocol.JSON(http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
		}
	}

	job := execution.NewJob(webhook, workflow, req, false)

	_, err := p.dispatcher.Queue(ctx, job)
	if err != nil {
		p.requestLogger(ctx).ErrorContext(ctx, "Failed to queue webhook execution", "error", err)

		return protocol.JSON(http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
	}

	return provider.Acknowledge(req)
}

// HandleTest executes the live graph of webhookID for a caller holding a valid test token.
func (p *Pipeline) HandleTest(ctx context.Context, webhookID, token string, req *protocol.InboundRequest) *protocol.Response {
	ctx = p.requestContext(ctx, req)

	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "webhook.test",
		attribute.String(otelhelper.RequestIDKey, req.RequestID),
		attribute.String(otelhelper.WebhookIDKey, webhookID),
		attribute.Bool(otelhelper.TestModeKey, true),
	)
	defer span.End()

	logger := p.requestLogger(ctx).With("webhook_id", webhookID)

	if token == "" {
		return protocol.JSON(http.StatusUnauthorized, map[string]any{"error": "Missing token"})
	}

	if _, err := p.tokens.Verify(token, webhookID); err != nil {
		logger.WarnContext(ctx, "Rejected test webhook token", "reason", err)

		return protocol.JSON(http.StatusUnauthorized, map[string]any{"error": "Invalid or expired token"})
	}

	if resp := p.ParseWebhookBody(ctx, req); resp != nil {
		return resp
	}

	webhook, workflow, err := p.registry.FindByID(ctx, webhookID)
	if err != nil {
		if isNotFound(err) {
			return protocol.JSON(http.StatusNotFound, map[string]any{"error": "Webhook not found"})
		}

		logger.ErrorContext(ctx, "Failed to load test webhook", "error", err)

		return protocol.JSON(http.StatusInternalServerError, map[string]any{"error": "Internal server error"})
	}

	if _, ok := p.checkRate(ctx, workflow, true); !ok {
		return protocol.JSON(http.StatusOK, map[string]any{"message": "Rate limit exceeded (test)"})
	}

	result := p.dispatcher.Execute(ctx, execution.NewJob(webhook, workflow, req, true))
	if !result.Success && result.Error != "" {
		otelhelper.SetError(span, errors.New(result.Error))
		logger.ErrorContext(ctx, "Test webhook execution failed", "error", result.Error)

		return protocol.JSON(http.StatusInternalServerError, map[string]any{"error": result.Error})
	}

	return protocol.JSON(http.StatusOK, testResponse(result, p.Now()))
}

func testResponse(result execution.Result, now time.Time) map[string]any {
	executedAt := result.ExecutedAt
	if executedAt.IsZero() {
		executedAt = now
	}

	var executionID any
	if result.ExecutionID != "" {
		executionID = result.ExecutionID
	}

	return map[string]any{
		"success":     result.Success,
		"output":      result.Output,
		"executionId": executionID,
		"executedAt":  executedAt.UTC().Format(time.RFC3339Nano),
		"mode":        "test",
		"target":      string(models.TargetLive),
	}
}
