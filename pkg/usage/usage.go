// Package usage gates executions on the owner's accumulated cost for the current billing period.
package usage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wastorga/sim/pkg/config"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
)

// ExceededError is returned when the owner's current period cost reached their plan's ceiling.
type ExceededError struct {
	UserID       string
	Plan         models.Plan
	CurrentUsage float64
	Limit        float64
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("usage limit exceeded: $%.2f of $%.2f used on the %s plan", e.CurrentUsage, e.Limit, e.Plan)
}

// Message is the user-facing explanation of the rejection.
func (e *ExceededError) Message() string {
	return fmt.Sprintf(
		"Your workflow execution has been blocked. You have used $%.2f of your $%.2f limit. Please upgrade your plan to continue.",
		e.CurrentUsage, e.Limit,
	)
}

type Limiter struct {
	subscriptions persistence.SubscriptionRepository
	usage         persistence.UsageRepository
	limits        config.UsageLimits
	logger        *slog.Logger
}

func NewLimiter(
	subscriptions persistence.SubscriptionRepository,
	usage persistence.UsageRepository,
	limits config.UsageLimits,
	logger *slog.Logger,
) *Limiter {
	return &Limiter{
		subscriptions: subscriptions,
		usage:         usage,
		limits:        limits,
		logger:        logger.With("module", "usage"),
	}
}

// Subscription returns the strongest active subscription of userID, or nil.
func (l *Limiter) Subscription(ctx context.Context, userID string) (*models.Subscription, error) {
	return ResolveSubscription(ctx, l.subscriptions, userID)
}

// ResolveSubscription loads the subscriptions referencing userID and picks the highest plan.
func ResolveSubscription(
	ctx context.Context,
	subscriptions persistence.SubscriptionRepository,
	userID string,
) (*models.Subscription, error) {
	subs, err := subscriptions.ListByReference(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions of %s: %w", userID, err)
	}

	return models.HighestPriority(subs), nil
}

// CheckUsageLimits returns an *ExceededError when the workflow owner is over their cost limit.
// With billing disabled every execution passes. Lookup failures are logged and let the request through.
func (l *Limiter) CheckUsageLimits(
	ctx context.Context,
	workflow *models.Workflow,
	webhook *models.Webhook,
	requestID string,
	isTestMode bool,
) error {
	if !l.limits.BillingEnabled {
		return nil
	}

	logger := l.logger.With("request_id", requestID, "user_id", workflow.UserID, "test_mode", isTestMode)
	if webhook != nil {
		logger = logger.With("webhook_id", webhook.ID)
	}

	subscription, err := l.Subscription(ctx, workflow.UserID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to resolve subscription, allowing execution", "error", err)

		return nil
	}

	current, err := l.usage.CurrentPeriodCost(ctx, workflow.UserID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read usage, allowing execution", "error", err)

		return nil
	}

	plan := subscription.EffectivePlan()
	limit := l.limits.CostLimit(plan)

	if current >= limit {
		logger.WarnContext(ctx, "Usage limit exceeded", "plan", plan, "current_usage", current, "limit", limit)

		return &ExceededError{UserID: workflow.UserID, Plan: plan, CurrentUsage: current, Limit: limit}
	}

	return nil
}
