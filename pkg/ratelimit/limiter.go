package ratelimit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/wastorga/sim/pkg/config"
	"github.com/wastorga/sim/pkg/models"
)

// Result is the outcome of one rate-limit check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the time left until the window resets, rounded up to whole seconds.
func (r Result) RetryAfter(now time.Time) time.Duration {
	wait := r.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}

	return (wait + time.Second - 1).Truncate(time.Second)
}

// Limiter enforces fixed windows aligned to multiples of the window size.
type Limiter struct {
	store  CounterStore
	limits config.RateLimits
	logger *slog.Logger
	Now    func() time.Time
}

func NewLimiter(store CounterStore, limits config.RateLimits, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:  store,
		limits: limits,
		logger: logger.With("module", "ratelimit"),
		Now:    time.Now,
	}
}

// Ceiling returns the per-window ceiling for a trigger type under the given plan.
func (l *Limiter) Ceiling(plan models.Plan, trigger models.TriggerType, isTestMode bool) int {
	tier := l.limits.For(plan)

	switch {
	case trigger == models.TriggerManual:
		return l.limits.ManualLimit
	case isTestMode:
		return tier.Test
	case trigger == models.TriggerAPI || trigger == models.TriggerChat:
		return tier.Sync
	default:
		return tier.Async
	}
}

// CheckRateLimitWithSubscription counts one request of userID in the current window.
// Test-mode requests use a separate bucket so they never consume production quota.
// Store failures are logged and allow the request.
func (l *Limiter) CheckRateLimitWithSubscription(
	ctx context.Context,
	userID string,
	subscription *models.Subscription,
	trigger models.TriggerType,
	isTestMode bool,
) (Result, error) {
	plan := subscription.EffectivePlan()
	ceiling := l.Ceiling(plan, trigger, isTestMode)

	window := l.limits.Window
	now := l.Now()
	windowStart := now.Truncate(window)
	resetAt := windowStart.Add(window)

	count, err := l.store.Increment(ctx, windowKey(userID, trigger, isTestMode, windowStart), resetAt)
	if err != nil {
		l.logger.ErrorContext(ctx, "Rate limit store unavailable, allowing request",
			"user_id", userID, "trigger", trigger, "error", err)

		return Result{Allowed: true, Limit: ceiling, Remaining: ceiling, ResetAt: resetAt}, nil
	}

	result := Result{
		Allowed:   count <= int64(ceiling),
		Limit:     ceiling,
		Remaining: max(ceiling-int(count), 0),
		ResetAt:   resetAt,
	}

	if !result.Allowed {
		l.logger.WarnContext(ctx, "Rate limit exceeded",
			"user_id", userID, "plan", plan, "trigger", trigger, "test_mode", isTestMode, "limit", ceiling)
	}

	return result, nil
}

func windowKey(userID string, trigger models.TriggerType, isTestMode bool, windowStart time.Time) string {
	bucket := string(trigger)
	if isTestMode {
		bucket += ":test"
	}

	return userID + ":" + bucket + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)
}
