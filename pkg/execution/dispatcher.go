package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wastorga/sim/pkg/eventbus"
	"github.com/wastorga/sim/pkg/events"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

type Dispatcher struct {
	publisher eventbus.EventPublisher
	executor  Executor
	timeout   time.Duration
	logger    *slog.Logger
	Now       func() time.Time
}

func NewDispatcher(publisher eventbus.EventPublisher, executor Executor, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		executor:  executor,
		timeout:   timeout,
		logger:    logger.With("module", "execution"),
		Now:       time.Now,
	}
}

// Queue publishes job for the execution workers. Only deployed-target jobs are queued.
func (d *Dispatcher) Queue(ctx context.Context, job Job) (Ack, error) {
	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "execution.queue",
		attribute.String(otelhelper.WorkflowIDKey, job.WorkflowID),
		attribute.String(otelhelper.WebhookIDKey, job.WebhookID),
		attribute.String(otelhelper.RequestIDKey, job.RequestID),
	)
	defer span.End()

	if job.ExecutionTarget != models.TargetDeployed {
		return Ack{}, fmt.Errorf("cannot queue %s target: %w", job.ExecutionTarget, ErrNotDeployed)
	}

	event := events.WebhookExecutionRequested{
		BaseEvent:       events.NewBaseEvent(events.WebhookExecutionRequestedEvent, job.WorkflowID),
		RequestID:       job.RequestID,
		WebhookID:       job.WebhookID,
		UserID:          job.UserID,
		Provider:        job.Provider,
		BlockID:         job.BlockID,
		Path:            job.Path,
		Body:            job.Body,
		Headers:         job.Headers,
		TestMode:        job.TestMode,
		ExecutionTarget: string(job.ExecutionTarget),
	}

	err := d.publisher.Publish(ctx, job.WorkflowID, event)
	if err != nil {
		otelhelper.SetError(span, err)

		return Ack{}, fmt.Errorf("failed to queue webhook execution: %w", err)
	}

	d.logger.InfoContext(ctx, "Queued webhook execution",
		"request_id", job.RequestID,
		"workflow_id", job.WorkflowID,
		"webhook_id", job.WebhookID,
		"mode", ModeQueued,
		"event_id", event.ID,
	)

	return Ack{RequestID: job.RequestID, EventID: event.ID, QueuedAt: event.Timestamp}, nil
}

// Execute runs job and waits at most the dispatcher timeout. Every outcome, including a
// timeout or an executor error, comes back as a Result.
func (d *Dispatcher) Execute(ctx context.Context, job Job) Result {
	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "execution.execute",
		attribute.String(otelhelper.WorkflowIDKey, job.WorkflowID),
		attribute.String(otelhelper.WebhookIDKey, job.WebhookID),
		attribute.String(otelhelper.RequestIDKey, job.RequestID),
		attribute.Bool(otelhelper.TestModeKey, job.TestMode),
	)
	defer span.End()

	if d.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	logger := d.logger.With("request_id", job.RequestID, "workflow_id", job.WorkflowID, "mode", ModeSynchronous)

	type outcome struct {
		result Result
		err    error
	}

	// Buffered so a late executor never blocks on send.
	done := make(chan outcome, 1)

	go func() {
		result, err := d.executor.Execute(ctx, job)
		done <- outcome{result: result, err: err}
	}()

	var (
		result Result
		err    error
	)

	select {
	case out := <-done:
		result, err = out.result, out.err
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTimeout, d.timeout)
		}

		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Webhook execution failed", "error", err)

		return Result{Success: false, ExecutedAt: d.Now().UTC(), Error: err.Error()}
	}

	if result.ExecutedAt.IsZero() {
		result.ExecutedAt = d.Now().UTC()
	}

	logger.InfoContext(ctx, "Webhook execution finished", "execution_id", result.ExecutionID, "success", result.Success)

	return result
}
