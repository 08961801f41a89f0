package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/urfave/cli/v3"
	"github.com/wastorga/sim/pkg/cmd"
	"github.com/wastorga/sim/pkg/config"
	"github.com/wastorga/sim/pkg/events"
	"github.com/wastorga/sim/pkg/execution"
	"github.com/wastorga/sim/pkg/housekeeping"
	"github.com/wastorga/sim/pkg/log"
	"github.com/wastorga/sim/pkg/notify"
	"github.com/wastorga/sim/pkg/otelhelper"
	"github.com/wastorga/sim/pkg/ratelimit"
	"github.com/wastorga/sim/pkg/web"
)

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the webhook trigger and notification server",
		Flags:   config.Flags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			cfg, err := config.FromCommand(command)
			if err != nil {
				return err
			}

			log.Setup(cfg.LogLevel)

			logger := log.WithModule("sim-webhooks")

			logger.InfoContext(ctx, "Initializing Sim webhooks", "port", cfg.Port, "event_bus", cfg.EventBus)

			if cfg.OtelEnabled {
				_, shutdown, err := otelhelper.NewTracer(ctx, otelhelper.TracerName)
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdown(context.WithoutCancel(ctx)); err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()
			}

			persistence, err := cmd.NewPersistence(ctx, logger, cfg.DatabaseURL)
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			checks := map[string]web.HealthChecker{}
			jobs := []housekeeping.Job{
				housekeeping.PruneDeliveries(persistence.Deliveries(), cfg.Delivery.Retention, logger),
			}

			var counters ratelimit.CounterStore

			if cfg.RedisURL != "" {
				redisStore, err := ratelimit.NewRedisStoreFromURL(ctx, cfg.RedisURL)
				if err != nil {
					return err
				}

				defer func() {
					if err := redisStore.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close redis", "error", err)
					}
				}()

				counters = redisStore
				checks["redis"] = redisStore
			} else {
				logger.WarnContext(ctx, "No redis url configured, rate limits are local to this instance")

				memoryStore := ratelimit.NewMemoryStore()
				counters = memoryStore
				jobs = append(jobs, housekeeping.PruneRateWindows(memoryStore, logger))
			}

			eventBus, err := cmd.NewEventBus(cfg.EventBus, cfg.KafkaBrokers, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			deliverer := notify.NewDeliverer(&http.Client{}, cfg.Delivery.Timeout, cfg.Delivery.MaxAttempts, persistence.Deliveries(), logger)
			notifier := notify.NewService(persistence.OutboundWebhooks(), deliverer, logger)

			if err := eventBus.Handle(events.WorkflowExecutionCompletedEvent, notifier.HandleExecutionCompleted); err != nil {
				return fmt.Errorf("failed to register completion handler: %w", err)
			}

			if err := eventBus.Subscribe(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to events: %w", err)
			}

			scheduler := housekeeping.NewScheduler(logger, jobs...)
			if err := scheduler.Start(ctx); err != nil {
				return err
			}
			defer scheduler.Stop()

			if cfg.AuthSecret == "" && cfg.InternalSecret == "" {
				logger.WarnContext(ctx, "No auth or internal secret configured, management routes reject every request")
			}

			executor := execution.NewHTTPExecutor(cfg.ExecutorURL, cfg.InternalSecret, &http.Client{})

			api, err := NewAPI(cfg, logger, persistence, counters, eventBus, executor, notifier, checks)
			if err != nil {
				return err
			}

			return api.Start(ctx, cfg.Port)
		},
	}
}
