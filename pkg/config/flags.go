package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wastorga/sim/pkg/models"
)

// Plans lists the subscription plans that carry their own limits, cheapest first.
var Plans = []models.Plan{models.PlanFree, models.PlanPro, models.PlanTeam, models.PlanEnterprise}

// Flags returns the command line flags of the run command. Every flag can also be set
// through the environment variable named in its Sources.
func Flags() []cli.Flag {
	d := Default()

	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the HTTP server on",
			Value:   d.Port,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL used to build test webhook URLs",
			Value:   d.BaseURL,
			Sources: cli.EnvVars("BASE_URL", "NEXT_PUBLIC_APP_URL"),
		},
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL (postgres://...) or a directory for the file store",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "Redis URL for shared rate limit counters; in-memory counters when empty",
			Sources: cli.EnvVars("REDIS_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   d.EventBus,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   d.LogLevel,
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.Int64Flag{
			Name:    "max-body-bytes",
			Usage:   "Largest accepted webhook body",
			Value:   d.MaxBodyBytes,
			Sources: cli.EnvVars("WEBHOOK_MAX_BODY_BYTES"),
		},
		&cli.StringFlag{
			Name:    "executor-url",
			Usage:   "Base URL of the workflow executor used for test runs",
			Sources: cli.EnvVars("EXECUTOR_URL"),
		},
		&cli.DurationFlag{
			Name:    "execution-timeout",
			Usage:   "Maximum duration of a synchronous test run",
			Value:   d.ExecutionTimeout,
			Sources: cli.EnvVars("EXECUTION_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "internal-secret",
			Usage:   "Shared secret sent to the executor",
			Sources: cli.EnvVars("INTERNAL_API_SECRET"),
		},
		&cli.StringFlag{
			Name:    "test-token-secret",
			Usage:   "HMAC key of test webhook tokens; falls back to the internal secret",
			Sources: cli.EnvVars("TEST_TOKEN_SECRET"),
		},
		&cli.StringFlag{
			Name:    "auth-secret",
			Usage:   "HMAC key of session tokens accepted on the management routes",
			Sources: cli.EnvVars("AUTH_SECRET", "BETTER_AUTH_SECRET"),
		},
		&cli.DurationFlag{
			Name:    "test-token-ttl",
			Usage:   "Lifetime of test webhook URLs",
			Value:   d.TestTokenTTL,
			Sources: cli.EnvVars("TEST_TOKEN_TTL"),
		},
		&cli.IntFlag{
			Name:    "rate-limit-window-ms",
			Usage:   "Rate limit window in milliseconds",
			Value:   int(d.RateLimits.Window / time.Millisecond),
			Sources: cli.EnvVars("RATE_LIMIT_WINDOW_MS"),
		},
		&cli.IntFlag{
			Name:    "manual-execution-limit",
			Usage:   "Ceiling applied to manual runs",
			Value:   d.RateLimits.ManualLimit,
			Sources: cli.EnvVars("MANUAL_EXECUTION_LIMIT"),
		},
		&cli.StringFlag{
			Name:    "limits-file",
			Usage:   "YAML file overriding per-plan rate and cost limits",
			Sources: cli.EnvVars("LIMITS_FILE"),
		},
		&cli.BoolFlag{
			Name:    "billing-enabled",
			Usage:   "Enforce per-plan cost limits",
			Sources: cli.EnvVars("BILLING_ENABLED"),
		},
		&cli.DurationFlag{
			Name:    "delivery-timeout",
			Usage:   "Timeout of one outbound webhook attempt",
			Value:   d.Delivery.Timeout,
			Sources: cli.EnvVars("WEBHOOK_DELIVERY_TIMEOUT"),
		},
		&cli.IntFlag{
			Name:    "delivery-attempts",
			Usage:   "Attempts per outbound webhook delivery",
			Value:   d.Delivery.MaxAttempts,
			Sources: cli.EnvVars("WEBHOOK_DELIVERY_ATTEMPTS"),
		},
		&cli.DurationFlag{
			Name:    "delivery-retention",
			Usage:   "How long delivery records are kept",
			Value:   d.Delivery.Retention,
			Sources: cli.EnvVars("WEBHOOK_DELIVERY_RETENTION"),
		},
	}

	for _, plan := range Plans {
		upper := strings.ToUpper(string(plan))
		tier := d.RateLimits.Tiers[plan]

		flags = append(flags,
			&cli.IntFlag{
				Name:    "rate-limit-" + string(plan) + "-sync",
				Usage:   fmt.Sprintf("Synchronous executions per window on the %s plan", plan),
				Value:   tier.Sync,
				Sources: cli.EnvVars("RATE_LIMIT_" + upper + "_SYNC"),
			},
			&cli.IntFlag{
				Name:    "rate-limit-" + string(plan) + "-async",
				Usage:   fmt.Sprintf("Asynchronous executions per window on the %s plan", plan),
				Value:   tier.Async,
				Sources: cli.EnvVars("RATE_LIMIT_" + upper + "_ASYNC"),
			},
			&cli.FloatFlag{
				Name:    string(plan) + "-tier-cost-limit",
				Usage:   fmt.Sprintf("Cost limit in USD of the %s plan", plan),
				Value:   d.Usage.CostLimits[plan],
				Sources: cli.EnvVars(upper + "_TIER_COST_LIMIT"),
			},
		)
	}

	return flags
}

// FromCommand collects the flags of cmd into a validated Config.
func FromCommand(cmd *cli.Command) (Config, error) {
	cfg := Default()

	cfg.Port = cmd.Int("port")
	cfg.BaseURL = strings.TrimRight(cmd.String("base-url"), "/")
	cfg.DatabaseURL = cmd.String("database-url")
	cfg.RedisURL = cmd.String("redis-url")
	cfg.EventBus = cmd.String("event-bus")
	cfg.KafkaBrokers = cmd.String("kafka-brokers")
	cfg.LogLevel = cmd.String("log-level")
	cfg.OtelEnabled = cmd.Bool("otel-enabled")

	cfg.MaxBodyBytes = cmd.Int64("max-body-bytes")
	cfg.ExecutorURL = cmd.String("executor-url")
	cfg.ExecutionTimeout = cmd.Duration("execution-timeout")
	cfg.InternalSecret = cmd.String("internal-secret")

	cfg.TestTokenSecret = cmd.String("test-token-secret")
	if cfg.TestTokenSecret == "" {
		cfg.TestTokenSecret = cfg.InternalSecret
	}

	cfg.TestTokenTTL = cmd.Duration("test-token-ttl")
	cfg.AuthSecret = cmd.String("auth-secret")

	cfg.RateLimits.Window = time.Duration(cmd.Int("rate-limit-window-ms")) * time.Millisecond
	cfg.RateLimits.ManualLimit = cmd.Int("manual-execution-limit")
	cfg.Usage.BillingEnabled = cmd.Bool("billing-enabled")

	for _, plan := range Plans {
		tier := cfg.RateLimits.Tiers[plan]
		tier.Sync = cmd.Int("rate-limit-" + string(plan) + "-sync")
		tier.Async = cmd.Int("rate-limit-" + string(plan) + "-async")
		cfg.RateLimits.Tiers[plan] = tier

		cfg.Usage.CostLimits[plan] = cmd.Float(string(plan) + "-tier-cost-limit")
	}

	cfg.Delivery.Timeout = cmd.Duration("delivery-timeout")
	cfg.Delivery.MaxAttempts = cmd.Int("delivery-attempts")
	cfg.Delivery.Retention = cmd.Duration("delivery-retention")

	if path := cmd.String("limits-file"); path != "" {
		if err := LoadLimitsFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
