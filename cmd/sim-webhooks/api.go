package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/wastorga/sim/pkg/auth"
	"github.com/wastorga/sim/pkg/config"
	"github.com/wastorga/sim/pkg/eventbus"
	"github.com/wastorga/sim/pkg/execution"
	"github.com/wastorga/sim/pkg/notify"
	"github.com/wastorga/sim/pkg/persistence"
	"github.com/wastorga/sim/pkg/ratelimit"
	"github.com/wastorga/sim/pkg/testtoken"
	"github.com/wastorga/sim/pkg/usage"
	"github.com/wastorga/sim/pkg/web"
	"github.com/wastorga/sim/pkg/webhooks"
)

const (
	shutdownTimeout = 10 * time.Second
	readTimeout     = 30 * time.Second
)

type API struct {
	cfg         config.Config
	logger      *slog.Logger
	persistence persistence.Persistence
	counters    ratelimit.CounterStore
	publisher   eventbus.EventPublisher
	executor    execution.Executor
	notifier    *notify.Service
	tokens      *testtoken.Issuer
	checks      map[string]web.HealthChecker
	validate    *validator.Validate
}

func NewAPI(
	cfg config.Config,
	logger *slog.Logger,
	persistence persistence.Persistence,
	counters ratelimit.CounterStore,
	publisher eventbus.EventPublisher,
	executor execution.Executor,
	notifier *notify.Service,
	checks map[string]web.HealthChecker,
) (*API, error) {
	tokens, err := testtoken.NewIssuer(cfg.TestTokenSecret, cfg.TestTokenTTL)
	if err != nil {
		return nil, err
	}

	if checks == nil {
		checks = map[string]web.HealthChecker{}
	}

	checks["persistence"] = persistence

	return &API{
		cfg:         cfg,
		logger:      logger,
		persistence: persistence,
		counters:    counters,
		publisher:   publisher,
		executor:    executor,
		notifier:    notifier,
		tokens:      tokens,
		checks:      checks,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

func (a *API) App() *fiber.App {
	registry := webhooks.NewRegistry(a.persistence.Webhooks())

	pipeline := webhooks.NewPipeline(webhooks.Options{
		Registry:     registry,
		Limiter:      ratelimit.NewLimiter(a.counters, a.cfg.RateLimits, a.logger),
		Usage:        usage.NewLimiter(a.persistence.Subscriptions(), a.persistence.Usage(), a.cfg.Usage, a.logger),
		Dispatcher:   execution.NewDispatcher(a.publisher, a.executor, a.cfg.ExecutionTimeout, a.logger),
		Tokens:       a.tokens,
		MaxBodyBytes: a.cfg.MaxBodyBytes,
		Logger:       a.logger,
	})

	handlers := web.NewAPIHandlers(web.Options{
		Pipeline:  pipeline,
		Registry:  registry,
		Notifier:  a.notifier,
		Tokens:    a.tokens,
		Auth:      auth.NewAuthenticator(a.cfg.AuthSecret, a.cfg.InternalSecret),
		Workflows: a.persistence.Workflows(),
		Validator: a.validate,
		BaseURL:   a.cfg.BaseURL,
		Checks:    a.checks,
		Logger:    a.logger,
	})

	app := fiber.New(fiber.Config{
		BodyLimit:    int(a.cfg.MaxBodyBytes),
		ReadTimeout:  readTimeout,
		WriteTimeout: a.cfg.ExecutionTimeout + shutdownTimeout,
		ErrorHandler: errorHandler,
	})
	app.Use(requestid.New())
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			return a.persistence.HealthCheck(c.Context()) == nil
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Sim Webhooks")
	})

	handlers.Register(app)

	return app
}

// errorHandler renders oversized bodies rejected by the server the same way the trigger pipeline does.
func errorHandler(c fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code == http.StatusRequestEntityTooLarge {
		return c.Status(fe.Code).JSON(web.ErrorResponse{Error: "Request body too large"})
	}

	return fiber.DefaultErrorHandler(c, err)
}

// Start serves until ctx is cancelled, then shuts the server down.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			a.logger.Error("Failed to shut down HTTP server", "error", err)
		}
	}()

	return app.Listen(":" + strconv.Itoa(port))
}
