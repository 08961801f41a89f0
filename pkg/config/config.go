// Package config holds the typed runtime configuration of the webhook service.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/wastorga/sim/pkg/models"
	"gopkg.in/yaml.v3"
)

// TierLimits are the per-window ceilings of one subscription plan.
type TierLimits struct {
	Sync  int `yaml:"sync"`
	Async int `yaml:"async"`
	// Test is the ceiling of the separate test bucket. Zero falls back to Async.
	Test int `yaml:"test"`
}

type RateLimits struct {
	Window      time.Duration
	ManualLimit int
	Tiers       map[models.Plan]TierLimits
}

// For returns the limits of plan, falling back to the free tier.
func (r RateLimits) For(plan models.Plan) TierLimits {
	limits, ok := r.Tiers[plan]
	if !ok {
		limits = r.Tiers[models.PlanFree]
	}

	if limits.Test == 0 {
		limits.Test = limits.Async
	}

	return limits
}

type UsageLimits struct {
	BillingEnabled bool
	CostLimits     map[models.Plan]float64
}

// CostLimit returns the cost ceiling of plan, falling back to the free tier.
func (u UsageLimits) CostLimit(plan models.Plan) float64 {
	limit, ok := u.CostLimits[plan]
	if !ok {
		return u.CostLimits[models.PlanFree]
	}

	return limit
}

type Delivery struct {
	Timeout     time.Duration
	MaxAttempts int
	Retention   time.Duration
}

type Config struct {
	Port        int
	BaseURL     string
	DatabaseURL string
	RedisURL    string
	EventBus    string
	// KafkaBrokers is a comma separated list, used when EventBus is kafka.
	KafkaBrokers string
	LogLevel     string
	OtelEnabled  bool

	MaxBodyBytes     int64
	ExecutorURL      string
	ExecutionTimeout time.Duration
	InternalSecret   string

	TestTokenSecret string
	TestTokenTTL    time.Duration

	// AuthSecret verifies session bearer tokens on the management routes.
	AuthSecret string

	RateLimits RateLimits
	Usage      UsageLimits
	Delivery   Delivery
}

// Default returns the configuration used when no flag or variable overrides a value.
func Default() Config {
	return Config{
		Port:             3000,
		BaseURL:          "http://localhost:3000",
		EventBus:         "gochannel",
		LogLevel:         "info",
		MaxBodyBytes:     10 << 20,
		ExecutionTimeout: 300 * time.Second,
		TestTokenTTL:     24 * time.Hour,
		RateLimits: RateLimits{
			Window:      60 * time.Second,
			ManualLimit: 999999,
			Tiers: map[models.Plan]TierLimits{
				models.PlanFree:       {Sync: 10, Async: 50},
				models.PlanPro:        {Sync: 25, Async: 200},
				models.PlanTeam:       {Sync: 75, Async: 500},
				models.PlanEnterprise: {Sync: 150, Async: 1000},
			},
		},
		Usage: UsageLimits{
			CostLimits: map[models.Plan]float64{
				models.PlanFree:       10,
				models.PlanPro:        100,
				models.PlanTeam:       500,
				models.PlanEnterprise: 1000,
			},
		},
		Delivery: Delivery{
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
			Retention:   30 * 24 * time.Hour,
		},
	}
}

// Validate reports configuration that would make the limiter or notifier misbehave.
func (c Config) Validate() error {
	if c.RateLimits.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive, got %s", c.RateLimits.Window)
	}

	for plan, limits := range c.RateLimits.Tiers {
		if limits.Sync < 0 || limits.Async < 0 || limits.Test < 0 {
			return fmt.Errorf("rate limits of plan %s must not be negative", plan)
		}
	}

	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery attempts must be at least 1, got %d", c.Delivery.MaxAttempts)
	}

	if c.TestTokenSecret == "" {
		return fmt.Errorf("test token secret is required")
	}

	return nil
}

// limitsFile is the YAML layout accepted by LoadLimitsFile.
type limitsFile struct {
	RateLimits map[models.Plan]TierLimits `yaml:"rate_limits"`
	CostLimits map[models.Plan]float64    `yaml:"cost_limits"`
}

// LoadLimitsFile overlays the plan limits found in a YAML file onto cfg.
// Plans absent from the file keep their current values.
func LoadLimitsFile(cfg *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read limits file %s: %w", filepath, err)
	}

	var file limitsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse YAML limits: %w", err)
	}

	if cfg.RateLimits.Tiers == nil {
		cfg.RateLimits.Tiers = map[models.Plan]TierLimits{}
	}

	for plan, limits := range file.RateLimits {
		cfg.RateLimits.Tiers[plan] = limits
	}

	if cfg.Usage.CostLimits == nil {
		cfg.Usage.CostLimits = map[models.Plan]float64{}
	}

	for plan, limit := range file.CostLimits {
		cfg.Usage.CostLimits[plan] = limit
	}

	return nil
}
