package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wastorga/sim/pkg/events"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/persistence"
)

// ConfigView is the API representation of an outbound webhook. The secret never leaves the service.
type ConfigView struct {
	ID                 string               `json:"id"`
	WorkflowID         string               `json:"workflowId"`
	URL                string               `json:"url"`
	HasSecret          bool                 `json:"hasSecret"`
	IncludeFinalOutput bool                 `json:"includeFinalOutput"`
	IncludeTraceSpans  bool                 `json:"includeTraceSpans"`
	IncludeRateLimits  bool                 `json:"includeRateLimits"`
	IncludeUsageData   bool                 `json:"includeUsageData"`
	LevelFilter        []models.LogLevel    `json:"levelFilter"`
	TriggerFilter      []models.TriggerType `json:"triggerFilter"`
	Active             bool                 `json:"active"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

func NewConfigView(config *models.OutboundWebhookConfig) ConfigView {
	return ConfigView{
		ID:                 config.ID,
		WorkflowID:         config.WorkflowID,
		URL:                config.URL,
		HasSecret:          config.HasSecret(),
		IncludeFinalOutput: config.IncludeFinalOutput,
		IncludeTraceSpans:  config.IncludeTraceSpans,
		IncludeRateLimits:  config.IncludeRateLimits,
		IncludeUsageData:   config.IncludeUsageData,
		LevelFilter:        config.LevelFilter,
		TriggerFilter:      config.TriggerFilter,
		Active:             config.Active,
		CreatedAt:          config.CreatedAt,
		UpdatedAt:          config.UpdatedAt,
	}
}

// TestResult is the outcome of a manual test-send.
type TestResult struct {
	Success    bool   `json:"success"`
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Error      string `json:"error,omitempty"`
}

type Service struct {
	repo      persistence.OutboundWebhookRepository
	deliverer *Deliverer
	validate  *validator.Validate
	logger    *slog.Logger

	Now func() time.Time
}

func NewService(repo persistence.OutboundWebhookRepository, deliverer *Deliverer, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		deliverer: deliverer,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("module", "notify"),
		Now:       time.Now,
	}
}

func (s *Service) List(ctx context.Context, workflowID string) ([]ConfigView, error) {
	configs, err := s.repo.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbound webhooks: %w", err)
	}

	views := make([]ConfigView, 0, len(configs))
	for _, config := range configs {
		views = append(views, NewConfigView(config))
	}

	return views, nil
}

func (s *Service) Get(ctx context.Context, workflowID, id string) (ConfigView, error) {
	config, err := s.repo.GetByID(ctx, workflowID, id)
	if err != nil {
		return ConfigView{}, err
	}

	return NewConfigView(config), nil
}

func (s *Service) Create(ctx context.Context, workflowID string, input Input) (ConfigView, error) {
	now := s.Now().UTC()

	config := &models.OutboundWebhookConfig{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	input.apply(config, true)

	if err := s.save(ctx, config); err != nil {
		return ConfigView{}, err
	}

	s.logger.InfoContext(ctx, "Outbound webhook created", "workflow_id", workflowID, "config_id", config.ID)

	return NewConfigView(config), nil
}

func (s *Service) Update(ctx context.Context, workflowID, id string, input Input) (ConfigView, error) {
	config, err := s.repo.GetByID(ctx, workflowID, id)
	if err != nil {
		return ConfigView{}, err
	}

	input.apply(config, false)
	config.UpdatedAt = s.Now().UTC()

	if err := s.save(ctx, config); err != nil {
		return ConfigView{}, err
	}

	s.logger.InfoContext(ctx, "Outbound webhook updated", "workflow_id", workflowID, "config_id", id)

	return NewConfigView(config), nil
}

func (s *Service) Delete(ctx context.Context, workflowID, id string) error {
	if err := s.repo.Delete(ctx, workflowID, id); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Outbound webhook deleted", "workflow_id", workflowID, "config_id", id)

	return nil
}

// save validates the merged config, checks URL uniqueness within the workflow and persists it.
func (s *Service) save(ctx context.Context, config *models.OutboundWebhookConfig) error {
	verr := validateConfig(s.validate, config)

	if verr.FieldMessage(FieldURL) == "" {
		existing, err := s.repo.ListByWorkflow(ctx, config.WorkflowID)
		if err != nil {
			return fmt.Errorf("failed to check outbound webhook url: %w", err)
		}

		for _, other := range existing {
			if other.ID != config.ID && other.URL == config.URL {
				verr.Add(FieldURL, MsgURLAlreadyExists)

				break
			}
		}
	}

	if !verr.Empty() {
		return verr
	}

	err := s.repo.Save(ctx, config)
	if errors.Is(err, persistence.ErrOutboundURLTaken) {
		verr.Add(FieldURL, MsgURLAlreadyExists)

		return verr
	}

	if err != nil {
		return fmt.Errorf("failed to save outbound webhook: %w", err)
	}

	return nil
}

// Notify delivers event to every outbound webhook of its workflow.
func (s *Service) Notify(ctx context.Context, event Event) ([]DeliveryResult, error) {
	configs, err := s.repo.ListByWorkflow(ctx, event.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load outbound webhooks: %w", err)
	}

	results := s.deliverer.Deliver(ctx, event, configs)

	failed := 0

	for _, result := range results {
		if !result.Success {
			failed++
		}
	}

	s.logger.InfoContext(ctx, "Execution notifications sent",
		"workflow_id", event.WorkflowID,
		"execution_id", event.ExecutionID,
		"targets", len(results),
		"failed", failed,
	)

	return results, nil
}

// HandleExecutionCompleted adapts completion events from the event bus to Notify.
// Delivery failures are recorded per target and never make the event redeliver.
func (s *Service) HandleExecutionCompleted(ctx context.Context, event any) error {
	completed, ok := event.(*events.WorkflowExecutionCompleted)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	timestamp := completed.FinishedAt
	if timestamp.IsZero() {
		timestamp = completed.Timestamp
	}

	_, err := s.Notify(ctx, Event{
		WorkflowID:  completed.WorkflowID,
		ExecutionID: completed.ExecutionID,
		Level:       models.LogLevel(completed.Level),
		Trigger:     models.TriggerType(completed.Trigger),
		Timestamp:   timestamp,
		Cost:        completed.Cost,
		FinalOutput: completed.FinalOutput,
		TraceSpans:  completed.TraceSpans,
		RateLimits:  completed.RateLimits,
		Usage:       completed.Usage,
	})

	return err
}

// TestWebhook sends one synthetic notification to a single config, bypassing its filters.
func (s *Service) TestWebhook(ctx context.Context, workflowID, id string) (TestResult, error) {
	config, err := s.repo.GetByID(ctx, workflowID, id)
	if err != nil {
		return TestResult{}, err
	}

	event := sampleEvent(workflowID, s.Now().UTC())
	result := s.deliverer.Send(ctx, config, BuildPayload(event, config.PayloadInclusionPolicy), 1)

	s.logger.InfoContext(ctx, "Outbound webhook test sent",
		"workflow_id", workflowID, "config_id", id, "success", result.Success, "status", result.StatusCode)

	return TestResult{
		Success:    result.Success,
		Status:     result.StatusCode,
		StatusText: result.StatusText,
		Error:      result.Error,
	}, nil
}

func sampleEvent(workflowID string, now time.Time) Event {
	return Event{
		WorkflowID:  workflowID,
		ExecutionID: "test-" + uuid.New().String(),
		Level:       models.LevelInfo,
		Trigger:     models.TriggerManual,
		Timestamp:   now,
		Cost:        0,
		FinalOutput: map[string]any{"message": "This is a test webhook delivery"},
		TraceSpans: []any{
			map[string]any{
				"id":         "span-1",
				"name":       "Test Block",
				"type":       "block",
				"duration":   100,
				"startTime":  now.Format(time.RFC3339Nano),
				"endTime":    now.Add(100 * time.Millisecond).Format(time.RFC3339Nano),
				"status":     "success",
				"blockId":    "test-block",
				"blockName":  "Test Block",
				"blockType":  "test",
				"tokensUsed": 0,
			},
		},
		RateLimits: map[string]any{
			"sync":  map[string]any{"limit": 150, "remaining": 45, "resetAt": now.Add(time.Minute).Format(time.RFC3339Nano)},
			"async": map[string]any{"limit": 1000, "remaining": 50, "resetAt": now.Add(time.Minute).Format(time.RFC3339Nano)},
		},
		Usage: map[string]any{"currentPeriodCost": 2.45, "limit": 10, "plan": "pro", "isExceeded": false},
	}
}
