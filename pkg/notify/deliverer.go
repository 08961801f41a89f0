package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/otelhelper"
	"github.com/wastorga/sim/pkg/persistence"
	"go.opentelemetry.io/otel/attribute"
)

const (
	SignatureHeader = "X-Webhook-Signature"
	TimestampHeader = "X-Webhook-Timestamp"
	WebhookIDHeader = "X-Webhook-ID"
	DeliveryHeader  = "X-Webhook-Delivery"
	userAgent       = "Sim-Webhook/1.0"

	maxResponseBytes = 64 * 1024
)

// Event is a finished execution as seen by the notifier.
type Event struct {
	WorkflowID  string
	ExecutionID string
	Level       models.LogLevel
	Trigger     models.TriggerType
	Timestamp   time.Time
	Cost        float64
	FinalOutput any
	TraceSpans  []any
	RateLimits  any
	Usage       any
}

// Payload is the JSON document POSTed to outbound endpoints.
type Payload struct {
	WorkflowID  string  `json:"workflowId"`
	ExecutionID string  `json:"executionId"`
	Level       string  `json:"level"`
	Trigger     string  `json:"trigger"`
	Timestamp   string  `json:"timestamp"`
	Cost        float64 `json:"cost"`
	FinalOutput any     `json:"finalOutput,omitempty"`
	TraceSpans  []any   `json:"traceSpans,omitempty"`
	RateLimits  any     `json:"rateLimits,omitempty"`
	Usage       any     `json:"usage,omitempty"`
}

// BuildPayload attaches the optional sections the policy asks for.
func BuildPayload(event Event, policy models.PayloadInclusionPolicy) Payload {
	payload := Payload{
		WorkflowID:  event.WorkflowID,
		ExecutionID: event.ExecutionID,
		Level:       string(event.Level),
		Trigger:     string(event.Trigger),
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
		Cost:        event.Cost,
	}

	if policy.IncludeFinalOutput {
		payload.FinalOutput = event.FinalOutput
	}

	if policy.IncludeTraceSpans {
		payload.TraceSpans = event.TraceSpans
	}

	if policy.IncludeRateLimits {
		payload.RateLimits = event.RateLimits
	}

	if policy.IncludeUsageData {
		payload.Usage = event.Usage
	}

	return payload
}

// Sign returns the hex HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

// DeliveryResult is the outcome of delivering one event to one endpoint.
type DeliveryResult struct {
	ConfigID   string
	URL        string
	StatusCode int
	StatusText string
	Attempts   int
	Success    bool
	Error      string
}

type Deliverer struct {
	client      *http.Client
	timeout     time.Duration
	maxAttempts int
	records     persistence.DeliveryRepository
	logger      *slog.Logger

	// RetryInterval is the first backoff wait; it doubles per attempt.
	RetryInterval time.Duration
	Now           func() time.Time
}

func NewDeliverer(
	client *http.Client,
	timeout time.Duration,
	maxAttempts int,
	records persistence.DeliveryRepository,
	logger *slog.Logger,
) *Deliverer {
	if client == nil {
		client = &http.Client{}
	}

	return &Deliverer{
		client:        client,
		timeout:       timeout,
		maxAttempts:   max(maxAttempts, 1),
		records:       records,
		logger:        logger.With("module", "notify"),
		RetryInterval: 500 * time.Millisecond,
		Now:           time.Now,
	}
}

// Deliver sends event to every config that accepts its level and trigger. Each endpoint
// is delivered independently and concurrently; results keep the order of the matching configs.
func (d *Deliverer) Deliver(ctx context.Context, event Event, configs []*models.OutboundWebhookConfig) []DeliveryResult {
	targets := make([]*models.OutboundWebhookConfig, 0, len(configs))

	for _, config := range configs {
		if config.Accepts(event.Level, event.Trigger) {
			targets = append(targets, config)
		}
	}

	results := make([]DeliveryResult, len(targets))

	var wg sync.WaitGroup

	for i, config := range targets {
		wg.Add(1)

		go func() {
			defer wg.Done()

			results[i] = d.deliverOne(ctx, event, config)
		}()
	}

	wg.Wait()

	return results
}

func (d *Deliverer) deliverOne(ctx context.Context, event Event, config *models.OutboundWebhookConfig) DeliveryResult {
	result := d.Send(ctx, config, BuildPayload(event, config.PayloadInclusionPolicy), d.maxAttempts)

	if d.records != nil {
		record := &models.DeliveryRecord{
			ID:          uuid.New().String(),
			ConfigID:    config.ID,
			WorkflowID:  config.WorkflowID,
			ExecutionID: event.ExecutionID,
			Attempts:    result.Attempts,
			StatusCode:  result.StatusCode,
			Success:     result.Success,
			Error:       result.Error,
			DeliveredAt: d.Now().UTC(),
		}

		if err := d.records.Record(ctx, record); err != nil {
			d.logger.ErrorContext(ctx, "Failed to record webhook delivery", "config_id", config.ID, "error", err)
		}
	}

	return result
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Send marshals payload once, signs those exact bytes and POSTs them, retrying transport
// errors, 429 and 5xx up to attempts times with exponential backoff.
func (d *Deliverer) Send(ctx context.Context, config *models.OutboundWebhookConfig, payload Payload, attempts int) DeliveryResult {
	ctx, span := otelhelper.StartSpan(ctx, otelhelper.Tracer(), "notify.deliver",
		attribute.String(otelhelper.OutboundIDKey, config.ID),
		attribute.String(otelhelper.WorkflowIDKey, config.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, payload.ExecutionID),
		attribute.String(otelhelper.TargetURLKey, config.URL),
	)
	defer span.End()

	result := DeliveryResult{ConfigID: config.ID, URL: config.URL}

	body, err := json.Marshal(payload)
	if err != nil {
		result.Error = fmt.Sprintf("failed to encode payload: %v", err)

		return result
	}

	deliveryID := uuid.New().String()

	operation := func() error {
		result.Attempts++

		code, err := d.post(ctx, config, deliveryID, body)
		result.StatusCode = code
		result.StatusText = http.StatusText(code)

		switch {
		case err != nil:
			return err
		case code >= 200 && code < 300:
			return nil
		case retryable(code):
			return &statusError{code: code}
		default:
			return backoff.Permanent(&statusError{code: code})
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.RetryInterval
	policy.MaxElapsedTime = 0

	retries := uint64(max(attempts, 1) - 1)

	err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx))
	otelhelper.SetStatusCode(span, result.StatusCode)

	if err != nil {
		result.Error = err.Error()

		var se *statusError
		if !errors.As(err, &se) {
			result.StatusCode = 0
			result.StatusText = ""
		}

		otelhelper.SetError(span, err)
		d.logger.WarnContext(ctx, "Outbound webhook delivery failed",
			"config_id", config.ID,
			"url", config.URL,
			"execution_id", payload.ExecutionID,
			"attempts", result.Attempts,
			"error", err,
		)

		return result
	}

	result.Success = true

	d.logger.DebugContext(ctx, "Outbound webhook delivered",
		"config_id", config.ID, "execution_id", payload.ExecutionID, "status", result.StatusCode, "attempts", result.Attempts)

	return result
}

func (d *Deliverer) post(ctx context.Context, config *models.OutboundWebhookConfig, deliveryID string, body []byte) (int, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.URL, bytes.NewReader(body))
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(WebhookIDHeader, config.ID)
	req.Header.Set(DeliveryHeader, deliveryID)
	req.Header.Set(TimestampHeader, strconv.FormatInt(d.Now().UnixMilli(), 10))

	if config.HasSecret() {
		req.Header.Set(SignatureHeader, Sign(config.Secret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http call: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	return resp.StatusCode, nil
}
