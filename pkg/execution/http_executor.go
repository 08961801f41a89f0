package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// InternalSecretHeader authenticates this service to the workflow runtime.
const InternalSecretHeader = "X-Internal-Secret"

const maxResultBytes = 10 << 20

var ErrNoExecutor = errors.New("no workflow executor configured")

// HTTPExecutor runs jobs through the workflow runtime's internal execute endpoint.
type HTTPExecutor struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewHTTPExecutor(baseURL, secret string, client *http.Client) *HTTPExecutor {
	if client == nil {
		client = &http.Client{}
	}

	return &HTTPExecutor{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		secret:  secret,
		client:  client,
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, job Job) (Result, error) {
	if e.baseURL == "" {
		return Result{}, ErrNoExecutor
	}

	body, err := json.Marshal(job)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode job: %w", err)
	}

	url := fmt.Sprintf("%s/api/workflows/%s/execute", e.baseURL, job.WorkflowID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", job.RequestID)

	if e.secret != "" {
		req.Header.Set(InternalSecretHeader, e.secret)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("executor call failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return Result{}, fmt.Errorf("failed to read executor response: %w", err)
	}

	var result Result
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &result); err != nil {
			return Result{}, fmt.Errorf("invalid executor response (HTTP %d): %w", resp.StatusCode, err)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		if result.Error == "" {
			result.Error = fmt.Sprintf("executor returned HTTP %d", resp.StatusCode)
		}

		result.Success = false
	}

	if result.ExecutedAt.IsZero() {
		result.ExecutedAt = time.Now().UTC()
	}

	return result, nil
}
