// Package execution hands accepted webhook calls to the workflow runtime, either queued
// against the deployed graph or synchronously against the live graph.
package execution

import (
	"context"
	"errors"
	"time"

	"github.com/wastorga/sim/pkg/models"
	"github.com/wastorga/sim/pkg/protocol"
)

// Mode is how a job reaches the runtime.
type Mode int

const (
	// ModeQueued publishes the job and returns an acknowledgment immediately.
	ModeQueued Mode = iota
	// ModeSynchronous runs the job and waits for its result.
	ModeSynchronous
)

func (m Mode) String() string {
	if m == ModeSynchronous {
		return "synchronous"
	}

	return "queued"
}

var (
	ErrNotDeployed = errors.New("workflow is not deployed")
	ErrTimeout     = errors.New("execution timed out")
)

// Job is one workflow run requested by a webhook call.
type Job struct {
	RequestID       string                 `json:"requestId"`
	WebhookID       string                 `json:"webhookId"`
	WorkflowID      string                 `json:"workflowId"`
	UserID          string                 `json:"userId"`
	Provider        string                 `json:"provider"`
	BlockID         string                 `json:"blockId,omitempty"`
	Path            string                 `json:"path"`
	Body            any                    `json:"body"`
	Headers         map[string]string      `json:"headers"`
	TestMode        bool                   `json:"testMode"`
	ExecutionTarget models.ExecutionTarget `json:"executionTarget"`
}

// NewJob builds the job for req. Test jobs run the live graph, everything else the deployed one.
func NewJob(webhook *models.Webhook, workflow *models.Workflow, req *protocol.InboundRequest, testMode bool) Job {
	target := models.TargetDeployed
	if testMode {
		target = models.TargetLive
	}

	return Job{
		RequestID:       req.RequestID,
		WebhookID:       webhook.ID,
		WorkflowID:      workflow.ID,
		UserID:          workflow.UserID,
		Provider:        webhook.Provider,
		BlockID:         webhook.BlockID,
		Path:            webhook.Path,
		Body:            req.Body,
		Headers:         req.FlatHeaders(),
		TestMode:        testMode,
		ExecutionTarget: target,
	}
}

// Ack confirms a queued job.
type Ack struct {
	RequestID string
	EventID   string
	QueuedAt  time.Time
}

// Result is the envelope of a synchronous run. Failures are reported here, not as errors.
type Result struct {
	Success     bool      `json:"success"`
	Output      any       `json:"output,omitempty"`
	ExecutionID string    `json:"executionId"`
	ExecutedAt  time.Time `json:"executedAt"`
	Error       string    `json:"error,omitempty"`
}

// Executor runs a job to completion.
type Executor interface {
	Execute(ctx context.Context, job Job) (Result, error)
}
