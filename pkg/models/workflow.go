package models

import "time"

// Workflow is the subset of a workflow record the trigger service reads.
type Workflow struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	WorkspaceID string     `json:"workspaceId,omitempty"`
	Name        string     `json:"name"`
	IsDeployed  bool       `json:"isDeployed"`
	DeployedAt  *time.Time `json:"deployedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// ExecutionTarget selects which graph a run executes.
type ExecutionTarget string

const (
	// TargetDeployed runs the published, stable definition.
	TargetDeployed ExecutionTarget = "deployed"
	// TargetLive runs the in-progress editor state.
	TargetLive ExecutionTarget = "live"
)

// TriggerType identifies what started a workflow run.
type TriggerType string

const (
	TriggerAPI      TriggerType = "api"
	TriggerWebhook  TriggerType = "webhook"
	TriggerSchedule TriggerType = "schedule"
	TriggerManual   TriggerType = "manual"
	TriggerChat     TriggerType = "chat"
)

// AllTriggerTypes is also the default trigger filter of a new outbound webhook.
var AllTriggerTypes = []TriggerType{TriggerAPI, TriggerWebhook, TriggerSchedule, TriggerManual, TriggerChat}

func (t TriggerType) Valid() bool {
	for _, known := range AllTriggerTypes {
		if t == known {
			return true
		}
	}

	return false
}

// LogLevel is the outcome level of a finished execution.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelError LogLevel = "error"
)

var AllLogLevels = []LogLevel{LevelInfo, LevelError}

func (l LogLevel) Valid() bool {
	return l == LevelInfo || l == LevelError
}
