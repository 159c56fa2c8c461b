package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of a pipeline run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// PipelineRun is one invocation of the workshop pipeline for a topic
type PipelineRun struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	RequestID      string     `json:"request_id,omitempty" db:"request_id"`
	Topic          string     `json:"topic" db:"topic"`
	Status         RunStatus  `json:"status" db:"status"`
	TotalAttempts  int        `json:"total_attempts" db:"total_attempts"`
	WinningAttempt *int       `json:"winning_attempt,omitempty" db:"winning_attempt"`
	Output         *string    `json:"output,omitempty" db:"output"`
	ErrorMessage   *string    `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	Attempts []*RunAttempt `json:"attempts,omitempty" db:"-"`
}

// TableName returns the table name for the PipelineRun model
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}

// NewPipelineRun creates a running PipelineRun
func NewPipelineRun(id uuid.UUID, topic string, totalAttempts int) *PipelineRun {
	return &PipelineRun{
		ID:            id,
		Topic:         topic,
		Status:        RunStatusRunning,
		TotalAttempts: totalAttempts,
		CreatedAt:     time.Now().UTC(),
	}
}

// MarkSucceeded records the winning attempt and its output
func (r *PipelineRun) MarkSucceeded(attempt int, output string) *PipelineRun {
	now := time.Now().UTC()
	r.Status = RunStatusSucceeded
	r.WinningAttempt = &attempt
	r.Output = &output
	r.CompletedAt = &now
	return r
}

// MarkFailed records the final error of the run
func (r *PipelineRun) MarkFailed(errorMessage string) *PipelineRun {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.ErrorMessage = &errorMessage
	r.CompletedAt = &now
	return r
}

// IsFinished reports whether the run reached a terminal status
func (r *PipelineRun) IsFinished() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}

// AttemptStatus represents the outcome of one attempt
type AttemptStatus string

const (
	AttemptStatusSucceeded AttemptStatus = "succeeded"
	AttemptStatusFailed    AttemptStatus = "failed"
)

// RunAttempt is one backend tried during a pipeline run
type RunAttempt struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	RunID        uuid.UUID       `json:"run_id" db:"run_id"`
	AttemptIndex int             `json:"attempt" db:"attempt_index"`
	Provider     string          `json:"provider" db:"provider"`
	Model        string          `json:"model" db:"model"`
	BaseURL      string          `json:"base_url" db:"base_url"`
	Overrides    json.RawMessage `json:"overrides" db:"overrides"` // sanitized, JSONB
	Status       AttemptStatus   `json:"status" db:"status"`
	LatencyMs    int             `json:"latency_ms" db:"latency_ms"`
	ErrorMessage *string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the RunAttempt model
func (RunAttempt) TableName() string {
	return "run_attempts"
}

// NewRunAttempt creates a RunAttempt for the given run
func NewRunAttempt(runID uuid.UUID, index int, provider, model, baseURL string) *RunAttempt {
	return &RunAttempt{
		ID:           uuid.New(),
		RunID:        runID,
		AttemptIndex: index,
		Provider:     provider,
		Model:        model,
		BaseURL:      baseURL,
		Status:       AttemptStatusSucceeded,
		CreatedAt:    time.Now().UTC(),
	}
}

// WithOverrides sets the sanitized overrides
func (a *RunAttempt) WithOverrides(overrides interface{}) *RunAttempt {
	if data, err := json.Marshal(overrides); err == nil {
		a.Overrides = data
	}
	return a
}

// WithLatency sets the attempt latency
func (a *RunAttempt) WithLatency(d time.Duration) *RunAttempt {
	a.LatencyMs = int(d.Milliseconds())
	return a
}

// WithError marks the attempt failed
func (a *RunAttempt) WithError(errorMessage string) *RunAttempt {
	a.Status = AttemptStatusFailed
	a.ErrorMessage = &errorMessage
	return a
}
