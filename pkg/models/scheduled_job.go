package models

import "time"

// Job execution statuses
const (
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// ScheduledJob is a recurring training run
type ScheduledJob struct {
	ID        string         `json:"id" yaml:"-"`
	Name      string         `json:"name" yaml:"name"`
	Schedule  string         `json:"schedule" yaml:"schedule"` // Cron expression
	Params    TrainingParams `json:"params" yaml:"params"`
	Enabled   bool           `json:"enabled" yaml:"enabled"`
	CreatedAt time.Time      `json:"created_at" yaml:"-"`
	LastRun   *time.Time     `json:"last_run,omitempty" yaml:"-"`
	NextRun   *time.Time     `json:"next_run,omitempty" yaml:"-"`
}

// ScheduledJobCreateRequest represents a request to create a new scheduled job
type ScheduledJobCreateRequest struct {
	Name     string         `json:"name" yaml:"name"`
	Schedule string         `json:"schedule" yaml:"schedule"`
	Params   TrainingParams `json:"params" yaml:"params"`
	Enabled  bool           `json:"enabled" yaml:"enabled"`
}

// JobExecution represents a single execution of a scheduled job
type JobExecution struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Status      string     `json:"status"`
	RunID       string     `json:"run_id,omitempty"`
	Accuracy    float64    `json:"accuracy,omitempty"`
	Error       string     `json:"error,omitempty"`
}
