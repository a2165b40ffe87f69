package models

import (
	"fmt"
	"time"
)

// RunStatus represents the lifecycle state of a tracked run
type RunStatus string

const (
	RunStatusRunning  RunStatus = "RUNNING"
	RunStatusFinished RunStatus = "FINISHED"
	RunStatusFailed   RunStatus = "FAILED"
)

// Stage is the registry label attached to a model version
type Stage string

const (
	StageNone       Stage = "None"
	StageStaging    Stage = "Staging"
	StageProduction Stage = "Production"
	StageArchived   Stage = "Archived"
)

// ParseStage resolves a stage name, case-sensitive as stored
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageNone, StageStaging, StageProduction, StageArchived:
		return Stage(s), nil
	}
	return "", &ConfigurationError{Field: "stage", Value: s, Reason: "must be one of None, Staging, Production, Archived"}
}

// Experiment groups runs under a name
type Experiment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Run is one tracked execution: parameters, metrics and a logged artifact
type Run struct {
	ID           string             `json:"run_id"`
	ExperimentID string             `json:"experiment_id"`
	Name         string             `json:"run_name"`
	Status       RunStatus          `json:"status"`
	StartTime    time.Time          `json:"start_time"`
	EndTime      *time.Time         `json:"end_time,omitempty"`
	Params       map[string]string  `json:"params,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	ArtifactURI  string             `json:"artifact_uri,omitempty"`
}

// ModelVersion is a registry pointer from a version number to a logged artifact
type ModelVersion struct {
	Name      string    `json:"name"`
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"` // path of the logged artifact file
	Stage     Stage     `json:"current_stage"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// URI returns the models:/ reference of the version
func (v *ModelVersion) URI() string {
	return fmt.Sprintf("models:/%s/%d", v.Name, v.Version)
}
