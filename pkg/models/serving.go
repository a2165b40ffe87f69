package models

import "time"

// ModelFileInfo describes the artifact the serving process loaded
type ModelFileInfo struct {
	Path         string     `json:"path"`
	Exists       bool       `json:"exists"`
	SizeBytes    int64      `json:"size_bytes"`
	LastModified *time.Time `json:"last_modified,omitempty"`
	Type         string     `json:"type"`
	ModelKind    ModelKind  `json:"model_kind,omitempty"`
}

// APIStats holds process-scoped serving counters
type APIStats struct {
	StartedAt        time.Time `json:"started_at"`
	UptimeSeconds    float64   `json:"uptime_seconds"`
	TotalPredictions int64     `json:"total_predictions"`
}

// MetricsReport is the payload of the metrics operation
type MetricsReport struct {
	Model ModelFileInfo `json:"model"`
	API   APIStats      `json:"api"`
}
