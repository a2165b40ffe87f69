package models

import (
	"errors"
	"fmt"
)

var (
	// ErrDatasetNotFound is returned when the prepared dataset file is missing
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrVersionNotFound is returned when a registry lookup misses
	ErrVersionNotFound = errors.New("model version not found")
	// ErrRegistryUnavailable is returned when the tracking backend is not configured or reachable
	ErrRegistryUnavailable = errors.New("model registry unavailable")
	// ErrRunNotFound is returned when a tracker run lookup misses
	ErrRunNotFound = errors.New("run not found")
)

// ConfigurationError reports an invalid enumerated choice or out-of-range parameter
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// PredictionFailure describes an unexpected error during inference. It is returned
// as data to the caller instead of being propagated.
type PredictionFailure struct {
	Message string `json:"error"`
}

func (f *PredictionFailure) Error() string {
	return f.Message
}
