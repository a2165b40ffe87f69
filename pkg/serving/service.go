// Package serving owns the process-scoped inference state: the loaded classifier,
// the start time and the prediction counter.
package serving

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/mlmodel/training"
	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// Result is the outcome of one prediction: exactly one of Response and Failure is set
type Result struct {
	Response *models.PredictResponse
	Failure  *models.PredictionFailure
}

// OK reports whether the prediction succeeded
func (r Result) OK() bool {
	return r.Failure == nil
}

// Service serves predictions from one classifier loaded at startup
type Service struct {
	classifier  models.Classifier
	modelPath   string
	modelKind   models.ModelKind
	startedAt   time.Time
	predictions atomic.Int64
	logger      *zap.Logger
}

// LoadService loads the artifact at modelPath. A missing or unreadable artifact is fatal.
func LoadService(modelPath string, logger *zap.Logger) (*Service, error) {
	if _, err := os.Stat(modelPath); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("model artifact not found at %s (run train first)", modelPath)
	}

	pipeline, err := training.LoadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	svc := NewService(pipeline, modelPath, logger)
	svc.modelKind = pipeline.Metadata.ModelKind
	svc.logger.Info("Model loaded",
		zap.String("path", modelPath),
		zap.String("model_kind", string(svc.modelKind)))
	return svc, nil
}

// NewService wraps an already loaded classifier
func NewService(classifier models.Classifier, modelPath string, logger *zap.Logger) *Service {
	return &Service{
		classifier: classifier,
		modelPath:  modelPath,
		startedAt:  time.Now().UTC(),
		logger:     logger.Named("serving"),
	}
}

// Health reports liveness. It never depends on the model.
func (s *Service) Health() map[string]string {
	return map[string]string{"status": "ok"}
}

// Metrics reports the artifact on disk and the process counters. It has no side effects.
func (s *Service) Metrics() models.MetricsReport {
	info := models.ModelFileInfo{
		Path:      s.modelPath,
		Type:      fmt.Sprintf("%T", s.classifier),
		ModelKind: s.modelKind,
	}
	if _, ok := s.classifier.(*training.Pipeline); ok {
		info.Type = training.ArtifactType
	}

	if stat, err := os.Stat(s.modelPath); err == nil {
		modified := stat.ModTime().UTC()
		info.Exists = true
		info.SizeBytes = stat.Size()
		info.LastModified = &modified
	}

	return models.MetricsReport{
		Model: info,
		API: models.APIStats{
			StartedAt:        s.startedAt,
			UptimeSeconds:    time.Since(s.startedAt).Seconds(),
			TotalPredictions: s.predictions.Load(),
		},
	}
}

// Predict classifies one record. Inference errors are returned as a failure payload;
// the counter only counts successes.
func (s *Service) Predict(record models.Record) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Prediction panicked", zap.Any("panic", r))
			result = Result{Failure: &models.PredictionFailure{Message: fmt.Sprintf("prediction failed: %v", r)}}
		}
	}()

	label, err := s.classifier.Predict(record.Features())
	if err != nil {
		s.logger.Warn("Prediction failed", zap.Error(err))
		return Result{Failure: &models.PredictionFailure{Message: err.Error()}}
	}

	name, ok := models.ClassName(label)
	if !ok {
		s.logger.Warn("Classifier returned unknown class", zap.Int("prediction", int(label)))
		return Result{Failure: &models.PredictionFailure{Message: fmt.Sprintf("unknown class index %d", label)}}
	}

	s.predictions.Add(1)
	return Result{Response: &models.PredictResponse{Prediction: label, ClassName: name}}
}

// TotalPredictions returns the number of successful predictions since startup
func (s *Service) TotalPredictions() int64 {
	return s.predictions.Load()
}
