package mlmodel

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/dataset"
	"github.com/mimir-aip/iris-mlops/pkg/mlmodel/training"
	"github.com/mimir-aip/iris-mlops/pkg/models"
	"github.com/mimir-aip/iris-mlops/pkg/tracking"
)

// ModelArtifactPath is the artifact directory every run logs its pipeline under
const ModelArtifactPath = "model"

// Service trains iris pipelines and records them with the tracker
type Service struct {
	tracker   tracking.Tracker
	registry  tracking.Registry
	modelPath string
	logger    *zap.Logger
}

// NewService creates a new training service. registry may be nil when no run is
// ever registered.
func NewService(tracker tracking.Tracker, registry tracking.Registry, modelPath string, logger *zap.Logger) *Service {
	return &Service{
		tracker:   tracker,
		registry:  registry,
		modelPath: modelPath,
		logger:    logger.Named("trainer"),
	}
}

// TrainingResult holds the outcome of a training run
type TrainingResult struct {
	Run          *models.Run
	Metrics      *models.PerformanceMetrics
	ModelPath    string
	ArtifactURI  string
	ModelVersion *models.ModelVersion
	Pipeline     *training.Pipeline
}

// Train fits one pipeline, evaluates it on the held-out partition, records the run
// and overwrites the canonical artifact. Nothing is recorded when validation,
// loading or fitting fails.
func (s *Service) Train(ctx context.Context, params models.TrainingParams) (*TrainingResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.RegisteredModel != "" && s.registry == nil {
		return nil, fmt.Errorf("%w: cannot register %s", models.ErrRegistryUnavailable, params.RegisteredModel)
	}
	if params.Experiment == "" {
		params.Experiment = models.DefaultExperimentName
	}

	ds, err := dataset.Load(params.DataPath)
	if err != nil {
		return nil, err
	}
	split, err := dataset.StratifiedSplit(ds, params.TestSize, params.RandomState)
	if err != nil {
		return nil, fmt.Errorf("failed to split dataset: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pipeline, metrics, err := fitAndEvaluate(params, split)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Model evaluated",
		zap.String("model", string(params.Model)),
		zap.Float64("C", params.C),
		zap.String("kernel", params.KernelParam()),
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("f1_macro", metrics.F1Macro))

	artifact, err := pipeline.Encode()
	if err != nil {
		return nil, err
	}

	run, source, err := s.recordRun(params.Experiment, params.RunName(), trackedParams(params), metrics, artifact, pipeline)
	if err != nil {
		return nil, err
	}

	result := &TrainingResult{
		Run:         run,
		Metrics:     metrics,
		ModelPath:   s.modelPath,
		ArtifactURI: source,
		Pipeline:    pipeline,
	}

	if params.RegisteredModel != "" {
		version, err := s.registry.CreateModelVersion(params.RegisteredModel, run.ID, source)
		if err != nil {
			return nil, fmt.Errorf("failed to register model: %w", err)
		}
		result.ModelVersion = version
		s.logger.Info("Model registered",
			zap.String("name", version.Name),
			zap.Int("version", version.Version),
			zap.String("run_id", run.ID))
	}

	if err := pipeline.SaveFile(s.modelPath); err != nil {
		return nil, fmt.Errorf("failed to write canonical artifact: %w", err)
	}
	s.logger.Info("Model saved", zap.String("path", s.modelPath), zap.String("run_id", run.ID))

	return result, nil
}

// fitAndEvaluate fits on the train partition and scores on the test partition
func fitAndEvaluate(params models.TrainingParams, split *dataset.Split) (*training.Pipeline, *models.PerformanceMetrics, error) {
	pipeline, err := training.FitPipeline(params, split.Train.Features, split.Train.Labels, split.Train.LabelNames)
	if err != nil {
		return nil, nil, err
	}
	metrics, err := training.Evaluate(pipeline, split.Test.Features, split.Test.Labels)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to evaluate model: %w", err)
	}
	return pipeline, metrics, nil
}

// recordRun logs one finished run. A run that fails midway is marked FAILED.
func (s *Service) recordRun(experiment, runName string, params map[string]string, metrics *models.PerformanceMetrics, artifact []byte, pipeline *training.Pipeline) (*models.Run, string, error) {
	exp, err := s.tracker.SetExperiment(experiment)
	if err != nil {
		return nil, "", fmt.Errorf("failed to set experiment: %w", err)
	}

	run, err := s.tracker.StartRun(exp.ID, runName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start run: %w", err)
	}

	source, err := s.logRun(run.ID, params, metrics, artifact, pipeline)
	if err != nil {
		if endErr := s.tracker.EndRun(run.ID, models.RunStatusFailed); endErr != nil {
			s.logger.Warn("Failed to mark run as failed", zap.String("run_id", run.ID), zap.Error(endErr))
		}
		return nil, "", err
	}

	if err := s.tracker.EndRun(run.ID, models.RunStatusFinished); err != nil {
		return nil, "", fmt.Errorf("failed to end run: %w", err)
	}

	finished, err := s.tracker.GetRun(run.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to reload run: %w", err)
	}
	s.logger.Debug("Run recorded", zap.String("run_id", run.ID), zap.String("run_name", runName))
	return finished, source, nil
}

func (s *Service) logRun(runID string, params map[string]string, metrics *models.PerformanceMetrics, artifact []byte, pipeline *training.Pipeline) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.tracker.LogParam(runID, k, params[k]); err != nil {
			return "", fmt.Errorf("failed to log param %s: %w", k, err)
		}
	}

	if err := s.tracker.LogMetric(runID, "accuracy", metrics.Accuracy); err != nil {
		return "", fmt.Errorf("failed to log accuracy: %w", err)
	}
	if err := s.tracker.LogMetric(runID, "f1_macro", metrics.F1Macro); err != nil {
		return "", fmt.Errorf("failed to log f1_macro: %w", err)
	}

	source, err := s.tracker.LogModel(runID, ModelArtifactPath, artifact, tracking.ArtifactInfo{
		Flavor:        training.ArtifactType,
		ModelKind:     string(pipeline.Metadata.ModelKind),
		FormatVersion: training.ArtifactFormatVersion,
		Inputs:        pipeline.Metadata.FeatureNames,
		Outputs:       pipeline.Metadata.ClassNames,
	})
	if err != nil {
		return "", fmt.Errorf("failed to log model: %w", err)
	}
	return source, nil
}

// trackedParams returns the run parameters as logged for a training run
func trackedParams(p models.TrainingParams) map[string]string {
	return map[string]string{
		"model":        string(p.Model),
		"C":            strconv.FormatFloat(p.C, 'g', -1, 64),
		"kernel":       p.KernelParam(),
		"test_size":    strconv.FormatFloat(p.TestSize, 'g', -1, 64),
		"random_state": strconv.FormatInt(p.RandomState, 10),
		"data_path":    p.DataPath,
	}
}
