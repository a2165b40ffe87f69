package mlmodel

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strconv"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/dataset"
	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// Search defaults
const (
	DefaultTrials = 10
	DefaultCMin   = 0.01
	DefaultCMax   = 10.0
)

// SearchSpace bounds the support vector classifier hyperparameters
type SearchSpace struct {
	CMin    float64
	CMax    float64
	Kernels []models.Kernel
}

// DefaultSearchSpace returns C in [0.01, 10] and the linear and rbf kernels
func DefaultSearchSpace() SearchSpace {
	return SearchSpace{
		CMin:    DefaultCMin,
		CMax:    DefaultCMax,
		Kernels: []models.Kernel{models.KernelLinear, models.KernelRBF},
	}
}

// Validate checks the bounds and kernel choices
func (s SearchSpace) Validate() error {
	if !(s.CMin > 0) || !(s.CMax >= s.CMin) || math.IsInf(s.CMax, 0) {
		return &models.ConfigurationError{Field: "C", Value: fmt.Sprintf("[%v, %v]", s.CMin, s.CMax), Reason: "bounds must satisfy 0 < min <= max"}
	}
	if len(s.Kernels) == 0 {
		return &models.ConfigurationError{Field: "kernel", Value: "", Reason: "at least one kernel is required"}
	}
	for _, k := range s.Kernels {
		if !models.IsValidKernel(k) {
			return &models.ConfigurationError{Field: "kernel", Value: string(k), Reason: fmt.Sprintf("must be one of %v", models.ValidKernels)}
		}
	}
	return nil
}

// Sampler proposes the hyperparameters of the next trial
type Sampler interface {
	Sample(space SearchSpace) (c float64, kernel models.Kernel)
}

// RandomSampler draws C log-uniformly and the kernel uniformly
type RandomSampler struct {
	rng *rand.Rand
}

// NewRandomSampler creates a sampler with a fixed seed
func NewRandomSampler(seed int64) *RandomSampler {
	return &RandomSampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample implements Sampler
func (s *RandomSampler) Sample(space SearchSpace) (float64, models.Kernel) {
	lo, hi := math.Log(space.CMin), math.Log(space.CMax)
	c := math.Exp(lo + s.rng.Float64()*(hi-lo))
	kernel := space.Kernels[s.rng.Intn(len(space.Kernels))]
	return c, kernel
}

// SearchConfig controls a hyperparameter search
type SearchConfig struct {
	Trials      int
	Space       SearchSpace
	Sampler     Sampler
	DataPath    string
	Experiment  string
	TestSize    float64
	RandomState int64
}

// Trial is one evaluated configuration
type Trial struct {
	Number  int
	Params  models.TrainingParams
	Metrics *models.PerformanceMetrics
	RunID   string
	Value   float64 // objective: macro F1
}

// SearchResult lists every trial and the best one
type SearchResult struct {
	Trials []Trial
	Best   *Trial
}

// Search runs trials of the support vector classifier and maximises macro F1. Every
// trial is recorded as its own run. The best artifact is reported, not promoted to
// the canonical path.
func (s *Service) Search(ctx context.Context, cfg SearchConfig) (*SearchResult, error) {
	if cfg.Trials <= 0 {
		return nil, &models.ConfigurationError{Field: "trials", Value: strconv.Itoa(cfg.Trials), Reason: "must be positive"}
	}
	if err := cfg.Space.Validate(); err != nil {
		return nil, err
	}
	if cfg.Sampler == nil {
		cfg.Sampler = NewRandomSampler(cfg.RandomState)
	}
	if cfg.Experiment == "" {
		cfg.Experiment = models.DefaultExperimentName
	}
	if cfg.TestSize == 0 {
		cfg.TestSize = models.DefaultTestSize
	}

	ds, err := dataset.Load(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	split, err := dataset.StratifiedSplit(ds, cfg.TestSize, cfg.RandomState)
	if err != nil {
		return nil, fmt.Errorf("failed to split dataset: %w", err)
	}

	result := &SearchResult{}
	for n := 0; n < cfg.Trials; n++ {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("Search cancelled", zap.Int("completed_trials", n))
			return result, err
		}

		c, kernel := cfg.Sampler.Sample(cfg.Space)
		params := models.TrainingParams{
			Model:       models.ModelKindSVM,
			C:           c,
			Kernel:      kernel,
			TestSize:    cfg.TestSize,
			RandomState: cfg.RandomState,
			DataPath:    cfg.DataPath,
			Experiment:  cfg.Experiment,
		}

		trial, err := s.runTrial(n, params, split)
		if err != nil {
			return result, fmt.Errorf("trial %d failed: %w", n, err)
		}
		result.Trials = append(result.Trials, *trial)

		// First trial wins ties
		if result.Best == nil || trial.Value > result.Best.Value {
			best := *trial
			result.Best = &best
		}

		s.logger.Info("Trial finished",
			zap.Int("trial", n),
			zap.Float64("C", c),
			zap.String("kernel", string(kernel)),
			zap.Float64("f1_macro", trial.Value),
			zap.Float64("best_value", result.Best.Value))
	}

	return result, nil
}

func (s *Service) runTrial(n int, params models.TrainingParams, split *dataset.Split) (*Trial, error) {
	pipeline, metrics, err := fitAndEvaluate(params, split)
	if err != nil {
		return nil, err
	}
	artifact, err := pipeline.Encode()
	if err != nil {
		return nil, err
	}

	tracked := map[string]string{
		"C":      strconv.FormatFloat(params.C, 'g', -1, 64),
		"kernel": string(params.Kernel),
	}
	run, _, err := s.recordRun(params.Experiment, fmt.Sprintf("trial-%d", n), tracked, metrics, artifact, pipeline)
	if err != nil {
		return nil, err
	}

	return &Trial{
		Number:  n,
		Params:  params,
		Metrics: metrics,
		RunID:   run.ID,
		Value:   metrics.F1Macro,
	}, nil
}
