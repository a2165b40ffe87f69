package mlmodel

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// fixedSampler replays a list of configurations
type fixedSampler struct {
	cs      []float64
	kernels []models.Kernel
	next    int
}

func (f *fixedSampler) Sample(space SearchSpace) (float64, models.Kernel) {
	i := f.next % len(f.cs)
	f.next++
	return f.cs[i], f.kernels[i]
}

func TestRandomSamplerWithinBounds(t *testing.T) {
	space := DefaultSearchSpace()
	a := NewRandomSampler(3)
	b := NewRandomSampler(3)

	for i := 0; i < 200; i++ {
		c, kernel := a.Sample(space)
		if c < space.CMin || c > space.CMax {
			t.Fatalf("C %v outside [%v, %v]", c, space.CMin, space.CMax)
		}
		if kernel != models.KernelLinear && kernel != models.KernelRBF {
			t.Fatalf("Unexpected kernel %s", kernel)
		}

		c2, kernel2 := b.Sample(space)
		if c != c2 || kernel != kernel2 {
			t.Fatalf("Samplers with the same seed diverged at draw %d", i)
		}
	}
}

func TestSearchSpaceValidate(t *testing.T) {
	if err := DefaultSearchSpace().Validate(); err != nil {
		t.Errorf("Default space should be valid: %v", err)
	}

	invalid := []SearchSpace{
		{CMin: 0, CMax: 1, Kernels: []models.Kernel{models.KernelRBF}},
		{CMin: 2, CMax: 1, Kernels: []models.Kernel{models.KernelRBF}},
		{CMin: 0.1, CMax: 1},
		{CMin: 0.1, CMax: 1, Kernels: []models.Kernel{"sigmoid"}},
	}
	for _, space := range invalid {
		if err := space.Validate(); err == nil {
			t.Errorf("Expected error for space %+v", space)
		}
	}
}

func TestSearchRecordsEveryTrial(t *testing.T) {
	env := setupTestService(t)

	sampler := &fixedSampler{
		cs:      []float64{0.5, 2, 1},
		kernels: []models.Kernel{models.KernelLinear, models.KernelRBF, models.KernelRBF},
	}
	result, err := env.service.Search(context.Background(), SearchConfig{
		Trials:      3,
		Space:       DefaultSearchSpace(),
		Sampler:     sampler,
		DataPath:    env.dataPath,
		Experiment:  "iris-optuna",
		RandomState: 42,
	})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(result.Trials) != 3 {
		t.Fatalf("Expected 3 trials, got %d", len(result.Trials))
	}
	if n := env.runCount(t, "iris-optuna"); n != 3 {
		t.Errorf("Expected 3 recorded runs, got %d", n)
	}

	best := math.Inf(-1)
	for _, trial := range result.Trials {
		if trial.Params.Model != models.ModelKindSVM {
			t.Errorf("Expected svm trials, got %s", trial.Params.Model)
		}
		if trial.Value > best {
			best = trial.Value
		}
		run, err := env.store.GetRun(trial.RunID)
		if err != nil {
			t.Fatalf("Failed to get trial run: %v", err)
		}
		if run.Params["kernel"] != string(trial.Params.Kernel) {
			t.Errorf("Expected kernel param %s, got %s", trial.Params.Kernel, run.Params["kernel"])
		}
		if run.Metrics["f1_macro"] != trial.Value {
			t.Errorf("Expected logged f1_macro %v, got %v", trial.Value, run.Metrics["f1_macro"])
		}
	}
	if result.Best == nil || result.Best.Value != best {
		t.Errorf("Expected best value %v, got %+v", best, result.Best)
	}

	// The best trial is not promoted
	if _, err := os.Stat(env.modelPath); !os.IsNotExist(err) {
		t.Error("Search must not write the canonical artifact")
	}
}

func TestSearchStopsOnCancel(t *testing.T) {
	env := setupTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := env.service.Search(ctx, SearchConfig{
		Trials:   DefaultTrials,
		Space:    DefaultSearchSpace(),
		DataPath: env.dataPath,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(result.Trials) != 0 {
		t.Errorf("Expected no trials after cancel, got %d", len(result.Trials))
	}
}

func TestSearchRejectsInvalidConfig(t *testing.T) {
	env := setupTestService(t)

	_, err := env.service.Search(context.Background(), SearchConfig{Trials: 0, Space: DefaultSearchSpace(), DataPath: env.dataPath})
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for zero trials, got %v", err)
	}
}
