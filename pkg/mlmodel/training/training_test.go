package training

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/mimir-aip/iris-mlops/pkg/dataset"
	"github.com/mimir-aip/iris-mlops/pkg/models"
)

var setosaExemplar = []float64{5.1, 3.5, 1.4, 0.2}

func setupSplit(t *testing.T) *dataset.Split {
	t.Helper()
	ds, err := dataset.NewEmbeddedSource().Load(dataset.IrisDatasetName)
	if err != nil {
		t.Fatalf("Failed to load dataset: %v", err)
	}
	split, err := dataset.StratifiedSplit(ds, models.DefaultTestSize, models.DefaultRandomState)
	if err != nil {
		t.Fatalf("Failed to split dataset: %v", err)
	}
	return split
}

func fitAndEvaluate(t *testing.T, params models.TrainingParams, split *dataset.Split) (*Pipeline, *models.PerformanceMetrics) {
	t.Helper()
	p, err := FitPipeline(params, split.Train.Features, split.Train.Labels, split.Train.LabelNames)
	if err != nil {
		t.Fatalf("Failed to fit %s pipeline: %v", params.Model, err)
	}
	metrics, err := Evaluate(p, split.Test.Features, split.Test.Labels)
	if err != nil {
		t.Fatalf("Failed to evaluate %s pipeline: %v", params.Model, err)
	}
	return p, metrics
}

func TestPipelineFitsIris(t *testing.T) {
	split := setupSplit(t)

	cases := []struct {
		name        string
		model       models.ModelKind
		kernel      models.Kernel
		minAccuracy float64
	}{
		{"logreg", models.ModelKindLogReg, models.KernelRBF, 0.85},
		{"svm-rbf", models.ModelKindSVM, models.KernelRBF, 0.85},
		{"svm-linear", models.ModelKindSVM, models.KernelLinear, 0.85},
		{"svm-poly", models.ModelKindSVM, models.KernelPoly, 0.7},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := models.DefaultTrainingParams()
			params.Model = tc.model
			params.Kernel = tc.kernel

			p, metrics := fitAndEvaluate(t, params, split)

			if metrics.Accuracy < tc.minAccuracy {
				t.Errorf("Expected accuracy >= %.2f, got %.3f", tc.minAccuracy, metrics.Accuracy)
			}
			if metrics.F1Macro < tc.minAccuracy-0.1 || metrics.F1Macro > 1 {
				t.Errorf("Expected macro F1 in [%.2f, 1], got %.3f", tc.minAccuracy-0.1, metrics.F1Macro)
			}
			if metrics.TestSamples != 30 {
				t.Errorf("Expected 30 test samples, got %d", metrics.TestSamples)
			}

			label, err := p.Predict(setosaExemplar)
			if err != nil {
				t.Fatalf("Failed to predict: %v", err)
			}
			if label != 0 {
				t.Errorf("Expected setosa exemplar to be class 0, got %d", label)
			}
		})
	}
}

func TestPipelineDeterministic(t *testing.T) {
	split := setupSplit(t)
	params := models.DefaultTrainingParams()
	params.Model = models.ModelKindSVM

	a, _ := fitAndEvaluate(t, params, split)
	b, _ := fitAndEvaluate(t, params, split)

	for _, row := range split.Test.Features {
		la, _ := a.Predict(row)
		lb, _ := b.Predict(row)
		if la != lb {
			t.Fatalf("Same seed produced different predictions for %v: %d vs %d", row, la, lb)
		}
	}
}

func TestFitPipelineRejectsInvalidParams(t *testing.T) {
	split := setupSplit(t)

	params := models.DefaultTrainingParams()
	params.Model = "xgboost"
	_, err := FitPipeline(params, split.Train.Features, split.Train.Labels, split.Train.LabelNames)
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
	if cfgErr.Field != "model" {
		t.Errorf("Expected field 'model', got %s", cfgErr.Field)
	}

	params = models.DefaultTrainingParams()
	params.Model = models.ModelKindSVM
	params.Kernel = "sigmoid"
	if _, err := FitPipeline(params, split.Train.Features, split.Train.Labels, split.Train.LabelNames); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigurationError for unknown kernel, got %v", err)
	}
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	split := setupSplit(t)
	p, _ := fitAndEvaluate(t, models.DefaultTrainingParams(), split)

	if _, err := p.Predict([]float64{1, 2, 3}); err == nil {
		t.Error("Expected error for 3-feature vector")
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	split := setupSplit(t)

	for _, kind := range models.ValidModelKinds {
		params := models.DefaultTrainingParams()
		params.Model = kind
		p, _ := fitAndEvaluate(t, params, split)

		path := filepath.Join(t.TempDir(), "models", "best_model.gob")
		if err := p.SaveFile(path); err != nil {
			t.Fatalf("Failed to save %s artifact: %v", kind, err)
		}
		loaded, err := LoadFile(path)
		if err != nil {
			t.Fatalf("Failed to load %s artifact: %v", kind, err)
		}

		if loaded.Metadata.ModelKind != kind {
			t.Errorf("Expected model kind %s, got %s", kind, loaded.Metadata.ModelKind)
		}
		for _, row := range split.Test.Features {
			want, _ := p.Predict(row)
			got, err := loaded.Predict(row)
			if err != nil {
				t.Fatalf("Loaded pipeline failed to predict: %v", err)
			}
			if got != want {
				t.Fatalf("Loaded %s pipeline predicted %d, original %d", kind, got, want)
			}
		}
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not a pipeline")); err == nil {
		t.Error("Expected error decoding garbage bytes")
	}
	if _, err := Load(bytes.NewReader(nil)); err == nil {
		t.Error("Expected error decoding empty input")
	}
}

func TestStandardScaler(t *testing.T) {
	X := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	s, err := FitStandardScaler(X)
	if err != nil {
		t.Fatalf("Failed to fit scaler: %v", err)
	}

	if s.Mean[0] != 3 || s.Mean[1] != 5 {
		t.Errorf("Unexpected means %v", s.Mean)
	}
	// Constant column is divided by 1
	if s.Scale[1] != 1 {
		t.Errorf("Expected unit scale for constant column, got %v", s.Scale[1])
	}

	out, err := s.Transform([]float64{3 + math.Sqrt(8.0/3.0), 6})
	if err != nil {
		t.Fatalf("Failed to transform: %v", err)
	}
	if math.Abs(out[0]-1) > 1e-9 || out[1] != 1 {
		t.Errorf("Unexpected scaled vector %v", out)
	}
}

func TestScoreMacroF1(t *testing.T) {
	names := []string{"a", "b", "c"}
	actual := []int{0, 0, 1, 1, 2, 2}
	predicted := []int{0, 0, 1, 0, 1, 1}

	m := score(names, actual, predicted)

	if math.Abs(m.Accuracy-0.5) > 1e-9 {
		t.Errorf("Expected accuracy 0.5, got %v", m.Accuracy)
	}
	// Class c is never predicted: its F1 counts as zero
	if m.PerClassF1[2] != 0 {
		t.Errorf("Expected zero F1 for unpredicted class, got %v", m.PerClassF1[2])
	}
	// a: p=2/3 r=1 -> 0.8; b: p=1/3 r=1/2 -> 0.4
	expected := (0.8 + 0.4 + 0) / 3
	if math.Abs(m.F1Macro-expected) > 1e-9 {
		t.Errorf("Expected macro F1 %v, got %v", expected, m.F1Macro)
	}
	if m.ConfusionMatrix[1][0] != 1 || m.ConfusionMatrix[2][1] != 2 {
		t.Errorf("Unexpected confusion matrix %v", m.ConfusionMatrix)
	}
}

func TestSVCSmallCStaysAboveChance(t *testing.T) {
	split := setupSplit(t)

	for _, kernel := range []models.Kernel{models.KernelRBF, models.KernelLinear} {
		for _, c := range []float64{0.01, 0.02} {
			params := models.DefaultTrainingParams()
			params.Model = models.ModelKindSVM
			params.Kernel = kernel
			params.C = c

			_, metrics := fitAndEvaluate(t, params, split)
			if metrics.Accuracy < 0.7 {
				t.Errorf("%s C=%g: expected accuracy >= 0.70, got %.3f (confusion %v)", kernel, c, metrics.Accuracy, metrics.ConfusionMatrix)
			}

			predictedClasses := 0
			for col := 0; col < models.NumClasses; col++ {
				total := 0
				for row := range metrics.ConfusionMatrix {
					total += metrics.ConfusionMatrix[row][col]
				}
				if total > 0 {
					predictedClasses++
				}
			}
			if predictedClasses < models.NumClasses {
				t.Errorf("%s C=%g: expected every class to be predicted, got %d", kernel, c, predictedClasses)
			}
		}
	}
}

func TestSVCBiasFromKKT(t *testing.T) {
	// Separable in one dimension around x = 1
	X := [][]float64{{-1}, {0}, {2}, {3}}
	y := []int{1, 1, 0, 0}

	svc := NewSVC(0.001, models.KernelLinear)
	if err := svc.Fit(X, y, 2); err != nil {
		t.Fatalf("Failed to fit: %v", err)
	}
	for i, x := range X {
		label, err := svc.Predict(x)
		if err != nil {
			t.Fatalf("Failed to predict: %v", err)
		}
		if label != y[i] {
			t.Errorf("Point %v: expected class %d, got %d", x, y[i], label)
		}
	}
}
