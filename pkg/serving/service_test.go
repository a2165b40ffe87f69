package serving

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/mimir-aip/iris-mlops/pkg/dataset"
	"github.com/mimir-aip/iris-mlops/pkg/mlmodel/training"
	"github.com/mimir-aip/iris-mlops/pkg/models"
)

var setosa = models.Record{SepalLength: 5.1, SepalWidth: 3.5, PetalLength: 1.4, PetalWidth: 0.2}

type fakeClassifier struct {
	label models.ClassIndex
	err   error
	panic bool
}

func (f *fakeClassifier) Predict(features []float64) (models.ClassIndex, error) {
	if f.panic {
		panic("corrupt model state")
	}
	return f.label, f.err
}

func writeTestArtifact(t *testing.T) string {
	t.Helper()
	ds, err := dataset.NewEmbeddedSource().Load(dataset.IrisDatasetName)
	if err != nil {
		t.Fatalf("Failed to load dataset: %v", err)
	}
	p, err := training.FitPipeline(models.DefaultTrainingParams(), ds.Features, ds.Labels, ds.LabelNames)
	if err != nil {
		t.Fatalf("Failed to fit pipeline: %v", err)
	}
	path := filepath.Join(t.TempDir(), "models", "best_model.gob")
	if err := p.SaveFile(path); err != nil {
		t.Fatalf("Failed to save artifact: %v", err)
	}
	return path
}

func TestLoadServiceMissingArtifact(t *testing.T) {
	if _, err := LoadService(filepath.Join(t.TempDir(), "missing.gob"), zaptest.NewLogger(t)); err == nil {
		t.Fatal("Expected startup to fail without an artifact")
	}
}

func TestPredictSetosa(t *testing.T) {
	svc, err := LoadService(writeTestArtifact(t), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to load service: %v", err)
	}

	result := svc.Predict(setosa)
	if !result.OK() {
		t.Fatalf("Prediction failed: %s", result.Failure.Message)
	}
	if result.Response.Prediction != 0 || result.Response.ClassName != "setosa" {
		t.Errorf("Expected 0/setosa, got %+v", result.Response)
	}

	// Same input, same output
	again := svc.Predict(setosa)
	if again.Response.Prediction != result.Response.Prediction {
		t.Error("Expected deterministic predictions")
	}
}

func TestPredictCounter(t *testing.T) {
	svc := NewService(&fakeClassifier{label: 1}, "", zaptest.NewLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Predict(setosa)
		}()
	}
	wg.Wait()

	if got := svc.Metrics().API.TotalPredictions; got != 25 {
		t.Errorf("Expected 25 predictions, got %d", got)
	}
}

func TestPredictFailureIsData(t *testing.T) {
	svc := NewService(&fakeClassifier{err: errors.New("feature mismatch")}, "", zaptest.NewLogger(t))

	result := svc.Predict(setosa)
	if result.OK() {
		t.Fatal("Expected prediction failure")
	}
	if result.Failure.Message != "feature mismatch" {
		t.Errorf("Unexpected failure message %q", result.Failure.Message)
	}
	if svc.TotalPredictions() != 0 {
		t.Errorf("Failures must not be counted, got %d", svc.TotalPredictions())
	}
}

func TestPredictRecoversPanics(t *testing.T) {
	svc := NewService(&fakeClassifier{panic: true}, "", zaptest.NewLogger(t))

	if result := svc.Predict(setosa); result.OK() {
		t.Error("Expected a failure result after a panic")
	}
}

func TestPredictUnknownClass(t *testing.T) {
	svc := NewService(&fakeClassifier{label: 7}, "", zaptest.NewLogger(t))

	if result := svc.Predict(setosa); result.OK() {
		t.Error("Expected failure for out-of-range class index")
	}
}

func TestMetrics(t *testing.T) {
	path := writeTestArtifact(t)
	svc, err := LoadService(path, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("Failed to load service: %v", err)
	}

	svc.Predict(setosa)
	report := svc.Metrics()

	if !report.Model.Exists || report.Model.SizeBytes == 0 || report.Model.LastModified == nil {
		t.Errorf("Expected artifact file info, got %+v", report.Model)
	}
	if report.Model.Path != path {
		t.Errorf("Expected path %s, got %s", path, report.Model.Path)
	}
	if report.Model.Type != training.ArtifactType || report.Model.ModelKind != models.ModelKindLogReg {
		t.Errorf("Unexpected model type %s/%s", report.Model.Type, report.Model.ModelKind)
	}
	if report.API.TotalPredictions != 1 {
		t.Errorf("Expected 1 prediction, got %d", report.API.TotalPredictions)
	}
	if report.API.UptimeSeconds < 0 {
		t.Errorf("Unexpected uptime %v", report.API.UptimeSeconds)
	}

	// Reading metrics changes nothing
	if svc.Metrics().API.TotalPredictions != 1 {
		t.Error("Metrics must be read-only")
	}
}

func TestHealth(t *testing.T) {
	svc := NewService(&fakeClassifier{err: errors.New("broken")}, "", zaptest.NewLogger(t))
	if svc.Health()["status"] != "ok" {
		t.Error("Health must not depend on the model")
	}
}
