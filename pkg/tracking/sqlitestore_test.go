package tracking

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

func setupTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "mlruns")
	store, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("Failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, dir
}

func startTestRun(t *testing.T, store *SQLiteStore) *models.Run {
	t.Helper()
	exp, err := store.SetExperiment("iris-mlflow-runs")
	if err != nil {
		t.Fatalf("Failed to set experiment: %v", err)
	}
	run, err := store.StartRun(exp.ID, "logreg-C1-kernelrbf")
	if err != nil {
		t.Fatalf("Failed to start run: %v", err)
	}
	return run
}

func TestNewSQLiteStoreRequiresDir(t *testing.T) {
	_, err := NewSQLiteStore("")
	if !errors.Is(err, models.ErrRegistryUnavailable) {
		t.Errorf("Expected ErrRegistryUnavailable, got %v", err)
	}
}

func TestSetExperimentIsIdempotent(t *testing.T) {
	store, _ := setupTestStore(t)

	a, err := store.SetExperiment("exp")
	if err != nil {
		t.Fatalf("Failed to set experiment: %v", err)
	}
	b, err := store.SetExperiment("exp")
	if err != nil {
		t.Fatalf("Failed to set experiment again: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("Expected same experiment ID, got %s and %s", a.ID, b.ID)
	}
}

func TestRunLifecycle(t *testing.T) {
	store, _ := setupTestStore(t)
	run := startTestRun(t, store)

	if run.Status != models.RunStatusRunning {
		t.Errorf("Expected RUNNING, got %s", run.Status)
	}

	if err := store.LogParam(run.ID, "model", "logreg"); err != nil {
		t.Fatalf("Failed to log param: %v", err)
	}
	if err := store.LogParam(run.ID, "kernel", "N/A"); err != nil {
		t.Fatalf("Failed to log param: %v", err)
	}
	if err := store.LogMetric(run.ID, "accuracy", 0.9); err != nil {
		t.Fatalf("Failed to log metric: %v", err)
	}
	if err := store.LogMetric(run.ID, "accuracy", 0.95); err != nil {
		t.Fatalf("Failed to log metric: %v", err)
	}
	if err := store.EndRun(run.ID, models.RunStatusFinished); err != nil {
		t.Fatalf("Failed to end run: %v", err)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if got.Status != models.RunStatusFinished || got.EndTime == nil {
		t.Errorf("Expected finished run with end time, got %s %v", got.Status, got.EndTime)
	}
	if got.Params["model"] != "logreg" || got.Params["kernel"] != "N/A" {
		t.Errorf("Unexpected params %v", got.Params)
	}
	if got.Metrics["accuracy"] != 0.95 {
		t.Errorf("Expected latest accuracy 0.95, got %v", got.Metrics["accuracy"])
	}

	runs, err := store.ListRuns(run.ExperimentID)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
}

func TestLogParamIsAppendOnly(t *testing.T) {
	store, _ := setupTestStore(t)
	run := startTestRun(t, store)

	if err := store.LogParam(run.ID, "C", "1"); err != nil {
		t.Fatalf("Failed to log param: %v", err)
	}
	if err := store.LogParam(run.ID, "C", "1"); err != nil {
		t.Errorf("Re-logging the same value should succeed, got %v", err)
	}
	if err := store.LogParam(run.ID, "C", "2"); err == nil {
		t.Error("Expected error when overwriting a logged param")
	}
}

func TestUnknownRun(t *testing.T) {
	store, _ := setupTestStore(t)

	if _, err := store.GetRun("missing"); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
	if err := store.LogMetric("missing", "accuracy", 1); !errors.Is(err, models.ErrRunNotFound) {
		t.Errorf("Expected ErrRunNotFound, got %v", err)
	}
}

func TestLogModelWritesDescriptor(t *testing.T) {
	store, dir := setupTestStore(t)
	run := startTestRun(t, store)

	source, err := store.LogModel(run.ID, "model", []byte("artifact-bytes"), ArtifactInfo{
		Flavor:        "iris-pipeline",
		ModelKind:     "svm",
		FormatVersion: 1,
		Inputs:        []string{"sepal length (cm)"},
	})
	if err != nil {
		t.Fatalf("Failed to log model: %v", err)
	}

	if !strings.HasPrefix(source, filepath.Join(dir, "artifacts", run.ExperimentID, run.ID)) {
		t.Errorf("Unexpected artifact location %s", source)
	}
	data, err := os.ReadFile(source)
	if err != nil || string(data) != "artifact-bytes" {
		t.Fatalf("Expected artifact bytes at %s, got %q (%v)", source, data, err)
	}

	raw, err := os.ReadFile(filepath.Join(filepath.Dir(source), "MLmodel"))
	if err != nil {
		t.Fatalf("Failed to read descriptor: %v", err)
	}
	var descriptor map[string]interface{}
	if err := yaml.Unmarshal(raw, &descriptor); err != nil {
		t.Fatalf("Failed to parse descriptor: %v", err)
	}
	if descriptor["run_id"] != run.ID || descriptor["model_kind"] != "svm" {
		t.Errorf("Unexpected descriptor %v", descriptor)
	}

	got, err := store.GetRun(run.ID)
	if err != nil {
		t.Fatalf("Failed to get run: %v", err)
	}
	if got.ArtifactURI == "" {
		t.Error("Expected artifact URI to be set on the run")
	}

	if _, err := store.LogModel(run.ID, "../escape", nil, ArtifactInfo{}); err == nil {
		t.Error("Expected error for artifact path escaping the run")
	}
}

func TestModelVersionsAreMonotonic(t *testing.T) {
	store, _ := setupTestStore(t)
	run := startTestRun(t, store)

	for want := 1; want <= 3; want++ {
		v, err := store.CreateModelVersion("iris-model", run.ID, "/tmp/model.gob")
		if err != nil {
			t.Fatalf("Failed to create version: %v", err)
		}
		if v.Version != want {
			t.Errorf("Expected version %d, got %d", want, v.Version)
		}
		if v.Stage != models.StageNone {
			t.Errorf("Expected stage None, got %s", v.Stage)
		}
	}

	other, err := store.CreateModelVersion("other-model", run.ID, "/tmp/model.gob")
	if err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}
	if other.Version != 1 {
		t.Errorf("Expected independent numbering per name, got %d", other.Version)
	}
}

func TestGetModelVersionNotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.GetModelVersion("iris-model", 99)
	if !errors.Is(err, models.ErrVersionNotFound) {
		t.Errorf("Expected ErrVersionNotFound, got %v", err)
	}
}

func TestTransitionAndLatestVersions(t *testing.T) {
	store, _ := setupTestStore(t)
	run := startTestRun(t, store)

	for i := 0; i < 3; i++ {
		if _, err := store.CreateModelVersion("iris-model", run.ID, "/tmp/model.gob"); err != nil {
			t.Fatalf("Failed to create version: %v", err)
		}
	}

	if _, err := store.TransitionStage("iris-model", 1, models.StageProduction); err != nil {
		t.Fatalf("Failed to transition: %v", err)
	}
	if _, err := store.TransitionStage("iris-model", 2, models.StageStaging); err != nil {
		t.Fatalf("Failed to transition: %v", err)
	}

	prod, err := store.LatestVersions("iris-model", models.StageProduction)
	if err != nil {
		t.Fatalf("Failed to get latest versions: %v", err)
	}
	if len(prod) != 1 || prod[0].Version != 1 {
		t.Errorf("Expected version 1 in Production, got %v", prod)
	}

	all, err := store.LatestVersions("iris-model")
	if err != nil {
		t.Fatalf("Failed to get latest versions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected one version per stage (3 stages), got %d", len(all))
	}

	if _, err := store.TransitionStage("iris-model", 1, "Retired"); err == nil {
		t.Error("Expected error for unknown stage")
	}
	if _, err := store.TransitionStage("iris-model", 42, models.StageArchived); !errors.Is(err, models.ErrVersionNotFound) {
		t.Errorf("Expected ErrVersionNotFound, got %v", err)
	}
}

func TestDownloadArtifact(t *testing.T) {
	store, _ := setupTestStore(t)
	run := startTestRun(t, store)

	source, err := store.LogModel(run.ID, "model", []byte("v1"), ArtifactInfo{})
	if err != nil {
		t.Fatalf("Failed to log model: %v", err)
	}
	v, err := store.CreateModelVersion("iris-model", run.ID, source)
	if err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}

	data, err := store.DownloadArtifact(v)
	if err != nil {
		t.Fatalf("Failed to download artifact: %v", err)
	}
	if string(data) != "v1" {
		t.Errorf("Expected artifact bytes 'v1', got %q", data)
	}

	os.Remove(source)
	if _, err := store.DownloadArtifact(v); err == nil {
		t.Error("Expected error for missing artifact file")
	}
}

func TestListModelVersionsReportsCorruptRows(t *testing.T) {
	store, _ := setupTestStore(t)
	run := startTestRun(t, store)

	if _, err := store.CreateModelVersion("iris-model", run.ID, "/tmp/model.gob"); err != nil {
		t.Fatalf("Failed to create version: %v", err)
	}
	if _, err := store.db.Exec(`INSERT INTO model_versions (name, version, run_id, stage, data) VALUES (?, ?, ?, ?, ?)`,
		"iris-model", 2, run.ID, string(models.StageProduction), "{not json"); err != nil {
		t.Fatalf("Failed to insert corrupt row: %v", err)
	}

	if _, err := store.ListModelVersions("iris-model"); err == nil {
		t.Error("Expected error for a corrupt version row")
	}
	if _, err := store.LatestVersions("iris-model", models.StageProduction); err == nil {
		t.Error("Expected LatestVersions to surface the corrupt row")
	}
}
