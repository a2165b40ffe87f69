// Package tracking records training runs and keeps the model registry.
package tracking

import "github.com/mimir-aip/iris-mlops/pkg/models"

// Tracker is the experiment-tracking contract used by training and search.
// Runs are append-only: parameters and metrics are added, never rewritten.
type Tracker interface {
	// SetExperiment returns the named experiment, creating it if needed
	SetExperiment(name string) (*models.Experiment, error)
	GetExperimentByName(name string) (*models.Experiment, error)

	StartRun(experimentID, runName string) (*models.Run, error)
	LogParam(runID, key, value string) error
	LogMetric(runID, key string, value float64) error
	// LogModel stores artifact bytes under the run and returns the stored file path
	LogModel(runID, artifactPath string, data []byte, info ArtifactInfo) (string, error)
	EndRun(runID string, status models.RunStatus) error

	GetRun(runID string) (*models.Run, error)
	ListRuns(experimentID string) ([]*models.Run, error)
}

// Registry maps registered model names and integer versions to logged artifacts
type Registry interface {
	// CreateModelVersion registers the next version of name pointing at source
	CreateModelVersion(name, runID, source string) (*models.ModelVersion, error)
	GetModelVersion(name string, version int) (*models.ModelVersion, error)
	ListModelVersions(name string) ([]*models.ModelVersion, error)
	// LatestVersions returns the newest version in each requested stage, or in every stage when none is given
	LatestVersions(name string, stages ...models.Stage) ([]*models.ModelVersion, error)
	TransitionStage(name string, version int, stage models.Stage) (*models.ModelVersion, error)
	DownloadArtifact(version *models.ModelVersion) ([]byte, error)
}

// ArtifactInfo is written next to a logged model as its MLmodel descriptor
type ArtifactInfo struct {
	Flavor        string   `yaml:"flavor"`
	ModelKind     string   `yaml:"model_kind"`
	FormatVersion int      `yaml:"format_version"`
	Inputs        []string `yaml:"inputs"`
	Outputs       []string `yaml:"outputs"`
}
