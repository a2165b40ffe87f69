package tracking

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

const (
	databaseFile       = "tracking.db"
	artifactsDir       = "artifacts"
	modelDataFile      = "model.gob"
	modelDescriptor    = "MLmodel"
	defaultBusyRetries = 5
)

// SQLiteStore provides SQLite-based experiment tracking and model registry.
// Metadata lives in <dir>/tracking.db, artifact files under <dir>/artifacts.
type SQLiteStore struct {
	db           *sql.DB
	artifactRoot string
}

var (
	_ Tracker  = (*SQLiteStore)(nil)
	_ Registry = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens or creates the tracking store rooted at dir
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: tracking directory not configured", models.ErrRegistryUnavailable)
	}
	if err := os.MkdirAll(filepath.Join(dir, artifactsDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create tracking directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_journal_mode=WAL&_synchronous=NORMAL", filepath.Join(dir, databaseFile))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Writes are serialized by SQLite anyway
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := &SQLiteStore{db: db, artifactRoot: filepath.Join(dir, artifactsDir)}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// retryOnBusy retries a database operation if it fails due to SQLITE_BUSY.
// This is a safety net on top of the busy_timeout pragma.
func (s *SQLiteStore) retryOnBusy(operation func() error, maxRetries int) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "SQLITE_BUSY") {
			// Exponential backoff: 10ms, 20ms, 40ms, 80ms, 160ms
			backoff := time.Duration(10*(1<<uint(i))) * time.Millisecond
			time.Sleep(backoff)
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries: %w", maxRetries, err)
}

// initSchema creates the database schema if it doesn't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS experiments (
		id TEXT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		created_at INTEGER NOT NULL,
		data TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		experiment_id TEXT NOT NULL,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		data TEXT NOT NULL,
		FOREIGN KEY (experiment_id) REFERENCES experiments(id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_experiment_id ON runs(experiment_id);

	CREATE TABLE IF NOT EXISTS run_params (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key),
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS run_metrics (
		run_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value REAL NOT NULL,
		logged_at INTEGER NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_run_metrics_run_id ON run_metrics(run_id);

	CREATE TABLE IF NOT EXISTS model_versions (
		name TEXT NOT NULL,
		version INTEGER NOT NULL,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (name, version)
	);

	CREATE INDEX IF NOT EXISTS idx_model_versions_stage ON model_versions(name, stage);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SetExperiment returns the named experiment, creating it on first use
func (s *SQLiteStore) SetExperiment(name string) (*models.Experiment, error) {
	if name == "" {
		return nil, &models.ConfigurationError{Field: "experiment", Value: name, Reason: "must not be empty"}
	}

	exp, err := s.GetExperimentByName(name)
	if err == nil {
		return exp, nil
	}

	exp = &models.Experiment{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(exp)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal experiment: %w", err)
	}

	query := `INSERT OR IGNORE INTO experiments (id, name, created_at, data) VALUES (?, ?, ?, ?)`
	err = s.retryOnBusy(func() error {
		_, execErr := s.db.Exec(query, exp.ID, exp.Name, exp.CreatedAt.UnixNano(), string(data))
		return execErr
	}, defaultBusyRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to save experiment: %w", err)
	}

	// Another process may have created it first
	return s.GetExperimentByName(name)
}

// GetExperimentByName retrieves an experiment by name
func (s *SQLiteStore) GetExperimentByName(name string) (*models.Experiment, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM experiments WHERE name = ?`, name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("experiment not found: %s", name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get experiment: %w", err)
	}

	var exp models.Experiment
	if err := json.Unmarshal([]byte(data), &exp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal experiment: %w", err)
	}
	return &exp, nil
}

// StartRun opens a new RUNNING run in the experiment
func (s *SQLiteStore) StartRun(experimentID, runName string) (*models.Run, error) {
	run := &models.Run{
		ID:           uuid.New().String(),
		ExperimentID: experimentID,
		Name:         runName,
		Status:       models.RunStatusRunning,
		StartTime:    time.Now().UTC(),
	}
	if err := s.saveRun(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) saveRun(run *models.Run) error {
	// Params and metrics live in their own tables
	stored := *run
	stored.Params = nil
	stored.Metrics = nil

	data, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO runs (id, experiment_id, name, status, start_time, data)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	err = s.retryOnBusy(func() error {
		_, execErr := s.db.Exec(query,
			run.ID,
			run.ExperimentID,
			run.Name,
			run.Status,
			run.StartTime.UnixNano(),
			string(data),
		)
		return execErr
	}, defaultBusyRetries)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// LogParam records a parameter. Re-logging a key with a different value is rejected.
func (s *SQLiteStore) LogParam(runID, key, value string) error {
	if _, err := s.getRunRecord(runID); err != nil {
		return err
	}

	var existing string
	err := s.db.QueryRow(`SELECT value FROM run_params WHERE run_id = ? AND key = ?`, runID, key).Scan(&existing)
	if err == nil {
		if existing != value {
			return fmt.Errorf("param %s of run %s already logged with value %q", key, runID, existing)
		}
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("failed to check param: %w", err)
	}

	err = s.retryOnBusy(func() error {
		_, execErr := s.db.Exec(`INSERT INTO run_params (run_id, key, value) VALUES (?, ?, ?)`, runID, key, value)
		return execErr
	}, defaultBusyRetries)
	if err != nil {
		return fmt.Errorf("failed to log param %s: %w", key, err)
	}
	return nil
}

// LogMetric appends a metric value; the latest value wins on read
func (s *SQLiteStore) LogMetric(runID, key string, value float64) error {
	if _, err := s.getRunRecord(runID); err != nil {
		return err
	}

	err := s.retryOnBusy(func() error {
		_, execErr := s.db.Exec(`INSERT INTO run_metrics (run_id, key, value, logged_at) VALUES (?, ?, ?, ?)`,
			runID, key, value, time.Now().UnixNano())
		return execErr
	}, defaultBusyRetries)
	if err != nil {
		return fmt.Errorf("failed to log metric %s: %w", key, err)
	}
	return nil
}

// LogModel writes the artifact bytes and an MLmodel descriptor under
// artifacts/<experiment>/<run>/artifacts/<artifactPath>/
func (s *SQLiteStore) LogModel(runID, artifactPath string, data []byte, info ArtifactInfo) (string, error) {
	run, err := s.getRunRecord(runID)
	if err != nil {
		return "", err
	}
	if artifactPath == "" || strings.Contains(artifactPath, "..") {
		return "", fmt.Errorf("invalid artifact path %q", artifactPath)
	}

	runArtifacts := filepath.Join(s.artifactRoot, run.ExperimentID, run.ID, artifactsDir)
	dir := filepath.Join(runArtifacts, artifactPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	source := filepath.Join(dir, modelDataFile)
	if err := os.WriteFile(source, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write model artifact: %w", err)
	}

	descriptor := struct {
		ArtifactPath   string `yaml:"artifact_path"`
		RunID          string `yaml:"run_id"`
		Data           string `yaml:"data"`
		SizeBytes      int    `yaml:"size_bytes"`
		UTCTimeCreated string `yaml:"utc_time_created"`
		ArtifactInfo   `yaml:",inline"`
	}{
		ArtifactPath:   artifactPath,
		RunID:          run.ID,
		Data:           modelDataFile,
		SizeBytes:      len(data),
		UTCTimeCreated: time.Now().UTC().Format(time.RFC3339Nano),
		ArtifactInfo:   info,
	}
	out, err := yaml.Marshal(&descriptor)
	if err != nil {
		return "", fmt.Errorf("failed to marshal model descriptor: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, modelDescriptor), out, 0644); err != nil {
		return "", fmt.Errorf("failed to write model descriptor: %w", err)
	}

	run.ArtifactURI = runArtifacts
	if err := s.saveRun(run); err != nil {
		return "", err
	}
	return source, nil
}

// EndRun sets the terminal status of a run
func (s *SQLiteStore) EndRun(runID string, status models.RunStatus) error {
	if status != models.RunStatusFinished && status != models.RunStatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	run, err := s.getRunRecord(runID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	run.Status = status
	run.EndTime = &now
	return s.saveRun(run)
}

// GetRun retrieves a run with its params and latest metric values
func (s *SQLiteStore) GetRun(runID string) (*models.Run, error) {
	run, err := s.getRunRecord(runID)
	if err != nil {
		return nil, err
	}
	if err := s.loadRunData(run); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns lists the runs of an experiment, newest first
func (s *SQLiteStore) ListRuns(experimentID string) ([]*models.Run, error) {
	rows, err := s.db.Query(`SELECT data FROM runs WHERE experiment_id = ? ORDER BY start_time DESC`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	runs := make([]*models.Run, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			continue
		}

		var run models.Run
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	rows.Close()

	for _, run := range runs {
		if err := s.loadRunData(run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *SQLiteStore) getRunRecord(runID string) (*models.Run, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM runs WHERE id = ?`, runID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run models.Run
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

func (s *SQLiteStore) loadRunData(run *models.Run) error {
	run.Params = make(map[string]string)
	run.Metrics = make(map[string]float64)

	rows, err := s.db.Query(`SELECT key, value FROM run_params WHERE run_id = ?`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load params: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan param: %w", err)
		}
		run.Params[key] = value
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT key, value FROM run_metrics WHERE run_id = ? ORDER BY logged_at ASC, rowid ASC`, run.ID)
	if err != nil {
		return fmt.Errorf("failed to load metrics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var value float64
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("failed to scan metric: %w", err)
		}
		run.Metrics[key] = value
	}
	return rows.Err()
}
