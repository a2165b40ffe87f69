package tracking

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/mimir-aip/iris-mlops/pkg/models"
)

// CreateModelVersion registers the next version number of name. Versions start at 1
// and never repeat.
func (s *SQLiteStore) CreateModelVersion(name, runID, source string) (*models.ModelVersion, error) {
	if name == "" {
		return nil, &models.ConfigurationError{Field: "registered_model", Value: name, Reason: "must not be empty"}
	}
	if _, err := s.getRunRecord(runID); err != nil {
		return nil, err
	}

	var version *models.ModelVersion
	err := s.retryOnBusy(func() error {
		v, txErr := s.insertNextVersion(name, runID, source)
		if txErr == nil {
			version = v
		}
		return txErr
	}, defaultBusyRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to create model version: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) insertNextVersion(name, runID, source string) (*models.ModelVersion, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(version), 0) + 1 FROM model_versions WHERE name = ?`, name).Scan(&next); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	version := &models.ModelVersion{
		Name:      name,
		Version:   next,
		RunID:     runID,
		Source:    source,
		Stage:     models.StageNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(version)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model version: %w", err)
	}

	_, err = tx.Exec(`INSERT INTO model_versions (name, version, run_id, stage, data) VALUES (?, ?, ?, ?, ?)`,
		version.Name, version.Version, version.RunID, version.Stage, string(data))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return version, nil
}

// GetModelVersion retrieves one version of a registered model
func (s *SQLiteStore) GetModelVersion(name string, version int) (*models.ModelVersion, error) {
	var data string
	err := s.db.QueryRow(`SELECT data FROM model_versions WHERE name = ? AND version = ?`, name, version).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s version %d", models.ErrVersionNotFound, name, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model version: %w", err)
	}
	return unmarshalVersion(data)
}

// ListModelVersions lists every version of name, oldest first
func (s *SQLiteStore) ListModelVersions(name string) ([]*models.ModelVersion, error) {
	rows, err := s.db.Query(`SELECT data FROM model_versions WHERE name = ? ORDER BY version ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	defer rows.Close()

	versions := make([]*models.ModelVersion, 0)
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan model version: %w", err)
		}
		v, err := unmarshalVersion(data)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	return versions, nil
}

// LatestVersions returns the newest version per stage
func (s *SQLiteStore) LatestVersions(name string, stages ...models.Stage) ([]*models.ModelVersion, error) {
	all, err := s.ListModelVersions(name)
	if err != nil {
		return nil, err
	}

	wanted := make(map[models.Stage]bool, len(stages))
	for _, st := range stages {
		wanted[st] = true
	}

	latest := make(map[models.Stage]*models.ModelVersion)
	var order []models.Stage
	for _, v := range all {
		if len(wanted) > 0 && !wanted[v.Stage] {
			continue
		}
		if _, seen := latest[v.Stage]; !seen {
			order = append(order, v.Stage)
		}
		latest[v.Stage] = v
	}

	out := make([]*models.ModelVersion, 0, len(order))
	for _, st := range order {
		out = append(out, latest[st])
	}
	return out, nil
}

// TransitionStage moves a version to stage
func (s *SQLiteStore) TransitionStage(name string, version int, stage models.Stage) (*models.ModelVersion, error) {
	if _, err := models.ParseStage(string(stage)); err != nil {
		return nil, err
	}
	v, err := s.GetModelVersion(name, version)
	if err != nil {
		return nil, err
	}

	v.Stage = stage
	v.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model version: %w", err)
	}

	err = s.retryOnBusy(func() error {
		_, execErr := s.db.Exec(`UPDATE model_versions SET stage = ?, data = ? WHERE name = ? AND version = ?`,
			v.Stage, string(data), v.Name, v.Version)
		return execErr
	}, defaultBusyRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to transition %s version %d: %w", name, version, err)
	}
	return v, nil
}

// DownloadArtifact reads the artifact bytes a version points at
func (s *SQLiteStore) DownloadArtifact(version *models.ModelVersion) ([]byte, error) {
	data, err := os.ReadFile(version.Source)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("artifact of %s is missing at %s", version.URI(), version.Source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact of %s: %w", version.URI(), err)
	}
	return data, nil
}

func unmarshalVersion(data string) (*models.ModelVersion, error) {
	var v models.ModelVersion
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model version: %w", err)
	}
	return &v, nil
}
