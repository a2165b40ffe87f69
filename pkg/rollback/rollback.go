// Package rollback reinstalls a registered model version as the canonical artifact.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/mlmodel/training"
	"github.com/mimir-aip/iris-mlops/pkg/models"
	"github.com/mimir-aip/iris-mlops/pkg/tracking"
)

// Steps, in the order they run
const (
	StepLookup   = "lookup"
	StepDownload = "download"
	StepVerify   = "verify"
	StepBackup   = "backup"
	StepInstall  = "install"
	StepPromote  = "promote"
)

// Tool performs rollbacks against one registry and one canonical path
type Tool struct {
	registry   tracking.Registry
	modelPath  string
	backupPath string
	logger     *zap.Logger
}

// NewTool creates a rollback tool. backupPath defaults to modelPath + ".backup".
func NewTool(registry tracking.Registry, modelPath, backupPath string, logger *zap.Logger) *Tool {
	if backupPath == "" {
		backupPath = modelPath + ".backup"
	}
	return &Tool{
		registry:   registry,
		modelPath:  modelPath,
		backupPath: backupPath,
		logger:     logger.Named("rollback"),
	}
}

// Result describes a completed rollback
type Result struct {
	ModelName string
	Version   *models.ModelVersion
	ModelPath string
	// BackupPath is empty when there was no canonical artifact to back up
	BackupPath string
	Archived   []int
	// Warning is set when the artifact was installed but the registry stages could not be updated
	Warning error
}

// Run installs version of name at the canonical path. The previous artifact, if any,
// is copied to the backup path first. Lookup, download, verification, backup and
// install failures are returned as errors and leave the canonical path untouched up
// to the failing step. Stage bookkeeping failures only produce Result.Warning.
func (t *Tool) Run(ctx context.Context, name string, version int) (*Result, error) {
	if t.registry == nil {
		return nil, fmt.Errorf("%w: no registry configured", models.ErrRegistryUnavailable)
	}
	if version <= 0 {
		return nil, &models.ConfigurationError{Field: "version", Value: fmt.Sprint(version), Reason: "must be a positive integer"}
	}

	log := t.logger.With(zap.String("model", name), zap.Int("version", version))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info("Looking up model version", zap.String("step", StepLookup))
	target, err := t.registry.GetModelVersion(name, version)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s version %d: %w", name, version, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info("Downloading artifact", zap.String("step", StepDownload), zap.String("source", target.Source))
	data, err := t.registry.DownloadArtifact(target)
	if err != nil {
		return nil, fmt.Errorf("failed to download artifact: %w", err)
	}

	log.Info("Verifying artifact", zap.String("step", StepVerify), zap.Int("size_bytes", len(data)))
	if _, err := training.Decode(data); err != nil {
		return nil, fmt.Errorf("artifact of %s is not a loadable model: %w", target.URI(), err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &Result{ModelName: name, Version: target, ModelPath: t.modelPath}

	backedUp, err := t.backup()
	if err != nil {
		return nil, err
	}
	if backedUp {
		result.BackupPath = t.backupPath
		log.Info("Backed up current model", zap.String("step", StepBackup), zap.String("backup_path", t.backupPath))
	} else {
		log.Info("No current model to back up", zap.String("step", StepBackup))
	}

	if err := os.MkdirAll(filepath.Dir(t.modelPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	if err := os.WriteFile(t.modelPath, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to install artifact: %w", err)
	}
	log.Info("Installed model", zap.String("step", StepInstall), zap.String("model_path", t.modelPath))

	archived, err := t.promote(name, version)
	result.Archived = archived
	if err != nil {
		result.Warning = err
		log.Warn("Registry stages not updated", zap.String("step", StepPromote), zap.Error(err))
	} else {
		log.Info("Promoted to Production", zap.String("step", StepPromote), zap.Ints("archived", archived))
	}

	return result, nil
}

// backup copies the canonical artifact to the backup path, replacing any older backup
func (t *Tool) backup() (bool, error) {
	current, err := os.ReadFile(t.modelPath)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read current model: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.backupPath), 0755); err != nil {
		return false, fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := os.WriteFile(t.backupPath, current, 0644); err != nil {
		return false, fmt.Errorf("failed to write backup: %w", err)
	}
	return true, nil
}

// promote archives every other Production version, then moves the target to Production
func (t *Tool) promote(name string, version int) ([]int, error) {
	versions, err := t.registry.ListModelVersions(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrRegistryUnavailable, err)
	}

	var archived []int
	var errs []error
	for _, v := range versions {
		if v.Stage != models.StageProduction || v.Version == version {
			continue
		}
		if _, err := t.registry.TransitionStage(name, v.Version, models.StageArchived); err != nil {
			errs = append(errs, fmt.Errorf("archive version %d: %w", v.Version, err))
			continue
		}
		archived = append(archived, v.Version)
	}

	if _, err := t.registry.TransitionStage(name, version, models.StageProduction); err != nil {
		errs = append(errs, fmt.Errorf("promote version %d: %w", version, err))
	}

	if len(errs) > 0 {
		return archived, errors.Join(errs...)
	}
	return archived, nil
}
