package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/config"
	"github.com/mimir-aip/iris-mlops/pkg/logging"
	"github.com/mimir-aip/iris-mlops/pkg/rollback"
	"github.com/mimir-aip/iris-mlops/pkg/tracking"
)

const usage = "usage: rollback <target_version> [model_name]"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(os.Stderr, usage)
		return 1
	}
	version, err := strconv.Atoi(args[0])
	if err != nil || version <= 0 {
		fmt.Fprintf(os.Stderr, "invalid target version %q: must be a positive integer\n%s\n", args[0], usage)
		return 1
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger := logging.Must(cfg.Logging, "rollback")
	defer logger.Sync()

	name := cfg.RegisteredModel
	if len(args) == 2 {
		name = args[1]
	}

	store, err := tracking.NewSQLiteStore(cfg.TrackingDir)
	if err != nil {
		logger.Error("Failed to open model registry", zap.Error(err))
		return 1
	}
	defer store.Close()

	tool := rollback.NewTool(store, cfg.ModelPath, cfg.BackupPath, logger)
	result, err := tool.Run(context.Background(), name, version)
	if err != nil {
		logger.Error("Rollback failed", zap.Error(err))
		return 1
	}

	fmt.Printf("Rolled back %s to version %d (run %s)\n", name, result.Version.Version, result.Version.RunID)
	fmt.Printf("  installed: %s\n", result.ModelPath)
	if result.BackupPath != "" {
		fmt.Printf("  previous model backed up to: %s\n", result.BackupPath)
	}
	if result.Warning != nil {
		fmt.Printf("  warning: registry stages not updated: %v\n", result.Warning)
	}
	fmt.Println("Restart the prediction API to serve the new model.")
	return 0
}
