package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/config"
	"github.com/mimir-aip/iris-mlops/pkg/logging"
	"github.com/mimir-aip/iris-mlops/pkg/mlmodel"
	"github.com/mimir-aip/iris-mlops/pkg/models"
	"github.com/mimir-aip/iris-mlops/pkg/scheduler"
	"github.com/mimir-aip/iris-mlops/pkg/tracking"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Must(cfg.Logging, "train")
	defer logger.Sync()

	params := models.DefaultTrainingParams()
	model := flag.String("model", string(params.Model), "model kind: logreg or svm")
	kernel := flag.String("kernel", string(params.Kernel), "svm kernel: linear, rbf or poly")
	flag.StringVar(&params.DataPath, "data", cfg.DataPath, "path of the prepared dataset")
	flag.StringVar(&params.Experiment, "experiment", cfg.ExperimentName, "experiment name")
	flag.Float64Var(&params.C, "C", params.C, "inverse regularisation strength")
	flag.Float64Var(&params.TestSize, "test_size", params.TestSize, "held-out fraction")
	flag.Int64Var(&params.RandomState, "random_state", params.RandomState, "seed for split and estimator")
	flag.StringVar(&params.RegisteredModel, "register", "", "register the run under this model name")
	schedule := flag.String("schedule", "", "retrain on this cron schedule instead of once")
	flag.Parse()
	params.Model = models.ModelKind(*model)
	params.Kernel = models.Kernel(*kernel)

	store, err := tracking.NewSQLiteStore(cfg.TrackingDir)
	if err != nil {
		logger.Fatal("Failed to open tracking store", zap.Error(err))
	}
	defer store.Close()

	trainer := mlmodel.NewService(store, store, cfg.ModelPath, logger)

	if *schedule != "" {
		runScheduled(trainer, params, *schedule, logger)
		return
	}

	result, err := trainer.Train(context.Background(), params)
	if err != nil {
		logger.Fatal("Training failed", zap.Error(err))
	}

	fmt.Printf("Run %s (%s)\n", result.Run.ID, result.Run.Name)
	fmt.Printf("  accuracy: %.4f\n", result.Metrics.Accuracy)
	fmt.Printf("  f1_macro: %.4f\n", result.Metrics.F1Macro)
	fmt.Printf("  artifact: %s\n", result.ArtifactURI)
	if result.ModelVersion != nil {
		fmt.Printf("  registered: %s\n", result.ModelVersion.URI())
	}
	fmt.Printf("Model saved to %s\n", result.ModelPath)
}

// runScheduled retrains on schedule until interrupted
func runScheduled(trainer *mlmodel.Service, params models.TrainingParams, schedule string, logger *zap.Logger) {
	sched := scheduler.NewService(trainer, logger)
	job, err := sched.Create(&models.ScheduledJobCreateRequest{
		Name:     params.RunName(),
		Schedule: schedule,
		Params:   params,
		Enabled:  true,
	})
	if err != nil {
		logger.Fatal("Failed to schedule training", zap.Error(err))
	}
	sched.Start()
	logger.Info("Waiting for scheduled runs", zap.String("job_id", job.ID), zap.Timep("next_run", job.NextRun))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Stopping scheduler, waiting for the running job")
	<-sched.Stop().Done()
}
