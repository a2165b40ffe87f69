package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/config"
	"github.com/mimir-aip/iris-mlops/pkg/logging"
	"github.com/mimir-aip/iris-mlops/pkg/mlmodel"
	"github.com/mimir-aip/iris-mlops/pkg/models"
	"github.com/mimir-aip/iris-mlops/pkg/tracking"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Must(cfg.Logging, "tune")
	defer logger.Sync()

	space := mlmodel.DefaultSearchSpace()
	search := mlmodel.SearchConfig{
		TestSize:    models.DefaultTestSize,
		RandomState: models.DefaultRandomState,
	}
	flag.IntVar(&search.Trials, "trials", mlmodel.DefaultTrials, "number of trials")
	flag.Float64Var(&space.CMin, "c-min", space.CMin, "lower bound of C")
	flag.Float64Var(&space.CMax, "c-max", space.CMax, "upper bound of C")
	kernels := flag.String("kernels", "linear,rbf", "comma separated kernels to sample")
	seed := flag.Int64("seed", models.DefaultRandomState, "sampler seed")
	flag.StringVar(&search.DataPath, "data", cfg.DataPath, "path of the prepared dataset")
	flag.StringVar(&search.Experiment, "experiment", cfg.ExperimentName, "experiment name")
	flag.Parse()

	space.Kernels = nil
	for _, k := range strings.Split(*kernels, ",") {
		if k = strings.TrimSpace(k); k != "" {
			space.Kernels = append(space.Kernels, models.Kernel(k))
		}
	}
	search.Space = space
	search.Sampler = mlmodel.NewRandomSampler(*seed)

	store, err := tracking.NewSQLiteStore(cfg.TrackingDir)
	if err != nil {
		logger.Fatal("Failed to open tracking store", zap.Error(err))
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trainer := mlmodel.NewService(store, store, cfg.ModelPath, logger)
	result, err := trainer.Search(ctx, search)
	if err != nil {
		completed := 0
		if result != nil {
			completed = len(result.Trials)
		}
		logger.Fatal("Search failed", zap.Error(err), zap.Int("completed_trials", completed))
	}

	fmt.Printf("Best trial: %d\n", result.Best.Number)
	fmt.Printf("  value (f1_macro): %.4f\n", result.Best.Value)
	fmt.Printf("  C: %g\n", result.Best.Params.C)
	fmt.Printf("  kernel: %s\n", result.Best.Params.Kernel)
	fmt.Printf("  run: %s\n", result.Best.RunID)
}
