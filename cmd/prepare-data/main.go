package main

import (
	"flag"
	"fmt"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/config"
	"github.com/mimir-aip/iris-mlops/pkg/dataset"
	"github.com/mimir-aip/iris-mlops/pkg/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Must(cfg.Logging, "prepare-data")
	defer logger.Sync()

	name := flag.String("dataset", dataset.IrisDatasetName, "name of the reference dataset")
	out := flag.String("out", cfg.DataPath, "output CSV path")
	flag.Parse()

	provider := dataset.NewProvider(dataset.NewEmbeddedSource(), logger)
	ds, err := provider.Prepare(*name, *out)
	if err != nil {
		logger.Fatal("Failed to prepare dataset", zap.Error(err))
	}

	fmt.Printf("Saved %d rows to %s\n", ds.Len(), *out)
}
