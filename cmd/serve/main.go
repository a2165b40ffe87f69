package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/api"
	"github.com/mimir-aip/iris-mlops/pkg/config"
	"github.com/mimir-aip/iris-mlops/pkg/logging"
	"github.com/mimir-aip/iris-mlops/pkg/serving"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}
	logger := logging.Must(cfg.Logging, "serve")
	defer logger.Sync()

	logger.Info("Starting prediction API", zap.String("environment", cfg.Environment))

	svc, err := serving.LoadService(cfg.ModelPath, logger)
	if err != nil {
		logger.Fatal("Failed to load model", zap.Error(err))
	}

	server := api.NewServer(svc, cfg.Port, logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server stopped", zap.Int64("total_predictions", svc.TotalPredictions()))
}
