package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/mimir-aip/iris-mlops/pkg/config"
)

func TestNewWritesToFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "iris.log")

	logger, err := New(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		FilePath:   logPath,
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	}, "test")
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	logger.Info("hello", zap.Int("answer", 42))
	logger.Debug("filtered out")
	_ = logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `"msg":"hello"`) {
		t.Errorf("Expected info message in log file, got %s", content)
	}
	if !strings.Contains(content, `"service":"test"`) {
		t.Errorf("Expected service field in log file, got %s", content)
	}
	if strings.Contains(content, "filtered out") {
		t.Error("Debug message should be filtered at info level")
	}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}, ""); err == nil {
		t.Error("Expected error for invalid level")
	}
	if _, err := New(config.LoggingConfig{Level: "info", Format: "xml"}, ""); err == nil {
		t.Error("Expected error for invalid format")
	}
}

func TestCronLogger(t *testing.T) {
	l := CronLogger(zap.NewNop())
	// Must not panic with odd key/value counts
	l.Info("tick", "entry")
	l.Error(errors.New("boom"), "job failed", "entry", 1)
}
