package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read when IRIS_CONFIG is not set and the file exists
const DefaultConfigFile = "config.yaml"

// Config holds the application configuration
type Config struct {
	Environment     string        `yaml:"environment"`
	Port            string        `yaml:"port"`
	DataPath        string        `yaml:"data_path"`
	ModelPath       string        `yaml:"model_path"`
	BackupPath      string        `yaml:"backup_path"`
	TrackingDir     string        `yaml:"tracking_dir"`
	ExperimentName  string        `yaml:"experiment_name"`
	RegisteredModel string        `yaml:"registered_model"`
	ShutdownTimeout int           `yaml:"shutdown_timeout_seconds"`
	Logging         LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// LoadConfig loads configuration from an optional YAML file, then environment variables
func LoadConfig() (*Config, error) {
	config := defaultConfig()

	path := getEnv("IRIS_CONFIG", "")
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}

	config.Environment = getEnv("ENVIRONMENT", config.Environment)
	config.Port = getEnv("PORT", config.Port)
	config.DataPath = getEnv("DATA_PATH", config.DataPath)
	config.ModelPath = getEnv("MODEL_PATH", config.ModelPath)
	config.BackupPath = getEnv("BACKUP_PATH", config.BackupPath)
	config.TrackingDir = getEnv("TRACKING_DIR", config.TrackingDir)
	config.ExperimentName = getEnv("EXPERIMENT_NAME", config.ExperimentName)
	config.RegisteredModel = getEnv("REGISTERED_MODEL", config.RegisteredModel)
	config.ShutdownTimeout = getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", config.ShutdownTimeout)
	config.Logging.Level = getEnv("LOG_LEVEL", config.Logging.Level)
	config.Logging.Format = getEnv("LOG_FORMAT", config.Logging.Format)
	config.Logging.FilePath = getEnv("LOG_FILE", config.Logging.FilePath)
	config.Logging.MaxSize = getEnvAsInt("LOG_MAX_SIZE_MB", config.Logging.MaxSize)
	config.Logging.MaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", config.Logging.MaxBackups)
	config.Logging.MaxAge = getEnvAsInt("LOG_MAX_AGE_DAYS", config.Logging.MaxAge)

	// The backup always sits next to the canonical artifact unless set explicitly
	if config.BackupPath == "" {
		config.BackupPath = config.ModelPath + ".backup"
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Environment:     "development",
		Port:            "8000",
		DataPath:        filepath.Join("data", "raw", "iris.csv"),
		ModelPath:       filepath.Join("models", "best_model.gob"),
		TrackingDir:     "mlruns",
		ExperimentName:  "iris-mlflow-runs",
		RegisteredModel: "iris-model",
		ShutdownTimeout: 10,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
	}
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if c.DataPath == "" {
		return fmt.Errorf("DATA_PATH is required")
	}
	if c.BackupPath == c.ModelPath {
		return fmt.Errorf("BACKUP_PATH must differ from MODEL_PATH")
	}
	if port, err := strconv.Atoi(c.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("PORT must be a valid TCP port, got %q", c.Port)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
