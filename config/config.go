// Package config holds the settings of the fatro command-line tool and builds
// its logger.
package config

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration file. Command-line flags override it.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// CacheSectors keeps this many sectors from the start of a volume in
	// memory. 0 disables the cache.
	CacheSectors uint `yaml:"cache_sectors"`
	// Partition is the 1-based partition to mount, or 0 for the whole image.
	Partition    int    `yaml:"partition"`
	OutputFormat string `yaml:"output_format"`
	// MaxMemoryBytes caps the driver's buffer allocations. 0 is unlimited.
	MaxMemoryBytes uint64 `yaml:"max_memory_bytes"`
}

var (
	logFormats    = []string{"console", "json"}
	outputFormats = []string{"text", "csv", "json", "yaml"}
)

func Default() Config {
	return Config{
		LogLevel:     "warn",
		LogFormat:    "console",
		OutputFormat: "text",
	}
}

// Load reads the file at `path` over the defaults. Fields absent from the file
// keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (cfg Config) Validate() error {
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}
	if !oneOf(cfg.LogFormat, logFormats) {
		return fmt.Errorf(
			"invalid log_format %q (supported: %s)",
			cfg.LogFormat,
			strings.Join(logFormats, ", "))
	}
	if !oneOf(cfg.OutputFormat, outputFormats) {
		return fmt.Errorf(
			"invalid output_format %q (supported: %s)",
			cfg.OutputFormat,
			strings.Join(outputFormats, ", "))
	}
	if cfg.Partition < 0 {
		return fmt.Errorf("invalid partition %d: must be 0 or greater", cfg.Partition)
	}
	return nil
}

func oneOf(value string, choices []string) bool {
	for _, choice := range choices {
		if value == choice {
			return true
		}
	}
	return false
}

// NewLogger builds a logger writing to stderr at the configured level.
func NewLogger(cfg Config) (*zap.SugaredLogger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log_level %q: %w", cfg.LogLevel, err)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(level)
	zapConfig.Encoding = cfg.LogFormat
	zapConfig.Sampling = nil
	if cfg.LogFormat == "console" {
		zapConfig.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}
