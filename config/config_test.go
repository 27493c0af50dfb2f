package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/blockfs/fatro/config"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "fatro.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, config.Default().Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
cache_sectors: 128
partition: 2
output_format: csv
max_memory_bytes: 1048576
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat, "unset fields should keep defaults")
	assert.EqualValues(t, 128, cfg.CacheSectors)
	assert.Equal(t, 2, cfg.Partition)
	assert.Equal(t, "csv", cfg.OutputFormat)
	assert.EqualValues(t, 1048576, cfg.MaxMemoryBytes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := config.Load(writeConfig(t, "log_level: [unterminated\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"log format", func(c *config.Config) { c.LogFormat = "xml" }},
		{"output format", func(c *config.Config) { c.OutputFormat = "html" }},
		{"partition", func(c *config.Config) { c.Partition = -1 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := config.Default()
			test.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		t.Run(format, func(t *testing.T) {
			cfg := config.Default()
			cfg.LogFormat = format
			cfg.LogLevel = "info"

			log, err := config.NewLogger(cfg)
			require.NoError(t, err)
			assert.True(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
			assert.False(t, log.Desugar().Core().Enabled(zapcore.DebugLevel))
		})
	}
}

func TestNewLoggerRejectsBadLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "chatty"
	_, err := config.NewLogger(cfg)
	assert.Error(t, err)
}
