package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "go-futures-trades", config.AppName)
	assert.Equal(t, "https://api.polygon.io", config.Provider.BaseURL)
	assert.Equal(t, 60*time.Second, config.Provider.RequestTimeout())
	assert.Zero(t, config.Provider.RateLimit)
	assert.Equal(t, 50000, config.Download.Limit)
	assert.Equal(t, "timestamp.desc", config.Download.Sort)
	assert.Equal(t, "first", config.Output.SchemaPolicy)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "stderr", config.Logging.Output)
}

func TestConfigValidation(t *testing.T) {
	cm := NewConfigManager("", "", slog.Default())

	t.Run("valid config passes validation", func(t *testing.T) {
		assert.NoError(t, cm.validateConfig(DefaultConfig()))
	})

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		message string
	}{
		{"missing base url", func(c *AppConfig) { c.Provider.BaseURL = "" }, "provider.base_url is required"},
		{"base url without scheme", func(c *AppConfig) { c.Provider.BaseURL = "api.polygon.io" }, "provider.base_url must start with"},
		{"bad timeout", func(c *AppConfig) { c.Provider.Timeout = "soon" }, "provider.timeout is not a valid duration"},
		{"zero timeout", func(c *AppConfig) { c.Provider.Timeout = "0s" }, "provider.timeout must be greater than 0"},
		{"negative rate limit", func(c *AppConfig) { c.Provider.RateLimit = -1 }, "provider.rate_limit must not be negative"},
		{"zero limit", func(c *AppConfig) { c.Download.Limit = 0 }, "download.limit must be greater than 0"},
		{"unknown sort", func(c *AppConfig) { c.Download.Sort = "price.asc" }, "download.sort must be one of"},
		{"unknown schema policy", func(c *AppConfig) { c.Output.SchemaPolicy = "all" }, "output.schema_policy must be one of"},
		{"invalid log level", func(c *AppConfig) { c.Logging.Level = "trace" }, "logging.level must be one of"},
		{"invalid log format", func(c *AppConfig) { c.Logging.Format = "xml" }, "logging.format must be one of"},
		{"invalid log output", func(c *AppConfig) { c.Logging.Output = "syslog" }, "logging.output must be one of"},
		{"file output without path", func(c *AppConfig) { c.Logging.Output = "file" }, "logging.file_path is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := cm.validateConfig(config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}

	t.Run("reports every problem at once", func(t *testing.T) {
		config := DefaultConfig()
		config.Download.Limit = -5
		config.Logging.Format = "xml"
		err := cm.validateConfig(config)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "download.limit")
		assert.Contains(t, err.Error(), "logging.format")
	})
}

func TestLoadConfigFromFile(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "trades.yaml")

	content := `
provider:
  base_url: http://localhost:9999
  timeout: 5s
  rate_limit: 0.5
download:
  limit: 1000
  sort: timestamp.asc
output:
  schema_policy: union
logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	t.Run("loads config from file", func(t *testing.T) {
		cm := NewConfigManager(configPath, "", slog.Default())
		loaded, err := cm.LoadConfig(context.Background())
		require.NoError(t, err)

		assert.Equal(t, "http://localhost:9999", loaded.Provider.BaseURL)
		assert.Equal(t, 5*time.Second, loaded.Provider.RequestTimeout())
		assert.Equal(t, 0.5, loaded.Provider.RateLimit)
		assert.Equal(t, 1000, loaded.Download.Limit)
		assert.Equal(t, "timestamp.asc", loaded.Download.Sort)
		assert.Equal(t, "union", loaded.Output.SchemaPolicy)
		assert.Equal(t, "debug", loaded.Logging.Level)
		assert.Equal(t, "json", loaded.Logging.Format)
		// Untouched keys keep their defaults
		assert.Equal(t, "stderr", loaded.Logging.Output)
		assert.Same(t, loaded, cm.GetConfig())
	})

	t.Run("handles invalid yaml file", func(t *testing.T) {
		invalidPath := filepath.Join(tempDir, "invalid.yaml")
		require.NoError(t, os.WriteFile(invalidPath, []byte("provider: [unclosed"), 0644))

		cm := NewConfigManager(invalidPath, "", slog.Default())
		_, err := cm.LoadConfig(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config file")
	})

	t.Run("handles non-existent file gracefully", func(t *testing.T) {
		cm := NewConfigManager(filepath.Join(tempDir, "missing.yaml"), "", slog.Default())
		loaded, err := cm.LoadConfig(context.Background())
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Provider, loaded.Provider)
	})

	t.Run("rejects invalid values from file", func(t *testing.T) {
		badPath := filepath.Join(tempDir, "bad.yaml")
		require.NoError(t, os.WriteFile(badPath, []byte("download:\n  limit: 0\n"), 0644))

		cm := NewConfigManager(badPath, "", slog.Default())
		_, err := cm.LoadConfig(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "download.limit must be greater than 0")
	})
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("TRADES_BASE_URL", "http://127.0.0.1:8080")
	t.Setenv("TRADES_HTTP_TIMEOUT", "10s")
	t.Setenv("TRADES_RATE_LIMIT", "2")
	t.Setenv("TRADES_USER_AGENT", "tests/0.1")
	t.Setenv("TRADES_DEFAULT_LIMIT", "25")
	t.Setenv("TRADES_DEFAULT_SORT", "timestamp.asc")
	t.Setenv("TRADES_SCHEMA_POLICY", "union")
	t.Setenv("TRADES_LOG_LEVEL", "WARN")
	t.Setenv("TRADES_LOG_FORMAT", "json")
	t.Setenv("TRADES_LOG_OUTPUT", "stdout")

	cm := NewConfigManager("", "", slog.Default())
	config := DefaultConfig()
	require.NoError(t, cm.loadFromEnv(config))

	assert.Equal(t, "http://127.0.0.1:8080", config.Provider.BaseURL)
	assert.Equal(t, "10s", config.Provider.Timeout)
	assert.Equal(t, 2.0, config.Provider.RateLimit)
	assert.Equal(t, "tests/0.1", config.Provider.UserAgent)
	assert.Equal(t, 25, config.Download.Limit)
	assert.Equal(t, "timestamp.asc", config.Download.Sort)
	assert.Equal(t, "union", config.Output.SchemaPolicy)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "stdout", config.Logging.Output)
}

func TestLoadConfigFromEnvironmentInvalidNumbers(t *testing.T) {
	t.Setenv("TRADES_RATE_LIMIT", "fast")
	t.Setenv("TRADES_DEFAULT_LIMIT", "many")

	cm := NewConfigManager("", "", slog.Default())
	err := cm.loadFromEnv(DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRADES_RATE_LIMIT")
	assert.Contains(t, err.Error(), "TRADES_DEFAULT_LIMIT")
}

func TestLoadConfigFromDotenv(t *testing.T) {
	tempDir := t.TempDir()
	envPath := filepath.Join(tempDir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("TRADES_DEFAULT_LIMIT=777\nTRADES_LOG_LEVEL=debug\n"), 0644))

	t.Run("dotenv values apply", func(t *testing.T) {
		cm := NewConfigManager("", envPath, slog.Default())
		loaded, err := cm.LoadConfig(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 777, loaded.Download.Limit)
		assert.Equal(t, "debug", loaded.Logging.Level)
	})

	t.Run("process environment wins over dotenv", func(t *testing.T) {
		t.Setenv("TRADES_DEFAULT_LIMIT", "42")
		cm := NewConfigManager("", envPath, slog.Default())
		loaded, err := cm.LoadConfig(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 42, loaded.Download.Limit)
	})

	t.Run("missing dotenv is ignored", func(t *testing.T) {
		cm := NewConfigManager("", filepath.Join(tempDir, "nope.env"), slog.Default())
		_, err := cm.LoadConfig(context.Background())
		assert.NoError(t, err)
	})
}
