// Package config provides centralized configuration management for the trade downloader.
// Configuration is layered: built-in defaults, an optional YAML file, a .env file, and
// finally process environment variables (highest priority). Per-invocation inputs such
// as the ticker, date and API key come from the command line, not from here.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment variable the loader reads.
const EnvPrefix = "TRADES_"

// AppConfig represents the complete application configuration
type AppConfig struct {
	AppName string `yaml:"app_name"`
	Version string `yaml:"version"`

	// Provider configuration
	Provider ProviderConfig `yaml:"provider"`

	// Defaults for per-run download parameters
	Download DownloadConfig `yaml:"download"`

	// Output file configuration
	Output OutputConfig `yaml:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`
}

// ProviderConfig configures the REST data provider client
type ProviderConfig struct {
	BaseURL   string  `yaml:"base_url"`   // Scheme and host of the provider API
	Timeout   string  `yaml:"timeout"`    // Per-request HTTP timeout
	RateLimit float64 `yaml:"rate_limit"` // Requests per second allowed by the provider plan, 0 disables pacing
	UserAgent string  `yaml:"user_agent"` // User-Agent header sent with every request
}

// DownloadConfig holds defaults for flags the user did not set
type DownloadConfig struct {
	Limit int    `yaml:"limit"` // Results per page
	Sort  string `yaml:"sort"`  // timestamp.asc or timestamp.desc
}

// OutputConfig configures the CSV writer
type OutputConfig struct {
	SchemaPolicy string `yaml:"schema_policy"` // first or union
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level         string            `yaml:"level"`          // Log level: debug, info, warn, error
	Format        string            `yaml:"format"`         // Log format: json, text
	Output        string            `yaml:"output"`         // Output: stdout, stderr, file
	FilePath      string            `yaml:"file_path"`      // Log file path
	MaxSize       int               `yaml:"max_size"`       // Maximum log file size in MB
	MaxBackups    int               `yaml:"max_backups"`    // Maximum log file backups
	MaxAge        int               `yaml:"max_age"`        // Maximum log file age in days
	Compress      bool              `yaml:"compress"`       // Compress old log files
	ContextFields map[string]string `yaml:"context_fields"` // Additional context fields
}

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	envPath    string
	dotenv     map[string]string
	logger     *slog.Logger
}

// NewConfigManager creates a new configuration manager. An empty configPath or
// envPath skips that layer.
func NewConfigManager(configPath, envPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		envPath:    envPath,
		logger:     logger,
	}
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables (highest priority)
// 2. .env file
// 3. YAML configuration file
// 4. Default values (lowest priority)
func (cm *ConfigManager) LoadConfig(ctx context.Context) (*AppConfig, error) {
	config := DefaultConfig()

	if cm.configPath != "" {
		if err := cm.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if cm.envPath != "" {
		if err := cm.loadDotenv(); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", cm.envPath, err)
		}
	}

	if err := cm.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cm.validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.config = config
	cm.logger.DebugContext(ctx, "configuration loaded",
		"config_path", cm.configPath,
		"base_url", config.Provider.BaseURL,
		"log_level", config.Logging.Level)

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func (cm *ConfigManager) loadFromFile(config *AppConfig) error {
	data, err := os.ReadFile(cm.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", cm.configPath, err)
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

// loadDotenv reads the .env file without touching the process environment.
func (cm *ConfigManager) loadDotenv() error {
	values, err := godotenv.Read(cm.envPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	cm.dotenv = values
	return nil
}

// lookupEnv returns the process environment value, falling back to the .env file.
func (cm *ConfigManager) lookupEnv(name string) string {
	key := EnvPrefix + name
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return cm.dotenv[key]
}

// loadFromEnv loads configuration from environment variables
func (cm *ConfigManager) loadFromEnv(config *AppConfig) error {
	var problems []string

	if val := cm.lookupEnv("BASE_URL"); val != "" {
		config.Provider.BaseURL = val
	}
	if val := cm.lookupEnv("HTTP_TIMEOUT"); val != "" {
		config.Provider.Timeout = val
	}
	if val := cm.lookupEnv("RATE_LIMIT"); val != "" {
		rateLimit, err := strconv.ParseFloat(val, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%sRATE_LIMIT: %v", EnvPrefix, err))
		} else {
			config.Provider.RateLimit = rateLimit
		}
	}
	if val := cm.lookupEnv("USER_AGENT"); val != "" {
		config.Provider.UserAgent = val
	}

	if val := cm.lookupEnv("DEFAULT_LIMIT"); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%sDEFAULT_LIMIT: %v", EnvPrefix, err))
		} else {
			config.Download.Limit = limit
		}
	}
	if val := cm.lookupEnv("DEFAULT_SORT"); val != "" {
		config.Download.Sort = val
	}

	if val := cm.lookupEnv("SCHEMA_POLICY"); val != "" {
		config.Output.SchemaPolicy = val
	}

	if val := cm.lookupEnv("LOG_LEVEL"); val != "" {
		config.Logging.Level = strings.ToLower(val)
	}
	if val := cm.lookupEnv("LOG_FORMAT"); val != "" {
		config.Logging.Format = strings.ToLower(val)
	}
	if val := cm.lookupEnv("LOG_OUTPUT"); val != "" {
		config.Logging.Output = strings.ToLower(val)
	}
	if val := cm.lookupEnv("LOG_FILE_PATH"); val != "" {
		config.Logging.FilePath = val
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid environment values: %s", strings.Join(problems, "; "))
	}
	return nil
}

// validateConfig validates the configuration for consistency and required fields
func (cm *ConfigManager) validateConfig(config *AppConfig) error {
	var errors []string

	if config.Provider.BaseURL == "" {
		errors = append(errors, "provider.base_url is required")
	} else if !strings.HasPrefix(config.Provider.BaseURL, "http://") && !strings.HasPrefix(config.Provider.BaseURL, "https://") {
		errors = append(errors, "provider.base_url must start with http:// or https://")
	}
	if timeout, err := time.ParseDuration(config.Provider.Timeout); err != nil {
		errors = append(errors, fmt.Sprintf("provider.timeout is not a valid duration: %v", err))
	} else if timeout <= 0 {
		errors = append(errors, "provider.timeout must be greater than 0")
	}
	if config.Provider.RateLimit < 0 {
		errors = append(errors, "provider.rate_limit must not be negative")
	}

	if config.Download.Limit <= 0 {
		errors = append(errors, "download.limit must be greater than 0")
	}
	validSorts := map[string]bool{"timestamp.asc": true, "timestamp.desc": true}
	if !validSorts[config.Download.Sort] {
		errors = append(errors, "download.sort must be one of: timestamp.asc, timestamp.desc")
	}

	validPolicies := map[string]bool{"first": true, "union": true}
	if !validPolicies[config.Output.SchemaPolicy] {
		errors = append(errors, "output.schema_policy must be one of: first, union")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[config.Logging.Level] {
		errors = append(errors, "logging.level must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[config.Logging.Format] {
		errors = append(errors, "logging.format must be one of: json, text")
	}

	validLogOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validLogOutputs[config.Logging.Output] {
		errors = append(errors, "logging.output must be one of: stdout, stderr, file")
	}
	if config.Logging.Output == "file" && config.Logging.FilePath == "" {
		errors = append(errors, "logging.file_path is required when logging.output is file")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "go-futures-trades",
		Version: "1.0.0",
		Provider: ProviderConfig{
			BaseURL:   "https://api.polygon.io",
			Timeout:   "60s",
			RateLimit: 0,
			UserAgent: "go-futures-trades/1.0",
		},
		Download: DownloadConfig{
			Limit: 50000,
			Sort:  "timestamp.desc",
		},
		Output: OutputConfig{
			SchemaPolicy: "first",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   "",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
		},
	}
}

// RequestTimeout returns the parsed provider timeout. Callers rely on
// validateConfig having accepted the value.
func (c ProviderConfig) RequestTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.Timeout)
	if err != nil || timeout <= 0 {
		return 60 * time.Second
	}
	return timeout
}

// String returns a YAML representation of the configuration
func (c *AppConfig) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}
