package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ratelimiter/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// legacyConfig mirrors the millisecond option names accepted by older releases.
type legacyConfig struct {
	RateLimit struct {
		WindowMs *int64 `yaml:"window_ms"`
		DelayMs  *int64 `yaml:"delay_ms"`
	} `yaml:"rate_limit"`
}

// applyLegacyKeys maps millisecond keys onto their duration equivalents and logs
// a warning for each. An explicit duration key in the same file wins.
func applyLegacyKeys(config *models.Config, data []byte) {
	var legacy legacyConfig
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return
	}
	if legacy.RateLimit.WindowMs != nil {
		slog.Warn("Config key is deprecated; use a duration such as 60s instead.", "config_key", "rate_limit.window_ms", "replacement", "rate_limit.window")
		config.RateLimit.Window = time.Duration(*legacy.RateLimit.WindowMs) * time.Millisecond
	}
	if legacy.RateLimit.DelayMs != nil {
		slog.Warn("Config key is deprecated; use a duration such as 1s instead.", "config_key", "rate_limit.delay_ms", "replacement", "rate_limit.delay_unit")
		config.RateLimit.DelayUnit = time.Duration(*legacy.RateLimit.DelayMs) * time.Millisecond
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	applyLegacyKeys(config, data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("RATELIMITER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("RATELIMITER_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("RATELIMITER_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("RATELIMITER_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if tls := os.Getenv("RATELIMITER_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}

	if certFile := os.Getenv("RATELIMITER_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}

	if keyFile := os.Getenv("RATELIMITER_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	// Upstream configuration
	if upstream := os.Getenv("RATELIMITER_UPSTREAM_URL"); upstream != "" {
		config.Upstream.URL = upstream
	}

	// Rate limit configuration
	if enabled := os.Getenv("RATELIMITER_ENABLED"); enabled != "" {
		config.RateLimit.Enabled = strings.ToLower(enabled) == "true"
	}

	if window := os.Getenv("RATELIMITER_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			config.RateLimit.Window = d
		}
	}

	if delayAfter := os.Getenv("RATELIMITER_DELAY_AFTER"); delayAfter != "" {
		if n, err := strconv.ParseUint(delayAfter, 10, 64); err == nil {
			config.RateLimit.DelayAfter = n
		}
	}

	if delayUnit := os.Getenv("RATELIMITER_DELAY_UNIT"); delayUnit != "" {
		if d, err := time.ParseDuration(delayUnit); err == nil {
			config.RateLimit.DelayUnit = d
		}
	}

	if max := os.Getenv("RATELIMITER_MAX"); max != "" {
		if n, err := strconv.ParseUint(max, 10, 64); err == nil {
			config.RateLimit.Max = n
		}
	}

	if status := os.Getenv("RATELIMITER_STATUS_CODE"); status != "" {
		if code, err := strconv.Atoi(status); err == nil {
			config.RateLimit.StatusCode = code
		}
	}

	if message := os.Getenv("RATELIMITER_MESSAGE"); message != "" {
		config.RateLimit.Message = message
	}

	// Security configuration
	if auth := os.Getenv("RATELIMITER_ENABLE_AUTH"); auth != "" {
		config.Security.EnableAuth = strings.ToLower(auth) == "true"
	}

	if trust := os.Getenv("RATELIMITER_TRUST_PROXY_HEADERS"); trust != "" {
		config.Security.TrustProxyHeaders = strings.ToLower(trust) == "true"
	}

	// An admin key from the environment is appended to any file-declared keys
	if adminKey := os.Getenv("RATELIMITER_ADMIN_KEY"); adminKey != "" {
		config.Security.APIKeys = append(config.Security.APIKeys, models.APIKeyConfig{
			Name:        "env-admin",
			Key:         adminKey,
			Permissions: []string{models.PermissionAdmin},
			Enabled:     true,
		})
	}

	// Storage configuration
	if storageType := os.Getenv("RATELIMITER_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}

	if dsn := os.Getenv("RATELIMITER_DATABASE_DSN"); dsn != "" {
		config.Storage.Database.DSN = dsn
	}

	if maxOpen := os.Getenv("RATELIMITER_DATABASE_MAX_OPEN_CONNS"); maxOpen != "" {
		if conns, err := strconv.Atoi(maxOpen); err == nil {
			config.Storage.Database.MaxOpenConns = conns
		}
	}

	// Logging configuration
	if level := os.Getenv("RATELIMITER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("RATELIMITER_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("RATELIMITER_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("RATELIMITER_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("RATELIMITER_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("RATELIMITER_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("RATELIMITER_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Tracing configuration
	if tracing := os.Getenv("RATELIMITER_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}

	if exporter := os.Getenv("RATELIMITER_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.Upstream.URL = "http://localhost:3000"
	config.Security.EnableAuth = true
	config.Security.APIKeys = []models.APIKeyConfig{
		{
			Name:        "ops",
			KeyHash:     models.HashAPIKey("rl_replace-me"),
			Permissions: []string{models.PermissionAdmin},
			Enabled:     true,
		},
	}

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
