package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"ratelimiter/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 8081
  host: "localhost"
  read_timeout: 30s
  write_timeout: 90s
  idle_timeout: 60s
  cors:
    enabled: true
    allowed_origins: ["*"]
    allowed_methods: ["GET", "POST"]

upstream:
  url: "http://localhost:3000"

rate_limit:
  enabled: true
  window: 15m
  delay_after: 50
  delay_unit: 500ms
  max: 100
  status_code: 503
  message: "Slow down: {{.Limit}} per window"

security:
  enable_auth: true
  trust_proxy_headers: true
  api_keys:
    - name: "ops"
      key: "rl_test-key"
      permissions: ["admin"]
      enabled: true

storage:
  type: "sqlite"
  database:
    dsn: "/tmp/violations.db"
    max_open_conns: 4

logging:
  level: "debug"
  format: "text"
  output: "stderr"

metrics:
  enabled: true
  path: "/metrics"
  port: 9191

observability:
  service_name: "edge-limiter"
  tracing:
    enabled: true
    exporter: "stdout"
    sample_rate: 0.25
`)

	config, err := Load(configFile)
	require.NoError(t, err)
	require.NotNil(t, config)

	// Verify server config
	assert.Equal(t, 8081, config.Server.Port)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 90*time.Second, config.Server.WriteTimeout)
	assert.True(t, config.Server.CORS.Enabled)
	assert.Equal(t, []string{"GET", "POST"}, config.Server.CORS.AllowedMethods)

	// Verify upstream
	assert.Equal(t, "http://localhost:3000", config.Upstream.URL)

	// Verify rate limit config
	assert.True(t, config.RateLimit.Enabled)
	assert.Equal(t, 15*time.Minute, config.RateLimit.Window)
	assert.Equal(t, uint64(50), config.RateLimit.DelayAfter)
	assert.Equal(t, 500*time.Millisecond, config.RateLimit.DelayUnit)
	assert.Equal(t, uint64(100), config.RateLimit.Max)
	assert.Equal(t, 503, config.RateLimit.StatusCode)
	assert.Equal(t, "Slow down: {{.Limit}} per window", config.RateLimit.Message)

	// Verify security config
	assert.True(t, config.Security.EnableAuth)
	assert.True(t, config.Security.TrustProxyHeaders)
	require.Len(t, config.Security.APIKeys, 1)
	assert.Equal(t, "ops", config.Security.APIKeys[0].Name)
	assert.Equal(t, "rl_test-key", config.Security.APIKeys[0].Key)

	// Verify storage config
	assert.Equal(t, models.StorageTypeSQLite, config.Storage.Type)
	assert.Equal(t, "/tmp/violations.db", config.Storage.Database.DSN)
	assert.Equal(t, 4, config.Storage.Database.MaxOpenConns)

	// Verify logging config
	assert.Equal(t, "debug", config.Logging.Level)
	assert.Equal(t, "text", config.Logging.Format)
	assert.Equal(t, "stderr", config.Logging.Output)

	// Verify metrics and observability
	assert.Equal(t, 9191, config.Metrics.Port)
	assert.Equal(t, "edge-limiter", config.Observability.ServiceName)
	assert.True(t, config.Observability.Tracing.Enabled)
	assert.Equal(t, 0.25, config.Observability.Tracing.SampleRate)
}

func TestLoad_WithDefaults(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: 3000
`)

	config, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, 3000, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)             // Default
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout) // Default

	// Rate limit defaults
	assert.True(t, config.RateLimit.Enabled)
	assert.Equal(t, time.Minute, config.RateLimit.Window)
	assert.Equal(t, uint64(1), config.RateLimit.DelayAfter)
	assert.Equal(t, time.Second, config.RateLimit.DelayUnit)
	assert.Equal(t, uint64(5), config.RateLimit.Max)
	assert.Equal(t, 429, config.RateLimit.StatusCode)

	// Storage and security defaults
	assert.Equal(t, models.StorageTypeMemory, config.Storage.Type)
	assert.False(t, config.Security.EnableAuth)
	assert.Empty(t, config.Security.APIKeys)
	assert.Empty(t, config.Upstream.URL)
}

func TestLoad_NoConfigFile(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, models.NewDefaultConfig().RateLimit, config.RateLimit)
}

func TestLoad_WithEnvironmentVariables(t *testing.T) {
	t.Setenv("RATELIMITER_PORT", "9000")
	t.Setenv("RATELIMITER_HOST", "127.0.0.1")
	t.Setenv("RATELIMITER_UPSTREAM_URL", "https://api.internal")
	t.Setenv("RATELIMITER_WINDOW", "30s")
	t.Setenv("RATELIMITER_DELAY_AFTER", "0")
	t.Setenv("RATELIMITER_DELAY_UNIT", "250ms")
	t.Setenv("RATELIMITER_MAX", "42")
	t.Setenv("RATELIMITER_STATUS_CODE", "503")
	t.Setenv("RATELIMITER_TRUST_PROXY_HEADERS", "true")
	t.Setenv("RATELIMITER_ENABLE_AUTH", "true")
	t.Setenv("RATELIMITER_ADMIN_KEY", "rl_env-key")
	t.Setenv("RATELIMITER_LOG_LEVEL", "warn")
	t.Setenv("RATELIMITER_METRICS_ENABLED", "false")

	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, config.Server.Port)
	assert.Equal(t, "127.0.0.1", config.Server.Host)
	assert.Equal(t, "https://api.internal", config.Upstream.URL)
	assert.Equal(t, 30*time.Second, config.RateLimit.Window)
	assert.Equal(t, uint64(0), config.RateLimit.DelayAfter)
	assert.Equal(t, 250*time.Millisecond, config.RateLimit.DelayUnit)
	assert.Equal(t, uint64(42), config.RateLimit.Max)
	assert.Equal(t, 503, config.RateLimit.StatusCode)
	assert.True(t, config.Security.TrustProxyHeaders)
	assert.True(t, config.Security.EnableAuth)
	require.Len(t, config.Security.APIKeys, 1)
	assert.Equal(t, "env-admin", config.Security.APIKeys[0].Name)
	assert.Equal(t, []string{models.PermissionAdmin}, config.Security.APIKeys[0].Permissions)
	assert.Equal(t, "warn", config.Logging.Level)
	assert.False(t, config.Metrics.Enabled)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	configFile := writeConfig(t, `
rate_limit:
  max: 10
`)
	t.Setenv("RATELIMITER_MAX", "20")

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, uint64(20), config.RateLimit.Max)
}

func TestLoad_InvalidEnvironmentValuesIgnored(t *testing.T) {
	t.Setenv("RATELIMITER_PORT", "not-a-number")
	t.Setenv("RATELIMITER_WINDOW", "forever")
	t.Setenv("RATELIMITER_MAX", "-1")

	config, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, time.Minute, config.RateLimit.Window)
	assert.Equal(t, uint64(5), config.RateLimit.Max)
}

func TestLoad_GlobalModeRejected(t *testing.T) {
	configFile := writeConfig(t, `
rate_limit:
  global: true
`)

	_, err := Load(configFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "global option was removed")
}

func TestLoad_LegacyMillisecondKeys(t *testing.T) {
	configFile := writeConfig(t, `
rate_limit:
  window_ms: 900000
  delay_ms: 250
`)

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, config.RateLimit.Window)
	assert.Equal(t, 250*time.Millisecond, config.RateLimit.DelayUnit)
}

func TestLoad_DurationKeyWinsOverLegacy(t *testing.T) {
	configFile := writeConfig(t, `
rate_limit:
  window_ms: 900000
  window: 2m
`)

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, config.RateLimit.Window)
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configFile := writeConfig(t, `
server:
  port: [unclosed
`)

	_, err := Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML config")
}

func TestLoad_EmptyConfigFile(t *testing.T) {
	configFile := writeConfig(t, "")

	config, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, 8080, config.Server.Port)
}

func TestLoad_InvalidStorage(t *testing.T) {
	configFile := writeConfig(t, `
storage:
  type: "postgres"
`)

	_, err := Load(configFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database DSN is required")
}

func TestSaveExample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "example.yaml")

	require.NoError(t, SaveExample(path))

	config, err := Load(path)
	require.NoError(t, err)
	assert.True(t, config.Security.EnableAuth)
	require.Len(t, config.Security.APIKeys, 1)
	assert.Equal(t, models.HashAPIKey("rl_replace-me"), config.Security.APIKeys[0].KeyHash)
	assert.Equal(t, "http://localhost:3000", config.Upstream.URL)
}
