package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ratelimiter/internal/api"
	"ratelimiter/internal/config"
	"ratelimiter/internal/models"
	"ratelimiter/internal/observability"
	"ratelimiter/internal/ratelimit"
	"ratelimiter/internal/storage"
	"ratelimiter/internal/version"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Integration tests that run the whole service end-to-end

const adminKey = "integration-admin-key"

type testService struct {
	server       *httptest.Server
	upstreamHits *atomic.Int64
	limiter      ratelimit.Limiter
	store        storage.ViolationStore
	metrics      http.Handler
}

// startService loads the YAML config, builds the service the same way the
// binary does and serves it from an httptest server.
func startService(t *testing.T, rateLimitYAML string) *testService {
	t.Helper()
	tempDir := t.TempDir()

	upstreamHits := &atomic.Int64{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"path":%q,"via":%q}`, r.URL.Path, r.Header.Get("Via"))
	}))
	t.Cleanup(upstream.Close)

	configYAML := fmt.Sprintf(`
server:
  port: 8080
  host: localhost
upstream:
  url: %s
rate_limit:
%s
security:
  enable_auth: true
  api_keys:
    - name: integration
      key_hash: %s
      permissions: [admin]
      enabled: true
storage:
  type: sqlite
  database:
    dsn: %s
logging:
  level: error
metrics:
  enabled: true
  port: 9090
  path: /metrics
`, upstream.URL, rateLimitYAML, models.HashAPIKey(adminKey), filepath.Join(tempDir, "violations.db"))

	configFile := filepath.Join(tempDir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(configYAML), 0644))

	cfg, err := config.Load(configFile)
	require.NoError(t, err)

	ver := version.Info{Version: "test", GitCommit: "integration"}

	provider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	baseStore, err := storage.NewFactory().Create(context.Background(), cfg.Storage)
	require.NoError(t, err)
	store, err := observability.NewInstrumentedViolationStore(baseStore)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	policy, err := ratelimit.NewPolicy(ratelimit.OptionsFromConfig(cfg.RateLimit))
	require.NoError(t, err)
	limiter, err := observability.NewInstrumentedLimiter(policy)
	require.NoError(t, err)
	t.Cleanup(limiter.Close)

	handlers := api.NewHandlers(limiter, store, ver)
	upstreamHandler, err := api.NewUpstreamHandler(cfg.Upstream, ver)
	require.NoError(t, err)

	router := api.SetupRoutes(handlers, upstreamHandler, cfg,
		api.WithRateLimiter(ratelimit.Middleware(limiter,
			ratelimit.WithKeyFunc(ratelimit.ClientIP(cfg.Security.TrustProxyHeaders)),
			ratelimit.WithRejectHook(handlers.RecordRejection),
		)),
	)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testService{
		server:       server,
		upstreamHits: upstreamHits,
		limiter:      limiter,
		store:        store,
		metrics:      provider.MetricsHandler(),
	}
}

func (s *testService) admin(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+adminKey)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestIntegration_FullLimiterFlow(t *testing.T) {
	svc := startService(t, `
  enabled: true
  window: 1m
  delay_after: 1
  delay_unit: 25ms
  max: 3
  status_code: 429
  message: "Limit {{.Limit}} reached, {{.Overage}} over"
`)

	// Step 1: first request passes straight through to the upstream
	resp, err := http.Get(svc.server.URL + "/orders")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "3", resp.Header.Get(ratelimit.HeaderLimit))
	assert.Equal(t, "2", resp.Header.Get(ratelimit.HeaderRemaining))
	assert.Contains(t, string(body), `"via":"1.1 ratelimiter/test"`)

	// Step 2: requests above delay_after are slowed by one more unit each
	for i, minDelay := range []time.Duration{25 * time.Millisecond, 50 * time.Millisecond} {
		start := time.Now()
		resp, err = http.Get(svc.server.URL + "/orders")
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, "delayed request %d", i+1)
		assert.GreaterOrEqual(t, time.Since(start), minDelay)
	}

	// Step 3: over max the request is rejected without reaching the upstream
	resp, err = http.Get(svc.server.URL + "/orders?page=2")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "0", resp.Header.Get(ratelimit.HeaderRemaining))

	var rejection models.RateLimitExceededResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rejection))
	require.Len(t, rejection.ErrorMessages, 1)
	assert.Equal(t, "Limit 3 reached, 1 over", rejection.ErrorMessages[0].Message)
	assert.Equal(t, int64(60000), rejection.ErrorMessages[0].Rate.Window)
	assert.Equal(t, int64(3), svc.upstreamHits.Load())

	// Step 4: the rejection is in the SQLite audit log
	resp = svc.admin(t, http.MethodGet, "/api/v1/admin/violations?key=127.0.0.1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var violations models.ViolationsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&violations))
	require.Equal(t, 1, violations.Count)
	assert.Equal(t, "/orders", violations.Violations[0].Path)
	assert.Equal(t, uint64(4), violations.Violations[0].Count)
	assert.Equal(t, uint64(1), violations.Violations[0].Overage)

	// Step 5: key status reflects the count without adding to it
	resp = svc.admin(t, http.MethodGet, "/api/v1/admin/ratelimit/keys/127.0.0.1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status models.KeyStatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.True(t, status.Tracked)
	assert.Equal(t, uint64(4), status.Count)

	// Step 6: resetting the key lets the client through again
	resp = svc.admin(t, http.MethodDelete, "/api/v1/admin/ratelimit/keys/127.0.0.1")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(svc.server.URL + "/orders")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(4), svc.upstreamHits.Load())
}

func TestIntegration_AdminRequiresKey(t *testing.T) {
	svc := startService(t, `
  enabled: true
  window: 1m
  max: 10
`)

	resp, err := http.Get(svc.server.URL + "/api/v1/admin/violations")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(svc.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health models.HealthCheckResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, models.StatusHealthy, health.Status)
	assert.Equal(t, "test", health.Version)

	assert.Equal(t, 0, svc.limiter.TrackedKeys())
}

func TestIntegration_ConcurrentRequests(t *testing.T) {
	svc := startService(t, `
  enabled: true
  window: 1m
  delay_after: 0
  max: 50
`)

	const requests = 120
	var wg sync.WaitGroup
	var allowed, rejected atomic.Int64

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(svc.server.URL + "/items")
			if err != nil {
				t.Errorf("request failed: %v", err)
				return
			}
			resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusOK:
				allowed.Add(1)
			case http.StatusTooManyRequests:
				rejected.Add(1)
			default:
				t.Errorf("unexpected status %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed.Load())
	assert.Equal(t, int64(requests-50), rejected.Load())

	count, tracked := svc.limiter.Count("127.0.0.1")
	assert.True(t, tracked)
	assert.Equal(t, uint64(requests), count)

	violations, err := svc.store.Violations(context.Background(), models.ViolationFilter{Limit: models.MaxViolationLimit})
	require.NoError(t, err)
	assert.Len(t, violations, requests-50)
}

func TestIntegration_MetricsExposed(t *testing.T) {
	svc := startService(t, `
  enabled: true
  window: 1m
  delay_after: 0
  max: 1
`)

	for i := 0; i < 3; i++ {
		resp, err := http.Get(svc.server.URL + "/items")
		require.NoError(t, err)
		resp.Body.Close()
	}

	require.NotNil(t, svc.metrics)
	rr := httptest.NewRecorder()
	svc.metrics.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	output := rr.Body.String()
	assert.Contains(t, output, "ratelimit_decisions")
	assert.Contains(t, output, `action="reject"`)
	assert.Contains(t, output, "ratelimit_tracked_keys")
	assert.Contains(t, output, "storage_operation_duration")
}

func TestIntegration_ConfigLoading(t *testing.T) {
	tempDir := t.TempDir()

	t.Run("global mode is refused", func(t *testing.T) {
		configFile := filepath.Join(tempDir, "global.yaml")
		require.NoError(t, os.WriteFile(configFile, []byte("rate_limit:\n  global: true\n"), 0644))

		_, err := config.Load(configFile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "global option was removed")
	})

	t.Run("example config loads", func(t *testing.T) {
		configFile := filepath.Join(tempDir, "example.yaml")
		require.NoError(t, config.SaveExample(configFile))

		cfg, err := config.Load(configFile)
		require.NoError(t, err)
		assert.True(t, cfg.Security.EnableAuth)
		assert.Equal(t, time.Minute, cfg.RateLimit.Window)

		_, err = ratelimit.NewPolicy(ratelimit.OptionsFromConfig(cfg.RateLimit))
		assert.NoError(t, err)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		configFile := filepath.Join(tempDir, "env.yaml")
		require.NoError(t, os.WriteFile(configFile, []byte("rate_limit:\n  max: 7\n"), 0644))
		t.Setenv("RATELIMITER_MAX", "11")

		cfg, err := config.Load(configFile)
		require.NoError(t, err)
		assert.Equal(t, uint64(11), cfg.RateLimit.Max)
		assert.True(t, strings.HasPrefix(ratelimit.DefaultMessage, "Too Many Requests"))
	})
}
