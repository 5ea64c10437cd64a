package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"ratelimiter/internal/models"
	"ratelimiter/internal/ratelimit"
	"ratelimiter/internal/storage"
	"ratelimiter/internal/version"
)

const (
	healthPingTimeout     = 2 * time.Second
	violationWriteTimeout = 5 * time.Second
)

// Handlers contains the HTTP handlers for health and administration.
type Handlers struct {
	limiter ratelimit.Limiter
	store   storage.ViolationStore
	version version.Info
}

// NewHandlers creates a new handlers instance
func NewHandlers(limiter ratelimit.Limiter, store storage.ViolationStore, ver version.Info) *Handlers {
	return &Handlers{
		limiter: limiter,
		store:   store,
		version: ver,
	}
}

// HealthCheck handles health check requests
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version

	response.AddComponent("limiter", models.StatusHealthy, "Limiter is counting requests")
	response.AddMetric("tracked_keys", h.limiter.TrackedKeys())

	ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		slog.WarnContext(r.Context(), "Violation store health check failed", "error", err)
		response.AddComponent("storage", models.StatusUnhealthy, "Violation store is unreachable")
	} else {
		response.AddComponent("storage", models.StatusHealthy, "Violation store is operational")
	}

	h.writeJSONResponse(w, http.StatusOK, response)
}

// RecordRejection is a ratelimit.RejectHook that appends the rejection to the
// violation log. The response has already been sent, so a store failure is
// only logged.
func (h *Handlers) RecordRejection(r *http.Request, key string, d ratelimit.Decision) {
	if d.Rejection == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), violationWriteTimeout)
	defer cancel()

	v := models.NewViolation(key, r.Method, r.URL.Path, d.Rejection.Limit, d.Rejection.Overage, d.Rejection.ResetIn.Milliseconds())
	if err := h.store.RecordViolation(ctx, v); err != nil {
		slog.ErrorContext(ctx, "Failed to record rate limit violation", "key", key, "error", err)
	}
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	writeJSON(w, statusCode, data)
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, models.NewErrorResponse(message, errorCode))
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Headers are already sent, so an encoding failure can only be logged
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Error encoding JSON response", "error", err)
	}
}

// getAPIKeyName safely extracts the API key name for logging
func getAPIKeyName(securityContext *SecurityContext) string {
	if securityContext == nil || securityContext.APIKey == nil {
		return "anonymous"
	}
	if securityContext.APIKey.Name != "" {
		return securityContext.APIKey.Name
	}
	return "unnamed-key"
}
