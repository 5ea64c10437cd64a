package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"ratelimiter/internal/models"

	"github.com/gorilla/mux"
)

// GetKeyStatus reports the count and quota of one client key without counting a hit.
// GET /api/v1/admin/ratelimit/keys/{key}
func (h *Handlers) GetKeyStatus(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	count, tracked := h.limiter.Count(key)
	quota := h.limiter.Quota(key)

	h.writeJSONResponse(w, http.StatusOK, models.KeyStatusResponse{
		Key:       key,
		Tracked:   tracked,
		Count:     count,
		Limit:     quota.Limit,
		Remaining: quota.Remaining,
		Unlimited: quota.Unlimited,
		ResetMs:   quota.ResetIn.Milliseconds(),
	})
}

// ResetKey forgets one client key. The shared window restarts for every key.
// DELETE /api/v1/admin/ratelimit/keys/{key}
func (h *Handlers) ResetKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	h.limiter.ResetKey(key)

	slog.InfoContext(r.Context(), "Rate limit key reset",
		"key", key,
		"api_key", getAPIKeyName(GetSecurityContext(r)),
		"client_ip", getClientIP(r))

	h.writeJSONResponse(w, http.StatusOK, models.ResetResponse{
		Scope:     "key",
		Key:       key,
		Timestamp: time.Now().UTC(),
	})
}

// ResetAll forgets every client key and restarts the window.
// DELETE /api/v1/admin/ratelimit/keys
func (h *Handlers) ResetAll(w http.ResponseWriter, r *http.Request) {
	h.limiter.ResetAll()

	slog.InfoContext(r.Context(), "Rate limit counters reset",
		"api_key", getAPIKeyName(GetSecurityContext(r)),
		"client_ip", getClientIP(r))

	h.writeJSONResponse(w, http.StatusOK, models.ResetResponse{
		Scope:     "all",
		Timestamp: time.Now().UTC(),
	})
}

// ListViolations returns recent rejections, newest first.
// GET /api/v1/admin/violations?key=&since=&limit=
func (h *Handlers) ListViolations(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := models.ViolationFilter{Key: query.Get("key")}

	if limitParam := query.Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	if sinceParam := query.Get("since"); sinceParam != "" {
		since, err := time.Parse(time.RFC3339, sinceParam)
		if err != nil {
			h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = since
	}

	violations, err := h.store.Violations(r.Context(), filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list violations", "error", err)
		h.writeErrorResponse(w, http.StatusInternalServerError, models.ErrorCodeInternalError, "Failed to list violations")
		return
	}
	if violations == nil {
		violations = []*models.Violation{}
	}

	h.writeJSONResponse(w, http.StatusOK, models.ViolationsResponse{
		Violations: violations,
		Count:      len(violations),
	})
}
