// Package models - API response types and error handling.
// This file defines the outgoing response bodies with consistent formatting.
//
// Response Design Principles:
// - Consistent JSON structure across admin endpoints
// - The rate limit rejection body keeps its established shape for existing clients
// - RFC3339 timestamps
package models

import (
	"time"
)

// RateLimitExceededResponse is the body sent with a rejected request.
//
// The envelope (error flag, error_messages, meta, data) is shared with the
// protected API so clients can handle a rejection like any other error.
type RateLimitExceededResponse struct {
	Error         bool              `json:"error"`
	ErrorMessages []RateLimitDetail `json:"error_messages"`
	Meta          PageMeta          `json:"meta"`
	Data          []interface{}     `json:"data"`
}

type RateLimitDetail struct {
	Status  int      `json:"status"`
	Message string   `json:"message"`
	Rate    RateInfo `json:"rate"`
}

// RateInfo carries the limiter figures of a rejection. Durations are in milliseconds.
type RateInfo struct {
	Window  int64  `json:"window"`
	Limit   uint64 `json:"limit"`
	Overage uint64 `json:"overage"`
	Reset   int64  `json:"reset"`
}

type PageMeta struct {
	Total   int `json:"total"`
	Showing int `json:"showing"`
	Pages   int `json:"pages"`
	Page    int `json:"page"`
}

// KeyStatusResponse reports the limiter state of one client key.
type KeyStatusResponse struct {
	Key       string `json:"key"`
	Tracked   bool   `json:"tracked"`
	Count     uint64 `json:"count"`
	Limit     uint64 `json:"limit"`
	Remaining uint64 `json:"remaining"`
	Unlimited bool   `json:"unlimited"`
	ResetMs   int64  `json:"reset_ms"`
}

// ResetResponse acknowledges an administrative reset.
type ResetResponse struct {
	Scope     string    `json:"scope"`
	Key       string    `json:"key,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ViolationsResponse struct {
	Violations []*Violation `json:"violations"`
	Count      int          `json:"count"`
}

// EchoResponse is returned by the built-in handler when no upstream is configured.
type EchoResponse struct {
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Query     string    `json:"query,omitempty"`
	Client    string    `json:"client"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Metrics    map[string]interface{}     `json:"metrics,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health Status Constants
const (
	StatusHealthy   = "healthy"   // All systems operational
	StatusUnhealthy = "unhealthy" // Major system issues
	StatusDegraded  = "degraded"  // Partial functionality
)

// Standard HTTP Error Codes
const (
	ErrorCodeNotFound          = "NOT_FOUND"           // 404: Resource doesn't exist
	ErrorCodeBadRequest        = "BAD_REQUEST"         // 400: Invalid request format
	ErrorCodeInternalError     = "INTERNAL_ERROR"      // 500: Server-side error
	ErrorCodeUnauthorized      = "UNAUTHORIZED"        // 401: Authentication required
	ErrorCodeForbidden         = "FORBIDDEN"           // 403: Permission denied
	ErrorCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED" // 429: Too many requests
	ErrorCodeBadGateway        = "BAD_GATEWAY"         // 502: Upstream failed
	ErrorCodeMethodNotAllowed  = "METHOD_NOT_ALLOWED"  // 405: Wrong HTTP method
)

// NewRateLimitExceededResponse wraps a single rejection detail in the standard envelope.
func NewRateLimitExceededResponse(detail RateLimitDetail) *RateLimitExceededResponse {
	return &RateLimitExceededResponse{
		Error:         true,
		ErrorMessages: []RateLimitDetail{detail},
		Meta:          PageMeta{Total: 1, Showing: 1, Pages: 1, Page: 1},
		Data:          []interface{}{},
	}
}

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
		Metrics:    make(map[string]interface{}),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
	if status == StatusUnhealthy && h.Status == StatusHealthy {
		h.Status = StatusDegraded
	}
}

func (h *HealthCheckResponse) AddMetric(name string, value interface{}) {
	h.Metrics[name] = value
}
