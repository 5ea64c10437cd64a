package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ratelimiter/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Response headers set on every evaluated request.
const (
	HeaderLimit     = "X-Rate-Limit-Limit"
	HeaderRemaining = "X-Rate-Limit-Remaining"
	HeaderReset     = "X-Rate-Limit-Reset"
)

// KeyFunc derives the client key from a request.
type KeyFunc func(r *http.Request) string

// RejectHook is called after a rejection response has been written.
type RejectHook func(r *http.Request, key string, d Decision)

type middlewareConfig struct {
	keyFunc  KeyFunc
	onReject RejectHook
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

// WithKeyFunc replaces the default client key extraction.
func WithKeyFunc(fn KeyFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.keyFunc = fn
	}
}

// WithRejectHook registers a callback run for every rejected request.
func WithRejectHook(fn RejectHook) MiddlewareOption {
	return func(c *middlewareConfig) {
		c.onReject = fn
	}
}

// Middleware returns HTTP middleware that evaluates every request against
// limiter. Quota headers are always set. Delayed requests wait without holding
// any limiter state and are dropped if the client goes away first. Rejected
// requests get a JSON body and never reach next.
func Middleware(limiter Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{keyFunc: ClientIP(false)}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.keyFunc(r)
			decision := limiter.Evaluate(key)

			setQuotaHeaders(w.Header(), decision.Quota)
			trace.SpanFromContext(r.Context()).SetAttributes(
				attribute.String("ratelimit.action", decision.Action.String()),
				attribute.Int64("ratelimit.remaining", int64(decision.Quota.Remaining)),
			)

			switch decision.Action {
			case ActionReject:
				writeRejection(w, limiter, *decision.Rejection)

				slog.WarnContext(r.Context(), "Rate limit exceeded",
					"key", key,
					"limit", decision.Rejection.Limit,
					"overage", decision.Rejection.Overage,
					"reset_ms", decision.Rejection.ResetIn.Milliseconds(),
				)
				if cfg.onReject != nil {
					cfg.onReject(r, key, decision)
				}
				return
			case ActionDelay:
				timer := time.NewTimer(decision.Delay)
				select {
				case <-timer.C:
				case <-r.Context().Done():
					timer.Stop()
					slog.DebugContext(r.Context(), "Client left while delayed", "key", key, "delay", decision.Delay)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setQuotaHeaders(h http.Header, q Quota) {
	h.Set(HeaderLimit, strconv.FormatUint(q.Limit, 10))
	h.Set(HeaderRemaining, strconv.FormatUint(q.Remaining, 10))
	h.Set(HeaderReset, strconv.FormatInt(q.ResetIn.Milliseconds(), 10))
}

func writeRejection(w http.ResponseWriter, limiter Limiter, rej Rejection) {
	body := models.NewRateLimitExceededResponse(models.RateLimitDetail{
		Status:  rej.Status,
		Message: limiter.RejectMessage(rej),
		Rate: models.RateInfo{
			Window:  rej.Window.Milliseconds(),
			Limit:   rej.Limit,
			Overage: rej.Overage,
			Reset:   rej.ResetIn.Milliseconds(),
		},
	})

	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(rej.Status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write rate limit response", "error", err)
	}
}

// ClientIP returns a KeyFunc keyed on the client address. With trustProxy set,
// the first X-Forwarded-For hop and then X-Real-IP take precedence over the
// connection address.
func ClientIP(trustProxy bool) KeyFunc {
	return func(r *http.Request) string {
		if trustProxy {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
			if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
				return xri
			}
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}
