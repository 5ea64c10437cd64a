package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"ratelimiter/internal/models"
	"ratelimiter/internal/version"
)

// NewUpstreamHandler returns the handler protected by the limiter: a reverse
// proxy to cfg.URL, or an echo handler when no upstream is configured.
func NewUpstreamHandler(cfg models.UpstreamConfig, ver version.Info) (http.Handler, error) {
	if cfg.URL == "" {
		return http.HandlerFunc(echoHandler), nil
	}

	target, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	via := "1.1 " + ver.UserAgent()
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Header.Add("Via", via)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.ErrorContext(r.Context(), "Upstream request failed",
				"upstream", target.Host,
				"method", r.Method,
				"path", r.URL.Path,
				"error", err)
			writeJSON(w, http.StatusBadGateway, models.NewErrorResponse("Upstream service unavailable", models.ErrorCodeBadGateway))
		},
	}, nil
}

// echoHandler describes the request it received.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.EchoResponse{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		Client:    getClientIP(r),
		Timestamp: time.Now().UTC(),
	})
}
