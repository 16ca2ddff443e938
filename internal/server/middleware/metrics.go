package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/parleyhq/parley/internal/observability"
)

// statusRecorder captures the status code and body size of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// knownPaths maps the mounted routes to their metric label so unknown
// paths never explode label cardinality.
var knownPaths = map[string]string{
	"/v1/messages":  "/v1/messages",
	"/health":       "/health/*",
	"/health/live":  "/health/*",
	"/health/ready": "/health/*",
	"/version":      "/version",
	"/metrics":      "/metrics",
	"/admin/reload": "/admin/reload",
	"/":             "/",
}

// endpointLabel prefers the chi route pattern and falls back to the
// known-path table.
func endpointLabel(r *http.Request) string {
	if pattern := chi.RouteContext(r.Context()).RoutePattern(); pattern != "" {
		return pattern
	}
	if label, ok := knownPaths[r.URL.Path]; ok {
		return label
	}
	return "/unknown"
}

// RequestMetrics emits Prometheus-style request metrics for every
// response: a request counter, a duration histogram, size gauges and an
// error counter split by client/server class.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		var requestSize int64
		if cl := r.Header.Get("Content-Length"); cl != "" {
			requestSize, _ = strconv.ParseInt(cl, 10, 64)
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		endpoint := endpointLabel(r)
		status := strconv.Itoa(rec.status)

		labels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
			"status":   status,
		}
		sizeLabels := map[string]string{
			"method":   r.Method,
			"endpoint": endpoint,
		}

		sys := observability.TelemetrySystem
		_ = sys.Counter("http_requests_total", 1, labels)
		_ = sys.Histogram("http_request_duration_ms", duration, labels)
		_ = sys.Gauge("http_request_size_bytes", float64(requestSize), sizeLabels)
		_ = sys.Gauge("http_response_size_bytes", float64(rec.bytes), sizeLabels)

		if rec.status >= 400 {
			errorType := "client_error"
			if rec.status >= 500 {
				errorType = "server_error"
			}
			_ = sys.Counter("http_errors_total", 1, map[string]string{
				"method":     r.Method,
				"endpoint":   endpoint,
				"status":     status,
				"error_type": errorType,
			})
		}

		if observability.ServerLogger != nil {
			observability.ServerLogger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("endpoint", endpoint),
				zap.Int("status", rec.status),
				zap.Duration("duration", duration),
				zap.String("request_id", GetRequestID(r.Context())))
		}
	})
}
