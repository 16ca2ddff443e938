package metrics

import (
	"strconv"

	"github.com/parleyhq/parley/internal/observability"
)

// RecordError records an HTTP-surfaced error by code and status.
func RecordError(errorCode string, httpStatus int) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter("errors_total", 1, map[string]string{
		"error_code":  errorCode,
		"http_status": strconv.Itoa(httpStatus),
	})
}

// RecordPanic records a recovered panic.
func RecordPanic() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter("panics_total", 1, nil)
}

// RecordErrorByEndpoint records an error against its endpoint.
func RecordErrorByEndpoint(endpoint string, errorCode string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter("errors_by_endpoint", 1, map[string]string{
		"endpoint":   endpoint,
		"error_code": errorCode,
	})
}
