package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fulmenhq/gofulmen/errors"
)

const checkTimeout = 5 * time.Second

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthCheckerFunc adapts a plain function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

// HealthResponse is the aggregate /health body.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ProbeResponse is the liveness/readiness probe body.
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthManager runs registered dependency checks and serves the
// health and probe endpoints.
type HealthManager struct {
	version  string
	checkers map[string]HealthChecker
}

func NewHealthManager(version string) *HealthManager {
	return &HealthManager{version: version, checkers: make(map[string]HealthChecker)}
}

// RegisterChecker adds a named dependency check. Not safe for use
// after the server has started.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.checkers[name] = checker
}

// evaluate runs every checker and folds the results into an overall
// status. A single failing check marks the whole service unhealthy; a
// timed-out context marks the remainder degraded.
func (hm *HealthManager) evaluate(ctx context.Context) (string, map[string]string) {
	checks := make(map[string]string, len(hm.checkers))
	overall := "healthy"

	for name, checker := range hm.checkers {
		if ctx.Err() != nil {
			checks[name] = "timeout"
			if overall == "healthy" {
				overall = "degraded"
			}
			continue
		}
		if err := checker.CheckHealth(ctx); err != nil {
			checks[name] = "unhealthy"
			overall = "unhealthy"
			continue
		}
		checks[name] = "healthy"
	}

	return overall, checks
}

// HealthHandler serves the aggregate health report.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status, checks := hm.evaluate(ctx)
	if status == "unhealthy" {
		respondWithError(w, r, healthFailureEnvelope("aggregate health check failed", "", status, checks))
		return
	}

	writeJSON(w, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler answers liveness probes. Liveness is a process
// check, not a dependency check: a server that can answer is alive
// even when its stores are degraded.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ProbeResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

// ReadinessHandler answers readiness probes, gating traffic on the
// registered dependency checks.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	status, checks := hm.evaluate(ctx)
	if status == "unhealthy" {
		respondWithError(w, r, healthFailureEnvelope("readiness probe failed", "ready", status, checks))
		return
	}

	writeJSON(w, ProbeResponse{Status: status, Timestamp: time.Now().UTC()})
}

func writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

// healthFailureEnvelope builds the SERVICE_UNAVAILABLE envelope with
// the per-check results attached for operators.
func healthFailureEnvelope(message, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message)

	details := map[string]interface{}{"status": status}
	if probe != "" {
		details["probe"] = probe
	}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	envelope = envelope.WithDetails(details)

	contextData := map[string]interface{}{"status": status}
	if probe != "" {
		contextData["probe"] = probe
	}
	var failing []string
	for name, result := range checks {
		if result != "healthy" {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		contextData["unhealthy_checks"] = failing
	}
	envelope, _ = envelope.WithContext(contextData)

	return envelope
}
