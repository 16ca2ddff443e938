// Package metrics emits domain metrics for the admission and dispatch
// pipeline. All helpers are safe to call before telemetry is initialized.
package metrics

import (
	"strconv"
	"time"

	"github.com/parleyhq/parley/internal/observability"
)

// Metric names following Prometheus conventions.
const (
	AdmissionTotal      = "admission_checks_total"
	CacheLookupsTotal   = "classification_cache_lookups_total"
	PipelineLatency     = "pipeline_latency_ms"
	ConfidenceHistogram = "classification_confidence"
	DispatchTotal       = "dispatch_decisions_total"
	StoreFailoversTotal = "capacity_store_failovers_total"
	ConfigReloadsTotal  = "config_reloads_total"
	StageFaultsTotal    = "pipeline_stage_faults_total"
)

// RecordAdmission records one quota check outcome.
func RecordAdmission(route string, allowed bool, failedOpen bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	_ = observability.TelemetrySystem.Counter(AdmissionTotal, 1, map[string]string{
		"route":       route,
		"outcome":     outcome,
		"failed_open": strconv.FormatBool(failedOpen),
	})
}

// RecordCacheLookup records a fingerprint cache hit or miss.
func RecordCacheLookup(hit bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	result := "miss"
	if hit {
		result = "hit"
	}
	_ = observability.TelemetrySystem.Counter(CacheLookupsTotal, 1, map[string]string{
		"result": result,
	})
}

// RecordPipeline records the decision, confidence and latency of one
// completed pipeline run.
func RecordPipeline(decision string, confidence float64, latency time.Duration) {
	if observability.TelemetrySystem == nil {
		return
	}

	labels := map[string]string{"decision": decision}
	_ = observability.TelemetrySystem.Counter(DispatchTotal, 1, labels)
	_ = observability.TelemetrySystem.Histogram(PipelineLatency, latency, labels)
	_ = observability.TelemetrySystem.Histogram(ConfidenceHistogram, time.Duration(confidence*float64(time.Millisecond)), nil)
}

// RecordStageFault records an absorbed fault in a pipeline stage.
func RecordStageFault(stage string) {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(StageFaultsTotal, 1, map[string]string{
		"stage": stage,
	})
}

// RecordStoreFailover records a capacity store outage transition.
func RecordStoreFailover() {
	if observability.TelemetrySystem == nil {
		return
	}
	_ = observability.TelemetrySystem.Counter(StoreFailoversTotal, 1, nil)
}

// RecordConfigReload records a reload attempt.
func RecordConfigReload(success bool) {
	if observability.TelemetrySystem == nil {
		return
	}

	status := "rejected"
	if success {
		status = "applied"
	}
	_ = observability.TelemetrySystem.Counter(ConfigReloadsTotal, 1, map[string]string{
		"status": status,
	})
}
