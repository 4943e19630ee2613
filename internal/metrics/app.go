package metrics

import (
	"time"

	"github.com/floorlens/floorlens/internal/observability"
)

// Application-level metrics following Prometheus conventions
var (
	// Engine metrics
	TicksTotal          = "app_engine_ticks_total"
	TriggerMatchesTotal = "app_trigger_matches_total"
	PurchasesTotal      = "app_purchases_total"
	AlertsFiredTotal    = "app_alerts_fired_total"
	RateLimitWaitMs     = "app_rate_limit_wait_ms"

	// Health check metrics
	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
	ServerUptime    = "app_server_uptime_seconds"
)

// RecordTick records one scheduler tick for an engine.
func RecordTick(engine string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			TicksTotal,
			1,
			map[string]string{"engine": engine},
		)
	}
}

// RecordTriggerMatch records a trigger predicate match for a collection.
func RecordTriggerMatch(collection string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			TriggerMatchesTotal,
			1,
			map[string]string{"collection": collection},
		)
	}
}

// RecordPurchase records the outcome of a purchase attempt.
func RecordPurchase(collection string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			PurchasesTotal,
			1,
			map[string]string{
				"collection": collection,
				"status":     status,
			},
		)
	}
}

// RecordAlertFired records a fired price alert.
func RecordAlertFired(collection string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			AlertsFiredTotal,
			1,
			map[string]string{"collection": collection},
		)
	}
}

// RecordRateLimitWait records how long a caller waited for admission.
func RecordRateLimitWait(service string, wait time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			RateLimitWaitMs,
			wait,
			map[string]string{"service": service},
		)
	}
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			HealthCheckTotal,
			1,
			map[string]string{
				"check":  checkName,
				"status": status,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			HealthCheckDuration,
			duration,
			map[string]string{
				"check": checkName,
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}

// SetServerUptime records the server uptime in seconds
func SetServerUptime(seconds int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerUptime,
			float64(seconds),
			nil,
		)
	}
}
