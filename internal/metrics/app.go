package metrics

import (
	"time"

	"github.com/licitalens/licitalens/internal/observability"
)

// Gateway metric names following Prometheus conventions
const (
	StreamsActiveName       = "gateway_streams_active"
	StreamOutcomesTotalName = "gateway_stream_outcomes_total"
	StreamDurationName      = "gateway_stream_duration_ms"
	RateLimitedTotalName    = "gateway_rate_limited_total"
	SearchesTotalName       = "gateway_searches_total"
)

// SetActiveStreams sets the number of relay streams currently open.
func SetActiveStreams(count int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			StreamsActiveName,
			float64(count),
			nil,
		)
	}
}

// RecordStreamOutcome records a terminated relay stream with its
// classification (completed, client_disconnected, upstream_timeout,
// upstream_error) and lifetime.
func RecordStreamOutcome(outcome string, duration time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			StreamOutcomesTotalName,
			1,
			map[string]string{
				"outcome": outcome,
			},
		)

		_ = observability.TelemetrySystem.Histogram(
			StreamDurationName,
			duration,
			map[string]string{
				"outcome": outcome,
			},
		)
	}
}

// RecordRateLimited records a rejected request for a guarded operation.
func RecordRateLimited(operation string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RateLimitedTotalName,
			1,
			map[string]string{
				"operation": operation,
			},
		)
	}
}

// RecordSearch records a coordinated search with its reliability level.
func RecordSearch(level string, success bool) {
	status := "success"
	if !success {
		status = "degraded"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			SearchesTotalName,
			1,
			map[string]string{
				"level":  level,
				"status": status,
			},
		)
	}
}
