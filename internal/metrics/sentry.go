package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	// HTTP status code threshold for considering a request successful.
	successStatusCodeThreshold = http.StatusBadRequest
)

// SentryMetrics handles custom performance spans for Sentry.
type SentryMetrics struct {
	enabled bool
}

// NewSentryMetrics creates a new Sentry metrics client.
func NewSentryMetrics() *SentryMetrics {
	return &SentryMetrics{enabled: true}
}

// RecordAPIRequest records control-plane API request metrics.
func (m *SentryMetrics) RecordAPIRequest(ctx context.Context, endpoint string, statusCode int, duration time.Duration) {
	if !m.enabled {
		return
	}

	span := sentry.StartSpan(ctx, "api.request")
	defer span.Finish()

	span.SetTag("endpoint", endpoint)
	span.SetTag("status_code", fmt.Sprintf("%d", statusCode))
	span.SetTag("success", fmt.Sprintf("%t", statusCode < successStatusCodeThreshold))

	span.SetData("duration_ms", duration.Milliseconds())
	span.SetData("endpoint", endpoint)
	span.SetData("status_code", statusCode)

	if statusCode < successStatusCodeThreshold {
		span.Status = sentry.SpanStatusOK
	} else {
		span.Status = sentry.SpanStatusInternalError
	}

	span.Description = fmt.Sprintf("API Request: %s", endpoint)
}

// RecordKernelEvent records a surfaced or fatal header-level error code
// (spec.md §7) as a Sentry span, one tag per recovery tier, so dashboards
// can slice SAFE_ZONE / HEAP_EXHAUSTED / KERNEL_PANIC rates independently.
func (m *SentryMetrics) RecordKernelEvent(instanceID, code, tier string) {
	if !m.enabled {
		return
	}

	ctx := context.Background()
	span := sentry.StartSpan(ctx, "kernel.event")
	defer span.Finish()

	span.SetTag("instance_id", instanceID)
	span.SetTag("error_code", code)
	span.SetTag("tier", tier)
	span.SetData("instance_id", instanceID)
	span.SetData("error_code", code)
	span.SetData("tier", tier)

	if tier == "fatal" {
		span.Status = sentry.SpanStatusInternalError
	} else {
		span.Status = sentry.SpanStatusOK
	}
	span.Description = fmt.Sprintf("Kernel Event: %s (%s)", code, tier)
}

// RecordKernelStats records a control-plane-tick snapshot of the kernel's
// header counters as Sentry span data, for correlation against event spans.
func (m *SentryMetrics) RecordKernelStats(instanceID string, liveNodes, freeCount int32, telemetryOps uint64, eventsEmitted int) {
	if !m.enabled {
		return
	}

	ctx := context.Background()
	span := sentry.StartSpan(ctx, "kernel.stats")
	defer span.Finish()

	span.SetTag("instance_id", instanceID)
	span.SetData("live_nodes", liveNodes)
	span.SetData("free_count", freeCount)
	span.SetData("telemetry_ops", telemetryOps)
	span.SetData("events_emitted", eventsEmitted)

	span.Status = sentry.SpanStatusOK
	span.Description = fmt.Sprintf("Kernel Stats: %s", instanceID)
}

// RecordCustomMetric sends a custom metric with arbitrary data.
func (m *SentryMetrics) RecordCustomMetric(metricName string, data map[string]interface{}) {
	if !m.enabled {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("metric_type", "custom")
		scope.SetTag("metric_name", metricName)
		scope.SetContext("custom_metric", data)
		sentry.CaptureMessage("Custom Metric: " + metricName)
	})
}

// RecordPerformanceMetric records arbitrary operation-duration data.
func (m *SentryMetrics) RecordPerformanceMetric(operation string, duration time.Duration, metadata map[string]interface{}) {
	if !m.enabled {
		return
	}

	ctx := context.Background()
	span := sentry.StartSpan(ctx, operation)
	span.Description = operation
	span.SetData("duration_ms", duration.Milliseconds())

	for key, value := range metadata {
		span.SetData(key, value)
	}

	span.Finish()
}
