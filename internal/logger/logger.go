// Package logger provides structured logging mirrored to Sentry breadcrumbs.
// Adapted from the gin-coupled original: request-context field extraction is
// now a plain context.Context helper so the kernel core (no HTTP import) and
// the control plane share the same logging surface.
package logger

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"

	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
)

// Fields represents structured log fields.
type Fields map[string]interface{}

type requestIDKey struct{}

// WithRequestID returns a context carrying requestID for later extraction
// by FromContext.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// FromContext extracts the request ID a control-plane middleware stashed on
// ctx, if any.
func FromContext(ctx context.Context) Fields {
	fields := Fields{}
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		fields["request_id"] = requestID
	}
	return fields
}

// Info logs an informational message with structured fields.
func Info(msg string, fields Fields) {
	log.Printf("[INFO] %s %v", msg, formatFields(fields))

	if hub := sentry.CurrentHub(); hub.Client() != nil {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     "info",
			Category: "log",
			Message:  msg,
			Data:     convertFieldsToMap(fields),
			Level:    sentry.LevelInfo,
		})
	}
}

// Error logs an error message with structured fields and sends it to Sentry.
func Error(msg string, err error, fields Fields) {
	log.Printf("[ERROR] %s: %v %v", msg, err, formatFields(fields))

	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			for key, value := range fields {
				scope.SetContext(key, map[string]interface{}{"value": value})
			}
			if requestID, ok := fields["request_id"].(string); ok {
				scope.SetTag("request_id", requestID)
			}
			if err != nil {
				hub.CaptureException(err)
			} else {
				hub.CaptureMessage(msg)
			}
		})
	}
}

// Warn logs a warning message with structured fields.
func Warn(msg string, fields Fields) {
	log.Printf("[WARN] %s %v", msg, formatFields(fields))

	if hub := sentry.CurrentHub(); hub.Client() != nil {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     "warning",
			Category: "log",
			Message:  msg,
			Data:     convertFieldsToMap(fields),
			Level:    sentry.LevelWarning,
		})
	}
}

// Debug logs a debug message with structured fields.
func Debug(msg string, fields Fields) {
	log.Printf("[DEBUG] %s %v", msg, formatFields(fields))

	if hub := sentry.CurrentHub(); hub.Client() != nil {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:     "debug",
			Category: "log",
			Message:  msg,
			Data:     convertFieldsToMap(fields),
			Level:    sentry.LevelDebug,
		})
	}
}

// KernelEvent logs a header-level error code surfaced by the kernel,
// severity scaled to its recovery tier (spec.md §7): fatal-tier codes
// (KERNEL_PANIC, FREE_LIST_CORRUPT, UNKNOWN_OPCODE) go to Sentry as
// exceptions, surfaced-tier codes (HEAP_EXHAUSTED, SAFE_ZONE,
// LOAD_FACTOR_WARNING) as warnings. Absorbed-tier codes are not expected to
// reach here — the bridge's OnError hook only fires on tier >= surfaced.
func KernelEvent(ctx context.Context, code kerrors.Code, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	for k, v := range FromContext(ctx) {
		fields[k] = v
	}
	fields["error_code"] = code.String()
	fields["tier"] = tierName(code.Tier())

	if code.Tier() == kerrors.TierFatal {
		Error("kernel fatal condition", fmt.Errorf("kernel: %s", code), fields)
		return
	}
	Warn("kernel surfaced condition", fields)
}

func tierName(t kerrors.Tier) string {
	switch t {
	case kerrors.TierFatal:
		return "fatal"
	case kerrors.TierSurfaced:
		return "surfaced"
	default:
		return "absorbed"
	}
}

// LogAPIRequest logs control-plane request metrics.
func LogAPIRequest(requestID, method, path, clientIP string, duration time.Duration, statusCode int) {
	fields := Fields{
		"duration_ms": duration.Milliseconds(),
		"status_code": statusCode,
		"request_id":  requestID,
		"method":      method,
		"path":        path,
		"client_ip":   clientIP,
	}
	Info("API request completed", fields)

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:     "http",
		Category: "api",
		Message:  "API request",
		Data:     convertFieldsToMap(fields),
		Level:    sentry.LevelInfo,
	})
}

// LogToSentry sends a log message directly to Sentry as an event.
func LogToSentry(level sentry.Level, msg string, fields Fields) {
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(level)
			for key, value := range fields {
				scope.SetContext(key, map[string]interface{}{"value": value})
			}
			if requestID, ok := fields["request_id"].(string); ok {
				scope.SetTag("request_id", requestID)
			}
			hub.CaptureMessage(msg)
		})
	}
}

// formatFields converts Fields to a readable string.
func formatFields(fields Fields) string {
	if len(fields) == 0 {
		return ""
	}
	result := "{"
	first := true
	for k, v := range fields {
		if !first {
			result += ", "
		}
		result += k + "=" + formatValue(v)
		first = false
	}
	result += "}"
	return result
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case uint64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%.2f", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func convertFieldsToMap(fields Fields) map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range fields {
		result[k] = v
	}
	return result
}
