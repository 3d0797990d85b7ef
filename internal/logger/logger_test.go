package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	kerrors "github.com/Conceptual-Machines/magda-api/internal/kernel/errors"
)

func TestWithRequestID_FromContext_RoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	fields := FromContext(ctx)
	assert.Equal(t, "req-123", fields["request_id"])
}

func TestFromContext_EmptyWhenNoRequestIDSet(t *testing.T) {
	fields := FromContext(context.Background())
	assert.Empty(t, fields)
}

func TestInfo_WarnDebugError_DoNotPanicWithoutSentryInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("test info", Fields{"a": 1})
		Warn("test warn", Fields{"b": "x"})
		Debug("test debug", nil)
		Error("test error", errors.New("boom"), Fields{"request_id": "req-1"})
	})
}

func TestKernelEvent_FatalTierLogsAsError(t *testing.T) {
	assert.NotPanics(t, func() {
		KernelEvent(context.Background(), kerrors.KernelPanic, nil)
	})
}

func TestKernelEvent_SurfacedTierLogsAsWarning(t *testing.T) {
	assert.NotPanics(t, func() {
		KernelEvent(context.Background(), kerrors.SafeZone, Fields{"instance_id": "i-1"})
	})
}

func TestTierName(t *testing.T) {
	assert.Equal(t, "fatal", tierName(kerrors.TierFatal))
	assert.Equal(t, "surfaced", tierName(kerrors.TierSurfaced))
	assert.Equal(t, "absorbed", tierName(kerrors.TierAbsorbed))
}

func TestFormatFields_EmptyReturnsEmptyString(t *testing.T) {
	assert.Equal(t, "", formatFields(Fields{}))
}

func TestFormatFields_RendersKeyValuePairs(t *testing.T) {
	result := formatFields(Fields{"key": "value"})
	assert.Equal(t, "{key=value}", result)
}

func TestFormatValue_FormatsKnownTypes(t *testing.T) {
	assert.Equal(t, "hello", formatValue("hello"))
	assert.Equal(t, "42", formatValue(42))
	assert.Equal(t, "42", formatValue(int64(42)))
	assert.Equal(t, "42", formatValue(uint64(42)))
	assert.Equal(t, "3.14", formatValue(3.14159))
}

func TestConvertFieldsToMap_CopiesAllEntries(t *testing.T) {
	fields := Fields{"x": 1, "y": "z"}
	m := convertFieldsToMap(fields)
	assert.Equal(t, map[string]interface{}{"x": 1, "y": "z"}, m)
}

func TestLogAPIRequest_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		LogAPIRequest("req-1", "GET", "/api/v1/kernel/stats", "127.0.0.1", 0, 200)
	})
}
