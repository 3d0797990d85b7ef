package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/magda-api/internal/config"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/bridge"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/mmu"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/region"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestKernelHandler(t *testing.T, cfg *config.Config) (*KernelHandler, *bridge.Bridge) {
	t.Helper()
	r := region.NewRegion(region.Config{
		NodeCapacity:        32,
		CommandRingCapacity: 32,
		SynapseCapacity:     32,
		PPQ:                 480,
		TempoBPM:            120,
		InstanceID:          "test-instance",
	})
	m := mmu.New(r)
	b := bridge.New(r, m)
	if cfg == nil {
		cfg = &config.Config{AuthMode: "none"}
	}
	return NewKernelHandler(b, cfg, nil, "test-version"), b
}

func TestKernelHandler_HealthCheck_ReportsOKWhenNoFatalError(t *testing.T) {
	h, _ := newTestKernelHandler(t, nil)
	router := gin.New()
	router.GET("/health", h.HealthCheck)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test-instance", body["instance_id"])
}

func TestKernelHandler_Stats_ReturnsOccupancySnapshot(t *testing.T) {
	h, b := newTestKernelHandler(t, nil)
	sourceID := b.GenerateSourceID()
	b.InsertAsync(region.OpNote, 60, 100, 480, 0, false, sourceID, 0, 0)
	b.MMU.ProcessCommands(mmu.Audio)

	router := gin.New()
	router.GET("/stats", h.Stats)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 1, body["live_nodes"])
}

func TestKernelHandler_AdminSession_RejectsWrongToken(t *testing.T) {
	hash, err := config.HashToken("bootstrap")
	require.NoError(t, err)
	cfg := &config.Config{AuthMode: "token", AdminJWTSecret: "secret", AdminTokenHash: hash}
	h, _ := newTestKernelHandler(t, cfg)

	router := gin.New()
	router.POST("/admin/session", h.AdminSession)

	body, err := json.Marshal(AdminSessionRequest{Token: "wrong"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admin/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKernelHandler_AdminSession_IssuesTokenOnSuccess(t *testing.T) {
	hash, err := config.HashToken("bootstrap")
	require.NoError(t, err)
	cfg := &config.Config{AuthMode: "token", AdminJWTSecret: "secret", AdminTokenHash: hash}
	h, _ := newTestKernelHandler(t, cfg)

	router := gin.New()
	router.POST("/admin/session", h.AdminSession)

	body, err := json.Marshal(AdminSessionRequest{Token: "bootstrap"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admin/session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["token"])
}

func TestKernelHandler_HardReset_ResetsBridgeState(t *testing.T) {
	h, b := newTestKernelHandler(t, nil)
	b.GenerateSourceID()
	b.GenerateSourceID()

	router := gin.New()
	router.POST("/admin/reset", h.HardReset)

	req := httptest.NewRequest(http.MethodPost, "/admin/reset", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), b.GenerateSourceID())
}

func TestKernelHandler_SnapshotSave_ReturnsServiceUnavailableWithoutStore(t *testing.T) {
	h, _ := newTestKernelHandler(t, nil)
	router := gin.New()
	router.POST("/admin/snapshot/save", h.SnapshotSave)

	req := httptest.NewRequest(http.MethodPost, "/admin/snapshot/save", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestKernelHandler_SnapshotRestore_ReturnsServiceUnavailableWithoutStore(t *testing.T) {
	h, _ := newTestKernelHandler(t, nil)
	router := gin.New()
	router.POST("/admin/snapshot/restore", h.SnapshotRestore)

	req := httptest.NewRequest(http.MethodPost, "/admin/snapshot/restore", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
