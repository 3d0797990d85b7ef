package api

import (
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

func newTestRouterAndBridge(t *testing.T, cfg *config.Config) (*gin.Engine, *bridge.Bridge) {
	t.Helper()
	r := region.NewRegion(region.Config{
		NodeCapacity:        32,
		CommandRingCapacity: 32,
		SynapseCapacity:     32,
		PPQ:                 480,
		TempoBPM:            120,
		InstanceID:          "router-test-instance",
	})
	m := mmu.New(r)
	b := bridge.New(r, m)
	if cfg == nil {
		cfg = &config.Config{AuthMode: "none"}
	}
	router := SetupRouter(cfg, b, nil, "test-version")
	return router, b
}

func TestSetupRouter_HealthEndpointReachable(t *testing.T) {
	router, _ := newTestRouterAndBridge(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRouter_KernelStatsEndpointReachable(t *testing.T) {
	router, _ := newTestRouterAndBridge(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/kernel/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRouter_AdminHardReset_RequiresAuthInTokenMode(t *testing.T) {
	hash, err := config.HashToken("bootstrap")
	require.NoError(t, err)
	cfg := &config.Config{AuthMode: "token", AdminJWTSecret: "secret", AdminTokenHash: hash}
	router, _ := newTestRouterAndBridge(t, cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/hard-reset", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSetupRouter_AdminHardReset_OpenWhenAuthModeNone(t *testing.T) {
	router, _ := newTestRouterAndBridge(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/hard-reset", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSetupRouter_NotFoundForUnknownRoute(t *testing.T) {
	router, _ := newTestRouterAndBridge(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
