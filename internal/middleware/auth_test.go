package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/magda-api/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testRouter(cfg *config.Config) *gin.Engine {
	router := gin.New()
	router.GET("/admin/reset", AdminAuth(cfg), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestAdminAuth_PassesThroughWhenAuthModeIsNone(t *testing.T) {
	cfg := &config.Config{AuthMode: "none"}
	router := testRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/admin/reset", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth_RejectsMissingBearerTokenWhenTokenModeEnabled(t *testing.T) {
	cfg := &config.Config{AuthMode: "token", AdminJWTSecret: "secret"}
	router := testRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/admin/reset", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_RejectsMalformedAuthorizationHeader(t *testing.T) {
	cfg := &config.Config{AuthMode: "token", AdminJWTSecret: "secret"}
	router := testRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/admin/reset", nil)
	req.Header.Set("Authorization", "not-a-bearer-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminAuth_AcceptsValidSessionTokenFromIssueAdminSession(t *testing.T) {
	hash, err := config.HashToken("bootstrap-token")
	require.NoError(t, err)
	cfg := &config.Config{AuthMode: "token", AdminJWTSecret: "secret", AdminTokenHash: hash}

	session, err := IssueAdminSession(cfg, "bootstrap-token")
	require.NoError(t, err)

	router := testRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/admin/reset", nil)
	req.Header.Set("Authorization", "Bearer "+session)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth_RejectsTokenSignedWithDifferentSecret(t *testing.T) {
	hash, err := config.HashToken("bootstrap-token")
	require.NoError(t, err)
	issuingCfg := &config.Config{AuthMode: "token", AdminJWTSecret: "secret-a", AdminTokenHash: hash}
	session, err := IssueAdminSession(issuingCfg, "bootstrap-token")
	require.NoError(t, err)

	verifyingCfg := &config.Config{AuthMode: "token", AdminJWTSecret: "secret-b"}
	router := testRouter(verifyingCfg)
	req := httptest.NewRequest(http.MethodGet, "/admin/reset", nil)
	req.Header.Set("Authorization", "Bearer "+session)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueAdminSession_RejectsWrongBootstrapToken(t *testing.T) {
	hash, err := config.HashToken("bootstrap-token")
	require.NoError(t, err)
	cfg := &config.Config{AdminTokenHash: hash, AdminJWTSecret: "secret"}

	_, err = IssueAdminSession(cfg, "wrong-token")
	assert.ErrorIs(t, err, errInvalidBootstrapToken)
}
