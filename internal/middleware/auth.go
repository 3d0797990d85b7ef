// Package middleware guards the control plane's destructive admin routes
// (hard reset, synapse-snapshot restore) behind a short-lived bearer JWT.
// Adapted from the teacher's internal/middleware/auth.go: the user/DB lookup
// is dropped entirely (this domain has no user accounts), leaving a single
// admin scope claim checked against a session token minted by
// IssueAdminSession.
package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/Conceptual-Machines/magda-api/internal/config"
)

const (
	bearerPrefix    = "Bearer"
	adminScope      = "admin"
	sessionLifetime = time.Hour
)

// AdminClaims is the payload of an admin session JWT.
type AdminClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

var errInvalidBootstrapToken = errors.New("invalid admin bootstrap token")

// IssueAdminSession verifies token against the configured bootstrap admin
// token hash and, on success, mints a short-lived HS256 session JWT scoped
// to "admin".
func IssueAdminSession(cfg *config.Config, token string) (string, error) {
	if !cfg.VerifyAdminToken(token) {
		return "", errInvalidBootstrapToken
	}

	claims := AdminClaims{
		Scope: adminScope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionLifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(cfg.AdminJWTSecret))
}

// AdminAuth requires a valid admin-scoped bearer session JWT. When
// cfg.RequiresAdminAuth() is false (AUTH_MODE != "token", the self-hosted
// default) it is a pass-through, matching the teacher's AUTH_MODE=none
// shape for NoAuth.
func AdminAuth(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.RequiresAdminAuth() {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		var tokenString string
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == bearerPrefix {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "admin session token required"})
			c.Abort()
			return
		}

		claims := &AdminClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return []byte(cfg.AdminJWTSecret), nil
		})
		if err != nil || !token.Valid || claims.Scope != adminScope {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired admin session"})
			c.Abort()
			return
		}

		c.Next()
	}
}
