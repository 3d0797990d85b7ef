package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Conceptual-Machines/magda-api/internal/api/handlers"
	"github.com/Conceptual-Machines/magda-api/internal/api/middleware"
	"github.com/Conceptual-Machines/magda-api/internal/config"
	"github.com/Conceptual-Machines/magda-api/internal/kernel/bridge"
	internalmiddleware "github.com/Conceptual-Machines/magda-api/internal/middleware"
	"github.com/Conceptual-Machines/magda-api/internal/store"
)

// SetupRouter builds the control-plane engine over b: health, introspection,
// and admin routes guarded by internalmiddleware.AdminAuth. st may be nil —
// the snapshot routes then report 503 rather than panicking.
func SetupRouter(cfg *config.Config, b *bridge.Bridge, st *store.Store, version string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RecoverWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.RequestTracking())
	router.Use(middleware.CORS())

	kernelHandler := handlers.NewKernelHandler(b, cfg, st, version)

	router.GET("/health", kernelHandler.HealthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/kernel/stats", kernelHandler.Stats)

		admin := v1.Group("/admin")
		{
			admin.POST("/session", kernelHandler.AdminSession)

			protected := admin.Group("")
			protected.Use(internalmiddleware.AdminAuth(cfg))
			{
				protected.POST("/hard-reset", kernelHandler.HardReset)
				protected.POST("/snapshot/save", kernelHandler.SnapshotSave)
				protected.POST("/snapshot/restore", kernelHandler.SnapshotRestore)
			}
		}
	}

	return router
}
