package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"route-aggregator/internal/config"
	"route-aggregator/internal/middleware"
)

// SetupAPIRoutes mounts the versioned public and operator APIs.
func SetupAPIRoutes(r *gin.Engine, cfg *config.Config, h Handlers, logger *logrus.Logger) {
	throttle := middleware.NewClientThrottle(cfg.Throttle.RequestsPerSecond, cfg.Throttle.Burst, logger)
	localhostOnly := middleware.NewLocalhostOnly(logger, cfg.Admin.AllowedIPs)
	adminAuth := middleware.NewAdminAuthMiddleware(cfg.Admin.JWTSecret, logger)

	v1 := r.Group("/api/v1")

	// ============ Public: quotes & executions ============
	public := v1.Group("", throttle.Limit())
	{
		public.POST("/quotes", h.Quotes.GetQuotesHandler)
		public.POST("/executions", h.Quotes.PrepareExecutionHandler)
	}

	// ============ Operator login (IP allowlist only) ============
	v1.POST("/admin/auth/login", localhostOnly.Restrict(), h.AdminAuth.AdminLoginHandler)

	// ============ Operator introspection ============
	admin := v1.Group("/admin", localhostOnly.Restrict(), adminAuth.RequireAdminAuth())
	{
		admin.GET("/sources", h.Admin.GetSourcesHandler)
		admin.GET("/health", h.Admin.GetHealthHandler)
		admin.GET("/rate-limits", h.Admin.GetRateLimitsHandler)
		admin.GET("/quality", h.Admin.GetQualityHandler)
		admin.GET("/status", h.Admin.GetStatusHandler)
		admin.GET("/stream", h.Stream.HandleStream)
	}
}
