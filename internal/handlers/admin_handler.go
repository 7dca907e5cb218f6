package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"route-aggregator/internal/services"
)

// StatusReporter produces the operator view of the sources.
type StatusReporter interface {
	Report() services.StatusReport
}

// AdminHandler serves read-only operator introspection
type AdminHandler struct {
	reporter StatusReporter
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(reporter StatusReporter) *AdminHandler {
	return &AdminHandler{reporter: reporter}
}

// GetSourcesHandler GET /api/v1/admin/sources
func (h *AdminHandler) GetSourcesHandler(c *gin.Context) {
	r := h.reporter.Report()
	enabled := 0
	for _, d := range r.Sources {
		if d.Enabled {
			enabled++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"sources": r.Sources,
		"total":   len(r.Sources),
		"enabled": enabled,
	})
}

// GetHealthHandler GET /api/v1/admin/health
func (h *AdminHandler) GetHealthHandler(c *gin.Context) {
	r := h.reporter.Report()
	c.JSON(http.StatusOK, gin.H{"health": r.Health, "generatedAt": r.GeneratedAt})
}

// GetRateLimitsHandler GET /api/v1/admin/rate-limits
func (h *AdminHandler) GetRateLimitsHandler(c *gin.Context) {
	r := h.reporter.Report()
	c.JSON(http.StatusOK, gin.H{"rateLimits": r.RateLimits, "generatedAt": r.GeneratedAt})
}

// GetQualityHandler GET /api/v1/admin/quality
func (h *AdminHandler) GetQualityHandler(c *gin.Context) {
	r := h.reporter.Report()
	c.JSON(http.StatusOK, gin.H{"quality": r.Quality, "generatedAt": r.GeneratedAt})
}

// GetStatusHandler GET /api/v1/admin/status
// Full report, the same document the stream pushes
func (h *AdminHandler) GetStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.reporter.Report())
}
