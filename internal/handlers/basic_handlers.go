package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PingHandler GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// HealthCheckHandler reports liveness and how many sources can currently quote.
// GET /health
func (h *AdminHandler) HealthCheckHandler(c *gin.Context) {
	r := h.reporter.Report()
	enabled, healthy := 0, 0
	for i, d := range r.Sources {
		if !d.Enabled {
			continue
		}
		enabled++
		if i < len(r.Health) && r.Health[i].Healthy {
			healthy++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"service":        "route-aggregator",
		"sourcesEnabled": enabled,
		"sourcesHealthy": healthy,
	})
}
