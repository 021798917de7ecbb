package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/translation-dispatch/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// Health handles GET /health
func (h *TranslationHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:  "healthy",
		Service: h.serviceName,
	})
}

// HealthDetailed handles GET /health/detailed
// Reports 503 when the store or the broker is unreachable
func (h *TranslationHandler) HealthDetailed(c *gin.Context) {
	health := h.service.CheckHealth(c.Request.Context())

	checks := map[string]string{
		"database": "ok",
		"broker":   "connected",
	}
	if health.StoreErr != nil {
		checks["database"] = "unavailable"
		h.logger.Warn("Store health check failed", slog.Any("error", health.StoreErr))
	}
	if !health.BrokerConnected {
		checks["broker"] = "disconnected"
	}

	resp := dto.HealthResponse{
		Status:  "healthy",
		Service: h.serviceName,
		Checks:  checks,
	}
	if !health.Healthy() {
		resp.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}
