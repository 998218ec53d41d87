package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"catalogbridge/internal/recovery"
)

// HealthHandler exposes a liveness/readiness probe backed by a
// recovery.HealthChecker, so a misbehaving dependency (redis lock, paired
// device tunnel) shows up as a 503 instead of a hung merge.
type HealthHandler struct {
	checker *recovery.HealthChecker
}

// NewHealthHandler wraps checker for the /healthz route.
func NewHealthHandler(checker *recovery.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// Check handles GET /healthz.
func (h *HealthHandler) Check(c *gin.Context) {
	status := h.checker.CheckHealth(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
