package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checks []HealthCheck
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// LivenessProbe checks if the application is running.
func (h *HealthHandler) LivenessProbe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"time":   time.Now(),
	})
}

// ReadinessProbe checks if the application is ready to serve traffic.
func (h *HealthHandler) ReadinessProbe(c *gin.Context) {
	ctx := c.Request.Context()

	body := gin.H{"status": "UP", "time": time.Now()}
	status := http.StatusOK
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			body[hc.Name] = "unhealthy"
			body["error"] = err.Error()
			body["status"] = "DOWN"
			status = http.StatusServiceUnavailable
			continue
		}
		body[hc.Name] = "healthy"
	}

	c.JSON(status, body)
}
