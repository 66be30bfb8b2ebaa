package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crm-agent-pipeline/internal/services"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler reports service liveness plus workflow counters. Agent
// probes live under the coordinator health endpoint; this one stays cheap.
type HealthHandler struct {
	coordinator *services.Coordinator
	deps        map[string]Pinger
	startedAt   time.Time
}

func NewHealthHandler(coordinator *services.Coordinator, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{coordinator: coordinator, deps: deps, startedAt: time.Now()}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	overall := "healthy"
	dependencies := map[string]string{}
	for name, dep := range h.deps {
		if err := dep.HealthCheck(ctx); err != nil {
			dependencies[name] = "error"
			overall = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		dependencies[name] = "healthy"
	}

	c.JSON(status, gin.H{
		"status":         overall,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"dependencies":   dependencies,
		"workflows":      h.coordinator.Stats(),
	})
}
