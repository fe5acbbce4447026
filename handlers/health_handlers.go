package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Pinger is anything with a health check, such as the database pools.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

type HealthHandlers struct {
	Checks map[string]Pinger
	Log    *logrus.Logger
}

func NewHealthHandlers(checks map[string]Pinger, log *logrus.Logger) *HealthHandlers {
	return &HealthHandlers{Checks: checks, Log: log}
}

func (h *HealthHandlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, "Backend")
}

// Health reports each dependency as "ok" or "down" and answers 503 if any is down.
func (h *HealthHandlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	services := make(map[string]string, len(h.Checks))
	for name, p := range h.Checks {
		if err := p.HealthCheck(ctx); err != nil {
			h.Log.WithError(err).WithField("service", name).Warn("health check failed")
			services[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		services[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "services": services})
}
