package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/res"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck проверка одной зависимости (БД, Redis, NATS)
type HealthCheck func(ctx context.Context) error

// HealthHandler обработчик для проверки работоспособности сервиса
type HealthHandler struct {
	checks map[string]HealthCheck
	log    *logger.Logger
}

func NewHealthHandler(checks map[string]HealthCheck, log *logger.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, log: log}
}

// Health 200, если все зависимости отвечают, иначе 503 со статусом каждой
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warnw("Health check failed", "component", name, "error", err)
			components[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "up"
	}

	overall := "OK"
	if status != http.StatusOK {
		overall = "DEGRADED"
	}
	res.JsonResponse(c.Writer, gin.H{
		"status":     overall,
		"time":       time.Now().Format(time.RFC3339),
		"components": components,
	}, status)
}
