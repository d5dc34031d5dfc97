package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// LoggerMiddleware создает middleware для логирования запросов
func LoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Время начала запроса
		startTime := time.Now()

		// Обработка запроса
		c.Next()

		// Длительность запроса
		latency := time.Since(startTime)

		// Получаем код статуса
		statusCode := c.Writer.Status()

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", statusCode,
			"latency", latency.String(),
			"ip", c.ClientIP(),
		}
		if p := PrincipalFrom(c); !p.IsAnonymous() {
			fields = append(fields, "role", p.Role)
		}

		// Уровень лога зависит от статуса
		switch {
		case statusCode >= 500:
			log.Errorw("HTTP request", fields...)
		case statusCode >= 400:
			log.Warnw("HTTP request", fields...)
		default:
			log.Infow("HTTP request", fields...)
		}
	}
}
