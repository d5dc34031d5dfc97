package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/internal/api/rest/middleware"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/realtime"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// RealtimeHandler GET /ws?token=<jwt>
type RealtimeHandler struct {
	hub *realtime.Hub
	log *logger.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, log *logger.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, log: log}
}

// Connect комнаты выбираются по роли принципала
func (h *RealtimeHandler) Connect(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	rooms := realtime.RoomsFor(p)
	if len(rooms) == 0 {
		fail(c, domain.NotFound("no realtime rooms for this account"), h.log)
		return
	}

	// После успешного upgrade ответ уже отправлен, ошибка только логируется
	if err := h.hub.Serve(c.Writer, c.Request, rooms...); err != nil {
		h.log.Warnw("Websocket session ended with error", "role", p.Role, "error", err)
	}
}
