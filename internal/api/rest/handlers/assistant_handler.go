package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/internal/api/rest/middleware"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/req"
)

// AssistantHandler голосовой помощник водителя (только текст)
type AssistantHandler struct {
	assistant *service.AssistantService
	log       *logger.Logger
}

func NewAssistantHandler(assistant *service.AssistantService, log *logger.Logger) *AssistantHandler {
	return &AssistantHandler{assistant: assistant, log: log}
}

func (h *AssistantHandler) Chat(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	if p.DriverID == nil {
		fail(c, domain.Unauthorized("driver authentication required"), h.log)
		return
	}
	body, err := req.HandleBody[service.AssistantInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}

	reply, err := h.assistant.Chat(c.Request.Context(), *p.DriverID, *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, reply)
}
