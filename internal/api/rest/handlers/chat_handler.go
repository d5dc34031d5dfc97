package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/internal/api/rest/middleware"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/req"
)

const defaultChatPageSize = 50

// ConversationResolver определяет переписку и отправителя по запросу
type ConversationResolver func(c *gin.Context) (domain.Conversation, service.ChatSender, error)

// ChatHandler одни и те же обработчики для всех сторон переписки
type ChatHandler struct {
	chat *service.ChatService
	log  *logger.Logger
}

func NewChatHandler(chat *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, log: log}
}

// CompanyVehicle переписка компании с машиной из пути
func (h *ChatHandler) CompanyVehicle(c *gin.Context) (domain.Conversation, service.ChatSender, error) {
	company, err := companyID(c)
	if err != nil {
		return domain.Conversation{}, service.ChatSender{}, err
	}
	vehicleID, err := pathID(c, "vehicleId")
	if err != nil {
		return domain.Conversation{}, service.ChatSender{}, err
	}
	conv, err := h.chat.VehicleConversation(c.Request.Context(), company, vehicleID)
	return conv, service.ChatSender{Type: domain.SenderCompany, ID: company}, err
}

// CompanyClient переписка компании с клиентом из пути
func (h *ChatHandler) CompanyClient(c *gin.Context) (domain.Conversation, service.ChatSender, error) {
	company, err := companyID(c)
	if err != nil {
		return domain.Conversation{}, service.ChatSender{}, err
	}
	clientID, err := pathID(c, "clientId")
	if err != nil {
		return domain.Conversation{}, service.ChatSender{}, err
	}
	conv, err := h.chat.ClientConversation(c.Request.Context(), company, clientID)
	return conv, service.ChatSender{Type: domain.SenderCompany, ID: company}, err
}

// Driver переписка водителя с компанией его машины
func (h *ChatHandler) Driver(c *gin.Context) (domain.Conversation, service.ChatSender, error) {
	p := middleware.PrincipalFrom(c)
	if p.DriverID == nil || p.VehicleID == nil || p.CompanyID == nil {
		return domain.Conversation{}, service.ChatSender{}, domain.NotFound("no vehicle assigned to driver")
	}
	conv := domain.VehicleConversation(*p.CompanyID, *p.VehicleID)
	return conv, service.ChatSender{Type: domain.SenderDriver, ID: *p.DriverID}, nil
}

// Client переписка клиента со своей компанией
func (h *ChatHandler) Client(c *gin.Context) (domain.Conversation, service.ChatSender, error) {
	p := middleware.PrincipalFrom(c)
	if p.ClientID == nil || p.CompanyID == nil {
		return domain.Conversation{}, service.ChatSender{}, domain.Unauthorized("client authentication required")
	}
	conv := domain.ClientConversation(*p.CompanyID, *p.ClientID)
	return conv, service.ChatSender{Type: domain.SenderClient, ID: *p.ClientID}, nil
}

// Messages GET история за последние сутки, page/limit
func (h *ChatHandler) Messages(resolve ConversationResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, _, err := resolve(c)
		if err != nil {
			fail(c, err, h.log)
			return
		}
		page, err := queryInt(c, "page", 1)
		if err != nil {
			fail(c, err, h.log)
			return
		}
		limit, err := queryInt(c, "limit", defaultChatPageSize)
		if err != nil {
			fail(c, err, h.log)
			return
		}

		history, err := h.chat.History(c.Request.Context(), conv, page, limit)
		if err != nil {
			fail(c, err, h.log)
			return
		}
		ok(c, history)
	}
}

// Send POST новое сообщение
func (h *ChatHandler) Send(resolve ConversationResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, sender, err := resolve(c)
		if err != nil {
			fail(c, err, h.log)
			return
		}
		body, err := req.HandleBody[service.SendMessageInput](c.Request.Body)
		if err != nil {
			fail(c, err, h.log)
			return
		}

		msg, err := h.chat.Send(c.Request.Context(), conv, sender, body.Message)
		if err != nil {
			fail(c, err, h.log)
			return
		}
		created(c, msg)
	}
}

// MarkRead PATCH .../read, отмечаются только сообщения другой стороны
func (h *ChatHandler) MarkRead(resolve ConversationResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, reader, err := resolve(c)
		if err != nil {
			fail(c, err, h.log)
			return
		}
		body, err := req.HandleBody[service.MarkReadInput](c.Request.Body)
		if err != nil {
			fail(c, err, h.log)
			return
		}

		updated, err := h.chat.MarkRead(c.Request.Context(), conv, reader.Type, body.MessageIDs)
		if err != nil {
			fail(c, err, h.log)
			return
		}
		ok(c, gin.H{"updated": updated})
	}
}
