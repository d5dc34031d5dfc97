package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/req"
)

// TicketHandler обращения компаний в поддержку
type TicketHandler struct {
	tickets *service.TicketService
	log     *logger.Logger
}

func NewTicketHandler(tickets *service.TicketService, log *logger.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, log: log}
}

func (h *TicketHandler) Create(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	body, err := req.HandleBody[service.CreateTicketInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ticket, err := h.tickets.Create(c.Request.Context(), company, *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	created(c, ticket)
}

func (h *TicketHandler) ListOwn(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	tickets, err := h.tickets.ListForCompany(c.Request.Context(), company)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, tickets)
}

// GetOwn чужое обращение - 404
func (h *TicketHandler) GetOwn(c *gin.Context) {
	company, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ticket, err := h.tickets.GetForCompany(c.Request.Context(), company, id)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, ticket)
}

// List все обращения для администратора, ?status= фильтрует
func (h *TicketHandler) List(c *gin.Context) {
	status := domain.TicketStatus(strings.ToUpper(c.Query("status")))
	tickets, err := h.tickets.List(c.Request.Context(), status)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, tickets)
}

func (h *TicketHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ticket, err := h.tickets.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, ticket)
}

func (h *TicketHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, err, h.log)
		return
	}
	body, err := req.HandleBody[service.UpdateTicketInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ticket, err := h.tickets.Update(c.Request.Context(), id, *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, ticket)
}
