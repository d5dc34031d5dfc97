package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/req"
)

// SubscriptionHandler обработчик для подписок
type SubscriptionHandler struct {
	subs *service.SubscriptionService
	log  *logger.Logger
}

// NewSubscriptionHandler создает новый обработчик подписок
func NewSubscriptionHandler(subs *service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subs: subs, log: log}
}

type selectPlanRequest struct {
	PlanID uuid.UUID `json:"plan_id" validate:"required"`
}

type assignPlanRequest struct {
	TenantKind domain.TenantKind `json:"tenant_kind" validate:"required,oneof=COMPANY DRIVER USER"`
	TenantID   uuid.UUID         `json:"tenant_id" validate:"required"`
	PlanID     uuid.UUID         `json:"plan_id" validate:"required"`
}

// GetActive действующая подписка владельца
func (h *SubscriptionHandler) GetActive(c *gin.Context) {
	tenant, err := tenantOf(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	state, err := h.subs.Active(c.Request.Context(), tenant)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, state)
}

func (h *SubscriptionHandler) History(c *gin.Context) {
	tenant, err := tenantOf(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	subs, err := h.subs.History(c.Request.Context(), tenant)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, subs)
}

// Select прямой выбор бесплатного плана
func (h *SubscriptionHandler) Select(c *gin.Context) {
	tenant, err := tenantOf(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	body, err := req.HandleBody[selectPlanRequest](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}

	sub, err := h.subs.Select(c.Request.Context(), tenant, body.PlanID)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	h.log.Infow("Created subscription", "subscriptionID", sub.ID, "tenant", tenant.String())
	created(c, sub)
}

func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	tenant, err := tenantOf(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	sub, err := h.subs.Cancel(c.Request.Context(), tenant)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	h.log.Infow("Cancelled subscription", "subscriptionID", sub.ID, "tenant", tenant.String())
	ok(c, sub)
}

// Limits эффективные лимиты компании с учетом пополнений
func (h *SubscriptionHandler) Limits(c *gin.Context) {
	id, err := companyID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	limits, err := h.subs.Limits(c.Request.Context(), id)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, limits)
}

// AdminAssign назначение плана администратором без оплаты
func (h *SubscriptionHandler) AdminAssign(c *gin.Context) {
	body, err := req.HandleBody[assignPlanRequest](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}

	tenant := domain.TenantRef{Kind: body.TenantKind, ID: body.TenantID}
	sub, err := h.subs.AdminAssign(c.Request.Context(), tenant, body.PlanID)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	h.log.Infow("Plan assigned by admin", "subscriptionID", sub.ID, "tenant", tenant.String(), "planID", body.PlanID)
	created(c, sub)
}
