package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/api/rest/middleware"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/req"
)

// PlanHandler один набор обработчиков для всех видов планов, вид берется из пути
type PlanHandler struct {
	plans *service.PlanService
	subs  *service.SubscriptionService
	log   *logger.Logger
}

func NewPlanHandler(plans *service.PlanService, subs *service.SubscriptionService, log *logger.Logger) *PlanHandler {
	return &PlanHandler{plans: plans, subs: subs, log: log}
}

func planKind(c *gin.Context) (domain.PlanKind, error) {
	kind, ok := domain.ParsePlanKindPath(c.Param("kind"))
	if !ok {
		return "", domain.NotFound("unknown plan kind")
	}
	return kind, nil
}

// ListPublic GET /api/plans/:kind только активные планы
func (h *PlanHandler) ListPublic(c *gin.Context) {
	h.list(c, false)
}

// ListAll GET /api/admin/plans/:kind включая неактивные
func (h *PlanHandler) ListAll(c *gin.Context) {
	h.list(c, true)
}

func (h *PlanHandler) list(c *gin.Context, includeInactive bool) {
	kind, err := planKind(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	plans, err := h.plans.List(c.Request.Context(), kind, includeInactive)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, plans)
}

func (h *PlanHandler) Get(c *gin.Context) {
	kind, id, err := planKindAndID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	plan, err := h.plans.Get(c.Request.Context(), kind, id)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, plan)
}

func (h *PlanHandler) Create(c *gin.Context) {
	kind, err := planKind(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	body, err := req.HandleBody[service.PlanInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	plan, err := h.plans.Create(c.Request.Context(), kind, *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	h.log.Infow("Plan created", "planID", plan.ID, "kind", kind)
	created(c, plan)
}

func (h *PlanHandler) Update(c *gin.Context) {
	kind, id, err := planKindAndID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	body, err := req.HandleBody[service.PlanInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	plan, err := h.plans.Update(c.Request.Context(), kind, id, *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, plan)
}

// Delete мягкое удаление. План с действующими подписками не удаляется (400).
func (h *PlanHandler) Delete(c *gin.Context) {
	kind, id, err := planKindAndID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	if err := h.plans.Delete(c.Request.Context(), kind, id); err != nil {
		fail(c, err, h.log)
		return
	}
	h.log.Infow("Plan deactivated", "planID", id, "kind", kind)
	ok(c, gin.H{"id": id, "is_active": false})
}

func planKindAndID(c *gin.Context) (domain.PlanKind, uuid.UUID, error) {
	kind, err := planKind(c)
	if err != nil {
		return "", uuid.Nil, err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return "", uuid.Nil, err
	}
	return kind, id, nil
}

// APIPlans GET /api/v1/plans. Аутентифицированный пользователь видит еще и свой текущий план.
func (h *PlanHandler) APIPlans(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context(), domain.PlanAPI, false)
	if err != nil {
		fail(c, err, h.log)
		return
	}

	body := gin.H{"plans": plans}
	if tenant, authenticated := middleware.PrincipalFrom(c).Tenant(); authenticated {
		state, err := h.subs.Active(c.Request.Context(), tenant)
		if err != nil {
			fail(c, err, h.log)
			return
		}
		var current *uuid.UUID
		if state.Subscription != nil {
			current = &state.Subscription.PlanID
		}
		body["current_plan_id"] = current
	}
	ok(c, body)
}
