package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// AdminHandler списки и карточки для панели администратора
type AdminHandler struct {
	accounts *service.AccountService
	subs     *service.SubscriptionService
	log      *logger.Logger
}

func NewAdminHandler(accounts *service.AccountService, subs *service.SubscriptionService, log *logger.Logger) *AdminHandler {
	return &AdminHandler{accounts: accounts, subs: subs, log: log}
}

func (h *AdminHandler) ListCompanies(c *gin.Context) {
	companies, err := h.accounts.ListCompanies(c.Request.Context())
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, companies)
}

// GetCompany карточка компании с машинами и историей подписок
func (h *AdminHandler) GetCompany(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, err, h.log)
		return
	}
	details, err := h.accounts.CompanyDetails(c.Request.Context(), id)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	details.Subscriptions, err = h.subs.History(c.Request.Context(), domain.TenantRef{Kind: domain.TenantCompany, ID: id})
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, details)
}

func (h *AdminHandler) ListDrivers(c *gin.Context) {
	drivers, err := h.accounts.ListDrivers(c.Request.Context())
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, drivers)
}

func (h *AdminHandler) GetDriver(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, err, h.log)
		return
	}
	profile, err := h.accounts.DriverProfile(c.Request.Context(), id)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	profile.Subscriptions, err = h.subs.History(c.Request.Context(), domain.TenantRef{Kind: domain.TenantDriver, ID: id})
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, profile)
}
