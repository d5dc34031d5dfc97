package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/internal/api/rest/middleware"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/req"
)

// AuthHandler регистрация и вход всех ролей
type AuthHandler struct {
	accounts *service.AccountService
	log      *logger.Logger
}

func NewAuthHandler(accounts *service.AccountService, log *logger.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, log: log}
}

func (h *AuthHandler) RegisterCompany(c *gin.Context) {
	body, err := req.HandleBody[service.RegisterCompanyInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	result, err := h.accounts.RegisterCompany(c.Request.Context(), *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	h.log.Infow("Company registered", "companyID", result.Company.ID)
	created(c, result)
}

func (h *AuthHandler) LoginCompany(c *gin.Context) {
	h.emailLogin(c, h.accounts.LoginCompany)
}

func (h *AuthHandler) LoginClient(c *gin.Context) {
	h.emailLogin(c, h.accounts.LoginClient)
}

func (h *AuthHandler) RegisterDriver(c *gin.Context) {
	body, err := req.HandleBody[service.RegisterDriverInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	result, err := h.accounts.RegisterDriver(c.Request.Context(), *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	h.log.Infow("Driver registered", "driverID", result.Driver.ID)
	created(c, result)
}

// LoginDriver вход водителя по телефону и паролю
func (h *AuthHandler) LoginDriver(c *gin.Context) {
	body, err := req.HandleBody[service.PhoneLogin](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	result, err := h.accounts.LoginDriver(c.Request.Context(), *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, result)
}

func (h *AuthHandler) RegisterUser(c *gin.Context) {
	body, err := req.HandleBody[service.RegisterUserInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	result, err := h.accounts.RegisterUser(c.Request.Context(), *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	h.log.Infow("User registered", "userID", result.User.ID)
	created(c, result)
}

func (h *AuthHandler) LoginUser(c *gin.Context) {
	h.emailLogin(c, h.accounts.LoginUser)
}

func (h *AuthHandler) LoginAdmin(c *gin.Context) {
	h.emailLogin(c, h.accounts.LoginAdmin)
}

func (h *AuthHandler) emailLogin(c *gin.Context, login func(ctx context.Context, in service.EmailLogin) (*service.AuthResult, error)) {
	body, err := req.HandleBody[service.EmailLogin](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	result, err := login(c.Request.Context(), *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, result)
}

// CurrentDriver профиль водителя из токена
func (h *AuthHandler) CurrentDriver(c *gin.Context) {
	p := middleware.PrincipalFrom(c)
	if p.DriverID == nil {
		fail(c, domain.Unauthorized("driver authentication required"), h.log)
		return
	}
	profile, err := h.accounts.DriverProfile(c.Request.Context(), *p.DriverID)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, profile)
}
