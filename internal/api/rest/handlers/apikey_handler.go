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

// APIKeyHandler ключи API пользователя и /api/v1/me
type APIKeyHandler struct {
	keys *service.APIKeyService
	log  *logger.Logger
}

func NewAPIKeyHandler(keys *service.APIKeyService, log *logger.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: keys, log: log}
}

func userID(c *gin.Context) (uuid.UUID, error) {
	p := middleware.PrincipalFrom(c)
	if p.UserID == nil {
		return uuid.Nil, domain.Unauthorized("user authentication required")
	}
	return *p.UserID, nil
}

// Create сырой ключ возвращается только в этом ответе
func (h *APIKeyHandler) Create(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	body, err := req.HandleBody[service.CreateAPIKeyInput](c.Request.Body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	key, err := h.keys.Create(c.Request.Context(), user, *body)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	created(c, key)
}

func (h *APIKeyHandler) List(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	keys, err := h.keys.List(c.Request.Context(), user)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, keys)
}

func (h *APIKeyHandler) Revoke(c *gin.Context) {
	user, err := userID(c)
	if err != nil {
		fail(c, err, h.log)
		return
	}
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, err, h.log)
		return
	}
	if err := h.keys.Revoke(c.Request.Context(), user, id); err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, gin.H{"id": id, "revoked": true})
}

func (h *APIKeyHandler) Me(c *gin.Context) {
	me, err := h.keys.Me(c.Request.Context(), middleware.PrincipalFrom(c))
	if err != nil {
		fail(c, err, h.log)
		return
	}
	ok(c, me)
}
