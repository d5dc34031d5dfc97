// Package handlers HTTP обработчики REST API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/api/rest/middleware"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/res"
)

func fail(c *gin.Context, err error, log *logger.Logger) {
	res.Error(c.Writer, err, log)
	c.Abort()
}

func ok(c *gin.Context, data any) {
	res.OK(c.Writer, data, http.StatusOK)
}

func created(c *gin.Context, data any) {
	res.OK(c.Writer, data, http.StatusCreated)
}

// pathID разбирает UUID из параметра пути. Неверный формат - 400.
func pathID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, domain.Validation("invalid " + name)
	}
	return id, nil
}

func queryInt(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.Validation(name + " must be an integer")
	}
	return v, nil
}

// tenantOf владелец подписки текущего принципала
func tenantOf(c *gin.Context) (domain.TenantRef, error) {
	tenant, ok := middleware.PrincipalFrom(c).Tenant()
	if !ok {
		return domain.TenantRef{}, domain.Unauthorized("authentication required")
	}
	return tenant, nil
}

func companyID(c *gin.Context) (uuid.UUID, error) {
	p := middleware.PrincipalFrom(c)
	if p.CompanyID == nil {
		return uuid.Nil, domain.Unauthorized("company authentication required")
	}
	return *p.CompanyID, nil
}
