package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/internal/auth"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/okdriver/okdriver-backend/pkg/res"
)

const principalKey = "okdriver.principal"

// PrincipalFrom принципал текущего запроса. Без аутентификации - анонимный.
func PrincipalFrom(c *gin.Context) *domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(*domain.Principal); ok && p != nil {
			return p
		}
	}
	return domain.Anonymous()
}

// SetPrincipal кладет принципала в контекст gin
func SetPrincipal(c *gin.Context, p *domain.Principal) {
	c.Set(principalKey, p)
}

func abort(c *gin.Context, err error, log *logger.Logger) {
	res.Error(c.Writer, err, log)
	c.Abort()
}

// Authenticate выполняет стратегию до обработчика и сохраняет принципала.
// Если заданы роли, принципал другой роли получает 401.
func Authenticate(authn auth.Authenticator, log *logger.Logger, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := authn.Authenticate(c.Request.Context(), c.Request)
		if err != nil {
			if errors.Is(err, domain.ErrNoCredentials) {
				err = domain.E(domain.KindUnauthorized, "authentication required", err)
			}
			abort(c, err, log)
			return
		}
		if !principal.HasRole(roles...) {
			abort(c, domain.Unauthorized("insufficient role"), log)
			return
		}

		SetPrincipal(c, principal)
		c.Next()
	}
}

// RoleForTenant роль, под которой живут маршруты владельца подписки
func RoleForTenant(kind domain.TenantKind) domain.Role {
	switch kind {
	case domain.TenantCompany:
		return domain.RoleCompany
	case domain.TenantDriver:
		return domain.RoleDriver
	case domain.TenantUser:
		return domain.RoleUser
	}
	return domain.RoleAnonymous
}

// RequireRole ставится после Authenticate на маршрутах конкретной роли.
// Чужая роль получает 404, маршрут для нее как будто не существует.
func RequireRole(log *logger.Logger, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !PrincipalFrom(c).HasRole(roles...) {
			abort(c, domain.NotFound("resource not found"), log)
			return
		}
		c.Next()
	}
}

// RequireActivePlan пропускает только владельцев с действующей подпиской (иначе 402)
func RequireActivePlan(subs *service.SubscriptionService, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenant, ok := PrincipalFrom(c).Tenant()
		if !ok {
			abort(c, domain.Unauthorized("authentication required"), log)
			return
		}
		if _, err := subs.RequireActive(c.Request.Context(), tenant); err != nil {
			abort(c, err, log)
			return
		}
		c.Next()
	}
}

// Recovery превращает панику обработчика в 500 с единым конвертом
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Errorw("Panic recovered", "panic", recovered, "path", c.Request.URL.Path)
		if c.Writer.Written() {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		abort(c, domain.Internal("internal server error", errors.New("panic")), nil)
	})
}
