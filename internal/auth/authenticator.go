// Package auth аутентификация запросов: JWT, ключи API и их композиции.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

const (
	authHeaderPrefix = "Bearer "
	apiKeyHeader     = "x-api-key"
	tokenQueryParam  = "token"
)

// Authenticator превращает запрос в принципала.
// domain.ErrNoCredentials означает, что стратегии нечего проверять.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*domain.Principal, error)
}

// AuthenticatorFunc адаптер функции к Authenticator
type AuthenticatorFunc func(ctx context.Context, r *http.Request) (*domain.Principal, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, r *http.Request) (*domain.Principal, error) {
	return f(ctx, r)
}

// ActiveSubscriptions чтение действующей подписки владельца
type ActiveSubscriptions interface {
	Active(ctx context.Context, tenant domain.TenantRef, now time.Time) (*domain.Subscription, error)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, authHeaderPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, authHeaderPrefix))
}

// JWTAuthenticator проверяет токен и загружает сущности принципала
type JWTAuthenticator struct {
	tokens   *TokenManager
	accounts repository.AccountRepository
	fleet    repository.FleetRepository
	log      *logger.Logger
}

func NewJWTAuthenticator(tokens *TokenManager, accounts repository.AccountRepository, fleet repository.FleetRepository, log *logger.Logger) *JWTAuthenticator {
	return &JWTAuthenticator{tokens: tokens, accounts: accounts, fleet: fleet, log: log}
}

// Authenticate берет токен из Bearer или из параметра token (websocket)
func (a *JWTAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*domain.Principal, error) {
	token := bearerToken(r)
	if token == "" {
		token = r.URL.Query().Get(tokenQueryParam)
	}
	if token == "" || LooksLikeAPIKey(token) {
		return nil, domain.ErrNoCredentials
	}

	claims, err := a.tokens.Validate(token)
	if err != nil {
		a.log.Debugw("JWT validation failed", "error", err, "path", r.URL.Path)
		return nil, domain.E(domain.KindUnauthorized, "invalid token", domain.ErrUnauthenticated)
	}

	principal, err := a.resolve(ctx, claims)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, errInvalidClaim) {
			return nil, domain.Unauthorized("principal not found")
		}
		return nil, err
	}
	return principal, nil
}

var errInvalidClaim = errors.New("invalid id claim")

func parseClaimID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errInvalidClaim
	}
	return id, nil
}

// resolve порядок важен: токен клиента содержит и company_id
func (a *JWTAuthenticator) resolve(ctx context.Context, claims *Claims) (*domain.Principal, error) {
	switch {
	case claims.ClientID != "":
		id, err := parseClaimID(claims.ClientID)
		if err != nil {
			return nil, err
		}
		client, err := a.fleet.GetClient(ctx, id)
		if err != nil {
			return nil, err
		}
		company, err := a.accounts.GetCompany(ctx, client.CompanyID)
		if err != nil {
			return nil, err
		}
		return &domain.Principal{
			Role:      domain.RoleClient,
			ClientID:  &client.ID,
			CompanyID: &company.ID,
			Client:    client,
			Company:   company,
		}, nil

	case claims.CompanyID != "":
		id, err := parseClaimID(claims.CompanyID)
		if err != nil {
			return nil, err
		}
		company, err := a.accounts.GetCompany(ctx, id)
		if err != nil {
			return nil, err
		}
		return &domain.Principal{Role: domain.RoleCompany, CompanyID: &company.ID, Company: company}, nil

	case claims.DriverID != "":
		id, err := parseClaimID(claims.DriverID)
		if err != nil {
			return nil, err
		}
		driver, err := a.accounts.GetDriver(ctx, id)
		if err != nil {
			return nil, err
		}
		principal := &domain.Principal{Role: domain.RoleDriver, DriverID: &driver.ID, Driver: driver}

		vehicle, err := a.fleet.GetVehicleByDriver(ctx, driver.ID)
		switch {
		case err == nil:
			principal.VehicleID = &vehicle.ID
			principal.CompanyID = &vehicle.CompanyID
		case !errors.Is(err, repository.ErrNotFound):
			return nil, err
		}
		return principal, nil

	case claims.UserID != "":
		id, err := parseClaimID(claims.UserID)
		if err != nil {
			return nil, err
		}
		user, err := a.accounts.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		return &domain.Principal{Role: domain.RoleUser, UserID: &user.ID, User: user}, nil

	case claims.AdminID != "":
		id, err := parseClaimID(claims.AdminID)
		if err != nil {
			return nil, err
		}
		admin, err := a.accounts.GetAdmin(ctx, id)
		if err != nil {
			return nil, err
		}
		return &domain.Principal{Role: domain.RoleAdmin, AdminID: &admin.ID, Admin: admin}, nil
	}

	return nil, errInvalidClaim
}

// APIKeyAuthenticator ищет ключ по SHA-256 и требует активную подписку на API план
type APIKeyAuthenticator struct {
	keys     repository.APIKeyRepository
	accounts repository.AccountRepository
	subs     ActiveSubscriptions
	log      *logger.Logger
	now      func() time.Time
}

func NewAPIKeyAuthenticator(keys repository.APIKeyRepository, accounts repository.AccountRepository, subs ActiveSubscriptions, log *logger.Logger) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{keys: keys, accounts: accounts, subs: subs, log: log, now: time.Now}
}

func apiKeyFromRequest(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key
	}
	if token := bearerToken(r); LooksLikeAPIKey(token) {
		return token
	}
	return ""
}

func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*domain.Principal, error) {
	raw := apiKeyFromRequest(r)
	if raw == "" {
		return nil, domain.ErrNoCredentials
	}

	now := a.now()
	key, err := a.keys.GetByHash(ctx, HashAPIKey(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Unauthorized("invalid api key")
		}
		return nil, err
	}
	if !key.Usable(now) {
		return nil, domain.Unauthorized("api key is inactive, revoked or expired")
	}

	user, err := a.accounts.GetUser(ctx, key.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Unauthorized("invalid api key")
		}
		return nil, err
	}

	if err := a.keys.TouchLastUsed(ctx, key.ID, now); err != nil {
		a.log.Warnw("Failed to update api key last use", "error", err, "keyID", key.ID)
	}

	sub, err := a.subs.Active(ctx, domain.TenantRef{Kind: domain.TenantUser, ID: user.ID}, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.PaymentRequired("active API subscription required")
		}
		return nil, err
	}
	if sub.PlanKind != domain.PlanAPI || !sub.IsLive(now) {
		return nil, domain.PaymentRequired("active API subscription required")
	}

	return &domain.Principal{
		Role:     domain.RoleUser,
		UserID:   &user.ID,
		User:     user,
		APIKeyID: &key.ID,
		APIKey:   key,
	}, nil
}

// Chain пробует стратегии по очереди до первого успеха
// или первой ошибки, отличной от отсутствия учетных данных
func Chain(strategies ...Authenticator) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, r *http.Request) (*domain.Principal, error) {
		for _, s := range strategies {
			principal, err := s.Authenticate(ctx, r)
			if err == nil {
				return principal, nil
			}
			if !errors.Is(err, domain.ErrNoCredentials) {
				return nil, err
			}
		}
		return nil, domain.ErrNoCredentials
	})
}

// Optional без учетных данных возвращает анонимного принципала,
// предъявленные но неверные учетные данные по-прежнему отклоняются
func Optional(strategy Authenticator) Authenticator {
	return AuthenticatorFunc(func(ctx context.Context, r *http.Request) (*domain.Principal, error) {
		principal, err := strategy.Authenticate(ctx, r)
		if errors.Is(err, domain.ErrNoCredentials) {
			return domain.Anonymous(), nil
		}
		return principal, err
	})
}
