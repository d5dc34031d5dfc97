package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

const (
	// MaxActiveSubscriptionTTL верхняя граница жизни кеша действующей подписки
	MaxActiveSubscriptionTTL = 5 * time.Minute

	apiKeyCacheTTL = time.Minute
)

// ActiveCacheTTL min(5m, endAt-now). Ноль или меньше - не кешировать.
func ActiveCacheTTL(sub *domain.Subscription, now time.Time) time.Duration {
	ttl := sub.EndAt.Sub(now)
	if ttl > MaxActiveSubscriptionTTL {
		ttl = MaxActiveSubscriptionTTL
	}
	return ttl
}

// CachedSubscriptionRepository реализует SubscriptionRepository с кешированием действующей подписки
type CachedSubscriptionRepository struct {
	repo  SubscriptionRepository
	cache SubscriptionCache
	log   *logger.Logger
}

// NewCachedSubscriptionRepository создает новый репозиторий с кешированием
func NewCachedSubscriptionRepository(repo SubscriptionRepository, cache SubscriptionCache, log *logger.Logger) *CachedSubscriptionRepository {
	return &CachedSubscriptionRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Active сначала смотрит в кеш. Запись из кеша, которая успела истечь, игнорируется,
// и чтение идет в хранилище, где выполняется ленивое истечение.
func (r *CachedSubscriptionRepository) Active(ctx context.Context, tenant domain.TenantRef, now time.Time) (*domain.Subscription, error) {
	cached, err := r.cache.GetActive(ctx, tenant)
	if err != nil {
		r.log.Warnw("Error getting subscription from cache", "error", err, "tenant", tenant.String())
		// Продолжаем выполнение при ошибке кеша
	}
	if cached != nil && cached.IsLive(now) {
		r.log.Debugw("Subscription found in cache", "tenant", tenant.String())
		return cached, nil
	}

	sub, err := r.repo.Active(ctx, tenant, now)
	if err != nil {
		return nil, err
	}

	if ttl := ActiveCacheTTL(sub, now); ttl > 0 {
		if err := r.cache.SetActive(ctx, sub, ttl); err != nil {
			r.log.Warnw("Failed to cache subscription after fetching", "error", err, "tenant", tenant.String())
		}
	}
	return sub, nil
}

// Activate сохраняет подписку и инвалидирует кеш владельца
func (r *CachedSubscriptionRepository) Activate(ctx context.Context, sub domain.Subscription, supersede bool, now time.Time) (*domain.Subscription, error) {
	created, err := r.repo.Activate(ctx, sub, supersede, now)
	if err != nil {
		return nil, err
	}
	r.Invalidate(ctx, sub.Tenant)
	return created, nil
}

// Cancel отменяет подписку и инвалидирует кеш владельца
func (r *CachedSubscriptionRepository) Cancel(ctx context.Context, tenant domain.TenantRef, now time.Time) (*domain.Subscription, error) {
	cancelled, err := r.repo.Cancel(ctx, tenant, now)
	if err != nil {
		return nil, err
	}
	r.Invalidate(ctx, tenant)
	return cancelled, nil
}

// Invalidate удаляет кеш владельца. Ошибки кеша только логируются.
func (r *CachedSubscriptionRepository) Invalidate(ctx context.Context, tenant domain.TenantRef) {
	if err := r.cache.InvalidateTenant(ctx, tenant); err != nil {
		r.log.Warnw("Failed to invalidate subscription cache", "error", err, "tenant", tenant.String())
	}
}

func (r *CachedSubscriptionRepository) ListByTenant(ctx context.Context, tenant domain.TenantRef) ([]domain.Subscription, error) {
	return r.repo.ListByTenant(ctx, tenant)
}

// ExpireDue не трогает кеш: TTL записи никогда не превышает end_at
func (r *CachedSubscriptionRepository) ExpireDue(ctx context.Context, now time.Time) (ExpiryCounts, error) {
	return r.repo.ExpireDue(ctx, now)
}

func (r *CachedSubscriptionRepository) ActiveTopUps(ctx context.Context, companyID uuid.UUID, now time.Time) ([]domain.TopUp, error) {
	return r.repo.ActiveTopUps(ctx, companyID, now)
}

// CachedAPIKeyRepository реализует APIKeyRepository с кешированием поиска по хешу
type CachedAPIKeyRepository struct {
	repo  APIKeyRepository
	cache APIKeyCache
	log   *logger.Logger
}

func NewCachedAPIKeyRepository(repo APIKeyRepository, cache APIKeyCache, log *logger.Logger) *CachedAPIKeyRepository {
	return &CachedAPIKeyRepository{repo: repo, cache: cache, log: log}
}

func (r *CachedAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	return r.repo.Create(ctx, key)
}

// GetByHash получает ключ (сначала из кеша, потом из БД)
func (r *CachedAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	cached, err := r.cache.GetAPIKey(ctx, hash)
	if err != nil {
		r.log.Warnw("Error getting api key from cache", "error", err)
	}
	if cached != nil {
		return cached, nil
	}

	key, err := r.repo.GetByHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SetAPIKey(ctx, key, apiKeyCacheTTL); err != nil {
		r.log.Warnw("Failed to cache api key", "error", err, "keyID", key.ID)
	}
	return key, nil
}

func (r *CachedAPIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	return r.repo.ListByUser(ctx, userID)
}

// Revoke отзывает ключ и удаляет его из кеша
func (r *CachedAPIKeyRepository) Revoke(ctx context.Context, userID, id uuid.UUID) error {
	keys, err := r.repo.ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := r.repo.Revoke(ctx, userID, id); err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == id {
			if err := r.cache.InvalidateAPIKey(ctx, k.KeyHash); err != nil {
				r.log.Warnw("Failed to invalidate api key cache", "error", err, "keyID", id)
			}
		}
	}
	return nil
}

func (r *CachedAPIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.repo.TouchLastUsed(ctx, id, at)
}
