package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	activeSubscriptionKeyPrefix = "subscription:active:"
	apiKeyKeyPrefix             = "apikey:"
)

// SubscriptionCache кеш действующей подписки владельца.
// Промах кеша - (nil, nil).
type SubscriptionCache interface {
	GetActive(ctx context.Context, tenant domain.TenantRef) (*domain.Subscription, error)
	SetActive(ctx context.Context, sub *domain.Subscription, ttl time.Duration) error
	InvalidateTenant(ctx context.Context, tenant domain.TenantRef) error
}

// APIKeyCache кеш ключей API по SHA-256
type APIKeyCache interface {
	GetAPIKey(ctx context.Context, hash string) (*domain.APIKey, error)
	SetAPIKey(ctx context.Context, key *domain.APIKey, ttl time.Duration) error
	InvalidateAPIKey(ctx context.Context, hash string) error
}

// RedisCacheRepository реализует кеширование для репозиториев с использованием Redis
type RedisCacheRepository struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCacheRepository{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// Ping проверка доступности для health
func (r *RedisCacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func activeKey(tenant domain.TenantRef) string {
	return fmt.Sprintf("%s%s:%s", activeSubscriptionKeyPrefix, tenant.Kind, tenant.ID)
}

// SetActive кеширует действующую подписку владельца
func (r *RedisCacheRepository) SetActive(ctx context.Context, sub *domain.Subscription, ttl time.Duration) error {
	return r.setJSON(ctx, activeKey(sub.Tenant), sub, ttl)
}

// GetActive получает действующую подписку из кеша
func (r *RedisCacheRepository) GetActive(ctx context.Context, tenant domain.TenantRef) (*domain.Subscription, error) {
	var sub domain.Subscription
	found, err := r.getJSON(ctx, activeKey(tenant), &sub)
	if err != nil || !found {
		return nil, err
	}
	return &sub, nil
}

// InvalidateTenant удаляет кеш подписки владельца
func (r *RedisCacheRepository) InvalidateTenant(ctx context.Context, tenant domain.TenantRef) error {
	if err := r.client.Del(ctx, activeKey(tenant)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate subscription cache: %w", err)
	}
	r.log.Debugw("Subscription cache invalidated", "tenant", tenant.String())
	return nil
}

// SetAPIKey кеширует ключ API
func (r *RedisCacheRepository) SetAPIKey(ctx context.Context, key *domain.APIKey, ttl time.Duration) error {
	// KeyHash не сериализуется в JSON, поэтому кладем обертку
	payload := cachedAPIKey{APIKey: *key, Hash: key.KeyHash}
	return r.setJSON(ctx, apiKeyKeyPrefix+key.KeyHash, payload, ttl)
}

// GetAPIKey получает ключ API из кеша
func (r *RedisCacheRepository) GetAPIKey(ctx context.Context, hash string) (*domain.APIKey, error) {
	var payload cachedAPIKey
	found, err := r.getJSON(ctx, apiKeyKeyPrefix+hash, &payload)
	if err != nil || !found {
		return nil, err
	}
	key := payload.APIKey
	key.KeyHash = payload.Hash
	return &key, nil
}

// InvalidateAPIKey удаляет ключ API из кеша
func (r *RedisCacheRepository) InvalidateAPIKey(ctx context.Context, hash string) error {
	if err := r.client.Del(ctx, apiKeyKeyPrefix+hash).Err(); err != nil {
		return fmt.Errorf("failed to invalidate api key cache: %w", err)
	}
	return nil
}

type cachedAPIKey struct {
	domain.APIKey
	Hash string `json:"hash"`
}

func (r *RedisCacheRepository) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}

	r.log.Debugw("Value cached", "key", key, "ttl", ttl)
	return nil
}

func (r *RedisCacheRepository) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Ключ не найден в кеше
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached %s: %w", key, err)
	}
	return true, nil
}
