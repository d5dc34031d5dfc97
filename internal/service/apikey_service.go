package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/auth"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

type CreateAPIKeyInput struct {
	Name          string `json:"name" validate:"required,max=100"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty" validate:"omitempty,min=1,max=3650"`
}

// CreatedAPIKey ключ в открытом виде показывается только в этом ответе
type CreatedAPIKey struct {
	domain.APIKey
	Key string `json:"key"`
}

// MeResponse ответ /api/v1/me
type MeResponse struct {
	Key          domain.APIKey            `json:"key"`
	User         *domain.User             `json:"user"`
	Subscription domain.SubscriptionState `json:"subscription"`
}

type APIKeyService struct {
	keys  repository.APIKeyRepository
	subs  *SubscriptionService
	log   *logger.Logger
	clock Clock
}

func NewAPIKeyService(keys repository.APIKeyRepository, subs *SubscriptionService, log *logger.Logger, clock Clock) *APIKeyService {
	return &APIKeyService{keys: keys, subs: subs, log: log.Named("apikeys"), clock: clock}
}

// Create хранит только SHA-256 и первые символы ключа
func (s *APIKeyService) Create(ctx context.Context, userID uuid.UUID, in CreateAPIKeyInput) (*CreatedAPIKey, error) {
	raw, err := auth.GenerateAPIKey()
	if err != nil {
		return nil, domain.Internal("failed to generate api key", err)
	}

	now := s.clock.now()
	key := domain.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      strings.TrimSpace(in.Name),
		Prefix:    auth.DisplayPrefix(raw),
		KeyHash:   auth.HashAPIKey(raw),
		IsActive:  true,
		CreatedAt: now,
	}
	if in.ExpiresInDays != nil {
		expires := now.Add(time.Duration(*in.ExpiresInDays) * 24 * time.Hour)
		key.ExpiresAt = &expires
	}

	if err := s.keys.Create(ctx, &key); err != nil {
		return nil, err
	}

	s.log.Infow("API key created", "userID", userID, "keyID", key.ID)
	return &CreatedAPIKey{APIKey: key, Key: raw}, nil
}

func (s *APIKeyService) List(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	return s.keys.ListByUser(ctx, userID)
}

func (s *APIKeyService) Revoke(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.keys.Revoke(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound("api key not found")
		}
		return err
	}
	s.log.Infow("API key revoked", "userID", userID, "keyID", id)
	return nil
}

// Me сведения о ключе, пользователе и подписке для принципала, вошедшего по ключу
func (s *APIKeyService) Me(ctx context.Context, p *domain.Principal) (*MeResponse, error) {
	if p == nil || p.APIKey == nil || p.UserID == nil {
		return nil, domain.Unauthorized("api key required")
	}

	state, err := s.subs.Active(ctx, domain.TenantRef{Kind: domain.TenantUser, ID: *p.UserID})
	if err != nil {
		return nil, err
	}
	return &MeResponse{Key: *p.APIKey, User: p.User, Subscription: state}, nil
}
