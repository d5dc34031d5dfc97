package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/metrics"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// SubscriptionService жизненный цикл подписок: NONE -> ACTIVE -> EXPIRED | CANCELLED
type SubscriptionService struct {
	subs     repository.SubscriptionRepository
	plans    repository.PlanRepository
	accounts repository.AccountRepository
	events   EventPublisher
	metrics  metrics.PaymentMetrics
	log      *logger.Logger
	clock    Clock
}

// NewSubscriptionService создает новый сервис для работы с подписками
func NewSubscriptionService(
	subs repository.SubscriptionRepository,
	plans repository.PlanRepository,
	accounts repository.AccountRepository,
	events EventPublisher,
	m metrics.PaymentMetrics,
	log *logger.Logger,
	clock Clock,
) *SubscriptionService {
	if events == nil {
		events = NopPublisher{}
	}
	if m == nil {
		m = metrics.NopPaymentMetrics{}
	}
	return &SubscriptionService{
		subs:     subs,
		plans:    plans,
		accounts: accounts,
		events:   events,
		metrics:  m,
		log:      log.Named("subscriptions"),
		clock:    clock,
	}
}

// Active состояние подписки владельца. Просроченные строки истекают при чтении.
func (s *SubscriptionService) Active(ctx context.Context, tenant domain.TenantRef) (domain.SubscriptionState, error) {
	sub, err := s.subs.Active(ctx, tenant, s.clock.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.SubscriptionState{Active: false}, nil
		}
		return domain.SubscriptionState{}, err
	}

	state := domain.SubscriptionState{Active: true, Subscription: sub, ExpiresAt: &sub.EndAt}
	plan, err := s.plans.Get(ctx, sub.PlanID)
	switch {
	case err == nil:
		state.Plan = plan
	case errors.Is(err, repository.ErrNotFound):
		s.log.Warnw("Active subscription references a missing plan", "subscriptionID", sub.ID, "planID", sub.PlanID)
	default:
		return domain.SubscriptionState{}, err
	}
	return state, nil
}

// RequireActive проверка для маршрутов, доступных только с подпиской
func (s *SubscriptionService) RequireActive(ctx context.Context, tenant domain.TenantRef) (*domain.Subscription, error) {
	sub, err := s.subs.Active(ctx, tenant, s.clock.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.PaymentRequired("active subscription required")
		}
		return nil, err
	}
	return sub, nil
}

// Select прямой выбор плана владельцем, только для бесплатных планов
func (s *SubscriptionService) Select(ctx context.Context, tenant domain.TenantRef, planID uuid.UUID) (*domain.Subscription, error) {
	plan, err := s.planFor(ctx, tenant, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsFree() {
		return nil, domain.Validation("paid plan requires checkout")
	}
	return s.activate(ctx, tenant, *plan)
}

// AdminAssign назначение плана администратором, цена не учитывается
func (s *SubscriptionService) AdminAssign(ctx context.Context, tenant domain.TenantRef, planID uuid.UUID) (*domain.Subscription, error) {
	plan, err := s.planFor(ctx, tenant, planID)
	if err != nil {
		return nil, err
	}
	return s.activate(ctx, tenant, *plan)
}

func (s *SubscriptionService) planFor(ctx context.Context, tenant domain.TenantRef, planID uuid.UUID) (*domain.Plan, error) {
	if _, err := s.accounts.GetTenant(ctx, tenant); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("tenant not found")
		}
		return nil, err
	}

	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("plan not found")
		}
		return nil, err
	}
	if !plan.IsActive {
		return nil, domain.NotFound("plan not found")
	}
	if plan.Kind.IsTopUp() {
		return nil, domain.Validation("top-up plans are purchased through checkout")
	}
	if plan.Kind.TenantKind() != tenant.Kind {
		return nil, domain.Validation("plan kind does not match tenant")
	}
	return plan, nil
}

func (s *SubscriptionService) activate(ctx context.Context, tenant domain.TenantRef, plan domain.Plan) (*domain.Subscription, error) {
	now := s.clock.now()
	sub, err := s.subs.Activate(ctx, domain.NewSubscription(tenant, plan, now), false, now)
	if err != nil {
		if errors.Is(err, repository.ErrActiveSubscription) {
			return nil, domain.E(domain.KindConflict, "an active subscription already exists", err)
		}
		s.log.Errorw("Failed to activate subscription", "tenant", tenant.String(), "planID", plan.ID, "error", err)
		return nil, err
	}

	s.metrics.IncSubscriptionActivated(string(plan.Kind))
	publishEvent(ctx, s.events, s.log, domain.TopicSubscriptionActivated, tenant.ID.String(), domain.NewSubscriptionEvent(*sub, now))
	s.log.Infow("Subscription activated", "tenant", tenant.String(), "planID", plan.ID, "endAt", sub.EndAt)
	return sub, nil
}

// Cancel ACTIVE -> CANCELLED и очистка указателя на план у владельца
func (s *SubscriptionService) Cancel(ctx context.Context, tenant domain.TenantRef) (*domain.Subscription, error) {
	now := s.clock.now()
	sub, err := s.subs.Cancel(ctx, tenant, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("no active subscription")
		}
		return nil, err
	}

	s.metrics.IncSubscriptionCancelled(string(tenant.Kind))
	publishEvent(ctx, s.events, s.log, domain.TopicSubscriptionCancelled, tenant.ID.String(), domain.NewSubscriptionEvent(*sub, now))
	s.log.Infow("Subscription cancelled", "tenant", tenant.String(), "subscriptionID", sub.ID)
	return sub, nil
}

// History все подписки владельца, новые первыми
func (s *SubscriptionService) History(ctx context.Context, tenant domain.TenantRef) ([]domain.Subscription, error) {
	return s.subs.ListByTenant(ctx, tenant)
}

// Limits базовые лимиты плана компании плюс действующие пополнения
func (s *SubscriptionService) Limits(ctx context.Context, companyID uuid.UUID) (domain.Limits, error) {
	now := s.clock.now()
	var limits domain.Limits

	sub, err := s.subs.Active(ctx, domain.TenantRef{Kind: domain.TenantCompany, ID: companyID}, now)
	switch {
	case err == nil:
		plan, err := s.plans.Get(ctx, sub.PlanID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return limits, err
		}
		if plan != nil {
			if plan.VehicleLimit != nil {
				limits.BaseVehicles = *plan.VehicleLimit
			}
			if plan.ClientLimit != nil {
				limits.BaseClients = *plan.ClientLimit
			}
		}
	case !errors.Is(err, repository.ErrNotFound):
		return limits, err
	}

	topUps, err := s.subs.ActiveTopUps(ctx, companyID, now)
	if err != nil {
		return limits, err
	}
	for _, t := range topUps {
		if t.Status != domain.TopUpActive || t.EndAt.Before(now) {
			continue
		}
		switch t.Kind {
		case domain.PlanVehicleLimit:
			limits.TopUpVehicle += t.Increment
		case domain.PlanClientLimit:
			limits.TopUpClient += t.Increment
		}
	}

	limits.Vehicles = limits.BaseVehicles + limits.TopUpVehicle
	limits.Clients = limits.BaseClients + limits.TopUpClient
	return limits, nil
}

// ExpireDue фоновое истечение по всем владельцам
func (s *SubscriptionService) ExpireDue(ctx context.Context) (repository.ExpiryCounts, error) {
	counts, err := s.subs.ExpireDue(ctx, s.clock.now())
	if err != nil {
		return counts, err
	}
	s.metrics.AddExpired(counts.Subscriptions, counts.TopUps)
	if counts.Subscriptions > 0 || counts.TopUps > 0 {
		s.log.Infow("Expired due rows", "subscriptions", counts.Subscriptions, "topUps", counts.TopUps)
	}
	return counts, nil
}
