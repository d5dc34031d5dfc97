package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
)

// InMemoryPlanRepository реализация PlanRepository в памяти
type InMemoryPlanRepository struct {
	db *memoryDB
}

// Create сохраняет новый план
func (r *InMemoryPlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	ensureID(&plan.ID)
	if _, exists := r.db.plans[plan.ID]; exists {
		return ErrDuplicate
	}
	r.db.plans[plan.ID] = clonePlan(*plan)
	return nil
}

// Get возвращает план по ID
func (r *InMemoryPlanRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	plan, exists := r.db.plans[id]
	if !exists {
		return nil, ErrNotFound
	}
	plan = clonePlan(plan)
	return &plan, nil
}

// List возвращает планы вида kind (пустой kind - все виды), дешевые первыми
func (r *InMemoryPlanRepository) List(ctx context.Context, kind domain.PlanKind, activeOnly bool) ([]domain.Plan, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	plans := make([]domain.Plan, 0)
	for _, p := range r.db.plans {
		if kind != "" && p.Kind != kind {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		plans = append(plans, clonePlan(p))
	}

	sort.Slice(plans, func(i, j int) bool {
		if !plans[i].Price.Equal(plans[j].Price) {
			return plans[i].Price.LessThan(plans[j].Price)
		}
		return plans[i].CreatedAt.Before(plans[j].CreatedAt)
	})
	return plans, nil
}

// Update обновляет существующий план
func (r *InMemoryPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	if _, exists := r.db.plans[plan.ID]; !exists {
		return ErrNotFound
	}
	r.db.plans[plan.ID] = clonePlan(*plan)
	return nil
}

// SoftDelete выключает план, если на него не ссылаются действующие подписки или пополнения
func (r *InMemoryPlanRepository) SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	plan, exists := r.db.plans[id]
	if !exists {
		return ErrNotFound
	}

	for _, s := range r.db.subscriptions {
		if s.PlanID == id && s.IsLive(now) {
			return ErrPlanInUse
		}
	}
	for _, t := range r.db.topUps {
		if t.PlanID == id && t.Status == domain.TopUpActive && !t.EndAt.Before(now) {
			return ErrPlanInUse
		}
	}

	plan.IsActive = false
	plan.UpdatedAt = now
	r.db.plans[id] = plan
	return nil
}

func clonePlan(p domain.Plan) domain.Plan {
	if p.Features != nil {
		p.Features = append([]string(nil), p.Features...)
	}
	return p
}

// InMemorySubscriptionRepository реализация SubscriptionRepository в памяти
type InMemorySubscriptionRepository struct {
	db *memoryDB
}

// Activate вставляет подписку, соблюдая "не более одной ACTIVE на владельца"
func (r *InMemorySubscriptionRepository) Activate(ctx context.Context, sub domain.Subscription, supersede bool, now time.Time) (*domain.Subscription, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	created, err := r.db.activate(sub, supersede, now)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Active возвращает действующую подписку владельца
func (r *InMemorySubscriptionRepository) Active(ctx context.Context, tenant domain.TenantRef, now time.Time) (*domain.Subscription, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	r.db.expireTenant(tenant, now)
	active := r.db.activeFor(tenant)
	if active == nil {
		return nil, ErrNotFound
	}
	return active, nil
}

// ListByTenant возвращает все подписки владельца, новые первыми
func (r *InMemorySubscriptionRepository) ListByTenant(ctx context.Context, tenant domain.TenantRef) ([]domain.Subscription, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	subs := make([]domain.Subscription, 0)
	for _, s := range r.db.subscriptions {
		if s.Tenant == tenant {
			subs = append(subs, s)
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].StartAt.Equal(subs[j].StartAt) {
			return subs[i].StartAt.After(subs[j].StartAt)
		}
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	return subs, nil
}

// Cancel отменяет действующую подписку
func (r *InMemorySubscriptionRepository) Cancel(ctx context.Context, tenant domain.TenantRef, now time.Time) (*domain.Subscription, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	r.db.expireTenant(tenant, now)
	active := r.db.activeFor(tenant)
	if active == nil {
		return nil, ErrNotFound
	}

	for id, s := range r.db.subscriptions {
		if s.Tenant == tenant && s.Status == domain.SubscriptionActive {
			s.Status = domain.SubscriptionCancelled
			s.UpdatedAt = now
			r.db.subscriptions[id] = s
		}
	}
	r.db.setTenantPlan(tenant, nil, nil, now)

	cancelled := r.db.subscriptions[active.ID]
	return &cancelled, nil
}

// ExpireDue переводит все просроченные записи в EXPIRED
func (r *InMemorySubscriptionRepository) ExpireDue(ctx context.Context, now time.Time) (ExpiryCounts, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	var counts ExpiryCounts
	for id, s := range r.db.subscriptions {
		if s.Status == domain.SubscriptionActive && s.EndAt.Before(now) {
			s.Status = domain.SubscriptionExpired
			s.UpdatedAt = now
			r.db.subscriptions[id] = s
			counts.Subscriptions++
		}
	}
	for id, t := range r.db.topUps {
		if t.Status == domain.TopUpActive && t.EndAt.Before(now) {
			t.Status = domain.TopUpExpired
			r.db.topUps[id] = t
			counts.TopUps++
		}
	}
	return counts, nil
}

// ActiveTopUps возвращает действующие пополнения компании
func (r *InMemorySubscriptionRepository) ActiveTopUps(ctx context.Context, companyID uuid.UUID, now time.Time) ([]domain.TopUp, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	r.db.expireTopUps(companyID, now)

	topUps := make([]domain.TopUp, 0)
	for _, t := range r.db.topUps {
		if t.CompanyID == companyID && t.Status == domain.TopUpActive {
			topUps = append(topUps, t)
		}
	}
	sort.Slice(topUps, func(i, j int) bool { return topUps[i].EndAt.Before(topUps[j].EndAt) })
	return topUps, nil
}

// activate вызывается под мьютексом
func (db *memoryDB) activate(sub domain.Subscription, supersede bool, now time.Time) (domain.Subscription, error) {
	db.expireTenant(sub.Tenant, now)

	for id, s := range db.subscriptions {
		if s.Tenant != sub.Tenant || s.Status != domain.SubscriptionActive {
			continue
		}
		if !supersede {
			return domain.Subscription{}, ErrActiveSubscription
		}
		s.Status = domain.SubscriptionExpired
		s.UpdatedAt = now
		db.subscriptions[id] = s
	}

	ensureID(&sub.ID)
	sub.Status = domain.SubscriptionActive
	sub.CreatedAt, sub.UpdatedAt = now, now
	db.subscriptions[sub.ID] = sub

	planID, endAt := sub.PlanID, sub.EndAt
	db.setTenantPlan(sub.Tenant, &planID, &endAt, now)

	return sub, nil
}

func (db *memoryDB) expireTenant(tenant domain.TenantRef, now time.Time) {
	for id, s := range db.subscriptions {
		if s.Tenant == tenant && s.Status == domain.SubscriptionActive && s.EndAt.Before(now) {
			s.Status = domain.SubscriptionExpired
			s.UpdatedAt = now
			db.subscriptions[id] = s
		}
	}
	if tenant.Kind == domain.TenantCompany {
		db.expireTopUps(tenant.ID, now)
	}
}

func (db *memoryDB) expireTopUps(companyID uuid.UUID, now time.Time) {
	for id, t := range db.topUps {
		if t.CompanyID == companyID && t.Status == domain.TopUpActive && t.EndAt.Before(now) {
			t.Status = domain.TopUpExpired
			db.topUps[id] = t
		}
	}
}

// activeFor самая поздняя по end_at активная подписка
func (db *memoryDB) activeFor(tenant domain.TenantRef) *domain.Subscription {
	var best *domain.Subscription
	for _, s := range db.subscriptions {
		if s.Tenant != tenant || s.Status != domain.SubscriptionActive {
			continue
		}
		if best == nil || s.EndAt.After(best.EndAt) {
			candidate := s
			best = &candidate
		}
	}
	return best
}
