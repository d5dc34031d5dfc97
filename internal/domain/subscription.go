package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus статус подписки
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// Subscription связывает владельца с планом
type Subscription struct {
	ID        uuid.UUID          `json:"id"`
	Tenant    TenantRef          `json:"tenant"`
	PlanID    uuid.UUID          `json:"plan_id"`
	PlanKind  PlanKind           `json:"plan_kind"`
	Status    SubscriptionStatus `json:"status"`
	StartAt   time.Time          `json:"start_at"`
	EndAt     time.Time          `json:"end_at"`
	PaymentID *uuid.UUID         `json:"payment_id,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// EndFor вычисляет дату окончания: начало плюс durationDays полных суток
func EndFor(start time.Time, durationDays int) time.Time {
	return start.Add(time.Duration(durationDays) * 24 * time.Hour)
}

// NewSubscription создает активную подписку на план, начиная с now
func NewSubscription(tenant TenantRef, plan Plan, now time.Time) Subscription {
	return Subscription{
		ID:        uuid.New(),
		Tenant:    tenant,
		PlanID:    plan.ID,
		PlanKind:  plan.Kind,
		Status:    SubscriptionActive,
		StartAt:   now,
		EndAt:     EndFor(now, plan.DurationDays),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsLive активна и еще не истекла на момент now
func (s Subscription) IsLive(now time.Time) bool {
	return s.Status == SubscriptionActive && !s.EndAt.Before(now)
}

// TopUpStatus статус пополнения лимита
type TopUpStatus string

const (
	TopUpActive  TopUpStatus = "ACTIVE"
	TopUpExpired TopUpStatus = "EXPIRED"
)

// TopUp пополнение лимита машин или клиентов поверх базового плана
type TopUp struct {
	ID        uuid.UUID   `json:"id"`
	CompanyID uuid.UUID   `json:"company_id"`
	PlanID    uuid.UUID   `json:"plan_id"`
	Kind      PlanKind    `json:"kind"`
	Increment int         `json:"increment"`
	Status    TopUpStatus `json:"status"`
	StartAt   time.Time   `json:"start_at"`
	EndAt     time.Time   `json:"end_at"`
	PaymentID *uuid.UUID  `json:"payment_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewTopUp создает пополнение. Срок совпадает с текущей подпиской компании,
// если она еще действует, иначе берется длительность плана (по умолчанию 30 дней).
func NewTopUp(companyID uuid.UUID, plan Plan, companyExpiresAt *time.Time, now time.Time) TopUp {
	end := EndFor(now, DefaultTopUpDays)
	if plan.DurationDays > 0 {
		end = EndFor(now, plan.DurationDays)
	}
	if companyExpiresAt != nil && companyExpiresAt.After(now) {
		end = *companyExpiresAt
	}

	return TopUp{
		ID:        uuid.New(),
		CompanyID: companyID,
		PlanID:    plan.ID,
		Kind:      plan.Kind,
		Increment: plan.Increment(),
		Status:    TopUpActive,
		StartAt:   now,
		EndAt:     end,
		CreatedAt: now,
	}
}

// SubscriptionState ответ на запрос "есть ли активная подписка"
type SubscriptionState struct {
	Active       bool          `json:"active"`
	Subscription *Subscription `json:"subscription,omitempty"`
	Plan         *Plan         `json:"plan,omitempty"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
}

// Limits эффективные лимиты компании
type Limits struct {
	Vehicles     int `json:"vehicles"`
	Clients      int `json:"clients"`
	BaseVehicles int `json:"base_vehicles"`
	BaseClients  int `json:"base_clients"`
	TopUpVehicle int `json:"top_up_vehicles"`
	TopUpClient  int `json:"top_up_clients"`
}
