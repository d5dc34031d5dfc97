package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TenantKind тип владельца подписки
type TenantKind string

const (
	TenantCompany TenantKind = "COMPANY"
	TenantDriver  TenantKind = "DRIVER"
	TenantUser    TenantKind = "USER"
)

// Valid проверяет, что тип известен
func (k TenantKind) Valid() bool {
	switch k {
	case TenantCompany, TenantDriver, TenantUser:
		return true
	}
	return false
}

// PathSegment возвращает сегмент URL, под которым живут маршруты этого типа
func (k TenantKind) PathSegment() string {
	return strings.ToLower(string(k))
}

// TenantRef ссылка на владельца подписки
type TenantRef struct {
	Kind TenantKind `json:"kind"`
	ID   uuid.UUID  `json:"id"`
}

func (r TenantRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Tenant общее представление компании, водителя или пользователя API
type Tenant struct {
	Ref                   TenantRef  `json:"ref"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email"`
	Phone                 string     `json:"phone,omitempty"`
	CurrentPlanID         *uuid.UUID `json:"current_plan_id,omitempty"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
}

// Company компания-клиент сервиса
type Company struct {
	ID                    uuid.UUID  `json:"id"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email"`
	Phone                 string     `json:"phone,omitempty"`
	PasswordHash          string     `json:"-"`
	CurrentPlanID         *uuid.UUID `json:"current_plan_id,omitempty"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (c Company) Tenant() Tenant {
	return Tenant{
		Ref:                   TenantRef{Kind: TenantCompany, ID: c.ID},
		Name:                  c.Name,
		Email:                 c.Email,
		Phone:                 c.Phone,
		CurrentPlanID:         c.CurrentPlanID,
		SubscriptionExpiresAt: c.SubscriptionExpiresAt,
	}
}

// Driver водитель
type Driver struct {
	ID                    uuid.UUID  `json:"id"`
	FirstName             string     `json:"first_name"`
	LastName              string     `json:"last_name,omitempty"`
	Email                 string     `json:"email,omitempty"`
	Phone                 string     `json:"phone"`
	PasswordHash          string     `json:"-"`
	CurrentPlanID         *uuid.UUID `json:"current_plan_id,omitempty"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (d Driver) Tenant() Tenant {
	name := strings.TrimSpace(d.FirstName + " " + d.LastName)
	return Tenant{
		Ref:                   TenantRef{Kind: TenantDriver, ID: d.ID},
		Name:                  name,
		Email:                 d.Email,
		Phone:                 d.Phone,
		CurrentPlanID:         d.CurrentPlanID,
		SubscriptionExpiresAt: d.SubscriptionExpiresAt,
	}
}

// User потребитель API
type User struct {
	ID                    uuid.UUID  `json:"id"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email"`
	PasswordHash          string     `json:"-"`
	CurrentPlanID         *uuid.UUID `json:"current_plan_id,omitempty"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

func (u User) Tenant() Tenant {
	return Tenant{
		Ref:                   TenantRef{Kind: TenantUser, ID: u.ID},
		Name:                  u.Name,
		Email:                 u.Email,
		CurrentPlanID:         u.CurrentPlanID,
		SubscriptionExpiresAt: u.SubscriptionExpiresAt,
	}
}

// Client клиент компании (заказчик перевозок)
type Client struct {
	ID           uuid.UUID `json:"id"`
	CompanyID    uuid.UUID `json:"company_id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Admin администратор платформы
type Admin struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Vehicle транспортное средство компании
type Vehicle struct {
	ID             uuid.UUID  `json:"id"`
	CompanyID      uuid.UUID  `json:"company_id"`
	VehicleNumber  string     `json:"vehicle_number"`
	Model          string     `json:"model,omitempty"`
	DriverID       *uuid.UUID `json:"driver_id,omitempty"`
	ClientID       *uuid.UUID `json:"client_id,omitempty"`
	LastLat        *float64   `json:"last_lat,omitempty"`
	LastLng        *float64   `json:"last_lng,omitempty"`
	LastLocationAt *time.Time `json:"last_location_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
