package domain

import "github.com/google/uuid"

// Role роль аутентифицированного вызывающего
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleCompany   Role = "company"
	RoleClient    Role = "client"
	RoleDriver    Role = "driver"
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
)

// Principal результат аутентификации любой стратегией
type Principal struct {
	Role      Role       `json:"role"`
	CompanyID *uuid.UUID `json:"company_id,omitempty"`
	ClientID  *uuid.UUID `json:"client_id,omitempty"`
	DriverID  *uuid.UUID `json:"driver_id,omitempty"`
	VehicleID *uuid.UUID `json:"vehicle_id,omitempty"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	AdminID   *uuid.UUID `json:"admin_id,omitempty"`
	APIKeyID  *uuid.UUID `json:"api_key_id,omitempty"`

	Company *Company `json:"-"`
	Client  *Client  `json:"-"`
	Driver  *Driver  `json:"-"`
	User    *User    `json:"-"`
	Admin   *Admin   `json:"-"`
	APIKey  *APIKey  `json:"-"`
}

// Anonymous принципал без учетных данных
func Anonymous() *Principal {
	return &Principal{Role: RoleAnonymous}
}

// IsAnonymous true, если учетные данные не предъявлены
func (p *Principal) IsAnonymous() bool {
	return p == nil || p.Role == RoleAnonymous
}

// Tenant возвращает ссылку на владельца подписки для ролей, у которых он есть
func (p *Principal) Tenant() (TenantRef, bool) {
	if p == nil {
		return TenantRef{}, false
	}
	switch p.Role {
	case RoleCompany:
		if p.CompanyID != nil {
			return TenantRef{Kind: TenantCompany, ID: *p.CompanyID}, true
		}
	case RoleDriver:
		if p.DriverID != nil {
			return TenantRef{Kind: TenantDriver, ID: *p.DriverID}, true
		}
	case RoleUser:
		if p.UserID != nil {
			return TenantRef{Kind: TenantUser, ID: *p.UserID}, true
		}
	}
	return TenantRef{}, false
}

// HasRole проверяет роль принципала
func (p *Principal) HasRole(roles ...Role) bool {
	if len(roles) == 0 {
		return true
	}
	if p == nil {
		return false
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}
