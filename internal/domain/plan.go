package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlanKind дискриминатор плана
type PlanKind string

const (
	PlanCompany      PlanKind = "COMPANY"
	PlanDriver       PlanKind = "DRIVER"
	PlanAPI          PlanKind = "API"
	PlanVehicleLimit PlanKind = "VEHICLE_LIMIT"
	PlanClientLimit  PlanKind = "CLIENT_LIMIT"
)

// DefaultTopUpDays срок пополнения, если у компании нет действующей подписки
const DefaultTopUpDays = 30

var planKindPaths = map[string]PlanKind{
	"company":       PlanCompany,
	"driver":        PlanDriver,
	"api":           PlanAPI,
	"vehicle-limit": PlanVehicleLimit,
	"client-limit":  PlanClientLimit,
}

// ParsePlanKindPath переводит сегмент URL (например, "vehicle-limit") в PlanKind
func ParsePlanKindPath(segment string) (PlanKind, bool) {
	kind, ok := planKindPaths[strings.ToLower(segment)]
	return kind, ok
}

// IsTopUp true для планов, которые увеличивают лимиты поверх базовой подписки
func (k PlanKind) IsTopUp() bool {
	return k == PlanVehicleLimit || k == PlanClientLimit
}

// TenantKind возвращает тип владельца, который может купить план
func (k PlanKind) TenantKind() TenantKind {
	switch k {
	case PlanDriver:
		return TenantDriver
	case PlanAPI:
		return TenantUser
	default:
		return TenantCompany
	}
}

// Plan шаблон цены и длительности
type Plan struct {
	ID             uuid.UUID       `json:"id"`
	Kind           PlanKind        `json:"kind"`
	Name           string          `json:"name"`
	Description    string          `json:"description,omitempty"`
	Price          decimal.Decimal `json:"price"`
	DurationDays   int             `json:"duration_days"`
	Features       []string        `json:"features,omitempty"`
	VehicleLimit   *int            `json:"vehicle_limit,omitempty"`
	ClientLimit    *int            `json:"client_limit,omitempty"`
	RequestsPerDay *int            `json:"requests_per_day,omitempty"`
	IsActive       bool            `json:"is_active"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Validate проверяет поля, обязательные для данного вида плана
func (p Plan) Validate() error {
	var errs ValidationErrors

	if strings.TrimSpace(p.Name) == "" {
		errs.Add("name", "is required")
	}
	if p.Price.IsNegative() {
		errs.Add("price", "must not be negative")
	}

	switch p.Kind {
	case PlanCompany, PlanDriver, PlanAPI:
		if p.DurationDays <= 0 {
			errs.Add("duration_days", "must be greater than zero")
		}
	case PlanVehicleLimit:
		if p.VehicleLimit == nil || *p.VehicleLimit <= 0 {
			errs.Add("vehicle_limit", "must be greater than zero")
		}
	case PlanClientLimit:
		if p.ClientLimit == nil || *p.ClientLimit <= 0 {
			errs.Add("client_limit", "must be greater than zero")
		}
	default:
		errs.Add("kind", "unknown plan kind")
	}

	if p.DurationDays < 0 {
		errs.Add("duration_days", "must not be negative")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// Increment размер пополнения для планов VEHICLE_LIMIT / CLIENT_LIMIT
func (p Plan) Increment() int {
	switch p.Kind {
	case PlanVehicleLimit:
		if p.VehicleLimit != nil {
			return *p.VehicleLimit
		}
	case PlanClientLimit:
		if p.ClientLimit != nil {
			return *p.ClientLimit
		}
	}
	return 0
}

// IsFree план с нулевой ценой
func (p Plan) IsFree() bool {
	return p.Price.IsZero()
}
