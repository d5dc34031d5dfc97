package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus статус платежа
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Payment одна попытка оплаты, ключ - txnid шлюза
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	TxnID       string          `json:"txnid"`
	TenantKind  TenantKind      `json:"tenant_kind"`
	TenantID    *uuid.UUID      `json:"tenant_id,omitempty"`
	PlanID      *uuid.UUID      `json:"plan_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Status      PaymentStatus   `json:"status"`
	GatewayRef  string          `json:"gateway_ref,omitempty"`
	Mode        string          `json:"mode,omitempty"`
	ProductInfo string          `json:"product_info,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Settlement атомарная запись результата проверенного колбэка:
// платеж плюс подписка или пополнение.
type Settlement struct {
	Payment      Payment
	Subscription *Subscription
	TopUp        *TopUp
}

// SettlementResult результат записи. Duplicate означает, что платеж уже был проведен ранее.
type SettlementResult struct {
	Payment      Payment       `json:"payment"`
	Subscription *Subscription `json:"subscription,omitempty"`
	TopUp        *TopUp        `json:"top_up,omitempty"`
	Duplicate    bool          `json:"duplicate"`
}
