package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Топики доменных событий
const (
	TopicPaymentOrderCreated   = "payment.order_created"
	TopicPaymentSucceeded      = "payment.succeeded"
	TopicPaymentFailed         = "payment.failed"
	TopicSubscriptionActivated = "subscription.activated"
	TopicSubscriptionCancelled = "subscription.cancelled"
	TopicTopUpActivated        = "topup.activated"
	TopicChatMessageCreated    = "chat.message_created"
	TopicVehicleLocation       = "vehicle-location-update"
)

// AllTopics топики, которые создаются при старте
var AllTopics = []string{
	TopicPaymentOrderCreated,
	TopicPaymentSucceeded,
	TopicPaymentFailed,
	TopicSubscriptionActivated,
	TopicSubscriptionCancelled,
	TopicTopUpActivated,
	TopicChatMessageCreated,
	TopicVehicleLocation,
}

// События realtime канала
const (
	RealtimeNewMessage     = "new_message"
	RealtimeLocationUpdate = "location_update"
)

// PaymentEvent событие платежа
type PaymentEvent struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	TxnID      string          `json:"txnid"`
	TenantKind TenantKind      `json:"tenant_kind"`
	TenantID   *uuid.UUID      `json:"tenant_id,omitempty"`
	PlanID     *uuid.UUID      `json:"plan_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Status     PaymentStatus   `json:"status"`
	GatewayRef string          `json:"gateway_ref,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewPaymentEvent снимок платежа для публикации
func NewPaymentEvent(p Payment, at time.Time) PaymentEvent {
	return PaymentEvent{
		PaymentID:  p.ID,
		TxnID:      p.TxnID,
		TenantKind: p.TenantKind,
		TenantID:   p.TenantID,
		PlanID:     p.PlanID,
		Amount:     p.Amount,
		Status:     p.Status,
		GatewayRef: p.GatewayRef,
		Timestamp:  at,
	}
}

// SubscriptionEvent событие активации или отмены подписки
type SubscriptionEvent struct {
	SubscriptionID uuid.UUID          `json:"subscription_id"`
	Tenant         TenantRef          `json:"tenant"`
	PlanID         uuid.UUID          `json:"plan_id"`
	PlanKind       PlanKind           `json:"plan_kind"`
	Status         SubscriptionStatus `json:"status"`
	EndAt          time.Time          `json:"end_at"`
	Timestamp      time.Time          `json:"timestamp"`
}

func NewSubscriptionEvent(s Subscription, at time.Time) SubscriptionEvent {
	return SubscriptionEvent{
		SubscriptionID: s.ID,
		Tenant:         s.Tenant,
		PlanID:         s.PlanID,
		PlanKind:       s.PlanKind,
		Status:         s.Status,
		EndAt:          s.EndAt,
		Timestamp:      at,
	}
}

// NotificationJob задание для сервиса уведомлений
type NotificationJob struct {
	Type      string         `json:"type"`
	Recipient string         `json:"recipient,omitempty"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// Типы уведомлений
const (
	NotificationTicketCreated = "ticket.created"
	NotificationTicketUpdated = "ticket.updated"
)
