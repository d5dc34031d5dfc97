package service

import (
	"context"
	"time"

	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// Clock источник текущего времени, в тестах подменяется
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// EventPublisher публикация доменных событий (Kafka)
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
}

// Broadcaster отправка события в комнаты realtime канала
type Broadcaster interface {
	Broadcast(ctx context.Context, event string, payload any, rooms ...string) error
}

// Notifier постановка заданий уведомлений (RabbitMQ)
type Notifier interface {
	Notify(ctx context.Context, job domain.NotificationJob) error
}

// CacheInvalidator сброс кеша действующей подписки владельца
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tenant domain.TenantRef)
}

// NopPublisher ничего не публикует
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }

// NopBroadcaster ничего не рассылает
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(context.Context, string, any, ...string) error { return nil }

// NopNotifier ничего не отправляет
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.NotificationJob) error { return nil }

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(context.Context, domain.TenantRef) {}

// publishEvent ошибки брокера не влияют на результат запроса
func publishEvent(ctx context.Context, pub EventPublisher, log *logger.Logger, topic, key string, payload any) {
	if err := pub.Publish(ctx, topic, key, payload); err != nil {
		log.Warnw("Failed to publish event", "topic", topic, "key", key, "error", err)
	}
}

func broadcast(ctx context.Context, b Broadcaster, log *logger.Logger, event string, payload any, rooms ...string) {
	if err := b.Broadcast(ctx, event, payload, rooms...); err != nil {
		log.Warnw("Failed to broadcast realtime event", "event", event, "rooms", rooms, "error", err)
	}
}
