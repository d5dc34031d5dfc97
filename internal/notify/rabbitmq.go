// Package notify постановка заданий уведомлений в RabbitMQ.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange topic exchange заданий уведомлений
const DefaultExchange = "okdriver.notifications"

// channel подмножество *amqp.Channel, которое нужно публикатору
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher публикует NotificationJob в topic exchange,
// ключ маршрутизации - тип уведомления (ticket.created, ticket.updated)
type RabbitPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      *logger.Logger

	mu sync.Mutex
	ch channel
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewRabbitPublisher подключается к брокеру и объявляет exchange
func NewRabbitPublisher(rawURL, exchange string, log *logger.Logger) (*RabbitPublisher, error) {
	amqpURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid rabbitmq url: %w", err)
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	p, err := newRabbitPublisher(ch, exchange, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	p.log.Infow("RabbitMQ publisher connected", "exchange", exchange)
	return p, nil
}

func newRabbitPublisher(ch channel, exchange string, log *logger.Logger) (*RabbitPublisher, error) {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return &RabbitPublisher{ch: ch, exchange: exchange, log: log.Named("notify")}, nil
}

// Notify публикует задание как persistent JSON сообщение
func (p *RabbitPublisher) Notify(ctx context.Context, job domain.NotificationJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal notification job: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Type:         job.Type,
		Body:         body,
	}

	// канал AMQP не потокобезопасен
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.PublishWithContext(ctx, p.exchange, job.Type, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish notification %s: %w", job.Type, err)
	}

	p.log.Debugw("Notification job published", "exchange", p.exchange, "type", job.Type)
	return nil
}

// Close закрывает канал и соединение
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// LogNotifier запасной вариант без брокера: задание только пишется в лог
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, job domain.NotificationJob) error {
	n.log.Infow("Notification job (no broker configured)", "type", job.Type, "recipient", job.Recipient, "payload", job.Payload)
	return nil
}
