package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// DefaultSubject субъект NATS для событий realtime канала
const DefaultSubject = "okdriver.realtime"

// RelayConfig параметры подключения к NATS
type RelayConfig struct {
	URL           string
	Subject       string
	Name          string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NATSRelay публикует события в NATS, каждый экземпляр сервиса
// доставляет полученные кадры в свой локальный хаб
type NATSRelay struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	hub     *Hub
	log     *logger.Logger
}

// NewNATSRelay подключается к NATS и подписывает хаб на субъект
func NewNATSRelay(cfg RelayConfig, hub *Hub, log *logger.Logger) (*NATSRelay, error) {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.Name == "" {
		cfg.Name = "okdriver-backend"
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}

	log = log.Named("nats")
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warnw("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infow("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	r := &NATSRelay{nc: nc, subject: cfg.Subject, hub: hub, log: log}
	sub, err := nc.Subscribe(cfg.Subject, r.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", cfg.Subject, err)
	}
	r.sub = sub

	log.Infow("Realtime relay connected", "url", nc.ConnectedUrl(), "subject", cfg.Subject)
	return r, nil
}

// Broadcast отправляет событие всем экземплярам, включая текущий
func (r *NATSRelay) Broadcast(ctx context.Context, event string, payload any, rooms ...string) error {
	env, err := NewEnvelope(event, payload, rooms...)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode realtime envelope: %w", err)
	}
	if err := r.nc.Publish(r.subject, data); err != nil {
		return fmt.Errorf("failed to publish realtime event: %w", err)
	}
	return nil
}

func (r *NATSRelay) handle(msg *nats.Msg) {
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.log.Warnw("Malformed realtime envelope dropped", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.hub.Deliver(ctx, env); err != nil {
		r.log.Warnw("Failed to deliver relayed event", "event", env.Event, "error", err)
	}
}

// Ping проверка соединения для health
func (r *NATSRelay) Ping() error {
	if !r.nc.IsConnected() {
		return fmt.Errorf("nats status %s", r.nc.Status())
	}
	return nil
}

// Close отписывается и дожидается отправки буфера
func (r *NATSRelay) Close() error {
	if r.sub != nil {
		_ = r.sub.Unsubscribe()
	}
	return r.nc.Drain()
}
