// Package realtime websocket хаб с комнатами и ретранслятор событий через NATS.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/metrics"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

const (
	// DefaultSendQueue размер очереди отправки одного соединения
	DefaultSendQueue = 64

	deliverQueue = 256
)

// Envelope кадр, который получает клиент
type Envelope struct {
	Event string          `json:"event"`
	Rooms []string        `json:"rooms,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// NewEnvelope сериализует полезную нагрузку события
func NewEnvelope(event string, payload any, rooms ...string) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Rooms: rooms, Data: data}, nil
}

type subscription struct {
	client *Client
	rooms  []string
}

// Hub владеет картой комнат в одной горутине, все изменения приходят через каналы
type Hub struct {
	log       *logger.Logger
	metrics   metrics.RealtimeMetrics
	sendQueue int

	register   chan subscription
	unregister chan *Client
	deliver    chan Envelope
	stats      chan chan Stats

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// rooms и clients меняет только run
	rooms   map[string]map[*Client]struct{}
	clients map[*Client][]string
}

func NewHub(log *logger.Logger, m metrics.RealtimeMetrics) *Hub {
	if m == nil {
		m = metrics.NopRealtimeMetrics{}
	}
	return &Hub{
		log:        log.Named("realtime"),
		metrics:    m,
		sendQueue:  DefaultSendQueue,
		register:   make(chan subscription),
		unregister: make(chan *Client),
		deliver:    make(chan Envelope, deliverQueue),
		stats:      make(chan chan Stats),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client][]string),
	}
}

// Run цикл хаба, работает до Stop
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case sub := <-h.register:
			h.join(sub)
		case c := <-h.unregister:
			h.leave(c)
		case env := <-h.deliver:
			h.fanOut(env)
		case reply := <-h.stats:
			reply <- Stats{Clients: len(h.clients), Rooms: len(h.rooms)}
		case <-h.stop:
			for c := range h.clients {
				h.leave(c)
			}
			return
		}
	}
}

// Stop закрывает все соединения и останавливает цикл
func (h *Hub) Stop(ctx context.Context) error {
	h.stopOnce.Do(func() { close(h.stop) })
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Broadcast доставляет событие в комнаты этого экземпляра
func (h *Hub) Broadcast(ctx context.Context, event string, payload any, rooms ...string) error {
	env, err := NewEnvelope(event, payload, rooms...)
	if err != nil {
		return err
	}
	return h.Deliver(ctx, env)
}

// Deliver ставит готовый кадр в очередь хаба
func (h *Hub) Deliver(ctx context.Context, env Envelope) error {
	if len(env.Rooms) == 0 {
		return nil
	}
	select {
	case h.deliver <- env:
		return nil
	case <-h.stop:
		return domain.Internal("realtime hub stopped", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach регистрирует клиента в комнатах
func (h *Hub) Attach(c *Client, rooms ...string) bool {
	select {
	case h.register <- subscription{client: c, rooms: rooms}:
		return true
	case <-h.stop:
		return false
	}
}

// Detach снимает клиента со всех комнат и закрывает его очередь
func (h *Hub) Detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stop:
	}
}

func (h *Hub) join(sub subscription) {
	h.clients[sub.client] = sub.rooms
	for _, room := range sub.rooms {
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[sub.client] = struct{}{}
	}
	h.metrics.ConnectionOpened()
	h.log.Debugw("Client joined rooms", "client", sub.client.id, "rooms", sub.rooms)
}

func (h *Hub) leave(c *Client) {
	rooms, ok := h.clients[c]
	if !ok {
		return
	}
	delete(h.clients, c)
	for _, room := range rooms {
		if members := h.rooms[room]; members != nil {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	close(c.send)
	h.metrics.ConnectionClosed()
	h.log.Debugw("Client left", "client", c.id)
}

// fanOut клиент в нескольких комнатах одного события получает кадр один раз.
// Клиент с полной очередью отключается.
func (h *Hub) fanOut(env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		h.log.Errorw("Failed to encode realtime frame", "event", env.Event, "error", err)
		return
	}

	seen := make(map[*Client]struct{})
	var slow []*Client
	for _, room := range env.Rooms {
		for c := range h.rooms[room] {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}

			select {
			case c.send <- frame:
				h.metrics.MessageDelivered(env.Event)
			default:
				slow = append(slow, c)
			}
		}
	}

	for _, c := range slow {
		h.log.Warnw("Dropping slow realtime consumer", "client", c.id)
		h.metrics.SlowConsumerDropped()
		h.leave(c)
	}
}

// Stats текущее число соединений и комнат
type Stats struct {
	Clients int `json:"clients"`
	Rooms   int `json:"rooms"`
}

// Stats снимок состояния из горутины хаба
func (h *Hub) Stats(ctx context.Context) (Stats, error) {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
	case <-h.stop:
		return Stats{}, domain.Internal("realtime hub stopped", nil)
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}
