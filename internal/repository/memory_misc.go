package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
)

// InMemoryAPIKeyRepository реализация APIKeyRepository в памяти
type InMemoryAPIKeyRepository struct {
	db *memoryDB
}

func (r *InMemoryAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for _, k := range r.db.apiKeys {
		if k.KeyHash == key.KeyHash {
			return ErrDuplicate
		}
	}

	ensureID(&key.ID)
	r.db.apiKeys[key.ID] = *key
	return nil
}

func (r *InMemoryAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	for _, k := range r.db.apiKeys {
		if k.KeyHash == hash {
			key := k
			return &key, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryAPIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	keys := make([]domain.APIKey, 0)
	for _, k := range r.db.apiKeys {
		if k.UserID == userID {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.After(keys[j].CreatedAt) })
	return keys, nil
}

// Revoke отзывает ключ пользователя. Чужой ключ неотличим от отсутствующего.
func (r *InMemoryAPIKeyRepository) Revoke(ctx context.Context, userID, id uuid.UUID) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	key, exists := r.db.apiKeys[id]
	if !exists || key.UserID != userID {
		return ErrNotFound
	}

	key.Revoked = true
	key.IsActive = false
	r.db.apiKeys[id] = key
	return nil
}

func (r *InMemoryAPIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	key, exists := r.db.apiKeys[id]
	if !exists {
		return ErrNotFound
	}
	key.LastUsedAt = &at
	r.db.apiKeys[id] = key
	return nil
}

// InMemoryChatRepository реализация ChatRepository в памяти
type InMemoryChatRepository struct {
	db *memoryDB
}

func (r *InMemoryChatRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	ensureID(&msg.ID)
	r.db.messages = append(r.db.messages, *msg)
	return nil
}

func (r *InMemoryChatRepository) List(ctx context.Context, query domain.ChatQuery) ([]domain.ChatMessage, int, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var matched []domain.ChatMessage
	for _, m := range r.db.messages {
		if sameConversation(m, query.Conversation) && !m.CreatedAt.Before(query.Since) {
			matched = append(matched, m)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	offset := query.Offset()
	if offset >= total {
		return []domain.ChatMessage{}, total, nil
	}
	end := offset + query.Limit
	if query.Limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *InMemoryChatRepository) MarkRead(ctx context.Context, conv domain.Conversation, ids []uuid.UUID, from domain.SenderType) (int, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	wanted := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	updated := 0
	for i, m := range r.db.messages {
		if _, ok := wanted[m.ID]; !ok {
			continue
		}
		if !sameConversation(m, conv) || m.SenderType != from || m.IsRead {
			continue
		}
		r.db.messages[i].IsRead = true
		updated++
	}
	return updated, nil
}

func sameConversation(m domain.ChatMessage, c domain.Conversation) bool {
	return m.CompanyID == c.CompanyID && sameID(m.VehicleID, c.VehicleID) && sameID(m.ClientID, c.ClientID)
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// InMemoryTicketRepository реализация TicketRepository в памяти
type InMemoryTicketRepository struct {
	db *memoryDB
}

func (r *InMemoryTicketRepository) Create(ctx context.Context, ticket *domain.HelpTicket) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	ensureID(&ticket.ID)
	r.db.tickets[ticket.ID] = *ticket
	return nil
}

func (r *InMemoryTicketRepository) Get(ctx context.Context, id uuid.UUID) (*domain.HelpTicket, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	ticket, exists := r.db.tickets[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &ticket, nil
}

func (r *InMemoryTicketRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]domain.HelpTicket, error) {
	return r.list(func(t domain.HelpTicket) bool { return t.CompanyID == companyID })
}

func (r *InMemoryTicketRepository) List(ctx context.Context, status domain.TicketStatus) ([]domain.HelpTicket, error) {
	return r.list(func(t domain.HelpTicket) bool { return status == "" || t.Status == status })
}

func (r *InMemoryTicketRepository) list(keep func(domain.HelpTicket) bool) ([]domain.HelpTicket, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	tickets := make([]domain.HelpTicket, 0)
	for _, t := range r.db.tickets {
		if keep(t) {
			tickets = append(tickets, t)
		}
	}
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].CreatedAt.After(tickets[j].CreatedAt) })
	return tickets, nil
}

func (r *InMemoryTicketRepository) Update(ctx context.Context, ticket *domain.HelpTicket) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	if _, exists := r.db.tickets[ticket.ID]; !exists {
		return ErrNotFound
	}
	r.db.tickets[ticket.ID] = *ticket
	return nil
}

// InMemoryLocationRepository реализация LocationRepository в памяти
type InMemoryLocationRepository struct {
	db *memoryDB
}

// SaveBatch добавляет точки и обновляет последнее местоположение машины
func (r *InMemoryLocationRepository) SaveBatch(ctx context.Context, vehicleID uuid.UUID, points []domain.VehicleLocation) error {
	if len(points) == 0 {
		return nil
	}

	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	vehicle, exists := r.db.vehicles[vehicleID]
	if !exists {
		return ErrNotFound
	}

	latest := points[0]
	for _, p := range points {
		r.db.locationSeq++
		p.ID = r.db.locationSeq
		p.VehicleID = vehicleID
		r.db.locations[vehicleID] = append(r.db.locations[vehicleID], p)
		if p.RecordedAt.After(latest.RecordedAt) {
			latest = p
		}
	}

	lat, lng, at := latest.Lat, latest.Lng, latest.RecordedAt
	vehicle.LastLat, vehicle.LastLng, vehicle.LastLocationAt = &lat, &lng, &at
	r.db.vehicles[vehicleID] = vehicle
	return nil
}

// ListByVehicle возвращает точки начиная с since, свежие первыми
func (r *InMemoryLocationRepository) ListByVehicle(ctx context.Context, vehicleID uuid.UUID, since time.Time, limit int) ([]domain.VehicleLocation, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	points := make([]domain.VehicleLocation, 0)
	for _, p := range r.db.locations[vehicleID] {
		if !p.RecordedAt.Before(since) {
			points = append(points, p)
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].RecordedAt.After(points[j].RecordedAt) })
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points, nil
}
