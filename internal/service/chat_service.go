package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

const (
	DefaultChatPageSize = 50
	MaxChatPageSize     = 100
)

type SendMessageInput struct {
	Message string `json:"message" validate:"required"`
}

type MarkReadInput struct {
	MessageIDs []uuid.UUID `json:"message_ids" validate:"required,min=1,max=500"`
}

// ChatSender сторона, от имени которой пишется сообщение
type ChatSender struct {
	Type domain.SenderType
	ID   uuid.UUID
}

// ChatService переписка компании с машинами и клиентами
type ChatService struct {
	chat     repository.ChatRepository
	fleet    repository.FleetRepository
	realtime Broadcaster
	events   EventPublisher
	log      *logger.Logger
	clock    Clock
}

func NewChatService(chat repository.ChatRepository, fleet repository.FleetRepository, realtime Broadcaster, events EventPublisher, log *logger.Logger, clock Clock) *ChatService {
	if realtime == nil {
		realtime = NopBroadcaster{}
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &ChatService{chat: chat, fleet: fleet, realtime: realtime, events: events, log: log.Named("chat"), clock: clock}
}

// VehicleConversation проверяет, что машина принадлежит компании
func (s *ChatService) VehicleConversation(ctx context.Context, companyID, vehicleID uuid.UUID) (domain.Conversation, error) {
	vehicle, err := s.fleet.GetVehicle(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Conversation{}, domain.NotFound("vehicle not found")
		}
		return domain.Conversation{}, err
	}
	if vehicle.CompanyID != companyID {
		return domain.Conversation{}, domain.NotFound("vehicle not found")
	}
	return domain.VehicleConversation(companyID, vehicleID), nil
}

// ClientConversation проверяет, что клиент принадлежит компании
func (s *ChatService) ClientConversation(ctx context.Context, companyID, clientID uuid.UUID) (domain.Conversation, error) {
	client, err := s.fleet.GetClient(ctx, clientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Conversation{}, domain.NotFound("client not found")
		}
		return domain.Conversation{}, err
	}
	if client.CompanyID != companyID {
		return domain.Conversation{}, domain.NotFound("client not found")
	}
	return domain.ClientConversation(companyID, clientID), nil
}

// Send сохраняет сообщение, затем рассылает его в обе комнаты переписки.
// Сбой рассылки не отменяет запись.
func (s *ChatService) Send(ctx context.Context, conv domain.Conversation, from ChatSender, text string) (*domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.Validation("message must not be empty")
	}
	if utf8.RuneCountInString(text) > domain.MaxChatMessageLength {
		return nil, domain.Validation("message is too long")
	}

	msg := &domain.ChatMessage{
		ID:         uuid.New(),
		CompanyID:  conv.CompanyID,
		VehicleID:  conv.VehicleID,
		ClientID:   conv.ClientID,
		SenderType: from.Type,
		SenderID:   from.ID,
		Message:    text,
		CreatedAt:  s.clock.now(),
	}
	if err := s.chat.Create(ctx, msg); err != nil {
		s.log.Errorw("Failed to store chat message", "companyID", conv.CompanyID, "error", err)
		return nil, err
	}

	broadcast(ctx, s.realtime, s.log, domain.RealtimeNewMessage, msg, conv.Rooms()...)
	publishEvent(ctx, s.events, s.log, domain.TopicChatMessageCreated, conv.CompanyID.String(), msg)
	return msg, nil
}

// History сообщения за последние сутки, новые первыми
func (s *ChatService) History(ctx context.Context, conv domain.Conversation, page, limit int) (*domain.ChatPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultChatPageSize
	}
	if limit > MaxChatPageSize {
		limit = MaxChatPageSize
	}

	messages, total, err := s.chat.List(ctx, domain.ChatQuery{
		Conversation: conv,
		Since:        s.clock.now().Add(-domain.ChatHistoryWindow),
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return &domain.ChatPage{Messages: messages, Page: page, Limit: limit, Total: total}, nil
}

// MarkRead читатель отмечает только сообщения другой стороны
func (s *ChatService) MarkRead(ctx context.Context, conv domain.Conversation, reader domain.SenderType, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, domain.Validation("message_ids must not be empty")
	}

	from := conv.Counterpart()
	if reader != domain.SenderCompany {
		from = domain.SenderCompany
	}
	return s.chat.MarkRead(ctx, conv, ids, from)
}
