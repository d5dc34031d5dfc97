package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SenderType сторона переписки
type SenderType string

const (
	SenderCompany SenderType = "COMPANY"
	SenderClient  SenderType = "CLIENT"
	SenderDriver  SenderType = "DRIVER"
)

// ChatHistoryWindow сообщения старше этого окна не отдаются в истории
const ChatHistoryWindow = 24 * time.Hour

// MaxChatMessageLength ограничение длины сообщения в символах
const MaxChatMessageLength = 2000

// Conversation переписка компании с машиной (водителем) или с клиентом.
// Ровно одно из VehicleID / ClientID заполнено.
type Conversation struct {
	CompanyID uuid.UUID
	VehicleID *uuid.UUID
	ClientID  *uuid.UUID
}

// VehicleConversation переписка компании с машиной
func VehicleConversation(companyID, vehicleID uuid.UUID) Conversation {
	return Conversation{CompanyID: companyID, VehicleID: &vehicleID}
}

// ClientConversation переписка компании с клиентом
func ClientConversation(companyID, clientID uuid.UUID) Conversation {
	return Conversation{CompanyID: companyID, ClientID: &clientID}
}

// Counterpart тип отправителя на другой стороне от компании
func (c Conversation) Counterpart() SenderType {
	if c.ClientID != nil {
		return SenderClient
	}
	return SenderDriver
}

// Rooms две комнаты real-time канала, куда уходит новое сообщение
func (c Conversation) Rooms() []string {
	rooms := make([]string, 0, 2)
	if c.VehicleID != nil {
		rooms = append(rooms, VehicleRoom(*c.VehicleID))
	}
	if c.ClientID != nil {
		rooms = append(rooms, ClientRoom(*c.ClientID))
	}
	return append(rooms, CompanyRoom(c.CompanyID))
}

func VehicleRoom(id uuid.UUID) string { return fmt.Sprintf("vehicle:%s", id) }

func CompanyRoom(id uuid.UUID) string { return fmt.Sprintf("company:%s", id) }

func ClientRoom(id uuid.UUID) string { return fmt.Sprintf("client_%s", id) }

// ChatMessage сообщение чата
type ChatMessage struct {
	ID         uuid.UUID  `json:"id"`
	CompanyID  uuid.UUID  `json:"company_id"`
	VehicleID  *uuid.UUID `json:"vehicle_id,omitempty"`
	ClientID   *uuid.UUID `json:"client_id,omitempty"`
	SenderType SenderType `json:"sender_type"`
	SenderID   uuid.UUID  `json:"sender_id"`
	Message    string     `json:"message"`
	IsRead     bool       `json:"is_read"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Conversation восстанавливает переписку, к которой относится сообщение
func (m ChatMessage) Conversation() Conversation {
	return Conversation{CompanyID: m.CompanyID, VehicleID: m.VehicleID, ClientID: m.ClientID}
}

// ChatQuery параметры выборки истории
type ChatQuery struct {
	Conversation Conversation
	Since        time.Time
	Page         int
	Limit        int
}

// Offset смещение для текущей страницы
func (q ChatQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// ChatPage страница истории
type ChatPage struct {
	Messages []ChatMessage `json:"messages"`
	Page     int           `json:"page"`
	Limit    int           `json:"limit"`
	Total    int           `json:"total"`
}
