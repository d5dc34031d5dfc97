package domain

import (
	"time"

	"github.com/google/uuid"
)

// APIKey ключ доступа пользователя к публичному API. Сам ключ не хранится, только SHA-256.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"-"`
	IsActive   bool       `json:"is_active"`
	Revoked    bool       `json:"revoked"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Usable проверяет флаги и срок действия
func (k APIKey) Usable(now time.Time) bool {
	if !k.IsActive || k.Revoked {
		return false
	}
	if k.ExpiresAt != nil && !k.ExpiresAt.After(now) {
		return false
	}
	return true
}
