package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// PostgresChatRepository реализация ChatRepository через PostgreSQL
type PostgresChatRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresChatRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresChatRepository {
	return &PostgresChatRepository{db: db, log: log}
}

const chatColumns = `id, company_id, vehicle_id, client_id, sender_type, sender_id, message, is_read, created_at`

// conversationFilter условие на переписку, IS NOT DISTINCT FROM сравнивает NULL как значение
const conversationFilter = `company_id = $1 AND vehicle_id IS NOT DISTINCT FROM $2 AND client_id IS NOT DISTINCT FROM $3`

func scanChatMessage(row pgx.Row) (*domain.ChatMessage, error) {
	var m domain.ChatMessage
	err := row.Scan(&m.ID, &m.CompanyID, &m.VehicleID, &m.ClientID, &m.SenderType, &m.SenderID,
		&m.Message, &m.IsRead, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *PostgresChatRepository) Create(ctx context.Context, msg *domain.ChatMessage) error {
	stamp(&msg.ID, &msg.CreatedAt)

	_, err := r.db.Exec(ctx, `
		INSERT INTO chat_messages (`+chatColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, msg.ID, msg.CompanyID, msg.VehicleID, msg.ClientID, msg.SenderType, msg.SenderID,
		msg.Message, msg.IsRead, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat message: %w", translate(err))
	}
	return nil
}

// List страница истории переписки с общим числом сообщений в окне
func (r *PostgresChatRepository) List(ctx context.Context, query domain.ChatQuery) ([]domain.ChatMessage, int, error) {
	conv := query.Conversation

	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chat_messages WHERE `+conversationFilter+` AND created_at >= $4`,
		conv.CompanyID, conv.VehicleID, conv.ClientID, query.Since).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count chat messages: %w", err)
	}

	var limit any
	if query.Limit > 0 {
		limit = query.Limit
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+chatColumns+`
		FROM chat_messages
		WHERE `+conversationFilter+` AND created_at >= $4
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`, conv.CompanyID, conv.VehicleID, conv.ClientID, query.Since, limit, query.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.ChatMessage, 0)
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// MarkRead отмечает прочитанными только непрочитанные сообщения стороны from
func (r *PostgresChatRepository) MarkRead(ctx context.Context, conv domain.Conversation, ids []uuid.UUID, from domain.SenderType) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE chat_messages SET is_read = TRUE
		WHERE `+conversationFilter+` AND id = ANY($4) AND sender_type = $5 AND NOT is_read
	`, conv.CompanyID, conv.VehicleID, conv.ClientID, ids, from)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
