package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// PostgresAPIKeyRepository реализация APIKeyRepository через PostgreSQL
type PostgresAPIKeyRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresAPIKeyRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresAPIKeyRepository {
	return &PostgresAPIKeyRepository{db: db, log: log}
}

const apiKeyColumns = `id, user_id, name, prefix, key_hash, is_active, revoked, expires_at, last_used_at, created_at`

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	var k domain.APIKey
	err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.Prefix, &k.KeyHash, &k.IsActive, &k.Revoked,
		&k.ExpiresAt, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *PostgresAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	stamp(&key.ID, &key.CreatedAt)

	_, err := r.db.Exec(ctx, `
		INSERT INTO api_keys (`+apiKeyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, key.ID, key.UserID, key.Name, key.Prefix, key.KeyHash, key.IsActive, key.Revoked,
		key.ExpiresAt, key.LastUsedAt, key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", translate(err))
	}
	return nil
}

func (r *PostgresAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	k, err := scanAPIKey(r.db.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, hash))
	if err != nil {
		return nil, translate(err)
	}
	return k, nil
}

func (r *PostgresAPIKeyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error) {
	rows, err := r.db.Query(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	keys := make([]domain.APIKey, 0)
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan api key: %w", err)
		}
		keys = append(keys, *k)
	}
	return keys, rows.Err()
}

// Revoke отзывает ключ пользователя. Чужой ключ неотличим от отсутствующего.
func (r *PostgresAPIKeyRepository) Revoke(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE api_keys SET revoked = TRUE, is_active = FALSE
		WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PostgresAPIKeyRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("failed to touch api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
