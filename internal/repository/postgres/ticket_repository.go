package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// PostgresTicketRepository реализация TicketRepository через PostgreSQL
type PostgresTicketRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresTicketRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresTicketRepository {
	return &PostgresTicketRepository{db: db, log: log}
}

const ticketColumns = `id, company_id, subject, description, priority, status, admin_response, created_at, updated_at`

func scanTicket(row pgx.Row) (*domain.HelpTicket, error) {
	var t domain.HelpTicket
	err := row.Scan(&t.ID, &t.CompanyID, &t.Subject, &t.Description, &t.Priority, &t.Status,
		&t.AdminResponse, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *PostgresTicketRepository) Create(ctx context.Context, ticket *domain.HelpTicket) error {
	stamp(&ticket.ID, &ticket.CreatedAt)
	if ticket.UpdatedAt.IsZero() {
		ticket.UpdatedAt = ticket.CreatedAt
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO help_tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ticket.ID, ticket.CompanyID, ticket.Subject, ticket.Description, ticket.Priority, ticket.Status,
		ticket.AdminResponse, ticket.CreatedAt, ticket.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create ticket: %w", translate(err))
	}
	return nil
}

func (r *PostgresTicketRepository) Get(ctx context.Context, id uuid.UUID) (*domain.HelpTicket, error) {
	t, err := scanTicket(r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM help_tickets WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

func (r *PostgresTicketRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]domain.HelpTicket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM help_tickets WHERE company_id = $1 ORDER BY created_at DESC`, companyID)
}

// List все обращения, пустой статус означает без фильтра
func (r *PostgresTicketRepository) List(ctx context.Context, status domain.TicketStatus) ([]domain.HelpTicket, error) {
	return r.list(ctx, `SELECT `+ticketColumns+` FROM help_tickets WHERE ($1 = '' OR status = $1) ORDER BY created_at DESC`, string(status))
}

func (r *PostgresTicketRepository) list(ctx context.Context, query string, args ...any) ([]domain.HelpTicket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]domain.HelpTicket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func (r *PostgresTicketRepository) Update(ctx context.Context, ticket *domain.HelpTicket) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE help_tickets
		SET subject = $1, description = $2, priority = $3, status = $4, admin_response = $5, updated_at = $6
		WHERE id = $7
	`, ticket.Subject, ticket.Description, ticket.Priority, ticket.Status, ticket.AdminResponse, ticket.UpdatedAt, ticket.ID)
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
