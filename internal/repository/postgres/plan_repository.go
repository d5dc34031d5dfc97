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

// PostgresPlanRepository реализация PlanRepository через PostgreSQL
type PostgresPlanRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresPlanRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresPlanRepository {
	return &PostgresPlanRepository{db: db, log: log}
}

const planColumns = `id, kind, name, description, price, duration_days, features,
	vehicle_limit, client_limit, requests_per_day, is_active, created_at, updated_at`

func scanPlan(row pgx.Row) (*domain.Plan, error) {
	var p domain.Plan
	err := row.Scan(&p.ID, &p.Kind, &p.Name, &p.Description, &p.Price, &p.DurationDays, &p.Features,
		&p.VehicleLimit, &p.ClientLimit, &p.RequestsPerDay, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func features(p *domain.Plan) []string {
	if p.Features == nil {
		return []string{}
	}
	return p.Features
}

// Create сохраняет новый план
func (r *PostgresPlanRepository) Create(ctx context.Context, plan *domain.Plan) error {
	stamp(&plan.ID, &plan.CreatedAt)
	if plan.UpdatedAt.IsZero() {
		plan.UpdatedAt = plan.CreatedAt
	}

	query := `
		INSERT INTO plans (id, kind, name, description, price, duration_days, features,
			vehicle_limit, client_limit, requests_per_day, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query, plan.ID, plan.Kind, plan.Name, plan.Description, plan.Price,
		plan.DurationDays, features(plan), plan.VehicleLimit, plan.ClientLimit, plan.RequestsPerDay,
		plan.IsActive, plan.CreatedAt, plan.UpdatedAt)
	if err != nil {
		r.log.Errorw("Failed to create plan", "error", err, "kind", plan.Kind)
		return fmt.Errorf("failed to create plan: %w", translate(err))
	}
	return nil
}

// Get возвращает план по ID
func (r *PostgresPlanRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Plan, error) {
	p, err := scanPlan(r.db.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// List возвращает планы вида kind, дешевые первыми
func (r *PostgresPlanRepository) List(ctx context.Context, kind domain.PlanKind, activeOnly bool) ([]domain.Plan, error) {
	query := `
		SELECT ` + planColumns + `
		FROM plans
		WHERE ($1 = '' OR kind = $1) AND (NOT $2 OR is_active)
		ORDER BY price ASC, created_at ASC
	`
	rows, err := r.db.Query(ctx, query, string(kind), activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	plans := make([]domain.Plan, 0)
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	return plans, rows.Err()
}

// Update обновляет план
func (r *PostgresPlanRepository) Update(ctx context.Context, plan *domain.Plan) error {
	query := `
		UPDATE plans
		SET name = $1, description = $2, price = $3, duration_days = $4, features = $5,
			vehicle_limit = $6, client_limit = $7, requests_per_day = $8, is_active = $9, updated_at = $10
		WHERE id = $11
	`
	tag, err := r.db.Exec(ctx, query, plan.Name, plan.Description, plan.Price, plan.DurationDays, features(plan),
		plan.VehicleLimit, plan.ClientLimit, plan.RequestsPerDay, plan.IsActive, plan.UpdatedAt, plan.ID)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", translate(err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SoftDelete блокирует строку плана, считает ссылки и выключает план в одной транзакции
func (r *PostgresPlanRepository) SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM plans WHERE id = $1 FOR UPDATE`, id).Scan(&locked); err != nil {
			return translate(err)
		}

		var inUse int
		query := `
			SELECT
				(SELECT COUNT(*) FROM subscriptions WHERE plan_id = $1 AND status = 'ACTIVE' AND end_at >= $2) +
				(SELECT COUNT(*) FROM top_ups WHERE plan_id = $1 AND status = 'ACTIVE' AND end_at >= $2)
		`
		if err := tx.QueryRow(ctx, query, id, now).Scan(&inUse); err != nil {
			return fmt.Errorf("failed to count plan references: %w", err)
		}
		if inUse > 0 {
			r.log.Infow("Plan delete rejected", "planID", id, "references", inUse)
			return repository.ErrPlanInUse
		}

		if _, err := tx.Exec(ctx, `UPDATE plans SET is_active = FALSE, updated_at = $1 WHERE id = $2`, now, id); err != nil {
			return fmt.Errorf("failed to deactivate plan: %w", err)
		}
		return nil
	})
}
