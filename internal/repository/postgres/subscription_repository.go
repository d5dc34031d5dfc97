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

const oneActiveConstraint = "subscriptions_one_active_idx"

// PostgresSubscriptionRepository реализация SubscriptionRepository через PostgreSQL
type PostgresSubscriptionRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresSubscriptionRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{db: db, log: log}
}

const subscriptionColumns = `id, tenant_kind, tenant_id, plan_id, plan_kind, status, start_at, end_at, payment_id, created_at, updated_at`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(&s.ID, &s.Tenant.Kind, &s.Tenant.ID, &s.PlanID, &s.PlanKind, &s.Status,
		&s.StartAt, &s.EndAt, &s.PaymentID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

const topUpColumns = `id, company_id, plan_id, kind, increment, status, start_at, end_at, payment_id, created_at`

func scanTopUp(row pgx.Row) (*domain.TopUp, error) {
	var t domain.TopUp
	err := row.Scan(&t.ID, &t.CompanyID, &t.PlanID, &t.Kind, &t.Increment, &t.Status,
		&t.StartAt, &t.EndAt, &t.PaymentID, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// expireTenant ленивое истечение подписок и пополнений владельца
func expireTenant(ctx context.Context, q querier, tenant domain.TenantRef, now time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE subscriptions SET status = 'EXPIRED', updated_at = $1
		WHERE tenant_kind = $2 AND tenant_id = $3 AND status = 'ACTIVE' AND end_at < $1
	`, now, tenant.Kind, tenant.ID)
	if err != nil {
		return fmt.Errorf("failed to expire subscriptions: %w", err)
	}

	if tenant.Kind == domain.TenantCompany {
		return expireTopUps(ctx, q, tenant.ID, now)
	}
	return nil
}

func expireTopUps(ctx context.Context, q querier, companyID uuid.UUID, now time.Time) error {
	_, err := q.Exec(ctx, `
		UPDATE top_ups SET status = 'EXPIRED'
		WHERE company_id = $1 AND status = 'ACTIVE' AND end_at < $2
	`, companyID, now)
	if err != nil {
		return fmt.Errorf("failed to expire top-ups: %w", err)
	}
	return nil
}

// activate общая часть Activate и Settle, выполняется внутри транзакции
func activate(ctx context.Context, tx pgx.Tx, sub domain.Subscription, supersede bool, now time.Time) (*domain.Subscription, error) {
	if err := expireTenant(ctx, tx, sub.Tenant, now); err != nil {
		return nil, err
	}

	var active int
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT id FROM subscriptions
			WHERE tenant_kind = $1 AND tenant_id = $2 AND status = 'ACTIVE'
			FOR UPDATE
		) locked
	`, sub.Tenant.Kind, sub.Tenant.ID).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("failed to lock active subscription: %w", err)
	}

	if active > 0 {
		if !supersede {
			return nil, repository.ErrActiveSubscription
		}
		_, err := tx.Exec(ctx, `
			UPDATE subscriptions SET status = 'EXPIRED', updated_at = $1
			WHERE tenant_kind = $2 AND tenant_id = $3 AND status = 'ACTIVE'
		`, now, sub.Tenant.Kind, sub.Tenant.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to supersede subscription: %w", err)
		}
	}

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.Status = domain.SubscriptionActive
	sub.CreatedAt, sub.UpdatedAt = now, now

	_, err = tx.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sub.ID, sub.Tenant.Kind, sub.Tenant.ID, sub.PlanID, sub.PlanKind, sub.Status,
		sub.StartAt, sub.EndAt, sub.PaymentID, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		// параллельная активация успела раньше
		if isUniqueViolation(err, oneActiveConstraint) {
			return nil, repository.ErrActiveSubscription
		}
		return nil, fmt.Errorf("failed to insert subscription: %w", err)
	}

	planID, endAt := sub.PlanID, sub.EndAt
	if err := setTenantPlan(ctx, tx, sub.Tenant, &planID, &endAt, now); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Activate вставляет подписку в транзакции
func (r *PostgresSubscriptionRepository) Activate(ctx context.Context, sub domain.Subscription, supersede bool, now time.Time) (*domain.Subscription, error) {
	var created *domain.Subscription
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		var err error
		created, err = activate(ctx, tx, sub, supersede, now)
		return err
	})
	if err != nil {
		if isUniqueViolation(err, oneActiveConstraint) {
			return nil, repository.ErrActiveSubscription
		}
		return nil, err
	}

	r.log.Infow("Subscription activated", "tenant", sub.Tenant.String(), "planID", sub.PlanID, "endAt", created.EndAt)
	return created, nil
}

// Active ленивое истечение и самая поздняя активная подписка
func (r *PostgresSubscriptionRepository) Active(ctx context.Context, tenant domain.TenantRef, now time.Time) (*domain.Subscription, error) {
	if err := expireTenant(ctx, r.db, tenant, now); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE tenant_kind = $1 AND tenant_id = $2 AND status = 'ACTIVE'
		ORDER BY end_at DESC
		LIMIT 1
	`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, tenant.Kind, tenant.ID))
	if err != nil {
		return nil, translate(err)
	}
	return sub, nil
}

func (r *PostgresSubscriptionRepository) ListByTenant(ctx context.Context, tenant domain.TenantRef) ([]domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE tenant_kind = $1 AND tenant_id = $2
		ORDER BY start_at DESC, created_at DESC
	`
	rows, err := r.db.Query(ctx, query, tenant.Kind, tenant.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]domain.Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *s)
	}
	return subs, rows.Err()
}

// Cancel отменяет действующую подписку и очищает указатель владельца
func (r *PostgresSubscriptionRepository) Cancel(ctx context.Context, tenant domain.TenantRef, now time.Time) (*domain.Subscription, error) {
	var cancelled *domain.Subscription
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := expireTenant(ctx, tx, tenant, now); err != nil {
			return err
		}

		query := `
			UPDATE subscriptions SET status = 'CANCELLED', updated_at = $1
			WHERE tenant_kind = $2 AND tenant_id = $3 AND status = 'ACTIVE'
			RETURNING ` + subscriptionColumns
		sub, err := scanSubscription(tx.QueryRow(ctx, query, now, tenant.Kind, tenant.ID))
		if err != nil {
			return translate(err)
		}
		cancelled = sub

		return setTenantPlan(ctx, tx, tenant, nil, nil, now)
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// ExpireDue фоновое истечение по всем владельцам
func (r *PostgresSubscriptionRepository) ExpireDue(ctx context.Context, now time.Time) (repository.ExpiryCounts, error) {
	var counts repository.ExpiryCounts

	tag, err := r.db.Exec(ctx, `UPDATE subscriptions SET status = 'EXPIRED', updated_at = $1 WHERE status = 'ACTIVE' AND end_at < $1`, now)
	if err != nil {
		return counts, fmt.Errorf("failed to expire subscriptions: %w", err)
	}
	counts.Subscriptions = int(tag.RowsAffected())

	tag, err = r.db.Exec(ctx, `UPDATE top_ups SET status = 'EXPIRED' WHERE status = 'ACTIVE' AND end_at < $1`, now)
	if err != nil {
		return counts, fmt.Errorf("failed to expire top-ups: %w", err)
	}
	counts.TopUps = int(tag.RowsAffected())

	return counts, nil
}

// ActiveTopUps действующие пополнения компании
func (r *PostgresSubscriptionRepository) ActiveTopUps(ctx context.Context, companyID uuid.UUID, now time.Time) ([]domain.TopUp, error) {
	if err := expireTopUps(ctx, r.db, companyID, now); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+topUpColumns+`
		FROM top_ups
		WHERE company_id = $1 AND status = 'ACTIVE'
		ORDER BY end_at ASC
	`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query top-ups: %w", err)
	}
	defer rows.Close()

	topUps := make([]domain.TopUp, 0)
	for rows.Next() {
		t, err := scanTopUp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan top-up: %w", err)
		}
		topUps = append(topUps, *t)
	}
	return topUps, rows.Err()
}
