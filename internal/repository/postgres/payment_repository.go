package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// PostgresPaymentRepository реализация PaymentRepository через PostgreSQL
type PostgresPaymentRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresPaymentRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db, log: log}
}

const paymentColumns = `id, txn_id, tenant_kind, tenant_id, plan_id, amount, status, gateway_ref, mode, product_info, created_at, updated_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.TxnID, &p.TenantKind, &p.TenantID, &p.PlanID, &p.Amount, &p.Status,
		&p.GatewayRef, &p.Mode, &p.ProductInfo, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePending сохраняет платеж в статусе PENDING
func (r *PostgresPaymentRepository) CreatePending(ctx context.Context, payment *domain.Payment) error {
	stamp(&payment.ID, &payment.CreatedAt)
	payment.UpdatedAt = payment.CreatedAt
	payment.Status = domain.PaymentPending

	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Exec(ctx, query, payment.ID, payment.TxnID, payment.TenantKind, payment.TenantID, payment.PlanID,
		payment.Amount, payment.Status, payment.GatewayRef, payment.Mode, payment.ProductInfo,
		payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err, "payments_txn_id_key") {
			return domain.NewDuplicateError("payment", "txnid", payment.TxnID)
		}
		return fmt.Errorf("failed to create payment: %w", translate(err))
	}
	return nil
}

// GetByTxnID возвращает платеж по идентификатору транзакции шлюза
func (r *PostgresPaymentRepository) GetByTxnID(ctx context.Context, txnID string) (*domain.Payment, error) {
	p, err := scanPayment(r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE txn_id = $1`, txnID))
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

// List возвращает платежи по фильтру, новые первыми
func (r *PostgresPaymentRepository) List(ctx context.Context, filter repository.PaymentFilter) ([]domain.Payment, error) {
	var (
		conds []string
		args  []any
	)
	if filter.TenantKind != "" {
		args = append(args, filter.TenantKind)
		conds = append(conds, fmt.Sprintf("tenant_kind = $%d", len(args)))
	}
	if filter.TenantID != nil {
		args = append(args, *filter.TenantID)
		conds = append(conds, fmt.Sprintf("tenant_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + paymentColumns + ` FROM payments`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// Settle проводит платеж вместе с подпиской или пополнением в одной транзакции.
// Повторный колбэк по уже успешному txnid возвращает прежний результат.
func (r *PostgresPaymentRepository) Settle(ctx context.Context, settlement domain.Settlement, now time.Time) (*domain.SettlementResult, error) {
	var result *domain.SettlementResult

	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		payment := settlement.Payment

		existing, err := scanPayment(tx.QueryRow(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE txn_id = $1 FOR UPDATE`, payment.TxnID))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to lock payment: %w", err)
		}

		if existing != nil && existing.Status == domain.PaymentSuccess {
			r.log.Infow("Duplicate payment callback ignored", "txnid", payment.TxnID)
			result, err = settledResult(ctx, tx, *existing)
			return err
		}

		if existing != nil {
			payment.ID = existing.ID
			payment.CreatedAt = existing.CreatedAt
			if payment.TenantID == nil {
				payment.TenantID = existing.TenantID
			}
			if payment.PlanID == nil {
				payment.PlanID = existing.PlanID
			}
			if payment.ProductInfo == "" {
				payment.ProductInfo = existing.ProductInfo
			}
		} else {
			if payment.ID == uuid.Nil {
				payment.ID = uuid.New()
			}
			payment.CreatedAt = now
		}
		payment.UpdatedAt = now

		query := `
			INSERT INTO payments (` + paymentColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (txn_id) DO UPDATE
			SET tenant_id = EXCLUDED.tenant_id, plan_id = EXCLUDED.plan_id, amount = EXCLUDED.amount,
				status = EXCLUDED.status, gateway_ref = EXCLUDED.gateway_ref, mode = EXCLUDED.mode,
				product_info = EXCLUDED.product_info, updated_at = EXCLUDED.updated_at
			WHERE payments.status <> 'SUCCESS'
		`
		tag, err := tx.Exec(ctx, query, payment.ID, payment.TxnID, payment.TenantKind, payment.TenantID, payment.PlanID,
			payment.Amount, payment.Status, payment.GatewayRef, payment.Mode, payment.ProductInfo,
			payment.CreatedAt, payment.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert payment: %w", translate(err))
		}
		if tag.RowsAffected() == 0 {
			// параллельный колбэк успел провести платеж, пока строки еще не было
			settled, err := scanPayment(tx.QueryRow(ctx,
				`SELECT `+paymentColumns+` FROM payments WHERE txn_id = $1`, payment.TxnID))
			if err != nil {
				return fmt.Errorf("failed to reload settled payment: %w", translate(err))
			}
			r.log.Infow("Concurrent payment callback ignored", "txnid", payment.TxnID)
			result, err = settledResult(ctx, tx, *settled)
			return err
		}

		result = &domain.SettlementResult{Payment: payment}
		if payment.Status != domain.PaymentSuccess {
			return nil
		}

		paymentID := payment.ID
		if settlement.Subscription != nil {
			sub := *settlement.Subscription
			sub.PaymentID = &paymentID
			created, err := activate(ctx, tx, sub, true, now)
			if err != nil {
				return err
			}
			result.Subscription = created
		}

		if settlement.TopUp != nil {
			topUp := *settlement.TopUp
			topUp.PaymentID = &paymentID
			if topUp.ID == uuid.Nil {
				topUp.ID = uuid.New()
			}
			topUp.Status = domain.TopUpActive
			if topUp.CreatedAt.IsZero() {
				topUp.CreatedAt = now
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO top_ups (`+topUpColumns+`)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			`, topUp.ID, topUp.CompanyID, topUp.PlanID, topUp.Kind, topUp.Increment, topUp.Status,
				topUp.StartAt, topUp.EndAt, topUp.PaymentID, topUp.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert top-up: %w", translate(err))
			}
			result.TopUp = &topUp
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// settledResult восстанавливает результат уже проведенного платежа
func settledResult(ctx context.Context, q querier, payment domain.Payment) (*domain.SettlementResult, error) {
	result := &domain.SettlementResult{Payment: payment, Duplicate: true}

	sub, err := scanSubscription(q.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE payment_id = $1 LIMIT 1`, payment.ID))
	switch {
	case err == nil:
		result.Subscription = sub
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("failed to load settled subscription: %w", err)
	}

	topUp, err := scanTopUp(q.QueryRow(ctx,
		`SELECT `+topUpColumns+` FROM top_ups WHERE payment_id = $1 LIMIT 1`, payment.ID))
	switch {
	case err == nil:
		result.TopUp = topUp
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("failed to load settled top-up: %w", err)
	}
	return result, nil
}

// FailStalePending переводит зависшие PENDING платежи в FAILED
func (r *PostgresPaymentRepository) FailStalePending(ctx context.Context, before time.Time, now time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments SET status = 'FAILED', updated_at = $1
		WHERE status = 'PENDING' AND created_at < $2
	`, now, before)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale payments: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
