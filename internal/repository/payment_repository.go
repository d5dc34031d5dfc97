package repository

import (
	"context"
	"sort"
	"time"

	"github.com/okdriver/okdriver-backend/internal/domain"
)

// InMemoryPaymentRepository реализация PaymentRepository в памяти
type InMemoryPaymentRepository struct {
	db *memoryDB
}

// CreatePending сохраняет платеж в статусе PENDING, txnid уникален
func (r *InMemoryPaymentRepository) CreatePending(ctx context.Context, payment *domain.Payment) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	if _, exists := r.db.payments[payment.TxnID]; exists {
		return domain.NewDuplicateError("payment", "txnid", payment.TxnID)
	}

	ensureID(&payment.ID)
	payment.Status = domain.PaymentPending
	r.db.payments[payment.TxnID] = *payment
	return nil
}

// GetByTxnID возвращает платеж по идентификатору транзакции шлюза
func (r *InMemoryPaymentRepository) GetByTxnID(ctx context.Context, txnID string) (*domain.Payment, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	payment, exists := r.db.payments[txnID]
	if !exists {
		return nil, ErrNotFound
	}
	return &payment, nil
}

// List возвращает платежи по фильтру, новые первыми
func (r *InMemoryPaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]domain.Payment, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	payments := make([]domain.Payment, 0)
	for _, p := range r.db.payments {
		if filter.TenantKind != "" && p.TenantKind != filter.TenantKind {
			continue
		}
		if filter.TenantID != nil && (p.TenantID == nil || *p.TenantID != *filter.TenantID) {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		payments = append(payments, p)
	}

	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.After(payments[j].CreatedAt) })
	if filter.Limit > 0 && len(payments) > filter.Limit {
		payments = payments[:filter.Limit]
	}
	return payments, nil
}

// Settle проводит платеж вместе с подпиской или пополнением под одним мьютексом
func (r *InMemoryPaymentRepository) Settle(ctx context.Context, settlement domain.Settlement, now time.Time) (*domain.SettlementResult, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	payment := settlement.Payment
	existing, exists := r.db.payments[payment.TxnID]
	if exists && existing.Status == domain.PaymentSuccess {
		r.db.log.Infow("Duplicate payment callback ignored", "txnid", payment.TxnID)
		return r.db.settlementFor(existing), nil
	}

	if exists {
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
		ensureID(&payment.ID)
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now

	if payment.Status != domain.PaymentSuccess {
		r.db.payments[payment.TxnID] = payment
		return &domain.SettlementResult{Payment: payment}, nil
	}

	result := &domain.SettlementResult{Payment: payment}
	paymentID := payment.ID

	if settlement.Subscription != nil {
		sub := *settlement.Subscription
		sub.PaymentID = &paymentID
		created, err := r.db.activate(sub, true, now)
		if err != nil {
			return nil, err
		}
		result.Subscription = &created
	}

	if settlement.TopUp != nil {
		topUp := *settlement.TopUp
		topUp.PaymentID = &paymentID
		ensureID(&topUp.ID)
		topUp.Status = domain.TopUpActive
		r.db.topUps[topUp.ID] = topUp
		result.TopUp = &topUp
	}

	r.db.payments[payment.TxnID] = payment
	return result, nil
}

// FailStalePending переводит зависшие PENDING платежи в FAILED
func (r *InMemoryPaymentRepository) FailStalePending(ctx context.Context, before time.Time, now time.Time) (int, error) {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	count := 0
	for txnID, p := range r.db.payments {
		if p.Status == domain.PaymentPending && p.CreatedAt.Before(before) {
			p.Status = domain.PaymentFailed
			p.UpdatedAt = now
			r.db.payments[txnID] = p
			count++
		}
	}
	return count, nil
}

// settlementFor восстанавливает результат уже проведенного платежа
func (db *memoryDB) settlementFor(payment domain.Payment) *domain.SettlementResult {
	result := &domain.SettlementResult{Payment: payment, Duplicate: true}
	for _, s := range db.subscriptions {
		if s.PaymentID != nil && *s.PaymentID == payment.ID {
			sub := s
			result.Subscription = &sub
			break
		}
	}
	for _, t := range db.topUps {
		if t.PaymentID != nil && *t.PaymentID == payment.ID {
			topUp := t
			result.TopUp = &topUp
			break
		}
	}
	return result
}
