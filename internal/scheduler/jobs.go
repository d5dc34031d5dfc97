// Package scheduler периодические задачи: истечение подписок и закрытие зависших платежей.
package scheduler

import (
	"context"
	"time"

	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

const jobTimeout = 2 * time.Minute

// SubscriptionExpirer service.SubscriptionService
type SubscriptionExpirer interface {
	ExpireDue(ctx context.Context) (repository.ExpiryCounts, error)
}

// PaymentSweeper service.PaymentService
type PaymentSweeper interface {
	FailStale(ctx context.Context, ttl time.Duration) (int, error)
}

// Jobs тела cron задач
type Jobs struct {
	subs       SubscriptionExpirer
	payments   PaymentSweeper
	pendingTTL time.Duration
	log        *logger.Logger
}

func NewJobs(subs SubscriptionExpirer, payments PaymentSweeper, pendingTTL time.Duration, log *logger.Logger) *Jobs {
	if pendingTTL <= 0 {
		pendingTTL = 24 * time.Hour
	}
	return &Jobs{subs: subs, payments: payments, pendingTTL: pendingTTL, log: log}
}

// ExpireSubscriptions переводит просроченные подписки и пополнения в EXPIRED
func (j *Jobs) ExpireSubscriptions() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	counts, err := j.subs.ExpireDue(ctx)
	if err != nil {
		j.log.Errorw("Subscription expiry sweep failed", "error", err)
		return
	}
	if counts.Subscriptions > 0 || counts.TopUps > 0 {
		j.log.Infow("Subscription expiry sweep", "subscriptions", counts.Subscriptions, "topUps", counts.TopUps)
	}
}

// FailStalePayments закрывает PENDING платежи, по которым не пришел колбэк
func (j *Jobs) FailStalePayments() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	n, err := j.payments.FailStale(ctx, j.pendingTTL)
	if err != nil {
		j.log.Errorw("Stale payment sweep failed", "error", err)
		return
	}
	if n > 0 {
		j.log.Infow("Stale pending payments failed", "count", n, "olderThan", j.pendingTTL)
	}
}
