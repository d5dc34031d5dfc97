package metrics

import (
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics интерфейс для метрик платежей и подписок
type PaymentMetrics interface {
	IncOrderCreated(tenantKind string)
	IncPaymentSettled(status string)
	IncDuplicateCallback()
	IncVerificationFailed(reason string)
	ObservePaymentAmount(amount float64, status string)
	IncSubscriptionActivated(planKind string)
	IncSubscriptionCancelled(tenantKind string)
	AddExpired(subscriptions, topUps int)
}

type paymentMetrics struct {
	log                *logger.Logger
	ordersCreated      *prometheus.CounterVec
	paymentsStatus     *prometheus.CounterVec
	duplicateCallbacks prometheus.Counter
	verification       *prometheus.CounterVec
	paymentsAmount     *prometheus.HistogramVec
	activations        *prometheus.CounterVec
	cancellations      *prometheus.CounterVec
	expirations        *prometheus.CounterVec
}

// NewPaymentMetrics создает новые метрики платежей
func NewPaymentMetrics(registry *prometheus.Registry, log *logger.Logger) PaymentMetrics {
	factory := promauto.With(registry)

	return &paymentMetrics{
		log: log,
		ordersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_orders_created_total",
				Help:      "The total number of PayU orders created",
			},
			[]string{"tenant_kind"},
		),
		paymentsStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_settled_total",
				Help:      "The total number of settled payments by status",
			},
			[]string{"status"},
		),
		duplicateCallbacks: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_duplicate_callbacks_total",
				Help:      "Callbacks for transactions that were already settled",
			},
		),
		verification: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payment_verification_failures_total",
				Help:      "Callbacks rejected by checksum verification",
			},
			[]string{"reason"},
		),
		paymentsAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "payments_amount_inr",
				Help:      "Payment amounts distribution",
				Buckets:   prometheus.ExponentialBuckets(10, 10, 5), // 10, 100, 1000, 10000, 100000
			},
			[]string{"status"},
		),
		activations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriptions_activated_total",
				Help:      "Subscriptions and top-ups activated by plan kind",
			},
			[]string{"plan_kind"},
		),
		cancellations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriptions_cancelled_total",
				Help:      "Subscriptions cancelled by tenant kind",
			},
			[]string{"tenant_kind"},
		),
		expirations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscriptions_expired_total",
				Help:      "Rows expired by the background sweep",
			},
			[]string{"entity"},
		),
	}
}

func (m *paymentMetrics) IncOrderCreated(tenantKind string) {
	m.ordersCreated.WithLabelValues(tenantKind).Inc()
}

func (m *paymentMetrics) IncPaymentSettled(status string) {
	m.paymentsStatus.WithLabelValues(status).Inc()
}

func (m *paymentMetrics) IncDuplicateCallback() {
	m.duplicateCallbacks.Inc()
}

func (m *paymentMetrics) IncVerificationFailed(reason string) {
	m.verification.WithLabelValues(reason).Inc()
}

// ObservePaymentAmount записывает сумму платежа
func (m *paymentMetrics) ObservePaymentAmount(amount float64, status string) {
	m.paymentsAmount.WithLabelValues(status).Observe(amount)
}

func (m *paymentMetrics) IncSubscriptionActivated(planKind string) {
	m.activations.WithLabelValues(planKind).Inc()
}

func (m *paymentMetrics) IncSubscriptionCancelled(tenantKind string) {
	m.cancellations.WithLabelValues(tenantKind).Inc()
}

func (m *paymentMetrics) AddExpired(subscriptions, topUps int) {
	m.expirations.WithLabelValues("subscription").Add(float64(subscriptions))
	m.expirations.WithLabelValues("top_up").Add(float64(topUps))
}

// NopPaymentMetrics пустая реализация для тестов и запуска без реестра
type NopPaymentMetrics struct{}

func (NopPaymentMetrics) IncOrderCreated(string)               {}
func (NopPaymentMetrics) IncPaymentSettled(string)             {}
func (NopPaymentMetrics) IncDuplicateCallback()                {}
func (NopPaymentMetrics) IncVerificationFailed(string)         {}
func (NopPaymentMetrics) ObservePaymentAmount(float64, string) {}
func (NopPaymentMetrics) IncSubscriptionActivated(string)      {}
func (NopPaymentMetrics) IncSubscriptionCancelled(string)      {}
func (NopPaymentMetrics) AddExpired(int, int)                  {}
