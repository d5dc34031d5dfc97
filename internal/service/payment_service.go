package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/metrics"
	"github.com/okdriver/okdriver-backend/internal/payment/payu"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// PaymentURLs базовые адреса для surl/furl и редиректа на сайт
type PaymentURLs struct {
	BackendBaseURL string
	WebsiteBaseURL string
}

// CreateOrderInput тело запроса create-order. Сумма клиента не используется.
type CreateOrderInput struct {
	PlanID          uuid.UUID        `json:"plan_id" validate:"required"`
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	CallbackBaseURL string           `json:"callback_base_url,omitempty" validate:"omitempty,url"`
	FirstName       string           `json:"firstname,omitempty" validate:"max=120"`
	Email           string           `json:"email,omitempty" validate:"omitempty,email"`
	Phone           string           `json:"phone,omitempty" validate:"max=20"`
}

// CallbackResult итог обработки колбэка PayU
type CallbackResult struct {
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	TxnID         string               `json:"txnid"`
	MihPayID      string               `json:"mihpayid,omitempty"`
	RedirectURL   string               `json:"redirect_url"`
	Subscription  *domain.Subscription `json:"subscription,omitempty"`
	TopUp         *domain.TopUp        `json:"top_up,omitempty"`
	Duplicate     bool                 `json:"duplicate"`
}

// PaymentService оформление заказа в PayU и проведение колбэков
type PaymentService struct {
	gateway  *payu.Gateway
	payments repository.PaymentRepository
	plans    repository.PlanRepository
	accounts repository.AccountRepository
	cache    CacheInvalidator
	events   EventPublisher
	metrics  metrics.PaymentMetrics
	urls     PaymentURLs
	log      *logger.Logger
	clock    Clock
}

// NewPaymentService создает новый сервис платежей
func NewPaymentService(
	gateway *payu.Gateway,
	payments repository.PaymentRepository,
	plans repository.PlanRepository,
	accounts repository.AccountRepository,
	cache CacheInvalidator,
	events EventPublisher,
	m metrics.PaymentMetrics,
	urls PaymentURLs,
	log *logger.Logger,
	clock Clock,
) *PaymentService {
	if cache == nil {
		cache = nopInvalidator{}
	}
	if events == nil {
		events = NopPublisher{}
	}
	if m == nil {
		m = metrics.NopPaymentMetrics{}
	}
	return &PaymentService{
		gateway:  gateway,
		payments: payments,
		plans:    plans,
		accounts: accounts,
		cache:    cache,
		events:   events,
		metrics:  m,
		urls:     urls,
		log:      log.Named("payments"),
		clock:    clock,
	}
}

// CreateOrder подписывает параметры формы PayU и сохраняет платеж в статусе PENDING
func (s *PaymentService) CreateOrder(ctx context.Context, ref domain.TenantRef, in CreateOrderInput) (*payu.Order, error) {
	if !s.gateway.Configured() {
		return nil, domain.Internal("payment gateway not configured", payu.ErrNotConfigured)
	}

	tenant, err := s.accounts.GetTenant(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("tenant not found")
		}
		return nil, err
	}

	plan, err := s.plans.Get(ctx, in.PlanID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("plan not found")
		}
		return nil, err
	}
	if !plan.IsActive {
		return nil, domain.NotFound("plan not found")
	}
	if plan.Kind.TenantKind() != ref.Kind {
		return nil, domain.Validation("plan kind does not match tenant")
	}

	if in.Amount != nil && !in.Amount.Equal(plan.Price) {
		s.log.Warnw("Client amount ignored, plan price is used",
			"planID", plan.ID, "clientAmount", in.Amount.String(), "price", plan.Price.StringFixed(2))
	}

	base := strings.TrimRight(in.CallbackBaseURL, "/")
	if base == "" {
		base = strings.TrimRight(s.urls.BackendBaseURL, "/")
	}
	returnURL := base + "/api/" + ref.Kind.PathSegment() + "/payment/payu-return"

	input := payu.OrderInput{
		Amount:      plan.Price,
		ProductInfo: plan.Name,
		FirstName:   firstNonEmpty(in.FirstName, tenant.Name, "Customer"),
		Email:       firstNonEmpty(in.Email, tenant.Email),
		Phone:       firstNonEmpty(in.Phone, tenant.Phone),
		SuccessURL:  returnURL,
		FailureURL:  returnURL,
	}
	input.UDF[0] = plan.ID.String()
	input.UDF[1] = ref.ID.String()
	input.UDF[2] = string(ref.Kind)
	input.UDF[3] = string(plan.Kind)

	order, err := s.gateway.CreateOrder(input)
	if err != nil {
		return nil, domain.Internal("failed to sign order", err)
	}

	now := s.clock.now()
	tenantID, planID := ref.ID, plan.ID
	payment := &domain.Payment{
		ID:          uuid.New(),
		TxnID:       order.TxnID,
		TenantKind:  ref.Kind,
		TenantID:    &tenantID,
		PlanID:      &planID,
		Amount:      plan.Price,
		Status:      domain.PaymentPending,
		ProductInfo: plan.Name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.payments.CreatePending(ctx, payment); err != nil {
		s.log.Errorw("Failed to store pending payment", "txnid", order.TxnID, "error", err)
		return nil, err
	}

	s.metrics.IncOrderCreated(string(ref.Kind))
	publishEvent(ctx, s.events, s.log, domain.TopicPaymentOrderCreated, payment.TxnID, domain.NewPaymentEvent(*payment, now))
	s.log.Infow("Payment order created", "txnid", order.TxnID, "tenant", ref.String(), "planID", plan.ID, "amount", order.Amount)
	return &order, nil
}

// HandleCallback проверяет подпись и атомарно проводит платеж.
// При несовпадении подписи ничего не записывается.
func (s *PaymentService) HandleCallback(ctx context.Context, routeKind domain.TenantKind, cb payu.Callback) (*CallbackResult, error) {
	verification, err := s.gateway.Verify(cb)
	if err != nil {
		return nil, domain.Internal("payment gateway not configured", err)
	}
	if !verification.OK {
		s.metrics.IncVerificationFailed(verification.Reason)
		s.log.Warnw("Payment callback rejected", "txnid", cb.TxnID, "reason", verification.Reason)
		return nil, domain.Validation("invalid payment signature")
	}
	if verification.Bypassed {
		s.log.Warnw("Payment callback signature check skipped", "txnid", cb.TxnID)
	}

	if strings.TrimSpace(cb.TxnID) == "" {
		return nil, domain.Validation("txnid is required")
	}

	if !cb.Succeeded() {
		return s.settleFailure(ctx, routeKind, cb)
	}
	return s.settleSuccess(ctx, routeKind, cb)
}

func (s *PaymentService) settleSuccess(ctx context.Context, routeKind domain.TenantKind, cb payu.Callback) (*CallbackResult, error) {
	planID, err := uuid.Parse(cb.UDF[0])
	if err != nil {
		return nil, domain.Validation("invalid plan id in udf1")
	}
	tenantID, err := uuid.Parse(cb.UDF[1])
	if err != nil {
		return nil, domain.Validation("invalid tenant id in udf2")
	}

	plan, err := s.plans.Get(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("plan not found")
		}
		return nil, err
	}

	ref := domain.TenantRef{Kind: routeKind, ID: tenantID}
	tenant, err := s.accounts.GetTenant(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("tenant not found")
		}
		return nil, err
	}
	if plan.Kind.TenantKind() != routeKind {
		return nil, domain.Validation("plan kind does not match tenant")
	}

	amount := parseAmount(cb.Amount)
	if !amount.Equal(plan.Price) {
		s.log.Warnw("Paid amount differs from plan price",
			"txnid", cb.TxnID, "paid", amount.StringFixed(2), "price", plan.Price.StringFixed(2))
	}

	now := s.clock.now()
	settlement := domain.Settlement{
		Payment: domain.Payment{
			TxnID:       cb.TxnID,
			TenantKind:  routeKind,
			TenantID:    &tenantID,
			PlanID:      &planID,
			Amount:      amount,
			Status:      domain.PaymentSuccess,
			GatewayRef:  cb.MihPayID,
			Mode:        cb.Mode,
			ProductInfo: cb.ProductInfo,
		},
	}
	if plan.Kind.IsTopUp() {
		topUp := domain.NewTopUp(tenantID, *plan, tenant.SubscriptionExpiresAt, now)
		settlement.TopUp = &topUp
	} else {
		sub := domain.NewSubscription(ref, *plan, now)
		settlement.Subscription = &sub
	}

	result, err := s.payments.Settle(ctx, settlement, now)
	if err != nil {
		s.log.Errorw("Failed to settle payment", "txnid", cb.TxnID, "error", err)
		return nil, err
	}

	out := s.resultFor(routeKind, cb, result)
	if result.Duplicate {
		s.metrics.IncDuplicateCallback()
		s.log.Infow("Duplicate payment callback", "txnid", cb.TxnID)
		return out, nil
	}

	s.metrics.IncPaymentSettled(string(domain.PaymentSuccess))
	s.metrics.ObservePaymentAmount(amount.InexactFloat64(), string(domain.PaymentSuccess))
	s.metrics.IncSubscriptionActivated(string(plan.Kind))

	publishEvent(ctx, s.events, s.log, domain.TopicPaymentSucceeded, cb.TxnID, domain.NewPaymentEvent(result.Payment, now))
	if result.Subscription != nil {
		publishEvent(ctx, s.events, s.log, domain.TopicSubscriptionActivated, tenantID.String(), domain.NewSubscriptionEvent(*result.Subscription, now))
	}
	if result.TopUp != nil {
		publishEvent(ctx, s.events, s.log, domain.TopicTopUpActivated, tenantID.String(), result.TopUp)
	}
	s.cache.Invalidate(ctx, ref)

	s.log.Infow("Payment settled", "txnid", cb.TxnID, "tenant", ref.String(), "planID", planID, "amount", amount.StringFixed(2))
	return out, nil
}

func (s *PaymentService) settleFailure(ctx context.Context, routeKind domain.TenantKind, cb payu.Callback) (*CallbackResult, error) {
	payment := domain.Payment{
		TxnID:       cb.TxnID,
		TenantKind:  routeKind,
		Amount:      parseAmount(cb.Amount),
		Status:      domain.PaymentFailed,
		GatewayRef:  cb.MihPayID,
		Mode:        cb.Mode,
		ProductInfo: cb.ProductInfo,
	}
	if id, err := uuid.Parse(cb.UDF[0]); err == nil {
		payment.PlanID = &id
	}
	if id, err := uuid.Parse(cb.UDF[1]); err == nil {
		payment.TenantID = &id
	}

	now := s.clock.now()
	result, err := s.payments.Settle(ctx, domain.Settlement{Payment: payment}, now)
	if err != nil {
		s.log.Errorw("Failed to record failed payment", "txnid", cb.TxnID, "error", err)
		return nil, err
	}
	if result.Duplicate {
		s.metrics.IncDuplicateCallback()
		return s.resultFor(routeKind, cb, result), nil
	}

	s.metrics.IncPaymentSettled(string(domain.PaymentFailed))
	publishEvent(ctx, s.events, s.log, domain.TopicPaymentFailed, cb.TxnID, domain.NewPaymentEvent(result.Payment, now))
	s.log.Warnw("Payment failed", "txnid", cb.TxnID, "status", cb.Status, "gatewayError", cb.Error)
	return s.resultFor(routeKind, cb, result), nil
}

func (s *PaymentService) resultFor(kind domain.TenantKind, cb payu.Callback, r *domain.SettlementResult) *CallbackResult {
	mihPayID := r.Payment.GatewayRef
	if mihPayID == "" {
		mihPayID = cb.MihPayID
	}
	return &CallbackResult{
		PaymentStatus: r.Payment.Status,
		TxnID:         r.Payment.TxnID,
		MihPayID:      mihPayID,
		RedirectURL:   s.redirectURL(kind, r.Payment.Status == domain.PaymentSuccess, r.Payment.TxnID, mihPayID),
		Subscription:  r.Subscription,
		TopUp:         r.TopUp,
		Duplicate:     r.Duplicate,
	}
}

// redirectURL страница сайта, на которую возвращается браузер после оплаты
func (s *PaymentService) redirectURL(kind domain.TenantKind, success bool, txnID, mihPayID string) string {
	page := "payment-failed"
	if success {
		page = "subscription-success"
	}
	query := url.Values{}
	query.Set("txnid", txnID)
	if mihPayID != "" {
		query.Set("mihpayid", mihPayID)
	}
	return strings.TrimRight(s.urls.WebsiteBaseURL, "/") + "/" + kind.PathSegment() + "/" + page + "?" + query.Encode()
}

// List платежи для администратора
func (s *PaymentService) List(ctx context.Context, filter repository.PaymentFilter) ([]domain.Payment, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	return s.payments.List(ctx, filter)
}

// FailStale закрывает заказы, по которым так и не пришел колбэк
func (s *PaymentService) FailStale(ctx context.Context, ttl time.Duration) (int, error) {
	now := s.clock.now()
	count, err := s.payments.FailStalePending(ctx, now.Add(-ttl), now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Infow("Stale pending payments failed", "count", count)
	}
	return count, nil
}

func parseAmount(raw string) decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return amount.Round(2)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
