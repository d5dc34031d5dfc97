package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/metrics"
	"github.com/okdriver/okdriver-backend/internal/payment/payu"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	testPayUKey  = "gtKFFx"
	testPayUSalt = "eCwWELxi"
)

type publishedEvent struct {
	Topic   string
	Key     string
	Payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, 0, len(p.events))
	for _, e := range p.events {
		topics = append(topics, e.Topic)
	}
	return topics
}

type broadcastCall struct {
	Event   string
	Payload any
	Rooms   []string
}

type recordingBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, event string, payload any, rooms ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, broadcastCall{Event: event, Payload: payload, Rooms: rooms})
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	jobs []domain.NotificationJob
}

func (n *recordingNotifier) Notify(ctx context.Context, job domain.NotificationJob) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.jobs = append(n.jobs, job)
	return nil
}

type recordingInvalidator struct {
	tenants []domain.TenantRef
}

func (i *recordingInvalidator) Invalidate(ctx context.Context, tenant domain.TenantRef) {
	i.tenants = append(i.tenants, tenant)
}

// fixture сервисы поверх хранилища в памяти с управляемыми часами
type fixture struct {
	t   *testing.T
	ctx context.Context
	now time.Time

	store       repository.Store
	events      *recordingPublisher
	realtime    *recordingBroadcaster
	notifier    *recordingNotifier
	invalidator *recordingInvalidator

	plans    *PlanService
	subs     *SubscriptionService
	payments *PaymentService
	fleet    *FleetService
	chat     *ChatService
	tickets  *TicketService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logger.NewNop()
	f := &fixture{
		t:           t,
		ctx:         context.Background(),
		now:         time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		store:       repository.NewInMemoryStore(log),
		events:      &recordingPublisher{},
		realtime:    &recordingBroadcaster{},
		notifier:    &recordingNotifier{},
		invalidator: &recordingInvalidator{},
	}
	clock := Clock(func() time.Time { return f.now })

	gateway := payu.New(payu.Config{Key: testPayUKey, Salt: testPayUSalt, BaseURL: "https://test.payu.in"})
	urls := PaymentURLs{BackendBaseURL: "https://api.okdriver.test/", WebsiteBaseURL: "https://okdriver.test"}

	f.plans = NewPlanService(f.store.Plans, log, clock)
	f.subs = NewSubscriptionService(f.store.Subscriptions, f.store.Plans, f.store.Accounts, f.events, metrics.NopPaymentMetrics{}, log, clock)
	f.payments = NewPaymentService(gateway, f.store.Payments, f.store.Plans, f.store.Accounts, f.invalidator, f.events, metrics.NopPaymentMetrics{}, urls, log, clock)
	f.fleet = NewFleetService(f.store.Fleet, f.store.Accounts, f.subs, log, clock)
	f.chat = NewChatService(f.store.Chat, f.store.Fleet, f.realtime, f.events, log, clock)
	f.tickets = NewTicketService(f.store.Tickets, f.store.Accounts, f.notifier, log, clock)
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fixture) plan(kind domain.PlanKind, price int64, days int) domain.Plan {
	f.t.Helper()
	plan, err := f.plans.Create(f.ctx, kind, PlanInput{
		Name:         string(kind) + " plan",
		Price:        decimal.NewFromInt(price),
		DurationDays: days,
		VehicleLimit: intPtr(2),
		ClientLimit:  intPtr(1),
	})
	if err != nil {
		f.t.Fatalf("create %s plan: %v", kind, err)
	}
	return *plan
}

func (f *fixture) topUpPlan(kind domain.PlanKind, price int64, increment int) domain.Plan {
	f.t.Helper()
	in := PlanInput{Name: "Top-up", Price: decimal.NewFromInt(price)}
	if kind == domain.PlanVehicleLimit {
		in.VehicleLimit = intPtr(increment)
	} else {
		in.ClientLimit = intPtr(increment)
	}
	plan, err := f.plans.Create(f.ctx, kind, in)
	if err != nil {
		f.t.Fatalf("create top-up plan: %v", err)
	}
	return *plan
}

func (f *fixture) driver() domain.TenantRef {
	f.t.Helper()
	driver := domain.Driver{ID: uuid.New(), FirstName: "Ravi", Email: "ravi@example.com", Phone: "+91" + uuid.NewString()[:10], CreatedAt: f.now}
	if err := f.store.Accounts.CreateDriver(f.ctx, &driver); err != nil {
		f.t.Fatalf("CreateDriver: %v", err)
	}
	return domain.TenantRef{Kind: domain.TenantDriver, ID: driver.ID}
}

func (f *fixture) company() domain.TenantRef {
	f.t.Helper()
	company := domain.Company{ID: uuid.New(), Name: "Acme Logistics", Email: uuid.NewString() + "@acme.test", CreatedAt: f.now}
	if err := f.store.Accounts.CreateCompany(f.ctx, &company); err != nil {
		f.t.Fatalf("CreateCompany: %v", err)
	}
	return domain.TenantRef{Kind: domain.TenantCompany, ID: company.ID}
}

// signedCallback колбэк PayU с корректной обратной подписью для заказа
func signedCallback(order *payu.Order, status string) payu.Callback {
	cb := payu.Callback{
		Status:      status,
		TxnID:       order.TxnID,
		Amount:      order.Params["amount"],
		ProductInfo: order.Params["productinfo"],
		FirstName:   order.Params["firstname"],
		Email:       order.Params["email"],
		MihPayID:    "403993715531234567",
		Mode:        "UPI",
	}
	for i := range cb.UDF {
		cb.UDF[i] = order.Params[udfKey(i)]
	}
	cb.Hash = payu.ResponseHash(payu.ResponseFields{
		Status:      cb.Status,
		TxnID:       cb.TxnID,
		Amount:      cb.Amount,
		ProductInfo: cb.ProductInfo,
		FirstName:   cb.FirstName,
		Email:       cb.Email,
		UDF:         cb.UDF,
	}, testPayUKey, testPayUSalt)
	return cb
}

func udfKey(i int) string {
	return "udf" + strconv.Itoa(i+1)
}

func intPtr(v int) *int { return &v }
