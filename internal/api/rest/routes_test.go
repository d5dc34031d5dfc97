package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/config"
	"github.com/okdriver/okdriver-backend/internal/api/rest/handlers"
	"github.com/okdriver/okdriver-backend/internal/auth"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/metrics"
	"github.com/okdriver/okdriver-backend/internal/payment/payu"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

const (
	testPayUKey   = "gtKFFx"
	testPayUSalt  = "eCwWELxi"
	adminEmail    = "admin@okdriver.test"
	adminPassword = "admin-secret-1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testApp struct {
	t      *testing.T
	router *gin.Engine
	store  repository.Store
	health map[string]handlers.HealthCheck
}

func newTestApp(t *testing.T, rateLimit int) *testApp {
	t.Helper()

	log := logger.NewNop()
	store := repository.NewInMemoryStore(log)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	gateway := payu.New(payu.Config{Key: testPayUKey, Salt: testPayUSalt, BaseURL: "https://test.payu.in"})
	urls := service.PaymentURLs{BackendBaseURL: "https://api.okdriver.test", WebsiteBaseURL: "https://okdriver.test"}

	subs := service.NewSubscriptionService(store.Subscriptions, store.Plans, store.Accounts, nil, nil, log, nil)
	accounts := service.NewAccountService(store.Accounts, store.Fleet, tokens, log, nil)
	batcher := service.NewLocationBatcher(store.Locations, nil, log, 50, time.Hour)

	svcs := Services{
		Accounts:      accounts,
		APIKeys:       service.NewAPIKeyService(store.APIKeys, subs, log, nil),
		Plans:         service.NewPlanService(store.Plans, log, nil),
		Subscriptions: subs,
		Payments:      service.NewPaymentService(gateway, store.Payments, store.Plans, store.Accounts, nil, nil, metrics.NopPaymentMetrics{}, urls, log, nil),
		Fleet:         service.NewFleetService(store.Fleet, store.Accounts, subs, log, nil),
		Locations:     service.NewLocationService(store.Fleet, store.Locations, batcher, nil, nil, log, nil),
		Chat:          service.NewChatService(store.Chat, store.Fleet, nil, nil, log, nil),
		Tickets:       service.NewTicketService(store.Tickets, store.Accounts, nil, log, nil),
		Assistant:     service.NewAssistantService(nil, log),
	}
	if err := accounts.EnsureAdmin(context.Background(), adminEmail, adminPassword); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	app := &testApp{t: t, store: store, health: map[string]handlers.HealthCheck{}}
	cfg := &config.Config{API: config.APIConfig{RateLimitPerMinute: rateLimit}}
	app.router = SetupRouter(log, metrics.NewRegistry(), cfg, Dependencies{
		Services:     svcs,
		JWT:          auth.NewJWTAuthenticator(tokens, store.Accounts, store.Fleet, log),
		APIKey:       auth.NewAPIKeyAuthenticator(store.APIKeys, store.Accounts, store.Subscriptions, log),
		HealthChecks: app.health,
	})
	return app
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type call struct {
	method  string
	path    string
	body    any
	token   string
	headers map[string]string
}

func (a *testApp) do(c call) *httptest.ResponseRecorder {
	a.t.Helper()

	var body *bytes.Reader
	switch b := c.body.(type) {
	case nil:
		body = bytes.NewReader(nil)
	case url.Values:
		body = bytes.NewReader([]byte(b.Encode()))
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	r := httptest.NewRequest(c.method, c.path, body)
	if _, isForm := c.body.(url.Values); isForm {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else if c.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		r.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range c.headers {
		r.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, r)
	return w
}

// expect проверяет статус и разбирает data конверта в dst
func (a *testApp) expect(w *httptest.ResponseRecorder, status int, dst any) envelope {
	a.t.Helper()
	if w.Code != status {
		a.t.Fatalf("status = %d, want %d; body: %s", w.Code, status, w.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		a.t.Fatalf("decode envelope: %v; body: %s", err, w.Body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(env.Data, dst); err != nil {
			a.t.Fatalf("decode data: %v; data: %s", err, env.Data)
		}
	}
	return env
}

func (a *testApp) adminToken() string {
	a.t.Helper()
	var out service.AuthResult
	a.expect(a.do(call{method: http.MethodPost, path: "/api/admin/auth/login",
		body: service.EmailLogin{Email: adminEmail, Password: adminPassword}}), http.StatusOK, &out)
	return out.Token
}

func (a *testApp) registerDriver(phone string) service.AuthResult {
	a.t.Helper()
	var out service.AuthResult
	a.expect(a.do(call{method: http.MethodPost, path: "/api/driver/auth/register", body: service.RegisterDriverInput{
		FirstName: "Ravi",
		Email:     "ravi" + phone + "@example.com",
		Phone:     phone,
		Password:  "driver-pass-1",
	}}), http.StatusCreated, &out)
	return out
}

func (a *testApp) registerCompany(email string) service.AuthResult {
	a.t.Helper()
	var out service.AuthResult
	a.expect(a.do(call{method: http.MethodPost, path: "/api/company/auth/register", body: service.RegisterCompanyInput{
		Name:     "Acme Logistics",
		Email:    email,
		Password: "company-pass-1",
	}}), http.StatusCreated, &out)
	return out
}

func (a *testApp) createPlan(token, kind string, body map[string]any) domain.Plan {
	a.t.Helper()
	var plan domain.Plan
	a.expect(a.do(call{method: http.MethodPost, path: "/api/admin/plans/" + kind, body: body, token: token}), http.StatusCreated, &plan)
	return plan
}

// signedCallbackForm колбэк PayU с корректной обратной подписью
func signedCallbackForm(order payu.Order, status string) url.Values {
	fields := payu.ResponseFields{
		Status:      status,
		TxnID:       order.TxnID,
		Amount:      order.Params["amount"],
		ProductInfo: order.Params["productinfo"],
		FirstName:   order.Params["firstname"],
		Email:       order.Params["email"],
	}
	form := url.Values{}
	for i := range fields.UDF {
		name := "udf" + strconv.Itoa(i+1)
		fields.UDF[i] = order.Params[name]
		form.Set(name, fields.UDF[i])
	}
	form.Set("status", status)
	form.Set("txnid", fields.TxnID)
	form.Set("amount", fields.Amount)
	form.Set("productinfo", fields.ProductInfo)
	form.Set("firstname", fields.FirstName)
	form.Set("email", fields.Email)
	form.Set("mihpayid", "403993715531234567")
	form.Set("mode", "UPI")
	form.Set("hash", payu.ResponseHash(fields, testPayUKey, testPayUSalt))
	return form
}

func TestDriverPlanCheckoutOverHTTP(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.adminToken()
	plan := app.createPlan(admin, "driver", map[string]any{
		"name":          "Driver Monthly",
		"price":         199,
		"duration_days": 30,
	})

	var public []domain.Plan
	app.expect(app.do(call{method: http.MethodGet, path: "/api/plans/driver"}), http.StatusOK, &public)
	if len(public) != 1 || public[0].ID != plan.ID {
		t.Fatalf("public plans = %+v, want the created plan", public)
	}

	driver := app.registerDriver("+919800000001")

	var order payu.Order
	app.expect(app.do(call{method: http.MethodPost, path: "/api/driver/payment/create-order", token: driver.Token,
		body: map[string]any{"plan_id": plan.ID, "amount": "1.00"}}), http.StatusCreated, &order)
	if order.Params["amount"] != "199.00" {
		t.Fatalf("order amount = %q, want plan price 199.00", order.Params["amount"])
	}
	if order.Params["surl"] != "https://api.okdriver.test/api/driver/payment/payu-return" {
		t.Fatalf("surl = %q", order.Params["surl"])
	}
	if order.Params["udf1"] != plan.ID.String() || order.Params["udf2"] != driver.Driver.ID.String() {
		t.Fatalf("udf1/udf2 = %q/%q", order.Params["udf1"], order.Params["udf2"])
	}

	w := app.do(call{method: http.MethodPost, path: "/api/driver/payment/payu-return",
		body: signedCallbackForm(order, "success"), headers: map[string]string{"Accept": "text/html"}})
	if w.Code != http.StatusFound {
		t.Fatalf("callback status = %d, want 302; body: %s", w.Code, w.Body.String())
	}
	location := w.Header().Get("Location")
	if !strings.HasPrefix(location, "https://okdriver.test/driver/subscription-success?") || !strings.Contains(location, "txnid="+order.TxnID) {
		t.Fatalf("redirect = %q", location)
	}

	var state domain.SubscriptionState
	app.expect(app.do(call{method: http.MethodGet, path: "/api/driver/subscription", token: driver.Token}), http.StatusOK, &state)
	if !state.Active || state.Subscription == nil || state.Subscription.PlanID != plan.ID {
		t.Fatalf("subscription state = %+v, want active on the plan", state)
	}
	if got := state.Subscription.EndAt.Sub(state.Subscription.StartAt); got != 30*24*time.Hour {
		t.Fatalf("subscription length = %v, want 30 days", got)
	}

	var payments []domain.Payment
	app.expect(app.do(call{method: http.MethodGet, path: "/api/admin/payments?tenant_kind=driver", token: admin}), http.StatusOK, &payments)
	if len(payments) != 1 || payments[0].Status != domain.PaymentSuccess || payments[0].TxnID != order.TxnID {
		t.Fatalf("payments = %+v, want one SUCCESS", payments)
	}

	// Повторный колбэк возвращает исходный результат без новых строк
	var dup service.CallbackResult
	app.expect(app.do(call{method: http.MethodPost, path: "/api/driver/payment/payu-return",
		body: signedCallbackForm(order, "success")}), http.StatusOK, &dup)
	if !dup.Duplicate || dup.PaymentStatus != domain.PaymentSuccess {
		t.Fatalf("duplicate callback = %+v", dup)
	}

	var history []domain.Subscription
	app.expect(app.do(call{method: http.MethodGet, path: "/api/driver/subscription/history", token: driver.Token}), http.StatusOK, &history)
	if len(history) != 1 {
		t.Fatalf("history = %d subscriptions, want 1", len(history))
	}
}

func TestCallbackWithBadHashWritesNothing(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.adminToken()
	plan := app.createPlan(admin, "driver", map[string]any{"name": "Driver Monthly", "price": 199, "duration_days": 30})
	driver := app.registerDriver("+919800000002")

	var order payu.Order
	app.expect(app.do(call{method: http.MethodPost, path: "/api/driver/payment/create-order", token: driver.Token,
		body: map[string]any{"plan_id": plan.ID}}), http.StatusCreated, &order)

	form := signedCallbackForm(order, "success")
	form.Set("hash", strings.Repeat("0", 128))
	env := app.expect(app.do(call{method: http.MethodPost, path: "/api/driver/payment/payu-return", body: form}), http.StatusBadRequest, nil)
	if env.Success || env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("envelope = %+v, want VALIDATION_ERROR", env)
	}

	var state domain.SubscriptionState
	app.expect(app.do(call{method: http.MethodGet, path: "/api/driver/subscription", token: driver.Token}), http.StatusOK, &state)
	if state.Active {
		t.Fatal("rejected callback must not activate a subscription")
	}
	payment, err := app.store.Payments.GetByTxnID(context.Background(), order.TxnID)
	if err != nil {
		t.Fatalf("GetByTxnID: %v", err)
	}
	if payment.Status != domain.PaymentPending {
		t.Fatalf("payment status = %s, want PENDING", payment.Status)
	}
}

func TestCallbackAcceptsJSON(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.adminToken()
	plan := app.createPlan(admin, "driver", map[string]any{"name": "Driver Monthly", "price": 199, "duration_days": 30})
	driver := app.registerDriver("+919800000003")

	var order payu.Order
	app.expect(app.do(call{method: http.MethodPost, path: "/api/driver/payment/create-order", token: driver.Token,
		body: map[string]any{"plan_id": plan.ID}}), http.StatusCreated, &order)

	form := signedCallbackForm(order, "failure")
	flat := make(map[string]string, len(form))
	for k := range form {
		flat[k] = form.Get(k)
	}

	var result service.CallbackResult
	app.expect(app.do(call{method: http.MethodPost, path: "/api/driver/payment/payu-return", body: flat}), http.StatusOK, &result)
	if result.PaymentStatus != domain.PaymentFailed {
		t.Fatalf("payment status = %s, want FAILED", result.PaymentStatus)
	}
	if !strings.Contains(result.RedirectURL, "/driver/payment-failed?") {
		t.Fatalf("redirect = %q, want failure page", result.RedirectURL)
	}
}

func TestRouteGuards(t *testing.T) {
	app := newTestApp(t, 0)
	company := app.registerCompany("ops@acme.test")
	driver := app.registerDriver("+919800000004")

	tests := []struct {
		name   string
		call   call
		status int
	}{
		{"no token", call{method: http.MethodGet, path: "/api/driver/subscription"}, http.StatusUnauthorized},
		{"garbage token", call{method: http.MethodGet, path: "/api/driver/subscription", token: "not-a-jwt"}, http.StatusUnauthorized},
		{"company on driver route", call{method: http.MethodGet, path: "/api/driver/subscription", token: company.Token}, http.StatusNotFound},
		{"driver on company route", call{method: http.MethodGet, path: "/api/company/vehicles", token: driver.Token}, http.StatusNotFound},
		{"driver on admin route", call{method: http.MethodGet, path: "/api/admin/companies", token: driver.Token}, http.StatusUnauthorized},
		{"unknown plan kind", call{method: http.MethodGet, path: "/api/plans/boats"}, http.StatusNotFound},
		{"bad vehicle id", call{method: http.MethodGet, path: "/api/company/vehicles/123", token: company.Token}, http.StatusBadRequest},
		{"vehicle without plan", call{method: http.MethodPost, path: "/api/company/vehicles", token: company.Token,
			body: service.VehicleInput{VehicleNumber: "MH12AB1234"}}, http.StatusPaymentRequired},
		{"unknown plan on select", call{method: http.MethodPost, path: "/api/company/subscription/select", token: company.Token,
			body: map[string]any{"plan_id": uuid.New()}}, http.StatusNotFound},
		{"driver without vehicle location", call{method: http.MethodPost, path: "/api/driver/location", token: driver.Token,
			body: service.LocationInput{Latitude: 19.07, Longitude: 72.87}}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(tt.call)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d; body: %s", w.Code, tt.status, w.Body.String())
			}
		})
	}
}

func TestCompanyFleetAndChatOverHTTP(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.adminToken()
	company := app.registerCompany("fleet@acme.test")

	free := app.createPlan(admin, "company", map[string]any{
		"name": "Starter", "price": 0, "duration_days": 30, "vehicle_limit": 1, "client_limit": 1,
	})
	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/subscription/select", token: company.Token,
		body: map[string]any{"plan_id": free.ID}}), http.StatusCreated, nil)
	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/subscription/select", token: company.Token,
		body: map[string]any{"plan_id": free.ID}}), http.StatusConflict, nil)

	var limits domain.Limits
	app.expect(app.do(call{method: http.MethodGet, path: "/api/company/limits", token: company.Token}), http.StatusOK, &limits)
	if limits.Vehicles != 1 || limits.Clients != 1 {
		t.Fatalf("limits = %+v, want 1/1", limits)
	}

	var vehicle domain.Vehicle
	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/vehicles", token: company.Token,
		body: service.VehicleInput{VehicleNumber: "MH12AB1234"}}), http.StatusCreated, &vehicle)
	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/vehicles", token: company.Token,
		body: service.VehicleInput{VehicleNumber: "MH12AB9999"}}), http.StatusConflict, nil)

	messages := "/api/company/chat/vehicles/" + vehicle.ID.String() + "/messages"
	var sent domain.ChatMessage
	app.expect(app.do(call{method: http.MethodPost, path: messages, token: company.Token,
		body: service.SendMessageInput{Message: "Report your position"}}), http.StatusCreated, &sent)

	var page domain.ChatPage
	app.expect(app.do(call{method: http.MethodGet, path: messages + "?page=1&limit=10", token: company.Token}), http.StatusOK, &page)
	if page.Total != 1 || len(page.Messages) != 1 || page.Messages[0].ID != sent.ID {
		t.Fatalf("history = %+v, want the sent message", page)
	}

	// Компания не может отметить прочитанным свое же сообщение
	var marked struct {
		Updated int `json:"updated"`
	}
	app.expect(app.do(call{method: http.MethodPatch, path: messages + "/read", token: company.Token,
		body: service.MarkReadInput{MessageIDs: []uuid.UUID{sent.ID}}}), http.StatusOK, &marked)
	if marked.Updated != 0 {
		t.Fatalf("updated = %d, want 0", marked.Updated)
	}

	other := app.registerCompany("other@acme.test")
	app.expect(app.do(call{method: http.MethodGet, path: messages, token: other.Token}), http.StatusNotFound, nil)
	app.expect(app.do(call{method: http.MethodGet, path: "/api/company/vehicles/" + vehicle.ID.String(), token: other.Token}), http.StatusNotFound, nil)

	var ticket domain.HelpTicket
	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/tickets", token: company.Token,
		body: service.CreateTicketInput{Subject: "GPS", Description: "Tracker offline"}}), http.StatusCreated, &ticket)
	app.expect(app.do(call{method: http.MethodGet, path: "/api/company/tickets/" + ticket.ID.String(), token: other.Token}), http.StatusNotFound, nil)
	app.expect(app.do(call{method: http.MethodPatch, path: "/api/admin/tickets/" + ticket.ID.String(), token: app.adminToken(),
		body: map[string]any{"status": "RESOLVED", "admin_response": "Fixed"}}), http.StatusOK, &ticket)
	if ticket.Status != domain.TicketResolved {
		t.Fatalf("ticket status = %s, want RESOLVED", ticket.Status)
	}
}

func TestPlanSoftDeleteOverHTTP(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.adminToken()
	company := app.registerCompany("plans@acme.test")
	plan := app.createPlan(admin, "company", map[string]any{
		"name": "Starter", "price": 0, "duration_days": 30, "vehicle_limit": 5, "client_limit": 5,
	})
	path := "/api/admin/plans/company/" + plan.ID.String()

	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/subscription/select", token: company.Token,
		body: map[string]any{"plan_id": plan.ID}}), http.StatusCreated, nil)
	env := app.expect(app.do(call{method: http.MethodDelete, path: path, token: admin}), http.StatusBadRequest, nil)
	if env.Error == nil || env.Error.Message != "plan is in use" {
		t.Fatalf("error = %+v, want plan is in use", env.Error)
	}

	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/subscription/cancel", token: company.Token}), http.StatusOK, nil)
	app.expect(app.do(call{method: http.MethodDelete, path: path, token: admin}), http.StatusOK, nil)

	var public []domain.Plan
	app.expect(app.do(call{method: http.MethodGet, path: "/api/plans/company"}), http.StatusOK, &public)
	if len(public) != 0 {
		t.Fatalf("public plans = %d, want 0 after delete", len(public))
	}
	var stored domain.Plan
	app.expect(app.do(call{method: http.MethodGet, path: path, token: admin}), http.StatusOK, &stored)
	if stored.IsActive {
		t.Fatal("deleted plan must stay as inactive row")
	}
	app.expect(app.do(call{method: http.MethodGet, path: "/api/admin/plans/driver/" + plan.ID.String(), token: admin}), http.StatusNotFound, nil)
}

func TestAPIKeyAccess(t *testing.T) {
	app := newTestApp(t, 2)
	admin := app.adminToken()

	var user service.AuthResult
	app.expect(app.do(call{method: http.MethodPost, path: "/api/user/auth/register", body: service.RegisterUserInput{
		Name: "Dev", Email: "dev@example.com", Password: "user-pass-1",
	}}), http.StatusCreated, &user)

	var key service.CreatedAPIKey
	app.expect(app.do(call{method: http.MethodPost, path: "/api/user/api-keys", token: user.Token,
		body: service.CreateAPIKeyInput{Name: "ci"}}), http.StatusCreated, &key)
	if !strings.HasPrefix(key.Key, auth.APIKeyPrefix) {
		t.Fatalf("raw key = %q", key.Key)
	}
	withKey := map[string]string{"x-api-key": key.Key}

	app.expect(app.do(call{method: http.MethodGet, path: "/api/v1/me", headers: withKey}), http.StatusPaymentRequired, nil)
	app.expect(app.do(call{method: http.MethodGet, path: "/api/v1/me", headers: map[string]string{"x-api-key": "okd_unknown"}}), http.StatusUnauthorized, nil)
	app.expect(app.do(call{method: http.MethodGet, path: "/api/v1/me"}), http.StatusUnauthorized, nil)

	var anonymous map[string]any
	app.expect(app.do(call{method: http.MethodGet, path: "/api/v1/plans"}), http.StatusOK, &anonymous)
	if _, has := anonymous["current_plan_id"]; has {
		t.Fatal("anonymous caller must not see current_plan_id")
	}

	plan := app.createPlan(admin, "api", map[string]any{"name": "API Basic", "price": 499, "duration_days": 30, "requests_per_day": 1000})
	app.expect(app.do(call{method: http.MethodPost, path: "/api/admin/subscriptions/assign", token: admin,
		body: map[string]any{"tenant_kind": "USER", "tenant_id": user.User.ID, "plan_id": plan.ID}}), http.StatusCreated, nil)

	var me service.MeResponse
	app.expect(app.do(call{method: http.MethodGet, path: "/api/v1/me", headers: withKey}), http.StatusOK, &me)
	if me.Key.ID != key.ID || !me.Subscription.Active {
		t.Fatalf("me = %+v", me)
	}

	// Лимит 2 запроса в минуту на ключ: второй проходит, третий нет
	var plans struct {
		Plans         []domain.Plan `json:"plans"`
		CurrentPlanID *uuid.UUID    `json:"current_plan_id"`
	}
	app.expect(app.do(call{method: http.MethodGet, path: "/api/v1/plans", headers: withKey}), http.StatusOK, &plans)
	if plans.CurrentPlanID == nil || *plans.CurrentPlanID != plan.ID {
		t.Fatalf("current_plan_id = %v, want %s", plans.CurrentPlanID, plan.ID)
	}
	env := app.expect(app.do(call{method: http.MethodGet, path: "/api/v1/me", headers: withKey}), http.StatusTooManyRequests, nil)
	if env.Error == nil || env.Error.Code != "RATE_LIMITED" {
		t.Fatalf("error = %+v, want RATE_LIMITED", env.Error)
	}

	app.expect(app.do(call{method: http.MethodDelete, path: "/api/user/api-keys/" + key.ID.String(), token: user.Token}), http.StatusOK, nil)
	var keys []domain.APIKey
	app.expect(app.do(call{method: http.MethodGet, path: "/api/user/api-keys", token: user.Token}), http.StatusOK, &keys)
	if len(keys) != 1 || !keys[0].Revoked {
		t.Fatalf("keys = %+v, want one revoked", keys)
	}
}

func TestHealthReportsComponents(t *testing.T) {
	app := newTestApp(t, 0)
	app.health["database"] = func(context.Context) error { return nil }

	app.expect(app.do(call{method: http.MethodGet, path: "/health"}), http.StatusOK, nil)

	app.health["redis"] = func(context.Context) error { return errors.New("connection refused") }
	w := app.do(call{method: http.MethodGet, path: "/health"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	var body struct {
		Components map[string]string `json:"components"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Components["redis"] != "down" || body.Components["database"] != "up" {
		t.Fatalf("components = %v", body.Components)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t, 0)
	app.do(call{method: http.MethodGet, path: "/api/plans/driver"})

	w := app.do(call{method: http.MethodGet, path: "/metrics"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `route="/api/plans/:kind"`) {
		t.Fatal("http metrics must be labelled by route template")
	}
}

func TestCallbackJSONWithNumericAmount(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.adminToken()
	plan := app.createPlan(admin, "driver", map[string]any{"name": "Driver Monthly", "price": 199, "duration_days": 30})
	driver := app.registerDriver("+919800000005")

	var order payu.Order
	app.expect(app.do(call{method: http.MethodPost, path: "/api/driver/payment/create-order", token: driver.Token,
		body: map[string]any{"plan_id": plan.ID}}), http.StatusCreated, &order)

	form := signedCallbackForm(order, "success")
	body := make(map[string]any, len(form))
	for k := range form {
		body[k] = form.Get(k)
	}
	body["amount"] = json.Number(form.Get("amount"))

	var result service.CallbackResult
	app.expect(app.do(call{method: http.MethodPost, path: "/api/driver/payment/payu-return", body: body}), http.StatusOK, &result)
	if result.PaymentStatus != domain.PaymentSuccess {
		t.Fatalf("payment status = %s, want SUCCESS", result.PaymentStatus)
	}
}

func TestVehicleReassignmentOverHTTP(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.adminToken()
	company := app.registerCompany("reassign@acme.test")
	driver := app.registerDriver("+919800000006")

	plan := app.createPlan(admin, "company", map[string]any{
		"name": "Starter", "price": 0, "duration_days": 30, "vehicle_limit": 2, "client_limit": 2,
	})
	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/subscription/select", token: company.Token,
		body: map[string]any{"plan_id": plan.ID}}), http.StatusCreated, nil)

	var client domain.Client
	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/clients", token: company.Token,
		body: service.ClientInput{Name: "Client", Email: "client@reassign.test", Password: "client-pass-1"}}), http.StatusCreated, &client)

	var vehicle domain.Vehicle
	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/vehicles", token: company.Token,
		body: service.VehicleInput{VehicleNumber: "KA05MN0001"}}), http.StatusCreated, &vehicle)

	var login service.AuthResult
	app.expect(app.do(call{method: http.MethodPost, path: "/api/client/auth/login",
		body: service.EmailLogin{Email: "client@reassign.test", Password: "client-pass-1"}}), http.StatusOK, &login)

	var assigned []domain.Vehicle
	app.expect(app.do(call{method: http.MethodGet, path: "/api/client/vehicles", token: login.Token}), http.StatusOK, &assigned)
	if len(assigned) != 0 {
		t.Fatalf("assigned before update = %+v", assigned)
	}

	path := "/api/company/vehicles/" + vehicle.ID.String()
	var updated domain.Vehicle
	app.expect(app.do(call{method: http.MethodPut, path: path, token: company.Token,
		body: map[string]any{"driver_id": driver.Driver.ID, "client_id": client.ID}}), http.StatusOK, &updated)
	if updated.DriverID == nil || *updated.DriverID != driver.Driver.ID || updated.ClientID == nil || *updated.ClientID != client.ID {
		t.Fatalf("updated = %+v", updated)
	}

	app.expect(app.do(call{method: http.MethodGet, path: "/api/client/vehicles", token: login.Token}), http.StatusOK, &assigned)
	if len(assigned) != 1 || assigned[0].ID != vehicle.ID {
		t.Fatalf("assigned = %+v, want the updated vehicle", assigned)
	}

	other := app.registerCompany("other-reassign@acme.test")
	app.expect(app.do(call{method: http.MethodPut, path: path, token: other.Token,
		body: map[string]any{"model": "Tata Ace"}}), http.StatusNotFound, nil)
	app.expect(app.do(call{method: http.MethodPut, path: path, token: company.Token,
		body: map[string]any{"driver_id": uuid.New()}}), http.StatusNotFound, nil)
	app.expect(app.do(call{method: http.MethodPut, path: "/api/company/vehicles/" + uuid.NewString(), token: company.Token,
		body: map[string]any{"model": "Tata Ace"}}), http.StatusNotFound, nil)
	app.expect(app.do(call{method: http.MethodGet, path: "/api/client/vehicles", token: company.Token}), http.StatusNotFound, nil)
}

func TestDetailEndpoints(t *testing.T) {
	app := newTestApp(t, 0)
	admin := app.adminToken()
	company := app.registerCompany("details@acme.test")
	driver := app.registerDriver("+919800000007")

	var details service.CompanyDetails
	app.expect(app.do(call{method: http.MethodGet, path: "/api/admin/companies/" + company.Company.ID.String(), token: admin}), http.StatusOK, &details)
	if details.Company.ID != company.Company.ID || details.ClientsCount != 0 || len(details.Vehicles) != 0 {
		t.Fatalf("company details = %+v", details)
	}

	var profile service.DriverProfile
	app.expect(app.do(call{method: http.MethodGet, path: "/api/admin/drivers/" + driver.Driver.ID.String(), token: admin}), http.StatusOK, &profile)
	if profile.Driver.ID != driver.Driver.ID || profile.Vehicle != nil {
		t.Fatalf("driver details = %+v", profile)
	}

	var me service.DriverProfile
	app.expect(app.do(call{method: http.MethodGet, path: "/api/driver/me", token: driver.Token}), http.StatusOK, &me)
	if me.Driver.ID != driver.Driver.ID || me.Driver.Phone != "+919800000007" {
		t.Fatalf("me = %+v", me)
	}

	var ticket domain.HelpTicket
	app.expect(app.do(call{method: http.MethodPost, path: "/api/company/tickets", token: company.Token,
		body: service.CreateTicketInput{Subject: "Billing", Description: "Invoice missing"}}), http.StatusCreated, &ticket)
	var fetched domain.HelpTicket
	app.expect(app.do(call{method: http.MethodGet, path: "/api/admin/tickets/" + ticket.ID.String(), token: admin}), http.StatusOK, &fetched)
	if fetched.ID != ticket.ID || fetched.Subject != "Billing" {
		t.Fatalf("ticket = %+v", fetched)
	}

	unknown := uuid.NewString()
	for _, path := range []string{
		"/api/admin/companies/" + unknown,
		"/api/admin/drivers/" + unknown,
		"/api/admin/tickets/" + unknown,
	} {
		app.expect(app.do(call{method: http.MethodGet, path: path, token: admin}), http.StatusNotFound, nil)
	}
	app.expect(app.do(call{method: http.MethodGet, path: "/api/admin/companies/not-a-uuid", token: admin}), http.StatusBadRequest, nil)
	app.expect(app.do(call{method: http.MethodGet, path: "/api/admin/tickets/" + ticket.ID.String(), token: company.Token}), http.StatusUnauthorized, nil)
}
