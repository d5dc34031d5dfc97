package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okdriver/okdriver-backend/config"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: "0", ReadTimeout: 5, WriteTimeout: 5, ShutdownTimeout: 5},
		GRPC:     config.GRPCConfig{Host: "127.0.0.1", Port: "0"},
		Database: config.DatabaseConfig{URL: "memory"},
		Auth: config.AuthConfig{
			JWTSecret:     "test-secret",
			TokenTTLHours: 1,
			AdminEmail:    "admin@okdriver.test",
			AdminPassword: "admin-secret-1",
		},
		PayU:      config.PayUConfig{Key: "gtKFFx", Salt: "eCwWELxi", BaseURL: "https://test.payu.in"},
		URLs:      config.URLConfig{Backend: "http://localhost:8080", Website: "http://localhost:3000"},
		API:       config.APIConfig{RateLimitPerMinute: 60},
		Scheduler: config.SchedulerConfig{ExpirySchedule: "@every 1h", PendingSchedule: "@every 30m", PendingTTLHours: 24},
	}
}

func TestNewWithMemoryStore(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})

	if _, err := a.Store.Accounts.GetAdminByEmail(ctx, "admin@okdriver.test"); err != nil {
		t.Fatalf("admin must be bootstrapped: %v", err)
	}
	if len(a.checks) != 0 {
		t.Fatalf("memory store must not register external health checks, got %v", a.checks)
	}
	if a.consumer != nil {
		t.Fatal("location consumer requires Kafka")
	}

	// маршруты собраны поверх тех же сервисов
	w := httptest.NewRecorder()
	a.http.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/plans/"+domain.TenantDriver.PathSegment(), nil))
	if w.Code != http.StatusOK {
		t.Fatalf("plans status = %d, body = %s", w.Code, w.Body.String())
	}

	a.system.Sample(ctx)
	families, err := a.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	want := map[string]bool{"okdriver_state_location_pending_points": false, "okdriver_state_realtime_rooms": false}
	for _, family := range families {
		if _, tracked := want[family.GetName()]; tracked {
			want[family.GetName()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("state metric %s is not registered", name)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), memoryConfig(), logger.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
