package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

const testSecret = "test-secret"

func newTestStore(t *testing.T) repository.Store {
	t.Helper()
	return repository.NewInMemoryStore(logger.NewNop())
}

func TestTokenRoundTripAndExpiry(t *testing.T) {
	m := NewTokenManager(testSecret, time.Hour)
	token, err := m.Issue(AdminClaims(uuid.New()))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := m.Validate(token); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := m.Validate(token); err == nil {
		t.Fatal("expired token must be rejected")
	}

	other := NewTokenManager("other-secret", time.Hour)
	if _, err := other.Validate(token); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestJWTAuthenticatorResolvesPrincipals(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tokens := NewTokenManager(testSecret, time.Hour)
	authn := NewJWTAuthenticator(tokens, store.Accounts, store.Fleet, logger.NewNop())

	company := domain.Company{Name: "Acme", Email: "ops@acme.test"}
	if err := store.Accounts.CreateCompany(ctx, &company); err != nil {
		t.Fatalf("CreateCompany: %v", err)
	}
	client := domain.Client{CompanyID: company.ID, Name: "Client", Email: "c@acme.test"}
	if err := store.Fleet.CreateClient(ctx, &client); err != nil {
		t.Fatalf("CreateClient: %v", err)
	}
	driver := domain.Driver{FirstName: "Ravi", Phone: "+919800000001"}
	if err := store.Accounts.CreateDriver(ctx, &driver); err != nil {
		t.Fatalf("CreateDriver: %v", err)
	}
	vehicle := domain.Vehicle{CompanyID: company.ID, VehicleNumber: "KA01AB1234", DriverID: &driver.ID}
	if err := store.Fleet.CreateVehicle(ctx, &vehicle); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	tests := []struct {
		name   string
		claims Claims
		role   domain.Role
		check  func(t *testing.T, p *domain.Principal)
	}{
		{
			name:   "company",
			claims: CompanyClaims(company.ID),
			role:   domain.RoleCompany,
		},
		{
			name:   "client carries company",
			claims: ClientClaims(client.ID, company.ID),
			role:   domain.RoleClient,
			check: func(t *testing.T, p *domain.Principal) {
				if p.CompanyID == nil || *p.CompanyID != company.ID {
					t.Fatalf("client principal company = %v", p.CompanyID)
				}
			},
		},
		{
			name:   "driver with vehicle",
			claims: DriverClaims(driver.ID),
			role:   domain.RoleDriver,
			check: func(t *testing.T, p *domain.Principal) {
				if p.VehicleID == nil || *p.VehicleID != vehicle.ID {
					t.Fatalf("driver vehicle = %v", p.VehicleID)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := tokens.Issue(tt.claims)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			p, err := authn.Authenticate(ctx, req)
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if p.Role != tt.role {
				t.Fatalf("role = %s, want %s", p.Role, tt.role)
			}
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}

	t.Run("token query parameter", func(t *testing.T) {
		token, _ := tokens.Issue(CompanyClaims(company.ID))
		req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		if _, err := authn.Authenticate(ctx, req); err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
	})

	t.Run("unknown subject", func(t *testing.T) {
		token, _ := tokens.Issue(UserClaims(company.ID))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		_, err := authn.Authenticate(ctx, req)
		if domain.KindOf(err) != domain.KindUnauthorized {
			t.Fatalf("kind = %s, want unauthorized", domain.KindOf(err))
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		_, err := authn.Authenticate(ctx, httptest.NewRequest(http.MethodGet, "/", nil))
		if !errors.Is(err, domain.ErrNoCredentials) {
			t.Fatalf("err = %v, want ErrNoCredentials", err)
		}
	})
}

type apiKeyFixture struct {
	store repository.Store
	authn *APIKeyAuthenticator
	user  domain.User
	raw   string
}

func newAPIKeyFixture(t *testing.T) apiKeyFixture {
	t.Helper()
	ctx := context.Background()
	store := newTestStore(t)

	user := domain.User{Name: "Dev", Email: "dev@example.com"}
	if err := store.Accounts.CreateUser(ctx, &user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	raw, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	key := domain.APIKey{UserID: user.ID, Name: "ci", Prefix: DisplayPrefix(raw), KeyHash: HashAPIKey(raw), IsActive: true, CreatedAt: time.Now()}
	if err := store.APIKeys.Create(ctx, &key); err != nil {
		t.Fatalf("Create key: %v", err)
	}

	return apiKeyFixture{
		store: store,
		authn: NewAPIKeyAuthenticator(store.APIKeys, store.Accounts, store.Subscriptions, logger.NewNop()),
		user:  user,
		raw:   raw,
	}
}

func (f apiKeyFixture) subscribe(t *testing.T) {
	t.Helper()
	plan := domain.Plan{Kind: domain.PlanAPI, Name: "API Basic", Price: decimal.NewFromInt(499), DurationDays: 30, IsActive: true}
	if err := f.store.Plans.Create(context.Background(), &plan); err != nil {
		t.Fatalf("Create plan: %v", err)
	}
	now := time.Now()
	ref := domain.TenantRef{Kind: domain.TenantUser, ID: f.user.ID}
	if _, err := f.store.Subscriptions.Activate(context.Background(), domain.NewSubscription(ref, plan, now), false, now); err != nil {
		t.Fatalf("Activate: %v", err)
	}
}

func TestAPIKeyAuthenticator(t *testing.T) {
	ctx := context.Background()

	t.Run("no subscription is payment required", func(t *testing.T) {
		f := newAPIKeyFixture(t)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("x-api-key", f.raw)

		_, err := f.authn.Authenticate(ctx, req)
		if domain.KindOf(err) != domain.KindPaymentRequired {
			t.Fatalf("kind = %s, want payment required", domain.KindOf(err))
		}
	})

	t.Run("subscribed bearer key", func(t *testing.T) {
		f := newAPIKeyFixture(t)
		f.subscribe(t)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("Authorization", "Bearer "+f.raw)

		p, err := f.authn.Authenticate(ctx, req)
		if err != nil {
			t.Fatalf("Authenticate: %v", err)
		}
		if p.APIKey == nil || p.UserID == nil || *p.UserID != f.user.ID {
			t.Fatalf("principal = %+v", p)
		}

		stored, _ := f.store.APIKeys.GetByHash(ctx, HashAPIKey(f.raw))
		if stored.LastUsedAt == nil {
			t.Fatal("last used time must be recorded")
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		f := newAPIKeyFixture(t)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("x-api-key", "okd_unknown")

		_, err := f.authn.Authenticate(ctx, req)
		if domain.KindOf(err) != domain.KindUnauthorized {
			t.Fatalf("kind = %s, want unauthorized", domain.KindOf(err))
		}
	})

	t.Run("revoked key", func(t *testing.T) {
		f := newAPIKeyFixture(t)
		f.subscribe(t)
		keys, _ := f.store.APIKeys.ListByUser(ctx, f.user.ID)
		if err := f.store.APIKeys.Revoke(ctx, f.user.ID, keys[0].ID); err != nil {
			t.Fatalf("Revoke: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
		req.Header.Set("x-api-key", f.raw)

		_, err := f.authn.Authenticate(ctx, req)
		if domain.KindOf(err) != domain.KindUnauthorized {
			t.Fatalf("kind = %s, want unauthorized", domain.KindOf(err))
		}
	})
}

func TestOptionalAndChain(t *testing.T) {
	ctx := context.Background()
	f := newAPIKeyFixture(t)
	tokens := NewTokenManager(testSecret, time.Hour)
	jwtAuthn := NewJWTAuthenticator(tokens, f.store.Accounts, f.store.Fleet, logger.NewNop())
	authn := Optional(Chain(f.authn, jwtAuthn))

	p, err := authn.Authenticate(ctx, httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))
	if err != nil || !p.IsAnonymous() {
		t.Fatalf("anonymous request: principal=%+v err=%v", p, err)
	}

	bad := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	bad.Header.Set("x-api-key", "okd_bogus")
	if _, err := authn.Authenticate(ctx, bad); domain.KindOf(err) != domain.KindUnauthorized {
		t.Fatalf("presented invalid key must be rejected, got %v", err)
	}

	token, _ := tokens.Issue(UserClaims(f.user.ID))
	withJWT := httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil)
	withJWT.Header.Set("Authorization", "Bearer "+token)
	p, err = authn.Authenticate(ctx, withJWT)
	if err != nil || p.Role != domain.RoleUser {
		t.Fatalf("chain must fall through to JWT: principal=%+v err=%v", p, err)
	}
}

func TestPasswordAndKeyHelpers(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if ok, _ := CheckPassword(hash, "s3cret-pass"); !ok {
		t.Fatal("correct password rejected")
	}
	if ok, _ := CheckPassword(hash, "wrong"); ok {
		t.Fatal("wrong password accepted")
	}

	raw, _ := GenerateAPIKey()
	if len(raw) != len(APIKeyPrefix)+48 || !LooksLikeAPIKey(raw) {
		t.Fatalf("key format = %s", raw)
	}
	if DisplayPrefix(raw) != raw[:8] {
		t.Fatalf("prefix = %s", DisplayPrefix(raw))
	}
}
