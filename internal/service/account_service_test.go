package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/auth"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

func (f *fixture) accounts() (*AccountService, *auth.TokenManager) {
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return NewAccountService(f.store.Accounts, f.store.Fleet, tokens, logger.NewNop(), func() time.Time { return f.now }), tokens
}

func TestCompanyRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	svc, tokens := f.accounts()

	registered, err := svc.RegisterCompany(f.ctx, RegisterCompanyInput{Name: "Acme", Email: " Ops@Acme.test ", Password: "s3cret-pass"})
	if err != nil {
		t.Fatalf("RegisterCompany: %v", err)
	}
	if registered.Company.Email != "ops@acme.test" || registered.Role != domain.RoleCompany {
		t.Fatalf("registered = %+v", registered)
	}

	claims, err := tokens.Validate(registered.Token)
	if err != nil || claims.CompanyID != registered.Company.ID.String() {
		t.Fatalf("token claims = %+v, err = %v", claims, err)
	}

	if _, err := svc.RegisterCompany(f.ctx, RegisterCompanyInput{Name: "Again", Email: "ops@acme.test", Password: "s3cret-pass"}); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("duplicate email: err = %v", err)
	}

	if _, err := svc.LoginCompany(f.ctx, EmailLogin{Email: "OPS@acme.test", Password: "s3cret-pass"}); err != nil {
		t.Fatalf("LoginCompany: %v", err)
	}
	_, wrongPassword := svc.LoginCompany(f.ctx, EmailLogin{Email: "ops@acme.test", Password: "nope"})
	_, unknown := svc.LoginCompany(f.ctx, EmailLogin{Email: "ghost@acme.test", Password: "s3cret-pass"})
	for _, err := range []error{wrongPassword, unknown} {
		if domain.KindOf(err) != domain.KindUnauthorized || domain.PublicMessage(err) != "invalid credentials" {
			t.Fatalf("bad login: err = %v", err)
		}
	}
}

func TestDriverRegisterAndPhoneLogin(t *testing.T) {
	f := newFixture(t)
	svc, tokens := f.accounts()

	registered, err := svc.RegisterDriver(f.ctx, RegisterDriverInput{FirstName: "Ravi", Phone: "+919800000001", Password: "drive-safe-1"})
	if err != nil {
		t.Fatalf("RegisterDriver: %v", err)
	}
	if _, err := svc.RegisterDriver(f.ctx, RegisterDriverInput{FirstName: "Ravi", Phone: "+919800000001", Password: "drive-safe-1"}); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("duplicate phone: err = %v", err)
	}

	login, err := svc.LoginDriver(f.ctx, PhoneLogin{Phone: " +919800000001 ", Password: "drive-safe-1"})
	if err != nil {
		t.Fatalf("LoginDriver: %v", err)
	}
	claims, err := tokens.Validate(login.Token)
	if err != nil || claims.DriverID != registered.Driver.ID.String() {
		t.Fatalf("claims = %+v, err = %v", claims, err)
	}
}

func TestClientLoginCarriesCompany(t *testing.T) {
	f := newFixture(t)
	svc, tokens := f.accounts()
	company := f.company()
	if _, err := f.subs.AdminAssign(f.ctx, company, f.plan(domain.PlanCompany, 0, 30).ID); err != nil {
		t.Fatalf("AdminAssign: %v", err)
	}

	client, err := f.fleet.CreateClient(f.ctx, company.ID, ClientInput{Name: "Client", Email: "client@example.com", Password: "client-pass"})
	if err != nil {
		t.Fatalf("CreateClient: %v", err)
	}

	login, err := svc.LoginClient(f.ctx, EmailLogin{Email: "client@example.com", Password: "client-pass"})
	if err != nil {
		t.Fatalf("LoginClient: %v", err)
	}
	claims, _ := tokens.Validate(login.Token)
	if claims.ClientID != client.ID.String() || claims.CompanyID != company.ID.String() {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	svc, _ := f.accounts()

	if err := svc.EnsureAdmin(f.ctx, "", ""); err != nil {
		t.Fatalf("EnsureAdmin without credentials: %v", err)
	}
	if err := svc.EnsureAdmin(f.ctx, "Root@OkDriver.test", "admin-pass"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	// второй запуск не меняет пароль
	if err := svc.EnsureAdmin(f.ctx, "root@okdriver.test", "other-pass"); err != nil {
		t.Fatalf("EnsureAdmin again: %v", err)
	}

	if _, err := svc.LoginAdmin(f.ctx, EmailLogin{Email: "root@okdriver.test", Password: "admin-pass"}); err != nil {
		t.Fatalf("LoginAdmin: %v", err)
	}
	if _, err := svc.LoginAdmin(f.ctx, EmailLogin{Email: "root@okdriver.test", Password: "other-pass"}); domain.KindOf(err) != domain.KindUnauthorized {
		t.Fatalf("password was overwritten: err = %v", err)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	f := newFixture(t)
	accounts, _ := f.accounts()
	keys := NewAPIKeyService(f.store.APIKeys, f.subs, logger.NewNop(), func() time.Time { return f.now })

	user, err := accounts.RegisterUser(f.ctx, RegisterUserInput{Name: "Dev", Email: "dev@example.com", Password: "dev-pass-123"})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	userID := user.User.ID

	days := 30
	created, err := keys.Create(f.ctx, userID, CreateAPIKeyInput{Name: "ci", ExpiresInDays: &days})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Key == "" || created.KeyHash != auth.HashAPIKey(created.Key) {
		t.Fatal("only the hash of the raw key must be stored")
	}
	if !created.ExpiresAt.Equal(f.now.Add(30 * 24 * time.Hour)) {
		t.Fatalf("expires at %v", created.ExpiresAt)
	}

	stored, err := f.store.APIKeys.GetByHash(f.ctx, auth.HashAPIKey(created.Key))
	if err != nil || stored.ID != created.ID {
		t.Fatalf("GetByHash: %+v, %v", stored, err)
	}

	if err := keys.Revoke(f.ctx, uuid.New(), created.ID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("foreign revoke: err = %v", err)
	}
	if err := keys.Revoke(f.ctx, userID, created.ID); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	list, _ := keys.List(f.ctx, userID)
	if len(list) != 1 || !list[0].Revoked {
		t.Fatalf("keys = %+v", list)
	}

	me, err := keys.Me(f.ctx, &domain.Principal{Role: domain.RoleUser, UserID: &userID, APIKey: &list[0], User: user.User})
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if me.Subscription.Active {
		t.Fatal("user without a plan must report no active subscription")
	}
	if _, err := keys.Me(f.ctx, &domain.Principal{Role: domain.RoleUser, UserID: &userID}); domain.KindOf(err) != domain.KindUnauthorized {
		t.Fatalf("Me without key: err = %v", err)
	}
}
