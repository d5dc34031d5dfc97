package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/auth"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

type RegisterCompanyInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"max=20"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type RegisterDriverInput struct {
	FirstName string `json:"first_name" validate:"required,max=120"`
	LastName  string `json:"last_name" validate:"max=120"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"required,min=6,max=20"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

type RegisterUserInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// EmailLogin вход по email и паролю
type EmailLogin struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// PhoneLogin вход водителя по телефону и паролю
type PhoneLogin struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResult токен и профиль вошедшего
type AuthResult struct {
	Token   string          `json:"token"`
	Role    domain.Role     `json:"role"`
	Company *domain.Company `json:"company,omitempty"`
	Client  *domain.Client  `json:"client,omitempty"`
	Driver  *domain.Driver  `json:"driver,omitempty"`
	User    *domain.User    `json:"user,omitempty"`
	Admin   *domain.Admin   `json:"admin,omitempty"`
}

var errInvalidCredentials = domain.Unauthorized("invalid credentials")

// AccountService регистрация и вход всех ролей
type AccountService struct {
	accounts repository.AccountRepository
	fleet    repository.FleetRepository
	tokens   *auth.TokenManager
	log      *logger.Logger
	clock    Clock
}

func NewAccountService(accounts repository.AccountRepository, fleet repository.FleetRepository, tokens *auth.TokenManager, log *logger.Logger, clock Clock) *AccountService {
	return &AccountService{accounts: accounts, fleet: fleet, tokens: tokens, log: log.Named("accounts"), clock: clock}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AccountService) issue(claims auth.Claims) (string, error) {
	token, err := s.tokens.Issue(claims)
	if err != nil {
		return "", domain.Internal("failed to issue token", err)
	}
	return token, nil
}

// duplicate превращает нарушение уникальности в 409 с понятным сообщением
func duplicate(err error, message string) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return domain.E(domain.KindConflict, message, err)
	}
	return err
}

func (s *AccountService) RegisterCompany(ctx context.Context, in RegisterCompanyInput) (*AuthResult, error) {
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, domain.Internal("failed to hash password", err)
	}

	now := s.clock.now()
	company := &domain.Company{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(in.Name),
		Email:        normalizeEmail(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.CreateCompany(ctx, company); err != nil {
		return nil, duplicate(err, "email already registered")
	}

	token, err := s.issue(auth.CompanyClaims(company.ID))
	if err != nil {
		return nil, err
	}
	s.log.Infow("Company registered", "companyID", company.ID)
	return &AuthResult{Token: token, Role: domain.RoleCompany, Company: company}, nil
}

func (s *AccountService) LoginCompany(ctx context.Context, in EmailLogin) (*AuthResult, error) {
	company, err := s.accounts.GetCompanyByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		return nil, s.loginFailure(err)
	}
	if err := s.checkPassword(company.PasswordHash, in.Password); err != nil {
		return nil, err
	}

	token, err := s.issue(auth.CompanyClaims(company.ID))
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Role: domain.RoleCompany, Company: company}, nil
}

// LoginClient токен клиента несет и id компании
func (s *AccountService) LoginClient(ctx context.Context, in EmailLogin) (*AuthResult, error) {
	client, err := s.fleet.GetClientByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		return nil, s.loginFailure(err)
	}
	if err := s.checkPassword(client.PasswordHash, in.Password); err != nil {
		return nil, err
	}

	token, err := s.issue(auth.ClientClaims(client.ID, client.CompanyID))
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Role: domain.RoleClient, Client: client}, nil
}

func (s *AccountService) RegisterDriver(ctx context.Context, in RegisterDriverInput) (*AuthResult, error) {
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, domain.Internal("failed to hash password", err)
	}

	now := s.clock.now()
	driver := &domain.Driver{
		ID:           uuid.New(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        normalizeEmail(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.CreateDriver(ctx, driver); err != nil {
		return nil, duplicate(err, "phone already registered")
	}

	token, err := s.issue(auth.DriverClaims(driver.ID))
	if err != nil {
		return nil, err
	}
	s.log.Infow("Driver registered", "driverID", driver.ID)
	return &AuthResult{Token: token, Role: domain.RoleDriver, Driver: driver}, nil
}

func (s *AccountService) LoginDriver(ctx context.Context, in PhoneLogin) (*AuthResult, error) {
	driver, err := s.accounts.GetDriverByPhone(ctx, strings.TrimSpace(in.Phone))
	if err != nil {
		return nil, s.loginFailure(err)
	}
	if err := s.checkPassword(driver.PasswordHash, in.Password); err != nil {
		return nil, err
	}

	token, err := s.issue(auth.DriverClaims(driver.ID))
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Role: domain.RoleDriver, Driver: driver}, nil
}

func (s *AccountService) RegisterUser(ctx context.Context, in RegisterUserInput) (*AuthResult, error) {
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, domain.Internal("failed to hash password", err)
	}

	now := s.clock.now()
	user := &domain.User{
		ID:           uuid.New(),
		Name:         strings.TrimSpace(in.Name),
		Email:        normalizeEmail(in.Email),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.accounts.CreateUser(ctx, user); err != nil {
		return nil, duplicate(err, "email already registered")
	}

	token, err := s.issue(auth.UserClaims(user.ID))
	if err != nil {
		return nil, err
	}
	s.log.Infow("API user registered", "userID", user.ID)
	return &AuthResult{Token: token, Role: domain.RoleUser, User: user}, nil
}

func (s *AccountService) LoginUser(ctx context.Context, in EmailLogin) (*AuthResult, error) {
	user, err := s.accounts.GetUserByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		return nil, s.loginFailure(err)
	}
	if err := s.checkPassword(user.PasswordHash, in.Password); err != nil {
		return nil, err
	}

	token, err := s.issue(auth.UserClaims(user.ID))
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Role: domain.RoleUser, User: user}, nil
}

func (s *AccountService) LoginAdmin(ctx context.Context, in EmailLogin) (*AuthResult, error) {
	admin, err := s.accounts.GetAdminByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		return nil, s.loginFailure(err)
	}
	if err := s.checkPassword(admin.PasswordHash, in.Password); err != nil {
		return nil, err
	}

	token, err := s.issue(auth.AdminClaims(admin.ID))
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, Role: domain.RoleAdmin, Admin: admin}, nil
}

// EnsureAdmin создает администратора при первом запуске. Существующий не меняется.
func (s *AccountService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}

	if _, err := s.accounts.GetAdminByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &domain.Admin{
		ID:           uuid.New(),
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.clock.now(),
	}
	if err := s.accounts.CreateAdmin(ctx, admin); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return err
	}
	s.log.Infow("Bootstrap admin created", "email", email)
	return nil
}

func (s *AccountService) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	return s.accounts.ListCompanies(ctx)
}

func (s *AccountService) ListDrivers(ctx context.Context) ([]domain.Driver, error) {
	return s.accounts.ListDrivers(ctx)
}

// CompanyDetails карточка компании для администратора
type CompanyDetails struct {
	Company       domain.Company        `json:"company"`
	Vehicles      []domain.Vehicle      `json:"vehicles"`
	ClientsCount  int                   `json:"clients_count"`
	Subscriptions []domain.Subscription `json:"subscriptions,omitempty"`
}

// DriverProfile водитель и назначенная ему машина
type DriverProfile struct {
	Driver        domain.Driver         `json:"driver"`
	Vehicle       *domain.Vehicle       `json:"vehicle,omitempty"`
	Subscriptions []domain.Subscription `json:"subscriptions,omitempty"`
}

func (s *AccountService) CompanyDetails(ctx context.Context, id uuid.UUID) (*CompanyDetails, error) {
	company, err := s.accounts.GetCompany(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("company not found")
		}
		return nil, err
	}
	vehicles, err := s.fleet.ListVehicles(ctx, id)
	if err != nil {
		return nil, err
	}
	clients, err := s.fleet.CountClients(ctx, id)
	if err != nil {
		return nil, err
	}
	if vehicles == nil {
		vehicles = []domain.Vehicle{}
	}
	return &CompanyDetails{Company: *company, Vehicles: vehicles, ClientsCount: clients}, nil
}

// DriverProfile машина может быть не назначена
func (s *AccountService) DriverProfile(ctx context.Context, id uuid.UUID) (*DriverProfile, error) {
	driver, err := s.accounts.GetDriver(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("driver not found")
		}
		return nil, err
	}
	profile := &DriverProfile{Driver: *driver}
	vehicle, err := s.fleet.GetVehicleByDriver(ctx, id)
	switch {
	case err == nil:
		profile.Vehicle = vehicle
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}
	return profile, nil
}

// GetUser профиль пользователя API
func (s *AccountService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	user, err := s.accounts.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("user not found")
		}
		return nil, err
	}
	return user, nil
}

func (s *AccountService) loginFailure(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return errInvalidCredentials
	}
	return err
}

func (s *AccountService) checkPassword(hash, password string) error {
	ok, err := auth.CheckPassword(hash, password)
	if err != nil {
		return domain.Internal("failed to check password", err)
	}
	if !ok {
		return errInvalidCredentials
	}
	return nil
}
