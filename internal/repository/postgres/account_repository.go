package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// PostgresAccountRepository реализация AccountRepository через PostgreSQL
type PostgresAccountRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

// NewPostgresAccountRepository создает репозиторий учетных записей
func NewPostgresAccountRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresAccountRepository {
	return &PostgresAccountRepository{
		db:  db,
		log: log,
	}
}

// stamp заполняет ID и время создания, если их не выставил сервис
func stamp(id *uuid.UUID, createdAt *time.Time) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}

const companyColumns = `id, name, email, phone, password_hash, current_plan_id, subscription_expires_at, created_at, updated_at`

func scanCompany(row pgx.Row) (*domain.Company, error) {
	var c domain.Company
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.PasswordHash,
		&c.CurrentPlanID, &c.SubscriptionExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCompany создает компанию
func (r *PostgresAccountRepository) CreateCompany(ctx context.Context, company *domain.Company) error {
	stamp(&company.ID, &company.CreatedAt)
	company.UpdatedAt = company.CreatedAt

	query := `
		INSERT INTO companies (id, name, email, phone, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, company.ID, company.Name, company.Email, company.Phone,
		company.PasswordHash, company.CreatedAt, company.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", translate(err))
	}
	return nil
}

func (r *PostgresAccountRepository) GetCompany(ctx context.Context, id uuid.UUID) (*domain.Company, error) {
	c, err := scanCompany(r.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (r *PostgresAccountRepository) GetCompanyByEmail(ctx context.Context, email string) (*domain.Company, error) {
	c, err := scanCompany(r.db.QueryRow(ctx, `SELECT `+companyColumns+` FROM companies WHERE email = $1`, email))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (r *PostgresAccountRepository) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	rows, err := r.db.Query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query companies: %w", err)
	}
	defer rows.Close()

	companies := make([]domain.Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, *c)
	}
	return companies, rows.Err()
}

const driverColumns = `id, first_name, last_name, email, phone, password_hash, current_plan_id, subscription_expires_at, created_at, updated_at`

func scanDriver(row pgx.Row) (*domain.Driver, error) {
	var d domain.Driver
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Email, &d.Phone, &d.PasswordHash,
		&d.CurrentPlanID, &d.SubscriptionExpiresAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDriver создает водителя
func (r *PostgresAccountRepository) CreateDriver(ctx context.Context, driver *domain.Driver) error {
	stamp(&driver.ID, &driver.CreatedAt)
	driver.UpdatedAt = driver.CreatedAt

	query := `
		INSERT INTO drivers (id, first_name, last_name, email, phone, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query, driver.ID, driver.FirstName, driver.LastName, driver.Email,
		driver.Phone, driver.PasswordHash, driver.CreatedAt, driver.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create driver: %w", translate(err))
	}
	return nil
}

func (r *PostgresAccountRepository) GetDriver(ctx context.Context, id uuid.UUID) (*domain.Driver, error) {
	d, err := scanDriver(r.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return d, nil
}

func (r *PostgresAccountRepository) GetDriverByPhone(ctx context.Context, phone string) (*domain.Driver, error) {
	d, err := scanDriver(r.db.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE phone = $1`, phone))
	if err != nil {
		return nil, translate(err)
	}
	return d, nil
}

func (r *PostgresAccountRepository) ListDrivers(ctx context.Context) ([]domain.Driver, error) {
	rows, err := r.db.Query(ctx, `SELECT `+driverColumns+` FROM drivers ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query drivers: %w", err)
	}
	defer rows.Close()

	drivers := make([]domain.Driver, 0)
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan driver: %w", err)
		}
		drivers = append(drivers, *d)
	}
	return drivers, rows.Err()
}

const userColumns = `id, name, email, password_hash, current_plan_id, subscription_expires_at, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash,
		&u.CurrentPlanID, &u.SubscriptionExpiresAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser создает пользователя API
func (r *PostgresAccountRepository) CreateUser(ctx context.Context, user *domain.User) error {
	stamp(&user.ID, &user.CreatedAt)
	user.UpdatedAt = user.CreatedAt

	query := `
		INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, user.ID, user.Name, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

func (r *PostgresAccountRepository) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (r *PostgresAccountRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

const adminColumns = `id, name, email, password_hash, created_at`

func scanAdmin(row pgx.Row) (*domain.Admin, error) {
	var a domain.Admin
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresAccountRepository) CreateAdmin(ctx context.Context, admin *domain.Admin) error {
	stamp(&admin.ID, &admin.CreatedAt)

	_, err := r.db.Exec(ctx,
		`INSERT INTO admins (id, name, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		admin.ID, admin.Name, admin.Email, admin.PasswordHash, admin.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", translate(err))
	}
	return nil
}

func (r *PostgresAccountRepository) GetAdmin(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	a, err := scanAdmin(r.db.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

func (r *PostgresAccountRepository) GetAdminByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	a, err := scanAdmin(r.db.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE email = $1`, email))
	if err != nil {
		return nil, translate(err)
	}
	return a, nil
}

// GetTenant возвращает владельца подписки любого типа
func (r *PostgresAccountRepository) GetTenant(ctx context.Context, ref domain.TenantRef) (*domain.Tenant, error) {
	var tenant domain.Tenant
	switch ref.Kind {
	case domain.TenantCompany:
		c, err := r.GetCompany(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		tenant = c.Tenant()
	case domain.TenantDriver:
		d, err := r.GetDriver(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		tenant = d.Tenant()
	case domain.TenantUser:
		u, err := r.GetUser(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		tenant = u.Tenant()
	default:
		return nil, repository.ErrInvalidData
	}
	return &tenant, nil
}

// tenantTable таблица владельца подписки
func tenantTable(kind domain.TenantKind) (string, error) {
	switch kind {
	case domain.TenantCompany:
		return "companies", nil
	case domain.TenantDriver:
		return "drivers", nil
	case domain.TenantUser:
		return "users", nil
	}
	return "", fmt.Errorf("unknown tenant kind %q: %w", kind, repository.ErrInvalidData)
}

// setTenantPlan обновляет денормализованный указатель на текущий план
func setTenantPlan(ctx context.Context, q querier, ref domain.TenantRef, planID *uuid.UUID, expiresAt *time.Time, now time.Time) error {
	table, err := tenantTable(ref.Kind)
	if err != nil {
		return err
	}

	query := `UPDATE ` + table + ` SET current_plan_id = $1, subscription_expires_at = $2, updated_at = $3 WHERE id = $4`
	tag, err := q.Exec(ctx, query, planID, expiresAt, now, ref.ID)
	if err != nil {
		return fmt.Errorf("failed to update tenant plan: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
