package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// PostgresFleetRepository реализация FleetRepository через PostgreSQL
type PostgresFleetRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresFleetRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresFleetRepository {
	return &PostgresFleetRepository{db: db, log: log}
}

const vehicleColumns = `id, company_id, vehicle_number, model, driver_id, client_id, last_lat, last_lng, last_location_at, created_at`

func scanVehicle(row pgx.Row) (*domain.Vehicle, error) {
	var v domain.Vehicle
	err := row.Scan(&v.ID, &v.CompanyID, &v.VehicleNumber, &v.Model, &v.DriverID, &v.ClientID,
		&v.LastLat, &v.LastLng, &v.LastLocationAt, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// CreateVehicle создает машину
func (r *PostgresFleetRepository) CreateVehicle(ctx context.Context, vehicle *domain.Vehicle) error {
	stamp(&vehicle.ID, &vehicle.CreatedAt)

	query := `
		INSERT INTO vehicles (id, company_id, vehicle_number, model, driver_id, client_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, vehicle.ID, vehicle.CompanyID, vehicle.VehicleNumber, vehicle.Model,
		vehicle.DriverID, vehicle.ClientID, vehicle.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create vehicle: %w", translate(err))
	}
	return nil
}

func (r *PostgresFleetRepository) GetVehicle(ctx context.Context, id uuid.UUID) (*domain.Vehicle, error) {
	v, err := scanVehicle(r.db.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func (r *PostgresFleetRepository) GetVehicleByNumber(ctx context.Context, number string) (*domain.Vehicle, error) {
	v, err := scanVehicle(r.db.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE vehicle_number = $1`, number))
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func (r *PostgresFleetRepository) GetVehicleByDriver(ctx context.Context, driverID uuid.UUID) (*domain.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicles WHERE driver_id = $1 ORDER BY created_at DESC LIMIT 1`
	v, err := scanVehicle(r.db.QueryRow(ctx, query, driverID))
	if err != nil {
		return nil, translate(err)
	}
	return v, nil
}

func (r *PostgresFleetRepository) ListVehicles(ctx context.Context, companyID uuid.UUID) ([]domain.Vehicle, error) {
	rows, err := r.db.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE company_id = $1 ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	vehicles := make([]domain.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

func (r *PostgresFleetRepository) ListVehiclesByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Vehicle, error) {
	rows, err := r.db.Query(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query client vehicles: %w", err)
	}
	defer rows.Close()

	vehicles := make([]domain.Vehicle, 0)
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vehicle: %w", err)
		}
		vehicles = append(vehicles, *v)
	}
	return vehicles, rows.Err()
}

// UpdateVehicle обновляет машину компании и возвращает ее актуальное состояние
func (r *PostgresFleetRepository) UpdateVehicle(ctx context.Context, vehicle *domain.Vehicle) error {
	query := `
		UPDATE vehicles SET vehicle_number = $3, model = $4, driver_id = $5, client_id = $6
		WHERE id = $1 AND company_id = $2
		RETURNING ` + vehicleColumns
	updated, err := scanVehicle(r.db.QueryRow(ctx, query, vehicle.ID, vehicle.CompanyID,
		vehicle.VehicleNumber, vehicle.Model, vehicle.DriverID, vehicle.ClientID))
	if err != nil {
		if isUniqueViolation(err, "vehicles_vehicle_number_key") {
			return domain.NewDuplicateError("vehicle", "vehicle_number", vehicle.VehicleNumber)
		}
		return translate(err)
	}
	*vehicle = *updated
	return nil
}

func (r *PostgresFleetRepository) CountVehicles(ctx context.Context, companyID uuid.UUID) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles WHERE company_id = $1`, companyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count vehicles: %w", err)
	}
	return count, nil
}

// DeleteVehicle удаляет машину компании
func (r *PostgresFleetRepository) DeleteVehicle(ctx context.Context, companyID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM vehicles WHERE id = $1 AND company_id = $2`, id, companyID)
	if err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

const clientColumns = `id, company_id, name, email, phone, password_hash, created_at`

func scanClient(row pgx.Row) (*domain.Client, error) {
	var c domain.Client
	if err := row.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Email, &c.Phone, &c.PasswordHash, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateClient создает клиента компании
func (r *PostgresFleetRepository) CreateClient(ctx context.Context, client *domain.Client) error {
	stamp(&client.ID, &client.CreatedAt)

	query := `
		INSERT INTO clients (id, company_id, name, email, phone, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, client.ID, client.CompanyID, client.Name, client.Email, client.Phone,
		client.PasswordHash, client.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", translate(err))
	}
	return nil
}

func (r *PostgresFleetRepository) GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (r *PostgresFleetRepository) GetClientByEmail(ctx context.Context, email string) (*domain.Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE email = $1`, email))
	if err != nil {
		return nil, translate(err)
	}
	return c, nil
}

func (r *PostgresFleetRepository) ListClients(ctx context.Context, companyID uuid.UUID) ([]domain.Client, error) {
	rows, err := r.db.Query(ctx, `SELECT `+clientColumns+` FROM clients WHERE company_id = $1 ORDER BY created_at DESC`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0)
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, *c)
	}
	return clients, rows.Err()
}

func (r *PostgresFleetRepository) CountClients(ctx context.Context, companyID uuid.UUID) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE company_id = $1`, companyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count clients: %w", err)
	}
	return count, nil
}
