package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// PostgresLocationRepository реализация LocationRepository через PostgreSQL
type PostgresLocationRepository struct {
	db  *pgxpool.Pool
	log *logger.Logger
}

func NewPostgresLocationRepository(db *pgxpool.Pool, log *logger.Logger) *PostgresLocationRepository {
	return &PostgresLocationRepository{db: db, log: log}
}

// SaveBatch пишет пачку точек одним batch-запросом и обновляет последнее местоположение машины
func (r *PostgresLocationRepository) SaveBatch(ctx context.Context, vehicleID uuid.UUID, points []domain.VehicleLocation) error {
	if len(points) == 0 {
		return nil
	}

	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM vehicles WHERE id = $1 FOR UPDATE`, vehicleID).Scan(&locked); err != nil {
			return translate(err)
		}

		batch := &pgx.Batch{}
		latest := points[0]
		for _, p := range points {
			batch.Queue(`
				INSERT INTO vehicle_locations (vehicle_id, lat, lng, speed_kph, heading_deg, recorded_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, vehicleID, p.Lat, p.Lng, p.SpeedKph, p.HeadingDeg, p.RecordedAt)
			if p.RecordedAt.After(latest.RecordedAt) {
				latest = p
			}
		}
		batch.Queue(`
			UPDATE vehicles SET last_lat = $1, last_lng = $2, last_location_at = $3
			WHERE id = $4 AND (last_location_at IS NULL OR last_location_at <= $3)
		`, latest.Lat, latest.Lng, latest.RecordedAt, vehicleID)

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to save locations: %w", err)
		}
		return nil
	})
}

// ListByVehicle точки начиная с since, свежие первыми
func (r *PostgresLocationRepository) ListByVehicle(ctx context.Context, vehicleID uuid.UUID, since time.Time, limit int) ([]domain.VehicleLocation, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, vehicle_id, lat, lng, speed_kph, heading_deg, recorded_at
		FROM vehicle_locations
		WHERE vehicle_id = $1 AND recorded_at >= $2
		ORDER BY recorded_at DESC
		LIMIT $3
	`, vehicleID, since, lim)
	if err != nil {
		return nil, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	points := make([]domain.VehicleLocation, 0)
	for rows.Next() {
		var p domain.VehicleLocation
		if err := rows.Scan(&p.ID, &p.VehicleID, &p.Lat, &p.Lng, &p.SpeedKph, &p.HeadingDeg, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
