package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

const maxLocationHistory = 1000

type LocationInput struct {
	Latitude   float64  `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude  float64  `json:"longitude" validate:"gte=-180,lte=180"`
	SpeedKph   *float64 `json:"speed_kph,omitempty" validate:"omitempty,gte=0,lte=400"`
	HeadingDeg *int     `json:"heading_deg,omitempty" validate:"omitempty,gte=0,lt=360"`
}

// LocationBroadcast полезная нагрузка события location_update
type LocationBroadcast struct {
	VehicleID     uuid.UUID `json:"vehicle_id"`
	VehicleNumber string    `json:"vehicle_number"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	SpeedKph      *float64  `json:"speed_kph,omitempty"`
	HeadingDeg    *int      `json:"heading_deg,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// LocationService прием координат от водителя и их обработка консьюмером
type LocationService struct {
	fleet     repository.FleetRepository
	locations repository.LocationRepository
	batcher   *LocationBatcher
	realtime  Broadcaster
	events    EventPublisher
	log       *logger.Logger
	clock     Clock
}

// NewLocationService без events точки обрабатываются сразу, без очереди
func NewLocationService(
	fleet repository.FleetRepository,
	locations repository.LocationRepository,
	batcher *LocationBatcher,
	realtime Broadcaster,
	events EventPublisher,
	log *logger.Logger,
	clock Clock,
) *LocationService {
	if realtime == nil {
		realtime = NopBroadcaster{}
	}
	return &LocationService{
		fleet:     fleet,
		locations: locations,
		batcher:   batcher,
		realtime:  realtime,
		events:    events,
		log:       log.Named("locations"),
		clock:     clock,
	}
}

// Submit ставит точку водителя в очередь vehicle-location-update с ключом по номеру машины
func (s *LocationService) Submit(ctx context.Context, p *domain.Principal, in LocationInput) (*domain.LocationUpdate, error) {
	if p == nil || p.VehicleID == nil {
		return nil, domain.NotFound("no vehicle assigned to driver")
	}

	vehicle, err := s.fleet.GetVehicle(ctx, *p.VehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("no vehicle assigned to driver")
		}
		return nil, err
	}

	update := domain.LocationUpdate{
		VehicleNumber: vehicle.VehicleNumber,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		SpeedKph:      in.SpeedKph,
		HeadingDeg:    in.HeadingDeg,
		Timestamp:     s.clock.now(),
	}

	if s.events == nil {
		if err := s.Process(ctx, update); err != nil {
			return nil, err
		}
		return &update, nil
	}

	if err := s.events.Publish(ctx, domain.TopicVehicleLocation, update.VehicleNumber, update); err != nil {
		s.log.Errorw("Failed to enqueue location", "vehicle", update.VehicleNumber, "error", err)
		return nil, domain.E(domain.KindUpstream, "location queue unavailable", err)
	}
	return &update, nil
}

// Process обработка одной точки из очереди: рассылка в комнаты и буферизация.
// Точки неизвестных машин отбрасываются.
func (s *LocationService) Process(ctx context.Context, update domain.LocationUpdate) error {
	number := strings.ToUpper(strings.TrimSpace(update.VehicleNumber))
	if number == "" {
		s.log.Warnw("Location update without vehicle number dropped")
		return nil
	}

	vehicle, err := s.fleet.GetVehicleByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warnw("Location update for unknown vehicle dropped", "vehicle", number)
			return nil
		}
		return err
	}

	at := update.Timestamp
	if at.IsZero() {
		at = s.clock.now()
	}

	broadcast(ctx, s.realtime, s.log, domain.RealtimeLocationUpdate, LocationBroadcast{
		VehicleID:     vehicle.ID,
		VehicleNumber: vehicle.VehicleNumber,
		Latitude:      update.Latitude,
		Longitude:     update.Longitude,
		SpeedKph:      update.SpeedKph,
		HeadingDeg:    update.HeadingDeg,
		Timestamp:     at,
	}, domain.VehicleRoom(vehicle.ID), domain.CompanyRoom(vehicle.CompanyID))

	s.batcher.Add(ctx, domain.VehicleLocation{
		VehicleID:  vehicle.ID,
		Lat:        update.Latitude,
		Lng:        update.Longitude,
		SpeedKph:   update.SpeedKph,
		HeadingDeg: update.HeadingDeg,
		RecordedAt: at,
	})
	return nil
}

// History трек машины компании начиная с since, свежие точки первыми
func (s *LocationService) History(ctx context.Context, companyID, vehicleID uuid.UUID, since time.Time, limit int) ([]domain.VehicleLocation, error) {
	vehicle, err := s.fleet.GetVehicle(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("vehicle not found")
		}
		return nil, err
	}
	if vehicle.CompanyID != companyID {
		return nil, domain.NotFound("vehicle not found")
	}

	if since.IsZero() {
		since = s.clock.now().Add(-24 * time.Hour)
	}
	if limit <= 0 || limit > maxLocationHistory {
		limit = maxLocationHistory
	}
	return s.locations.ListByVehicle(ctx, vehicleID, since, limit)
}
