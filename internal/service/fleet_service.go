package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/auth"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

type VehicleInput struct {
	VehicleNumber string     `json:"vehicle_number" validate:"required,max=32"`
	Model         string     `json:"model" validate:"max=120"`
	DriverID      *uuid.UUID `json:"driver_id,omitempty"`
	ClientID      *uuid.UUID `json:"client_id,omitempty"`
}

// VehicleUpdate частичное изменение машины. Пустое поле оставляет значение как есть,
// Unassign* снимают назначение водителя или клиента.
type VehicleUpdate struct {
	VehicleNumber  *string    `json:"vehicle_number,omitempty" validate:"omitempty,min=1,max=32"`
	Model          *string    `json:"model,omitempty" validate:"omitempty,max=120"`
	DriverID       *uuid.UUID `json:"driver_id,omitempty"`
	ClientID       *uuid.UUID `json:"client_id,omitempty"`
	UnassignDriver bool       `json:"unassign_driver,omitempty"`
	UnassignClient bool       `json:"unassign_client,omitempty"`
}

type ClientInput struct {
	Name     string `json:"name" validate:"required,max=200"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"max=20"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// FleetService машины и клиенты компании в пределах лимитов плана
type FleetService struct {
	fleet    repository.FleetRepository
	accounts repository.AccountRepository
	subs     *SubscriptionService
	log      *logger.Logger
	clock    Clock
}

func NewFleetService(fleet repository.FleetRepository, accounts repository.AccountRepository, subs *SubscriptionService, log *logger.Logger, clock Clock) *FleetService {
	return &FleetService{fleet: fleet, accounts: accounts, subs: subs, log: log.Named("fleet"), clock: clock}
}

func companyRef(companyID uuid.UUID) domain.TenantRef {
	return domain.TenantRef{Kind: domain.TenantCompany, ID: companyID}
}

// CreateVehicle требует действующую подписку и свободное место в лимите машин
func (s *FleetService) CreateVehicle(ctx context.Context, companyID uuid.UUID, in VehicleInput) (*domain.Vehicle, error) {
	if _, err := s.subs.RequireActive(ctx, companyRef(companyID)); err != nil {
		return nil, err
	}

	limits, err := s.subs.Limits(ctx, companyID)
	if err != nil {
		return nil, err
	}
	count, err := s.fleet.CountVehicles(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if count >= limits.Vehicles {
		return nil, domain.Conflict(fmt.Sprintf("vehicle limit reached (%d)", limits.Vehicles))
	}

	if err := s.checkAssignees(ctx, companyID, in.DriverID, in.ClientID); err != nil {
		return nil, err
	}

	vehicle := &domain.Vehicle{
		ID:            uuid.New(),
		CompanyID:     companyID,
		VehicleNumber: strings.ToUpper(strings.TrimSpace(in.VehicleNumber)),
		Model:         strings.TrimSpace(in.Model),
		DriverID:      in.DriverID,
		ClientID:      in.ClientID,
		CreatedAt:     s.clock.now(),
	}
	if err := s.fleet.CreateVehicle(ctx, vehicle); err != nil {
		return nil, duplicate(err, "vehicle number already registered")
	}

	s.log.Infow("Vehicle created", "companyID", companyID, "vehicleID", vehicle.ID, "number", vehicle.VehicleNumber)
	return vehicle, nil
}

func (s *FleetService) ListVehicles(ctx context.Context, companyID uuid.UUID) ([]domain.Vehicle, error) {
	return s.fleet.ListVehicles(ctx, companyID)
}

// GetVehicle чужая машина неотличима от отсутствующей
func (s *FleetService) GetVehicle(ctx context.Context, companyID, id uuid.UUID) (*domain.Vehicle, error) {
	vehicle, err := s.fleet.GetVehicle(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("vehicle not found")
		}
		return nil, err
	}
	if vehicle.CompanyID != companyID {
		return nil, domain.NotFound("vehicle not found")
	}
	return vehicle, nil
}

// checkAssignees водитель должен существовать, клиент принадлежать компании
func (s *FleetService) checkAssignees(ctx context.Context, companyID uuid.UUID, driverID, clientID *uuid.UUID) error {
	if driverID != nil {
		if _, err := s.accounts.GetDriver(ctx, *driverID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.NotFound("driver not found")
			}
			return err
		}
	}
	if clientID != nil {
		if _, err := s.GetClient(ctx, companyID, *clientID); err != nil {
			return err
		}
	}
	return nil
}

// UpdateVehicle переназначение водителя и клиента без потери трека и переписки
func (s *FleetService) UpdateVehicle(ctx context.Context, companyID, id uuid.UUID, in VehicleUpdate) (*domain.Vehicle, error) {
	if in.DriverID != nil && in.UnassignDriver {
		return nil, domain.Validation("driver_id and unassign_driver are mutually exclusive")
	}
	if in.ClientID != nil && in.UnassignClient {
		return nil, domain.Validation("client_id and unassign_client are mutually exclusive")
	}

	vehicle, err := s.GetVehicle(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssignees(ctx, companyID, in.DriverID, in.ClientID); err != nil {
		return nil, err
	}

	if in.VehicleNumber != nil {
		number := strings.ToUpper(strings.TrimSpace(*in.VehicleNumber))
		if number == "" {
			return nil, domain.Validation("vehicle_number must not be empty")
		}
		vehicle.VehicleNumber = number
	}
	if in.Model != nil {
		vehicle.Model = strings.TrimSpace(*in.Model)
	}
	switch {
	case in.UnassignDriver:
		vehicle.DriverID = nil
	case in.DriverID != nil:
		vehicle.DriverID = in.DriverID
	}
	switch {
	case in.UnassignClient:
		vehicle.ClientID = nil
	case in.ClientID != nil:
		vehicle.ClientID = in.ClientID
	}

	if err := s.fleet.UpdateVehicle(ctx, vehicle); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("vehicle not found")
		}
		return nil, duplicate(err, "vehicle number already registered")
	}

	s.log.Infow("Vehicle updated", "companyID", companyID, "vehicleID", vehicle.ID, "number", vehicle.VehicleNumber)
	return vehicle, nil
}

// ClientVehicles машины, назначенные клиенту компании
func (s *FleetService) ClientVehicles(ctx context.Context, companyID, clientID uuid.UUID) ([]domain.Vehicle, error) {
	if _, err := s.GetClient(ctx, companyID, clientID); err != nil {
		return nil, err
	}
	vehicles, err := s.fleet.ListVehiclesByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	owned := vehicles[:0]
	for _, v := range vehicles {
		if v.CompanyID == companyID {
			owned = append(owned, v)
		}
	}
	return owned, nil
}

func (s *FleetService) DeleteVehicle(ctx context.Context, companyID, id uuid.UUID) error {
	if err := s.fleet.DeleteVehicle(ctx, companyID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound("vehicle not found")
		}
		return err
	}
	s.log.Infow("Vehicle deleted", "companyID", companyID, "vehicleID", id)
	return nil
}

// CreateClient тот же контроль подписки, что и для машин, но по лимиту клиентов
func (s *FleetService) CreateClient(ctx context.Context, companyID uuid.UUID, in ClientInput) (*domain.Client, error) {
	if _, err := s.subs.RequireActive(ctx, companyRef(companyID)); err != nil {
		return nil, err
	}

	limits, err := s.subs.Limits(ctx, companyID)
	if err != nil {
		return nil, err
	}
	count, err := s.fleet.CountClients(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if count >= limits.Clients {
		return nil, domain.Conflict(fmt.Sprintf("client limit reached (%d)", limits.Clients))
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, domain.Internal("failed to hash password", err)
	}
	client := &domain.Client{
		ID:           uuid.New(),
		CompanyID:    companyID,
		Name:         strings.TrimSpace(in.Name),
		Email:        normalizeEmail(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		CreatedAt:    s.clock.now(),
	}
	if err := s.fleet.CreateClient(ctx, client); err != nil {
		return nil, duplicate(err, "email already registered")
	}

	s.log.Infow("Client created", "companyID", companyID, "clientID", client.ID)
	return client, nil
}

func (s *FleetService) ListClients(ctx context.Context, companyID uuid.UUID) ([]domain.Client, error) {
	return s.fleet.ListClients(ctx, companyID)
}

func (s *FleetService) GetClient(ctx context.Context, companyID, id uuid.UUID) (*domain.Client, error) {
	client, err := s.fleet.GetClient(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("client not found")
		}
		return nil, err
	}
	if client.CompanyID != companyID {
		return nil, domain.NotFound("client not found")
	}
	return client, nil
}
