package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// PlanInput тело запроса на создание или изменение плана
type PlanInput struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Description    string          `json:"description" validate:"max=2000"`
	Price          decimal.Decimal `json:"price"`
	DurationDays   int             `json:"duration_days" validate:"gte=0"`
	Features       []string        `json:"features"`
	VehicleLimit   *int            `json:"vehicle_limit,omitempty"`
	ClientLimit    *int            `json:"client_limit,omitempty"`
	RequestsPerDay *int            `json:"requests_per_day,omitempty"`
	IsActive       *bool           `json:"is_active,omitempty"`
}

func (in PlanInput) apply(plan *domain.Plan) {
	plan.Name = in.Name
	plan.Description = in.Description
	plan.Price = in.Price.Round(2)
	plan.DurationDays = in.DurationDays
	plan.Features = in.Features
	plan.VehicleLimit = in.VehicleLimit
	plan.ClientLimit = in.ClientLimit
	plan.RequestsPerDay = in.RequestsPerDay
	if in.IsActive != nil {
		plan.IsActive = *in.IsActive
	}
}

// PlanService планы всех видов одним набором операций, вид задается параметром
type PlanService struct {
	plans repository.PlanRepository
	log   *logger.Logger
	clock Clock
}

func NewPlanService(plans repository.PlanRepository, log *logger.Logger, clock Clock) *PlanService {
	return &PlanService{plans: plans, log: log.Named("plans"), clock: clock}
}

// List планы вида kind. Публичный список содержит только активные.
func (s *PlanService) List(ctx context.Context, kind domain.PlanKind, includeInactive bool) ([]domain.Plan, error) {
	return s.plans.List(ctx, kind, !includeInactive)
}

// Get план по ID. План другого вида неотличим от отсутствующего.
func (s *PlanService) Get(ctx context.Context, kind domain.PlanKind, id uuid.UUID) (*domain.Plan, error) {
	plan, err := s.plans.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("plan not found")
		}
		return nil, err
	}
	if plan.Kind != kind {
		return nil, domain.NotFound("plan not found")
	}
	return plan, nil
}

func (s *PlanService) Create(ctx context.Context, kind domain.PlanKind, in PlanInput) (*domain.Plan, error) {
	now := s.clock.now()
	plan := &domain.Plan{
		ID:        uuid.New(),
		Kind:      kind,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(plan)

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		s.log.Errorw("Failed to create plan", "kind", kind, "error", err)
		return nil, err
	}

	s.log.Infow("Plan created", "planID", plan.ID, "kind", kind, "price", plan.Price.StringFixed(2))
	return plan, nil
}

func (s *PlanService) Update(ctx context.Context, kind domain.PlanKind, id uuid.UUID, in PlanInput) (*domain.Plan, error) {
	plan, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}

	in.apply(plan)
	plan.UpdatedAt = s.clock.now()
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if err := s.plans.Update(ctx, plan); err != nil {
		return nil, err
	}

	s.log.Infow("Plan updated", "planID", plan.ID, "kind", kind)
	return plan, nil
}

// Delete мягкое удаление. План, на который ссылаются действующие подписки, не удаляется.
func (s *PlanService) Delete(ctx context.Context, kind domain.PlanKind, id uuid.UUID) error {
	if _, err := s.Get(ctx, kind, id); err != nil {
		return err
	}

	if err := s.plans.SoftDelete(ctx, id, s.clock.now()); err != nil {
		if errors.Is(err, repository.ErrPlanInUse) {
			return domain.E(domain.KindValidation, "plan is in use", err)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound("plan not found")
		}
		return err
	}

	s.log.Infow("Plan deactivated", "planID", id, "kind", kind)
	return nil
}
