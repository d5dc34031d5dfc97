package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

type CreateTicketInput struct {
	Subject     string                `json:"subject" validate:"required,max=200"`
	Description string                `json:"description" validate:"required,max=5000"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
}

type UpdateTicketInput struct {
	Status        *domain.TicketStatus `json:"status,omitempty" validate:"omitempty,oneof=OPEN IN_PROGRESS RESOLVED CLOSED"`
	AdminResponse *string              `json:"admin_response,omitempty" validate:"omitempty,max=5000"`
}

// TicketService обращения в поддержку, каждое изменение ставит задание уведомления
type TicketService struct {
	tickets  repository.TicketRepository
	accounts repository.AccountRepository
	notifier Notifier
	log      *logger.Logger
	clock    Clock
}

func NewTicketService(tickets repository.TicketRepository, accounts repository.AccountRepository, notifier Notifier, log *logger.Logger, clock Clock) *TicketService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &TicketService{tickets: tickets, accounts: accounts, notifier: notifier, log: log.Named("tickets"), clock: clock}
}

func (s *TicketService) Create(ctx context.Context, companyID uuid.UUID, in CreateTicketInput) (*domain.HelpTicket, error) {
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}

	now := s.clock.now()
	ticket := &domain.HelpTicket{
		ID:          uuid.New(),
		CompanyID:   companyID,
		Subject:     strings.TrimSpace(in.Subject),
		Description: strings.TrimSpace(in.Description),
		Priority:    priority,
		Status:      domain.TicketOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.notify(ctx, domain.NotificationTicketCreated, ticket)
	s.log.Infow("Help ticket created", "ticketID", ticket.ID, "companyID", companyID)
	return ticket, nil
}

func (s *TicketService) ListForCompany(ctx context.Context, companyID uuid.UUID) ([]domain.HelpTicket, error) {
	return s.tickets.ListByCompany(ctx, companyID)
}

// GetForCompany чужое обращение неотличимо от отсутствующего
func (s *TicketService) GetForCompany(ctx context.Context, companyID, id uuid.UUID) (*domain.HelpTicket, error) {
	ticket, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ticket.CompanyID != companyID {
		return nil, domain.NotFound("ticket not found")
	}
	return ticket, nil
}

// Get обращение для администратора
func (s *TicketService) Get(ctx context.Context, id uuid.UUID) (*domain.HelpTicket, error) {
	return s.get(ctx, id)
}

func (s *TicketService) List(ctx context.Context, status domain.TicketStatus) ([]domain.HelpTicket, error) {
	if status != "" && !status.Valid() {
		return nil, domain.Validation("unknown ticket status")
	}
	return s.tickets.List(ctx, status)
}

// Update изменение статуса или ответа администратором
func (s *TicketService) Update(ctx context.Context, id uuid.UUID, in UpdateTicketInput) (*domain.HelpTicket, error) {
	ticket, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, domain.Validation("unknown ticket status")
		}
		ticket.Status = *in.Status
	}
	if in.AdminResponse != nil {
		ticket.AdminResponse = strings.TrimSpace(*in.AdminResponse)
	}
	ticket.UpdatedAt = s.clock.now()

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.notify(ctx, domain.NotificationTicketUpdated, ticket)
	s.log.Infow("Help ticket updated", "ticketID", ticket.ID, "status", ticket.Status)
	return ticket, nil
}

func (s *TicketService) get(ctx context.Context, id uuid.UUID) (*domain.HelpTicket, error) {
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound("ticket not found")
		}
		return nil, err
	}
	return ticket, nil
}

func (s *TicketService) notify(ctx context.Context, kind string, ticket *domain.HelpTicket) {
	job := domain.NotificationJob{
		Type: kind,
		Payload: map[string]any{
			"ticket_id":  ticket.ID.String(),
			"company_id": ticket.CompanyID.String(),
			"subject":    ticket.Subject,
			"status":     string(ticket.Status),
			"priority":   string(ticket.Priority),
		},
		CreatedAt: s.clock.now(),
	}
	if ticket.AdminResponse != "" {
		job.Payload["admin_response"] = ticket.AdminResponse
	}
	if company, err := s.accounts.GetCompany(ctx, ticket.CompanyID); err == nil {
		job.Recipient = company.Email
	}

	if err := s.notifier.Notify(ctx, job); err != nil {
		s.log.Warnw("Failed to enqueue notification", "type", kind, "ticketID", ticket.ID, "error", err)
	}
}
