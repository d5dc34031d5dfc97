package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
)

// AccountRepository учетные записи: компании, водители, пользователи API, администраторы
type AccountRepository interface {
	CreateCompany(ctx context.Context, company *domain.Company) error
	GetCompany(ctx context.Context, id uuid.UUID) (*domain.Company, error)
	GetCompanyByEmail(ctx context.Context, email string) (*domain.Company, error)
	ListCompanies(ctx context.Context) ([]domain.Company, error)

	CreateDriver(ctx context.Context, driver *domain.Driver) error
	GetDriver(ctx context.Context, id uuid.UUID) (*domain.Driver, error)
	GetDriverByPhone(ctx context.Context, phone string) (*domain.Driver, error)
	ListDrivers(ctx context.Context) ([]domain.Driver, error)

	CreateUser(ctx context.Context, user *domain.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	CreateAdmin(ctx context.Context, admin *domain.Admin) error
	GetAdmin(ctx context.Context, id uuid.UUID) (*domain.Admin, error)
	GetAdminByEmail(ctx context.Context, email string) (*domain.Admin, error)

	// GetTenant возвращает общее представление владельца подписки
	GetTenant(ctx context.Context, ref domain.TenantRef) (*domain.Tenant, error)
}

// FleetRepository машины и клиенты компании
type FleetRepository interface {
	CreateVehicle(ctx context.Context, vehicle *domain.Vehicle) error
	GetVehicle(ctx context.Context, id uuid.UUID) (*domain.Vehicle, error)
	GetVehicleByNumber(ctx context.Context, number string) (*domain.Vehicle, error)
	GetVehicleByDriver(ctx context.Context, driverID uuid.UUID) (*domain.Vehicle, error)
	ListVehicles(ctx context.Context, companyID uuid.UUID) ([]domain.Vehicle, error)
	ListVehiclesByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Vehicle, error)
	CountVehicles(ctx context.Context, companyID uuid.UUID) (int, error)
	// UpdateVehicle меняет номер, модель и назначения машины компании. Чужая машина - ErrNotFound.
	UpdateVehicle(ctx context.Context, vehicle *domain.Vehicle) error
	DeleteVehicle(ctx context.Context, companyID, id uuid.UUID) error

	CreateClient(ctx context.Context, client *domain.Client) error
	GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error)
	GetClientByEmail(ctx context.Context, email string) (*domain.Client, error)
	ListClients(ctx context.Context, companyID uuid.UUID) ([]domain.Client, error)
	CountClients(ctx context.Context, companyID uuid.UUID) (int, error)
}

// PlanRepository планы всех видов
type PlanRepository interface {
	Create(ctx context.Context, plan *domain.Plan) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Plan, error)
	List(ctx context.Context, kind domain.PlanKind, activeOnly bool) ([]domain.Plan, error)
	Update(ctx context.Context, plan *domain.Plan) error

	// SoftDelete атомарно проверяет, что на план не ссылаются активные подписки
	// или пополнения, и выставляет is_active=false. Иначе ErrPlanInUse.
	SoftDelete(ctx context.Context, id uuid.UUID, now time.Time) error
}

// ExpiryCounts сколько записей перевела в EXPIRED фоновая проверка
type ExpiryCounts struct {
	Subscriptions int `json:"subscriptions"`
	TopUps        int `json:"top_ups"`
}

// SubscriptionRepository подписки и пополнения лимитов
type SubscriptionRepository interface {
	// Activate в одной транзакции: истекшие записи владельца помечаются EXPIRED,
	// действующая подписка либо вытесняется (supersede), либо приводит к ErrActiveSubscription,
	// затем вставляется новая подписка и обновляется указатель на план у владельца.
	Activate(ctx context.Context, sub domain.Subscription, supersede bool, now time.Time) (*domain.Subscription, error)

	// Active сначала переводит просроченные подписки владельца в EXPIRED,
	// затем возвращает самую позднюю по end_at активную. ErrNotFound, если ее нет.
	Active(ctx context.Context, tenant domain.TenantRef, now time.Time) (*domain.Subscription, error)

	ListByTenant(ctx context.Context, tenant domain.TenantRef) ([]domain.Subscription, error)

	// Cancel ACTIVE -> CANCELLED и очистка указателя на план у владельца
	Cancel(ctx context.Context, tenant domain.TenantRef, now time.Time) (*domain.Subscription, error)

	// ExpireDue переводит в EXPIRED все просроченные подписки и пополнения
	ExpireDue(ctx context.Context, now time.Time) (ExpiryCounts, error)

	// ActiveTopUps действующие пополнения компании (просроченные предварительно истекают)
	ActiveTopUps(ctx context.Context, companyID uuid.UUID, now time.Time) ([]domain.TopUp, error)
}

// PaymentFilter фильтр списка платежей для администратора
type PaymentFilter struct {
	TenantKind domain.TenantKind
	TenantID   *uuid.UUID
	Status     domain.PaymentStatus
	Limit      int
}

// PaymentRepository платежи и их проведение
type PaymentRepository interface {
	CreatePending(ctx context.Context, payment *domain.Payment) error
	GetByTxnID(ctx context.Context, txnID string) (*domain.Payment, error)
	List(ctx context.Context, filter PaymentFilter) ([]domain.Payment, error)

	// Settle записывает результат проверенного колбэка атомарно.
	// Если платеж с этим txnid уже SUCCESS, ничего не пишет и возвращает прежний результат с Duplicate=true.
	Settle(ctx context.Context, settlement domain.Settlement, now time.Time) (*domain.SettlementResult, error)

	// FailStalePending переводит в FAILED платежи, которые висят в PENDING дольше before
	FailStalePending(ctx context.Context, before time.Time, now time.Time) (int, error)
}

// APIKeyRepository ключи доступа к публичному API
type APIKeyRepository interface {
	Create(ctx context.Context, key *domain.APIKey) error
	GetByHash(ctx context.Context, hash string) (*domain.APIKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.APIKey, error)
	Revoke(ctx context.Context, userID, id uuid.UUID) error
	TouchLastUsed(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ChatRepository сообщения чата
type ChatRepository interface {
	Create(ctx context.Context, msg *domain.ChatMessage) error
	// List возвращает страницу сообщений, новые первыми, и общее число сообщений в окне
	List(ctx context.Context, query domain.ChatQuery) ([]domain.ChatMessage, int, error)
	// MarkRead помечает прочитанными сообщения переписки, отправленные стороной from
	MarkRead(ctx context.Context, conv domain.Conversation, ids []uuid.UUID, from domain.SenderType) (int, error)
}

// TicketRepository обращения в поддержку
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.HelpTicket) error
	Get(ctx context.Context, id uuid.UUID) (*domain.HelpTicket, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]domain.HelpTicket, error)
	List(ctx context.Context, status domain.TicketStatus) ([]domain.HelpTicket, error)
	Update(ctx context.Context, ticket *domain.HelpTicket) error
}

// LocationRepository история координат машин
type LocationRepository interface {
	// SaveBatch вставляет точки и обновляет последнее местоположение машины в одной транзакции
	SaveBatch(ctx context.Context, vehicleID uuid.UUID, points []domain.VehicleLocation) error
	ListByVehicle(ctx context.Context, vehicleID uuid.UUID, since time.Time, limit int) ([]domain.VehicleLocation, error)
}

// Store набор репозиториев одного хранилища
type Store struct {
	Accounts      AccountRepository
	Fleet         FleetRepository
	Plans         PlanRepository
	Subscriptions SubscriptionRepository
	Payments      PaymentRepository
	APIKeys       APIKeyRepository
	Chat          ChatRepository
	Tickets       TicketRepository
	Locations     LocationRepository
}
