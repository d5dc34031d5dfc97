package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

// memoryDB общее состояние хранилища в памяти. Все репозитории берут один мьютекс,
// поэтому составные операции (Activate, Settle, SoftDelete) атомарны так же, как транзакции в Postgres.
type memoryDB struct {
	mutex sync.RWMutex
	log   *logger.Logger

	companies     map[uuid.UUID]domain.Company
	drivers       map[uuid.UUID]domain.Driver
	users         map[uuid.UUID]domain.User
	admins        map[uuid.UUID]domain.Admin
	clients       map[uuid.UUID]domain.Client
	vehicles      map[uuid.UUID]domain.Vehicle
	plans         map[uuid.UUID]domain.Plan
	subscriptions map[uuid.UUID]domain.Subscription
	topUps        map[uuid.UUID]domain.TopUp
	payments      map[string]domain.Payment
	apiKeys       map[uuid.UUID]domain.APIKey
	messages      []domain.ChatMessage
	tickets       map[uuid.UUID]domain.HelpTicket
	locations     map[uuid.UUID][]domain.VehicleLocation
	locationSeq   int64
}

// NewInMemoryStore создает хранилище в памяти (разработка и тесты)
func NewInMemoryStore(log *logger.Logger) Store {
	if log == nil {
		log = logger.NewNop()
	}
	db := &memoryDB{
		log:           log,
		companies:     make(map[uuid.UUID]domain.Company),
		drivers:       make(map[uuid.UUID]domain.Driver),
		users:         make(map[uuid.UUID]domain.User),
		admins:        make(map[uuid.UUID]domain.Admin),
		clients:       make(map[uuid.UUID]domain.Client),
		vehicles:      make(map[uuid.UUID]domain.Vehicle),
		plans:         make(map[uuid.UUID]domain.Plan),
		subscriptions: make(map[uuid.UUID]domain.Subscription),
		topUps:        make(map[uuid.UUID]domain.TopUp),
		payments:      make(map[string]domain.Payment),
		apiKeys:       make(map[uuid.UUID]domain.APIKey),
		tickets:       make(map[uuid.UUID]domain.HelpTicket),
		locations:     make(map[uuid.UUID][]domain.VehicleLocation),
	}

	return Store{
		Accounts:      &InMemoryAccountRepository{db: db},
		Fleet:         &InMemoryFleetRepository{db: db},
		Plans:         &InMemoryPlanRepository{db: db},
		Subscriptions: &InMemorySubscriptionRepository{db: db},
		Payments:      &InMemoryPaymentRepository{db: db},
		APIKeys:       &InMemoryAPIKeyRepository{db: db},
		Chat:          &InMemoryChatRepository{db: db},
		Tickets:       &InMemoryTicketRepository{db: db},
		Locations:     &InMemoryLocationRepository{db: db},
	}
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// InMemoryAccountRepository реализация AccountRepository в памяти
type InMemoryAccountRepository struct {
	db *memoryDB
}

// CreateCompany создает компанию, email уникален
func (r *InMemoryAccountRepository) CreateCompany(ctx context.Context, company *domain.Company) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for _, c := range r.db.companies {
		if c.Email == company.Email {
			return domain.NewDuplicateError("company", "email", company.Email)
		}
	}

	ensureID(&company.ID)
	r.db.companies[company.ID] = *company
	return nil
}

// GetCompany возвращает компанию по ID
func (r *InMemoryAccountRepository) GetCompany(ctx context.Context, id uuid.UUID) (*domain.Company, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	company, exists := r.db.companies[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &company, nil
}

// GetCompanyByEmail возвращает компанию по email
func (r *InMemoryAccountRepository) GetCompanyByEmail(ctx context.Context, email string) (*domain.Company, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	for _, c := range r.db.companies {
		if c.Email == email {
			company := c
			return &company, nil
		}
	}
	return nil, ErrNotFound
}

// ListCompanies возвращает все компании, новые первыми
func (r *InMemoryAccountRepository) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	companies := make([]domain.Company, 0, len(r.db.companies))
	for _, c := range r.db.companies {
		companies = append(companies, c)
	}
	sort.Slice(companies, func(i, j int) bool { return companies[i].CreatedAt.After(companies[j].CreatedAt) })
	return companies, nil
}

// CreateDriver создает водителя, телефон уникален
func (r *InMemoryAccountRepository) CreateDriver(ctx context.Context, driver *domain.Driver) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for _, d := range r.db.drivers {
		if d.Phone == driver.Phone {
			return domain.NewDuplicateError("driver", "phone", driver.Phone)
		}
	}

	ensureID(&driver.ID)
	r.db.drivers[driver.ID] = *driver
	return nil
}

func (r *InMemoryAccountRepository) GetDriver(ctx context.Context, id uuid.UUID) (*domain.Driver, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	driver, exists := r.db.drivers[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &driver, nil
}

func (r *InMemoryAccountRepository) GetDriverByPhone(ctx context.Context, phone string) (*domain.Driver, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	for _, d := range r.db.drivers {
		if d.Phone == phone {
			driver := d
			return &driver, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryAccountRepository) ListDrivers(ctx context.Context) ([]domain.Driver, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	drivers := make([]domain.Driver, 0, len(r.db.drivers))
	for _, d := range r.db.drivers {
		drivers = append(drivers, d)
	}
	sort.Slice(drivers, func(i, j int) bool { return drivers[i].CreatedAt.After(drivers[j].CreatedAt) })
	return drivers, nil
}

// CreateUser создает пользователя API, email уникален
func (r *InMemoryAccountRepository) CreateUser(ctx context.Context, user *domain.User) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for _, u := range r.db.users {
		if u.Email == user.Email {
			return domain.NewDuplicateError("user", "email", user.Email)
		}
	}

	ensureID(&user.ID)
	r.db.users[user.ID] = *user
	return nil
}

func (r *InMemoryAccountRepository) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	user, exists := r.db.users[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (r *InMemoryAccountRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	for _, u := range r.db.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryAccountRepository) CreateAdmin(ctx context.Context, admin *domain.Admin) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for _, a := range r.db.admins {
		if a.Email == admin.Email {
			return domain.NewDuplicateError("admin", "email", admin.Email)
		}
	}

	ensureID(&admin.ID)
	r.db.admins[admin.ID] = *admin
	return nil
}

func (r *InMemoryAccountRepository) GetAdmin(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	admin, exists := r.db.admins[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &admin, nil
}

func (r *InMemoryAccountRepository) GetAdminByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	for _, a := range r.db.admins {
		if a.Email == email {
			admin := a
			return &admin, nil
		}
	}
	return nil, ErrNotFound
}

// GetTenant возвращает владельца подписки любого типа
func (r *InMemoryAccountRepository) GetTenant(ctx context.Context, ref domain.TenantRef) (*domain.Tenant, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	return r.db.tenant(ref)
}

func (db *memoryDB) tenant(ref domain.TenantRef) (*domain.Tenant, error) {
	var tenant domain.Tenant
	switch ref.Kind {
	case domain.TenantCompany:
		c, ok := db.companies[ref.ID]
		if !ok {
			return nil, ErrNotFound
		}
		tenant = c.Tenant()
	case domain.TenantDriver:
		d, ok := db.drivers[ref.ID]
		if !ok {
			return nil, ErrNotFound
		}
		tenant = d.Tenant()
	case domain.TenantUser:
		u, ok := db.users[ref.ID]
		if !ok {
			return nil, ErrNotFound
		}
		tenant = u.Tenant()
	default:
		return nil, ErrInvalidData
	}
	return &tenant, nil
}

// setTenantPlan обновляет денормализованный указатель на текущий план владельца
func (db *memoryDB) setTenantPlan(ref domain.TenantRef, planID *uuid.UUID, expiresAt *time.Time, now time.Time) {
	switch ref.Kind {
	case domain.TenantCompany:
		if c, ok := db.companies[ref.ID]; ok {
			c.CurrentPlanID, c.SubscriptionExpiresAt, c.UpdatedAt = planID, expiresAt, now
			db.companies[ref.ID] = c
		}
	case domain.TenantDriver:
		if d, ok := db.drivers[ref.ID]; ok {
			d.CurrentPlanID, d.SubscriptionExpiresAt, d.UpdatedAt = planID, expiresAt, now
			db.drivers[ref.ID] = d
		}
	case domain.TenantUser:
		if u, ok := db.users[ref.ID]; ok {
			u.CurrentPlanID, u.SubscriptionExpiresAt, u.UpdatedAt = planID, expiresAt, now
			db.users[ref.ID] = u
		}
	}
}

// InMemoryFleetRepository реализация FleetRepository в памяти
type InMemoryFleetRepository struct {
	db *memoryDB
}

// CreateVehicle создает машину, номер уникален
func (r *InMemoryFleetRepository) CreateVehicle(ctx context.Context, vehicle *domain.Vehicle) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for _, v := range r.db.vehicles {
		if v.VehicleNumber == vehicle.VehicleNumber {
			return domain.NewDuplicateError("vehicle", "vehicle_number", vehicle.VehicleNumber)
		}
	}

	ensureID(&vehicle.ID)
	r.db.vehicles[vehicle.ID] = *vehicle
	return nil
}

func (r *InMemoryFleetRepository) GetVehicle(ctx context.Context, id uuid.UUID) (*domain.Vehicle, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	vehicle, exists := r.db.vehicles[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &vehicle, nil
}

func (r *InMemoryFleetRepository) GetVehicleByNumber(ctx context.Context, number string) (*domain.Vehicle, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	for _, v := range r.db.vehicles {
		if v.VehicleNumber == number {
			vehicle := v
			return &vehicle, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryFleetRepository) GetVehicleByDriver(ctx context.Context, driverID uuid.UUID) (*domain.Vehicle, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	for _, v := range r.db.vehicles {
		if v.DriverID != nil && *v.DriverID == driverID {
			vehicle := v
			return &vehicle, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryFleetRepository) ListVehicles(ctx context.Context, companyID uuid.UUID) ([]domain.Vehicle, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var vehicles []domain.Vehicle
	for _, v := range r.db.vehicles {
		if v.CompanyID == companyID {
			vehicles = append(vehicles, v)
		}
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].CreatedAt.After(vehicles[j].CreatedAt) })
	return vehicles, nil
}

// ListVehiclesByClient машины, назначенные клиенту
func (r *InMemoryFleetRepository) ListVehiclesByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Vehicle, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	vehicles := make([]domain.Vehicle, 0)
	for _, v := range r.db.vehicles {
		if v.ClientID != nil && *v.ClientID == clientID {
			vehicles = append(vehicles, v)
		}
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].CreatedAt.After(vehicles[j].CreatedAt) })
	return vehicles, nil
}

// UpdateVehicle номер остается уникальным, последние координаты не трогаются
func (r *InMemoryFleetRepository) UpdateVehicle(ctx context.Context, vehicle *domain.Vehicle) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	current, exists := r.db.vehicles[vehicle.ID]
	if !exists || current.CompanyID != vehicle.CompanyID {
		return ErrNotFound
	}
	for id, v := range r.db.vehicles {
		if id != vehicle.ID && v.VehicleNumber == vehicle.VehicleNumber {
			return domain.NewDuplicateError("vehicle", "vehicle_number", vehicle.VehicleNumber)
		}
	}

	current.VehicleNumber = vehicle.VehicleNumber
	current.Model = vehicle.Model
	current.DriverID = vehicle.DriverID
	current.ClientID = vehicle.ClientID
	r.db.vehicles[vehicle.ID] = current
	*vehicle = current
	return nil
}

func (r *InMemoryFleetRepository) CountVehicles(ctx context.Context, companyID uuid.UUID) (int, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	count := 0
	for _, v := range r.db.vehicles {
		if v.CompanyID == companyID {
			count++
		}
	}
	return count, nil
}

// DeleteVehicle удаляет машину компании. Чужая машина неотличима от отсутствующей.
func (r *InMemoryFleetRepository) DeleteVehicle(ctx context.Context, companyID, id uuid.UUID) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	vehicle, exists := r.db.vehicles[id]
	if !exists || vehicle.CompanyID != companyID {
		return ErrNotFound
	}

	delete(r.db.vehicles, id)
	delete(r.db.locations, id)
	return nil
}

// CreateClient создает клиента компании, email уникален
func (r *InMemoryFleetRepository) CreateClient(ctx context.Context, client *domain.Client) error {
	r.db.mutex.Lock()
	defer r.db.mutex.Unlock()

	for _, c := range r.db.clients {
		if c.Email == client.Email {
			return domain.NewDuplicateError("client", "email", client.Email)
		}
	}

	ensureID(&client.ID)
	r.db.clients[client.ID] = *client
	return nil
}

func (r *InMemoryFleetRepository) GetClient(ctx context.Context, id uuid.UUID) (*domain.Client, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	client, exists := r.db.clients[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &client, nil
}

func (r *InMemoryFleetRepository) GetClientByEmail(ctx context.Context, email string) (*domain.Client, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	for _, c := range r.db.clients {
		if c.Email == email {
			client := c
			return &client, nil
		}
	}
	return nil, ErrNotFound
}

func (r *InMemoryFleetRepository) ListClients(ctx context.Context, companyID uuid.UUID) ([]domain.Client, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	var clients []domain.Client
	for _, c := range r.db.clients {
		if c.CompanyID == companyID {
			clients = append(clients, c)
		}
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].CreatedAt.After(clients[j].CreatedAt) })
	return clients, nil
}

func (r *InMemoryFleetRepository) CountClients(ctx context.Context, companyID uuid.UUID) (int, error) {
	r.db.mutex.RLock()
	defer r.db.mutex.RUnlock()

	count := 0
	for _, c := range r.db.clients {
		if c.CompanyID == companyID {
			count++
		}
	}
	return count, nil
}
