package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/okdriver/okdriver-backend/config"
	"github.com/okdriver/okdriver-backend/internal/api/rest/handlers"
	"github.com/okdriver/okdriver-backend/internal/api/rest/middleware"
	"github.com/okdriver/okdriver-backend/internal/auth"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/metrics"
	"github.com/okdriver/okdriver-backend/internal/realtime"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

// Services прикладные сервисы, которые обслуживает REST слой
type Services struct {
	Accounts      *service.AccountService
	APIKeys       *service.APIKeyService
	Plans         *service.PlanService
	Subscriptions *service.SubscriptionService
	Payments      *service.PaymentService
	Fleet         *service.FleetService
	Locations     *service.LocationService
	Chat          *service.ChatService
	Tickets       *service.TicketService
	Assistant     *service.AssistantService
}

// Dependencies все, что нужно маршрутизатору
type Dependencies struct {
	Services
	JWT          auth.Authenticator
	APIKey       auth.Authenticator
	Hub          *realtime.Hub
	HealthChecks map[string]handlers.HealthCheck
}

// tenantKinds владельцы подписок, у каждого свой префикс /api/<kind>
var tenantKinds = []domain.TenantKind{domain.TenantCompany, domain.TenantDriver, domain.TenantUser}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(log *logger.Logger, registry *prometheus.Registry, cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Подключение middleware
	r.Use(middleware.LoggerMiddleware(log.Named("http")))
	r.Use(middleware.Recovery(log))
	if registry != nil {
		r.Use(metrics.NewHTTPMetrics(registry).Middleware())
		// Prometheus метрики
		r.GET("/metrics", gin.WrapH(metrics.Handler(registry)))
	}

	// Endpoint для проверки работоспособности сервиса
	r.GET("/health", handlers.NewHealthHandler(deps.HealthChecks, log).Health)

	authHandler := handlers.NewAuthHandler(deps.Accounts, log)
	planHandler := handlers.NewPlanHandler(deps.Plans, deps.Subscriptions, log)
	subscriptionHandler := handlers.NewSubscriptionHandler(deps.Subscriptions, log)
	paymentHandler := handlers.NewPaymentHandler(deps.Payments, log)
	fleetHandler := handlers.NewFleetHandler(deps.Fleet, deps.Locations, log)
	chatHandler := handlers.NewChatHandler(deps.Chat, log)
	ticketHandler := handlers.NewTicketHandler(deps.Tickets, log)
	apiKeyHandler := handlers.NewAPIKeyHandler(deps.APIKeys, log)
	assistantHandler := handlers.NewAssistantHandler(deps.Assistant, log)
	adminHandler := handlers.NewAdminHandler(deps.Accounts, deps.Subscriptions, log)

	jwt := middleware.Authenticate(deps.JWT, log)

	if deps.Hub != nil {
		r.GET("/ws", jwt, handlers.NewRealtimeHandler(deps.Hub, log).Connect)
	}

	api := r.Group("/api")
	api.GET("/plans/:kind", planHandler.ListPublic)

	// Подписки и оплата одинаковы для всех владельцев
	tenants := make(map[domain.TenantKind]*gin.RouterGroup, len(tenantKinds))
	for _, kind := range tenantKinds {
		public := api.Group("/" + kind.PathSegment())
		public.POST("/payment/payu-return", paymentHandler.Callback(kind))

		tenant := public.Group("", jwt, middleware.RequireRole(log, middleware.RoleForTenant(kind)))
		{
			tenant.POST("/payment/create-order", paymentHandler.CreateOrder)
			tenant.GET("/subscription", subscriptionHandler.GetActive)
			tenant.GET("/subscription/history", subscriptionHandler.History)
			tenant.POST("/subscription/select", subscriptionHandler.Select)
			tenant.POST("/subscription/cancel", subscriptionHandler.Cancel)
		}
		tenants[kind] = tenant
	}

	// Компания
	api.POST("/company/auth/register", authHandler.RegisterCompany)
	api.POST("/company/auth/login", authHandler.LoginCompany)
	company := tenants[domain.TenantCompany]
	{
		gate := middleware.RequireActivePlan(deps.Subscriptions, log)

		company.GET("/limits", subscriptionHandler.Limits)

		company.GET("/vehicles", fleetHandler.ListVehicles)
		company.POST("/vehicles", gate, fleetHandler.CreateVehicle)
		company.GET("/vehicles/:id", fleetHandler.GetVehicle)
		company.PUT("/vehicles/:id", fleetHandler.UpdateVehicle)
		company.DELETE("/vehicles/:id", fleetHandler.DeleteVehicle)
		company.GET("/vehicles/:id/locations", fleetHandler.VehicleLocations)

		company.GET("/clients", fleetHandler.ListClients)
		company.POST("/clients", gate, fleetHandler.CreateClient)

		vehicleChat := company.Group("/chat/vehicles/:vehicleId/messages")
		vehicleChat.GET("", chatHandler.Messages(chatHandler.CompanyVehicle))
		vehicleChat.POST("", chatHandler.Send(chatHandler.CompanyVehicle))
		vehicleChat.PATCH("/read", chatHandler.MarkRead(chatHandler.CompanyVehicle))

		clientChat := company.Group("/chat/clients/:clientId/messages")
		clientChat.GET("", chatHandler.Messages(chatHandler.CompanyClient))
		clientChat.POST("", chatHandler.Send(chatHandler.CompanyClient))
		clientChat.PATCH("/read", chatHandler.MarkRead(chatHandler.CompanyClient))

		company.POST("/tickets", ticketHandler.Create)
		company.GET("/tickets", ticketHandler.ListOwn)
		company.GET("/tickets/:id", ticketHandler.GetOwn)
	}

	// Водитель
	api.POST("/driver/auth/register", authHandler.RegisterDriver)
	api.POST("/driver/auth/login", authHandler.LoginDriver)
	driver := tenants[domain.TenantDriver]
	{
		driver.GET("/me", authHandler.CurrentDriver)
		driver.POST("/location", fleetHandler.SubmitLocation)
		driver.GET("/chat/messages", chatHandler.Messages(chatHandler.Driver))
		driver.POST("/chat/messages", chatHandler.Send(chatHandler.Driver))
		driver.PATCH("/chat/messages/read", chatHandler.MarkRead(chatHandler.Driver))
		driver.POST("/assistant/chat", assistantHandler.Chat)
	}

	// Клиент компании
	api.POST("/client/auth/login", authHandler.LoginClient)
	client := api.Group("/client", jwt, middleware.RequireRole(log, domain.RoleClient))
	{
		client.GET("/vehicles", fleetHandler.AssignedVehicles)
		client.GET("/chat/messages", chatHandler.Messages(chatHandler.Client))
		client.POST("/chat/messages", chatHandler.Send(chatHandler.Client))
		client.PATCH("/chat/messages/read", chatHandler.MarkRead(chatHandler.Client))
	}

	// Пользователь API
	api.POST("/user/auth/register", authHandler.RegisterUser)
	api.POST("/user/auth/login", authHandler.LoginUser)
	user := tenants[domain.TenantUser]
	{
		user.POST("/api-keys", apiKeyHandler.Create)
		user.GET("/api-keys", apiKeyHandler.List)
		user.DELETE("/api-keys/:id", apiKeyHandler.Revoke)
	}

	// Доступ по ключу API
	limiter := middleware.NewKeyRateLimiter(cfg.API.RateLimitPerMinute)
	v1 := api.Group("/v1")
	{
		v1.GET("/me", middleware.Authenticate(deps.APIKey, log), limiter.Middleware(log), apiKeyHandler.Me)
		v1.GET("/plans", middleware.Authenticate(auth.Optional(deps.APIKey), log), limiter.Middleware(log), planHandler.APIPlans)
	}

	// Администратор
	api.POST("/admin/auth/login", authHandler.LoginAdmin)
	admin := api.Group("/admin", middleware.Authenticate(deps.JWT, log, domain.RoleAdmin))
	{
		plans := admin.Group("/plans/:kind")
		plans.GET("", planHandler.ListAll)
		plans.POST("", planHandler.Create)
		plans.GET("/:id", planHandler.Get)
		plans.PUT("/:id", planHandler.Update)
		plans.DELETE("/:id", planHandler.Delete)

		admin.POST("/subscriptions/assign", subscriptionHandler.AdminAssign)
		admin.GET("/payments", paymentHandler.List)
		admin.GET("/companies", adminHandler.ListCompanies)
		admin.GET("/companies/:id", adminHandler.GetCompany)
		admin.GET("/drivers", adminHandler.ListDrivers)
		admin.GET("/drivers/:id", adminHandler.GetDriver)
		admin.GET("/tickets", ticketHandler.List)
		admin.GET("/tickets/:id", ticketHandler.Get)
		admin.PATCH("/tickets/:id", ticketHandler.Update)
	}

	return r
}
