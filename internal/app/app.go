package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/okdriver/okdriver-backend/config"
	grpcapi "github.com/okdriver/okdriver-backend/internal/api/grpc"
	"github.com/okdriver/okdriver-backend/internal/api/rest"
	"github.com/okdriver/okdriver-backend/internal/api/rest/handlers"
	"github.com/okdriver/okdriver-backend/internal/auth"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/kafka"
	"github.com/okdriver/okdriver-backend/internal/llm"
	"github.com/okdriver/okdriver-backend/internal/metrics"
	"github.com/okdriver/okdriver-backend/internal/notify"
	"github.com/okdriver/okdriver-backend/internal/payment/payu"
	"github.com/okdriver/okdriver-backend/internal/realtime"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/internal/repository/postgres"
	"github.com/okdriver/okdriver-backend/internal/scheduler"
	"github.com/okdriver/okdriver-backend/internal/service"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const systemMetricsInterval = 15 * time.Second

// closer освобождение одного ресурса при остановке
type closer struct {
	name  string
	close func(ctx context.Context) error
}

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Store    repository.Store
	Services rest.Services

	http      *rest.Server
	grpc      *grpcapi.Server
	scheduler *scheduler.Scheduler
	consumer  *kafka.LocationConsumer
	batcher   *service.LocationBatcher
	hub       *realtime.Hub
	system    metrics.SystemMetrics

	// ресурсы закрываются в обратном порядке открытия
	closers []closer
	checks  map[string]handlers.HealthCheck
}

// New создает и инициализирует новый экземпляр приложения.
// При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (a *App, err error) {
	a = &App{
		Config:   cfg,
		Logger:   log,
		Registry: metrics.NewRegistry(),
		checks:   make(map[string]handlers.HealthCheck),
	}
	defer func() {
		if err != nil {
			if cerr := a.closeAll(context.Background()); cerr != nil {
				log.Errorw("Failed to release resources after startup error", "error", cerr)
			}
			a = nil
		}
	}()

	if err = a.initStorage(ctx); err != nil {
		return a, err
	}
	cache := a.initCache()

	events, err := a.initKafka()
	if err != nil {
		return a, err
	}

	a.hub = realtime.NewHub(log, metrics.NewRealtimeMetrics(a.Registry))
	go a.hub.Run()
	broadcaster, err := a.initRealtime()
	if err != nil {
		return a, err
	}

	notifier, err := a.initNotifier()
	if err != nil {
		return a, err
	}

	a.initServices(cache, events, broadcaster, notifier)

	if err = a.Services.Accounts.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return a, fmt.Errorf("bootstrap admin: %w", err)
	}

	if events != nil {
		a.consumer, err = kafka.NewLocationConsumer(a.kafkaConfig(), a.Services.Locations, log)
		if err != nil {
			return a, err
		}
	}

	a.scheduler = scheduler.NewScheduler(
		scheduler.NewJobs(a.Services.Subscriptions, a.Services.Payments, cfg.Scheduler.PendingTTL(), log),
		log,
		scheduler.Config{ExpirySchedule: cfg.Scheduler.ExpirySchedule, PendingSchedule: cfg.Scheduler.PendingSchedule},
	)
	a.system = metrics.NewSystemMetrics(a.Registry, log)
	a.trackState()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	router := rest.SetupRouter(log, a.Registry, cfg, rest.Dependencies{
		Services:     a.Services,
		JWT:          auth.NewJWTAuthenticator(tokens, a.Store.Accounts, a.Store.Fleet, log),
		APIKey:       auth.NewAPIKeyAuthenticator(a.Store.APIKeys, a.Store.Accounts, a.Store.Subscriptions, log),
		Hub:          a.hub,
		HealthChecks: a.checks,
	})
	a.http = rest.NewServer(router, cfg, log)

	grpcChecks := make(map[string]grpcapi.Check, len(a.checks))
	for name, check := range a.checks {
		grpcChecks[name] = grpcapi.Check(check)
	}
	a.grpc = grpcapi.NewServer(cfg, grpcChecks, log)

	return a, nil
}

func (a *App) initStorage(ctx context.Context) error {
	cfg := a.Config.Database
	if cfg.InMemory() {
		a.Logger.Warn("Using in-memory storage, data is lost on restart")
		a.Store = repository.NewInMemoryStore(a.Logger)
		return nil
	}

	if cfg.Migrate {
		if err := postgres.Migrate(cfg.URL, a.Logger); err != nil {
			return err
		}
	}

	pool, err := postgres.NewConnection(ctx, cfg.URL, postgres.PoolOptions{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns}, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.onClose("postgres", func(context.Context) error {
		pool.Close()
		return nil
	})
	a.checks["postgres"] = pool.Ping
	a.Store = postgres.NewStore(pool, a.Logger)
	return nil
}

// initCache Redis необязателен: без него запросы идут прямо в хранилище
func (a *App) initCache() service.CacheInvalidator {
	cfg := a.Config.Redis
	if !cfg.Enabled() {
		return nil
	}

	redisCache, err := repository.NewRedisCacheRepository(cfg.Addr, cfg.Password, cfg.DB, a.Logger)
	if err != nil {
		a.Logger.Warnw("Failed to initialize Redis cache, continuing without caching", "error", err)
		return nil
	}
	a.onClose("redis", func(context.Context) error { return redisCache.Close() })
	a.checks["redis"] = redisCache.Ping

	subs := repository.NewCachedSubscriptionRepository(a.Store.Subscriptions, redisCache, a.Logger)
	a.Store.Subscriptions = subs
	a.Store.APIKeys = repository.NewCachedAPIKeyRepository(a.Store.APIKeys, redisCache, a.Logger)
	a.Logger.Infow("Using cached subscription and API key repositories", "addr", cfg.Addr)
	return subs
}

func (a *App) kafkaConfig() *kafka.Config {
	kcfg := kafka.NewConfig(a.Config.Kafka.Brokers)
	if group := a.Config.Kafka.LocationGroup; group != "" {
		kcfg.Consumer.Group = group
	}
	kcfg.Consumer.Topic = domain.TopicVehicleLocation
	return kcfg
}

// initKafka nil без брокеров: события не публикуются, координаты пишутся сразу
func (a *App) initKafka() (service.EventPublisher, error) {
	if !a.Config.Kafka.Enabled() {
		a.Logger.Info("Kafka is not configured, events are disabled")
		return nil, nil
	}

	kcfg := a.kafkaConfig()
	if err := kafka.EnsureTopics(kcfg, domain.AllTopics, a.Logger); err != nil {
		return nil, err
	}
	publisher, err := kafka.NewPublisher(kcfg, a.Logger)
	if err != nil {
		return nil, err
	}
	a.onClose("kafka producer", func(context.Context) error { return publisher.Close() })
	return publisher, nil
}

// initRealtime с NATS события расходятся по всем экземплярам, без него только по локальному хабу
func (a *App) initRealtime() (service.Broadcaster, error) {
	cfg := a.Config.NATS
	if !cfg.Enabled() {
		return a.hub, nil
	}

	relay, err := realtime.NewNATSRelay(realtime.RelayConfig{URL: cfg.URL, Subject: cfg.Subject}, a.hub, a.Logger)
	if err != nil {
		return nil, err
	}
	a.onClose("nats", func(context.Context) error { return relay.Close() })
	a.checks["nats"] = func(context.Context) error { return relay.Ping() }
	return relay, nil
}

func (a *App) initNotifier() (service.Notifier, error) {
	cfg := a.Config.RabbitMQ
	if !cfg.Enabled() {
		return notify.NewLogNotifier(a.Logger), nil
	}

	publisher, err := notify.NewRabbitPublisher(cfg.URL, cfg.Exchange, a.Logger)
	if err != nil {
		return nil, err
	}
	a.onClose("rabbitmq", func(context.Context) error { return publisher.Close() })
	return publisher, nil
}

func (a *App) initServices(cache service.CacheInvalidator, events service.EventPublisher, broadcaster service.Broadcaster, notifier service.Notifier) {
	cfg, log, store := a.Config, a.Logger, a.Store
	paymentMetrics := metrics.NewPaymentMetrics(a.Registry, log)

	gateway := payu.New(payu.Config{
		Key:        cfg.PayU.Key,
		Salt:       cfg.PayU.Salt,
		BaseURL:    cfg.PayU.BaseURL,
		SkipVerify: cfg.PayU.SkipVerify,
		Production: cfg.App.IsProduction(),
	})
	if cfg.PayU.SkipVerify {
		log.Warn("PayU callback hash verification is disabled")
	}
	model := llm.New(llm.Config{
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		BaseURL: cfg.LLM.BaseURL,
		Timeout: time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, log)

	a.batcher = service.NewLocationBatcher(store.Locations, metrics.NewLocationMetrics(a.Registry), log, service.DefaultLocationBatchSize, service.DefaultLocationFlushInterval)

	subs := service.NewSubscriptionService(store.Subscriptions, store.Plans, store.Accounts, events, paymentMetrics, log, nil)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	urls := service.PaymentURLs{BackendBaseURL: cfg.URLs.Backend, WebsiteBaseURL: cfg.URLs.Website}

	a.Services = rest.Services{
		Accounts:      service.NewAccountService(store.Accounts, store.Fleet, tokens, log, nil),
		APIKeys:       service.NewAPIKeyService(store.APIKeys, subs, log, nil),
		Plans:         service.NewPlanService(store.Plans, log, nil),
		Subscriptions: subs,
		Payments:      service.NewPaymentService(gateway, store.Payments, store.Plans, store.Accounts, cache, events, paymentMetrics, urls, log, nil),
		Fleet:         service.NewFleetService(store.Fleet, store.Accounts, subs, log, nil),
		Locations:     service.NewLocationService(store.Fleet, store.Locations, a.batcher, broadcaster, events, log, nil),
		Chat:          service.NewChatService(store.Chat, store.Fleet, broadcaster, events, log, nil),
		Tickets:       service.NewTicketService(store.Tickets, store.Accounts, notifier, log, nil),
		Assistant:     service.NewAssistantService(model, log),
	}
}

// trackState показатели компонентов, которые снимаются вместе с метриками рантайма
func (a *App) trackState() {
	a.system.Track("location_pending_points", "Location points buffered and not yet written", func(context.Context) (float64, error) {
		return float64(a.batcher.Pending()), nil
	})
	a.system.Track("realtime_rooms", "Websocket rooms with at least one connection", func(ctx context.Context) (float64, error) {
		stats, err := a.hub.Stats(ctx)
		if err != nil {
			return 0, err
		}
		return float64(stats.Rooms), nil
	})
}

func (a *App) onClose(name string, fn func(ctx context.Context) error) {
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Run запускает фоновые компоненты и серверы и блокируется до отмены ctx
// или первой ошибки сервера, после чего выполняет Shutdown
func (a *App) Run(ctx context.Context) error {
	a.system.StartRecording(systemMetricsInterval)
	a.batcher.Start()
	if err := a.scheduler.Start(); err != nil {
		return multierror.Append(err, a.Shutdown(context.Background())).ErrorOrNil()
	}
	if a.consumer != nil {
		a.consumer.Start(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.http.Start)
	g.Go(a.grpc.Start)
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(a.Config.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		return a.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown останавливает компоненты по порядку: входящий трафик, фоновые
// задачи, хаб, затем брокеры и пул. Ошибки собираются, а не прерывают остановку.
func (a *App) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	if err := a.http.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("http: %w", err))
	}
	a.grpc.Stop()
	if err := a.scheduler.Stop(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("scheduler: %w", err))
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("location consumer: %w", err))
		}
	}
	a.batcher.Stop(ctx)
	a.system.Stop()

	if err := a.closeAll(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// closeAll останавливает хаб и закрывает ресурсы в обратном порядке
func (a *App) closeAll(ctx context.Context) error {
	var result *multierror.Error

	if a.hub != nil {
		if err := a.hub.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			result = multierror.Append(result, fmt.Errorf("realtime hub: %w", err))
		}
		a.hub = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		a.Logger.Infow("Resource closed", "resource", c.name)
	}
	a.closers = nil
	return result.ErrorOrNil()
}
