package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/okdriver/okdriver-backend/config"
	"github.com/okdriver/okdriver-backend/internal/interceptors"
	"github.com/okdriver/okdriver-backend/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

const (
	// ServiceName имя, под которым публикуется общий статус сервиса
	ServiceName = "okdriver.backend"

	defaultCheckInterval = 15 * time.Second
	checkTimeout         = 2 * time.Second
)

// Check проверка одной зависимости, ошибка означает NOT_SERVING
type Check func(ctx context.Context) error

// Server gRPC сервер со стандартным health сервисом
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	checks     map[string]Check
	interval   time.Duration
	log        *logger.Logger
	cfg        *config.Config

	mu       sync.Mutex
	listener net.Listener
	stop     chan struct{}
	done     chan struct{}
	closed   bool
}

// NewServer создает новый gRPC сервер
func NewServer(cfg *config.Config, checks map[string]Check, log *logger.Logger) *Server {
	log = log.Named("grpc")

	// Настройки keepalive для gRPC
	kaParams := keepalive.ServerParameters{
		MaxConnectionIdle:     time.Minute * 5,
		MaxConnectionAge:      time.Hour,
		MaxConnectionAgeGrace: time.Minute * 5,
		Time:                  time.Minute * 2,
		Timeout:               time.Second * 20,
	}

	logging := interceptors.NewLogging(log)
	recovery := interceptors.NewRecovery(log)

	grpcServer := grpc.NewServer(
		grpc.KeepaliveParams(kaParams),
		grpc.ChainUnaryInterceptor(recovery.Unary(), logging.Unary()),
		grpc.ChainStreamInterceptor(recovery.Stream(), logging.Stream()),
	)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	// reflection для grpcurl
	reflection.Register(grpcServer)

	return &Server{
		grpcServer: grpcServer,
		health:     healthServer,
		checks:     checks,
		interval:   defaultCheckInterval,
		log:        log,
		cfg:        cfg,
	}
}

// Refresh прогоняет все проверки и обновляет статусы health сервиса.
// Общий статус SERVING только если все зависимости отвечают.
func (s *Server) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	overall := healthpb.HealthCheckResponse_SERVING
	for name, check := range s.checks {
		st := healthpb.HealthCheckResponse_SERVING
		if err := check(ctx); err != nil {
			s.log.Warnw("Health check failed", "component", name, "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = st
		}
		s.health.SetServingStatus(name, st)
	}
	s.health.SetServingStatus("", overall)
	s.health.SetServingStatus(ServiceName, overall)
}

// Start слушает адрес из конфигурации и блокируется до Stop
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.cfg.GRPC.Host, s.cfg.GRPC.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.log.Infow("Starting gRPC server", "addr", addr)
	return s.Serve(listener)
}

// Serve обслуживает уже открытый listener
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return listener.Close()
	}
	s.listener = listener
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.Refresh(context.Background())
	go s.watch(s.stop, s.done)

	if err := s.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

func (s *Server) watch(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Refresh(context.Background())
		}
	}
}

// Stop останавливает gRPC сервер, ожидая текущие вызовы
func (s *Server) Stop() {
	s.log.Info("Stopping gRPC server")
	s.health.Shutdown()

	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.closed = true
	s.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}

	s.grpcServer.GracefulStop()
}
