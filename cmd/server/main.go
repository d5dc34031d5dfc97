package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okdriver/okdriver-backend/config"
	"github.com/okdriver/okdriver-backend/internal/app"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.INFO).Fatal("Failed to load configuration: %v", err)
	}

	log := initLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Infow("OKDriver backend starting up", "env", cfg.App.Env, "port", cfg.Server.Port, "grpc_port", cfg.GRPC.Port)

	// Контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize application: %v", err)
	}

	if err := application.Run(ctx); err != nil {
		log.Errorw("Application stopped with error", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}

func initLogger(cfg *config.Config) *logger.Logger {
	level := logger.ParseLevel(cfg.Log.Level)
	if cfg.App.IsProduction() {
		return logger.NewProduction(level)
	}
	return logger.New(level)
}
