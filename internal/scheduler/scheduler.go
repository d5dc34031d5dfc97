package scheduler

import (
	"context"

	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Config расписания в формате cron или @every
type Config struct {
	ExpirySchedule  string
	PendingSchedule string
}

// Scheduler cron с задачами сервиса
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	log    *logger.Logger
	config Config
}

func NewScheduler(jobs *Jobs, log *logger.Logger, cfg Config) *Scheduler {
	log = log.Named("scheduler")
	c := cron.New(cron.WithChain(
		cron.Recover(cron.PrintfLogger(log)),
		cron.SkipIfStillRunning(cron.PrintfLogger(log)),
	))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		log:    log,
		config: cfg,
	}
}

// Start регистрирует задачи и запускает cron. Неверное расписание - ошибка старта.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.ExpirySchedule, s.jobs.ExpireSubscriptions); err != nil {
		s.log.Errorw("Failed to schedule subscription expiry job", "schedule", s.config.ExpirySchedule, "error", err)
		return err
	}
	s.log.Infow("Scheduled subscription expiry job", "schedule", s.config.ExpirySchedule)

	if _, err := s.cron.AddFunc(s.config.PendingSchedule, s.jobs.FailStalePayments); err != nil {
		s.log.Errorw("Failed to schedule stale payment job", "schedule", s.config.PendingSchedule, "error", err)
		return err
	}
	s.log.Infow("Scheduled stale payment job", "schedule", s.config.PendingSchedule)

	s.cron.Start()
	return nil
}

// Stop дожидается завершения выполняющихся задач или ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
