package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/internal/metrics"
	"github.com/okdriver/okdriver-backend/internal/repository"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

const (
	DefaultLocationBatchSize     = 50
	DefaultLocationFlushInterval = 5 * time.Second
)

// LocationBatcher копит точки по машинам и пишет их пачками:
// по достижении размера пачки или по таймеру.
type LocationBatcher struct {
	repo      repository.LocationRepository
	metrics   metrics.LocationMetrics
	log       *logger.Logger
	batchSize int
	interval  time.Duration

	mu      sync.Mutex
	buffers map[uuid.UUID][]domain.VehicleLocation

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

func NewLocationBatcher(repo repository.LocationRepository, m metrics.LocationMetrics, log *logger.Logger, batchSize int, interval time.Duration) *LocationBatcher {
	if batchSize <= 0 {
		batchSize = DefaultLocationBatchSize
	}
	if interval <= 0 {
		interval = DefaultLocationFlushInterval
	}
	if m == nil {
		m = metrics.NopLocationMetrics{}
	}
	return &LocationBatcher{
		repo:      repo,
		metrics:   m,
		log:       log.Named("location-batcher"),
		batchSize: batchSize,
		interval:  interval,
		buffers:   make(map[uuid.UUID][]domain.VehicleLocation),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start запускает периодический сброс
func (b *LocationBatcher) Start() {
	b.startOnce.Do(func() {
		go b.loop()
	})
}

func (b *LocationBatcher) loop() {
	defer close(b.done)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.FlushAll(context.Background())
		case <-b.stop:
			return
		}
	}
}

// Add добавляет точку. Полная пачка пишется сразу в вызывающей горутине.
func (b *LocationBatcher) Add(ctx context.Context, point domain.VehicleLocation) {
	b.mu.Lock()
	buf := append(b.buffers[point.VehicleID], point)
	if len(buf) < b.batchSize {
		b.buffers[point.VehicleID] = buf
		b.mu.Unlock()
		return
	}
	delete(b.buffers, point.VehicleID)
	b.mu.Unlock()

	b.flush(ctx, point.VehicleID, buf)
}

// Pending число точек в буферах
func (b *LocationBatcher) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, buf := range b.buffers {
		n += len(buf)
	}
	return n
}

// FlushAll сбрасывает все буферы
func (b *LocationBatcher) FlushAll(ctx context.Context) {
	b.mu.Lock()
	pending := b.buffers
	b.buffers = make(map[uuid.UUID][]domain.VehicleLocation, len(pending))
	b.mu.Unlock()

	for vehicleID, points := range pending {
		b.flush(ctx, vehicleID, points)
	}
}

func (b *LocationBatcher) flush(ctx context.Context, vehicleID uuid.UUID, points []domain.VehicleLocation) {
	if len(points) == 0 {
		return
	}

	err := b.repo.SaveBatch(ctx, vehicleID, points)
	switch {
	case err == nil:
		b.metrics.PointsFlushed(len(points))
		b.log.Debugw("Location batch stored", "vehicleID", vehicleID, "points", len(points))
	case errors.Is(err, repository.ErrNotFound):
		b.metrics.PointsDropped("unknown_vehicle", len(points))
		b.log.Warnw("Dropping locations of unknown vehicle", "vehicleID", vehicleID, "points", len(points))
	default:
		b.metrics.FlushFailed()
		b.log.Errorw("Failed to store location batch", "vehicleID", vehicleID, "points", len(points), "error", err)
		b.requeue(vehicleID, points)
	}
}

// requeue возвращает неудачную пачку в буфер, сохраняя не больше 2x размера пачки самых свежих точек
func (b *LocationBatcher) requeue(vehicleID uuid.UUID, points []domain.VehicleLocation) {
	b.mu.Lock()
	defer b.mu.Unlock()

	merged := append(append([]domain.VehicleLocation{}, points...), b.buffers[vehicleID]...)
	if limit := 2 * b.batchSize; len(merged) > limit {
		b.metrics.PointsDropped("buffer_full", len(merged)-limit)
		merged = merged[len(merged)-limit:]
	}
	b.buffers[vehicleID] = merged
}

// Stop останавливает таймер и сбрасывает остаток
func (b *LocationBatcher) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.startOnce.Do(func() { close(b.done) })
		<-b.done
		b.FlushAll(ctx)
	})
}
