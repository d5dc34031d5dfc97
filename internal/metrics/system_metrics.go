package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const sampleTimeout = 2 * time.Second

// Sampler снимает текущее значение одного показателя состояния
type Sampler func(ctx context.Context) (float64, error)

// SystemMetrics периодически снимает показатели процесса и компонентов:
// горутины, память, очередь пакетной записи координат, комнаты хаба
type SystemMetrics interface {
	// Track регистрирует gauge okdriver_state_<name>, значение берется из sample на каждом тике
	Track(name, help string, sample Sampler)
	Sample(ctx context.Context)
	StartRecording(interval time.Duration)
	Stop()
}

type trackedGauge struct {
	name   string
	gauge  prometheus.Gauge
	sample Sampler
}

type systemMetrics struct {
	log     *logger.Logger
	factory promauto.Factory

	mu      sync.Mutex
	tracked []trackedGauge
	failing map[string]bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSystemMetrics создает метрики с показателями рантайма Go
func NewSystemMetrics(registry *prometheus.Registry, log *logger.Logger) SystemMetrics {
	m := &systemMetrics{
		log:     log.Named("system-metrics"),
		factory: promauto.With(registry),
		failing: make(map[string]bool),
		stopCh:  make(chan struct{}),
	}

	m.Track("goroutines", "Current number of goroutines", func(context.Context) (float64, error) {
		return float64(runtime.NumGoroutine()), nil
	})

	var memStats runtime.MemStats
	var memMu sync.Mutex
	readMem := func(pick func(*runtime.MemStats) uint64) Sampler {
		return func(context.Context) (float64, error) {
			memMu.Lock()
			defer memMu.Unlock()
			runtime.ReadMemStats(&memStats)
			return float64(pick(&memStats)), nil
		}
	}
	m.Track("memory_heap_alloc_bytes", "Bytes of allocated heap objects", readMem(func(s *runtime.MemStats) uint64 { return s.HeapAlloc }))
	m.Track("memory_system_bytes", "Total memory obtained from the OS", readMem(func(s *runtime.MemStats) uint64 { return s.Sys }))
	m.Track("gc_cycles", "Completed GC cycles", readMem(func(s *runtime.MemStats) uint64 { return uint64(s.NumGC) }))

	return m
}

func (m *systemMetrics) Track(name, help string, sample Sampler) {
	gauge := m.factory.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "state",
		Name:      name,
		Help:      help,
	})

	m.mu.Lock()
	m.tracked = append(m.tracked, trackedGauge{name: name, gauge: gauge, sample: sample})
	m.mu.Unlock()
}

// Sample обновляет все gauge. Ошибка показателя оставляет прежнее значение
// и логируется один раз до восстановления.
func (m *systemMetrics) Sample(ctx context.Context) {
	m.mu.Lock()
	tracked := make([]trackedGauge, len(m.tracked))
	copy(tracked, m.tracked)
	m.mu.Unlock()

	for _, t := range tracked {
		value, err := t.sample(ctx)

		m.mu.Lock()
		wasFailing := m.failing[t.name]
		m.failing[t.name] = err != nil
		m.mu.Unlock()

		if err != nil {
			if !wasFailing {
				m.log.Warnw("Failed to sample state metric", "metric", t.name, "error", err)
			}
			continue
		}
		if wasFailing {
			m.log.Infow("State metric recovered", "metric", t.name)
		}
		t.gauge.Set(value)
	}
}

// StartRecording снимает показатели сразу и затем с заданным интервалом
func (m *systemMetrics) StartRecording(interval time.Duration) {
	m.sampleOnce()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.sampleOnce()
			case <-m.stopCh:
				return
			}
		}
	}()
	m.log.Infow("System metrics recording started", "interval", interval)
}

func (m *systemMetrics) sampleOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), sampleTimeout)
	defer cancel()
	m.Sample(ctx)
}

// Stop останавливает запись метрик
func (m *systemMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.log.Info("System metrics recording stopped")
	})
}
