package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LocationMetrics метрики пакетной записи координат
type LocationMetrics interface {
	PointsFlushed(n int)
	PointsDropped(reason string, n int)
	FlushFailed()
}

type locationMetrics struct {
	flushed  prometheus.Counter
	dropped  *prometheus.CounterVec
	failures prometheus.Counter
}

func NewLocationMetrics(registry *prometheus.Registry) LocationMetrics {
	factory := promauto.With(registry)
	return &locationMetrics{
		flushed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_points_flushed_total",
			Help:      "Location points written to storage",
		}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_points_dropped_total",
			Help:      "Location points discarded before storage",
		}, []string{"reason"}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_flush_failures_total",
			Help:      "Failed batch writes",
		}),
	}
}

func (m *locationMetrics) PointsFlushed(n int) { m.flushed.Add(float64(n)) }
func (m *locationMetrics) PointsDropped(reason string, n int) {
	m.dropped.WithLabelValues(reason).Add(float64(n))
}
func (m *locationMetrics) FlushFailed() { m.failures.Inc() }

type NopLocationMetrics struct{}

func (NopLocationMetrics) PointsFlushed(int)         {}
func (NopLocationMetrics) PointsDropped(string, int) {}
func (NopLocationMetrics) FlushFailed()              {}
