package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RealtimeMetrics интерфейс для метрик websocket хаба
type RealtimeMetrics interface {
	ConnectionOpened()
	ConnectionClosed()
	MessageDelivered(event string)
	SlowConsumerDropped()
}

type realtimeMetrics struct {
	connections prometheus.Gauge
	delivered   *prometheus.CounterVec
	dropped     prometheus.Counter
}

func NewRealtimeMetrics(registry *prometheus.Registry) RealtimeMetrics {
	factory := promauto.With(registry)
	return &realtimeMetrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Open websocket connections",
		}),
		delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_messages_delivered_total",
			Help:      "Messages queued to websocket connections",
		}, []string{"event"}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_slow_consumers_dropped_total",
			Help:      "Connections closed because their send queue was full",
		}),
	}
}

func (m *realtimeMetrics) ConnectionOpened()             { m.connections.Inc() }
func (m *realtimeMetrics) ConnectionClosed()             { m.connections.Dec() }
func (m *realtimeMetrics) MessageDelivered(event string) { m.delivered.WithLabelValues(event).Inc() }
func (m *realtimeMetrics) SlowConsumerDropped()          { m.dropped.Inc() }

// NopRealtimeMetrics пустая реализация
type NopRealtimeMetrics struct{}

func (NopRealtimeMetrics) ConnectionOpened()       {}
func (NopRealtimeMetrics) ConnectionClosed()       {}
func (NopRealtimeMetrics) MessageDelivered(string) {}
func (NopRealtimeMetrics) SlowConsumerDropped()    {}
