package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okdriver/okdriver-backend/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
)

func gaugeValue(t *testing.T, registry *prometheus.Registry, name string) (float64, bool) {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()[0].GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func TestTrackedGaugesAreSampled(t *testing.T) {
	registry := NewRegistry()
	m := NewSystemMetrics(registry, logger.NewNop())

	depth := 7.0
	m.Track("location_pending_points", "pending", func(context.Context) (float64, error) { return depth, nil })
	m.Sample(context.Background())

	if v, ok := gaugeValue(t, registry, "okdriver_state_location_pending_points"); !ok || v != 7 {
		t.Fatalf("pending gauge = %v (present %v), want 7", v, ok)
	}
	if v, ok := gaugeValue(t, registry, "okdriver_state_goroutines"); !ok || v < 1 {
		t.Fatalf("goroutines gauge = %v (present %v)", v, ok)
	}

	depth = 3
	m.Sample(context.Background())
	if v, _ := gaugeValue(t, registry, "okdriver_state_location_pending_points"); v != 3 {
		t.Fatalf("pending gauge = %v after resample, want 3", v)
	}
}

func TestFailingSamplerKeepsLastValue(t *testing.T) {
	registry := NewRegistry()
	m := NewSystemMetrics(registry, logger.NewNop())

	var fail bool
	m.Track("realtime_rooms", "rooms", func(context.Context) (float64, error) {
		if fail {
			return 0, errors.New("hub stopped")
		}
		return 4, nil
	})
	m.Sample(context.Background())
	fail = true
	m.Sample(context.Background())

	if v, _ := gaugeValue(t, registry, "okdriver_state_realtime_rooms"); v != 4 {
		t.Fatalf("rooms gauge = %v, want last good value 4", v)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	m := NewSystemMetrics(NewRegistry(), logger.NewNop())
	m.StartRecording(time.Hour)
	m.Stop()
	m.Stop()
}
