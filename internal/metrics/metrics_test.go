package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	var c Collector = NewNop()

	require.NotPanics(t, func() {
		c.EventProcessed("item", "applied")
		c.ItemResolved("zone")
		c.ZoneTransition(2)
		c.ContainersLive(5)
		c.SinkFlush("csv", errors.New("disk full"))
	})
}

func TestPrometheus(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.EventProcessed("container", "applied")
	p.EventProcessed("container", "applied")
	p.EventProcessed("item", "skipped")
	p.ItemResolved("fallback")
	p.ZoneTransition(1)
	p.ContainersLive(3)
	p.SinkFlush("db", nil)
	p.SinkFlush("db", errors.New("gone"))

	assert.InDelta(t, 2.0, testutil.ToFloat64(p.events.WithLabelValues("container", "applied")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(p.events.WithLabelValues("item", "skipped")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(p.items.WithLabelValues("fallback")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(p.transitions.WithLabelValues("1")), 0)
	assert.InDelta(t, 3.0, testutil.ToFloat64(p.containers), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(p.flushes.WithLabelValues("db", "failure")), 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "test_engine_events_total")
	assert.Contains(t, names, "test_sink_flushes_total")
}
