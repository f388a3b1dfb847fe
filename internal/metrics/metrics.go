// Package metrics records operational counters for the tracker.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector is implemented by every metrics backend. Calls must not block.
type Collector interface {
	// EventProcessed counts one detection event by class and outcome
	// (applied, skipped, out_of_order).
	EventProcessed(class string, outcome string)
	// ItemResolved counts finalized items by assignment method.
	ItemResolved(method string)
	// ZoneTransition counts occupancy changes per zone index.
	ZoneTransition(zone int)
	// ContainersLive reports the registry size.
	ContainersLive(n int)
	// SinkFlush counts snapshot handoffs per sink.
	SinkFlush(sink string, err error)
}

// Nop discards all metrics.
type Nop struct{}

var _ Collector = (*Nop)(nil)

func NewNop() *Nop {
	return &Nop{}
}

func (n *Nop) EventProcessed(_ string, _ string) {}
func (n *Nop) ItemResolved(_ string)             {}
func (n *Nop) ZoneTransition(_ int)              {}
func (n *Nop) ContainersLive(_ int)              {}
func (n *Nop) SinkFlush(_ string, _ error)       {}

// Prometheus implements Collector backed by client_golang. Metrics are
// registered lazily on first use.
type Prometheus struct {
	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	events      *prometheus.CounterVec
	items       *prometheus.CounterVec
	transitions *prometheus.CounterVec
	containers  prometheus.Gauge
	flushes     *prometheus.CounterVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus uses prometheus.DefaultRegisterer when reg is nil and the
// "package_tracking" namespace when namespace is empty.
func NewPrometheus(reg prometheus.Registerer, namespace string) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "package_tracking"
	}

	return &Prometheus{reg: reg, namespace: namespace}
}

func (p *Prometheus) ensureRegistered() {
	p.once.Do(func() {
		p.events = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Detection events seen by class and outcome.",
		}, []string{"class", "outcome"})

		p.items = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "items_resolved_total",
			Help:      "Items finalized by assignment method.",
		}, []string{"method"})

		p.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "zone_transitions_total",
			Help:      "Zone occupancy changes by zone index.",
		}, []string{"zone"})

		p.containers = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "engine",
			Name:      "containers_live",
			Help:      "Containers held in the registry.",
		})

		p.flushes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "sink",
			Name:      "flushes_total",
			Help:      "Snapshot handoffs by sink and result.",
		}, []string{"sink", "result"})

		p.reg.MustRegister(p.events, p.items, p.transitions, p.containers, p.flushes)
	})
}

func (p *Prometheus) EventProcessed(class string, outcome string) {
	p.ensureRegistered()
	p.events.WithLabelValues(class, outcome).Inc()
}

func (p *Prometheus) ItemResolved(method string) {
	p.ensureRegistered()
	p.items.WithLabelValues(method).Inc()
}

func (p *Prometheus) ZoneTransition(zone int) {
	p.ensureRegistered()
	p.transitions.WithLabelValues(strconv.Itoa(zone)).Inc()
}

func (p *Prometheus) ContainersLive(n int) {
	p.ensureRegistered()
	p.containers.Set(float64(n))
}

func (p *Prometheus) SinkFlush(sink string, err error) {
	p.ensureRegistered()
	result := "success"
	if err != nil {
		result = "failure"
	}
	p.flushes.WithLabelValues(sink, result).Inc()
}
