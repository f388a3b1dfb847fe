// Package tracker is the assignment engine: it keeps live container state,
// detects zone occupancy transitions and resolves every item to a container
// exactly once.
//
// The engine is a single-writer reducer over an ordered event stream. An
// Engine instance owns all of its state for one processing run and is not
// safe for concurrent use.
package tracker

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/neverlinked/package-tracking/internal/detection"
	"github.com/neverlinked/package-tracking/internal/geometry"
	"github.com/neverlinked/package-tracking/internal/logging"
	"github.com/neverlinked/package-tracking/internal/metrics"
	"github.com/neverlinked/package-tracking/internal/zoneconfig"
)

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	threshold          float64
	distinctUnresolved bool
	logger             logging.Logger
	metrics            metrics.Collector
}

// WithThreshold overrides the containment ratio (default 0.9).
func WithThreshold(threshold float64) Option {
	return func(o *engineOptions) {
		o.threshold = threshold
	}
}

// WithDistinctUnresolved records items without a container as
// MethodUnresolved rather than MethodFallback.
func WithDistinctUnresolved(enabled bool) Option {
	return func(o *engineOptions) {
		o.distinctUnresolved = enabled
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

func WithMetrics(m metrics.Collector) Option {
	return func(o *engineOptions) {
		o.metrics = m
	}
}

// Engine owns the registry, occupancy map, assigner and result tables.
type Engine struct {
	cfg       *zoneconfig.Config
	threshold float64
	logger    logging.Logger
	metrics   metrics.Collector

	registry  *Registry
	occupancy *Occupancy
	assigner  *Assigner
	tables    *Tables

	lastApplied time.Time
}

// New validates cfg and returns an empty engine.
func New(cfg *zoneconfig.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", zoneconfig.ErrInvalidConfig)
	}
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	o := engineOptions{
		threshold: geometry.DefaultThreshold,
		logger:    logging.NewNop(),
		metrics:   metrics.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.threshold <= 0 || o.threshold > 1 {
		return nil, fmt.Errorf("containment threshold %v out of range (0, 1]", o.threshold)
	}

	return &Engine{
		cfg:       cfg,
		threshold: o.threshold,
		logger:    o.logger,
		metrics:   o.metrics,
		registry:  NewRegistry(cfg.MiddleLine),
		occupancy: NewOccupancy(),
		assigner:  NewAssigner(cfg, o.threshold, o.distinctUnresolved),
		tables:    NewTables(),
	}, nil
}

// Process applies a single event as a one-event frame.
func (e *Engine) Process(ev detection.Event) []Decision {
	return e.ProcessFrame([]detection.Event{ev})
}

// ProcessFrame applies the events of one frame. Container events are applied
// first in ascending track id, then the occupancy pass runs, then item events
// are resolved in arrival order. Invalid or out-of-order events produce an
// EventSkipped decision and leave state untouched.
func (e *Engine) ProcessFrame(events []detection.Event) []Decision {
	decisions := make([]Decision, 0, len(events))

	containers := make([]detection.Event, 0, len(events))
	items := make([]detection.Event, 0, len(events))
	for _, ev := range events {
		err := e.admit(ev)
		if err != nil {
			decisions = append(decisions, e.skip(ev, err))
			continue
		}
		if ev.Class == detection.ClassContainer {
			containers = append(containers, ev)
		} else {
			items = append(items, ev)
		}
	}

	slices.SortStableFunc(containers, func(a, b detection.Event) int {
		switch {
		case a.TrackID < b.TrackID:
			return -1
		case a.TrackID > b.TrackID:
			return 1
		default:
			return 0
		}
	})

	writers := make([]int64, 0, len(containers))
	for _, ev := range containers {
		decisions = append(decisions, e.upsertContainer(ev)...)
		if n := len(writers); n == 0 || writers[n-1] != ev.TrackID {
			writers = append(writers, ev.TrackID)
		}
	}
	if len(writers) > 0 {
		decisions = append(decisions, e.updateOccupancy(writers)...)
		e.metrics.ContainersLive(e.registry.Len())
	}

	for _, ev := range items {
		d, ok := e.assignItem(ev)
		if ok {
			decisions = append(decisions, d)
		}
	}

	return decisions
}

func (e *Engine) admit(ev detection.Event) error {
	err := ev.Validate()
	if err != nil {
		return err
	}
	if ev.Timestamp.Before(e.lastApplied) {
		return fmt.Errorf("%w: %s < %s", ErrOutOfOrder,
			ev.Timestamp.Format(time.RFC3339Nano), e.lastApplied.Format(time.RFC3339Nano))
	}
	e.lastApplied = ev.Timestamp

	return nil
}

func (e *Engine) skip(ev detection.Event, err error) Decision {
	outcome := "skipped"
	if errors.Is(err, ErrOutOfOrder) {
		outcome = "out_of_order"
	}
	e.metrics.EventProcessed(ev.Class.String(), outcome)
	e.logger.Debug("event skipped", "track_id", ev.TrackID, "class", ev.Class.String(), "error", err)

	return Decision{
		Kind:      EventSkipped,
		TrackID:   ev.TrackID,
		Class:     ev.Class,
		Timestamp: ev.Timestamp,
		Zone:      NoZone,
		Err:       err,
	}
}

func (e *Engine) upsertContainer(ev detection.Event) []Decision {
	e.metrics.EventProcessed(ev.Class.String(), "applied")

	created := e.registry.Upsert(ev.TrackID, ev.Box, ev.Centroid(), ev.Timestamp)
	if !created {
		return nil
	}

	d := Decision{
		Kind:      ContainerCreated,
		TrackID:   ev.TrackID,
		Class:     detection.ClassContainer,
		Timestamp: ev.Timestamp,
		Zone:      NoZone,
	}
	e.tables.Apply(d)
	e.logger.Debug("container created", "container", ev.TrackID)

	return []Decision{d}
}

// updateOccupancy runs once per frame over the containers detected in it.
// Writers are visited in ascending id against the running occupant, so every
// contained writer that differs from it records a transition and the highest
// contained id ends up occupying the zone.
func (e *Engine) updateOccupancy(writers []int64) []Decision {
	var decisions []Decision

	for _, z := range e.cfg.Zones {
		for _, id := range writers {
			c, _ := e.registry.Get(id)
			if !geometry.IsContained(c.Box, z.Rect, e.threshold) {
				continue
			}

			current, occupied := e.occupancy.Occupant(z.Index)
			if occupied && current == c.ID {
				continue
			}

			e.registry.UpdateZone(c.ID, z.Index, c.LastSeen)
			e.occupancy.Set(z.Index, c.ID)

			d := Decision{
				Kind:      ZoneEntered,
				TrackID:   c.ID,
				Class:     detection.ClassContainer,
				Timestamp: c.LastSeen,
				Zone:      z.Index,
			}
			e.tables.Apply(d)
			e.metrics.ZoneTransition(z.Index)
			e.logger.Debug("zone occupancy changed", "zone", z.Index, "container", c.ID)
			decisions = append(decisions, d)
		}
	}

	return decisions
}

func (e *Engine) assignItem(ev detection.Event) (Decision, bool) {
	res, ok := e.assigner.Assign(e.registry, ev.TrackID, ev.Timestamp, ev.Centroid())
	if !ok {
		e.metrics.EventProcessed(ev.Class.String(), "duplicate")
		return Decision{}, false
	}
	e.metrics.EventProcessed(ev.Class.String(), "applied")

	d := Decision{
		Kind:        ItemResolved,
		TrackID:     ev.TrackID,
		Class:       detection.ClassItem,
		Timestamp:   ev.Timestamp,
		Zone:        res.Zone,
		ContainerID: res.Row.ContainerID,
		Method:      res.Row.Method,
	}
	e.tables.Apply(d)
	e.metrics.ItemResolved(string(res.Row.Method))

	if res.Row.Resolved() {
		e.logger.Debug("item resolved", "item", ev.TrackID, "container", *res.Row.ContainerID, "method", res.Row.Method)
	} else {
		e.logger.Warn("item left without container", "item", ev.TrackID, "zone", res.Zone, "method", res.Row.Method)
	}

	return d, true
}

// Snapshot returns the deduplicated result tables.
func (e *Engine) Snapshot() Snapshot {
	return e.tables.Snapshot()
}

// Container returns the live state of a container.
func (e *Engine) Container(id int64) (Container, bool) {
	return e.registry.Get(id)
}

// Occupant returns the container currently occupying zone.
func (e *Engine) Occupant(zone int) (int64, bool) {
	return e.occupancy.Occupant(zone)
}

// Zones returns the configured zones in priority order.
func (e *Engine) Zones() []zoneconfig.Zone {
	return slices.Clone(e.cfg.Zones)
}

// MiddleLine returns the configured dividing line.
func (e *Engine) MiddleLine() geometry.Line {
	return e.cfg.MiddleLine
}

// Threshold is the containment ratio in use.
func (e *Engine) Threshold() float64 {
	return e.threshold
}
