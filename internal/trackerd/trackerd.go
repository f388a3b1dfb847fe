// Package trackerd wires a detection source, the assignment engine and the
// result sinks into a single-writer daemon.
package trackerd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/neverlinked/package-tracking/internal/apiserver"
	"github.com/neverlinked/package-tracking/internal/detection"
	"github.com/neverlinked/package-tracking/internal/geometry"
	"github.com/neverlinked/package-tracking/internal/logging"
	"github.com/neverlinked/package-tracking/internal/metrics"
	"github.com/neverlinked/package-tracking/internal/sink"
	"github.com/neverlinked/package-tracking/internal/source"
	"github.com/neverlinked/package-tracking/internal/tracker"
	"github.com/neverlinked/package-tracking/internal/zoneconfig"
)

type Tracker struct {
	cfg    Config
	runId  string
	logger *logging.SlogLogger

	registry *prometheus.Registry
	metrics  *metrics.Prometheus

	// mu guards engine; only Run's loop takes the write lock.
	mu     sync.RWMutex
	engine *tracker.Engine

	src     source.Source
	sinks   sink.Multi
	api     *apiserver.ApiServer
	flusher *FlushAgent
	wg      *sync.WaitGroup
}

var _ apiserver.Tracker = (*Tracker)(nil)

func New(cfg Config) (*Tracker, error) {
	var err error

	// Base Initialization
	r := &Tracker{
		cfg:      cfg,
		runId:    uuid.NewString(),
		registry: prometheus.NewRegistry(),
		wg:       &sync.WaitGroup{},
	}

	r.logger, err = logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	r.logger = r.logger.With("run_id", r.runId)

	r.registry.MustRegister(collectors.NewGoCollector())
	r.metrics = metrics.NewPrometheus(r.registry, "")

	// Engine Initialization
	if cfg.Zones.File == "" {
		return nil, fmt.Errorf("missing zones.file")
	}
	zones, err := zoneconfig.Load(cfg.Zones.File)
	if err != nil {
		return nil, err
	}

	threshold := cfg.Zones.Threshold
	if threshold == 0 {
		threshold = geometry.DefaultThreshold
	}
	r.engine, err = tracker.New(zones,
		tracker.WithThreshold(threshold),
		tracker.WithDistinctUnresolved(cfg.Engine.DistinctUnresolved),
		tracker.WithLogger(r.logger.With("component", "engine")),
		tracker.WithMetrics(r.metrics),
	)
	if err != nil {
		return nil, err
	}

	// Sink Initialization
	if cfg.Sink.Csv.Enabled {
		csvSink, err := sink.NewCsv(cfg.Sink.Csv.Dir)
		if err != nil {
			return nil, err
		}
		r.sinks = append(r.sinks, csvSink)
	}

	if cfg.Db.Driver != "" {
		dbSink, err := sink.NewDb(cfg.Db)
		if err != nil {
			r.sinks.Close()
			return nil, err
		}
		r.sinks = append(r.sinks, dbSink)
	}

	if len(r.sinks) == 0 {
		r.logger.Warn("no sink configured, results are only kept in memory")
	}

	// Source Initialization
	r.src, err = source.New(context.Background(), cfg.Source, r.logger.With("component", "source"))
	if err != nil {
		r.sinks.Close()
		return nil, err
	}

	// API Initialization
	if cfg.Http.Listen != "" {
		var ingest apiserver.Ingester
		if ch, ok := r.src.(*source.ChannelSource); ok {
			ingest = ch
		}
		r.api = apiserver.New(cfg.Http, r, ingest, r.registry, r.logger.With("component", "api"))
	}

	r.flusher = &FlushAgent{
		RunId:    r.runId,
		Interval: cfg.Sink.Interval,
		Sinks:    r.sinks,
		Snapshot: r.Snapshot,
		Metrics:  r.metrics,
		Logger:   r.logger.With("component", "flush"),
	}

	r.logger.Info("tracker initialized", "zones", len(zones.Zones), "threshold", threshold,
		"source", r.src.Name(), "sinks", len(r.sinks))

	return r, nil
}

// RunId identifies the rows this process writes.
func (s *Tracker) RunId() string {
	return s.runId
}

func (s *Tracker) Snapshot() tracker.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.Snapshot()
}

func (s *Tracker) Zones() []zoneconfig.Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.Zones()
}

func (s *Tracker) MiddleLine() geometry.Line {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.MiddleLine()
}

func (s *Tracker) Occupant(zone int) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.engine.Occupant(zone)
}

func (s *Tracker) apply(frame []detection.Event) {
	s.mu.Lock()
	decisions := s.engine.ProcessFrame(frame)
	s.mu.Unlock()

	if !s.cfg.Engine.Debug {
		return
	}
	for _, d := range decisions {
		var containerId any
		if d.ContainerID != nil {
			containerId = *d.ContainerID
		}
		s.logger.Debug("decision", "kind", d.Kind.String(), "track_id", d.TrackID,
			"zone", d.Zone, "container_id", containerId, "method", string(d.Method), "error", d.Err)
	}
}

// Run consumes the source until it is exhausted or a kill signal arrives,
// then writes a final snapshot to every sink.
func (s *Tracker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// In-process queues are closed so buffered events are still applied;
	// every other source is cancelled.
	killSig := make(chan os.Signal, 1)
	signal.Notify(killSig, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(killSig)
	go func() {
		select {
		case <-killSig:
			s.logger.Info("caught kill signal, shutting down")
			if ch, ok := s.src.(*source.ChannelSource); ok {
				ch.Close()
				return
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	// Launch
	var apiWg sync.WaitGroup
	if s.api != nil {
		apiWg.Add(1)
		go func() {
			defer apiWg.Done()
			err := s.api.Run(ctx)
			if err != nil {
				s.logger.Error("http server failed", "error", err)
			}
		}()
	}

	flushSig := make(chan struct{})
	s.wg.Add(1)
	go s.flusher.Run(s.wg, flushSig)

	batcher := source.NewBatcher(s.src, time.Duration(s.cfg.Source.Idle)*time.Millisecond, s.logger)
	go batcher.Run(ctx)

	frames := 0
	for frame := range batcher.Frames() {
		s.apply(frame)
		frames++
	}
	s.logger.Info("source drained", "frames", frames)

	close(flushSig)
	s.wg.Wait()

	var errs []error
	err := batcher.Err()
	if err != nil {
		errs = append(errs, err)
	}

	err = s.flusher.Flush(context.Background())
	if err != nil {
		errs = append(errs, fmt.Errorf("final flush: %w", err))
	}

	cancel()
	apiWg.Wait()

	err = s.src.Close()
	if err != nil {
		s.logger.Warn("failed to close source", "error", err)
	}
	err = s.sinks.Close()
	if err != nil {
		errs = append(errs, err)
	}

	snap := s.Snapshot()
	s.logger.Info("all threads exited", "containers", len(snap.Containers), "items", len(snap.Items))

	return errors.Join(errs...)
}
