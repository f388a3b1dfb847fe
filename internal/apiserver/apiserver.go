// Package apiserver exposes the result tables and zone occupancy over HTTP
// and accepts signed detection batches.
package apiserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/neverlinked/package-tracking/internal/detection"
	"github.com/neverlinked/package-tracking/internal/geometry"
	"github.com/neverlinked/package-tracking/internal/logging"
	"github.com/neverlinked/package-tracking/internal/tracker"
	"github.com/neverlinked/package-tracking/internal/zoneconfig"
)

// Tracker is the read side of the engine. Implementations must be safe for
// concurrent use.
type Tracker interface {
	Snapshot() tracker.Snapshot
	Zones() []zoneconfig.Zone
	MiddleLine() geometry.Line
	Occupant(zone int) (int64, bool)
}

// Ingester accepts events for the single-writer loop.
type Ingester interface {
	Push(ctx context.Context, events ...detection.Event) error
}

type ApiServer struct {
	cfg      Config
	tracker  Tracker
	ingest   Ingester
	gatherer prometheus.Gatherer
	logger   logging.Logger
}

// New builds the server. ingest and gatherer may be nil, in which case
// POST /detection and /metrics are not served.
func New(cfg Config, t Tracker, ingest Ingester, gatherer prometheus.Gatherer, logger logging.Logger) *ApiServer {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &ApiServer{
		cfg:      cfg,
		tracker:  t,
		ingest:   ingest,
		gatherer: gatherer,
		logger:   logger,
	}
}

// Handler builds the router.
func (s *ApiServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if s.cfg.Debug {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if s.cfg.BasicAuth {
		userdb := make(map[string]string)
		for _, v := range s.cfg.Users {
			userdb[v.User] = v.Password
		}
		r.Use(middleware.BasicAuth(s.cfg.ServerName, userdb))
	}

	r.Route("/container", func(r chi.Router) {
		r.Mount("/", s.apiContainerRouter())
	})

	r.Route("/item", func(r chi.Router) {
		r.Mount("/", s.apiItemRouter())
	})

	r.Route("/zone", func(r chi.Router) {
		r.Mount("/", s.apiZoneRouter())
	})

	if s.ingest != nil {
		r.Route("/detection", func(r chi.Router) {
			r.Mount("/", s.apiDetectionRouter())
		})
	}

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *ApiServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "listen", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return err
	}

	err = <-errCh
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	return err
}
