package trackerd

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/neverlinked/package-tracking/internal/logging"
	"github.com/neverlinked/package-tracking/internal/metrics"
	"github.com/neverlinked/package-tracking/internal/sink"
	"github.com/neverlinked/package-tracking/internal/tracker"
)

// FlushAgent periodically hands a snapshot of the result tables to every
// sink.
type FlushAgent struct {
	RunId    string
	Interval int
	Sinks    []sink.Sink
	Snapshot func() tracker.Snapshot
	Metrics  metrics.Collector
	Logger   logging.Logger

	intvlTicker *time.Ticker
	wg          *sync.WaitGroup
}

// Flush writes one snapshot to each sink. A failing sink does not stop the
// others.
func (s *FlushAgent) Flush(ctx context.Context) error {
	snap := s.Snapshot()

	var errs []error
	for _, sk := range s.Sinks {
		err := sk.Write(ctx, s.RunId, snap)
		s.Metrics.SinkFlush(sk.Name(), err)
		if err != nil {
			s.Logger.Error("sink flush failed", "sink", sk.Name(), "error", err)
			errs = append(errs, err)
			continue
		}
		s.Logger.Debug("sink flushed", "sink", sk.Name(),
			"containers", len(snap.Containers), "items", len(snap.Items))
	}

	return errors.Join(errs...)
}

func (s *FlushAgent) finish() {
	if s.intvlTicker != nil {
		s.intvlTicker.Stop()
	}

	if s.wg != nil {
		s.wg.Done()
	}

	s.Logger.Info("flush agent finished")

	return
}

// Run flushes every Interval seconds until killSig is closed. The caller adds
// to wg before starting it. With a zero Interval it returns at once and only
// the terminal flush happens.
func (s *FlushAgent) Run(wg *sync.WaitGroup, killSig chan struct{}) {
	s.wg = wg
	defer s.finish()

	if s.Interval <= 0 || len(s.Sinks) == 0 {
		return
	}

	s.Logger.Info("start flush agent", "interval", s.Interval, "sinks", len(s.Sinks))
	s.intvlTicker = time.NewTicker(time.Duration(s.Interval) * time.Second)

	for {
		select {
		case <-killSig:
			return
		case <-s.intvlTicker.C:
			s.Flush(context.Background())
		}
	}
}
