// Package source adapts external detection streams into engine frames.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/neverlinked/package-tracking/internal/detection"
	"github.com/neverlinked/package-tracking/internal/logging"
)

// Source yields detection events in arrival order. Next blocks until an
// event is available and returns io.EOF once the stream is exhausted.
type Source interface {
	Name() string
	Next(ctx context.Context) (detection.Event, error)
	Close() error
}

// Config selects one of the stream adapters.
type Config struct {
	Type string `mapstructure:"type"`
	File struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"file"`
	Kafka KafkaConfig `mapstructure:"kafka"`
	Mqtt  MqttConfig  `mapstructure:"mqtt"`
	// Idle is the number of milliseconds without events after which a
	// pending frame is handed over.
	Idle int `mapstructure:"idle_ms"`
}

// New builds the adapter named by cfg.Type. The "http" type returns a
// ChannelSource fed by the API server.
func New(ctx context.Context, cfg Config, logger logging.Logger) (Source, error) {
	var src Source
	var err error

	switch cfg.Type {
	case "", "file":
		src, err = NewFile(cfg.File.Path, logger)
	case "kafka":
		src, err = NewKafka(cfg.Kafka, logger)
	case "mqtt":
		src, err = NewMqtt(ctx, cfg.Mqtt, logger)
	case "http":
		src = NewChannel("http", 0)
	default:
		err = fmt.Errorf("unknown source type %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	return src, nil
}

type result struct {
	ev  detection.Event
	err error
}

// Batcher groups consecutive events sharing a timestamp into frames.
type Batcher struct {
	src    Source
	idle   time.Duration
	logger logging.Logger

	frames chan []detection.Event
	err    error
}

// NewBatcher wraps src. When idle is positive a pending frame is emitted
// after that long without a new event; otherwise a frame is emitted only
// when a later timestamp arrives or the stream ends.
func NewBatcher(src Source, idle time.Duration, logger logging.Logger) *Batcher {
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Batcher{
		src:    src,
		idle:   idle,
		logger: logger,
		frames: make(chan []detection.Event),
	}
}

// Frames is closed once Run returns. Consumers must drain it until closed.
func (b *Batcher) Frames() <-chan []detection.Event {
	return b.frames
}

// Err reports why the stream stopped. It is nil on io.EOF or cancellation
// and only meaningful after Frames is closed.
func (b *Batcher) Err() error {
	return b.err
}

// Run reads the source until it ends or ctx is cancelled.
func (b *Batcher) Run(ctx context.Context) {
	defer close(b.frames)

	results := make(chan result)
	go func() {
		for {
			ev, err := b.src.Next(ctx)
			select {
			case results <- result{ev: ev, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var pending []detection.Event
	var idleC <-chan time.Time
	flush := func() {
		if len(pending) == 0 {
			return
		}
		b.frames <- pending
		pending = nil
		idleC = nil
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case r := <-results:
			if r.err != nil {
				flush()
				if !errors.Is(r.err, io.EOF) && !errors.Is(r.err, context.Canceled) {
					b.logger.Error("source stopped", "source", b.src.Name(), "error", r.err)
					b.err = r.err
				}
				return
			}
			if len(pending) > 0 && !pending[0].Timestamp.Equal(r.ev.Timestamp) {
				flush()
			}
			pending = append(pending, r.ev)
			if b.idle > 0 {
				idleC = time.After(b.idle)
			}

		case <-idleC:
			flush()
		}
	}
}
