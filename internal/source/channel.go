package source

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/neverlinked/package-tracking/internal/detection"
)

// ErrClosed is returned by Push after Close.
var ErrClosed = errors.New("source closed")

// ChannelSource is fed in-process, by the HTTP ingest endpoint or tests.
type ChannelSource struct {
	name string
	ch   chan detection.Event

	mu       sync.RWMutex
	closed   bool
	done     chan struct{}
	doneOnce sync.Once
}

var _ Source = (*ChannelSource)(nil)

// NewChannel creates a source buffering up to size events.
func NewChannel(name string, size int) *ChannelSource {
	if size <= 0 {
		size = 1024
	}

	return &ChannelSource{
		name: name,
		ch:   make(chan detection.Event, size),
		done: make(chan struct{}),
	}
}

func (s *ChannelSource) Name() string {
	return s.name
}

// Push enqueues events in order, blocking while the buffer is full.
func (s *ChannelSource) Push(ctx context.Context, events ...detection.Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	for _, ev := range events {
		select {
		case s.ch <- ev:
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return ErrClosed
		}
	}

	return nil
}

// Next returns buffered events and io.EOF once closed and drained.
func (s *ChannelSource) Next(ctx context.Context) (detection.Event, error) {
	select {
	case ev, ok := <-s.ch:
		if !ok {
			return detection.Event{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return detection.Event{}, ctx.Err()
	}
}

// Close stops accepting events. Already buffered events are still returned
// by Next.
func (s *ChannelSource) Close() error {
	// Unblock pending pushes before waiting for the write lock.
	s.doneOnce.Do(func() { close(s.done) })

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)

	return nil
}
