// Package sink hands finalized result tables to external record stores.
package sink

import (
	"context"
	"errors"

	"github.com/neverlinked/package-tracking/internal/tracker"
)

// Sink persists a snapshot of the result tables. Write may be called many
// times with growing snapshots and must be idempotent per row.
type Sink interface {
	Name() string
	Write(ctx context.Context, runId string, snap tracker.Snapshot) error
	Close() error
}

// Multi fans a snapshot out to several sinks, continuing past failures.
type Multi []Sink

var _ Sink = (Multi)(nil)

func (m Multi) Name() string {
	return "multi"
}

func (m Multi) Write(ctx context.Context, runId string, snap tracker.Snapshot) error {
	var errs []error
	for _, s := range m {
		err := s.Write(ctx, runId, snap)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		err := s.Close()
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
