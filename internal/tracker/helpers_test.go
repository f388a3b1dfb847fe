package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neverlinked/package-tracking/internal/detection"
	"github.com/neverlinked/package-tracking/internal/geometry"
	"github.com/neverlinked/package-tracking/internal/zoneconfig"
)

var t0 = time.Date(2025, 5, 28, 15, 29, 37, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func box(x1, y1, x2, y2 float64) geometry.Box {
	return geometry.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// twoZoneConfig has zone 0 at (0,0)-(10,10) left of a vertical middle line
// at x=15, and zone 1 at (20,0)-(30,10) right of it. Points with x < 15 are
// on the true side.
func twoZoneConfig() *zoneconfig.Config {
	return &zoneconfig.Config{
		Zones: []zoneconfig.Zone{
			{Index: 0, Rect: box(0, 0, 10, 10)},
			{Index: 1, Rect: box(20, 0, 30, 10)},
		},
		MiddleLine: geometry.Line{A: geometry.Point{X: 15, Y: 0}, B: geometry.Point{X: 15, Y: 10}},
	}
}

func newEngine(t *testing.T, cfg *zoneconfig.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, opts...)
	require.NoError(t, err)

	return e
}

func containerEv(id int64, b geometry.Box, ts time.Time) detection.Event {
	return detection.Event{TrackID: id, Class: detection.ClassContainer, Box: b, Timestamp: ts}
}

// itemAt builds an item event whose centroid is (x, y).
func itemAt(id int64, x, y float64, ts time.Time) detection.Event {
	return detection.Event{TrackID: id, Class: detection.ClassItem, Box: box(x-1, y-1, x+1, y+1), Timestamp: ts}
}

func onlyKind(ds []Decision, kind DecisionKind) []Decision {
	var out []Decision
	for _, d := range ds {
		if d.Kind == kind {
			out = append(out, d)
		}
	}

	return out
}

func itemRow(t *testing.T, snap Snapshot, id int64) ItemRow {
	t.Helper()
	for _, r := range snap.Items {
		if r.ID == id {
			return r
		}
	}
	require.Failf(t, "item row missing", "id %d", id)

	return ItemRow{}
}

func containerRow(t *testing.T, snap Snapshot, id int64) ContainerRow {
	t.Helper()
	for _, r := range snap.Containers {
		if r.ID == id {
			return r
		}
	}
	require.Failf(t, "container row missing", "id %d", id)

	return ContainerRow{}
}
