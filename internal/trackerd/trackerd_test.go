package trackerd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neverlinked/package-tracking/internal/detection"
	"github.com/neverlinked/package-tracking/internal/geometry"
	"github.com/neverlinked/package-tracking/internal/logging"
	"github.com/neverlinked/package-tracking/internal/metrics"
	"github.com/neverlinked/package-tracking/internal/sink"
	"github.com/neverlinked/package-tracking/internal/source"
	"github.com/neverlinked/package-tracking/internal/tracker"
)

const zonesJSON = `{
	"worker_zones": [[[0, 0], [10, 10]], [[30, 0], [20, 10]]],
	"middle_line": [[15, 0], [15, 10]]
}`

func ev(id int64, class string, bbox [4]float64, sec int) string {
	return fmt.Sprintf(`{"track_id":%d,"class":%q,"bbox":[%g,%g,%g,%g],"timestamp":%d}`,
		id, class, bbox[0], bbox[1], bbox[2], bbox[3], 1748444400+sec)
}

func testConfig(t *testing.T, events []string) Config {
	t.Helper()
	dir := t.TempDir()

	zonesFile := filepath.Join(dir, "zone_setup.json")
	require.NoError(t, os.WriteFile(zonesFile, []byte(zonesJSON), 0o600))

	eventsFile := filepath.Join(dir, "events.jsonl")
	require.NoError(t, os.WriteFile(eventsFile, []byte(strings.Join(events, "\n")+"\n"), 0o600))

	cfg := Config{}
	cfg.Zones.File = zonesFile
	cfg.Engine.Debug = true
	cfg.Source.Type = "file"
	cfg.Source.File.Path = eventsFile
	cfg.Sink.Csv.Enabled = true
	cfg.Sink.Csv.Dir = filepath.Join(dir, "out")
	cfg.Db.Driver = "sqlite"
	cfg.Db.Sqlite.Path = filepath.Join(dir, "tracking.db")
	cfg.Log.Level = "error"

	return cfg
}

func TestRun_FileToSinks(t *testing.T) {
	cfg := testConfig(t, []string{
		ev(1, "container", [4]float64{1, 1, 9, 9}, 0),
		ev(2, "container", [4]float64{21, 1, 29, 9}, 0),
		ev(10, "item", [4]float64{4, 4, 6, 6}, 1),
		ev(3, "container", [4]float64{40, 40, 50, 50}, 1),
		ev(1, "container", [4]float64{21, 1, 29, 9}, 2),
		ev(11, "item", [4]float64{24, 4, 26, 6}, 3),
		ev(12, "item", [4]float64{50, 50, 52, 52}, 3),
		"not json",
	})

	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	snap, err := sink.ReadCsv(cfg.Sink.Csv.Dir)
	require.NoError(t, err)

	// Container 3 never enters a zone.
	require.Len(t, snap.Containers, 3)
	assert.Equal(t, int64(1), snap.Containers[0].ID)
	require.NotNil(t, snap.Containers[0].ZoneIndex)
	assert.Equal(t, 1, *snap.Containers[0].ZoneIndex, "container 1 moved into zone 1")
	require.NotNil(t, snap.Containers[1].ZoneIndex)
	assert.Equal(t, 1, *snap.Containers[1].ZoneIndex)
	assert.Nil(t, snap.Containers[2].ZoneIndex)

	require.Len(t, snap.Items, 3)
	require.NotNil(t, snap.Items[0].ContainerID)
	assert.Equal(t, int64(1), *snap.Items[0].ContainerID)
	assert.Equal(t, tracker.MethodZone, snap.Items[0].Method)
	require.NotNil(t, snap.Items[1].ContainerID)
	assert.Equal(t, tracker.MethodZone, snap.Items[1].Method)

	db, err := sink.NewDb(cfg.Db)
	require.NoError(t, err)
	defer db.Close()

	boxes, components, err := db.LoadRun(context.Background(), s.RunId())
	require.NoError(t, err)
	assert.Len(t, boxes, 3)
	assert.Len(t, components, 3)
}

func TestRun_DrainsQueueOnClose(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Source.Type = "http"
	cfg.Db.Driver = ""

	s, err := New(cfg)
	require.NoError(t, err)

	ch, ok := s.src.(*source.ChannelSource)
	require.True(t, ok)
	require.NoError(t, ch.Push(context.Background(), detection.Event{
		TrackID:   1,
		Class:     detection.ClassContainer,
		Box:       geometry.Box{X1: 1, Y1: 1, X2: 9, Y2: 9},
		Timestamp: time.Unix(1748444400, 0).UTC(),
	}))
	// Closing the queue is what a kill signal does for in-process sources.
	require.NoError(t, ch.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	snap, err := sink.ReadCsv(cfg.Sink.Csv.Dir)
	require.NoError(t, err)
	require.Len(t, snap.Containers, 1)
	assert.Equal(t, 0, *snap.Containers[0].ZoneIndex)
}

func TestNew_Errors(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Zones.File = ""
	_, err := New(cfg)
	require.Error(t, err)

	cfg = testConfig(t, nil)
	cfg.Zones.File = filepath.Join(t.TempDir(), "missing.json")
	_, err = New(cfg)
	require.Error(t, err)

	cfg = testConfig(t, nil)
	cfg.Zones.Threshold = 1.5
	_, err = New(cfg)
	require.Error(t, err)

	cfg = testConfig(t, nil)
	cfg.Source.Type = "smoke-signal"
	_, err = New(cfg)
	require.Error(t, err)

	cfg = testConfig(t, nil)
	cfg.Log.Level = "loud"
	_, err = New(cfg)
	require.Error(t, err)
}

func TestNew_WithHttp(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Db.Driver = ""
	cfg.Http.Listen = "127.0.0.1:0"

	s, err := New(cfg)
	require.NoError(t, err)
	require.NotNil(t, s.api)
	assert.NotEmpty(t, s.RunId())
	assert.Len(t, s.Zones(), 2)
	_, ok := s.Occupant(0)
	assert.False(t, ok)
	require.NoError(t, s.src.Close())
}

type recordingSink struct {
	name   string
	err    error
	mu     sync.Mutex
	writes int
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Write(_ context.Context, _ string, _ tracker.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes++
	return r.err
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

func TestFlushAgent_Flush(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("disk full")}
	good := &recordingSink{name: "good"}

	a := &FlushAgent{
		RunId:    "run",
		Sinks:    []sink.Sink{bad, good},
		Snapshot: func() tracker.Snapshot { return tracker.Snapshot{} },
		Metrics:  metrics.NewNop(),
		Logger:   logging.NewNop(),
	}

	err := a.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, bad.count())
	assert.Equal(t, 1, good.count())
}

func TestFlushAgent_RunStopsOnKill(t *testing.T) {
	good := &recordingSink{name: "good"}
	a := &FlushAgent{
		RunId:    "run",
		Interval: 3600,
		Sinks:    []sink.Sink{good},
		Snapshot: func() tracker.Snapshot { return tracker.Snapshot{} },
		Metrics:  metrics.NewNop(),
		Logger:   logging.NewNop(),
	}

	var wg sync.WaitGroup
	killSig := make(chan struct{})
	wg.Add(1)
	go a.Run(&wg, killSig)
	close(killSig)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flush agent did not stop")
	}
	assert.Equal(t, 0, good.count())
}

func TestFlushAgent_ZeroIntervalReturns(t *testing.T) {
	a := &FlushAgent{Logger: logging.NewNop(), Metrics: metrics.NewNop()}

	var wg sync.WaitGroup
	wg.Add(1)
	a.Run(&wg, make(chan struct{}))
	wg.Wait()
}
