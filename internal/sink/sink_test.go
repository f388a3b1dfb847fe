package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neverlinked/package-tracking/internal/tracker"
)

var ts0 = time.Date(2025, 5, 28, 15, 29, 37, 250_000_000, time.UTC)

func sampleSnapshot() tracker.Snapshot {
	zone := 1
	entry := ts0.Add(2 * time.Second)
	cid := int64(4)

	return tracker.Snapshot{
		Containers: []tracker.ContainerRow{
			{ID: 4, FirstDetected: ts0, ZoneIndex: &zone, ZoneEntry: &entry},
			{ID: 6, FirstDetected: ts0.Add(time.Second)},
		},
		Items: []tracker.ItemRow{
			{ID: 10, ContainerID: &cid, FirstDetected: ts0.Add(3 * time.Second), Method: tracker.MethodZone},
			{ID: 11, FirstDetected: ts0.Add(4 * time.Second), Method: tracker.MethodFallback},
		},
	}
}

func TestCsvSink_WriteAndRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	s, err := NewCsv(dir)
	require.NoError(t, err)
	assert.Equal(t, "csv", s.Name())

	snap := sampleSnapshot()
	require.NoError(t, s.Write(context.Background(), "run", snap))

	raw, err := os.ReadFile(filepath.Join(dir, BoxesFile))
	require.NoError(t, err)
	assert.Equal(t, "box_id,first_detected,zone_id,zone_entry_time\n"+
		"4,2025-05-28T15:29:37.25Z,1,2025-05-28T15:29:39.25Z\n"+
		"6,2025-05-28T15:29:38.25Z,,\n", string(raw))

	raw, err = os.ReadFile(filepath.Join(dir, ComponentsFile))
	require.NoError(t, err)
	assert.Equal(t, "component_id,box_id,first_detected,assignment_method\n"+
		"10,4,2025-05-28T15:29:40.25Z,zone\n"+
		"11,,2025-05-28T15:29:41.25Z,fallback\n", string(raw))

	back, err := ReadCsv(dir)
	require.NoError(t, err)
	assert.Equal(t, snap, back)
}

func TestCsvSink_Rewrites(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCsv(dir)
	require.NoError(t, err)

	snap := sampleSnapshot()
	require.NoError(t, s.Write(context.Background(), "run", tracker.Snapshot{Containers: snap.Containers[:1]}))
	require.NoError(t, s.Write(context.Background(), "run", snap))

	back, err := ReadCsv(dir)
	require.NoError(t, err)
	assert.Len(t, back.Containers, 2)
	assert.Len(t, back.Items, 2)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestReadCsv_BadHeader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, BoxesFile), []byte("id,a,b,c\n"), 0o600))

	_, err := ReadCsv(dir)
	require.Error(t, err)
}

func TestDbSink_Sqlite(t *testing.T) {
	cfg := DbConfig{Driver: "sqlite"}
	cfg.Sqlite.Path = filepath.Join(t.TempDir(), "tracking.db")

	s, err := NewDb(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	assert.Equal(t, "db", s.Name())

	ctx := context.Background()
	snap := sampleSnapshot()

	// First flush sees container 6 without a zone and no items.
	require.NoError(t, s.Write(ctx, "run-a", tracker.Snapshot{Containers: snap.Containers}))
	require.NoError(t, s.Write(ctx, "run-a", snap))
	require.NoError(t, s.Write(ctx, "run-b", tracker.Snapshot{Containers: snap.Containers[:1]}))

	zone := 0
	updated := sampleSnapshot()
	updated.Containers[1].ZoneIndex = &zone
	updated.Containers[1].ZoneEntry = &ts0
	require.NoError(t, s.Write(ctx, "run-a", updated))

	boxes, components, err := s.LoadRun(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, boxes, 2)
	require.Len(t, components, 2)

	assert.Equal(t, int64(4), boxes[0].BoxId)
	require.NotNil(t, boxes[0].ZoneId)
	assert.Equal(t, 1, *boxes[0].ZoneId)
	assert.True(t, boxes[0].FirstDetected.Equal(ts0))
	require.NotNil(t, boxes[1].ZoneId, "zone fields follow later transitions")
	assert.Equal(t, 0, *boxes[1].ZoneId)

	require.NotNil(t, components[0].BoxId)
	assert.Equal(t, int64(4), *components[0].BoxId)
	assert.Equal(t, "zone", components[0].AssignmentMethod)
	assert.Nil(t, components[1].BoxId)

	boxes, components, err = s.LoadRun(ctx, "run-b")
	require.NoError(t, err)
	assert.Len(t, boxes, 1)
	assert.Empty(t, components)
}

func TestGetDbConn_Errors(t *testing.T) {
	_, err := getDbConn(DbConfig{Driver: "oracle"})
	require.Error(t, err)

	_, err = getDbConn(DbConfig{Driver: "mysql"})
	require.Error(t, err)

	_, err = getDbConn(DbConfig{Driver: "sqlite"})
	require.Error(t, err)
}

type stubSink struct {
	name   string
	err    error
	writes int
	closed bool
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Write(_ context.Context, _ string, _ tracker.Snapshot) error {
	s.writes++
	return s.err
}

func (s *stubSink) Close() error {
	s.closed = true
	return nil
}

func TestMulti(t *testing.T) {
	failing := &stubSink{name: "a", err: errors.New("boom")}
	ok := &stubSink{name: "b"}
	m := Multi{failing, ok}

	err := m.Write(context.Background(), "run", tracker.Snapshot{})
	require.Error(t, err)
	assert.Equal(t, 1, ok.writes, "later sinks still receive the snapshot")

	require.NoError(t, m.Close())
	assert.True(t, failing.closed)
	assert.True(t, ok.closed)
}
