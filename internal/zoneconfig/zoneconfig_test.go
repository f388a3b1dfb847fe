package zoneconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neverlinked/package-tracking/internal/geometry"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zone_setup.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
  "worker_zones": [
    [[0, 0], [10, 10]],
    [[40, 30], [20, 0]]
  ],
  "middle_line": [[15, 0], [15, 100]]
}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Zones, 2)

	assert.Equal(t, 0, cfg.Zones[0].Index)
	assert.Equal(t, geometry.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}, cfg.Zones[0].Rect)

	// Corners drawn bottom-right to top-left are normalized.
	assert.Equal(t, 1, cfg.Zones[1].Index)
	assert.Equal(t, geometry.Box{X1: 20, Y1: 0, X2: 40, Y2: 30}, cfg.Zones[1].Rect)
	assert.Equal(t, geometry.Point{X: 30, Y: 15}, cfg.Zones[1].Centroid())

	assert.Equal(t, geometry.Line{A: geometry.Point{X: 15, Y: 0}, B: geometry.Point{X: 15, Y: 100}}, cfg.MiddleLine)
}

func TestLoad_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"worker_zones": [`},
		{"missing zones", `{"middle_line": [[0,0],[1,1]]}`},
		{"missing line", `{"worker_zones": [[[0,0],[1,1]]]}`},
		{"empty zones", `{"worker_zones": [], "middle_line": [[0,0],[1,1]]}`},
		{"zone with three points", `{"worker_zones": [[[0,0],[1,1],[2,2]]], "middle_line": [[0,0],[1,1]]}`},
		{"non numeric coordinate", `{"worker_zones": [[["a",0],[1,1]]], "middle_line": [[0,0],[1,1]]}`},
		{"flat zone", `{"worker_zones": [[[0,0],[0,10]]], "middle_line": [[0,0],[1,1]]}`},
		{"zero length line", `{"worker_zones": [[[0,0],[10,10]]], "middle_line": [[3,3],[3,3]]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestZone_CentroidKeepsHalfPixels(t *testing.T) {
	z := Zone{Index: 0, Rect: geometry.Box{X1: 0, Y1: 0, X2: 29, Y2: 11}}
	assert.Equal(t, geometry.Point{X: 14.5, Y: 5.5}, z.Centroid())

	// A floored midpoint (14, 5) would fall on the other side of this line.
	line := geometry.Line{A: geometry.Point{X: 14.2, Y: 0}, B: geometry.Point{X: 14.2, Y: 10}}
	assert.False(t, geometry.SideOfLine(z.Centroid(), line))
	assert.True(t, geometry.SideOfLine(geometry.Point{X: 14, Y: 5}, line))
}
