// Package zoneconfig loads the static workspace geometry: the ordered list of
// worker zones and the directed middle line.
package zoneconfig

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/viper"

	"github.com/neverlinked/package-tracking/internal/geometry"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid zone config")

// Zone is a configured station. Index is both its identity and its priority.
type Zone struct {
	Index int
	Rect  geometry.Box
}

// Centroid of the zone rectangle.
func (z Zone) Centroid() geometry.Point {
	return z.Rect.Centroid()
}

// Config is immutable once loaded.
type Config struct {
	Zones      []Zone
	MiddleLine geometry.Line
}

// Load reads the JSON artifact written by the zone authoring tool:
//
//	{"worker_zones": [[[x1,y1],[x2,y2]], ...], "middle_line": [[x1,y1],[x2,y2]]}
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	err := v.ReadInConfig()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrInvalidConfig, path, err)
	}

	return Parse(v.AllSettings())
}

// Parse builds a Config from already decoded JSON values.
func Parse(raw map[string]any) (*Config, error) {
	rawZones, ok := raw["worker_zones"]
	if !ok {
		return nil, fmt.Errorf("%w: missing worker_zones", ErrInvalidConfig)
	}
	rawLine, ok := raw["middle_line"]
	if !ok {
		return nil, fmt.Errorf("%w: missing middle_line", ErrInvalidConfig)
	}

	zoneList, ok := rawZones.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: worker_zones must be a list", ErrInvalidConfig)
	}

	cfg := &Config{
		Zones: make([]Zone, 0, len(zoneList)),
	}
	for i, rz := range zoneList {
		p, q, err := pointPair(rz)
		if err != nil {
			return nil, fmt.Errorf("%w: worker_zones[%d]: %v", ErrInvalidConfig, i, err)
		}
		cfg.Zones = append(cfg.Zones, Zone{
			Index: i,
			Rect:  geometry.BoxFromCorners(p, q),
		})
	}

	a, b, err := pointPair(rawLine)
	if err != nil {
		return nil, fmt.Errorf("%w: middle_line: %v", ErrInvalidConfig, err)
	}
	cfg.MiddleLine = geometry.Line{A: a, B: b}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the zone layout the engine relies on.
func (c *Config) Validate() error {
	if len(c.Zones) == 0 {
		return fmt.Errorf("%w: no worker zones", ErrInvalidConfig)
	}

	for i, z := range c.Zones {
		if z.Index != i {
			return fmt.Errorf("%w: zone %d has index %d", ErrInvalidConfig, i, z.Index)
		}
		if z.Rect.Degenerate() {
			return fmt.Errorf("%w: zone %d has no area", ErrInvalidConfig, i)
		}
	}

	if c.MiddleLine.A == c.MiddleLine.B {
		return fmt.Errorf("%w: middle line has zero length", ErrInvalidConfig)
	}

	return nil
}

func pointPair(v any) (geometry.Point, geometry.Point, error) {
	pts, ok := v.([]any)
	if !ok || len(pts) != 2 {
		return geometry.Point{}, geometry.Point{}, fmt.Errorf("expected a pair of points")
	}

	p, err := point(pts[0])
	if err != nil {
		return geometry.Point{}, geometry.Point{}, err
	}
	q, err := point(pts[1])
	if err != nil {
		return geometry.Point{}, geometry.Point{}, err
	}

	return p, q, nil
}

func point(v any) (geometry.Point, error) {
	coords, ok := v.([]any)
	if !ok || len(coords) != 2 {
		return geometry.Point{}, fmt.Errorf("expected [x, y]")
	}

	x, err := number(coords[0])
	if err != nil {
		return geometry.Point{}, err
	}
	y, err := number(coords[1])
	if err != nil {
		return geometry.Point{}, err
	}

	return geometry.Point{X: x, Y: y}, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("coordinate %v is not a number", v)
	}
}
