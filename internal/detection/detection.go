// Package detection defines the per-object events emitted by the upstream
// detector/tracker and their JSON wire form.
package detection

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/neverlinked/package-tracking/internal/geometry"
)

var (
	ErrMissingField  = errors.New("missing required field")
	ErrDegenerateBox = errors.New("degenerate bounding box")
	ErrUnknownClass  = errors.New("unknown class")
)

// Class of a tracked object.
type Class int

const (
	ClassContainer Class = iota
	ClassItem
)

func (c Class) String() string {
	switch c {
	case ClassContainer:
		return "container"
	case ClassItem:
		return "item"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// ParseClass accepts the class names plus the detector's numeric labels
// (0 = container, 1 = item). "box" and "component" are accepted as aliases.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "container", "box", "0":
		return ClassContainer, nil
	case "item", "component", "1":
		return ClassItem, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownClass, s)
	}
}

func (c Class) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// Event is one detected object in one frame.
type Event struct {
	TrackID   int64
	Class     Class
	Box       geometry.Box
	Timestamp time.Time
}

// Centroid of the event's bounding box.
func (e Event) Centroid() geometry.Point {
	return e.Box.Centroid()
}

// Validate rejects events the engine must skip.
func (e Event) Validate() error {
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}
	if e.Class != ClassContainer && e.Class != ClassItem {
		return fmt.Errorf("%w: %d", ErrUnknownClass, int(e.Class))
	}
	if e.Box.Degenerate() {
		return ErrDegenerateBox
	}

	return nil
}

// wireEvent mirrors the JSON payload; pointers distinguish absent fields
// from zero values.
type wireEvent struct {
	TrackID   *int64          `json:"track_id"`
	Class     json.RawMessage `json:"class"`
	BBox      []float64       `json:"bbox"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type wireOut struct {
	TrackID   int64      `json:"track_id"`
	Class     Class      `json:"class"`
	BBox      [4]float64 `json:"bbox"`
	Timestamp string     `json:"timestamp"`
}

// MarshalJSON writes the wire form with an RFC 3339 timestamp.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireOut{
		TrackID:   e.TrackID,
		Class:     e.Class,
		BBox:      [4]float64{e.Box.X1, e.Box.Y1, e.Box.X2, e.Box.Y2},
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

// UnmarshalJSON decodes and validates the required fields. Box degeneracy is
// left to Validate so callers can tell malformed payloads from unusable ones.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	err := json.Unmarshal(data, &w)
	if err != nil {
		return err
	}

	if w.TrackID == nil {
		return fmt.Errorf("%w: track_id", ErrMissingField)
	}
	if len(w.Class) == 0 || string(w.Class) == "null" {
		return fmt.Errorf("%w: class", ErrMissingField)
	}
	if len(w.BBox) == 0 {
		return fmt.Errorf("%w: bbox", ErrMissingField)
	}
	if len(w.BBox) != 4 {
		return fmt.Errorf("%w: bbox needs 4 values, got %d", ErrMissingField, len(w.BBox))
	}
	if len(w.Timestamp) == 0 || string(w.Timestamp) == "null" {
		return fmt.Errorf("%w: timestamp", ErrMissingField)
	}

	class, err := decodeClass(w.Class)
	if err != nil {
		return err
	}
	ts, err := decodeTimestamp(w.Timestamp)
	if err != nil {
		return err
	}

	*e = Event{
		TrackID:   *w.TrackID,
		Class:     class,
		Box:       geometry.Box{X1: w.BBox[0], Y1: w.BBox[1], X2: w.BBox[2], Y2: w.BBox[3]},
		Timestamp: ts,
	}

	return nil
}

// Decode parses and validates a single JSON event.
func Decode(data []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(data, &ev)
	if err != nil {
		return Event{}, err
	}

	err = ev.Validate()
	if err != nil {
		return Event{}, err
	}

	return ev, nil
}

func decodeClass(raw json.RawMessage) (Class, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseClass(s)
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return ParseClass(fmt.Sprint(n))
	}

	return 0, fmt.Errorf("%w: %s", ErrUnknownClass, string(raw))
}

// decodeTimestamp accepts RFC 3339 strings or unix seconds (fractional allowed).
func decodeTimestamp(raw json.RawMessage) (time.Time, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return ts, nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s", string(raw))
	}
	sec, frac := math.Modf(f)

	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC(), nil
}
