package tracker

import (
	"errors"
	"fmt"
	"time"

	"github.com/neverlinked/package-tracking/internal/detection"
	"github.com/neverlinked/package-tracking/internal/geometry"
)

// NoZone marks a container that has never occupied a zone.
const NoZone = -1

// ErrOutOfOrder is reported for events older than the last applied one.
var ErrOutOfOrder = errors.New("event timestamp precedes last applied event")

// Method records which phase resolved an item.
type Method string

const (
	MethodZone       Method = "zone"
	MethodFallback   Method = "fallback"
	MethodUnresolved Method = "unresolved"
)

// Container is the live, per-frame state of a tracked container.
// FirstSeen never changes after creation.
type Container struct {
	ID        int64
	FirstSeen time.Time
	LastSeen  time.Time
	Box       geometry.Box
	Centroid  geometry.Point
	Side      bool

	// Zone is NoZone until the first occupancy transition.
	Zone        int
	ZoneEntered time.Time
}

// HasZone reports whether the container has been recorded in a zone.
func (c Container) HasZone() bool {
	return c.Zone != NoZone
}

// ContainerRow is the persisted record of a container: created once, zone
// fields rewritten on each occupancy transition.
type ContainerRow struct {
	ID            int64      `json:"id"`
	FirstDetected time.Time  `json:"first_detected"`
	ZoneIndex     *int       `json:"zone_index"`
	ZoneEntry     *time.Time `json:"zone_entry_time"`
}

// ItemRow is the immutable resolution of an item.
type ItemRow struct {
	ID            int64     `json:"id"`
	ContainerID   *int64    `json:"container_id"`
	FirstDetected time.Time `json:"first_detected"`
	Method        Method    `json:"assignment_method"`
}

// Resolved reports whether a container was found for the item.
func (r ItemRow) Resolved() bool {
	return r.ContainerID != nil
}

// Snapshot is a detached copy of both result tables, rows ascending by id.
type Snapshot struct {
	Containers []ContainerRow `json:"containers"`
	Items      []ItemRow      `json:"items"`
}

// DecisionKind enumerates the changelog entries produced by the engine.
type DecisionKind int

const (
	ContainerCreated DecisionKind = iota
	ZoneEntered
	ItemResolved
	EventSkipped
)

func (k DecisionKind) String() string {
	switch k {
	case ContainerCreated:
		return "container_created"
	case ZoneEntered:
		return "zone_entered"
	case ItemResolved:
		return "item_resolved"
	case EventSkipped:
		return "event_skipped"
	default:
		return fmt.Sprintf("decision(%d)", int(k))
	}
}

// Decision is one fact emitted while applying a frame. Only the fields
// relevant to Kind are set.
type Decision struct {
	Kind      DecisionKind
	TrackID   int64
	Class     detection.Class
	Timestamp time.Time

	// ZoneEntered, and the zone consulted for ItemResolved (NoZone if none).
	Zone int

	// ItemResolved
	ContainerID *int64
	Method      Method

	// EventSkipped
	Err error
}
