package tracker

import (
	"slices"
	"time"

	"github.com/neverlinked/package-tracking/internal/geometry"
)

// Registry holds live container state for one processing run. Containers
// are never evicted.
type Registry struct {
	line geometry.Line

	containers map[int64]*Container
	ids        []int64 // ascending

	// recorded guards the one-time creation of the persisted record.
	recorded map[int64]struct{}
}

func NewRegistry(line geometry.Line) *Registry {
	return &Registry{
		line:       line,
		containers: make(map[int64]*Container),
		recorded:   make(map[int64]struct{}),
	}
}

// Upsert creates or refreshes the live state of id. It returns true exactly
// once per identifier, when the caller must append the persisted record.
func (r *Registry) Upsert(id int64, box geometry.Box, centroid geometry.Point, ts time.Time) bool {
	side := geometry.SideOfLine(centroid, r.line)

	c, ok := r.containers[id]
	if ok {
		c.LastSeen = ts
		c.Box = box
		c.Centroid = centroid
		c.Side = side
		return false
	}

	r.containers[id] = &Container{
		ID:        id,
		FirstSeen: ts,
		LastSeen:  ts,
		Box:       box,
		Centroid:  centroid,
		Side:      side,
		Zone:      NoZone,
	}
	pos, _ := slices.BinarySearch(r.ids, id)
	r.ids = slices.Insert(r.ids, pos, id)

	if _, seen := r.recorded[id]; seen {
		return false
	}
	r.recorded[id] = struct{}{}

	return true
}

// UpdateZone records an occupancy transition in the live state. It is
// called only when the zone's occupant changes.
func (r *Registry) UpdateZone(id int64, zone int, ts time.Time) bool {
	c, ok := r.containers[id]
	if !ok {
		return false
	}
	c.Zone = zone
	c.ZoneEntered = ts

	return true
}

// Get returns a copy of the live state of id.
func (r *Registry) Get(id int64) (Container, bool) {
	c, ok := r.containers[id]
	if !ok {
		return Container{}, false
	}

	return *c, true
}

// Len is the number of live containers.
func (r *Registry) Len() int {
	return len(r.ids)
}

// IDs returns the live identifiers in ascending order.
func (r *Registry) IDs() []int64 {
	return slices.Clone(r.ids)
}

// FirstContained returns the lowest id whose current box satisfies
// containment for zone.
func (r *Registry) FirstContained(zone geometry.Box, threshold float64) (int64, bool) {
	for _, id := range r.ids {
		if geometry.IsContained(r.containers[id].Box, zone, threshold) {
			return id, true
		}
	}

	return 0, false
}

// LastInZone returns the highest id whose last recorded zone is zone.
func (r *Registry) LastInZone(zone int) (int64, bool) {
	for i := len(r.ids) - 1; i >= 0; i-- {
		id := r.ids[i]
		if r.containers[id].Zone == zone {
			return id, true
		}
	}

	return 0, false
}

// Occupancy maps a zone index to the container currently occupying it.
type Occupancy struct {
	occupant map[int]int64
}

func NewOccupancy() *Occupancy {
	return &Occupancy{occupant: make(map[int]int64)}
}

// Occupant of zone, if any.
func (o *Occupancy) Occupant(zone int) (int64, bool) {
	id, ok := o.occupant[zone]
	return id, ok
}

// Set evicts any previous occupant.
func (o *Occupancy) Set(zone int, id int64) {
	o.occupant[zone] = id
}
