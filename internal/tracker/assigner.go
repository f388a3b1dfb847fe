package tracker

import (
	"time"

	"github.com/neverlinked/package-tracking/internal/geometry"
	"github.com/neverlinked/package-tracking/internal/zoneconfig"
)

// Assigner resolves each item to at most one container, once.
type Assigner struct {
	zones     []zoneconfig.Zone
	line      geometry.Line
	threshold float64

	// distinctUnresolved labels null-container rows MethodUnresolved
	// instead of MethodFallback.
	distinctUnresolved bool

	processed map[int64]struct{}
}

func NewAssigner(cfg *zoneconfig.Config, threshold float64, distinctUnresolved bool) *Assigner {
	return &Assigner{
		zones:              cfg.Zones,
		line:               cfg.MiddleLine,
		threshold:          threshold,
		distinctUnresolved: distinctUnresolved,
		processed:          make(map[int64]struct{}),
	}
}

// Resolution is the outcome of resolving one item.
type Resolution struct {
	Row  ItemRow
	Zone int
}

// Processed reports whether id has already been finalized.
func (a *Assigner) Processed(id int64) bool {
	_, ok := a.processed[id]
	return ok
}

// Assign finalizes item id. The second return is false when id was already
// resolved, in which case nothing changes.
func (a *Assigner) Assign(reg *Registry, id int64, ts time.Time, centroid geometry.Point) (Resolution, bool) {
	if a.Processed(id) {
		return Resolution{}, false
	}

	res := Resolution{
		Row: ItemRow{
			ID:            id,
			FirstDetected: ts,
		},
		Zone: NoZone,
	}

	cid, zone, ok := a.direct(reg, centroid)
	if ok {
		res.Row.ContainerID = &cid
		res.Row.Method = MethodZone
		res.Zone = zone
	} else {
		res.Row.Method = MethodFallback
		cid, zone, ok = a.fallback(reg, centroid)
		res.Zone = zone
		if ok {
			res.Row.ContainerID = &cid
		} else if a.distinctUnresolved {
			res.Row.Method = MethodUnresolved
		}
	}

	a.processed[id] = struct{}{}

	return res, true
}

// direct finds the first zone, in configured order, that holds a contained
// container and whose rectangle holds the item centroid.
func (a *Assigner) direct(reg *Registry, centroid geometry.Point) (int64, int, bool) {
	for _, z := range a.zones {
		cid, ok := reg.FirstContained(z.Rect, a.threshold)
		if !ok {
			continue
		}
		if z.Rect.ContainsPoint(centroid) {
			return cid, z.Index, true
		}
	}

	return 0, NoZone, false
}

// fallback stops at the first zone whose centroid is on the item's side of
// the middle line. The zone is returned even when no container is found.
func (a *Assigner) fallback(reg *Registry, centroid geometry.Point) (int64, int, bool) {
	side := geometry.SideOfLine(centroid, a.line)

	for _, z := range a.zones {
		if geometry.SideOfLine(z.Centroid(), a.line) != side {
			continue
		}

		cid, ok := reg.FirstContained(z.Rect, a.threshold)
		if ok {
			return cid, z.Index, true
		}
		cid, ok = reg.LastInZone(z.Index)
		if ok {
			return cid, z.Index, true
		}

		return 0, z.Index, false
	}

	return 0, NoZone, false
}
