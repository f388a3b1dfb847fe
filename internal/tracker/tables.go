package tracker

import (
	"slices"
	"time"
)

// Tables accumulates the output rows, one per identifier. The first write
// for a key wins; container zone fields are the only in-place updates.
type Tables struct {
	containers map[int64]*ContainerRow
	items      map[int64]*ItemRow
}

func NewTables() *Tables {
	return &Tables{
		containers: make(map[int64]*ContainerRow),
		items:      make(map[int64]*ItemRow),
	}
}

// Apply folds a decision into the tables.
func (t *Tables) Apply(d Decision) {
	switch d.Kind {
	case ContainerCreated:
		t.AppendContainer(ContainerRow{ID: d.TrackID, FirstDetected: d.Timestamp})
	case ZoneEntered:
		t.SetContainerZone(d.TrackID, d.Zone, d.Timestamp)
	case ItemResolved:
		t.AppendItem(ItemRow{
			ID:            d.TrackID,
			ContainerID:   d.ContainerID,
			FirstDetected: d.Timestamp,
			Method:        d.Method,
		})
	}
}

// AppendContainer returns false if a row for the id already exists.
func (t *Tables) AppendContainer(row ContainerRow) bool {
	if _, ok := t.containers[row.ID]; ok {
		return false
	}
	t.containers[row.ID] = &row

	return true
}

// SetContainerZone rewrites the zone fields of an existing row.
func (t *Tables) SetContainerZone(id int64, zone int, ts time.Time) bool {
	row, ok := t.containers[id]
	if !ok {
		return false
	}
	row.ZoneIndex = &zone
	row.ZoneEntry = &ts

	return true
}

// AppendItem returns false if a row for the id already exists.
func (t *Tables) AppendItem(row ItemRow) bool {
	if _, ok := t.items[row.ID]; ok {
		return false
	}
	if row.ContainerID != nil {
		cid := *row.ContainerID
		row.ContainerID = &cid
	}
	t.items[row.ID] = &row

	return true
}

// Snapshot returns a deep copy of both tables. It has no side effects.
func (t *Tables) Snapshot() Snapshot {
	snap := Snapshot{
		Containers: make([]ContainerRow, 0, len(t.containers)),
		Items:      make([]ItemRow, 0, len(t.items)),
	}

	for _, id := range sortedKeys(t.containers) {
		row := *t.containers[id]
		if row.ZoneIndex != nil {
			zone := *row.ZoneIndex
			row.ZoneIndex = &zone
		}
		if row.ZoneEntry != nil {
			ts := *row.ZoneEntry
			row.ZoneEntry = &ts
		}
		snap.Containers = append(snap.Containers, row)
	}

	for _, id := range sortedKeys(t.items) {
		row := *t.items[id]
		if row.ContainerID != nil {
			cid := *row.ContainerID
			row.ContainerID = &cid
		}
		snap.Items = append(snap.Items, row)
	}

	return snap
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}
