package models

import (
	"time"

	"github.com/neverlinked/package-tracking/internal/tracker"
)

// Box is the persisted container record for one processing run
type Box struct {
	RunId         string     `gorm:"primaryKey;size:36" json:"run_id"`
	BoxId         int64      `gorm:"primaryKey;autoIncrement:false" json:"box_id"`
	FirstDetected time.Time  `json:"first_detected"`
	ZoneId        *int       `json:"zone_id"`
	ZoneEntryTime *time.Time `json:"zone_entry_time"`
	CreatedAt     time.Time  `json:"-"`
	UpdatedAt     time.Time  `json:"-"`
}

// Component is the persisted resolution of one item
type Component struct {
	RunId            string    `gorm:"primaryKey;size:36" json:"run_id"`
	ComponentId      int64     `gorm:"primaryKey;autoIncrement:false" json:"component_id"`
	BoxId            *int64    `gorm:"index" json:"box_id"`
	FirstDetected    time.Time `json:"first_detected"`
	AssignmentMethod string    `gorm:"size:16" json:"assignment_method"`
	CreatedAt        time.Time `json:"-"`
	UpdatedAt        time.Time `json:"-"`
}

// FromSnapshot converts the engine tables into rows stamped with runId.
func FromSnapshot(runId string, snap tracker.Snapshot) ([]Box, []Component) {
	boxes := make([]Box, 0, len(snap.Containers))
	for _, c := range snap.Containers {
		boxes = append(boxes, Box{
			RunId:         runId,
			BoxId:         c.ID,
			FirstDetected: c.FirstDetected,
			ZoneId:        c.ZoneIndex,
			ZoneEntryTime: c.ZoneEntry,
		})
	}

	components := make([]Component, 0, len(snap.Items))
	for _, it := range snap.Items {
		components = append(components, Component{
			RunId:            runId,
			ComponentId:      it.ID,
			BoxId:            it.ContainerID,
			FirstDetected:    it.FirstDetected,
			AssignmentMethod: string(it.Method),
		})
	}

	return boxes, components
}

// ToSnapshot rebuilds the engine tables from persisted rows.
func ToSnapshot(boxes []Box, components []Component) tracker.Snapshot {
	snap := tracker.Snapshot{
		Containers: make([]tracker.ContainerRow, 0, len(boxes)),
		Items:      make([]tracker.ItemRow, 0, len(components)),
	}
	for _, b := range boxes {
		snap.Containers = append(snap.Containers, tracker.ContainerRow{
			ID:            b.BoxId,
			FirstDetected: b.FirstDetected,
			ZoneIndex:     b.ZoneId,
			ZoneEntry:     b.ZoneEntryTime,
		})
	}
	for _, c := range components {
		snap.Items = append(snap.Items, tracker.ItemRow{
			ID:            c.ComponentId,
			ContainerID:   c.BoxId,
			FirstDetected: c.FirstDetected,
			Method:        tracker.Method(c.AssignmentMethod),
		})
	}

	return snap
}
