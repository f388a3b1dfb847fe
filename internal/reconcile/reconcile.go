// Package reconcile pairs the engine's container and item tables with the
// barcode reads taken at the packing station.
//
// Reads are assigned by time order: the first len(containers) reads belong
// to containers, the next len(items) reads to items.
package reconcile

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/neverlinked/package-tracking/internal/tracker"
)

type Status string

const (
	StatusOK                 Status = "OK"
	StatusNoComponent        Status = "No component"
	StatusNoComponentBarcode Status = "No component barcode"
)

// Row is one line of the merged output. BoxId is nil for items whose
// container has no row of its own.
type Row struct {
	BoxId            *int64
	BoxBarcode       string
	ComponentId      *int64
	ComponentBarcode string
	Status           Status
}

type Result struct {
	Rows     []Row
	Warnings []string
}

func classify(r Row) Status {
	if r.ComponentId == nil {
		return StatusNoComponent
	}
	if r.ComponentBarcode == "" {
		return StatusNoComponentBarcode
	}

	return StatusOK
}

func byTimeThenId[T any](rows []T, ts func(T) int64, id func(T) int64) {
	slices.SortStableFunc(rows, func(a, b T) int {
		if c := cmp.Compare(ts(a), ts(b)); c != 0 {
			return c
		}
		return cmp.Compare(id(a), id(b))
	})
}

// Merge produces one row per container in first-detection order, each
// paired with the earliest item assigned to it, followed by the items that
// were not paired.
func Merge(snap tracker.Snapshot, reads []Read) Result {
	var res Result

	containers := slices.Clone(snap.Containers)
	byTimeThenId(containers,
		func(c tracker.ContainerRow) int64 { return c.FirstDetected.UnixNano() },
		func(c tracker.ContainerRow) int64 { return c.ID })

	items := slices.Clone(snap.Items)
	byTimeThenId(items,
		func(it tracker.ItemRow) int64 { return it.FirstDetected.UnixNano() },
		func(it tracker.ItemRow) int64 { return it.ID })

	reads = slices.Clone(reads)
	slices.SortStableFunc(reads, func(a, b Read) int {
		return a.Time.Compare(b.Time)
	})

	if len(containers) > len(reads) {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("more boxes (%d) than total barcodes (%d)", len(containers), len(reads)))
	}
	boxReads := reads[:min(len(containers), len(reads))]
	rest := reads[len(boxReads):]
	itemReads := rest[:min(len(items), len(rest))]
	if len(items) > len(itemReads) {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("more components (%d) than available component barcodes (%d)", len(items), len(itemReads)))
	}

	itemBarcode := make(map[int64]string, len(itemReads))
	first := make(map[int64]tracker.ItemRow)
	for i, it := range items {
		if i < len(itemReads) {
			itemBarcode[it.ID] = itemReads[i].Barcode
		}
		if it.ContainerID == nil {
			continue
		}
		if _, ok := first[*it.ContainerID]; !ok {
			first[*it.ContainerID] = it
		}
	}

	paired := make(map[int64]bool)
	for i, c := range containers {
		boxId := c.ID
		row := Row{BoxId: &boxId}
		if i < len(boxReads) {
			row.BoxBarcode = boxReads[i].Barcode
		}
		if it, ok := first[c.ID]; ok {
			componentId := it.ID
			row.ComponentId = &componentId
			row.ComponentBarcode = itemBarcode[it.ID]
			paired[it.ID] = true
		}
		row.Status = classify(row)
		res.Rows = append(res.Rows, row)
	}

	for _, it := range items {
		if paired[it.ID] {
			continue
		}
		componentId := it.ID
		row := Row{
			ComponentId:      &componentId,
			ComponentBarcode: itemBarcode[it.ID],
		}
		row.Status = classify(row)
		res.Rows = append(res.Rows, row)
	}

	return res
}

var outputHeader = []string{"box_id", "box_barcode", "component_id", "component_barcode", "status"}

func formatId(id *int64) string {
	if id == nil {
		return ""
	}

	return strconv.FormatInt(*id, 10)
}

// WriteCsv writes the merged rows with a header line.
func WriteCsv(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	err := cw.Write(outputHeader)
	if err != nil {
		return err
	}

	for _, r := range rows {
		err := cw.Write([]string{
			formatId(r.BoxId),
			r.BoxBarcode,
			formatId(r.ComponentId),
			r.ComponentBarcode,
			string(r.Status),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()

	return cw.Error()
}
