package reconcile

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neverlinked/package-tracking/internal/tracker"
)

var t0 = time.Date(2025, 5, 28, 15, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

func id(v int64) *int64 {
	return &v
}

func reads(barcodes ...string) []Read {
	out := make([]Read, 0, len(barcodes))
	for i, b := range barcodes {
		out = append(out, Read{Barcode: b, Time: at(i)})
	}
	return out
}

func TestMerge(t *testing.T) {
	snap := tracker.Snapshot{
		Containers: []tracker.ContainerRow{
			{ID: 4, FirstDetected: at(5)},
			{ID: 2, FirstDetected: at(1)},
			{ID: 9, FirstDetected: at(9)},
		},
		Items: []tracker.ItemRow{
			{ID: 20, ContainerID: id(2), FirstDetected: at(3)},
			{ID: 21, ContainerID: id(4), FirstDetected: at(6)},
			{ID: 22, ContainerID: id(2), FirstDetected: at(7)},
			{ID: 23, FirstDetected: at(8)},
		},
	}

	// Shuffled reads are ordered by time before assignment.
	rs := reads("B2", "B4", "B9", "C20", "C21", "C22", "C23")
	rs[0], rs[6] = rs[6], rs[0]

	res := Merge(snap, rs)
	assert.Empty(t, res.Warnings)

	require.Len(t, res.Rows, 5)
	assert.Equal(t, Row{BoxId: id(2), BoxBarcode: "B2", ComponentId: id(20), ComponentBarcode: "C20", Status: StatusOK}, res.Rows[0])
	assert.Equal(t, Row{BoxId: id(4), BoxBarcode: "B4", ComponentId: id(21), ComponentBarcode: "C21", Status: StatusOK}, res.Rows[1])
	assert.Equal(t, Row{BoxId: id(9), BoxBarcode: "B9", Status: StatusNoComponent}, res.Rows[2])
	assert.Equal(t, Row{ComponentId: id(22), ComponentBarcode: "C22", Status: StatusOK}, res.Rows[3])
	assert.Equal(t, Row{ComponentId: id(23), ComponentBarcode: "C23", Status: StatusOK}, res.Rows[4])
}

func TestMerge_ShortReads(t *testing.T) {
	snap := tracker.Snapshot{
		Containers: []tracker.ContainerRow{
			{ID: 1, FirstDetected: at(0)},
			{ID: 2, FirstDetected: at(1)},
		},
		Items: []tracker.ItemRow{
			{ID: 10, ContainerID: id(1), FirstDetected: at(2)},
		},
	}

	res := Merge(snap, reads("B1", "B2"))
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "more components")
	require.Len(t, res.Rows, 2)
	assert.Equal(t, StatusNoComponentBarcode, res.Rows[0].Status)
	assert.Equal(t, StatusNoComponent, res.Rows[1].Status)

	res = Merge(snap, reads("B1"))
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "more boxes")
	assert.Equal(t, "B1", res.Rows[0].BoxBarcode)
	assert.Equal(t, "", res.Rows[1].BoxBarcode)
}

func TestMerge_RowIdsAreDistinct(t *testing.T) {
	snap := tracker.Snapshot{
		Containers: []tracker.ContainerRow{
			{ID: 1, FirstDetected: at(0)},
			{ID: 2, FirstDetected: at(1)},
		},
		Items: []tracker.ItemRow{
			{ID: 10, ContainerID: id(1), FirstDetected: at(2)},
			{ID: 11, FirstDetected: at(3)},
			{ID: 12, FirstDetected: at(4)},
		},
	}

	res := Merge(snap, nil)
	require.Len(t, res.Rows, 4)

	*res.Rows[0].BoxId = 99
	*res.Rows[2].ComponentId = 98

	assert.Equal(t, int64(2), *res.Rows[1].BoxId)
	assert.Equal(t, int64(12), *res.Rows[3].ComponentId)
	assert.Equal(t, int64(1), snap.Containers[0].ID)
	assert.Equal(t, int64(11), snap.Items[1].ID)
}

func TestMerge_Empty(t *testing.T) {
	res := Merge(tracker.Snapshot{}, nil)
	assert.Empty(t, res.Rows)
	assert.Empty(t, res.Warnings)
}

func TestReadBarcodes(t *testing.T) {
	input := "time_of_detection,barcode,reader\n" +
		"2025-05-28 15:00:01,ABC,1\n" +
		"2025-05-28T15:00:00Z, XYZ ,1\n"

	got, err := ReadBarcodes(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ABC", got[0].Barcode)
	assert.True(t, got[0].Time.Equal(at(1)))
	assert.Equal(t, "XYZ", got[1].Barcode)
	assert.True(t, got[1].Time.Equal(t0))
}

func TestReadBarcodes_Errors(t *testing.T) {
	for name, input := range map[string]string{
		"empty":        "",
		"no time col":  "barcode\nABC\n",
		"bad time":     "barcode,time_of_detection\nABC,yesterday\n",
		"short record": "barcode,time_of_detection\nABC\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadBarcodes(strings.NewReader(input))
			require.Error(t, err)
		})
	}
}

func TestWriteCsv(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCsv(&buf, []Row{
		{BoxId: id(2), BoxBarcode: "B2", ComponentId: id(20), ComponentBarcode: "C20", Status: StatusOK},
		{BoxId: id(9), BoxBarcode: "B9", Status: StatusNoComponent},
		{ComponentId: id(22), Status: StatusNoComponentBarcode},
	})
	require.NoError(t, err)

	assert.Equal(t, "box_id,box_barcode,component_id,component_barcode,status\n"+
		"2,B2,20,C20,OK\n"+
		"9,B9,,,No component\n"+
		",,22,,No component barcode\n", buf.String())
}
