package reconcile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Read is one scan from the barcode reader.
type Read struct {
	Barcode string
	Time    time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		ts, err := time.Parse(layout, s)
		if err == nil {
			return ts, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

// ReadBarcodes parses a CSV with barcode and time_of_detection columns in
// any order. Other columns are ignored.
func ReadBarcodes(r io.Reader) ([]Read, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("barcode file is empty")
		}
		return nil, err
	}

	barcodeCol, timeCol := -1, -1
	for i, h := range header {
		switch strings.TrimSpace(h) {
		case "barcode":
			barcodeCol = i
		case "time_of_detection":
			timeCol = i
		}
	}
	if barcodeCol < 0 || timeCol < 0 {
		return nil, fmt.Errorf("barcode file needs barcode and time_of_detection columns")
	}

	var reads []Read
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		if len(rec) <= max(barcodeCol, timeCol) {
			return nil, fmt.Errorf("line %d: expected at least %d fields", line, max(barcodeCol, timeCol)+1)
		}
		ts, err := parseTime(strings.TrimSpace(rec[timeCol]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		reads = append(reads, Read{Barcode: strings.TrimSpace(rec[barcodeCol]), Time: ts})
	}

	return reads, nil
}

func LoadBarcodes(path string) ([]Read, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadBarcodes(f)
}
