package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/neverlinked/package-tracking/internal/tracker"
)

const (
	BoxesFile      = "boxes.csv"
	ComponentsFile = "main_components.csv"
)

var (
	boxesHeader      = []string{"box_id", "first_detected", "zone_id", "zone_entry_time"}
	componentsHeader = []string{"component_id", "box_id", "first_detected", "assignment_method"}
)

// CsvSink rewrites boxes.csv and main_components.csv in Dir on every Write.
// Null fields are written as empty cells.
type CsvSink struct {
	Dir string
}

var _ Sink = (*CsvSink)(nil)

func NewCsv(dir string) (*CsvSink, error) {
	if dir == "" {
		dir = "."
	}
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("failed to create csv dir: %w", err)
	}

	return &CsvSink{Dir: dir}, nil
}

func (s *CsvSink) Name() string {
	return "csv"
}

func (s *CsvSink) Write(_ context.Context, _ string, snap tracker.Snapshot) error {
	boxRows := make([][]string, 0, len(snap.Containers)+1)
	boxRows = append(boxRows, boxesHeader)
	for _, c := range snap.Containers {
		zone := ""
		if c.ZoneIndex != nil {
			zone = strconv.Itoa(*c.ZoneIndex)
		}
		boxRows = append(boxRows, []string{
			strconv.FormatInt(c.ID, 10),
			formatTime(c.FirstDetected),
			zone,
			formatTimePtr(c.ZoneEntry),
		})
	}

	componentRows := make([][]string, 0, len(snap.Items)+1)
	componentRows = append(componentRows, componentsHeader)
	for _, it := range snap.Items {
		box := ""
		if it.ContainerID != nil {
			box = strconv.FormatInt(*it.ContainerID, 10)
		}
		componentRows = append(componentRows, []string{
			strconv.FormatInt(it.ID, 10),
			box,
			formatTime(it.FirstDetected),
			string(it.Method),
		})
	}

	err := writeCsvAtomic(filepath.Join(s.Dir, BoxesFile), boxRows)
	if err != nil {
		return err
	}

	return writeCsvAtomic(filepath.Join(s.Dir, ComponentsFile), componentRows)
}

func (s *CsvSink) Close() error {
	return nil
}

// writeCsvAtomic writes to a temp file in the same directory and renames it
// over path so readers never see a partial table.
func writeCsvAtomic(path string, rows [][]string) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	tmp := f.Name()

	w := csv.NewWriter(f)
	err = w.WriteAll(rows)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	err = f.Close()
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	return os.Rename(tmp, path)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}

	return formatTime(*t)
}

// ReadCsv loads the tables previously written by CsvSink from dir.
func ReadCsv(dir string) (tracker.Snapshot, error) {
	var snap tracker.Snapshot

	boxRows, err := readCsv(filepath.Join(dir, BoxesFile), boxesHeader)
	if err != nil {
		return snap, err
	}
	for i, r := range boxRows {
		row := tracker.ContainerRow{}
		row.ID, err = strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return snap, fmt.Errorf("%s line %d: bad box_id: %w", BoxesFile, i+2, err)
		}
		row.FirstDetected, err = time.Parse(time.RFC3339Nano, r[1])
		if err != nil {
			return snap, fmt.Errorf("%s line %d: bad first_detected: %w", BoxesFile, i+2, err)
		}
		if r[2] != "" {
			zone, err := strconv.Atoi(r[2])
			if err != nil {
				return snap, fmt.Errorf("%s line %d: bad zone_id: %w", BoxesFile, i+2, err)
			}
			row.ZoneIndex = &zone
		}
		if r[3] != "" {
			ts, err := time.Parse(time.RFC3339Nano, r[3])
			if err != nil {
				return snap, fmt.Errorf("%s line %d: bad zone_entry_time: %w", BoxesFile, i+2, err)
			}
			row.ZoneEntry = &ts
		}
		snap.Containers = append(snap.Containers, row)
	}

	componentRows, err := readCsv(filepath.Join(dir, ComponentsFile), componentsHeader)
	if err != nil {
		return snap, err
	}
	for i, r := range componentRows {
		row := tracker.ItemRow{}
		row.ID, err = strconv.ParseInt(r[0], 10, 64)
		if err != nil {
			return snap, fmt.Errorf("%s line %d: bad component_id: %w", ComponentsFile, i+2, err)
		}
		if r[1] != "" {
			cid, err := strconv.ParseInt(r[1], 10, 64)
			if err != nil {
				return snap, fmt.Errorf("%s line %d: bad box_id: %w", ComponentsFile, i+2, err)
			}
			row.ContainerID = &cid
		}
		row.FirstDetected, err = time.Parse(time.RFC3339Nano, r[2])
		if err != nil {
			return snap, fmt.Errorf("%s line %d: bad first_detected: %w", ComponentsFile, i+2, err)
		}
		row.Method = tracker.Method(r[3])
		snap.Items = append(snap.Items, row)
	}

	return snap, nil
}

func readCsv(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: missing header", path)
	}
	for i, h := range header {
		if rows[0][i] != h {
			return nil, fmt.Errorf("%s: unexpected column %q, want %q", path, rows[0][i], h)
		}
	}

	return rows[1:], nil
}
