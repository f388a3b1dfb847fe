package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/neverlinked/package-tracking/internal/detection"
	"github.com/neverlinked/package-tracking/internal/logging"
)

const maxLineSize = 1 << 20

// FileSource reads one JSON event per line. Blank lines and lines starting
// with '#' are ignored; undecodable lines are logged and skipped.
type FileSource struct {
	name    string
	closer  io.Closer
	scanner *bufio.Scanner
	line    int
	logger  logging.Logger
}

var _ Source = (*FileSource)(nil)

// NewFile opens path, or stdin when path is "-".
func NewFile(path string, logger logging.Logger) (*FileSource, error) {
	if path == "" {
		return nil, fmt.Errorf("missing source file path")
	}
	if path == "-" {
		return NewReader("stdin", os.Stdin, logger), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}

	s := NewReader(path, f, logger)
	s.closer = f

	return s, nil
}

// NewReader reads events from r.
func NewReader(name string, r io.Reader, logger logging.Logger) *FileSource {
	if logger == nil {
		logger = logging.NewNop()
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	return &FileSource{
		name:    name,
		scanner: scanner,
		logger:  logger,
	}
}

func (s *FileSource) Name() string {
	return "file:" + s.name
}

func (s *FileSource) Next(ctx context.Context) (detection.Event, error) {
	for {
		err := ctx.Err()
		if err != nil {
			return detection.Event{}, err
		}

		if !s.scanner.Scan() {
			err := s.scanner.Err()
			if err != nil {
				return detection.Event{}, fmt.Errorf("failed to read %s line %d: %w", s.name, s.line+1, err)
			}
			return detection.Event{}, io.EOF
		}
		s.line++

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var ev detection.Event
		err = json.Unmarshal(line, &ev)
		if err != nil {
			s.logger.Warn("skipping undecodable event", "source", s.name, "line", s.line, "error", err)
			continue
		}

		return ev, nil
	}
}

func (s *FileSource) Close() error {
	if s.closer == nil {
		return nil
	}

	return s.closer.Close()
}
