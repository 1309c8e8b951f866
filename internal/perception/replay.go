package perception

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// ReplaySource plays back a recorded detection file, one record per line.
// Blank lines are misses, lines starting with '#' are skipped.
type ReplaySource struct {
	scanner  *bufio.Scanner
	closer   io.Closer
	interval time.Duration
	line     int
	last     time.Time
}

// NewReplaySource reads records from r. interval > 0 paces the frames.
func NewReplaySource(r io.Reader, interval time.Duration) *ReplaySource {
	s := &ReplaySource{scanner: bufio.NewScanner(r), interval: interval}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenReplay opens a detection file for playback.
func OpenReplay(path string, interval time.Duration) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay: %w", err)
	}
	return NewReplaySource(f, interval), nil
}

// Next returns the next recorded detection, io.EOF at end of file.
func (s *ReplaySource) Next(ctx context.Context) (tracking.Detection, error) {
	if err := s.wait(ctx); err != nil {
		return tracking.Detection{}, err
	}
	for s.scanner.Scan() {
		s.line++
		text := s.scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(text), "#") {
			continue
		}
		det, err := ParseDetection(text)
		if err != nil {
			return tracking.Detection{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		s.last = time.Now()
		return det, nil
	}
	if err := s.scanner.Err(); err != nil {
		return tracking.Detection{}, fmt.Errorf("read replay: %w", err)
	}
	return tracking.Detection{}, io.EOF
}

func (s *ReplaySource) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.interval <= 0 || s.last.IsZero() {
		return nil
	}
	d := time.Until(s.last.Add(s.interval))
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Close closes the underlying file, if any.
func (s *ReplaySource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
