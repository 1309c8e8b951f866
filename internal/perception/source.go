// Package perception feeds per-frame face detections to the tracking loop.
// The detector itself runs out of process; this package only reads what it
// reports.
package perception

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// Source yields one detection per processed frame. Next returns io.EOF when
// the stream is over.
type Source interface {
	Next(ctx context.Context) (tracking.Detection, error)
}

// ParseDetection decodes one detector record.
//
// Accepted forms:
//
//	x,y        target at (x, y)
//	found,x,y  found is a loose boolean (1/0, true/false, yes/no)
//	found      must be false; a hit needs coordinates
//	none       also "", "-" and "miss": no target this frame
//
// Range checking of the coordinates is left to the controller.
func ParseDetection(payload string) (tracking.Detection, error) {
	s := strings.TrimSpace(payload)
	switch strings.ToLower(s) {
	case "", "-", "none", "miss":
		return tracking.Miss(), nil
	}

	parts := strings.Split(s, ",")
	switch len(parts) {
	case 1:
		found, err := parseBoolLoose(parts[0])
		if err != nil {
			return tracking.Detection{}, fmt.Errorf("parse found flag: %w", err)
		}
		if found {
			return tracking.Detection{}, errors.New("detection flagged found without coordinates")
		}
		return tracking.Miss(), nil
	case 2:
		return parseHit(parts[0], parts[1])
	case 3:
		found, err := parseBoolLoose(parts[0])
		if err != nil {
			return tracking.Detection{}, fmt.Errorf("parse found flag: %w", err)
		}
		if !found {
			return tracking.Miss(), nil
		}
		return parseHit(parts[1], parts[2])
	default:
		return tracking.Detection{}, fmt.Errorf("expected 1 to 3 fields, got %d", len(parts))
	}
}

func parseHit(xs, ys string) (tracking.Detection, error) {
	x, err := parseF64(xs)
	if err != nil {
		return tracking.Detection{}, fmt.Errorf("parse x: %w", err)
	}
	y, err := parseF64(ys)
	if err != nil {
		return tracking.Detection{}, fmt.Errorf("parse y: %w", err)
	}
	return tracking.Hit(x, y), nil
}

// parseF64 parses a float from a CSV field.
func parseF64(value string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(value), 64)
}

// parseBoolLoose parses booleans from common telemetry encodings.
func parseBoolLoose(value string) (bool, error) {
	norm := strings.ToLower(strings.TrimSpace(value))
	switch norm {
	case "1", "true", "yes", "y", "t":
		return true, nil
	case "0", "false", "no", "n", "f":
		return false, nil
	default:
		f, err := strconv.ParseFloat(norm, 64)
		if err != nil {
			return false, err
		}
		return f != 0, nil
	}
}
