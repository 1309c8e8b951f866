// Package eventlog records monitor events (sleep, distress, feeding, ...)
// with the environment they happened in, for later analysis.
package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cjeanneret/babycam/internal/config"
)

// Event is one logged observation.
type Event struct {
	Timestamp   time.Time       `json:"timestamp"`
	EventID     string          `json:"event_id"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
	Environment json.RawMessage `json:"environment"`
}

// ErrDuplicateID is returned by Store.Append when the log already holds an
// event with the same id.
var ErrDuplicateID = errors.New("eventlog: duplicate event id")

// Store persists events in insertion order. Event ids are unique per store.
type Store interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context) ([]Event, error)
	Close() error
}

// Open returns the store selected by cfg.Backend.
func Open(cfg config.EventLogConfig) (Store, error) {
	switch cfg.Backend {
	case "", "json":
		return OpenJSONFile(cfg.Path)
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("eventlog: unknown backend %q", cfg.Backend)
	}
}

// CountByType returns how many events of each type events holds.
func CountByType(events []Event) map[string]int {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Type]++
	}
	return counts
}
