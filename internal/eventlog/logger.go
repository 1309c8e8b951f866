package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjeanneret/babycam/internal/debug"
)

// ErrEmptyType is returned when logging an event without a type.
var ErrEmptyType = errors.New("eventlog: event type is required")

// maxIDAttempts bounds the suffixes tried when other writers already hold
// the ids of the current second.
const maxIDAttempts = 100

// Logger stamps and stores events.
type Logger struct {
	store Store
	now   func() time.Time

	mu       sync.Mutex
	lastSec  int64
	sameSecN int
}

// NewLogger returns a Logger writing to store.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// Log records an event of type typ. data and env are JSON-encoded; nil
// becomes an empty object. Event ids are "evt_<unix seconds>", with a
// "_<n>" suffix for further events logged in the same second, whether by
// this Logger or by another process sharing the store.
func (l *Logger) Log(ctx context.Context, typ string, data, env any) (Event, error) {
	if typ == "" {
		return Event{}, ErrEmptyType
	}
	dataJSON, err := encodeObject(data)
	if err != nil {
		return Event{}, fmt.Errorf("eventlog: data: %w", err)
	}
	envJSON, err := encodeObject(env)
	if err != nil {
		return Event{}, fmt.Errorf("eventlog: environment: %w", err)
	}

	now := l.now()
	e := Event{
		Timestamp:   now,
		Type:        typ,
		Data:        dataJSON,
		Environment: envJSON,
	}
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		e.EventID = l.nextID(now)
		err := l.store.Append(ctx, e)
		if errors.Is(err, ErrDuplicateID) {
			debug.Verbose("Event id %s taken, retrying", e.EventID)
			continue
		}
		if err != nil {
			return Event{}, err
		}
		debug.Info("Logged event: %s (%s)", typ, e.EventID)
		return e, nil
	}
	return Event{}, fmt.Errorf("eventlog: no free id in second %d", now.Unix())
}

func (l *Logger) nextID(now time.Time) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	sec := now.Unix()
	if sec == l.lastSec {
		l.sameSecN++
		return fmt.Sprintf("evt_%d_%d", sec, l.sameSecN)
	}
	l.lastSec = sec
	l.sameSecN = 0
	return fmt.Sprintf("evt_%d", sec)
}

func encodeObject(v any) (json.RawMessage, error) {
	switch t := v.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(t) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(t) {
			return nil, errors.New("invalid JSON")
		}
		return t, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// SeedDemo logs three sample events for trying out the analysis commands:
// a nap, a crying spell during a heat spike and a short tummy-time session.
func SeedDemo(ctx context.Context, l *Logger) error {
	demo := []struct {
		typ       string
		data, env map[string]any
	}{
		{"sleep", map[string]any{"duration_min": 45}, map[string]any{"temp": 22}},
		{"distress", map[string]any{"visual": "crying"}, map[string]any{"temp": 28}},
		{"tummy_time", map[string]any{"duration_min": 2}, map[string]any{"temp": 22}},
	}
	for _, d := range demo {
		if _, err := l.Log(ctx, d.typ, d.data, d.env); err != nil {
			return err
		}
	}
	return nil
}
