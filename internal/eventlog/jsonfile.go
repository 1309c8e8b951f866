package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cjeanneret/babycam/internal/debug"
)

const (
	lockWait  = 5 * time.Second
	lockStale = 30 * time.Second
	lockPoll  = 20 * time.Millisecond
)

// JSONFileStore keeps the whole log as a JSON array in a single file.
// Appends from several processes are serialized through a "<path>.lock"
// file next to the log.
type JSONFileStore struct {
	path string
	mu   sync.Mutex
}

// OpenJSONFile opens the log at path, creating an empty array if the file
// does not exist.
func OpenJSONFile(path string) (*JSONFileStore, error) {
	if path == "" {
		return nil, errors.New("eventlog: empty path")
	}
	s := &JSONFileStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("eventlog: stat %s: %w", path, err)
	}
	return s, nil
}

// Path returns the backing file.
func (s *JSONFileStore) Path() string { return s.path }

// Append adds e to the end of the file.
func (s *JSONFileStore) Append(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	events, err := s.read()
	if err != nil {
		return err
	}
	for _, old := range events {
		if old.EventID == e.EventID {
			return fmt.Errorf("%w: %s", ErrDuplicateID, e.EventID)
		}
	}
	return s.write(append(events, e))
}

// lock takes the advisory lock file, breaking it if its holder left it
// behind for longer than lockStale.
func (s *JSONFileStore) lock(ctx context.Context) (func(), error) {
	name := s.path + ".lock"
	deadline := time.Now().Add(lockWait)
	for {
		f, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			f.Close()
			return func() { os.Remove(name) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("eventlog: lock %s: %w", name, err)
		}
		if fi, err := os.Stat(name); err == nil && time.Since(fi.ModTime()) > lockStale {
			log := debug.Logger("eventlog")
			log.Warn().Str("lock", name).Msg("removing stale lock")
			os.Remove(name)
			continue
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("eventlog: %s is locked", s.path)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPoll):
		}
	}
}

// List returns all events in file order.
func (s *JSONFileStore) List(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *JSONFileStore) Close() error { return nil }

// read treats unparsable content as an empty log.
func (s *JSONFileStore) read() ([]Event, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("eventlog: read %s: %w", s.path, err)
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		log := debug.Logger("eventlog")
		log.Warn().Err(err).Str("path", s.path).Msg("corrupt event log, starting empty")
		return nil, nil
	}
	return events, nil
}

// write replaces the file through a temp file and rename.
func (s *JSONFileStore) write(events []Event) error {
	if events == nil {
		events = []Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("eventlog: encode: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("eventlog: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("eventlog: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("eventlog: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("eventlog: rename: %w", err)
	}
	return nil
}
