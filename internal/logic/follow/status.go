package follow

import (
	"sync"
	"time"

	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// Update describes one processed frame.
type Update struct {
	Frame    int               `json:"frame"`
	Detected bool              `json:"detected"`
	Position tracking.Position `json:"position"`
	Command  tracking.Command  `json:"command"`
	ErrorX   float64           `json:"error_x"` // % of frame width off centre
	ErrorY   float64           `json:"error_y"`
	AngleX   float64           `json:"angle_x"` // degrees off axis, 0 without lens/sensor config
	AngleY   float64           `json:"angle_y"`
	Time     time.Time         `json:"time"`
}

// Status is a point-in-time view of a running loop.
type Status struct {
	Running    bool           `json:"running"`
	StartedAt  time.Time      `json:"started_at,omitempty"`
	Frames     int            `json:"frames"`
	Detections int            `json:"detections"`
	Misses     int            `json:"misses"`
	Rejected   int            `json:"rejected"`
	FPS        float64        `json:"fps"`
	State      tracking.State `json:"state"`
	Last       *Update        `json:"last,omitempty"`
	Err        string         `json:"error,omitempty"`
}

// statusBoard is written by the loop goroutine and read by the web handlers.
type statusBoard struct {
	mu sync.RWMutex
	s  Status
}

func (b *statusBoard) update(fn func(*Status)) {
	b.mu.Lock()
	fn(&b.s)
	b.mu.Unlock()
}

func (b *statusBoard) snapshot() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.s
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	return s
}
