package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/babycam/internal/debug"
	"github.com/cjeanneret/babycam/internal/logic/follow"
	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

const (
	// maxRequestBytes bounds POST bodies.
	maxRequestBytes = 1 << 20
	// minRunInterval is the minimum delay between two accepted POST /run.
	minRunInterval = 5 * time.Second
	// maxMotorStepLimit is the largest max_motor_step an override may ask for.
	maxMotorStepLimit = 1000
)

// ErrNotRunning is returned by Session.Reset when no tracking run is active.
var ErrNotRunning = errors.New("tracking not running")

// Overrides holds tracker constants that can override config values.
// Zero means "use config".
type Overrides struct {
	MaxMotorStep    int     `json:"max_motor_step"`
	DeadZone        float64 `json:"dead_zone"`
	SmoothingFactor float64 `json:"smoothing_factor"`
}

// ValidateOverrides checks the non-zero fields of o against their ranges.
func ValidateOverrides(o Overrides) error {
	if o.MaxMotorStep < 0 || o.MaxMotorStep > maxMotorStepLimit {
		return fmt.Errorf("max_motor_step must be in [1, %d] or 0 for config, got %d", maxMotorStepLimit, o.MaxMotorStep)
	}
	if o.DeadZone != 0 {
		if math.IsNaN(o.DeadZone) || math.IsInf(o.DeadZone, 0) || o.DeadZone < 0 || o.DeadZone >= 0.5 {
			return fmt.Errorf("dead_zone must be in (0, 0.5), got %g", o.DeadZone)
		}
	}
	if o.SmoothingFactor != 0 {
		if math.IsNaN(o.SmoothingFactor) || math.IsInf(o.SmoothingFactor, 0) || o.SmoothingFactor < 0 || o.SmoothingFactor > 1 {
			return fmt.Errorf("smoothing_factor must be in (0, 1], got %g", o.SmoothingFactor)
		}
	}
	return nil
}

// Apply returns base with the non-zero overrides applied.
func (o Overrides) Apply(base tracking.Config) tracking.Config {
	if o.MaxMotorStep > 0 {
		base.MaxMotorStep = o.MaxMotorStep
	}
	if o.DeadZone > 0 {
		base.DeadZone = o.DeadZone
	}
	if o.SmoothingFactor > 0 {
		base.SmoothingFactor = o.SmoothingFactor
	}
	return base
}

// Session is the tracking side the handlers drive.
type Session interface {
	// Run tracks until ctx is done or the source ends.
	Run(ctx context.Context, o Overrides) error
	// Status returns the current (or last) run's status.
	Status() follow.Status
	// Config returns the tracker constants in effect.
	Config() tracking.Config
	// Reset zeroes the running controller's state, or returns ErrNotRunning.
	Reset() error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Session     Session
	staticFS    fs.FS

	runningMu sync.Mutex
	running   bool
	closed    bool
	cancel    context.CancelFunc
	lastStart time.Time
	now       func() time.Time
	runs      sync.WaitGroup
}

// NewHandlers creates handlers with the given dependencies.
// If session is nil, the tracking endpoints return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, session Session, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Session:     session,
		staticFS:    staticFS,
		now:         time.Now,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// HandleConfig returns the tracker constants in effect as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if h.Session == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Session.Config())
}

// HandleStatus returns the tracking status snapshot as JSON.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.Session == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, h.Session.Status())
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleRun handles POST /run to start a tracking run. An empty body runs
// with the config values.
func (h *Handlers) HandleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var overrides Overrides
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&overrides); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateOverrides(overrides); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.Session == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.closed {
		h.runningMu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if h.running {
		h.runningMu.Unlock()
		http.Error(w, "tracking already in progress", http.StatusConflict)
		return
	}
	now := h.now()
	if !h.lastStart.IsZero() && now.Sub(h.lastStart) < minRunInterval {
		h.runningMu.Unlock()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.running = true
	h.cancel = cancel
	h.lastStart = now
	h.runs.Add(1)
	h.runningMu.Unlock()

	// Run in goroutine; clear running when done
	go func() {
		defer h.runs.Done()
		defer func() {
			cancel()
			h.runningMu.Lock()
			h.running = false
			h.cancel = nil
			h.runningMu.Unlock()
		}()

		err := h.Session.Run(ctx, overrides)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
			h.Broadcaster.Broadcast("info", "Tracking stopped")
		default:
			h.Broadcaster.Broadcast("error", "Tracking failed: "+err.Error())
			log := debug.Logger("web")
			log.Error().Err(err).Msg("tracking failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// Shutdown refuses further runs, cancels the active one and waits for it
// to return, so the caller owns the actuators again afterwards.
func (h *Handlers) Shutdown() {
	h.runningMu.Lock()
	h.closed = true
	cancel := h.cancel
	h.runningMu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.runs.Wait()
}

// HandleStop handles POST /stop: cancels the running tracking run.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.runningMu.Lock()
	cancel := h.cancel
	h.runningMu.Unlock()
	if cancel == nil {
		http.Error(w, ErrNotRunning.Error(), http.StatusConflict)
		return
	}
	cancel()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// HandleReset handles POST /reset: zeroes the controller smoothing history.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	if h.Session == nil {
		http.Error(w, "tracking not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.Session.Reset(); err != nil {
		if errors.Is(err, ErrNotRunning) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.Broadcaster.Broadcast("info", "Tracking state reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
