// Package follow runs the per-frame tracking loop: detections in, motor
// commands out.
package follow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cjeanneret/babycam/internal/debug"
	"github.com/cjeanneret/babycam/internal/logic/tracking"
	"github.com/cjeanneret/babycam/internal/perception"
)

// fpsWindow is the number of frames between two FPS log lines.
const fpsWindow = 30

// AngleFunc maps a target position to degrees off the optical axis.
type AngleFunc func(tracking.Position) (x, y float64)

type options struct {
	actuator Actuator
	observer func(Update)
	angles   AngleFunc
	clock    func() time.Time
	metrics  *loopMetrics
}

// Option configures a Loop.
type Option func(*options)

// WithActuator sets what commands are driven into. Without one the loop is
// a dry run: commands are computed and reported only.
func WithActuator(a Actuator) Option {
	return func(o *options) { o.actuator = a }
}

// WithObserver registers a callback invoked after every frame.
func WithObserver(fn func(Update)) Option {
	return func(o *options) { o.observer = fn }
}

// WithAngles enables angular diagnostics in updates.
func WithAngles(fn AngleFunc) Option {
	return func(o *options) { o.angles = fn }
}

// Loop pulls detections from a source, feeds them to the controller and
// drives the resulting commands. Run must not be called concurrently.
type Loop struct {
	ctrl *tracking.Controller
	src  perception.Source
	opts options

	status statusBoard
}

// NewLoop wires a loop. Metrics go to the global OTel meter.
func NewLoop(ctrl *tracking.Controller, src perception.Source, opts ...Option) (*Loop, error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		m, err := newLoopMetrics(meter())
		if err != nil {
			return nil, err
		}
		o.metrics = m
	}
	return &Loop{ctrl: ctrl, src: src, opts: o}, nil
}

// Controller returns the controller the loop feeds.
func (l *Loop) Controller() *tracking.Controller {
	return l.ctrl
}

// Status returns a snapshot of the loop counters and last frame.
func (l *Loop) Status() Status {
	s := l.status.snapshot()
	s.State = l.ctrl.State()
	return s
}

// Run processes frames until the source is exhausted (returns nil), ctx is
// done, the controller reports an internal consistency violation, or an
// actuator fails. Invalid detections are counted and skipped.
func (l *Loop) Run(ctx context.Context) (err error) {
	start := l.opts.clock()
	l.status.update(func(s *Status) {
		*s = Status{Running: true, StartedAt: start}
	})
	defer func() {
		l.status.update(func(s *Status) {
			s.Running = false
			if err != nil {
				s.Err = err.Error()
			}
		})
	}()

	debug.Section("Tracking loop")
	cfg := l.ctrl.Config()
	debug.Info("Tracking: max_motor_step=%d dead_zone=%.3f smoothing_factor=%.2f",
		cfg.MaxMotorStep, cfg.DeadZone, cfg.SmoothingFactor)

	frame := 0
	windowStart := start
	for {
		det, err := l.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			debug.Info("Tracking: source exhausted after %d frames", frame)
			return nil
		}
		if err != nil {
			return err
		}
		frame++

		if err := l.step(ctx, frame, det); err != nil {
			return err
		}

		if frame%fpsWindow == 0 {
			now := l.opts.clock()
			if elapsed := now.Sub(windowStart); elapsed > 0 {
				fps := fpsWindow / elapsed.Seconds()
				debug.FPS(fps)
				l.status.update(func(s *Status) { s.FPS = fps })
			}
			windowStart = now
		}
	}
}

func (l *Loop) step(ctx context.Context, frame int, det tracking.Detection) error {
	m := l.opts.metrics
	m.frames.Add(ctx, 1)

	cmd, emitted, err := l.ctrl.Track(det)
	switch {
	case errors.Is(err, tracking.ErrInvalidInput):
		m.rejected.Add(ctx, 1)
		debug.Live("Frame %d: rejected detection: %v", frame, err)
		l.status.update(func(s *Status) {
			s.Frames = frame
			s.Rejected++
		})
		return nil
	case err != nil:
		return fmt.Errorf("frame %d: %w", frame, err)
	}

	u := Update{Frame: frame, Detected: emitted, Time: l.opts.clock()}
	if !emitted {
		m.misses.Add(ctx, 1)
		debug.Miss(frame)
	} else {
		m.hits.Add(ctx, 1)
		m.command(ctx, cmd)
		u.Position = det.Position
		u.Command = cmd
		u.ErrorX, u.ErrorY = tracking.ErrorPercent(det.Position)
		if l.opts.angles != nil {
			u.AngleX, u.AngleY = l.opts.angles(det.Position)
		}
		debug.Command(frame, cmd.StepX, cmd.StepY, u.ErrorX, u.ErrorY)

		if l.opts.actuator != nil {
			if err := l.opts.actuator.Drive(ctx, cmd); err != nil {
				return fmt.Errorf("frame %d: drive: %w", frame, err)
			}
		}
	}

	l.status.update(func(s *Status) {
		s.Frames = frame
		if emitted {
			s.Detections++
		} else {
			s.Misses++
		}
		last := u
		s.Last = &last
	})
	if l.opts.observer != nil {
		l.opts.observer(u)
	}
	return nil
}
