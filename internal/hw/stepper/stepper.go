package stepper

import (
	"context"
	"sync"
	"time"

	"github.com/cjeanneret/babycam/internal/debug"
	"github.com/cjeanneret/babycam/internal/hw/gpio"
)

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	Name          string // "pan" or "tilt", for logs
	StepPin       int
	DirPin        int
	EnablePin     int // A4988 ENABLE pin (BCM). 0 = not used. Active LOW (LOW=enabled).
	StepsPerRev   int
	Microstepping int
	StepDelay     time.Duration // delay per half-cycle of STEP pulse. Total step = 2*StepDelay.
	// Soft travel limits in microsteps from the power-on position.
	// MinPosition == MaxPosition == 0 disables them.
	MinPosition int
	MaxPosition int
}

func (c Config) limited() bool {
	return c.MinPosition != 0 || c.MaxPosition != 0
}

// Stepper drives one A4988 channel and keeps track of where the head is.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	delay time.Duration // delay between STEP pulse half-cycles

	mu       sync.Mutex
	position int
}

// NewStepper creates a new stepper motor controller at position 0.
// cfg.StepDelay: if 0, defaults to 1ms.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	_ = g.SetupPin(cfg.StepPin, gpio.Output)
	_ = g.SetupPin(cfg.DirPin, gpio.Output)

	delay := cfg.StepDelay
	if delay <= 0 {
		delay = 1 * time.Millisecond
	}

	s := &Stepper{
		gpio:  g,
		cfg:   cfg,
		delay: delay,
	}

	// A4988 ENABLE: active LOW. LOW = enabled, HIGH = disabled.
	if cfg.EnablePin > 0 {
		_ = g.SetupPin(cfg.EnablePin, gpio.Output)
		_ = g.WritePin(cfg.EnablePin, gpio.Low) // enable by default
	}

	return s
}

// Position returns the current position in microsteps.
func (s *Stepper) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// MoveSteps moves the motor by steps (positive or negative), stopping at the
// soft limits. It returns the signed number of steps actually taken. ctx is
// checked between pulses; on cancellation the partial move is kept in the
// position and ctx.Err() is returned.
func (s *Stepper) MoveSteps(ctx context.Context, steps int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.position + steps
	if s.cfg.limited() {
		if target > s.cfg.MaxPosition {
			target = s.cfg.MaxPosition
		}
		if target < s.cfg.MinPosition {
			target = s.cfg.MinPosition
		}
		if target-s.position != steps {
			debug.Live("Stepper %s: clamped %d steps to %d at soft limit", s.cfg.Name, steps, target-s.position)
		}
	}
	steps = target - s.position
	if steps == 0 {
		return 0, nil
	}

	dirLevel, sign, direction := gpio.High, 1, "forward"
	count := steps
	if steps < 0 {
		dirLevel, sign, direction = gpio.Low, -1, "backward"
		count = -steps
	}

	debug.Printf("Stepper %s: moving %d steps (%s) on pin %d", s.cfg.Name, count, direction, s.cfg.StepPin)

	if err := s.gpio.WritePin(s.cfg.DirPin, dirLevel); err != nil {
		return 0, err
	}

	moved := 0
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		if err := s.stepPulse(); err != nil {
			return moved, err
		}
		s.position += sign
		moved += sign
	}
	return moved, nil
}

func (s *Stepper) stepPulse() error {
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.High); err != nil {
		return err
	}
	time.Sleep(s.delay)
	if err := s.gpio.WritePin(s.cfg.StepPin, gpio.Low); err != nil {
		return err
	}
	time.Sleep(s.delay)
	return nil
}

// Enable turns on the motor driver (A4988 ENABLE=LOW). Motors hold position.
func (s *Stepper) Enable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.Low)
}

// Disable turns off the motor driver (A4988 ENABLE=HIGH). Motors freewheel,
// no holding torque. Used when tracking stops.
func (s *Stepper) Disable() error {
	if s.cfg.EnablePin <= 0 {
		return nil
	}
	return s.gpio.WritePin(s.cfg.EnablePin, gpio.High)
}
