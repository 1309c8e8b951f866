package tracking

import (
	"fmt"
	"math"
	"sync"

	"github.com/cjeanneret/babycam/internal/debug"
)

// Config holds the fixed constants of a tracking controller.
type Config struct {
	MaxMotorStep    int     `yaml:"max_motor_step" json:"max_motor_step"`     // command magnitude ceiling per axis
	DeadZone        float64 `yaml:"dead_zone" json:"dead_zone"`               // minimum acted-upon error, [0, 0.5)
	SmoothingFactor float64 `yaml:"smoothing_factor" json:"smoothing_factor"` // weight of the new raw command, (0, 1]
}

// DefaultConfig returns the constants the face-tracking rig was tuned with.
func DefaultConfig() Config {
	return Config{
		MaxMotorStep:    100,
		DeadZone:        0.05,
		SmoothingFactor: 0.3,
	}
}

// Validate checks the constants against their allowed ranges.
func (c Config) Validate() error {
	if c.MaxMotorStep <= 0 {
		return fmt.Errorf("%w: max_motor_step must be > 0, got %d", ErrInvalidConfig, c.MaxMotorStep)
	}
	if math.IsNaN(c.DeadZone) || c.DeadZone < 0 || c.DeadZone >= 0.5 {
		return fmt.Errorf("%w: dead_zone must be in [0, 0.5), got %g", ErrInvalidConfig, c.DeadZone)
	}
	if math.IsNaN(c.SmoothingFactor) || c.SmoothingFactor <= 0 || c.SmoothingFactor > 1 {
		return fmt.Errorf("%w: smoothing_factor must be in (0, 1], got %g", ErrInvalidConfig, c.SmoothingFactor)
	}
	return nil
}

// Position is a target position as a fraction of frame width and height.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Detection is what the perception side reports for one processed frame.
type Detection struct {
	Found    bool
	Position Position
}

// Hit returns a detection at (x, y).
func Hit(x, y float64) Detection {
	return Detection{Found: true, Position: Position{X: x, Y: y}}
}

// Miss returns a "no target in this frame" detection.
func Miss() Detection {
	return Detection{}
}

// Command is a two-axis motor command in abstract steps.
type Command struct {
	StepX int `json:"step_x"`
	StepY int `json:"step_y"`
}

// State is the smoothing history: the last emitted command per axis.
type State struct {
	PrevStepX int `json:"prev_step_x"`
	PrevStepY int `json:"prev_step_y"`
}

// Controller turns noisy target positions into damped, dead-zone filtered,
// bounded pan/tilt commands. Calls are serialized; the smoothing history is
// only meaningful as a strictly ordered sequence.
type Controller struct {
	cfg Config

	mu    sync.Mutex
	state State
}

// NewController validates cfg and returns a controller with a zero state.
func NewController(cfg Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Controller{cfg: cfg}, nil
}

// Config returns the controller constants.
func (c *Controller) Config() Config {
	return c.cfg
}

// State returns a copy of the current smoothing history.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Reset zeroes the smoothing history.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.state = State{}
	c.mu.Unlock()
	debug.Verbose("Tracking: state reset")
}

// Track feeds one frame's detection. A miss leaves the state untouched and
// emits nothing: the actuator keeps holding the last command.
func (c *Controller) Track(d Detection) (Command, bool, error) {
	if !d.Found {
		return Command{}, false, nil
	}
	cmd, err := c.Compute(d.Position.X, d.Position.Y)
	if err != nil {
		return Command{}, false, err
	}
	return cmd, true, nil
}

// Compute returns the next command for a target at (x, y) and records it as
// the new smoothing history. Coordinates outside [0, 1] are rejected without
// touching the state.
func (c *Controller) Compute(x, y float64) (Command, error) {
	if err := checkCoordinate(AxisX, x); err != nil {
		return Command{}, err
	}
	if err := checkCoordinate(AxisY, y); err != nil {
		return Command{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	stepX := c.axisStep(x, c.state.PrevStepX)
	stepY := c.axisStep(y, c.state.PrevStepY)

	if err := c.checkBound(AxisX, stepX); err != nil {
		return Command{}, err
	}
	if err := c.checkBound(AxisY, stepY); err != nil {
		return Command{}, err
	}

	c.state = State{PrevStepX: stepX, PrevStepY: stepY}
	return Command{StepX: stepX, StepY: stepY}, nil
}

// axisStep runs the per-axis pipeline: centre error, dead zone, scale,
// first-order low-pass against prev, round half to even.
func (c *Controller) axisStep(coord float64, prev int) int {
	e := coord - 0.5
	if math.Abs(e) < c.cfg.DeadZone {
		e = 0
	}
	raw := e * 2 * float64(c.cfg.MaxMotorStep)
	s := c.cfg.SmoothingFactor
	smoothed := float64(prev)*(1-s) + raw*s
	return int(math.RoundToEven(smoothed))
}

func (c *Controller) checkBound(axis Axis, step int) error {
	if withinBound(step, c.cfg.MaxMotorStep) {
		return nil
	}
	err := &InternalConsistencyError{Axis: axis, Step: step, Max: c.cfg.MaxMotorStep}
	debug.Error(err)
	return err
}

func withinBound(step, max int) bool {
	return step >= -max && step <= max
}

func checkCoordinate(axis Axis, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return &InvalidInputError{Axis: axis, Value: v}
	}
	return nil
}

// ErrorPercent returns the signed distance of p from the frame centre as a
// percentage of frame width and height.
func ErrorPercent(p Position) (float64, float64) {
	return (p.X - 0.5) * 100, (p.Y - 0.5) * 100
}
