package motion

import (
	"context"
	"fmt"
	"sync"

	"github.com/cjeanneret/babycam/internal/debug"
	"github.com/cjeanneret/babycam/internal/hw/stepper"
	"github.com/cjeanneret/babycam/internal/logic/geometry"
	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// Controller orchestrates pan/tilt movements via two stepper motors.
// It sits between the tracking loop and the low level (GPIO): Drive turns
// an abstract tracking command into microsteps on each axis.
type Controller struct {
	pan   *stepper.Stepper
	tilt  *stepper.Stepper
	steps *geometry.StepsCalculator

	mu       sync.Mutex
	disabled bool
}

func NewController(pan, tilt *stepper.Stepper, steps *geometry.StepsCalculator) *Controller {
	return &Controller{
		pan:   pan,
		tilt:  tilt,
		steps: steps,
	}
}

func (c *Controller) MovePan(ctx context.Context, steps int) (int, error) {
	return c.pan.MoveSteps(ctx, steps)
}

func (c *Controller) MoveTilt(ctx context.Context, steps int) (int, error) {
	return c.tilt.MoveSteps(ctx, steps)
}

// MovePanTilt performs a combined movement, pan first then tilt.
func (c *Controller) MovePanTilt(ctx context.Context, panSteps, tiltSteps int) error {
	if _, err := c.MovePan(ctx, panSteps); err != nil {
		return fmt.Errorf("pan: %w", err)
	}
	if _, err := c.MoveTilt(ctx, tiltSteps); err != nil {
		return fmt.Errorf("tilt: %w", err)
	}
	return nil
}

// Drive moves the head by the rotation a tracking command asks for,
// re-enabling the drivers first if they were disabled.
func (c *Controller) Drive(ctx context.Context, cmd tracking.Command) error {
	panSteps, tiltSteps := c.steps.StepsForCommand(cmd)
	if panSteps == 0 && tiltSteps == 0 {
		return nil
	}
	c.mu.Lock()
	disabled := c.disabled
	c.mu.Unlock()
	if disabled {
		if err := c.EnableMotors(); err != nil {
			return fmt.Errorf("enable motors: %w", err)
		}
	}
	debug.Move("pan", panSteps, direction(panSteps))
	debug.Move("tilt", tiltSteps, direction(tiltSteps))
	return c.MovePanTilt(ctx, panSteps, tiltSteps)
}

// Home drives both axes back to the power-on position, pan first.
func (c *Controller) Home(ctx context.Context) error {
	debug.Live("Returning to home position")
	pan, tilt := c.Position()
	if pan == 0 && tilt == 0 {
		return nil
	}
	c.mu.Lock()
	disabled := c.disabled
	c.mu.Unlock()
	if disabled {
		if err := c.EnableMotors(); err != nil {
			return fmt.Errorf("enable motors: %w", err)
		}
	}
	return c.MovePanTilt(ctx, -pan, -tilt)
}

// Position returns both axes' positions in microsteps.
func (c *Controller) Position() (pan, tilt int) {
	return c.pan.Position(), c.tilt.Position()
}

// EnableMotors powers both drivers; the head holds its position.
func (c *Controller) EnableMotors() error {
	if err := c.pan.Enable(); err != nil {
		return err
	}
	if err := c.tilt.Enable(); err != nil {
		return err
	}
	c.mu.Lock()
	c.disabled = false
	c.mu.Unlock()
	return nil
}

// DisableMotors cuts holding current on both drivers.
func (c *Controller) DisableMotors() error {
	c.mu.Lock()
	c.disabled = true
	c.mu.Unlock()
	if err := c.pan.Disable(); err != nil {
		return err
	}
	return c.tilt.Disable()
}

func direction(steps int) string {
	if steps < 0 {
		return "backward"
	}
	return "forward"
}
