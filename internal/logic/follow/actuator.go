package follow

import (
	"context"
	"errors"

	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// Actuator consumes motor commands: the stepper head, or a link to a
// remote motor controller.
type Actuator interface {
	Drive(ctx context.Context, cmd tracking.Command) error
}

// ActuatorFunc adapts a function to Actuator.
type ActuatorFunc func(ctx context.Context, cmd tracking.Command) error

func (f ActuatorFunc) Drive(ctx context.Context, cmd tracking.Command) error {
	return f(ctx, cmd)
}

// MultiActuator drives every actuator in order. All of them are attempted;
// the failures are joined.
type MultiActuator []Actuator

func (m MultiActuator) Drive(ctx context.Context, cmd tracking.Command) error {
	var errs []error
	for _, a := range m {
		if err := a.Drive(ctx, cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
