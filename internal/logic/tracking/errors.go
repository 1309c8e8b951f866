package tracking

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig is returned by NewController for out-of-range constants.
	ErrInvalidConfig = errors.New("invalid tracking config")
	// ErrInvalidInput matches every *InvalidInputError.
	ErrInvalidInput = errors.New("invalid input coordinate")
	// ErrInternalConsistency matches every *InternalConsistencyError.
	ErrInternalConsistency = errors.New("internal consistency violation")
)

// Axis names a controller axis.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
)

// InvalidInputError reports a coordinate outside [0, 1] (or NaN).
type InvalidInputError struct {
	Axis  Axis
	Value float64
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("coordinate %s=%g outside [0, 1]", e.Axis, e.Value)
}

func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// InternalConsistencyError reports a computed step outside
// [-MaxMotorStep, MaxMotorStep]. It points at a configuration or
// arithmetic bug, never at bad input.
type InternalConsistencyError struct {
	Axis Axis
	Step int
	Max  int
}

func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf("step %s=%d exceeds max motor step %d", e.Axis, e.Step, e.Max)
}

func (e *InternalConsistencyError) Is(target error) bool {
	return target == ErrInternalConsistency
}
