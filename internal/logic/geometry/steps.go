package geometry

import (
	"math"

	"github.com/cjeanneret/babycam/internal/config"
	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// StepsCalculator converts angles and abstract tracking commands to motor
// microsteps.
type StepsCalculator struct {
	panStepsPerDegree  float64
	tiltStepsPerDegree float64
	degreesPerUnit     float64
}

// NewStepsCalculator creates a step calculator from configuration.
func NewStepsCalculator(cfg *config.Config) *StepsCalculator {
	panMicrostepsPerRev := float64(cfg.PanStepper.StepsPerRev * cfg.PanStepper.Microstepping)
	tiltMicrostepsPerRev := float64(cfg.TiltStepper.StepsPerRev * cfg.TiltStepper.Microstepping)

	return &StepsCalculator{
		panStepsPerDegree:  panMicrostepsPerRev / 360.0,
		tiltStepsPerDegree: tiltMicrostepsPerRev / 360.0,
		degreesPerUnit:     cfg.Actuator.DegreesPerUnit,
	}
}

// PanStepsFromAngle converts a horizontal angle (in degrees) to motor steps,
// rounded to the nearest microstep.
func (s *StepsCalculator) PanStepsFromAngle(angleDegrees float64) int {
	return int(math.Round(angleDegrees * s.panStepsPerDegree))
}

// TiltStepsFromAngle converts a vertical angle (in degrees) to motor steps,
// rounded to the nearest microstep.
func (s *StepsCalculator) TiltStepsFromAngle(angleDegrees float64) int {
	return int(math.Round(angleDegrees * s.tiltStepsPerDegree))
}

// CommandAngles returns the head rotation, in degrees, a command asks for.
func (s *StepsCalculator) CommandAngles(cmd tracking.Command) (pan, tilt float64) {
	return float64(cmd.StepX) * s.degreesPerUnit, float64(cmd.StepY) * s.degreesPerUnit
}

// StepsForCommand converts an abstract command to pan and tilt microsteps.
func (s *StepsCalculator) StepsForCommand(cmd tracking.Command) (pan, tilt int) {
	panDeg, tiltDeg := s.CommandAngles(cmd)
	return s.PanStepsFromAngle(panDeg), s.TiltStepsFromAngle(tiltDeg)
}
