package geometry

import (
	"fmt"
	"math"

	"github.com/cjeanneret/babycam/internal/config"
	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

// FOVCalculator computes field of view angles of the tracking camera and
// how far off-axis a target sits, from lens and sensor configuration.
type FOVCalculator struct {
	focalMm  float64
	widthMm  float64
	heightMm float64
}

// NewFOVCalculator creates a new FOV calculator.
// Returns an error if sensor information is not available
// (required for calculations).
func NewFOVCalculator(cfg *config.Config) (*FOVCalculator, error) {
	if cfg.Sensor == nil {
		return nil, fmt.Errorf("sensor configuration is required for FOV calculations")
	}
	if cfg.Lens.FocalLengthMm <= 0 {
		return nil, fmt.Errorf("lens focal length must be > 0, got %g", cfg.Lens.FocalLengthMm)
	}
	return &FOVCalculator{
		focalMm:  cfg.Lens.FocalLengthMm,
		widthMm:  cfg.Sensor.WidthMm,
		heightMm: cfg.Sensor.HeightMm,
	}, nil
}

// HorizontalFOV calculates the horizontal field of view in degrees.
// Formula: FOV = 2 × arctan(sensor_width / (2 × focal_length))
func (f *FOVCalculator) HorizontalFOV() float64 {
	return 2.0 * degrees(math.Atan(f.widthMm/(2.0*f.focalMm)))
}

// VerticalFOV calculates the vertical field of view in degrees.
// Formula: FOV = 2 × arctan(sensor_height / (2 × focal_length))
func (f *FOVCalculator) VerticalFOV() float64 {
	return 2.0 * degrees(math.Atan(f.heightMm/(2.0*f.focalMm)))
}

// OffsetAngles returns how many degrees the target at p sits right of and
// below the optical axis (pinhole model).
// Formula: angle = arctan((coord - 0.5) × sensor_size / focal_length)
func (f *FOVCalculator) OffsetAngles(p tracking.Position) (x, y float64) {
	x = degrees(math.Atan((p.X - 0.5) * f.widthMm / f.focalMm))
	y = degrees(math.Atan((p.Y - 0.5) * f.heightMm / f.focalMm))
	return x, y
}

func degrees(rad float64) float64 {
	return rad * 180.0 / math.Pi
}
