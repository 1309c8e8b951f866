package follow

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cjeanneret/babycam/internal/logic/tracking"
)

const instrumentationName = "github.com/cjeanneret/babycam/internal/logic/follow"

// meter returns the global meter (no-op unless a provider is installed).
func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type loopMetrics struct {
	frames    metric.Int64Counter
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	rejected  metric.Int64Counter
	magnitude metric.Int64Histogram
}

func newLoopMetrics(m metric.Meter) (*loopMetrics, error) {
	var (
		lm  loopMetrics
		err error
	)
	lm.frames, err = m.Int64Counter("tracking.frames",
		metric.WithDescription("Frames pulled from the perception source"))
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}
	lm.hits, err = m.Int64Counter("tracking.detections",
		metric.WithDescription("Frames with a detected target"))
	if err != nil {
		return nil, fmt.Errorf("creating detections counter: %w", err)
	}
	lm.misses, err = m.Int64Counter("tracking.misses",
		metric.WithDescription("Frames without a detected target"))
	if err != nil {
		return nil, fmt.Errorf("creating misses counter: %w", err)
	}
	lm.rejected, err = m.Int64Counter("tracking.rejected",
		metric.WithDescription("Detections rejected as invalid input"))
	if err != nil {
		return nil, fmt.Errorf("creating rejected counter: %w", err)
	}
	lm.magnitude, err = m.Int64Histogram("tracking.command.magnitude",
		metric.WithDescription("Absolute motor command per axis"),
		metric.WithUnit("{step}"))
	if err != nil {
		return nil, fmt.Errorf("creating magnitude histogram: %w", err)
	}
	return &lm, nil
}

var (
	axisX = metric.WithAttributes(attribute.String("axis", "x"))
	axisY = metric.WithAttributes(attribute.String("axis", "y"))
)

func (lm *loopMetrics) command(ctx context.Context, cmd tracking.Command) {
	lm.magnitude.Record(ctx, int64(abs(cmd.StepX)), axisX)
	lm.magnitude.Record(ctx, int64(abs(cmd.StepY)), axisY)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
