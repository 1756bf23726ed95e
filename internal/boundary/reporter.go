package boundary

import (
	"context"

	"github.com/harvestly/cart-engine/pkg/logger"
)

const SeverityHigh = "high"

// Reporter forwards caught render faults to an external error tracker.
type Reporter interface {
	Report(ctx context.Context, err error, component string, severity string)
}

// LogReporter emits fault reports as structured log events, the default
// sink when no external tracker is configured.
type LogReporter struct {
	logg *logger.Logger
}

func NewLogReporter(logg *logger.Logger) *LogReporter {
	return &LogReporter{logg: logg}
}

func (r *LogReporter) Report(ctx context.Context, err error, component string, severity string) {
	if r.logg == nil {
		return
	}
	logCtx := r.logg.WithFields(ctx, map[string]any{
		"component": component,
		"severity":  severity,
	})
	r.logg.Error(logCtx, "render fault reported", err)
}
