package datasource

import (
	"context"
	"time"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// WithConnectionTimeout bounds ctx by the connection's configured timeout.
// An earlier deadline already on ctx still wins.
func WithConnectionTimeout(ctx context.Context, cfg models.ConnectionConfig) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, cfg.Timeout())
}

// ProbeResult builds a ConnectionTestResult from a probe's start time and outcome.
func ProbeResult(start time.Time, err error, okMessage string) *models.ConnectionTestResult {
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return &models.ConnectionTestResult{Success: false, Message: err.Error(), LatencyMs: &latency}
	}
	return &models.ConnectionTestResult{Success: true, Message: okMessage, LatencyMs: &latency}
}

// InvalidConfigResult reports a config of the wrong variant or one that fails validation.
func InvalidConfigResult(err error) *models.ConnectionTestResult {
	return &models.ConnectionTestResult{Success: false, Message: err.Error()}
}
