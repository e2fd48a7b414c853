package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/libload/internal/performance/metrics"
)

// AbortCondition stops every scenario early when the failure ratio over the
// trailing Window requests exceeds ErrorRate.
type AbortCondition struct {
	// ErrorRate is the failure ratio (0-1) that triggers the abort.
	ErrorRate float64

	// Window is the number of trailing requests the ratio is computed over.
	Window int

	// MinRequests is how many requests the window must hold before the
	// condition is evaluated. Defaults to Window.
	MinRequests int

	// CheckInterval is how often the ratio is checked (default: 1s).
	CheckInterval time.Duration
}

func (a *AbortCondition) validate() error {
	if a.ErrorRate <= 0 || a.ErrorRate > 1 {
		return fmt.Errorf("abort errorRate must be in (0, 1], got %v", a.ErrorRate)
	}
	if a.Window <= 0 {
		return fmt.Errorf("abort window must be positive, got %d", a.Window)
	}
	if a.MinRequests < 0 || a.MinRequests > a.Window {
		return fmt.Errorf("abort minRequests must be between 0 and window (%d), got %d", a.Window, a.MinRequests)
	}
	if a.CheckInterval < 0 {
		return fmt.Errorf("abort checkInterval must not be negative")
	}
	return nil
}

func (a *AbortCondition) withDefaults() AbortCondition {
	out := *a
	if out.MinRequests == 0 {
		out.MinRequests = out.Window
	}
	if out.CheckInterval == 0 {
		out.CheckInterval = time.Second
	}
	return out
}

// watchAbort polls the collector until ctx is done. It calls trigger once,
// with a reason, when the condition is met.
func watchAbort(ctx context.Context, cond AbortCondition, collector *metrics.Collector, logger *zap.Logger, trigger func(reason string)) {
	ticker := time.NewTicker(cond.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ratio, n := collector.TrailingErrorRatio()
			if n < cond.MinRequests || ratio <= cond.ErrorRate {
				continue
			}

			reason := fmt.Sprintf("error ratio %.2f over the last %d requests exceeds %.2f", ratio, n, cond.ErrorRate)
			logger.Warn("abort condition met",
				zap.Float64("errorRatio", ratio),
				zap.Int("window", n),
				zap.Float64("threshold", cond.ErrorRate),
			)
			trigger(reason)
			return
		}
	}
}
