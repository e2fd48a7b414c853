package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/libload/internal/performance/rate"
)

// runArrivalRate dispatches one iteration per tick of the scenario schedule
// (open model). Iteration latency never slows the schedule: when every VU up
// to maxVUs is busy the tick is dropped and dispatch moves on.
//
// It returns when the schedule is exhausted, the scenario duration has
// elapsed, or the runner is told to stop.
func (r *Runner) runArrivalRate(ctx, iterCtx context.Context) {
	sched, err := r.scenario.NewSchedule()
	if err != nil {
		// Validated in NewRunner.
		r.logger.Error("cannot build schedule", zap.Error(err))
		return
	}

	start := time.Now()
	deadline := start.Add(sched.Duration())

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		tick, ok := sched.Next()
		if !ok {
			return
		}

		due := start.Add(tick.Offset)
		if wait := time.Until(due); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return
			case <-r.drainCh:
				return
			case <-timer.C:
			}
		} else if r.stopping(ctx) {
			return
		}

		now := time.Now()
		if !now.Before(deadline) {
			return
		}
		if lag := now.Sub(due); lag > overshootThreshold {
			r.env.Collector.RecordOvershoot(r.scenario.Name(), lag)
		}

		r.dispatch(iterCtx, tick)
	}
}

// dispatch starts an iteration for tick on a free VU, or records a drop.
func (r *Runner) dispatch(ctx context.Context, tick rate.Tick) {
	vu, ok := r.pool.Acquire()
	if !ok {
		r.dropped.Add(1)
		r.env.Collector.RecordDrop(r.scenario.Name())
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.pool.Release(vu)
		r.iterate(ctx, vu, tick)
	}()
}
