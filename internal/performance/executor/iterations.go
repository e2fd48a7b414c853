package executor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/libload/internal/performance"
	"github.com/wesleyorama2/libload/internal/performance/rate"
)

// runPerVUIterations gives every VU the same number of iterations, run
// back-to-back (closed model).
func (r *Runner) runPerVUIterations(ctx, iterCtx context.Context) {
	perVU := r.scenario.Iterations()
	r.runWorkers(ctx, iterCtx, func() bool { return true }, perVU)
}

// runSharedIterations lets all VUs draw from one iteration budget until it is
// exhausted. Fast VUs end up running more iterations than slow ones.
func (r *Runner) runSharedIterations(ctx, iterCtx context.Context) {
	r.remaining.Store(r.scenario.Iterations())
	take := func() bool { return r.remaining.Add(-1) >= 0 }
	r.runWorkers(ctx, iterCtx, take, -1)
}

// runConstantVUs keeps every VU iterating back-to-back until the scenario
// duration has elapsed (closed model, no iteration cap).
func (r *Runner) runConstantVUs(ctx, iterCtx context.Context) {
	r.runWorkers(ctx, iterCtx, func() bool { return true }, -1)
}

// runWorkers starts one worker per VU and returns once every worker is done,
// the scenario duration has elapsed or the runner is told to stop. Workers
// that are still running are left to the drain phase.
//
// Each worker runs until take reports false or, when limit is not negative,
// after limit iterations. Between iterations it pauses for the think time.
func (r *Runner) runWorkers(ctx, iterCtx context.Context, take func() bool, limit int64) {
	loopCtx, cancel := context.WithTimeout(ctx, r.scenario.Duration())
	defer cancel()

	workers := r.scenario.VUs()
	done := make(chan struct{})
	finished := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		vu, ok := r.pool.Acquire()
		if !ok {
			// The pool is sized to VUs; this cannot happen.
			r.logger.Error("no VU for worker", zap.Int("worker", i))
			finished <- struct{}{}
			continue
		}

		r.wg.Add(1)
		go func(vu *performance.VirtualUser) {
			defer r.wg.Done()
			defer func() { finished <- struct{}{} }()
			defer r.pool.Release(vu)
			r.worker(loopCtx, iterCtx, vu, take, limit)
		}(vu)
	}

	go func() {
		for i := 0; i < workers; i++ {
			<-finished
		}
		close(done)
	}()

	select {
	case <-done:
	case <-loopCtx.Done():
		if ctx.Err() == nil {
			r.logger.Info("scenario duration reached", zap.Duration("duration", r.scenario.Duration()))
		}
	case <-r.drainCh:
	}
}

func (r *Runner) worker(loopCtx, iterCtx context.Context, vu *performance.VirtualUser, take func() bool, limit int64) {
	think := r.scenario.ThinkTime()

	var timer *time.Timer
	if think > 0 {
		timer = time.NewTimer(think)
		timer.Stop()
		defer timer.Stop()
	}

	for n := int64(0); limit < 0 || n < limit; n++ {
		if n > 0 && think > 0 {
			timer.Reset(think)
			select {
			case <-loopCtx.Done():
				return
			case <-r.drainCh:
				return
			case <-timer.C:
			}
		}
		if r.stopping(loopCtx) || !take() {
			return
		}
		r.iterate(iterCtx, vu, rate.Tick{})
	}
}
