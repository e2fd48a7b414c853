// Package executor drives the iterations of one scenario.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/libload/internal/performance"
	"github.com/wesleyorama2/libload/internal/performance/metrics"
	"github.com/wesleyorama2/libload/internal/performance/rate"
)

// State is the lifecycle state of a Runner.
type State int32

const (
	// StatePending is the state before Run is called.
	StatePending State = iota
	// StateRunning means iterations are being dispatched.
	StateRunning
	// StateDraining means no new iterations start; in-flight ones finish.
	StateDraining
	// StateCompleted means every iteration has finished.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// overshootThreshold is how late a tick may be dispatched before it counts
// as an overshoot.
const overshootThreshold = time.Millisecond

// interruptGrace is how long interrupted iterations get to return after the
// graceful stop expired. Iterations still running after it are abandoned.
const interruptGrace = 100 * time.Millisecond

// Options are the collaborators a Runner needs.
type Options struct {
	Client    performance.Requester
	Collector *metrics.Collector
	Setup     *performance.SetupContext

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Stats summarises what a Runner did.
type Stats struct {
	Scenario string                   `json:"scenario"`
	Executor performance.ExecutorType `json:"executor"`
	State    string                   `json:"state"`

	Started     int64 `json:"started"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Dropped     int64 `json:"dropped"`
	Interrupted int64 `json:"interrupted"`

	// Expected is the number of iterations the scenario planned to start.
	Expected int64 `json:"expected"`

	VUs     int `json:"vus"`
	PeakVUs int `json:"peakVUs"`
	MaxVUs  int `json:"maxVUs"`

	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`
}

// Runner binds a scenario to its VU pool and schedule and drives it through
// Pending, Running, Draining and Completed.
//
// A Runner is single-use. Drain may be called from any goroutine to move it to
// Draining early.
type Runner struct {
	scenario *performance.Scenario
	env      performance.Env
	logger   *zap.Logger
	pool     *performance.VUPool

	state     atomic.Int32
	drainCh   chan struct{}
	drainOnce sync.Once

	// in-flight iterations and iteration workers
	wg sync.WaitGroup

	number      atomic.Int64
	started     atomic.Int64
	completed   atomic.Int64
	failed      atomic.Int64
	dropped     atomic.Int64
	interrupted atomic.Int64
	expected    int64

	// shared-iterations budget
	remaining atomic.Int64

	// iterations that have not finished yet; once abandoned, late finishers
	// are no longer counted
	finishMu  sync.Mutex
	inFlight  int64
	abandoned bool

	mu        sync.Mutex
	startTime time.Time
	endTime   time.Time
}

// NewRunner creates a runner for scenario.
func NewRunner(scenario *performance.Scenario, opts Options) (*Runner, error) {
	if scenario == nil {
		return nil, fmt.Errorf("%w: nil scenario", performance.ErrInvalidConfig)
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("%w: scenario %q: no client", performance.ErrInvalidConfig, scenario.Name())
	}
	if opts.Collector == nil {
		opts.Collector = metrics.NewCollector()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := &Runner{
		scenario: scenario,
		env: performance.Env{
			Client:    opts.Client,
			Collector: opts.Collector,
			Setup:     opts.Setup,
		},
		logger:  opts.Logger.With(zap.String("scenario", scenario.Name()), zap.String("executor", string(scenario.Executor()))),
		drainCh: make(chan struct{}),
	}

	switch scenario.Executor() {
	case performance.ConstantArrivalRate, performance.RampingArrivalRate:
		sched, err := scenario.NewSchedule()
		if err != nil {
			return nil, fmt.Errorf("%w: scenario %q: %v", performance.ErrInvalidConfig, scenario.Name(), err)
		}
		r.expected = sched.ExpectedTicks()
		r.pool = performance.NewVUPool(scenario.PreAllocatedVUs(), scenario.MaxVUs())
	case performance.PerVUIterations:
		r.expected = int64(scenario.VUs()) * scenario.Iterations()
		r.pool = performance.NewVUPool(scenario.VUs(), scenario.VUs())
	case performance.SharedIterations:
		r.expected = scenario.Iterations()
		r.pool = performance.NewVUPool(scenario.VUs(), scenario.VUs())
	case performance.ConstantVUs:
		// Open-ended: as many iterations as the VUs complete in the duration.
		r.pool = performance.NewVUPool(scenario.VUs(), scenario.VUs())
	default:
		return nil, fmt.Errorf("%w: scenario %q: unknown executor %q", performance.ErrInvalidConfig, scenario.Name(), scenario.Executor())
	}

	return r, nil
}

// Scenario returns the scenario this runner drives.
func (r *Runner) Scenario() *performance.Scenario {
	return r.scenario
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Drain stops dispatching new iterations. In-flight iterations are allowed to
// finish within the scenario's graceful stop.
func (r *Runner) Drain() {
	r.drainOnce.Do(func() { close(r.drainCh) })
}

// Run dispatches the scenario's iterations and blocks until the runner is
// Completed.
//
// Cancelling ctx has the same effect as Drain. In-flight iterations keep
// running after that and are interrupted only once the graceful stop expires.
func (r *Runner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StatePending), int32(StateRunning)) {
		return fmt.Errorf("scenario %q: runner already started", r.scenario.Name())
	}

	r.mu.Lock()
	r.startTime = time.Now()
	r.mu.Unlock()

	r.logger.Info("scenario started",
		zap.Int64("expectedIterations", r.expected),
		zap.Int("preAllocatedVUs", r.pool.PreAllocated()),
		zap.Int("maxVUs", r.pool.Max()),
	)

	// Iterations outlive ctx until the graceful stop expires.
	iterCtx, interrupt := context.WithCancel(context.WithoutCancel(ctx))
	defer interrupt()

	switch r.scenario.Executor() {
	case performance.ConstantArrivalRate, performance.RampingArrivalRate:
		r.runArrivalRate(ctx, iterCtx)
	case performance.PerVUIterations:
		r.runPerVUIterations(ctx, iterCtx)
	case performance.SharedIterations:
		r.runSharedIterations(ctx, iterCtx)
	case performance.ConstantVUs:
		r.runConstantVUs(ctx, iterCtx)
	}

	r.state.Store(int32(StateDraining))
	r.logger.Debug("scenario draining", zap.Int("inFlight", r.pool.Busy()))

	if !r.waitInFlight(r.scenario.GracefulStop()) {
		r.logger.Warn("graceful stop expired, interrupting iterations",
			zap.Duration("gracefulStop", r.scenario.GracefulStop()),
			zap.Int("inFlight", r.pool.Busy()),
		)
		interrupt()
		if !r.waitInFlight(interruptGrace) {
			r.logger.Warn("iterations ignore cancellation, completing without them",
				zap.Int64("abandoned", r.abandon()),
			)
		}
	}

	r.pool.Close()

	r.mu.Lock()
	r.endTime = time.Now()
	r.mu.Unlock()
	r.state.Store(int32(StateCompleted))

	stats := r.Stats()
	r.logger.Info("scenario completed",
		zap.Int64("started", stats.Started),
		zap.Int64("completed", stats.Completed),
		zap.Int64("failed", stats.Failed),
		zap.Int64("dropped", stats.Dropped),
		zap.Int64("interrupted", stats.Interrupted),
		zap.Int("peakVUs", stats.PeakVUs),
		zap.Duration("duration", stats.Duration),
	)
	return nil
}

// Stats returns a snapshot of the runner's counters.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	start, end := r.startTime, r.endTime
	r.mu.Unlock()

	var duration time.Duration
	switch {
	case end.After(start):
		duration = end.Sub(start)
	case !start.IsZero():
		duration = time.Since(start)
	}

	return Stats{
		Scenario:    r.scenario.Name(),
		Executor:    r.scenario.Executor(),
		State:       r.State().String(),
		Started:     r.started.Load(),
		Completed:   r.completed.Load(),
		Failed:      r.failed.Load(),
		Dropped:     r.dropped.Load(),
		Interrupted: r.interrupted.Load(),
		Expected:    r.expected,
		VUs:         r.pool.Size(),
		PeakVUs:     r.pool.Peak(),
		MaxVUs:      r.pool.Max(),
		StartTime:   start,
		Duration:    duration,
	}
}

// stopping reports whether dispatch should stop.
func (r *Runner) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-r.drainCh:
		return true
	default:
		return false
	}
}

// waitInFlight waits for iterations to finish, up to grace.
func (r *Runner) waitInFlight(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// iterate runs one iteration on vu and records its outcome.
func (r *Runner) iterate(ctx context.Context, vu *performance.VirtualUser, tick rate.Tick) {
	r.started.Add(1)
	r.finishMu.Lock()
	r.inFlight++
	r.finishMu.Unlock()

	it := performance.NewIteration(r.env, r.scenario.Name(), vu, r.number.Add(1)-1, tick)

	begin := time.Now()
	err := r.exec(ctx, it)

	r.finishMu.Lock()
	r.inFlight--
	abandoned := r.abandoned
	r.finishMu.Unlock()
	if abandoned {
		return
	}
	r.env.Collector.RecordIteration(r.scenario.Name(), time.Since(begin), err != nil)

	if err == nil {
		r.completed.Add(1)
		return
	}

	r.failed.Add(1)
	if ctx.Err() != nil {
		r.interrupted.Add(1)
	}

	var cfe *performance.CheckFailedError
	if !errors.As(err, &cfe) {
		r.logger.Debug("iteration failed",
			zap.Int("vu", vu.ID),
			zap.Int64("iteration", it.Number),
			zap.Error(err),
		)
	}
}

// abandon counts every unfinished iteration as failed and interrupted and
// stops counting them when they return. It reports how many there were.
func (r *Runner) abandon() int64 {
	r.finishMu.Lock()
	defer r.finishMu.Unlock()

	r.abandoned = true
	r.failed.Add(r.inFlight)
	r.interrupted.Add(r.inFlight)
	return r.inFlight
}

// exec calls the iteration body, turning a panic into an error.
func (r *Runner) exec(ctx context.Context, it *performance.Iteration) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("iteration panicked: %v", rec)
			r.logger.Error("iteration panicked", zap.Int("vu", it.VU.ID), zap.Any("panic", rec))
		}
	}()
	return r.scenario.Exec()(ctx, it)
}
