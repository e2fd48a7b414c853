// Package engine orchestrates a load test: it runs the setup stage once, starts
// every scenario concurrently, applies global stop conditions and aggregates
// the final report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/libload/internal/performance"
	"github.com/wesleyorama2/libload/internal/performance/executor"
	"github.com/wesleyorama2/libload/internal/performance/metrics"
)

// DefaultSetupTimeout bounds the setup and teardown stages.
const DefaultSetupTimeout = 60 * time.Second

// Options configure an Engine.
type Options struct {
	// Scenarios to run concurrently. Names must be unique.
	Scenarios []*performance.Scenario

	// Setup runs once before any scenario. Optional.
	Setup performance.SetupFunc

	// Teardown runs once after every scenario has completed. Optional.
	Teardown performance.TeardownFunc

	// SetupTimeout bounds Setup and Teardown (default: 60s).
	SetupTimeout time.Duration

	// Duration caps the whole run. Zero means no cap.
	Duration time.Duration

	// Abort is an optional global stop condition.
	Abort *AbortCondition

	// Thresholds are evaluated against the final metrics.
	Thresholds Thresholds

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Report is the outcome of a run.
type Report struct {
	RunID     string        `json:"runId"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	// Setup lists how many values the setup stage produced per key.
	Setup map[string]int `json:"setup,omitempty"`

	// Scenarios are sorted by name.
	Scenarios []executor.Stats `json:"scenarios"`
	Metrics   *metrics.Snapshot `json:"metrics"`

	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abortReason,omitempty"`

	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
	Passed     bool              `json:"passed"`

	TeardownError string `json:"teardownError,omitempty"`
}

// Engine is the orchestrator of a load test.
//
// Example usage:
//
//	eng, _ := engine.New(opts, client)
//	report, _ := eng.Run(ctx)
//	fmt.Printf("Test passed: %v\n", report.Passed)
type Engine struct {
	opts      Options
	client    performance.Requester
	logger    *zap.Logger
	collector *metrics.Collector

	mu          sync.Mutex
	running     bool
	runners     []*executor.Runner
	stopped     bool
	abortReason string
}

// New validates opts and creates an engine. Every error matches
// performance.ErrInvalidConfig.
func New(opts Options, client performance.Requester) (*Engine, error) {
	if err := validate(opts, client); err != nil {
		return nil, err
	}

	if opts.SetupTimeout <= 0 {
		opts.SetupTimeout = DefaultSetupTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	collectorConfig := metrics.DefaultConfig()
	if opts.Abort != nil {
		cond := opts.Abort.withDefaults()
		opts.Abort = &cond
		collectorConfig.ErrorWindow = cond.Window
	}

	return &Engine{
		opts:      opts,
		client:    client,
		logger:    opts.Logger,
		collector: metrics.NewCollectorWithConfig(collectorConfig),
	}, nil
}

func validate(opts Options, client performance.Requester) error {
	var problems []string

	if client == nil {
		problems = append(problems, "no HTTP client")
	}
	if len(opts.Scenarios) == 0 {
		problems = append(problems, "at least one scenario is required")
	}

	seen := make(map[string]bool)
	for i, s := range opts.Scenarios {
		if s == nil {
			problems = append(problems, fmt.Sprintf("scenario %d is nil", i))
			continue
		}
		if seen[s.Name()] {
			problems = append(problems, fmt.Sprintf("duplicate scenario name %q", s.Name()))
		}
		seen[s.Name()] = true
		if s.Exec() == nil {
			problems = append(problems, fmt.Sprintf("scenario %q has no exec function", s.Name()))
		}
	}

	if opts.Duration < 0 {
		problems = append(problems, "duration must not be negative")
	}
	if opts.Abort != nil {
		if err := opts.Abort.validate(); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if err := opts.Thresholds.Validate(); err != nil {
		problems = append(problems, fmt.Sprintf("thresholds: %v", err))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", performance.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Collector returns the live metrics collector of the engine.
func (e *Engine) Collector() *metrics.Collector {
	return e.collector
}

// Run executes setup, every scenario and teardown, and returns the report.
//
// Only setup failures (ErrSetupFailed) and a second concurrent Run are
// returned as errors. Per-request failures are in the report. Cancelling ctx
// moves every scenario to draining.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.running || e.runners != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine has already been started")
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	report := &Report{RunID: uuid.NewString(), StartTime: time.Now()}
	logger := e.logger.With(zap.String("runId", report.RunID))

	setup, err := e.runSetup(ctx, logger)
	if err != nil {
		return nil, err
	}
	report.Setup = make(map[string]int)
	for _, key := range setup.Keys() {
		report.Setup[key] = setup.Len(key)
	}

	runners := make([]*executor.Runner, 0, len(e.opts.Scenarios))
	for _, s := range e.opts.Scenarios {
		r, err := executor.NewRunner(s, executor.Options{
			Client:    e.client,
			Collector: e.collector,
			Setup:     setup,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		runners = append(runners, r)
	}

	e.mu.Lock()
	e.runners = runners
	stopped := e.stopped
	e.mu.Unlock()

	// A stop during setup found no runners to drain.
	if stopped {
		logger.Info("stopped before scenarios started")
		for _, r := range runners {
			r.Drain()
		}
	}

	logger.Info("starting scenarios", zap.Int("scenarios", len(runners)))
	e.collector.Start()

	watchCtx, stopWatch := context.WithCancel(ctx)
	if e.opts.Abort != nil {
		go watchAbort(watchCtx, *e.opts.Abort, e.collector, logger, e.stopAll)
	}
	if e.opts.Duration > 0 {
		go func() {
			timer := time.NewTimer(e.opts.Duration)
			defer timer.Stop()
			select {
			case <-timer.C:
				logger.Info("run duration reached", zap.Duration("duration", e.opts.Duration))
				e.drainAll()
			case <-watchCtx.Done():
			}
		}()
	}

	var g errgroup.Group
	for _, r := range runners {
		r := r
		g.Go(func() error {
			return r.Run(ctx)
		})
	}
	runErr := g.Wait()
	stopWatch()

	report.TeardownError = e.runTeardown(ctx, setup, logger)

	report.EndTime = time.Now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	report.Metrics = e.collector.Snapshot()

	for _, r := range runners {
		report.Scenarios = append(report.Scenarios, r.Stats())
	}
	sort.Slice(report.Scenarios, func(i, j int) bool {
		return report.Scenarios[i].Scenario < report.Scenarios[j].Scenario
	})

	e.mu.Lock()
	report.AbortReason = e.abortReason
	e.mu.Unlock()
	report.Aborted = report.AbortReason != ""

	report.Thresholds = evaluateThresholds(e.opts.Thresholds, report.Metrics)
	report.Passed = !report.Aborted
	for _, tr := range report.Thresholds {
		if !tr.Passed {
			report.Passed = false
		}
	}

	logger.Info("run finished",
		zap.Duration("duration", report.Duration),
		zap.Int64("requests", report.Metrics.Global.Requests),
		zap.Int64("failures", report.Metrics.Global.Failures),
		zap.Int64("dropped", report.Metrics.Global.Dropped),
		zap.Bool("aborted", report.Aborted),
		zap.Bool("passed", report.Passed),
	)

	return report, runErr
}

// Stop asks every scenario to drain, as if the abort condition had triggered.
func (e *Engine) Stop() {
	e.stopAll("stopped by operator")
}

// stopAll records the first stop reason and drains every runner. Runners
// created later are drained by Run.
func (e *Engine) stopAll(reason string) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.abortReason = reason
	runners := e.runners
	e.mu.Unlock()

	for _, r := range runners {
		r.Drain()
	}
}

func (e *Engine) drainAll() {
	e.mu.Lock()
	runners := e.runners
	e.mu.Unlock()

	for _, r := range runners {
		r.Drain()
	}
}

// runSetup runs the setup stage exactly once.
func (e *Engine) runSetup(ctx context.Context, logger *zap.Logger) (*performance.SetupContext, error) {
	if e.opts.Setup == nil {
		return performance.NewSetupContext(nil), nil
	}

	setupCtx, cancel := context.WithTimeout(ctx, e.opts.SetupTimeout)
	defer cancel()

	start := time.Now()
	logger.Info("running setup", zap.Duration("timeout", e.opts.SetupTimeout))

	setup, err := e.opts.Setup(setupCtx, e.client)
	if err != nil {
		if errors.Is(err, performance.ErrSetupFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", performance.ErrSetupFailed, err)
	}
	if setup == nil {
		setup = performance.NewSetupContext(nil)
	}

	fields := []zap.Field{zap.Duration("took", time.Since(start))}
	for _, key := range setup.Keys() {
		fields = append(fields, zap.Int(key, setup.Len(key)))
	}
	logger.Info("setup complete", fields...)
	return setup, nil
}

// runTeardown runs the teardown hook, even when ctx was cancelled.
func (e *Engine) runTeardown(ctx context.Context, setup *performance.SetupContext, logger *zap.Logger) string {
	if e.opts.Teardown == nil {
		return ""
	}

	teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.SetupTimeout)
	defer cancel()

	if err := e.opts.Teardown(teardownCtx, e.client, setup); err != nil {
		logger.Warn("teardown failed", zap.Error(err))
		return err.Error()
	}
	return ""
}
