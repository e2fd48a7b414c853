package performance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wesleyorama2/libload/internal/performance/rate"
)

// ExecutorType selects how a scenario dispatches iterations.
type ExecutorType string

const (
	// ConstantArrivalRate starts iterations at a fixed rate.
	ConstantArrivalRate ExecutorType = "constant-arrival-rate"
	// RampingArrivalRate starts iterations at a linearly interpolated rate.
	RampingArrivalRate ExecutorType = "ramping-arrival-rate"
	// PerVUIterations runs a fixed number of iterations on every VU.
	PerVUIterations ExecutorType = "per-vu-iterations"
	// SharedIterations runs a fixed number of iterations shared by all VUs.
	SharedIterations ExecutorType = "shared-iterations"
	// ConstantVUs runs a fixed number of VUs back-to-back for a duration.
	ConstantVUs ExecutorType = "constant-vus"
)

// IsArrivalRate reports whether the executor is driven by a rate schedule.
func (e ExecutorType) IsArrivalRate() bool {
	return e == ConstantArrivalRate || e == RampingArrivalRate
}

// Valid reports whether e is a known executor type.
func (e ExecutorType) Valid() bool {
	switch e {
	case ConstantArrivalRate, RampingArrivalRate, PerVUIterations, SharedIterations, ConstantVUs:
		return true
	}
	return false
}

// Defaults applied by the builder.
const (
	DefaultTimeUnit     = time.Second
	DefaultGracefulStop = 30 * time.Second
	DefaultMaxDuration  = 10 * time.Minute
)

// IterationFunc is the body of one iteration. It receives the iteration
// handle carrying VU identity, tick and setup context.
type IterationFunc func(ctx context.Context, it *Iteration) error

// Scenario is an immutable, validated scenario definition.
// Build one with NewScenario.
type Scenario struct {
	name     string
	executor ExecutorType

	rate      float64
	timeUnit  time.Duration
	startRate float64
	stages    []rate.Stage
	duration  time.Duration

	preAllocatedVUs int
	maxVUs          int

	vus         int
	iterations  int64
	maxDuration time.Duration

	gracefulStop    time.Duration
	gracefulStopSet bool
	thinkTime       time.Duration
	exec            IterationFunc
}

func (s *Scenario) Name() string                { return s.name }
func (s *Scenario) Executor() ExecutorType      { return s.executor }
func (s *Scenario) Rate() float64               { return s.rate }
func (s *Scenario) TimeUnit() time.Duration     { return s.timeUnit }
func (s *Scenario) StartRate() float64          { return s.startRate }
func (s *Scenario) PreAllocatedVUs() int        { return s.preAllocatedVUs }
func (s *Scenario) MaxVUs() int                 { return s.maxVUs }
func (s *Scenario) VUs() int                    { return s.vus }
func (s *Scenario) Iterations() int64           { return s.iterations }
func (s *Scenario) MaxDuration() time.Duration  { return s.maxDuration }
func (s *Scenario) GracefulStop() time.Duration { return s.gracefulStop }
func (s *Scenario) ThinkTime() time.Duration    { return s.thinkTime }
func (s *Scenario) Exec() IterationFunc         { return s.exec }

// Stages returns a copy of the ramping stages.
func (s *Scenario) Stages() []rate.Stage {
	out := make([]rate.Stage, len(s.stages))
	copy(out, s.stages)
	return out
}

// Duration returns how long the scenario dispatches iterations. For
// per-vu-iterations and shared-iterations this is the maxDuration bound.
func (s *Scenario) Duration() time.Duration {
	if s.executor.IsArrivalRate() || s.executor == ConstantVUs {
		return s.duration
	}
	return s.maxDuration
}

// NewSchedule creates a fresh tick schedule for an arrival-rate scenario.
func (s *Scenario) NewSchedule() (*rate.Schedule, error) {
	switch s.executor {
	case ConstantArrivalRate:
		return rate.NewConstant(s.rate, s.timeUnit, s.duration)
	case RampingArrivalRate:
		return rate.NewRamping(s.startRate, s.timeUnit, s.stages)
	default:
		return nil, fmt.Errorf("%w: executor %s has no rate schedule", ErrInvalidConfig, s.executor)
	}
}

func (s *Scenario) String() string {
	switch s.executor {
	case ConstantArrivalRate:
		return fmt.Sprintf("%s: %.4g iterations/%s for %s (maxVUs %d)", s.name, s.rate, s.timeUnit, s.duration, s.maxVUs)
	case RampingArrivalRate:
		return fmt.Sprintf("%s: %d stages over %s (maxVUs %d)", s.name, len(s.stages), s.duration, s.maxVUs)
	case PerVUIterations:
		return fmt.Sprintf("%s: %d iterations for each of %d VUs", s.name, s.iterations, s.vus)
	case ConstantVUs:
		return fmt.Sprintf("%s: %d VUs for %s", s.name, s.vus, s.duration)
	default:
		return fmt.Sprintf("%s: %d iterations shared among %d VUs", s.name, s.iterations, s.vus)
	}
}

// ScenarioBuilder accumulates scenario options. Build validates them.
type ScenarioBuilder struct {
	s Scenario
}

// NewScenario starts building a scenario with the given name and executor.
func NewScenario(name string, executor ExecutorType) *ScenarioBuilder {
	return &ScenarioBuilder{s: Scenario{name: name, executor: executor}}
}

// Rate sets a constant arrival rate of r iterations per timeUnit.
func (b *ScenarioBuilder) Rate(r float64, timeUnit time.Duration) *ScenarioBuilder {
	b.s.rate = r
	b.s.timeUnit = timeUnit
	return b
}

// TimeUnit sets the unit rates are expressed in.
func (b *ScenarioBuilder) TimeUnit(d time.Duration) *ScenarioBuilder {
	b.s.timeUnit = d
	return b
}

// StartRate sets the initial rate of a ramping profile.
func (b *ScenarioBuilder) StartRate(r float64) *ScenarioBuilder {
	b.s.startRate = r
	return b
}

// Stage appends a ramping stage reaching target after d.
func (b *ScenarioBuilder) Stage(target float64, d time.Duration) *ScenarioBuilder {
	b.s.stages = append(b.s.stages, rate.Stage{Target: target, Duration: d})
	return b
}

// Duration sets the dispatch duration of a constant-arrival-rate or
// constant-vus scenario.
func (b *ScenarioBuilder) Duration(d time.Duration) *ScenarioBuilder {
	b.s.duration = d
	return b
}

// PreAllocatedVUs sets the number of VUs created up front.
func (b *ScenarioBuilder) PreAllocatedVUs(n int) *ScenarioBuilder {
	b.s.preAllocatedVUs = n
	return b
}

// MaxVUs sets the pool cap. Defaults to PreAllocatedVUs.
func (b *ScenarioBuilder) MaxVUs(n int) *ScenarioBuilder {
	b.s.maxVUs = n
	return b
}

// VUs sets the worker count of a per-vu-iterations, shared-iterations or
// constant-vus scenario.
func (b *ScenarioBuilder) VUs(n int) *ScenarioBuilder {
	b.s.vus = n
	return b
}

// Iterations sets the per-VU or shared iteration count.
func (b *ScenarioBuilder) Iterations(n int64) *ScenarioBuilder {
	b.s.iterations = n
	return b
}

// MaxDuration bounds an iteration-based scenario.
func (b *ScenarioBuilder) MaxDuration(d time.Duration) *ScenarioBuilder {
	b.s.maxDuration = d
	return b
}

// GracefulStop bounds how long in-flight iterations may run once the
// scenario starts draining. Zero interrupts them right away; when never
// called it defaults to DefaultGracefulStop.
func (b *ScenarioBuilder) GracefulStop(d time.Duration) *ScenarioBuilder {
	b.s.gracefulStop = d
	b.s.gracefulStopSet = true
	return b
}

// ThinkTime is the pause a VU takes between two iterations of a
// constant-vus, per-vu-iterations or shared-iterations scenario. It is not
// part of the iteration duration.
func (b *ScenarioBuilder) ThinkTime(d time.Duration) *ScenarioBuilder {
	b.s.thinkTime = d
	return b
}

// Exec binds the iteration function.
func (b *ScenarioBuilder) Exec(fn IterationFunc) *ScenarioBuilder {
	b.s.exec = fn
	return b
}

// Build validates the options and returns an immutable Scenario.
// Every problem is reported; the error matches ErrInvalidConfig.
func (b *ScenarioBuilder) Build() (*Scenario, error) {
	s := b.s
	s.stages = append([]rate.Stage(nil), b.s.stages...)

	if s.timeUnit == 0 {
		s.timeUnit = DefaultTimeUnit
	}
	if !s.gracefulStopSet {
		s.gracefulStop = DefaultGracefulStop
	}

	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(s.name) == "" {
		add("name is required")
	}
	if s.exec == nil {
		add("exec function is required")
	}
	if s.gracefulStop < 0 {
		add("gracefulStop must not be negative")
	}
	if s.thinkTime < 0 {
		add("thinkTime must not be negative")
	}

	switch s.executor {
	case ConstantArrivalRate, RampingArrivalRate:
		if s.executor == RampingArrivalRate {
			var total time.Duration
			for _, st := range s.stages {
				total += st.Duration
			}
			if s.duration != 0 && s.duration != total {
				add("duration %s does not match the sum of stage durations %s", s.duration, total)
			}
			s.duration = total
		} else if s.rate < 0 {
			add("rate must not be negative")
		}
		if _, err := s.NewSchedule(); err != nil {
			add("%v", err)
		}
		if s.preAllocatedVUs <= 0 {
			add("preAllocatedVUs must be positive")
		}
		if s.maxVUs == 0 {
			s.maxVUs = s.preAllocatedVUs
		}
		if s.maxVUs < s.preAllocatedVUs {
			add("maxVUs (%d) must be >= preAllocatedVUs (%d)", s.maxVUs, s.preAllocatedVUs)
		}
		if s.thinkTime != 0 {
			add("thinkTime is not supported by arrival-rate executors")
		}
	case PerVUIterations, SharedIterations:
		if s.vus <= 0 {
			add("vus must be positive")
		}
		if s.iterations <= 0 {
			add("iterations must be positive")
		}
		if s.maxDuration == 0 {
			s.maxDuration = DefaultMaxDuration
		}
		if s.maxDuration < 0 {
			add("maxDuration must be positive")
		}
		// Extra workers would never get an iteration.
		if s.executor == SharedIterations && s.iterations > 0 && int64(s.vus) > s.iterations {
			s.vus = int(s.iterations)
		}
	case ConstantVUs:
		if s.vus <= 0 {
			add("vus must be positive")
		}
		if s.duration <= 0 {
			add("duration must be positive")
		}
		if s.iterations != 0 {
			add("iterations are not supported by constant-vus")
		}
	default:
		add("unknown executor %q", s.executor)
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: scenario %q: %s", ErrInvalidConfig, s.name, strings.Join(problems, "; "))
	}
	return &s, nil
}
