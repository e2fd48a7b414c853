package performance

import (
	"context"
	"errors"

	"github.com/wesleyorama2/libload/internal/http"
	"github.com/wesleyorama2/libload/internal/performance/metrics"
	"github.com/wesleyorama2/libload/internal/performance/rate"
)

// Env is what every iteration of a run shares.
type Env struct {
	Client    Requester
	Collector *metrics.Collector
	Setup     *SetupContext
}

// Iteration is the handle passed to an iteration body.
//
// It carries the execution context explicitly: the scenario, the VU running
// the iteration, the tick it was scheduled for and the setup context.
type Iteration struct {
	// Scenario is the name of the scenario the iteration belongs to.
	Scenario string

	// VU is the virtual user running the iteration.
	VU *VirtualUser

	// VUIteration is the zero-based iteration number on this VU.
	VUIteration int64

	// Number is the zero-based iteration number within the scenario.
	Number int64

	// Tick is the scheduled start for arrival-rate scenarios, zero otherwise.
	Tick rate.Tick

	// Setup is the read-only seed data produced by the setup stage.
	Setup *SetupContext

	env Env
}

// NewIteration creates the handle for one iteration on vu.
func NewIteration(env Env, scenario string, vu *VirtualUser, number int64, tick rate.Tick) *Iteration {
	return &Iteration{
		Scenario:    scenario,
		VU:          vu,
		VUIteration: vu.nextIteration(),
		Number:      number,
		Tick:        tick,
		Setup:       env.Setup,
		env:         env,
	}
}

// Do executes req, evaluates checks against the response and records the
// outcome under the iteration's scenario.
//
// A transport failure is returned as the *http.TransportError from the client
// and checks are not evaluated. If any check fails a *CheckFailedError is
// returned. Both are recorded failures, never fatal to the run.
func (it *Iteration) Do(ctx context.Context, req *http.Request, checks ...Check) (*http.Result, error) {
	res, err := it.env.Client.Execute(ctx, req)

	sample := metrics.Sample{Name: req.DisplayName()}
	if res != nil {
		sample.StatusCode = res.StatusCode
		sample.Latency = res.Latency
		sample.Bytes = res.BodyBytes()
	}

	if err != nil {
		var te *http.TransportError
		if errors.As(err, &te) {
			sample.ErrorKind = string(te.Kind)
		} else {
			sample.ErrorKind = string(http.KindOther)
		}
		it.record(sample)
		return res, err
	}

	var failed []string
	for _, check := range checks {
		passed := check.Fn(res)
		sample.Checks = append(sample.Checks, metrics.CheckResult{Name: check.Name, Passed: passed})
		if !passed {
			failed = append(failed, check.Name)
		}
	}
	it.record(sample)

	if len(failed) > 0 {
		return res, &CheckFailedError{Request: sample.Name, Checks: failed}
	}
	return res, nil
}

func (it *Iteration) record(s metrics.Sample) {
	if it.env.Collector != nil {
		it.env.Collector.Record(it.Scenario, s)
	}
}
