package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wesleyorama2/libload/internal/performance"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors. It matches
// performance.ErrInvalidConfig under errors.Is.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Is reports whether target is performance.ErrInvalidConfig.
func (e *ValidationErrors) Is(target error) bool {
	return target == performance.ErrInvalidConfig
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the field path of every error, in order.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		fields[i] = err.Field
	}
	return fields
}

// Validate validates the entire test configuration.
//
// Returns nil if valid, or a *ValidationErrors containing every problem.
func (c *TestConfig) Validate() error {
	errs := &ValidationErrors{}

	if len(c.Scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
	}
	for _, name := range c.ScenarioNames() {
		validateScenario(name, c.Scenarios[name], errs)
	}

	validateSettings(&c.Settings, errs)
	validateSetup(&c.Setup, errs)

	if c.Duration < 0 {
		errs.Add("duration", "duration must not be negative")
	}
	if c.Abort != nil {
		validateAbort(c.Abort, errs)
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs.Add("thresholds", err.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateScenario validates a single scenario configuration.
func validateScenario(name string, sc *ScenarioConfig, errs *ValidationErrors) {
	prefix := "scenarios." + name

	if strings.TrimSpace(name) == "" {
		errs.Add("scenarios", "scenario name must not be empty")
	}
	if sc == nil {
		errs.Add(prefix, "scenario is empty")
		return
	}

	executor := performance.ExecutorType(sc.Executor)
	switch {
	case sc.Executor == "":
		errs.Add(prefix+".executor", "executor type is required")
	case !executor.Valid():
		errs.Add(prefix+".executor", fmt.Sprintf("unknown executor type: %s", sc.Executor))
	}

	switch executor {
	case performance.ConstantArrivalRate:
		validateConstantArrivalRate(prefix, sc, errs)
	case performance.RampingArrivalRate:
		validateRampingArrivalRate(prefix, sc, errs)
	case performance.ConstantVUs:
		validateConstantVUs(prefix, sc, errs)
	case performance.PerVUIterations, performance.SharedIterations:
		validateIterationBased(prefix, sc, errs)
	}

	if sc.ThinkTime < 0 {
		errs.Add(prefix+".thinkTime", "thinkTime must not be negative")
	}
	if sc.ThinkTime != 0 && executor.IsArrivalRate() {
		errs.Add(prefix+".thinkTime", "thinkTime is only valid for closed-model executors")
	}
	if sc.GracefulStop != nil && *sc.GracefulStop < 0 {
		errs.Add(prefix+".gracefulStop", "gracefulStop must not be negative")
	}
}

// validateConstantArrivalRate validates constant-arrival-rate executor config.
func validateConstantArrivalRate(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if sc.Rate < 0 {
		errs.Add(prefix+".rate", "rate must not be negative")
	}
	if sc.Duration <= 0 {
		errs.Add(prefix+".duration", "duration is required for constant-arrival-rate executor")
	}
	if len(sc.Stages) > 0 {
		errs.Add(prefix+".stages", "stages are only valid for ramping-arrival-rate executor")
	}
	validateArrivalRateVUs(prefix, sc, errs)
}

// validateRampingArrivalRate validates ramping-arrival-rate executor config.
func validateRampingArrivalRate(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if len(sc.Stages) == 0 {
		errs.Add(prefix+".stages", "at least one stage is required for ramping-arrival-rate executor")
	}
	if sc.StartRate < 0 {
		errs.Add(prefix+".startRate", "startRate must not be negative")
	}
	for i, stage := range sc.Stages {
		stagePrefix := fmt.Sprintf("%s.stages[%d]", prefix, i)
		if stage.Duration <= 0 {
			errs.Add(stagePrefix+".duration", "stage duration must be greater than 0")
		}
		if stage.Target < 0 {
			errs.Add(stagePrefix+".target", "stage target must not be negative")
		}
	}
	validateArrivalRateVUs(prefix, sc, errs)
}

func validateArrivalRateVUs(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if sc.TimeUnit < 0 {
		errs.Add(prefix+".timeUnit", "timeUnit must be greater than 0")
	}
	if sc.PreAllocatedVUs <= 0 {
		errs.Add(prefix+".preAllocatedVUs", "preAllocatedVUs must be greater than 0")
	}
	if sc.MaxVUs < 0 {
		errs.Add(prefix+".maxVUs", "maxVUs cannot be negative")
	}
	if sc.MaxVUs > 0 && sc.PreAllocatedVUs > sc.MaxVUs {
		errs.Add(prefix+".preAllocatedVUs", "preAllocatedVUs cannot be greater than maxVUs")
	}
	if sc.VUs != 0 || sc.Iterations != 0 {
		errs.Add(prefix, "vus and iterations are only valid for iteration-based executors")
	}
}

// validateConstantVUs validates constant-vus executor config.
func validateConstantVUs(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if sc.VUs <= 0 {
		errs.Add(prefix+".vus", "vus must be greater than 0")
	}
	if sc.Duration <= 0 {
		errs.Add(prefix+".duration", "duration is required for constant-vus executor")
	}
	if sc.Iterations != 0 || sc.MaxDuration != 0 {
		errs.Add(prefix, "iterations and maxDuration are only valid for iteration-based executors")
	}
	if sc.Rate != 0 || len(sc.Stages) > 0 || sc.PreAllocatedVUs != 0 || sc.MaxVUs != 0 {
		errs.Add(prefix, "rate, stages and VU pool sizes are only valid for arrival-rate executors")
	}
}

// validateIterationBased validates per-vu-iterations and shared-iterations executor config.
func validateIterationBased(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if sc.VUs <= 0 {
		errs.Add(prefix+".vus", "vus must be greater than 0")
	}
	if sc.Iterations <= 0 {
		errs.Add(prefix+".iterations", "iterations must be greater than 0")
	}
	if sc.MaxDuration < 0 {
		errs.Add(prefix+".maxDuration", "maxDuration must not be negative")
	}
	if sc.Rate != 0 || len(sc.Stages) > 0 {
		errs.Add(prefix, "rate and stages are only valid for arrival-rate executors")
	}
}

// validateSettings validates global settings.
func validateSettings(s *Settings, errs *ValidationErrors) {
	if s.BaseURL != "" {
		u, err := url.Parse(s.BaseURL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			errs.Add("settings.baseUrl", fmt.Sprintf("invalid base URL: %s", s.BaseURL))
		}
	}
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "timeout must not be negative")
	}
	if s.RPS < 0 {
		errs.Add("settings.rps", "rps must not be negative")
	}
	if s.GracefulStop != nil && *s.GracefulStop < 0 {
		errs.Add("settings.gracefulStop", "gracefulStop must not be negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "maxIdleConnsPerHost must not be negative")
	}
	if s.MaxConnsPerHost < 0 {
		errs.Add("settings.maxConnsPerHost", "maxConnsPerHost must not be negative")
	}
}

func validateSetup(s *SetupConfig, errs *ValidationErrors) {
	if s.Authors < 0 {
		errs.Add("setup.authors", "authors must not be negative")
	}
	if s.Concurrency < 0 {
		errs.Add("setup.concurrency", "concurrency must not be negative")
	}
	if s.Timeout < 0 {
		errs.Add("setup.timeout", "timeout must not be negative")
	}
}

func validateAbort(a *AbortConfig, errs *ValidationErrors) {
	if a.ErrorRate <= 0 || a.ErrorRate > 1 {
		errs.Add("abort.errorRate", "errorRate must be in (0, 1]")
	}
	if a.Window <= 0 {
		errs.Add("abort.window", "window must be greater than 0")
	}
	if a.MinRequests < 0 || (a.Window > 0 && a.MinRequests > a.Window) {
		errs.Add("abort.minRequests", "minRequests must be between 0 and window")
	}
	if a.CheckInterval < 0 {
		errs.Add("abort.checkInterval", "checkInterval must not be negative")
	}
}
