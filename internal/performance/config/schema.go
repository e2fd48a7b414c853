// Package config parses declarative load-test files (YAML or JSON) and turns
// them into engine options.
package config

import (
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/libload/internal/performance/engine"
)

// TestConfig is the root of a test file. Option names follow k6.
//
// Example YAML:
//
//	name: library load
//	settings:
//	  baseUrl: http://localhost:8080
//	  timeout: 10s
//	setup:
//	  authors: 20
//	scenarios:
//	  add_book:
//	    executor: constant-arrival-rate
//	    rate: 8
//	    timeUnit: 1s
//	    duration: 2m
//	    preAllocatedVUs: 20
//	    exec: addBook
type TestConfig struct {
	// Name of the test (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Description of the test (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Settings apply to the HTTP client and to every scenario
	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Setup controls the seeding stage that runs before any scenario
	Setup SetupConfig `json:"setup,omitempty" yaml:"setup,omitempty"`

	// Duration caps the whole run. Zero means no cap.
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Abort is an optional global stop condition
	Abort *AbortConfig `json:"abort,omitempty" yaml:"abort,omitempty"`

	// Thresholds are pass/fail criteria for the final metrics
	Thresholds engine.Thresholds `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// Scenarios run concurrently, keyed by name
	Scenarios map[string]*ScenarioConfig `json:"scenarios" yaml:"scenarios"`
}

// Settings are global HTTP and execution settings.
type Settings struct {
	// BaseURL of the library service. BASE_URL and --base-url override it.
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the per-request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// RPS caps requests per second across all scenarios. Zero disables the cap.
	RPS float64 `json:"rps,omitempty" yaml:"rps,omitempty"`

	// GracefulStop is the default for scenarios that do not set one. An
	// explicit 0 interrupts in-flight iterations as soon as a scenario ends.
	GracefulStop *Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Headers are sent with every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	MaxIdleConnsPerHost int  `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	MaxConnsPerHost     int  `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`
	InsecureSkipVerify  bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// SetupConfig controls seeding.
type SetupConfig struct {
	// Authors is the number of authors to seed (one book each)
	Authors int `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Timeout bounds setup and teardown
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Concurrency is the number of seeding requests in flight
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

// AbortConfig stops the run when the trailing failure ratio is too high.
type AbortConfig struct {
	ErrorRate     float64  `json:"errorRate" yaml:"errorRate"`
	Window        int      `json:"window" yaml:"window"`
	MinRequests   int      `json:"minRequests,omitempty" yaml:"minRequests,omitempty"`
	CheckInterval Duration `json:"checkInterval,omitempty" yaml:"checkInterval,omitempty"`
}

// ScenarioConfig configures a single scenario.
type ScenarioConfig struct {
	// Executor is one of constant-arrival-rate, ramping-arrival-rate,
	// constant-vus, per-vu-iterations or shared-iterations
	Executor string `json:"executor" yaml:"executor"`

	// Arrival-rate executors. Duration also bounds constant-vus.
	Rate            float64       `json:"rate,omitempty" yaml:"rate,omitempty"`
	TimeUnit        Duration      `json:"timeUnit,omitempty" yaml:"timeUnit,omitempty"`
	StartRate       float64       `json:"startRate,omitempty" yaml:"startRate,omitempty"`
	Stages          []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`
	Duration        Duration      `json:"duration,omitempty" yaml:"duration,omitempty"`
	PreAllocatedVUs int           `json:"preAllocatedVUs,omitempty" yaml:"preAllocatedVUs,omitempty"`
	MaxVUs          int           `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`

	// Iteration-based executors
	VUs         int      `json:"vus,omitempty" yaml:"vus,omitempty"`
	Iterations  int64    `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	MaxDuration Duration `json:"maxDuration,omitempty" yaml:"maxDuration,omitempty"`

	// ThinkTime pauses each VU between iterations (closed-model executors)
	ThinkTime Duration `json:"thinkTime,omitempty" yaml:"thinkTime,omitempty"`

	// GracefulStop is nil when unset; Settings.GracefulStop then applies
	GracefulStop *Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// Exec names the iteration body. Defaults to the scenario name.
	Exec string `json:"exec,omitempty" yaml:"exec,omitempty"`
}

// StageConfig is one segment of a ramping profile.
type StageConfig struct {
	Target   float64  `json:"target" yaml:"target"`
	Duration Duration `json:"duration" yaml:"duration"`
}

// Duration is a time.Duration that reads "30s", "2m" or a bare number of
// seconds from YAML and JSON.
type Duration time.Duration

// DurationOf returns a pointer to d, for the optional duration fields.
func DurationOf(d time.Duration) *Duration {
	v := Duration(d)
	return &v
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" {
		*d = 0
		return nil
	}
	return d.set(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
