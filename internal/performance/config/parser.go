package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	libhttp "github.com/wesleyorama2/libload/internal/http"
	"github.com/wesleyorama2/libload/internal/performance"
	"github.com/wesleyorama2/libload/internal/performance/engine"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultBaseURL            = "http://localhost:8080"
	DefaultTimeout            = 30 * time.Second
	DefaultSetupAuthors       = 20
	DefaultSetupConcurrency   = 4
	DefaultSetupTimeout       = engine.DefaultSetupTimeout
	DefaultAbortCheckInterval = time.Second
)

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The format is determined by the file extension in path, or defaults to YAML
// if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	var config TestConfig

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config (unknown format %s): %w", ext, err)
		}
	}

	return &config, nil
}

// ParseDurationString parses a duration string.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ApplyDefaults fills unset values. Scenario gracefulStop falls back to the
// global setting; exec falls back to the scenario name.
func ApplyDefaults(c *TestConfig) {
	if c.Settings.BaseURL == "" {
		c.Settings.BaseURL = DefaultBaseURL
	}
	if c.Settings.Timeout == 0 {
		c.Settings.Timeout = Duration(DefaultTimeout)
	}
	if c.Setup.Authors == 0 {
		c.Setup.Authors = DefaultSetupAuthors
	}
	if c.Setup.Concurrency == 0 {
		c.Setup.Concurrency = DefaultSetupConcurrency
	}
	if c.Setup.Timeout == 0 {
		c.Setup.Timeout = Duration(DefaultSetupTimeout)
	}
	if c.Abort != nil {
		if c.Abort.MinRequests == 0 {
			c.Abort.MinRequests = c.Abort.Window
		}
		if c.Abort.CheckInterval == 0 {
			c.Abort.CheckInterval = Duration(DefaultAbortCheckInterval)
		}
	}

	for name, sc := range c.Scenarios {
		if sc == nil {
			continue
		}
		if sc.Exec == "" {
			sc.Exec = name
		}
		if sc.GracefulStop == nil && c.Settings.GracefulStop != nil {
			gs := *c.Settings.GracefulStop
			sc.GracefulStop = &gs
		}
		if sc.TimeUnit == 0 && performance.ExecutorType(sc.Executor).IsArrivalRate() {
			sc.TimeUnit = Duration(performance.DefaultTimeUnit)
		}
	}
}

// ScenarioNames returns the scenario names in sorted order.
func (c *TestConfig) ScenarioNames() []string {
	names := make([]string, 0, len(c.Scenarios))
	for name := range c.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options validates the configuration and builds engine options, binding
// every scenario's exec name to an iteration body from execs. Setup and
// teardown hooks are left to the caller. Errors are *ValidationErrors.
func (c *TestConfig) Options(execs map[string]performance.IterationFunc) (engine.Options, error) {
	errs := &ValidationErrors{}
	if err := c.Validate(); err != nil {
		return engine.Options{}, err
	}

	opts := engine.Options{
		SetupTimeout: c.Setup.Timeout.Std(),
		Duration:     c.Duration.Std(),
		Thresholds:   c.Thresholds,
	}
	if c.Abort != nil {
		opts.Abort = &engine.AbortCondition{
			ErrorRate:     c.Abort.ErrorRate,
			Window:        c.Abort.Window,
			MinRequests:   c.Abort.MinRequests,
			CheckInterval: c.Abort.CheckInterval.Std(),
		}
	}

	for _, name := range c.ScenarioNames() {
		sc := c.Scenarios[name]
		prefix := "scenarios." + name

		exec := sc.Exec
		if exec == "" {
			exec = name
		}
		fn, ok := execs[exec]
		if !ok {
			errs.Add(prefix+".exec", fmt.Sprintf("unknown exec function %q (known: %s)", exec, strings.Join(knownExecs(execs), ", ")))
			continue
		}

		s, err := sc.builder(name, fn).Build()
		if err != nil {
			errs.Add(prefix, err.Error())
			continue
		}
		opts.Scenarios = append(opts.Scenarios, s)
	}

	if errs.HasErrors() {
		return engine.Options{}, errs
	}
	return opts, nil
}

func (sc *ScenarioConfig) builder(name string, fn performance.IterationFunc) *performance.ScenarioBuilder {
	b := performance.NewScenario(name, performance.ExecutorType(sc.Executor)).
		Exec(fn)
	if sc.GracefulStop != nil {
		b.GracefulStop(sc.GracefulStop.Std())
	}

	switch performance.ExecutorType(sc.Executor) {
	case performance.ConstantArrivalRate:
		b.Rate(sc.Rate, sc.TimeUnit.Std()).
			Duration(sc.Duration.Std()).
			PreAllocatedVUs(sc.PreAllocatedVUs).
			MaxVUs(sc.MaxVUs)
	case performance.RampingArrivalRate:
		b.TimeUnit(sc.TimeUnit.Std()).
			StartRate(sc.StartRate).
			Duration(sc.Duration.Std()).
			PreAllocatedVUs(sc.PreAllocatedVUs).
			MaxVUs(sc.MaxVUs)
		for _, st := range sc.Stages {
			b.Stage(st.Target, st.Duration.Std())
		}
	case performance.ConstantVUs:
		b.VUs(sc.VUs).
			Duration(sc.Duration.Std()).
			ThinkTime(sc.ThinkTime.Std())
	case performance.PerVUIterations, performance.SharedIterations:
		b.VUs(sc.VUs).
			Iterations(sc.Iterations).
			MaxDuration(sc.MaxDuration.Std()).
			ThinkTime(sc.ThinkTime.Std())
	}
	return b
}

func knownExecs(execs map[string]performance.IterationFunc) []string {
	names := make([]string, 0, len(execs))
	for name := range execs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClientOptions returns the HTTP client options described by Settings.
func (s Settings) ClientOptions() []libhttp.ClientOption {
	transport := libhttp.DefaultTransportConfig()
	if s.MaxIdleConnsPerHost > 0 {
		transport.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	}
	if s.MaxConnsPerHost > 0 {
		transport.MaxConnsPerHost = s.MaxConnsPerHost
	}
	transport.InsecureSkipVerify = s.InsecureSkipVerify

	opts := []libhttp.ClientOption{
		libhttp.WithBaseURL(s.BaseURL),
		libhttp.WithTimeout(s.Timeout.Std()),
		libhttp.WithTransport(transport),
		libhttp.WithRPSLimit(s.RPS),
	}
	for key, value := range s.Headers {
		opts = append(opts, libhttp.WithHeader(key, value))
	}
	return opts
}
