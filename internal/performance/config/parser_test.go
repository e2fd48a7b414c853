package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/libload/internal/performance"
)

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "standard seconds", input: "30s", expected: 30 * time.Second},
		{name: "standard minutes", input: "2m", expected: 2 * time.Minute},
		{name: "milliseconds", input: "500ms", expected: 500 * time.Millisecond},
		{name: "combined duration", input: "1h30m", expected: 90 * time.Minute},
		{name: "integer as seconds", input: "30", expected: 30 * time.Second},
		{name: "surrounding spaces", input: " 1s ", expected: time.Second},
		{name: "empty string", input: "", expected: 0},
		{name: "invalid format", input: "abc", wantErr: true},
		{name: "trailing garbage", input: "30x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDurationString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseDurationString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.expected {
				t.Errorf("ParseDurationString() = %v, want %v", got, tt.expected)
			}
		})
	}
}

const libraryYAML = `
name: library load
settings:
  baseUrl: http://library.local:8080
  timeout: 10s
  rps: 200
  gracefulStop: 5s
  headers:
    X-Load-Test: "true"
setup:
  authors: 5
abort:
  errorRate: 0.5
  window: 50
thresholds:
  http_req_duration: ["p95 < 500ms"]
  http_req_failed: ["rate < 0.01"]
scenarios:
  register_author:
    executor: constant-arrival-rate
    rate: 10
    timeUnit: 1s
    duration: 2m
    preAllocatedVUs: 20
    exec: registerAuthor
  update_book:
    executor: ramping-arrival-rate
    startRate: 2
    stages:
      - target: 15
        duration: 1m
      - target: 0
        duration: 30
    preAllocatedVUs: 25
    exec: updateBook
  get_author_books:
    executor: shared-iterations
    vus: 10
    iterations: 100
    gracefulStop: 1s
    exec: getAuthorBooks
`

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(libraryYAML), "test.yaml")
	require.NoError(t, err)

	assert.Equal(t, "library load", cfg.Name)
	assert.Equal(t, "http://library.local:8080", cfg.Settings.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Settings.Timeout.Std())
	assert.Equal(t, 200.0, cfg.Settings.RPS)
	assert.Equal(t, "true", cfg.Settings.Headers["X-Load-Test"])
	assert.Equal(t, 5, cfg.Setup.Authors)
	require.NotNil(t, cfg.Abort)
	assert.Equal(t, 50, cfg.Abort.Window)
	assert.Equal(t, []string{"p95 < 500ms"}, cfg.Thresholds.HTTPReqDuration)

	require.Len(t, cfg.Scenarios, 3)
	ra := cfg.Scenarios["register_author"]
	assert.Equal(t, "constant-arrival-rate", ra.Executor)
	assert.Equal(t, 10.0, ra.Rate)
	assert.Equal(t, 2*time.Minute, ra.Duration.Std())

	ub := cfg.Scenarios["update_book"]
	require.Len(t, ub.Stages, 2)
	assert.Equal(t, 15.0, ub.Stages[0].Target)
	assert.Equal(t, 30*time.Second, ub.Stages[1].Duration.Std(), "bare numbers are seconds")

	assert.Equal(t, int64(100), cfg.Scenarios["get_author_books"].Iterations)
}

func TestParseConfig_JSON(t *testing.T) {
	jsonConfig := `{
		"name": "json test",
		"settings": {"baseUrl": "http://localhost:9090", "timeout": "5s"},
		"scenarios": {
			"get_book_info": {"executor": "per-vu-iterations", "vus": 30, "iterations": 20, "maxDuration": 60}
		}
	}`

	cfg, err := ParseConfig([]byte(jsonConfig), "test.json")
	require.NoError(t, err)

	assert.Equal(t, "json test", cfg.Name)
	assert.Equal(t, 5*time.Second, cfg.Settings.Timeout.Std())
	sc := cfg.Scenarios["get_book_info"]
	require.NotNil(t, sc)
	assert.Equal(t, 30, sc.VUs)
	assert.Equal(t, time.Minute, sc.MaxDuration.Std())
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("scenarios: ["), "bad.yaml")
	assert.Error(t, err)

	_, err = ParseConfig([]byte(`{"settings": {"timeout": "soon"}}`), "bad.json")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.yml")
	require.NoError(t, os.WriteFile(path, []byte(libraryYAML), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Scenarios, 3)
}

func TestLoadConfig_NotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &TestConfig{
		Settings: Settings{GracefulStop: DurationOf(5 * time.Second)},
		Abort:    &AbortConfig{ErrorRate: 0.1, Window: 30},
		Scenarios: map[string]*ScenarioConfig{
			"add_book":      {Executor: "constant-arrival-rate", Rate: 8, Duration: Duration(time.Minute), PreAllocatedVUs: 20},
			"get_book_info": {Executor: "per-vu-iterations", VUs: 2, Iterations: 2, GracefulStop: DurationOf(time.Second), Exec: "getBookInfo"},
			"browse":        {Executor: "shared-iterations", VUs: 1, Iterations: 1, GracefulStop: DurationOf(0)},
		},
	}

	ApplyDefaults(cfg)

	assert.Equal(t, DefaultBaseURL, cfg.Settings.BaseURL)
	assert.Equal(t, DefaultTimeout, cfg.Settings.Timeout.Std())
	assert.Equal(t, DefaultSetupAuthors, cfg.Setup.Authors)
	assert.Equal(t, DefaultSetupConcurrency, cfg.Setup.Concurrency)
	assert.Equal(t, 30, cfg.Abort.MinRequests)
	assert.Equal(t, time.Second, cfg.Abort.CheckInterval.Std())

	ab := cfg.Scenarios["add_book"]
	assert.Equal(t, "add_book", ab.Exec)
	require.NotNil(t, ab.GracefulStop)
	assert.Equal(t, 5*time.Second, ab.GracefulStop.Std())
	assert.Equal(t, time.Second, ab.TimeUnit.Std())

	gb := cfg.Scenarios["get_book_info"]
	assert.Equal(t, "getBookInfo", gb.Exec)
	assert.Equal(t, time.Second, gb.GracefulStop.Std(), "an explicit gracefulStop wins")
	assert.Zero(t, gb.TimeUnit)

	require.NotNil(t, cfg.Scenarios["browse"].GracefulStop)
	assert.Zero(t, *cfg.Scenarios["browse"].GracefulStop, "an explicit zero gracefulStop is kept")
}

func noop(context.Context, *performance.Iteration) error { return nil }

func execs() map[string]performance.IterationFunc {
	return map[string]performance.IterationFunc{
		"registerAuthor": noop,
		"updateBook":     noop,
		"getAuthorBooks": noop,
	}
}

func TestOptions(t *testing.T) {
	cfg, err := ParseConfig([]byte(libraryYAML), "test.yaml")
	require.NoError(t, err)
	ApplyDefaults(cfg)

	opts, err := cfg.Options(execs())
	require.NoError(t, err)

	require.Len(t, opts.Scenarios, 3)
	assert.Equal(t, "get_author_books", opts.Scenarios[0].Name())
	assert.Equal(t, "register_author", opts.Scenarios[1].Name())
	assert.Equal(t, "update_book", opts.Scenarios[2].Name())

	ub := opts.Scenarios[2]
	assert.Equal(t, performance.RampingArrivalRate, ub.Executor())
	assert.Equal(t, 90*time.Second, ub.Duration())
	assert.Equal(t, 2.0, ub.StartRate())
	assert.Equal(t, 25, ub.MaxVUs())
	assert.Equal(t, 5*time.Second, ub.GracefulStop())

	assert.Equal(t, time.Second, opts.Scenarios[0].GracefulStop())
	assert.Equal(t, int64(100), opts.Scenarios[0].Iterations())

	require.NotNil(t, opts.Abort)
	assert.Equal(t, 0.5, opts.Abort.ErrorRate)
	assert.Equal(t, 50, opts.Abort.MinRequests)
	assert.Equal(t, DefaultSetupTimeout, opts.SetupTimeout)
	assert.Equal(t, []string{"rate < 0.01"}, opts.Thresholds.HTTPReqFailed)
}

func TestOptions_UnknownExec(t *testing.T) {
	cfg, err := ParseConfig([]byte(libraryYAML), "test.yaml")
	require.NoError(t, err)
	ApplyDefaults(cfg)

	_, err = cfg.Options(map[string]performance.IterationFunc{"registerAuthor": noop})
	require.Error(t, err)
	assert.True(t, errors.Is(err, performance.ErrInvalidConfig))

	var verrs *ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, []string{"scenarios.get_author_books.exec", "scenarios.update_book.exec"}, verrs.Fields())
	assert.Contains(t, err.Error(), `unknown exec function "updateBook"`)
}

func TestSettings_ClientOptions(t *testing.T) {
	s := Settings{BaseURL: "http://x", Timeout: Duration(time.Second), RPS: 5, Headers: map[string]string{"A": "1", "B": "2"}}
	assert.Len(t, s.ClientOptions(), 6)
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{`"30s"`, 30 * time.Second, false},
		{`"1m30s"`, 90 * time.Second, false},
		{`45`, 45 * time.Second, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"forever"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.input), &d)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UnmarshalJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d.Std() != tt.expected {
				t.Errorf("UnmarshalJSON() = %v, want %v", d.Std(), tt.expected)
			}
		})
	}
}

func TestDuration_Marshal(t *testing.T) {
	b, err := json.Marshal(Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))

	y, err := yaml.Marshal(struct {
		D Duration `yaml:"d"`
	}{Duration(2 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, "d: 2m0s\n", string(y))
}
