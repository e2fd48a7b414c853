package perf

import (
	"context"

	"go.uber.org/zap"

	libhttp "github.com/wesleyorama2/libload/internal/http"
	"github.com/wesleyorama2/libload/internal/performance"
	"github.com/wesleyorama2/libload/internal/performance/config"
	"github.com/wesleyorama2/libload/internal/performance/engine"
)

// Scenario building blocks.
type (
	Scenario        = performance.Scenario
	ScenarioBuilder = performance.ScenarioBuilder
	ExecutorType    = performance.ExecutorType
	Iteration       = performance.Iteration
	IterationFunc   = performance.IterationFunc
	Check           = performance.Check
	SetupContext    = performance.SetupContext
	SetupFunc       = performance.SetupFunc
	TeardownFunc    = performance.TeardownFunc
	Requester       = performance.Requester
)

// Engine options and results.
type (
	Options         = engine.Options
	Report          = engine.Report
	Thresholds      = engine.Thresholds
	ThresholdResult = engine.ThresholdResult
	AbortCondition  = engine.AbortCondition
	TestConfig      = config.TestConfig
)

// HTTP types.
type (
	Client       = libhttp.Client
	ClientOption = libhttp.ClientOption
	Request      = libhttp.Request
	Result       = libhttp.Result
)

const (
	ConstantArrivalRate = performance.ConstantArrivalRate
	RampingArrivalRate  = performance.RampingArrivalRate
	ConstantVUs         = performance.ConstantVUs
	PerVUIterations     = performance.PerVUIterations
	SharedIterations    = performance.SharedIterations
)

var (
	ErrInvalidConfig = performance.ErrInvalidConfig
	ErrSetupFailed   = performance.ErrSetupFailed
)

var (
	NewScenario     = performance.NewScenario
	NewSetupContext = performance.NewSetupContext
	NewCheck        = performance.NewCheck
	StatusIn        = performance.StatusIn
	JSONHas         = performance.JSONHas
	JSONEquals      = performance.JSONEquals

	NewClient     = libhttp.NewClient
	NewRequest    = libhttp.NewRequest
	WithBaseURL   = libhttp.WithBaseURL
	WithTimeout   = libhttp.WithTimeout
	WithHeader    = libhttp.WithHeader
	WithRPSLimit  = libhttp.WithRPSLimit
	WithTransport = libhttp.WithTransport
)

// Run creates an engine for opts and runs it once. See engine.Engine.Run for
// which failures are returned as errors and which end up in the report.
func Run(ctx context.Context, opts Options, client Requester) (*Report, error) {
	eng, err := engine.New(opts, client)
	if err != nil {
		return nil, err
	}
	return eng.Run(ctx)
}

// LoadConfig reads a YAML or JSON profile and applies defaults.
func LoadConfig(path string) (*TestConfig, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	config.ApplyDefaults(cfg)
	return cfg, nil
}

// RunConfig runs a profile. Each scenario's exec name is looked up in execs;
// the client is built from the profile's settings. setup and logger may be
// nil.
func RunConfig(ctx context.Context, cfg *TestConfig, execs map[string]IterationFunc, setup SetupFunc, logger *zap.Logger) (*Report, error) {
	config.ApplyDefaults(cfg)

	opts, err := cfg.Options(execs)
	if err != nil {
		return nil, err
	}
	opts.Setup = setup
	opts.Logger = logger

	client := libhttp.NewClient(cfg.Settings.ClientOptions()...)
	defer client.CloseIdleConnections()

	return Run(ctx, opts, client)
}
