// Package perf is the public entry point of the load engine for programs that
// define their own scenarios in Go rather than in a YAML profile.
//
// A scenario pairs an executor with an iteration body. The body issues
// requests through the Iteration it receives, so every request is timed,
// checked and recorded against the scenario:
//
//	health := func(ctx context.Context, it *perf.Iteration) error {
//	    _, err := it.Do(ctx, perf.NewRequest("GET", "/health"), perf.StatusIn(200))
//	    return err
//	}
//
//	s, err := perf.NewScenario("health", perf.ConstantArrivalRate).
//	    Rate(50, time.Second).
//	    Duration(time.Minute).
//	    PreAllocatedVUs(10).
//	    MaxVUs(50).
//	    Exec(health).
//	    Build()
//
//	client := perf.NewClient(perf.WithBaseURL("http://localhost:8080"))
//	report, err := perf.Run(ctx, perf.Options{Scenarios: []*perf.Scenario{s}}, client)
//	fmt.Printf("passed: %v, p95: %v\n", report.Passed, report.Metrics.Global.Latency.P95)
//
// # Profiles
//
// LoadConfig and RunConfig run a declarative profile, binding each scenario's
// exec name to a function:
//
//	cfg, _ := perf.LoadConfig("profile.yaml")
//	report, _ := perf.RunConfig(ctx, cfg, map[string]perf.IterationFunc{"health": health}, nil, nil)
//
// # Setup data
//
// A SetupFunc runs once before any scenario and returns identifiers that
// iterations read with Iteration.Setup.Pick.
package perf
