package perf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func healthServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func health(ctx context.Context, it *Iteration) error {
	_, err := it.Do(ctx, NewRequest(http.MethodGet, "/health"), StatusIn(200), JSONEquals("status", "ok"))
	return err
}

func TestRun(t *testing.T) {
	ts, hits := healthServer(t)

	s, err := NewScenario("health", SharedIterations).
		VUs(3).
		Iterations(12).
		MaxDuration(10 * time.Second).
		Exec(health).
		Build()
	require.NoError(t, err)

	report, err := Run(context.Background(), Options{Scenarios: []*Scenario{s}}, NewClient(WithBaseURL(ts.URL)))
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.Equal(t, int64(12), hits.Load())
	assert.Equal(t, int64(12), report.Metrics.Global.Requests)
	assert.Equal(t, int64(12), report.Metrics.Global.Checks["status is ok"].Passes)
}

func TestRun_InvalidOptions(t *testing.T) {
	_, err := Run(context.Background(), Options{}, NewClient())
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunConfig(t *testing.T) {
	ts, hits := healthServer(t)

	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"name": "health",
		"settings": {"baseUrl": "`+ts.URL+`"},
		"scenarios": {
			"health": {"executor": "per-vu-iterations", "vus": 2, "iterations": 3}
		},
		"thresholds": {"http_req_failed": ["rate < 0.01"]}
	}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	var seeded atomic.Bool
	setup := func(ctx context.Context, client Requester) (*SetupContext, error) {
		seeded.Store(true)
		return NewSetupContext(map[string][]string{"ids": {"a"}}), nil
	}

	report, err := RunConfig(context.Background(), cfg, map[string]IterationFunc{"health": health}, setup, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.True(t, seeded.Load())
	assert.Equal(t, map[string]int{"ids": 1}, report.Setup)
	assert.Equal(t, int64(6), hits.Load())
	assert.True(t, report.Passed)
}

func TestRunConfig_UnknownExec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scenarios:
  browse:
    executor: shared-iterations
    vus: 1
    iterations: 1
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = RunConfig(context.Background(), cfg, map[string]IterationFunc{"health": health}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
