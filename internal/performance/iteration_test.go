package performance_test

import (
	"context"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	libhttp "github.com/wesleyorama2/libload/internal/http"
	"github.com/wesleyorama2/libload/internal/performance"
	"github.com/wesleyorama2/libload/internal/performance/metrics"
	"github.com/wesleyorama2/libload/internal/performance/rate"
)

func newTestEnv(t *testing.T, handler nethttp.HandlerFunc) (performance.Env, *metrics.Collector) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	collector := metrics.NewCollector()
	return performance.Env{
		Client:    libhttp.NewClient(libhttp.WithBaseURL(server.URL), libhttp.WithTimeout(time.Second)),
		Collector: collector,
		Setup:     performance.NewSetupContext(map[string][]string{"authors": {"a-1"}}),
	}, collector
}

func TestNewIteration(t *testing.T) {
	env, _ := newTestEnv(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {})
	pool := performance.NewVUPool(1, 1)
	vu, ok := pool.Acquire()
	require.True(t, ok)

	tick := rate.Tick{Index: 7, Offset: 875 * time.Millisecond}
	first := performance.NewIteration(env, "add_book", vu, 7, tick)
	second := performance.NewIteration(env, "add_book", vu, 8, rate.Tick{})

	assert.Equal(t, "add_book", first.Scenario)
	assert.Same(t, vu, first.VU)
	assert.Equal(t, int64(0), first.VUIteration)
	assert.Equal(t, int64(1), second.VUIteration)
	assert.Equal(t, int64(7), first.Number)
	assert.Equal(t, tick, first.Tick)
	assert.Equal(t, 1, first.Setup.Len("authors"))
	assert.Equal(t, int64(2), vu.Iterations())
}

func TestIteration_Do(t *testing.T) {
	env, collector := newTestEnv(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/v1/library/book/missing":
			w.WriteHeader(nethttp.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"book":{"id":"b-1","name":"n"}}`))
		}
	})
	vu, _ := performance.NewVUPool(1, 1).Acquire()
	it := performance.NewIteration(env, "get_book_info", vu, 0, rate.Tick{})
	ctx := context.Background()

	res, err := it.Do(ctx, libhttp.NewRequest("GET", "/v1/library/book/b-1").WithName("get book"),
		performance.StatusIn(200), performance.JSONHas("book.id"))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)

	// 404 without checks is recorded but not an error
	res, err = it.Do(ctx, libhttp.NewRequest("GET", "/v1/library/book/missing").WithName("get book"))
	require.NoError(t, err)
	assert.Equal(t, 404, res.StatusCode)

	// 404 with a status check fails the check
	_, err = it.Do(ctx, libhttp.NewRequest("GET", "/v1/library/book/missing").WithName("get book"),
		performance.StatusIn(200, 201), performance.JSONHas("book.id"))
	var cfe *performance.CheckFailedError
	require.True(t, errors.As(err, &cfe))
	assert.Equal(t, "get book", cfe.Request)
	assert.Equal(t, []string{"status is 200 or 201", "body has book.id"}, cfe.Checks)

	stats := collector.Snapshot().Scenarios["get_book_info"]
	assert.Equal(t, int64(3), stats.Requests)
	assert.Equal(t, int64(1), stats.StatusCodes[200])
	assert.Equal(t, int64(2), stats.StatusCodes[404])
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, int64(1), stats.CheckFailures)
	assert.Equal(t, metrics.CheckStats{Passes: 1, Fails: 1}, stats.Checks["body has book.id"])
}

func TestIteration_DoTransportError(t *testing.T) {
	env, collector := newTestEnv(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	vu, _ := performance.NewVUPool(1, 1).Acquire()
	it := performance.NewIteration(env, "register_author", vu, 0, rate.Tick{})

	checked := false
	_, err := it.Do(context.Background(),
		libhttp.NewRequest("POST", "/v1/library/author").WithTimeout(20*time.Millisecond),
		performance.NewCheck("never evaluated", func(*libhttp.Result) bool { checked = true; return true }))

	var te *libhttp.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, libhttp.KindTimeout, te.Kind)
	assert.False(t, checked, "checks are skipped without a response")

	stats := collector.Snapshot().Scenarios["register_author"]
	assert.Equal(t, int64(1), stats.Requests)
	assert.Equal(t, int64(1), stats.TransportErrors)
	assert.Equal(t, int64(1), stats.ErrorKinds["timeout"])
	assert.Equal(t, int64(1), stats.Failures)
}

func TestChecks(t *testing.T) {
	ok := &libhttp.Result{StatusCode: 201, Body: []byte(`{"id":"a-1","name":"x"}`)}
	bad := &libhttp.Result{StatusCode: 500, Body: []byte(`not json`)}

	tests := []struct {
		check    performance.Check
		wantName string
		okWant   bool
		badWant  bool
	}{
		{performance.StatusIn(200, 201), "status is 200 or 201", true, false},
		{performance.StatusIn(500), "status is 500", false, true},
		{performance.JSONHas("id"), "body has id", true, false},
		{performance.JSONHas("book.id"), "body has book.id", false, false},
		{performance.JSONEquals("name", "x"), "name is x", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			assert.Equal(t, tt.wantName, tt.check.Name)
			assert.Equal(t, tt.okWant, tt.check.Fn(ok))
			assert.Equal(t, tt.badWant, tt.check.Fn(bad))
		})
	}
}
