package metrics

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	require.NotNil(t, c)

	snap := c.Snapshot()
	assert.Equal(t, int64(0), snap.Global.Requests)
	assert.Empty(t, snap.Scenarios)
	assert.Equal(t, time.Duration(0), snap.Global.Percentile(95))
}

func TestCollector_Record(t *testing.T) {
	c := NewCollector()

	c.Record("add_book", Sample{Name: "add book", StatusCode: 200, Latency: 10 * time.Millisecond, Bytes: 100})
	c.Record("add_book", Sample{Name: "add book", StatusCode: 201, Latency: 20 * time.Millisecond, Bytes: 200})
	c.Record("add_book", Sample{Name: "add book", StatusCode: 500, Latency: 30 * time.Millisecond, Bytes: 50})
	c.Record("get_book_info", Sample{Name: "get book", ErrorKind: "timeout", Latency: time.Second})

	snap := c.Snapshot()

	assert.Equal(t, int64(4), snap.Global.Requests)
	assert.Equal(t, int64(1), snap.Global.Failures, "500 without a failed check is not a failure")
	assert.Equal(t, int64(1), snap.Global.TransportErrors)
	assert.Equal(t, int64(350), snap.Global.Bytes)
	assert.Equal(t, int64(1), snap.Global.ErrorKinds["timeout"])
	assert.Equal(t, int64(2), snap.Global.StatusClass(2))
	assert.Equal(t, int64(1), snap.Global.StatusClass(5))

	addBook := snap.Scenarios["add_book"]
	assert.Equal(t, int64(3), addBook.Requests)
	assert.Equal(t, int64(0), addBook.Failures)
	assert.Equal(t, int64(3), addBook.Latency.Count)

	getBook := snap.Scenarios["get_book_info"]
	assert.Equal(t, int64(1), getBook.Requests)
	assert.Equal(t, int64(1), getBook.Failures)
	assert.Equal(t, int64(0), getBook.Latency.Count, "transport errors are not in the latency distribution")

	assert.Contains(t, snap.Requests, "add book")
	assert.NotContains(t, snap.Requests, "get book")
}

func TestCollector_Checks(t *testing.T) {
	c := NewCollector()

	c.Record("s", Sample{StatusCode: 200, Checks: []CheckResult{
		{Name: "status is 200 or 201", Passed: true},
		{Name: "body has id", Passed: true},
	}})
	c.Record("s", Sample{StatusCode: 404, Checks: []CheckResult{
		{Name: "status is 200 or 201", Passed: false},
		{Name: "body has id", Passed: false},
	}})

	snap := c.Snapshot()
	stats := snap.Scenarios["s"]

	assert.Equal(t, int64(2), stats.Requests)
	assert.Equal(t, int64(1), stats.CheckFailures, "one request with two failed checks")
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, CheckStats{Passes: 1, Fails: 1}, stats.Checks["status is 200 or 201"])
	assert.Equal(t, CheckStats{Passes: 1, Fails: 1}, stats.Checks["body has id"])
	assert.InDelta(t, 0.5, stats.FailureRate(), 1e-9)
}

func TestCollector_CountsSumToRecorded(t *testing.T) {
	c := NewCollector()

	const workers = 16
	const perWorker = 500

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s := Sample{Latency: time.Duration(i%200+1) * time.Millisecond}
				switch i % 4 {
				case 0:
					s.ErrorKind = "connection-refused"
				case 1:
					s.StatusCode = 200
				case 2:
					s.StatusCode = 404
				default:
					s.StatusCode = 503
				}
				c.Record(fmt.Sprintf("scenario-%d", w%3), s)
			}
		}(w)
	}
	wg.Wait()

	snap := c.Snapshot()
	const total = workers * perWorker

	require.Equal(t, int64(total), snap.Global.Requests)

	sum := snap.Global.TransportErrors
	for _, n := range snap.Global.StatusCodes {
		sum += n
	}
	assert.Equal(t, int64(total), sum, "transport errors plus status buckets must equal requests")

	var perScenario int64
	for _, st := range snap.Scenarios {
		perScenario += st.Requests
	}
	assert.Equal(t, int64(total), perScenario)
}

func TestCollector_PercentilesMonotonic(t *testing.T) {
	c := NewCollector()
	for i := 1; i <= 1000; i++ {
		c.Record("s", Sample{StatusCode: 200, Latency: time.Duration(i*i) * time.Microsecond})
	}

	stats := c.Snapshot().Global
	prev := time.Duration(0)
	for q := 0.0; q <= 100; q += 0.5 {
		p := stats.Percentile(q)
		assert.GreaterOrEqual(t, p, prev, "percentile %v", q)
		prev = p
	}

	assert.LessOrEqual(t, stats.Latency.P50, stats.Latency.P90)
	assert.LessOrEqual(t, stats.Latency.P90, stats.Latency.P95)
	assert.LessOrEqual(t, stats.Latency.P95, stats.Latency.P99)
	assert.LessOrEqual(t, stats.Latency.P99, stats.Latency.Max)
}

func TestCollector_LatencyPercentiles(t *testing.T) {
	c := NewCollector()
	for i := 1; i <= 10; i++ {
		c.Record("s", Sample{StatusCode: 200, Latency: time.Duration(i*10) * time.Millisecond})
	}

	lat := c.Snapshot().Global.Latency

	// HDR binning tolerance
	if lat.P50 < 40*time.Millisecond || lat.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms", lat.P50)
	}
	if lat.P99 < 90*time.Millisecond || lat.P99 > 110*time.Millisecond {
		t.Errorf("P99 = %v, want ~100ms", lat.P99)
	}
	if lat.Min < 9*time.Millisecond || lat.Min > 11*time.Millisecond {
		t.Errorf("Min = %v, want ~10ms", lat.Min)
	}
}

func TestCollector_SnapshotIsImmutable(t *testing.T) {
	c := NewCollector()
	c.Record("s", Sample{StatusCode: 200, Latency: 5 * time.Millisecond})

	snap := c.Snapshot()
	p99 := snap.Global.Percentile(99)

	for i := 0; i < 100; i++ {
		c.Record("s", Sample{StatusCode: 500, Latency: time.Second})
	}

	assert.Equal(t, int64(1), snap.Global.Requests)
	assert.Equal(t, int64(1), snap.Global.StatusCodes[200])
	assert.Zero(t, snap.Global.StatusCodes[500])
	assert.Equal(t, p99, snap.Global.Percentile(99))
}

func TestCollector_SchedulingCounters(t *testing.T) {
	c := NewCollector()

	c.RecordDrop("register_author")
	c.RecordDrop("register_author")
	c.RecordOvershoot("register_author", 5*time.Millisecond)
	c.RecordOvershoot("update_book", 40*time.Millisecond)
	c.RecordOvershoot("update_book", 2*time.Millisecond)
	c.RecordIteration("update_book", 12*time.Millisecond, false)
	c.RecordIteration("update_book", 14*time.Millisecond, true)

	snap := c.Snapshot()

	assert.Equal(t, int64(2), snap.Global.Dropped)
	assert.Equal(t, int64(3), snap.Global.Overshoots)
	assert.Equal(t, 40*time.Millisecond, snap.Global.MaxLag)
	assert.Equal(t, int64(2), snap.Scenarios["register_author"].Dropped)
	assert.Equal(t, 5*time.Millisecond, snap.Scenarios["register_author"].MaxLag)
	assert.Equal(t, int64(2), snap.Scenarios["update_book"].Iterations)
	assert.Equal(t, int64(1), snap.Scenarios["update_book"].FailedIterations)
	assert.Equal(t, int64(2), snap.Scenarios["update_book"].IterationDuration.Count)
	assert.Zero(t, snap.Global.Requests, "drops are not requests")
}

func TestCollector_TrailingErrorRatio(t *testing.T) {
	c := NewCollectorWithConfig(Config{ErrorWindow: 10})

	for i := 0; i < 10; i++ {
		c.Record("s", Sample{StatusCode: 200})
	}
	ratio, n := c.TrailingErrorRatio()
	assert.Equal(t, 10, n)
	assert.Zero(t, ratio)

	for i := 0; i < 5; i++ {
		c.Record("s", Sample{ErrorKind: "timeout"})
	}
	ratio, n = c.TrailingErrorRatio()
	assert.Equal(t, 10, n)
	assert.InDelta(t, 0.5, ratio, 1e-9)
}

func TestSnapshot_RPS(t *testing.T) {
	snap := &Snapshot{Global: Stats{Requests: 50}, Elapsed: 5 * time.Second}
	assert.InDelta(t, 10.0, snap.RPS(), 1e-9)

	assert.Zero(t, (&Snapshot{}).RPS())
}

func BenchmarkCollector_Record(b *testing.B) {
	c := NewCollector()
	s := Sample{Name: "add book", StatusCode: 200, Latency: 15 * time.Millisecond, Checks: []CheckResult{{Name: "ok", Passed: true}}}

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Record("add_book", s)
		}
	})
}
