package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Sample is the outcome of one HTTP call as seen by the collector.
type Sample struct {
	// Name groups the request in per-request breakdowns.
	Name string

	StatusCode int
	Latency    time.Duration
	Bytes      int64

	// ErrorKind is non-empty when no response was received.
	ErrorKind string

	// Checks evaluated against the response, in evaluation order.
	Checks []CheckResult
}

// CheckResult is the outcome of a single named check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
}

// TransportFailed reports whether the sample carries a transport error.
func (s Sample) TransportFailed() bool {
	return s.ErrorKind != ""
}

// ChecksFailed reports whether any check failed.
func (s Sample) ChecksFailed() bool {
	for _, c := range s.Checks {
		if !c.Passed {
			return true
		}
	}
	return false
}

// Failed reports whether the sample counts as a failed request.
// Non-2xx statuses fail only through a check.
func (s Sample) Failed() bool {
	return s.TransportFailed() || s.ChecksFailed()
}

// LatencyStats contains latency statistics derived from an HDR histogram.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// CheckStats counts passes and fails of one named check.
type CheckStats struct {
	Passes int64 `json:"passes"`
	Fails  int64 `json:"fails"`
}

// Stats is an immutable view of one series (a scenario or the whole run).
type Stats struct {
	Requests        int64 `json:"requests"`
	Failures        int64 `json:"failures"`
	TransportErrors int64 `json:"transportErrors"`
	CheckFailures   int64 `json:"checkFailures"`
	Bytes           int64 `json:"bytes"`

	StatusCodes map[int]int64         `json:"statusCodes"`
	ErrorKinds  map[string]int64      `json:"errorKinds,omitempty"`
	Checks      map[string]CheckStats `json:"checks,omitempty"`
	Latency     LatencyStats          `json:"latency"`

	// Scheduling pressure.
	Dropped    int64         `json:"dropped"`
	Overshoots int64         `json:"overshoots"`
	MaxLag     time.Duration `json:"maxLag"`

	Iterations        int64        `json:"iterations"`
	FailedIterations  int64        `json:"failedIterations"`
	IterationDuration LatencyStats `json:"iterationDuration"`

	hist *hdrhistogram.Histogram
}

// Percentile returns the latency at quantile q (0-100).
func (s Stats) Percentile(q float64) time.Duration {
	if s.hist == nil || s.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(s.hist.ValueAtQuantile(q)) * time.Microsecond
}

// FailureRate returns failures / requests, or 0 when nothing was sent.
func (s Stats) FailureRate() float64 {
	if s.Requests == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Requests)
}

// StatusClass sums the status codes in class (2 for 2xx, 5 for 5xx).
func (s Stats) StatusClass(class int) int64 {
	var n int64
	for code, count := range s.StatusCodes {
		if code/100 == class {
			n += count
		}
	}
	return n
}

// Snapshot is a point-in-time immutable copy of a Collector.
type Snapshot struct {
	Global    Stats            `json:"global"`
	Scenarios map[string]Stats `json:"scenarios"`

	// Requests breaks latency down by request name across all scenarios.
	Requests map[string]LatencyStats `json:"requests"`

	StartTime time.Time     `json:"startTime"`
	Elapsed   time.Duration `json:"elapsed"`
	Timestamp time.Time     `json:"timestamp"`
}

// RPS returns the average request rate over the elapsed time.
func (s *Snapshot) RPS() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Global.Requests) / s.Elapsed.Seconds()
}

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}
