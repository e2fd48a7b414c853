// Package metrics aggregates per-request outcomes into per-scenario and
// global statistics.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Collector records request outcomes and scheduling events.
//
// # Thread Safety
//
// Collector is safe for concurrent use and never blocks on I/O. Request
// outcomes update a series under a short per-series mutex (HDR histograms are
// not thread-safe); scheduling counters such as drops and overshoots are
// atomic.
type Collector struct {
	config Config

	global *series

	scenarios   map[string]*series
	scenariosMu sync.RWMutex

	requestHists   map[string]*hdrhistogram.Histogram
	requestHistsMu sync.Mutex

	window *ErrorWindow

	startTime   time.Time
	startTimeMu sync.RWMutex
}

// Config contains configuration for the collector.
type Config struct {
	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int

	// ErrorWindow is the number of trailing requests tracked for the
	// error-ratio abort condition (default: 100)
	ErrorWindow int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
		ErrorWindow:      100,
	}
}

// NewCollector creates a collector with the default configuration.
func NewCollector() *Collector {
	return NewCollectorWithConfig(DefaultConfig())
}

// NewCollectorWithConfig creates a collector with a custom configuration.
func NewCollectorWithConfig(config Config) *Collector {
	defaults := DefaultConfig()
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}
	if config.ErrorWindow <= 0 {
		config.ErrorWindow = defaults.ErrorWindow
	}

	c := &Collector{
		config:       config,
		scenarios:    make(map[string]*series),
		requestHists: make(map[string]*hdrhistogram.Histogram),
		window:       NewErrorWindow(config.ErrorWindow),
		startTime:    time.Now(),
	}
	c.global = c.newSeries()
	return c
}

// Start resets the elapsed-time origin. Call it when traffic begins.
func (c *Collector) Start() {
	c.startTimeMu.Lock()
	c.startTime = time.Now()
	c.startTimeMu.Unlock()
}

// Record records the outcome of one request issued by scenario.
func (c *Collector) Record(scenario string, s Sample) {
	latency := c.clamp(s.Latency.Microseconds())

	c.global.record(s, latency)
	c.scenario(scenario).record(s, latency)
	c.window.Add(s.Failed())

	if s.Name != "" && !s.TransportFailed() {
		c.recordRequestHistogram(s.Name, latency)
	}
}

// RecordDrop records an iteration that could not start for lack of a VU.
func (c *Collector) RecordDrop(scenario string) {
	c.global.dropped.Add(1)
	c.scenario(scenario).dropped.Add(1)
}

// RecordOvershoot records an iteration dispatched lag after its scheduled time.
func (c *Collector) RecordOvershoot(scenario string, lag time.Duration) {
	c.global.overshoot(lag)
	c.scenario(scenario).overshoot(lag)
}

// RecordIteration records a completed iteration.
func (c *Collector) RecordIteration(scenario string, duration time.Duration, failed bool) {
	micros := c.clamp(duration.Microseconds())
	c.global.iteration(micros, failed)
	c.scenario(scenario).iteration(micros, failed)
}

// TrailingErrorRatio returns the failure ratio over the trailing request
// window and the number of requests it covers.
func (c *Collector) TrailingErrorRatio() (float64, int) {
	return c.window.Ratio()
}

// Snapshot returns a point-in-time immutable copy of all statistics.
func (c *Collector) Snapshot() *Snapshot {
	c.startTimeMu.RLock()
	start := c.startTime
	c.startTimeMu.RUnlock()

	now := time.Now()
	snap := &Snapshot{
		Global:    c.global.stats(),
		Scenarios: make(map[string]Stats),
		Requests:  make(map[string]LatencyStats),
		StartTime: start,
		Elapsed:   now.Sub(start),
		Timestamp: now,
	}

	c.scenariosMu.RLock()
	for name, s := range c.scenarios {
		snap.Scenarios[name] = s.stats()
	}
	c.scenariosMu.RUnlock()

	c.requestHistsMu.Lock()
	for name, h := range c.requestHists {
		snap.Requests[name] = latencyStats(h)
	}
	c.requestHistsMu.Unlock()

	return snap
}

// Scenarios returns the names of the scenarios seen so far.
func (c *Collector) Scenarios() []string {
	c.scenariosMu.RLock()
	defer c.scenariosMu.RUnlock()

	names := make([]string, 0, len(c.scenarios))
	for name := range c.scenarios {
		names = append(names, name)
	}
	return names
}

func (c *Collector) scenario(name string) *series {
	c.scenariosMu.RLock()
	s, ok := c.scenarios[name]
	c.scenariosMu.RUnlock()
	if ok {
		return s
	}

	c.scenariosMu.Lock()
	defer c.scenariosMu.Unlock()
	if s, ok = c.scenarios[name]; !ok {
		s = c.newSeries()
		c.scenarios[name] = s
	}
	return s
}

// recordRequestHistogram records a latency in a per-request histogram.
func (c *Collector) recordRequestHistogram(name string, latencyMicros int64) {
	c.requestHistsMu.Lock()
	defer c.requestHistsMu.Unlock()

	hist, exists := c.requestHists[name]
	if !exists {
		hist = c.newHistogram()
		c.requestHists[name] = hist
	}
	hist.RecordValue(latencyMicros)
}

func (c *Collector) clamp(micros int64) int64 {
	if micros < c.config.HistogramMin {
		return c.config.HistogramMin
	}
	if micros > c.config.HistogramMax {
		return c.config.HistogramMax
	}
	return micros
}

func (c *Collector) newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(c.config.HistogramMin, c.config.HistogramMax, c.config.HistogramSigFigs)
}

func (c *Collector) newSeries() *series {
	return &series{
		latency:     c.newHistogram(),
		iterHist:    c.newHistogram(),
		statusCodes: make(map[int]int64),
		errorKinds:  make(map[string]int64),
		checks:      make(map[string]*CheckStats),
	}
}

// series holds the aggregates of one scenario, or of the whole run.
type series struct {
	mu              sync.Mutex
	latency         *hdrhistogram.Histogram
	requests        int64
	failures        int64
	transportErrors int64
	checkFailures   int64
	bytes           int64
	statusCodes     map[int]int64
	errorKinds      map[string]int64
	checks          map[string]*CheckStats

	dropped    atomic.Int64
	overshoots atomic.Int64
	maxLag     atomic.Int64

	iterMu           sync.Mutex
	iterHist         *hdrhistogram.Histogram
	iterations       int64
	failedIterations int64
}

func (s *series) record(sample Sample, latencyMicros int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests++
	s.bytes += sample.Bytes

	if sample.TransportFailed() {
		s.transportErrors++
		s.errorKinds[sample.ErrorKind]++
	} else {
		s.statusCodes[sample.StatusCode]++
		s.latency.RecordValue(latencyMicros)
	}

	checksFailed := false
	for _, check := range sample.Checks {
		cs, ok := s.checks[check.Name]
		if !ok {
			cs = &CheckStats{}
			s.checks[check.Name] = cs
		}
		if check.Passed {
			cs.Passes++
		} else {
			cs.Fails++
			checksFailed = true
		}
	}
	if checksFailed {
		s.checkFailures++
	}
	if sample.TransportFailed() || checksFailed {
		s.failures++
	}
}

func (s *series) overshoot(lag time.Duration) {
	s.overshoots.Add(1)
	for {
		current := s.maxLag.Load()
		if int64(lag) <= current || s.maxLag.CompareAndSwap(current, int64(lag)) {
			return
		}
	}
}

func (s *series) iteration(micros int64, failed bool) {
	s.iterMu.Lock()
	defer s.iterMu.Unlock()

	s.iterations++
	if failed {
		s.failedIterations++
	}
	s.iterHist.RecordValue(micros)
}

func (s *series) stats() Stats {
	s.mu.Lock()
	st := Stats{
		Requests:        s.requests,
		Failures:        s.failures,
		TransportErrors: s.transportErrors,
		CheckFailures:   s.checkFailures,
		Bytes:           s.bytes,
		StatusCodes:     make(map[int]int64, len(s.statusCodes)),
		ErrorKinds:      make(map[string]int64, len(s.errorKinds)),
		Checks:          make(map[string]CheckStats, len(s.checks)),
		Latency:         latencyStats(s.latency),
		hist:            hdrhistogram.Import(s.latency.Export()),
	}
	for code, n := range s.statusCodes {
		st.StatusCodes[code] = n
	}
	for kind, n := range s.errorKinds {
		st.ErrorKinds[kind] = n
	}
	for name, cs := range s.checks {
		st.Checks[name] = *cs
	}
	s.mu.Unlock()

	st.Dropped = s.dropped.Load()
	st.Overshoots = s.overshoots.Load()
	st.MaxLag = time.Duration(s.maxLag.Load())

	s.iterMu.Lock()
	st.Iterations = s.iterations
	st.FailedIterations = s.failedIterations
	st.IterationDuration = latencyStats(s.iterHist)
	s.iterMu.Unlock()

	return st
}
