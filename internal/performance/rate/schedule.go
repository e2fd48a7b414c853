// Package rate computes iteration start times for arrival-rate scenarios.
package rate

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidProfile is returned when a rate profile cannot produce a schedule.
var ErrInvalidProfile = errors.New("invalid rate profile")

// Stage is one segment of a ramping profile. The rate moves linearly from the
// previous stage's target (or the start rate) to Target over Duration.
type Stage struct {
	Target   float64
	Duration time.Duration
}

// Tick is a scheduled iteration start, relative to the scenario start.
type Tick struct {
	// Index is the zero-based position of the tick in its schedule.
	Index int64

	// Offset is the scheduled start time measured from the scenario start.
	Offset time.Duration
}

// Schedule produces the ticks of one scenario in time order.
//
// A Schedule is consumed once and is not safe for concurrent use; each
// scenario runner owns its own.
//
// Tick k (k = 0, 1, 2, ...) is placed at the instant where the area under the
// piecewise-linear rate curve reaches k. For a constant profile this gives
// ticks exactly timeUnit/rate apart starting at 0. Working from the cumulative
// area keeps fractional iterations from accumulating drift across stages.
type Schedule struct {
	stages []segment
	total  time.Duration

	// iteration state
	next      int64
	stage     int
	areaStart float64
}

// segment is a stage normalised to iterations per second.
type segment struct {
	from, to float64
	start    time.Duration
	duration time.Duration
	area     float64
}

// NewConstant returns a schedule emitting rate iterations per timeUnit for duration.
func NewConstant(rate float64, timeUnit, duration time.Duration) (*Schedule, error) {
	if rate < 0 {
		return nil, fmt.Errorf("%w: rate must not be negative, got %v", ErrInvalidProfile, rate)
	}
	return NewRamping(rate, timeUnit, []Stage{{Target: rate, Duration: duration}})
}

// NewRamping returns a schedule that starts at startRate and follows stages.
// Rates are expressed per timeUnit.
func NewRamping(startRate float64, timeUnit time.Duration, stages []Stage) (*Schedule, error) {
	if timeUnit <= 0 {
		return nil, fmt.Errorf("%w: timeUnit must be > 0, got %v", ErrInvalidProfile, timeUnit)
	}
	if startRate < 0 || math.IsNaN(startRate) || math.IsInf(startRate, 0) {
		return nil, fmt.Errorf("%w: start rate must be a non-negative number, got %v", ErrInvalidProfile, startRate)
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("%w: at least one stage is required", ErrInvalidProfile)
	}

	perSecond := 1 / timeUnit.Seconds()
	s := &Schedule{stages: make([]segment, 0, len(stages))}

	from := startRate * perSecond
	for i, st := range stages {
		if st.Duration <= 0 {
			return nil, fmt.Errorf("%w: stage %d duration must be > 0, got %v", ErrInvalidProfile, i, st.Duration)
		}
		if st.Target < 0 || math.IsNaN(st.Target) || math.IsInf(st.Target, 0) {
			return nil, fmt.Errorf("%w: stage %d target must be a non-negative number, got %v", ErrInvalidProfile, i, st.Target)
		}

		to := st.Target * perSecond
		s.stages = append(s.stages, segment{
			from:     from,
			to:       to,
			start:    s.total,
			duration: st.Duration,
			area:     (from + to) / 2 * st.Duration.Seconds(),
		})
		s.total += st.Duration
		from = to
	}

	return s, nil
}

// Duration returns the total length of the schedule.
func (s *Schedule) Duration() time.Duration {
	return s.total
}

// ExpectedTicks returns the number of ticks the schedule will emit.
func (s *Schedule) ExpectedTicks() int64 {
	var area float64
	for _, seg := range s.stages {
		area += seg.area
	}
	return int64(math.Ceil(area - areaEpsilon))
}

// RateAt returns the instantaneous rate, in iterations per second, at offset.
func (s *Schedule) RateAt(offset time.Duration) float64 {
	if offset < 0 || offset >= s.total {
		return 0
	}
	for _, seg := range s.stages {
		if offset < seg.start+seg.duration {
			progress := float64(offset-seg.start) / float64(seg.duration)
			return seg.from + (seg.to-seg.from)*progress
		}
	}
	return 0
}

// areaEpsilon absorbs float rounding so that e.g. 8/s over 5s yields 40 ticks, not 41.
const areaEpsilon = 1e-9

// Next returns the next tick, or false once the schedule is exhausted.
// No tick is ever emitted at or beyond Duration().
func (s *Schedule) Next() (Tick, bool) {
	target := float64(s.next)

	for s.stage < len(s.stages) {
		seg := s.stages[s.stage]
		need := target - s.areaStart

		if need < seg.area-areaEpsilon {
			offset := seg.start + seg.offsetFor(need)
			if offset >= s.total {
				return Tick{}, false
			}
			tick := Tick{Index: s.next, Offset: offset}
			s.next++
			return tick, true
		}

		s.areaStart += seg.area
		s.stage++
	}

	return Tick{}, false
}

// offsetFor solves from*t + (to-from)*t^2/(2*duration) = need for t within the segment.
func (seg segment) offsetFor(need float64) time.Duration {
	if need <= 0 {
		return 0
	}

	d := seg.duration.Seconds()
	slope := (seg.to - seg.from) / d
	disc := seg.from*seg.from + 2*slope*need
	if disc < 0 {
		disc = 0
	}

	// Rationalised root; stable for slope == 0 and for negative slopes.
	denom := seg.from + math.Sqrt(disc)
	if denom <= 0 {
		return seg.duration
	}
	t := 2 * need / denom
	if t > d {
		t = d
	}
	return time.Duration(t * float64(time.Second))
}
