package performance

import (
	"sync"
	"sync/atomic"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU is in the pool, ready to run an iteration.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is executing an iteration.
	VUStateRunning
	// VUStateStopped indicates the VU was destroyed at the end of the run.
	VUStateStopped
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VirtualUser is a reusable execution slot.
//
// A VU is owned by exactly one VUPool and runs at most one iteration at a
// time. Its ID and iteration counter are handed to iteration bodies.
type VirtualUser struct {
	// Unique identifier for this VU within its pool, starting at 1.
	ID int

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	// Iterations started on this VU
	iteration atomic.Int64
}

func newVirtualUser(id int) *VirtualUser {
	return &VirtualUser{ID: id}
}

// State returns the current VU state.
func (vu *VirtualUser) State() VUState {
	return VUState(vu.state.Load())
}

// Iterations returns the number of iterations started on this VU.
func (vu *VirtualUser) Iterations() int64 {
	return vu.iteration.Load()
}

// nextIteration returns the zero-based number of the iteration being started.
func (vu *VirtualUser) nextIteration() int64 {
	return vu.iteration.Add(1) - 1
}

// VUPool manages a bounded set of virtual users.
//
// PreAllocated VUs are created up front. When all of them are busy the pool
// grows on demand up to Max. Acquire never blocks: with Max VUs busy it
// reports no slot and the caller records a dropped iteration.
//
// Idle VUs sit in a channel sized to Max, so a receive hands each idle VU to
// exactly one caller and a release never blocks.
type VUPool struct {
	idle chan *VirtualUser

	mu      sync.Mutex
	created int
	closed  bool

	preAllocated int
	max          int

	busy atomic.Int32
	peak atomic.Int32
}

// NewVUPool creates a pool with preAllocated idle VUs and room for max.
// max is raised to preAllocated when smaller.
func NewVUPool(preAllocated, max int) *VUPool {
	if preAllocated < 0 {
		preAllocated = 0
	}
	if max < preAllocated {
		max = preAllocated
	}

	p := &VUPool{
		idle:         make(chan *VirtualUser, max),
		preAllocated: preAllocated,
		max:          max,
	}
	for i := 0; i < preAllocated; i++ {
		p.created++
		p.idle <- newVirtualUser(p.created)
	}
	return p
}

// Acquire returns an idle VU marked running, creating one if the pool is
// below Max. It returns false immediately when no VU is available.
func (p *VUPool) Acquire() (*VirtualUser, bool) {
	select {
	case vu := <-p.idle:
		return p.claim(vu), true
	default:
	}

	p.mu.Lock()
	if !p.closed && p.created < p.max {
		p.created++
		vu := newVirtualUser(p.created)
		p.mu.Unlock()
		return p.claim(vu), true
	}
	p.mu.Unlock()

	// A release may have landed while we held the lock.
	select {
	case vu := <-p.idle:
		return p.claim(vu), true
	default:
		return nil, false
	}
}

func (p *VUPool) claim(vu *VirtualUser) *VirtualUser {
	vu.state.Store(int32(VUStateRunning))
	busy := p.busy.Add(1)
	for {
		peak := p.peak.Load()
		if busy <= peak || p.peak.CompareAndSwap(peak, busy) {
			break
		}
	}
	return vu
}

// Release returns vu to the pool. Releasing a VU that is not running is a no-op.
func (p *VUPool) Release(vu *VirtualUser) {
	if vu == nil || !vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateIdle)) {
		return
	}
	p.busy.Add(-1)

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		vu.state.Store(int32(VUStateStopped))
		return
	}
	p.idle <- vu
}

// Close destroys the idle VUs. VUs still running are destroyed on release.
func (p *VUPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case vu := <-p.idle:
			vu.state.Store(int32(VUStateStopped))
		default:
			return
		}
	}
}

// Size returns the number of VUs created so far.
func (p *VUPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}

// Busy returns the number of VUs currently running an iteration.
func (p *VUPool) Busy() int {
	return int(p.busy.Load())
}

// Peak returns the highest number of simultaneously busy VUs.
func (p *VUPool) Peak() int {
	return int(p.peak.Load())
}

// PreAllocated returns the number of VUs created up front.
func (p *VUPool) PreAllocated() int {
	return p.preAllocated
}

// Max returns the pool cap.
func (p *VUPool) Max() int {
	return p.max
}
