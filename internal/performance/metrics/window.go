package metrics

import "sync"

// ErrorWindow tracks the failure ratio over the last N requests.
//
// It is a fixed-size ring of outcomes; writers take a short mutex.
type ErrorWindow struct {
	mu       sync.Mutex
	outcomes []bool
	next     int
	filled   int
	failures int
}

// NewErrorWindow creates a window over the last size outcomes.
// A size below 1 is treated as 1.
func NewErrorWindow(size int) *ErrorWindow {
	if size < 1 {
		size = 1
	}
	return &ErrorWindow{outcomes: make([]bool, size)}
}

// Add records one outcome, evicting the oldest when the window is full.
func (w *ErrorWindow) Add(failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.filled == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.filled++
	}

	w.outcomes[w.next] = failed
	if failed {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

// Ratio returns the failure ratio and the number of outcomes it covers.
func (w *ErrorWindow) Ratio() (float64, int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.filled == 0 {
		return 0, 0
	}
	return float64(w.failures) / float64(w.filled), w.filled
}

// Size returns the window capacity.
func (w *ErrorWindow) Size() int {
	return len(w.outcomes)
}
