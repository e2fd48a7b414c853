package performance

import (
	"context"
	"math/rand"
	"sort"

	"github.com/wesleyorama2/libload/internal/http"
)

// Requester issues a single HTTP request. *http.Client implements it.
type Requester interface {
	Execute(ctx context.Context, req *http.Request) (*http.Result, error)
}

// SetupFunc runs once before any scenario starts and produces the shared
// setup context. An error aborts the run.
type SetupFunc func(ctx context.Context, client Requester) (*SetupContext, error)

// TeardownFunc runs once after every scenario has completed.
type TeardownFunc func(ctx context.Context, client Requester, setup *SetupContext) error

// SetupContext is the immutable seed data shared by every iteration, such as
// the author and book IDs created during setup.
//
// A nil *SetupContext is valid and empty. Methods never expose the internal
// slices, so no iteration can mutate the shared data.
type SetupContext struct {
	data map[string][]string
}

// NewSetupContext copies data into a new SetupContext.
func NewSetupContext(data map[string][]string) *SetupContext {
	sc := &SetupContext{data: make(map[string][]string, len(data))}
	for key, values := range data {
		sc.data[key] = append([]string(nil), values...)
	}
	return sc
}

// Len returns the number of values stored under key.
func (sc *SetupContext) Len(key string) int {
	if sc == nil {
		return 0
	}
	return len(sc.data[key])
}

// At returns the i-th value stored under key.
func (sc *SetupContext) At(key string, i int) (string, bool) {
	if sc == nil || i < 0 || i >= len(sc.data[key]) {
		return "", false
	}
	return sc.data[key][i], true
}

// Pick returns a uniformly random value stored under key.
func (sc *SetupContext) Pick(key string) (string, bool) {
	n := sc.Len(key)
	if n == 0 {
		return "", false
	}
	return sc.data[key][rand.Intn(n)], true
}

// Values returns a copy of the values stored under key.
func (sc *SetupContext) Values(key string) []string {
	if sc == nil {
		return nil
	}
	return append([]string(nil), sc.data[key]...)
}

// Keys returns the stored keys in sorted order.
func (sc *SetupContext) Keys() []string {
	if sc == nil {
		return nil
	}
	keys := make([]string, 0, len(sc.data))
	for key := range sc.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
