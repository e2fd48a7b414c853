// Package performance defines the building blocks of a load test: scenarios,
// virtual users, the VU pool, setup context and iterations.
package performance

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig is returned for bad scenario or profile definitions.
	// It is always detected before any traffic is sent.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrSetupFailed is returned when the setup stage fails. The run is aborted.
	ErrSetupFailed = errors.New("setup failed")
)

// CheckFailedError is returned by Iteration.Do when at least one check on a
// response failed. It is recorded and never aborts a run.
type CheckFailedError struct {
	Request string
	Checks  []string
}

func (e *CheckFailedError) Error() string {
	return fmt.Sprintf("%s: failed checks: %s", e.Request, strings.Join(e.Checks, ", "))
}
