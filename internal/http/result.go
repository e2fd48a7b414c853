package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"
)

// ErrorKind classifies transport-level failures.
type ErrorKind string

const (
	// KindTimeout means the per-request timeout expired.
	KindTimeout ErrorKind = "timeout"
	// KindConnectionRefused means the target actively refused the connection.
	KindConnectionRefused ErrorKind = "connection-refused"
	// KindDNSFailure means the target host could not be resolved.
	KindDNSFailure ErrorKind = "dns-failure"
	// KindOther covers every other transport failure, including cancellation.
	KindOther ErrorKind = "other"
)

// TransportError is returned when no HTTP response was obtained.
//
// A non-2xx status is NOT a transport error; it is a normal Result.
type TransportError struct {
	Kind ErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error (%s): %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a single HTTP call.
type Result struct {
	Name       string
	Method     string
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Latency    time.Duration
	StartTime  time.Time

	// TransportErr is set when no response was received.
	TransportErr *TransportError
}

// OK reports whether a response with a 2xx status was received.
func (r *Result) OK() bool {
	return r.TransportErr == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// BodyBytes returns the number of response body bytes received.
func (r *Result) BodyBytes() int64 {
	return int64(len(r.Body))
}

// LatencyMillis returns the latency in milliseconds.
func (r *Result) LatencyMillis() float64 {
	return float64(r.Latency) / float64(time.Millisecond)
}

// classifyError maps an error from http.Client.Do to a TransportError.
func classifyError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}

	kind := KindOther

	var dnsErr *net.DNSError
	var netErr net.Error
	var urlErr *url.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			kind = KindTimeout
		} else {
			kind = KindDNSFailure
		}
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = KindConnectionRefused
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.As(err, &urlErr) && urlErr.Timeout():
		kind = KindTimeout
	}

	return &TransportError{Kind: kind, Err: err}
}
