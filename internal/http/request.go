package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request describes a single HTTP call issued by an iteration body or by setup.
type Request struct {
	// Name groups requests in the report. Defaults to "METHOD path".
	Name string

	Method  string
	Path    string
	Headers map[string]string
	Body    []byte

	// Timeout overrides the client timeout for this request when positive.
	Timeout time.Duration
}

// NewRequest creates a new request for the given method and path.
// The path may be absolute or relative to the client's base URL.
func NewRequest(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Headers: make(map[string]string),
	}
}

// WithName sets the name used to group this request in metrics.
func (r *Request) WithName(name string) *Request {
	r.Name = name
	return r
}

// WithHeader adds a header to the request
func (r *Request) WithHeader(key, value string) *Request {
	r.Headers[key] = value
	return r
}

// WithBody sets a raw request body.
func (r *Request) WithBody(body []byte) *Request {
	r.Body = body
	return r
}

// WithJSON marshals v as the request body and sets the JSON content type.
func (r *Request) WithJSON(v interface{}) (*Request, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return r, err
	}
	r.Body = body
	if _, ok := r.Headers["Content-Type"]; !ok {
		r.Headers["Content-Type"] = "application/json"
	}
	return r, nil
}

// WithTimeout sets a per-request timeout.
func (r *Request) WithTimeout(timeout time.Duration) *Request {
	r.Timeout = timeout
	return r
}

// DisplayName returns the name used for metrics grouping.
func (r *Request) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return strings.ToUpper(r.Method) + " " + r.Path
}

// Build constructs an http.Request from the Request
func (r *Request) Build(ctx context.Context, baseURL string) (*http.Request, error) {
	target, err := r.resolve(baseURL)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if len(r.Body) > 0 {
		bodyReader = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(r.Method), target, bodyReader)
	if err != nil {
		return nil, err
	}

	for key, value := range r.Headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// resolve joins the request path with baseURL unless the path is already absolute.
func (r *Request) resolve(baseURL string) (string, error) {
	if strings.HasPrefix(r.Path, "http://") || strings.HasPrefix(r.Path, "https://") || baseURL == "" {
		return r.Path, nil
	}

	reqURL, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	path, rawQuery, _ := strings.Cut(r.Path, "?")
	if reqURL.Path == "" {
		reqURL.Path = "/" + strings.TrimLeft(path, "/")
	} else {
		reqURL.Path = strings.TrimRight(reqURL.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}
	if rawQuery != "" {
		reqURL.RawQuery = rawQuery
	}

	return reqURL.String(), nil
}
