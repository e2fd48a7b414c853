package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client issues single HTTP requests on behalf of load-test iterations.
//
// A Client is shared by every virtual user of a run so that connections are
// pooled across VUs. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	timeout    time.Duration
	limiter    *rate.Limiter
}

// TransportConfig contains connection pool settings for the underlying transport.
type TransportConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
	InsecureSkipVerify  bool
}

// DefaultTransportConfig returns sensible defaults for load testing.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
}

// ClientOption is a function that configures a Client
type ClientOption func(*Client)

// NewClient creates a new HTTP client with the given options
func NewClient(options ...ClientOption) *Client {
	client := &Client{
		httpClient: &http.Client{
			Transport: newTransport(DefaultTransportConfig()),
		},
		headers: make(map[string]string),
		timeout: 30 * time.Second,
	}

	for _, option := range options {
		option(client)
	}

	return client
}

// WithBaseURL sets the base URL for the client
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithTimeout sets the default per-request timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHeader adds a header sent with every request
func WithHeader(key, value string) ClientOption {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithTransport replaces the connection pool settings.
func WithTransport(cfg TransportConfig) ClientOption {
	return func(c *Client) {
		c.httpClient.Transport = newTransport(cfg)
	}
}

// WithRPSLimit caps the number of requests per second across all callers.
// A non-positive value disables the cap.
func WithRPSLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func newTransport(cfg TransportConfig) *http.Transport {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		DisableKeepAlives:   cfg.DisableKeepAlives,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test targets
	}
	return transport
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Execute issues req and waits for the full response body.
//
// On a transport failure (timeout, refused connection, DNS failure, ...) the
// returned Result still carries the elapsed latency and the error is a
// *TransportError. Any status code, including 4xx and 5xx, yields a nil error.
func (c *Client) Execute(ctx context.Context, req *Request) (*Result, error) {
	timeout := c.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			te := &TransportError{Kind: KindOther, Err: fmt.Errorf("rps limiter: %w", err)}
			return &Result{Name: req.DisplayName(), Method: req.Method, TransportErr: te}, te
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := req.Build(reqCtx, c.baseURL)
	if err != nil {
		te := &TransportError{Kind: KindOther, Err: fmt.Errorf("failed to build request: %w", err)}
		return &Result{Name: req.DisplayName(), Method: req.Method, TransportErr: te}, te
	}

	for key, value := range c.headers {
		if httpReq.Header.Get(key) == "" {
			httpReq.Header.Set(key, value)
		}
	}

	result := &Result{
		Name:      req.DisplayName(),
		Method:    httpReq.Method,
		URL:       httpReq.URL.String(),
		StartTime: time.Now(),
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		result.Latency = time.Since(result.StartTime)
		result.TransportErr = classifyError(err)
		return result, result.TransportErr
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	result.Latency = time.Since(result.StartTime)
	result.StatusCode = resp.StatusCode
	result.Headers = resp.Header
	result.Body = body
	if err != nil {
		result.TransportErr = classifyError(fmt.Errorf("failed to read response body: %w", err))
		return result, result.TransportErr
	}

	return result, nil
}

// CloseIdleConnections releases pooled connections at the end of a run.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
