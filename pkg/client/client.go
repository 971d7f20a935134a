package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Middleware manipulates an outgoing *http.Request before it is executed.
// The context is provided for cancellation and to support auth implementations
// that may need to perform async operations (e.g., token refresh).
type Middleware func(context.Context, *http.Request) error

// Logger represents the minimal logging interface used by the client.
// *logrus.Entry and *logrus.Logger satisfy it.
type Logger interface {
	Debugf(format string, args ...any)
	Errorf(format string, args ...any)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// Client represents a STAC API client
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	middleware  []Middleware
	retryPolicy RetryPolicy
	logger      Logger
	userAgent   string
}

// Request describes a single call made through Client.Do.
type Request struct {
	Method string
	// Ref is resolved against the client's base URL; absolute URLs are used as is.
	Ref         string
	Query       url.Values
	Body        []byte
	ContentType string
}

// -----------------------------------------------------------------------------
// Client options
// -----------------------------------------------------------------------------

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithMiddleware registers one or more request-middleware functions.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		for _, m := range mw {
			if m != nil {
				c.middleware = append(c.middleware, m)
			}
		}
	}
}

// WithRetryPolicy configures the retry behavior. A nil policy disables retries.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) { c.retryPolicy = policy }
}

// WithLogger registers a logger used for request lifecycle events.
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a new STAC client. baseURL must be absolute.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}

	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if u.RawPath != "" && !strings.HasSuffix(u.RawPath, "/") {
		u.RawPath += "/"
	}
	c := &Client{
		baseURL:     u,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		retryPolicy: DefaultRetryPolicy,
		userAgent:   "stac-ingest/1.0",
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// BaseURL returns a copy of the client's base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Resolve resolves ref against the base URL. Leading slashes are ignored so
// that "search" and "/search" both stay below the base path.
func (c *Client) Resolve(ref string) (*url.URL, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	if u.IsAbs() {
		return u, nil
	}
	u.Path = strings.TrimPrefix(u.Path, "/")
	return c.baseURL.ResolveReference(u), nil
}

// -----------------------------------------------------------------------------
// Do: one place to build a request, run middleware, retry, and map errors.
// -----------------------------------------------------------------------------
//
// Every endpoint funnels its outbound HTTP calls through this helper. The
// request is rebuilt for each attempt so bodies can be replayed. Non-2xx
// responses are returned as *APIError with the body already drained.
func (c *Client) Do(ctx context.Context, r Request) (*http.Response, error) {
	u, err := c.Resolve(r.Ref)
	if err != nil {
		return nil, err
	}
	if len(r.Query) > 0 {
		q := u.Query()
		for key, values := range r.Query {
			q[key] = append([]string(nil), values...)
		}
		u.RawQuery = q.Encode()
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	c.debugf("%s %s", method, u)

	var attempt int
	for {
		resp, err := c.roundTrip(ctx, method, u.String(), r)
		retry, delay := false, time.Duration(0)
		if c.retryPolicy != nil && ctx.Err() == nil {
			retry, delay = c.retryPolicy.ShouldRetry(attempt, resp, err)
		}
		if !retry {
			if err != nil {
				return nil, err
			}
			return c.checkStatus(resp, method, u)
		}
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		attempt++
		c.debugf("retrying %s %s (attempt %d) in %s", method, u, attempt, delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, rawURL string, r Request) (*http.Response, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request for %s: %w", rawURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if r.Body != nil {
		ct := r.ContentType
		if ct == "" {
			ct = "application/json"
		}
		req.Header.Set("Content-Type", ct)
	}

	// Apply all registered middleware in order.
	for _, mw := range c.middleware {
		if err := mw(ctx, req); err != nil {
			return nil, fmt.Errorf("error applying middleware for %s: %w", rawURL, err)
		}
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkStatus(resp *http.Response, method string, u *url.URL) (*http.Response, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading error response from %s: %w", u, err)
	}
	apiErr := newAPIError(resp.StatusCode, method, u.String(), data)
	c.errorf("%s %s failed: status=%d", method, u, resp.StatusCode)
	return nil, apiErr
}

// DoJSON encodes in (when non-nil) as the JSON request body and decodes the
// response into out (when non-nil).
func (c *Client) DoJSON(ctx context.Context, method, ref string, query url.Values, in, out any) error {
	var body []byte
	if in != nil {
		buf := &bytes.Buffer{}
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(in); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		body = buf.Bytes()
	}

	resp, err := c.Do(ctx, Request{Method: method, Ref: ref, Query: query, Body: body})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response from %s: %w", resp.Request.URL, err)
	}
	return nil
}

func (c *Client) debugf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}

func (c *Client) errorf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Errorf(format, args...)
	}
}
