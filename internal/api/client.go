// Package api is the gateway to the Xeno analytics backend.
//
// Every call is a single request: no retries, no queueing, no deduplication
// of concurrent identical requests. Failures are classified into three
// kinds so callers can apply their own policy:
//
//   - *NetworkError: no response reached the client
//   - *HTTPError: a response with a status outside 2xx
//   - *DecodeError: a response body that is not valid JSON
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/go-querystring/query"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is the backend origin used when none is configured.
const DefaultBaseURL = "http://localhost:3000"

// DefaultTimeout bounds a single round-trip.
const DefaultTimeout = 15 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// Client performs authenticated JSON calls against a fixed backend origin.
//
// Thread-safety: Client is safe for concurrent use.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
	ids     IDGenerator
	log     logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client. The client is not
// modified; WithTimeout applies to a copy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithIDGenerator overrides the X-Request-ID generator (for testing).
func WithIDGenerator(g IDGenerator) Option {
	return func(c *Client) { c.ids = g }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the given backend origin.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		base: base,
		http: &http.Client{Timeout: DefaultTimeout},
		ids:  UUIDv7Generator{},
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	return c, nil
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Request describes one backend call.
type Request struct {
	Method string
	Path   string      // absolute path below the base URL, e.g. "/stats/3"
	Query  interface{} // struct with `url` tags, url.Values, or nil
	Body   interface{} // JSON-encoded when non-nil
	Token  string      // attached as a bearer credential when non-empty
}

// Response carries metadata about a completed call.
type Response struct {
	Status    int
	RequestID string
}

// errorBody is the shape of the backend's failure payloads.
type errorBody struct {
	Error string `json:"error"`
}

// Do performs the request and decodes a 2xx body into out (which may be nil).
func (c *Client) Do(ctx context.Context, req Request, out interface{}) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode body: %w", method, req.Path, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: build request: %w", method, req.Path, err)
	}
	requestID := c.ids.Generate()
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"method":     method,
			"path":       req.Path,
			"request_id": requestID,
		}).WithError(err).Debug("api request failed")
		return nil, &NetworkError{Method: method, Path: req.Path, Err: err}
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, &NetworkError{Method: method, Path: req.Path, Err: err}
	}

	resp := &Response{Status: httpResp.StatusCode, RequestID: requestID}
	c.log.WithFields(logrus.Fields{
		"method":     method,
		"path":       req.Path,
		"status":     resp.Status,
		"request_id": requestID,
		"elapsed":    time.Since(start).String(),
	}).Debug("api request")

	if resp.Status < 200 || resp.Status > 299 {
		var eb errorBody
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &eb); err != nil {
				return resp, &DecodeError{Method: method, Path: req.Path, Status: resp.Status, Err: err}
			}
		}
		return resp, &HTTPError{Method: method, Path: req.Path, Status: resp.Status, Message: eb.Error}
	}

	if out == nil {
		if len(bytes.TrimSpace(raw)) > 0 && !json.Valid(raw) {
			return resp, &DecodeError{Method: method, Path: req.Path, Status: resp.Status, Err: fmt.Errorf("invalid JSON")}
		}
		return resp, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp, &DecodeError{Method: method, Path: req.Path, Status: resp.Status, Err: err}
	}
	return resp, nil
}

// resolve joins path and query onto the base URL.
func (c *Client) resolve(path string, q interface{}) (string, error) {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""

	switch v := q.(type) {
	case nil:
	case url.Values:
		u.RawQuery = v.Encode()
	default:
		values, err := query.Values(v)
		if err != nil {
			return "", fmt.Errorf("encode query for %s: %w", path, err)
		}
		u.RawQuery = values.Encode()
	}
	return u.String(), nil
}
