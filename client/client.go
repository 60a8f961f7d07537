// Package client is the Go SDK of the DiplomaHub API: identity session, access decision,
// payment confirmation flows and the upload queue.
package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
)

const apiPrefix = "/v1"

var (
	ErrUnauthenticated      = errors.New("login required")
	ErrSubscriptionRequired = errors.New("subscription required")
)

// APIError is a non-2xx response of the API.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string // validation errors, by field
	Subscribe  *SubscribePrompt  // set on 402
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for f, msg := range e.Fields {
			parts = append(parts, f+": "+msg)
		}
		return strings.Join(parts, "; ")
	}
	return http.StatusText(e.StatusCode)
}

// SubscribePrompt is returned with the 402 responses of the gated content.
type SubscribePrompt struct {
	Message  string `json:"message"`
	PlansURL string `json:"plansUrl"`
}

// IsUnauthenticated reports whether err is a 401 of the API.
func IsUnauthenticated(err error) bool {
	return statusCode(err) == http.StatusUnauthorized
}

// IsSubscriptionRequired reports whether err is a 402 of the API.
func IsSubscriptionRequired(err error) bool {
	return statusCode(err) == http.StatusPaymentRequired
}

func statusCode(err error) int {
	if apiErr, ok := errors.Cause(err).(*APIError); ok {
		return apiErr.StatusCode
	}
	return 0
}

type Option func(*Client)

// WithHTTPClient sets the http.Client used to reach the API.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.rest = &rest.Client{HTTPClient: hc} }
}

// WithClock sets the clock used by the caches, the retries & the upload simulation.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithRetryDelay sets the delay before the single retry of the queries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) { c.retryDelay = d }
}

// Client calls the API on behalf of the Session owner.
type Client struct {
	baseURL    string
	rest       *rest.Client
	clock      clock.Clock
	retryDelay time.Duration
	Session    *Session
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		rest:       &rest.Client{HTTPClient: &http.Client{Timeout: 30 * time.Second}},
		clock:      clock.WallClock,
		retryDelay: time.Second,
		Session:    new(Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) request(method rest.Method, path string, query map[string]string, body interface{}) (rest.Request, error) {
	req := rest.Request{
		Method:      method,
		BaseURL:     c.baseURL + apiPrefix + path,
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: query,
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return req, errors.Wrap(err, "encoding request body")
		}
		req.Body = data
		req.Headers["Content-Type"] = "application/json"
	}
	if token := c.Session.Token(); token != "" {
		req.Headers["Authorization"] = "Bearer " + token
	}
	return req, nil
}

// call sends one request and decodes the JSON response into out (when not nil).
func (c *Client) call(ctx context.Context, method rest.Method, path string, query map[string]string, body, out interface{}) error {
	req, err := c.request(method, path, query, body)
	if err != nil {
		return err
	}
	res, err := c.rest.SendWithContext(ctx, req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return decodeError(res)
	}
	if out == nil || res.StatusCode == http.StatusNoContent || res.Body == "" {
		return nil
	}
	return errors.Wrapf(json.Unmarshal([]byte(res.Body), out), "decoding %s %s", method, path)
}

// query is a GET retried once on failure; 4xx responses are not retried.
func (c *Client) query(ctx context.Context, path string, params map[string]string, out interface{}) error {
	var lastErr error
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			lastErr = c.call(ctx, rest.Get, path, params, nil, out)
			return lastErr
		},
		IsFatalError: func(err error) bool {
			code := statusCode(err)
			return (code >= 400 && code < 500) || ctx.Err() != nil
		},
		Attempts: 2,
		Delay:    c.retryDelay,
		Clock:    c.clock,
		Stop:     ctx.Done(),
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

func decodeError(res *rest.Response) error {
	apiErr := &APIError{StatusCode: res.StatusCode}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(res.Body), &payload); err != nil {
		apiErr.Message = strings.TrimSpace(res.Body)
		return apiErr
	}
	if raw, ok := payload["error"]; ok {
		_ = json.Unmarshal(raw, &apiErr.Message)
		if raw, ok = payload["subscribe"]; ok {
			apiErr.Subscribe = new(SubscribePrompt)
			_ = json.Unmarshal(raw, apiErr.Subscribe)
		}
		return apiErr
	}
	apiErr.Fields = make(map[string]string, len(payload))
	for f, raw := range payload {
		var msg string
		if err := json.Unmarshal(raw, &msg); err == nil {
			apiErr.Fields[f] = msg
		}
	}
	return apiErr
}
