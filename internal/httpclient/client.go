package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/commercekit/circuitguard/internal/circuitbreaker"
)

const defaultTimeout = 10 * time.Second

// Classifier decides whether a completed call counts as a failure for the
// breaker. A non-nil return is recorded as a failure and becomes the
// caller-visible error.
type Classifier func(resp *resty.Response, err error) error

// UpstreamStatusError reports a response the classifier counted as a failure.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Client is an outbound HTTP client for one downstream service. Every
// request runs through the service's circuit breaker; rejected calls fail
// with the breaker's error without a request ever leaving the process.
type Client struct {
	rest     *resty.Client
	breaker  *circuitbreaker.CircuitBreaker
	classify Classifier
}

type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.rest.SetTimeout(d)
		}
	}
}

// WithClassifier replaces the default failure classification.
func WithClassifier(classify Classifier) Option {
	return func(c *Client) {
		if classify != nil {
			c.classify = classify
		}
	}
}

// WithTransport swaps the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.rest.SetTransport(rt)
	}
}

// New creates a client for the service at baseURL, guarded by the given
// breaker. The breaker is owned by this client; one breaker per dependency.
func New(baseURL string, breaker *circuitbreaker.CircuitBreaker, opts ...Option) *Client {
	c := &Client{
		rest:     resty.New().SetBaseURL(baseURL).SetTimeout(defaultTimeout),
		breaker:  breaker,
		classify: DefaultClassifier,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// DefaultClassifier treats transport errors and 5xx responses as failures.
// 4xx responses are the caller's problem, not evidence the dependency is down.
func DefaultClassifier(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return &UpstreamStatusError{StatusCode: resp.StatusCode()}
	}
	return nil
}

// Breaker returns the circuit breaker guarding this client.
func (c *Client) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// Get issues a GET through the breaker.
func (c *Client) Get(ctx context.Context, path string) (*resty.Response, error) {
	return c.execute(func() (*resty.Response, error) {
		return c.rest.R().SetContext(ctx).Get(path)
	})
}

// Post issues a POST with the given body through the breaker.
func (c *Client) Post(ctx context.Context, path string, body any) (*resty.Response, error) {
	return c.execute(func() (*resty.Response, error) {
		return c.rest.R().SetContext(ctx).SetBody(body).Post(path)
	})
}

// Request returns a prepared request for cases the Get/Post helpers don't
// cover. Pass it to Execute so the call still runs through the breaker.
func (c *Client) Request(ctx context.Context) *resty.Request {
	return c.rest.R().SetContext(ctx)
}

// Execute runs a prepared request through the breaker.
func (c *Client) Execute(req *resty.Request, method, path string) (*resty.Response, error) {
	return c.execute(func() (*resty.Response, error) {
		return req.Execute(method, path)
	})
}

func (c *Client) execute(call func() (*resty.Response, error)) (*resty.Response, error) {
	var resp *resty.Response

	err := c.breaker.Execute(func() error {
		var callErr error
		resp, callErr = call()
		return c.classify(resp, callErr)
	})
	if err != nil {
		// resp still carries the upstream's answer on classified
		// failures so callers can inspect it.
		return resp, err
	}

	return resp, nil
}
