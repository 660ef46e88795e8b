// Package transport sends JSON requests to provider HTTP APIs.
//
// It owns everything the rest of the module treats as black-box reliability:
// retries with exponential backoff, response size limits, and capture of
// rate-limit headers for SDK-backed adapters.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	// DefaultMaxRetries is the default maximum number of retries
	DefaultMaxRetries = 2
	// DefaultInitialInterval is the default initial delay for exponential backoff
	DefaultInitialInterval = 500 * time.Millisecond
	// DefaultMaxInterval is the default maximum interval for backoff
	DefaultMaxInterval = 10 * time.Second
	// DefaultMaxElapsedTime is the default maximum elapsed time for backoff
	DefaultMaxElapsedTime = time.Minute
	// DefaultTimeout bounds a single HTTP attempt
	DefaultTimeout = 2 * time.Minute

	maxResponseBytes = 8 << 20
)

// Request is a single provider call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	// Body is JSON encoded unless it is already a []byte.
	Body any
}

// Response is a fully read provider response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RetryPolicy decides how failed attempts are retried.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	// Retryable reports whether an attempt should be retried. err is set for
	// transport failures, status for completed responses.
	Retryable func(status int, err error) bool
}

// DefaultRetryPolicy retries network failures and transient 5xx responses.
// Rate limits are never retried here; they are surfaced to the caller.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      DefaultMaxRetries,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		MaxElapsedTime:  DefaultMaxElapsedTime,
		Retryable:       DefaultRetryable,
	}
}

// NoRetry performs exactly one attempt.
func NoRetry() RetryPolicy {
	return RetryPolicy{Retryable: func(int, error) bool { return false }}
}

// DefaultRetryable is the predicate of DefaultRetryPolicy.
func DefaultRetryable(status int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	switch status {
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = p.MaxElapsedTime
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)
}

// Client sends requests with a retry policy.
type Client struct {
	httpClient *http.Client
	policy     RetryPolicy
	logger     zerolog.Logger
}

// New creates a Client. A nil httpClient uses NewHTTPClient(DefaultTimeout).
func New(logger zerolog.Logger, policy RetryPolicy, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultTimeout)
	}
	if policy.Retryable == nil {
		policy.Retryable = DefaultRetryable
	}
	return &Client{
		httpClient: httpClient,
		policy:     policy,
		logger:     logger.With().Str("component", "transport").Logger(),
	}
}

// HTTPClient returns the underlying HTTP client, for SDKs that take one.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

type retryableStatus struct {
	status int
}

func (e *retryableStatus) Error() string {
	return fmt.Sprintf("retryable status %d", e.status)
}

// Send performs the request. A non-2xx response is not an error: the
// caller inspects StatusCode and classifies the payload. Only transport
// failures (after retries) are returned as errors.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	var body []byte
	switch b := req.Body.(type) {
	case nil:
	case []byte:
		body = b
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = encoded
	}

	var last *Response
	attempt := 0
	op := func() error {
		attempt++
		resp, err := c.do(ctx, req, body)
		if err != nil {
			if ctx.Err() != nil || !c.policy.Retryable(0, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		last = resp
		if c.policy.Retryable(resp.StatusCode, nil) {
			return &retryableStatus{status: resp.StatusCode}
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn().
			Err(err).
			Str("url", req.URL).
			Int("attempt", attempt).
			Dur("next_delay", next).
			Msg("Provider request failed, retrying after delay")
	}

	err := backoff.RetryNotify(op, c.policy.backOff(ctx), notify)
	var rs *retryableStatus
	if err != nil && !errors.As(err, &rs) {
		return nil, err
	}
	if last == nil {
		return nil, fmt.Errorf("no response received")
	}
	return last, nil
}

func (c *Client) do(ctx context.Context, req Request, body []byte) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("url", req.URL).Int("body_bytes", len(body)).Msg("Sending provider request")
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close() //nolint:errcheck // body fully read below

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	c.logger.Debug().Int("status", httpResp.StatusCode).Int("body_bytes", len(data)).Msg("Received provider response")

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}
