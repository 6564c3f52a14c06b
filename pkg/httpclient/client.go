// Package httpclient is the outbound transport for payment gateways and
// couriers: every call gets a deadline and passes a circuit breaker, and
// only requests marked retryable are attempted a second time.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// Retryable marks reads and mutations protected by an idempotency key.
	Retryable bool
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// StatusError is returned for 5xx answers; 4xx answers are returned as a
// Response for the caller to interpret.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Status)
}

type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Response]
	timeout time.Duration
}

func New(name string, timeout time.Duration) *Client {
	return &Client{
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: timeout,
		breaker: gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	attempts := 1
	if req.Retryable {
		attempts = 2
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := c.breaker.Execute(func() (*Response, error) {
			return c.once(ctx, req)
		})
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
	}
	return nil, lastErr
}

func (c *Client) once(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}

	res, err := c.http.Do(hr)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode >= http.StatusInternalServerError {
		return nil, &StatusError{Status: res.StatusCode, Body: b}
	}
	return &Response{Status: res.StatusCode, Header: res.Header, Body: b}, nil
}
