// Package httpclient provides the retrying HTTP client shared by the
// REST and SOAP tools. Transient upstream statuses back off
// exponentially, honoring Retry-After when the backend supplies one.
package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

type Client struct {
	inner      *http.Client
	maxRetries int
	baseDelay  time.Duration
}

type Option func(*Client)

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.inner.Timeout = timeout
	}
}

func WithMaxRetries(maxRetries int) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
	}
}

func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		inner:      &http.Client{Timeout: 30 * time.Second},
		maxRetries: 2,
		baseDelay:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryable statuses indicate a transient upstream condition. Other
// 4xx/5xx answers carry meaning for the caller and pass through.
func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusServiceUnavailable,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Do executes the request, retrying transient statuses up to the
// configured limit. Transport errors are not retried; the request
// context governs cancellation and deadlines throughout.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to rewind request body: %w", err)
			}
			req.Body = body
		}

		resp, err := c.inner.Do(req)
		if err != nil {
			return nil, err
		}
		if !retryable(resp.StatusCode) || attempt >= c.maxRetries {
			return resp, nil
		}

		delay := c.delayFor(resp, attempt)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}
}

// delayFor honors Retry-After in both its forms and falls back to
// exponential backoff from the base delay.
func (c *Client) delayFor(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(header); err == nil {
			if until := time.Until(at); until > 0 {
				return until
			}
		}
	}
	return c.baseDelay * time.Duration(1<<attempt)
}
