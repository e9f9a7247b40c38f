package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// APIError is returned for non-2xx responses from the GitHub API.
type APIError struct {
	StatusCode int
	Body       string
	// RetryAfter is parsed from the Retry-After header when present.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// RetryOptions configures retry behavior.
type RetryOptions struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryOptions retries three times starting at one second.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// WithRetry runs op with exponential backoff while it fails with a
// transient error. A server-provided Retry-After overrides the backoff.
// Use it for reads and idempotent writes.
func WithRetry[T any](ctx context.Context, op func() (T, error), opts RetryOptions) (T, error) {
	return retry(ctx, op, opts, isRetryable)
}

// WithWriteRetry is WithRetry for writes that must not be applied twice,
// such as creating a comment. It only retries failures where GitHub
// cannot have stored the write: rate limiting and failed dials. A 5xx
// may arrive after the write succeeded, so it is returned as is.
func WithWriteRetry[T any](ctx context.Context, op func() (T, error), opts RetryOptions) (T, error) {
	return retry(ctx, op, opts, isRetryableWrite)
}

func retry[T any](ctx context.Context, op func() (T, error), opts RetryOptions, retryable func(error) bool) (T, error) {
	var result T
	var err error

	for attempt := 0; ; attempt++ {
		result, err = op()
		if err == nil || !retryable(err) || attempt >= opts.MaxRetries {
			return result, err
		}

		delay := opts.BaseDelay << uint(attempt)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			delay = apiErr.RetryAfter
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// WithRetryVoid is WithRetry for operations without a result.
func WithRetryVoid(ctx context.Context, op func() error, opts RetryOptions) error {
	_, err := WithRetry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, opts)
	return err
}

// isRetryable reports whether err is transient: rate limiting, 5xx
// gateway errors, or a network-level failure.
func isRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isRetryableWrite(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// parseRetryAfter understands the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
