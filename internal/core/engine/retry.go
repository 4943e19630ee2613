package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/floorlens/floorlens/internal/core"
)

// RetryOptions configures capped exponential backoff for a fallible
// operation.
type RetryOptions struct {
	// MaxRetries is the number of re-attempts after the first failure.
	MaxRetries int
	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the backoff regardless of how many attempts elapsed.
	MaxDelay time.Duration
	// BackoffMultiplier scales the delay after each retry.
	BackoffMultiplier float64
	// ShouldRetry classifies an error as retryable. Nil means
	// DefaultShouldRetry.
	ShouldRetry func(error) bool
}

// DefaultRetryOptions mirror the defaults used by the acquisition engine.
var DefaultRetryOptions = RetryOptions{
	MaxRetries:        3,
	InitialDelay:      time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2,
}

// DefaultShouldRetry treats rate-limit responses and transient network
// failures as retryable. Everything else aborts the operation immediately;
// retryability is classified, never blanket.
func DefaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// Retry runs op, re-attempting retryable failures with capped exponential
// backoff. A non-retryable error propagates unchanged after a single
// attempt. After MaxRetries re-attempts the last error propagates. The
// backoff sleep honors ctx cancellation.
func Retry[T any](ctx context.Context, opts RetryOptions, op func(context.Context) (T, error)) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	shouldRetry := opts.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = DefaultShouldRetry
	}
	delay := opts.InitialDelay
	if delay <= 0 {
		delay = DefaultRetryOptions.InitialDelay
	}
	multiplier := opts.BackoffMultiplier
	if multiplier < 1 {
		multiplier = DefaultRetryOptions.BackoffMultiplier
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultRetryOptions.MaxDelay
	}

	var zero T
	for attempt := 0; ; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		if attempt >= opts.MaxRetries {
			return zero, err
		}
		if !shouldRetry(err) {
			return zero, err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * multiplier)
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
