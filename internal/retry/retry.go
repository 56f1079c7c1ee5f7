// Package retry runs upstream HTTP calls under a fixed-delay retry policy.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"time"
)

// ErrExhausted is returned when every allowed attempt failed with a transient error.
var ErrExhausted = errors.New("retry attempts exhausted")

// TransientStatusCodes are upstream statuses worth another attempt.
var TransientStatusCodes = []int{
	http.StatusRequestTimeout,
	http.StatusTooEarly,
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Target     string
}

func (e *StatusError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("%s returned HTTP %d", e.Target, e.StatusCode)
}

// StatusCode extracts the upstream status from err, or 0 if there is none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Policy configures retry behavior.
type Policy struct {
	// Retries is the number of attempts allowed after the first one.
	Retries int
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// Timeout bounds each attempt. Zero means no per-attempt bound.
	Timeout time.Duration
	// RetryStatus lists upstream statuses treated as transient.
	RetryStatus []int
	// OnRetry, if set, is called before each wait with the failed attempt number.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy returns 3 retries, 1s apart, with a 10s per-attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		Retries:     3,
		Delay:       time.Second,
		Timeout:     10 * time.Second,
		RetryStatus: TransientStatusCodes,
	}
}

// IsTransient reports whether err is a timeout or a retryable upstream status.
func (p Policy) IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if code := StatusCode(err); code != 0 {
		return slices.Contains(p.RetryStatus, code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Do calls fn until it succeeds, fails with a non-transient error, or runs
// out of retries. Each attempt receives its own context bounded by Timeout;
// fn must finish reading any response body before returning.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	if p.Retries < 0 {
		p.Retries = 0
	}

	var lastErr error
	for attempt := 1; attempt <= p.Retries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		err := p.attempt(ctx, attempt, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		// The caller's own deadline is not an upstream timeout.
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled: %w: %w", ctx.Err(), err)
		}
		if !p.IsTransient(err) {
			return err
		}
		if attempt > p.Retries {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(p.Delay):
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, p.Retries+1, lastErr)
}

func (p Policy) attempt(ctx context.Context, attempt int, fn func(ctx context.Context, attempt int) error) error {
	if p.Timeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return fn(attemptCtx, attempt)
}
