package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() Policy {
	p := DefaultPolicy()
	p.Delay = 5 * time.Millisecond
	p.Timeout = 200 * time.Millisecond
	return p
}

func TestDefaultPolicyMatchesRelayContract(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.Retries)
	assert.Equal(t, time.Second, p.Delay)
	assert.Equal(t, 10*time.Second, p.Timeout)
	assert.ElementsMatch(t, []int{408, 425, 429, 500, 502, 503, 504}, p.RetryStatus)
}

func TestDoRetriesTransientStatusUntilSuccess(t *testing.T) {
	var attempts []int
	err := Do(context.Background(), fastPolicy(), func(_ context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return &StatusError{StatusCode: http.StatusServiceUnavailable}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestDoStopsOnNonTransientStatus(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), func(context.Context, int) error {
		calls++
		return &StatusError{StatusCode: http.StatusNotFound}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
	assert.False(t, errors.Is(err, ErrExhausted))
}

func TestDoExhaustsAfterFourAttempts(t *testing.T) {
	calls := 0
	var retried []int
	p := fastPolicy()
	p.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), p, func(context.Context, int) error {
		calls++
		return &StatusError{StatusCode: http.StatusTooManyRequests}
	})

	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, retried)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
}

func TestDoTreatsAttemptTimeoutAsTransient(t *testing.T) {
	p := fastPolicy()
	p.Timeout = 10 * time.Millisecond

	calls := 0
	err := Do(context.Background(), p, func(ctx context.Context, attempt int) error {
		calls++
		if attempt == 1 {
			<-ctx.Done()
			return fmt.Errorf("fetch: %w", ctx.Err())
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoWaitsDelayBetweenAttempts(t *testing.T) {
	p := fastPolicy()
	p.Delay = 40 * time.Millisecond

	var stamps []time.Time
	_ = Do(context.Background(), p, func(context.Context, int) error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 3 {
			return &StatusError{StatusCode: http.StatusBadGateway}
		}
		return nil
	})

	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), p.Delay)
	}
}

func TestDoHonoursCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := fastPolicy()
	p.Delay = time.Hour

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, func(context.Context, int) error {
			return &StatusError{StatusCode: http.StatusServiceUnavailable}
		})
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestIsTransientIgnoresPlainErrors(t *testing.T) {
	p := DefaultPolicy()
	assert.False(t, p.IsTransient(nil))
	assert.False(t, p.IsTransient(errors.New("connection refused")))
	assert.True(t, p.IsTransient(context.DeadlineExceeded))
	assert.True(t, p.IsTransient(&StatusError{StatusCode: 425}))
	assert.False(t, p.IsTransient(&StatusError{StatusCode: 401}))
}
