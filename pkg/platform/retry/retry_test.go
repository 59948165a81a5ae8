package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffMultiplier: 2}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), fastPolicy(3), nil, "op", nil, func(_ context.Context, attempt int) (int, error) {
		calls++
		if attempt < 3 {
			return 0, errFlaky
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustionSurfacesOneError(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastPolicy(3), nil, "submit", nil, func(context.Context, int) (struct{}, error) {
		calls++
		return struct{}{}, errFlaky
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, errFlaky)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("rejected")
	calls := 0
	_, err := Do(context.Background(), fastPolicy(5), nil, "op",
		func(err error) bool { return errors.Is(err, errFlaky) },
		func(context.Context, int) (int, error) {
			calls++
			return 0, fatal
		})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)

	var exhausted *ExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestDo_AttemptTimeout(t *testing.T) {
	p := fastPolicy(2)
	p.AttemptTimeout = 5 * time.Millisecond
	_, err := Do(context.Background(), p, nil, "slow", nil, func(ctx context.Context, _ int) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Do(ctx, fastPolicy(3), nil, "op", nil, func(context.Context, int) (int, error) {
		t.Fatal("fn must not run")
		return 0, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	p := Policy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}
	assert.Equal(t, 100*time.Millisecond, Backoff(0, p))
	assert.Equal(t, 400*time.Millisecond, Backoff(2, p))
	assert.Equal(t, time.Second, Backoff(10, p))
}
