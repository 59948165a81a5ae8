package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	// AttemptTimeout bounds each call to fn. Zero means no per-attempt timeout.
	AttemptTimeout time.Duration
}

// DefaultPolicy returns the defaults used for ledger submissions.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:       4,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    30 * time.Second,
	}
}

// ExhaustedError is returned once every attempt failed with a retryable error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation '%s' failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Func is one attempt. attempt starts at 1.
type Func[T any] func(ctx context.Context, attempt int) (T, error)

// Do runs fn until it succeeds, returns a non-retryable error, the context
// ends, or the policy is exhausted. A nil retryable treats every error as
// retryable.
func Do[T any](ctx context.Context, p Policy, log *slog.Logger, op string, retryable func(error) bool, fn Func[T]) (T, error) {
	var zero T
	var lastErr error
	attempts := max(p.MaxAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := runAttempt(ctx, p.AttemptTimeout, attempt, fn)
		if err == nil {
			return result, nil
		}
		if retryable != nil && !retryable(err) {
			return zero, err
		}

		lastErr = err
		if attempt < attempts {
			backoff := Backoff(attempt-1, p)
			if log != nil {
				log.WarnContext(ctx, "operation failed, retrying",
					slog.String("operation", op),
					slog.Int("attempt", attempt),
					slog.Int("max_attempts", attempts),
					slog.Duration("backoff", backoff),
					slog.String("error", err.Error()),
				)
			}
			if err := sleep(ctx, backoff); err != nil {
				return zero, err
			}
		}
	}

	return zero, &ExhaustedError{Op: op, Attempts: attempts, Err: lastErr}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, attempt int, fn Func[T]) (T, error) {
	if timeout <= 0 {
		return fn(ctx, attempt)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx, attempt)
}

// Backoff returns the exponential backoff for the given zero-based retry.
func Backoff(retry int, p Policy) time.Duration {
	multiplier := p.BackoffMultiplier
	if multiplier < 1 {
		multiplier = 1
	}
	backoff := time.Duration(float64(p.InitialBackoff) * math.Pow(multiplier, float64(retry)))
	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}
	return backoff
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
