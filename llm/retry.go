package llm

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Retrier handles retry logic for LLM operations
type Retrier struct {
	config RetryConfig
	// sleep is swapped in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a new retrier with the given configuration
func NewRetrier(config RetryConfig) *Retrier {
	return &Retrier{config: config, sleep: sleepContext}
}

// RetryOperation represents an operation that can be retried
type RetryOperation[T any] func(ctx context.Context, attempt int) (T, error)

// Execute runs operation until it succeeds, fails with a non-retryable error,
// or the retry budget is spent.
func Execute[T any](r *Retrier, ctx context.Context, operation RetryOperation[T]) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := operation(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return zero, err
		}
		if attempt >= r.config.MaxRetries {
			break
		}

		if err := r.sleep(ctx, r.delay(attempt, err)); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("operation failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

// delay computes the wait before the next attempt
func (r *Retrier) delay(attempt int, err error) time.Duration {
	if llmErr, ok := AsLLMError(err); ok && llmErr.RetryAfter > 0 {
		return time.Duration(llmErr.RetryAfter) * time.Second
	}

	base := float64(r.config.InitialDelay)
	d := base * math.Pow(r.config.BackoffFactor, float64(attempt))

	// +/-25% jitter
	d += 0.25 * d * (rand.Float64()*2 - 1)

	if d > float64(r.config.MaxDelay) {
		d = float64(r.config.MaxDelay)
	}
	if d < base {
		d = base
	}
	return time.Duration(d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
