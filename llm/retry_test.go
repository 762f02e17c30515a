package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRetrier(cfg RetryConfig) (*Retrier, *[]time.Duration) {
	var slept []time.Duration
	r := NewRetrier(cfg)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return r, &slept
}

func TestExecute_SucceedsAfterRetryableErrors(t *testing.T) {
	r, slept := newTestRetrier(RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2})

	calls := 0
	got, err := Execute(r, context.Background(), func(ctx context.Context, attempt int) (string, error) {
		calls++
		if attempt < 2 {
			return "", NewLLMError(ProviderGroq, ErrorTypeServerError, "boom")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Len(t, *slept, 2)
}

func TestExecute_StopsOnNonRetryable(t *testing.T) {
	r, slept := newTestRetrier(RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2})

	calls := 0
	_, err := Execute(r, context.Background(), func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, NewLLMError(ProviderGroq, ErrorTypeAuthentication, "bad key")
	})

	require.Error(t, err)
	assert.True(t, IsAuthenticationError(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestExecute_ExhaustsBudget(t *testing.T) {
	r, _ := newTestRetrier(RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2})

	calls := 0
	_, err := Execute(r, context.Background(), func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, NewLLMError(ProviderOpenAI, ErrorTypeRateLimit, "slow down")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.True(t, IsRateLimitError(err))
}

func TestExecute_ContextCancelled(t *testing.T) {
	r, _ := newTestRetrier(DefaultRetryConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(r, ctx, func(ctx context.Context, attempt int) (int, error) {
		t.Fatal("operation must not run")
		return 0, nil
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDelay_HonorsRetryAfterAndBounds(t *testing.T) {
	r := NewRetrier(RetryConfig{MaxRetries: 5, InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2})

	rl := NewLLMError(ProviderOpenAI, ErrorTypeRateLimit, "slow down")
	rl.RetryAfter = 7
	assert.Equal(t, 7*time.Second, r.delay(0, rl))

	plain := NewLLMError(ProviderOpenAI, ErrorTypeServerError, "boom")
	for attempt := 0; attempt < 6; attempt++ {
		d := r.delay(attempt, plain)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
}
