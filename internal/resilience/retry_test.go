package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_SuccessAfterTransientRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		if calls.Add(1) < 3 {
			return NewTransientError(errors.New("503"), 503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	err := Do(context.Background(), fastConfig(), func(_ context.Context) error {
		calls.Add(1)
		return errors.New("bad request")
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialBackoff = time.Minute
	cfg.MaxBackoff = time.Minute

	var calls atomic.Int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, cfg, func(_ context.Context) error {
		calls.Add(1)
		return NewTransientError(errors.New("timeout"), 504)
	})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoVal_AlwaysRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.ShouldRetry = Always

	var retries []int
	cfg.OnRetry = func(attempt int, _ error) { retries = append(retries, attempt) }

	var calls int
	val, err := DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("malformed payload")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoVal_ExhaustsAttempts(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.ShouldRetry = Always

	var calls int
	val, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		return 42, errors.New("still failing")
	})
	require.Error(t, err)
	assert.Equal(t, 0, val)
	assert.Equal(t, 3, calls)
}

func TestExtractionRetryConfig_Schedule(t *testing.T) {
	t.Parallel()

	cfg := applyDefaults(ExtractionRetryConfig())
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, computeBackoff(0, cfg))
	assert.Equal(t, 4*time.Second, computeBackoff(1, cfg))
	assert.True(t, cfg.ShouldRetry(errors.New("anything")))
}

func TestFromExtractionConfig_Overrides(t *testing.T) {
	t.Parallel()

	cfg := FromExtractionConfig(2, 10, 3)
	assert.Equal(t, 2, cfg.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.InitialBackoff)
	assert.InDelta(t, 3.0, cfg.Multiplier, 1e-9)

	capped := FromExtractionConfig(5, 0, 0)
	assert.Equal(t, MaxExtractionAttempts, capped.MaxAttempts)

	def := FromExtractionConfig(0, 0, 0)
	assert.Equal(t, 2*time.Second, def.InitialBackoff)
}

func TestComputeBackoff_CapsAtMax(t *testing.T) {
	t.Parallel()

	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     10.0,
	})
	assert.Equal(t, 5*time.Second, computeBackoff(5, cfg))
}

func TestComputeBackoff_WithJitter(t *testing.T) {
	t.Parallel()

	cfg := applyDefaults(RetryConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	})

	seen := make(map[time.Duration]bool)
	for range 100 {
		d := computeBackoff(0, cfg)
		seen[d] = true
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
	assert.Greater(t, len(seen), 1)
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()
	logger := RetryLogger("anthropic", "analyze_locations")
	assert.NotPanics(t, func() { logger(1, errors.New("test error")) })
}
