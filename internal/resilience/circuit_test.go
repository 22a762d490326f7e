package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(cb *CircuitBreaker, err error) error {
	_, got := ExecuteVal(context.Background(), cb, func(_ context.Context) (struct{}, error) {
		return struct{}{}, err
	})
	return got
}

func failN(cb *CircuitBreaker, n int) {
	for range n {
		_ = call(cb, errors.New("places unavailable"))
	}
}

func fixedClock(cb *CircuitBreaker) *time.Time {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.nowFunc = func() time.Time { return now }
	return &now
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	failN(cb, 2)
	assert.Equal(t, CircuitClosed, cb.State())
	failN(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	_, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
		t.Error("should not be called when circuit is open")
		return 42, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	failN(cb, 2)
	require.NoError(t, call(cb, nil))
	failN(cb, 2)

	assert.Equal(t, CircuitClosed, cb.State())
	assert.Equal(t, 2, cb.failures)
}

func TestCircuitBreaker_HalfOpenTrialCloses(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	now := fixedClock(cb)

	failN(cb, 1)
	assert.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(31 * time.Second)
	assert.Equal(t, CircuitHalfOpen, cb.State())

	require.NoError(t, call(cb, nil))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 30 * time.Second})
	now := fixedClock(cb)

	failN(cb, 1)
	*now = now.Add(31 * time.Second)
	failN(cb, 1)

	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, call(cb, nil), ErrCircuitOpen)
}

func TestCircuitBreaker_SingleTrialInFlight(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	now := fixedClock(cb)
	failN(cb, 1)
	*now = now.Add(2 * time.Second)

	probing := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) {
			close(probing)
			<-release
			return 1, nil
		})
		done <- err
	}()

	<-probing
	assert.ErrorIs(t, call(cb, nil), ErrCircuitOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Second,
		OnStateChange: func(from, to CircuitState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	now := fixedClock(cb)

	failN(cb, 1)
	*now = now.Add(time.Second)
	require.NoError(t, call(cb, nil))

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	assert.Equal(t, 5, cb.cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cb.cfg.ResetTimeout)
}

func TestCircuitBreaker_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 100, ResetTimeout: time.Minute})

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = errors.New("fail")
			}
			_ = call(cb, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestServiceBreakers_CallAndHealth(t *testing.T) {
	sb := NewServiceBreakers(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})

	assert.Same(t, sb.Get("places"), sb.Get("places"))
	assert.NotSame(t, sb.Get("places"), sb.Get("geocode"))

	_, err := Call(context.Background(), sb, "places", func(_ context.Context) (string, error) {
		return "", errors.New("quota exceeded")
	})
	require.Error(t, err)

	got, err := Call(context.Background(), sb, "geocode", func(_ context.Context) (string, error) {
		return "30.27,-97.74", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "30.27,-97.74", got)

	services, degraded := sb.Health()
	assert.True(t, degraded)
	assert.Equal(t, []ServiceHealth{
		{Service: "geocode", State: "closed"},
		{Service: "places", State: "open"},
	}, services)
}

func TestServiceBreakers_HealthEmpty(t *testing.T) {
	services, degraded := NewServiceBreakers(DefaultCircuitBreakerConfig()).Health()
	assert.Empty(t, services)
	assert.False(t, degraded)
}

func TestCircuitState_String(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
	assert.Equal(t, "unknown", CircuitState(99).String())
}
