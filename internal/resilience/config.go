package resilience

import (
	"time"
)

// MaxExtractionAttempts caps the AI extraction retry policy.
const MaxExtractionAttempts = 3

// FromExtractionConfig builds the AI extraction retry policy from config
// values. Zero values keep the ExtractionRetryConfig defaults and
// maxAttempts is clamped to MaxExtractionAttempts.
func FromExtractionConfig(maxAttempts, initialBackoffMs int, multiplier float64) RetryConfig {
	cfg := ExtractionRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = min(maxAttempts, MaxExtractionAttempts)
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
