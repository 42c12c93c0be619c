package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}

// FromLimitConfig converts a source's config section to a LimiterConfig.
// Zero values keep the defaults.
func FromLimitConfig(minIntervalMs, windowCalls, windowSecs, maxRetries, degradeAfter int) LimiterConfig {
	cfg := DefaultLimiterConfig()
	if minIntervalMs > 0 {
		cfg.MinInterval = time.Duration(minIntervalMs) * time.Millisecond
	}
	if windowCalls > 0 {
		cfg.WindowCalls = windowCalls
	}
	if windowSecs > 0 {
		cfg.Window = time.Duration(windowSecs) * time.Second
	}
	if maxRetries > 0 {
		cfg.Retry.MaxAttempts = maxRetries + 1
	}
	if degradeAfter > 0 {
		cfg.DegradeAfter = degradeAfter
	}
	return cfg
}
