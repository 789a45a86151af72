// Package retry provides retry logic with exponential backoff for transient errors.
//
// The driver performs no deduplication of side effects. Wrapping an operation
// with externally visible effects, such as a tool call, is only safe when the
// operation is idempotent; that is the caller's responsibility.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config holds retry configuration parameters.
type Config struct {
	// MaxAttempts is the maximum number of attempts (default: 3).
	// The initial request counts as attempt 1.
	MaxAttempts int

	// InitialDelay is the delay before attempt 2 (default: 1s).
	InitialDelay time.Duration

	// MaxDelay caps the exponential part of the delay (default: 60s).
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier (default: 2.0).
	Multiplier float64

	// Jitter bounds the random extra delay as a fraction of the computed
	// delay (default: 0.1). A uniform value in [0, delay*Jitter) is added.
	Jitter float64

	// Retryable classifies errors. Nil means IsTransient.
	Retryable func(error) bool
}

// DefaultConfig returns the default retry configuration.
// - 3 max attempts
// - 1 second initial delay
// - 60 second max delay
// - 2x exponential multiplier
// - 10% jitter
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Disabled returns a configuration that disables retries (single attempt).
func Disabled() Config {
	return Config{MaxAttempts: 1}
}

// Delay calculates the wait before attempt n (1-indexed). Attempt 1 has no
// delay. For n > 1 the base is InitialDelay * Multiplier^(n-2), capped at
// MaxDelay, plus uniform jitter up to base*Jitter.
func (c Config) Delay(n int) time.Duration {
	if n <= 1 {
		return 0
	}

	multiplier := c.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := float64(c.InitialDelay) * math.Pow(multiplier, float64(n-2))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.Jitter > 0 {
		delay += rand.Float64() * delay * math.Min(c.Jitter, 1)
	}

	return time.Duration(delay)
}

func (c Config) attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

func (c Config) retryable(err error) bool {
	if c.Retryable != nil {
		return c.Retryable(err)
	}
	return IsTransient(err)
}
