package mux

import (
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Option configures a Multiplexer.
type Option func(*options)

type options struct {
	concurrency int
	limiter     *semaphore.Weighted
	logger      zerolog.Logger
	failFast    bool
}

// WithConcurrency sets how many transport requests may be in flight at once.
// Values below 1 are ignored.
func WithConcurrency(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithLimiter shares an existing semaphore instead of creating one.
func WithLimiter(sem *semaphore.Weighted) Option {
	return func(o *options) {
		o.limiter = sem
	}
}

// WithLogger sets the logger for job lifecycle events.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithFailFast cancels the remaining jobs after the first failure.
func WithFailFast(enabled bool) Option {
	return func(o *options) {
		o.failFast = enabled
	}
}
