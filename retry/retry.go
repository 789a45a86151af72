package retry

import (
	"context"
	"time"

	ai "github.com/spetersoncode/openagent"
)

// effectiveDelay returns the delay to use, honoring the server's Retry-After if larger.
func effectiveDelay(configured time.Duration, err error) time.Duration {
	if server := ai.RetryAfterOf(err); server > configured {
		return server
	}
	return configured
}

// Do executes fn with retry logic. It stops on success, on an error the
// config does not consider retryable, or once MaxAttempts is reached, in
// which case the most recent error is returned. Backoff sleeps end early
// when ctx is done.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	return DoWithEvents(ctx, cfg, nil, fn)
}

// DoWithEvents is like Do but reports progress to observe.
// Pass nil to disable event emission (equivalent to Do).
func DoWithEvents[T any](ctx context.Context, cfg Config, observe Observer, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	maxAttempts := cfg.attempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := effectiveDelay(cfg.Delay(attempt), lastErr)
			observe.emit(Event{
				Type:        EventRetrying,
				Attempt:     attempt - 1,
				MaxAttempts: maxAttempts,
				Delay:       delay,
			})
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}

		if err := ctx.Err(); err != nil {
			return zero, err
		}

		observe.emit(Event{Type: EventAttemptStart, Attempt: attempt, MaxAttempts: maxAttempts})

		result, err := fn(ctx)
		if err == nil {
			observe.emit(Event{Type: EventSuccess, Attempt: attempt, MaxAttempts: maxAttempts})
			return result, nil
		}

		lastErr = err
		retryable := cfg.retryable(err)
		observe.emit(Event{
			Type:        EventAttemptFailed,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Error:       err,
			Retryable:   retryable,
		})

		if !retryable {
			return zero, err
		}
	}

	observe.emit(Event{
		Type:        EventExhausted,
		Attempt:     maxAttempts,
		MaxAttempts: maxAttempts,
		Error:       lastErr,
	})
	return zero, lastErr
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
