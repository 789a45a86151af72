package retry

import "time"

// EventType identifies the kind of event occurring during retry execution.
type EventType string

const (
	// EventAttemptStart fires before each attempt.
	EventAttemptStart EventType = "attempt_start"

	// EventAttemptFailed fires after a failed attempt.
	EventAttemptFailed EventType = "attempt_failed"

	// EventRetrying fires before sleeping between attempts.
	EventRetrying EventType = "retrying"

	// EventSuccess fires when an attempt succeeds.
	EventSuccess EventType = "success"

	// EventExhausted fires when all retry attempts are exhausted.
	EventExhausted EventType = "exhausted"
)

// Event represents an observable occurrence during retry execution.
type Event struct {
	Type EventType

	// Attempt is the current attempt number (1-indexed).
	Attempt int

	MaxAttempts int

	// Error contains the error from a failed attempt.
	Error error

	// Delay is the duration before the next attempt (for EventRetrying).
	Delay time.Duration

	// Retryable indicates whether the error was classified as retryable.
	Retryable bool

	Timestamp time.Time
}

// Observer receives retry events synchronously.
type Observer func(Event)

// Chan adapts a channel into an Observer. Sends never block; events are
// dropped when the channel is full. A nil channel yields a nil Observer.
func Chan(ch chan<- Event) Observer {
	if ch == nil {
		return nil
	}
	return func(e Event) {
		select {
		case ch <- e:
		default:
		}
	}
}

func (o Observer) emit(e Event) {
	if o == nil {
		return
	}
	e.Timestamp = time.Now()
	o(e)
}
