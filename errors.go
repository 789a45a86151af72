package openagent

import (
	"errors"
	"fmt"
	"time"
)

// ErrInterrupted is returned by a receive call that observed a cancelled exchange.
var ErrInterrupted = errors.New("openagent: interrupted")

// ErrorCategory classifies errors by how they should be handled.
type ErrorCategory string

const (
	// ErrorTransient indicates the error is temporary and the operation can be retried.
	// Examples: rate limits, dropped connections, server overload.
	ErrorTransient ErrorCategory = "transient"

	// ErrorPermanent indicates the error is not recoverable through retry.
	// Examples: invalid API key, unknown model, malformed stream.
	ErrorPermanent ErrorCategory = "permanent"

	// ErrorUserInput indicates the caller provided invalid input that must be corrected.
	// Examples: malformed request, invalid parameters, misuse of a session.
	ErrorUserInput ErrorCategory = "user_input"
)

// CategorizedError is an error that provides information about how it should be handled.
type CategorizedError interface {
	error
	Category() ErrorCategory
	Retryable() bool           // convenience: returns true if Category == ErrorTransient
	StatusCode() int           // HTTP status code if applicable, 0 otherwise
	RetryAfter() time.Duration // suggested retry delay from server, 0 if not available
}

// IsTransient returns true if the error is categorized as transient.
// It checks if the error or any wrapped error implements CategorizedError.
func IsTransient(err error) bool {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category() == ErrorTransient
	}
	return false
}

// RetryAfterOf returns the retry delay from a categorized error, or 0.
func RetryAfterOf(err error) time.Duration {
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.RetryAfter()
	}
	return 0
}

// TransportError reports a failure to open or read the event stream.
// Connection failures, timeouts, 429 and 5xx responses are transient.
type TransportError struct {
	Op    string // "open", "read", or "stream"
	Code  int    // HTTP status code, 0 if none was received
	Delay time.Duration
	// Fatal marks a transport that cannot be reused, for example after an
	// authentication failure. A session that sees it stays failed.
	Fatal bool
	Err   error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("transport %s failed (status %d): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Category classifies the failure using the HTTP status when one is known.
func (e *TransportError) Category() ErrorCategory {
	switch {
	case e.Fatal:
		return ErrorPermanent
	case e.Code == 0, e.Code == 408, e.Code == 429, e.Code >= 500:
		return ErrorTransient
	case e.Code == 400 || e.Code == 404 || e.Code == 422:
		return ErrorUserInput
	default:
		return ErrorPermanent
	}
}

func (e *TransportError) Retryable() bool { return e.Category() == ErrorTransient }
func (e *TransportError) StatusCode() int { return e.Code }
func (e *TransportError) RetryAfter() time.Duration { return e.Delay }

// ProtocolDecodeError reports malformed stream framing or a tool call whose
// accumulated arguments are not valid JSON. It ends the current turn only.
type ProtocolDecodeError struct {
	Msg   string
	Index int    // tool call index, -1 when not tied to a tool call
	Tool  string // tool name when known
	Raw   string // offending payload or argument buffer
	Err   error
}

func (e *ProtocolDecodeError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("protocol decode: %s (tool call %d %q): %v", e.Msg, e.Index, e.Tool, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("protocol decode: %s: %v", e.Msg, e.Err)
	}
	return "protocol decode: " + e.Msg
}

func (e *ProtocolDecodeError) Unwrap() error { return e.Err }

// Category implements CategorizedError.
func (e *ProtocolDecodeError) Category() ErrorCategory { return ErrorPermanent }
func (e *ProtocolDecodeError) Retryable() bool { return false }
func (e *ProtocolDecodeError) StatusCode() int { return 0 }
func (e *ProtocolDecodeError) RetryAfter() time.Duration { return 0 }

// UnknownToolError is returned when the model invokes a tool that is not registered.
type UnknownToolError struct {
	Name      string
	ToolUseID string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q (call %s)", e.Name, e.ToolUseID)
}

// Category implements CategorizedError.
func (e *UnknownToolError) Category() ErrorCategory { return ErrorPermanent }
func (e *UnknownToolError) Retryable() bool { return false }
func (e *UnknownToolError) StatusCode() int { return 0 }
func (e *UnknownToolError) RetryAfter() time.Duration { return 0 }

// ToolExecutionError wraps a failure raised by a tool handler. Sessions never
// return it directly; it is converted into an error result for the model.
type ToolExecutionError struct {
	Name      string
	ToolUseID string
	Err       error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Name, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

// PolicyBlockedError is returned when a prompt hook blocks a send.
type PolicyBlockedError struct {
	Event  string
	Reason string
}

func (e *PolicyBlockedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("blocked by %s hook", e.Event)
	}
	return fmt.Sprintf("blocked by %s hook: %s", e.Event, e.Reason)
}

// Category implements CategorizedError.
func (e *PolicyBlockedError) Category() ErrorCategory { return ErrorUserInput }
func (e *PolicyBlockedError) Retryable() bool { return false }
func (e *PolicyBlockedError) StatusCode() int { return 0 }
func (e *PolicyBlockedError) RetryAfter() time.Duration { return 0 }

// ToolIterationLimitError is returned when automatic tool execution reaches its
// round limit without a final text response.
type ToolIterationLimitError struct {
	Limit int
}

func (e *ToolIterationLimitError) Error() string {
	return fmt.Sprintf("tool iteration limit exceeded (%d rounds)", e.Limit)
}

// Category implements CategorizedError.
func (e *ToolIterationLimitError) Category() ErrorCategory { return ErrorPermanent }
func (e *ToolIterationLimitError) Retryable() bool { return false }
func (e *ToolIterationLimitError) StatusCode() int { return 0 }
func (e *ToolIterationLimitError) RetryAfter() time.Duration { return 0 }

// InvalidStateError reports an operation that is not allowed in the current
// session state, such as sending while a previous response is undrained.
type InvalidStateError struct {
	Op    string
	State string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s while %s", e.Op, e.State)
}

// Category implements CategorizedError.
func (e *InvalidStateError) Category() ErrorCategory { return ErrorUserInput }
func (e *InvalidStateError) Retryable() bool { return false }
func (e *InvalidStateError) StatusCode() int { return 0 }
func (e *InvalidStateError) RetryAfter() time.Duration { return 0 }

// ImageError represents an invalid image reference.
type ImageError struct {
	URL string
	Err error
}

// Error returns a formatted error message describing the image failure.
func (e *ImageError) Error() string {
	return fmt.Sprintf("invalid image %s: %v", truncate(e.URL, 64), e.Err)
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *ImageError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
