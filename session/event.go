package session

import (
	"time"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/hook"
)

// EventType identifies a session lifecycle event.
type EventType string

const (
	EventRequestStart EventType = "request_start"
	EventRequestEnd   EventType = "request_end"
	EventRetry        EventType = "retry"
	EventToolUse      EventType = "tool_use"
	EventToolResult   EventType = "tool_result"
	EventHookDecision EventType = "hook_decision"
	EventMalformed    EventType = "malformed"
	EventInterrupted  EventType = "interrupted"
	EventError        EventType = "error"
)

// Event reports what a session is doing. In auto-execute mode tool calls and
// their results are only visible here, not through Receive.
type Event struct {
	Type       EventType
	SessionID  string
	Time       time.Time
	Attempt    int
	ToolUse    *ai.ToolUseBlock
	ToolResult *ai.ToolResultBlock
	Decision   *hook.Decision
	Raw        string // malformed line
	Err        error
}

func (s *Session) emit(e Event) {
	if s.events == nil {
		return
	}
	e.SessionID = s.id
	e.Time = time.Now()
	select {
	case s.events <- e:
	default:
	}
}
