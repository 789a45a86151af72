package hook

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ApprovalDecision is a human's verdict on one tool call.
type ApprovalDecision struct {
	ToolUseID string
	Approved  bool
	Reason    string // rejection reason, empty if approved
}

// ApprovalBroker turns out-of-band approvals into a PreToolUse handler. The
// handler blocks the session until Decide is called for the tool call, the
// timeout elapses, or the context ends. Anything but an approval blocks the
// call.
//
//	broker := hook.NewApprovalBroker(hook.WithOnSubmit(func(ev hook.PreToolUseEvent) {
//	    fmt.Printf("approve %s(%v)? ", ev.ToolName, ev.Input)
//	}))
//	hooks := hook.New().PreToolUse(broker)
//	go func() { _ = broker.Approve(readIDFromUser()) }()
type ApprovalBroker struct {
	mu       sync.Mutex
	pending  map[string]chan ApprovalDecision
	timeout  time.Duration
	onSubmit func(ev PreToolUseEvent)
}

// ApprovalOption configures an ApprovalBroker.
type ApprovalOption func(*ApprovalBroker)

// WithApprovalTimeout sets how long to wait for a decision. Default is 5 minutes.
func WithApprovalTimeout(d time.Duration) ApprovalOption {
	return func(b *ApprovalBroker) {
		b.timeout = d
	}
}

// WithOnSubmit sets a callback invoked when a tool call starts waiting.
func WithOnSubmit(fn func(ev PreToolUseEvent)) ApprovalOption {
	return func(b *ApprovalBroker) {
		b.onSubmit = fn
	}
}

// NewApprovalBroker creates a broker.
func NewApprovalBroker(opts ...ApprovalOption) *ApprovalBroker {
	b := &ApprovalBroker{
		pending: make(map[string]chan ApprovalDecision),
		timeout: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnPreToolUse waits for a decision on ev.ToolUseID.
func (b *ApprovalBroker) OnPreToolUse(ctx context.Context, ev PreToolUseEvent) *Decision {
	approved, reason := b.waitForDecision(ctx, ev)
	if approved {
		return Continue()
	}
	return Block(reason)
}

// Decide routes a decision to the waiting tool call. It returns an error if
// nothing is waiting on that ID.
func (b *ApprovalBroker) Decide(decision ApprovalDecision) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.pending[decision.ToolUseID]
	if !ok {
		return fmt.Errorf("hook: no pending approval for tool call %q", decision.ToolUseID)
	}
	select {
	case ch <- decision:
	default:
	}
	return nil
}

// Approve approves a tool call.
func (b *ApprovalBroker) Approve(toolUseID string) error {
	return b.Decide(ApprovalDecision{ToolUseID: toolUseID, Approved: true})
}

// Reject rejects a tool call.
func (b *ApprovalBroker) Reject(toolUseID, reason string) error {
	return b.Decide(ApprovalDecision{ToolUseID: toolUseID, Reason: reason})
}

// PendingCount returns the number of tool calls waiting for a decision.
func (b *ApprovalBroker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *ApprovalBroker) waitForDecision(ctx context.Context, ev PreToolUseEvent) (bool, string) {
	ch := make(chan ApprovalDecision, 1)

	b.mu.Lock()
	b.pending[ev.ToolUseID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, ev.ToolUseID)
		b.mu.Unlock()
	}()

	if b.onSubmit != nil {
		b.onSubmit(ev)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	select {
	case decision := <-ch:
		if !decision.Approved && decision.Reason == "" {
			return false, "rejected"
		}
		return decision.Approved, decision.Reason
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return false, "approval cancelled"
		}
		return false, "approval timeout"
	}
}

var _ PreToolHandler = (*ApprovalBroker)(nil)
