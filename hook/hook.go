// Package hook provides the policy checks a session runs at fixed points of
// an exchange.
//
// Handlers are registered per lifecycle point and run in registration order.
// A handler returns nil to defer to the next one; the first non-nil Decision
// wins and the remaining handlers are skipped.
//
//	hooks := hook.New().
//	    PreToolUse(hook.PreToolFunc(func(ctx context.Context, ev hook.PreToolUseEvent) *hook.Decision {
//	        if ev.ToolName == "delete_file" {
//	            return hook.Block("deletes are not allowed")
//	        }
//	        return nil
//	    }))
package hook

import (
	"context"
	"sync"

	ai "github.com/spetersoncode/openagent"
)

// Action is the outcome a Decision requests.
type Action string

const (
	ActionContinue     Action = "continue"
	ActionBlock        Action = "block"
	ActionModifyInput  Action = "modify_input"
	ActionModifyPrompt Action = "modify_prompt"
)

// Decision controls how the session proceeds after a hook.
type Decision struct {
	Action Action
	Reason string
	// Input replaces the tool input (PreToolUse) or the stored tool result
	// (PostToolUse) when Action is ActionModifyInput.
	Input any
	// Prompt replaces the user prompt when Action is ActionModifyPrompt.
	Prompt string
}

// Continue lets the operation proceed unchanged.
func Continue() *Decision {
	return &Decision{Action: ActionContinue}
}

// Block denies the operation.
func Block(reason string) *Decision {
	return &Decision{Action: ActionBlock, Reason: reason}
}

// ModifyInput replaces the tool input, or the tool result in PostToolUse.
func ModifyInput(input any, reason string) *Decision {
	return &Decision{Action: ActionModifyInput, Input: input, Reason: reason}
}

// ModifyPrompt rewrites the user prompt before it is stored.
func ModifyPrompt(prompt, reason string) *Decision {
	return &Decision{Action: ActionModifyPrompt, Prompt: prompt, Reason: reason}
}

// Blocked reports whether d denies the operation. A nil decision does not.
func (d *Decision) Blocked() bool {
	return d != nil && d.Action == ActionBlock
}

// UserPromptSubmitEvent fires once per send, before the user turn is stored.
type UserPromptSubmitEvent struct {
	Prompt  string
	History []ai.Message
}

// PreToolUseEvent fires before a tool runs.
type PreToolUseEvent struct {
	ToolName  string
	ToolUseID string
	Input     any
	History   []ai.Message
}

// PostToolUseEvent fires after a tool has run or was blocked.
type PostToolUseEvent struct {
	ToolName  string
	ToolUseID string
	Input     any
	Result    ai.ToolResultBlock
	History   []ai.Message
}

// PromptHandler handles UserPromptSubmit events.
type PromptHandler interface {
	OnUserPromptSubmit(ctx context.Context, ev UserPromptSubmitEvent) *Decision
}

// PreToolHandler handles PreToolUse events.
type PreToolHandler interface {
	OnPreToolUse(ctx context.Context, ev PreToolUseEvent) *Decision
}

// PostToolHandler handles PostToolUse events.
type PostToolHandler interface {
	OnPostToolUse(ctx context.Context, ev PostToolUseEvent) *Decision
}

// PromptFunc adapts a function to PromptHandler.
type PromptFunc func(ctx context.Context, ev UserPromptSubmitEvent) *Decision

func (f PromptFunc) OnUserPromptSubmit(ctx context.Context, ev UserPromptSubmitEvent) *Decision {
	return f(ctx, ev)
}

// PreToolFunc adapts a function to PreToolHandler.
type PreToolFunc func(ctx context.Context, ev PreToolUseEvent) *Decision

func (f PreToolFunc) OnPreToolUse(ctx context.Context, ev PreToolUseEvent) *Decision {
	return f(ctx, ev)
}

// PostToolFunc adapts a function to PostToolHandler.
type PostToolFunc func(ctx context.Context, ev PostToolUseEvent) *Decision

func (f PostToolFunc) OnPostToolUse(ctx context.Context, ev PostToolUseEvent) *Decision {
	return f(ctx, ev)
}

// Pipeline holds the ordered handlers for each lifecycle point. A nil
// *Pipeline is valid and never returns a decision.
type Pipeline struct {
	mu     sync.RWMutex
	prompt []PromptHandler
	pre    []PreToolHandler
	post   []PostToolHandler
}

// New creates an empty pipeline.
func New() *Pipeline {
	return &Pipeline{}
}

// UserPromptSubmit appends prompt handlers.
func (p *Pipeline) UserPromptSubmit(h ...PromptHandler) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompt = append(p.prompt, h...)
	return p
}

// PreToolUse appends pre-execution handlers.
func (p *Pipeline) PreToolUse(h ...PreToolHandler) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pre = append(p.pre, h...)
	return p
}

// PostToolUse appends post-execution handlers.
func (p *Pipeline) PostToolUse(h ...PostToolHandler) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.post = append(p.post, h...)
	return p
}

// Len returns the total number of registered handlers.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.prompt) + len(p.pre) + len(p.post)
}

// RunUserPromptSubmit returns the first non-nil decision, or nil.
func (p *Pipeline) RunUserPromptSubmit(ctx context.Context, ev UserPromptSubmitEvent) *Decision {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	handlers := p.prompt
	p.mu.RUnlock()

	for _, h := range handlers {
		if d := h.OnUserPromptSubmit(ctx, ev); d != nil {
			return d
		}
	}
	return nil
}

// RunPreToolUse returns the first non-nil decision, or nil.
func (p *Pipeline) RunPreToolUse(ctx context.Context, ev PreToolUseEvent) *Decision {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	handlers := p.pre
	p.mu.RUnlock()

	for _, h := range handlers {
		if d := h.OnPreToolUse(ctx, ev); d != nil {
			return d
		}
	}
	return nil
}

// RunPostToolUse returns the first non-nil decision, or nil.
func (p *Pipeline) RunPostToolUse(ctx context.Context, ev PostToolUseEvent) *Decision {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	handlers := p.post
	p.mu.RUnlock()

	for _, h := range handlers {
		if d := h.OnPostToolUse(ctx, ev); d != nil {
			return d
		}
	}
	return nil
}
