package hook

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/openagent"
)

func TestDecisionConstructors(t *testing.T) {
	tests := []struct {
		name     string
		decision *Decision
		want     Decision
		blocked  bool
	}{
		{"continue", Continue(), Decision{Action: ActionContinue}, false},
		{"block", Block("nope"), Decision{Action: ActionBlock, Reason: "nope"}, true},
		{"modify input", ModifyInput(map[string]any{"a": 1.0}, "clamp"), Decision{Action: ActionModifyInput, Input: map[string]any{"a": 1.0}, Reason: "clamp"}, false},
		{"modify prompt", ModifyPrompt("hi", "redact"), Decision{Action: ActionModifyPrompt, Prompt: "hi", Reason: "redact"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, *tt.decision)
			assert.Equal(t, tt.blocked, tt.decision.Blocked())
		})
	}

	var none *Decision
	assert.False(t, none.Blocked())
}

func TestPipeline_FirstDecisionWins(t *testing.T) {
	var calls []string
	record := func(name string, d *Decision) PreToolFunc {
		return func(context.Context, PreToolUseEvent) *Decision {
			calls = append(calls, name)
			return d
		}
	}

	p := New().PreToolUse(
		record("first", nil),
		record("second", Block("second says no")),
		record("third", Continue()),
	)

	d := p.RunPreToolUse(context.Background(), PreToolUseEvent{ToolName: "add"})
	require.NotNil(t, d)
	assert.Equal(t, "second says no", d.Reason)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, 3, p.Len())
}

func TestPipeline_NoDecision(t *testing.T) {
	p := New().UserPromptSubmit(PromptFunc(func(context.Context, UserPromptSubmitEvent) *Decision {
		return nil
	}))
	assert.Nil(t, p.RunUserPromptSubmit(context.Background(), UserPromptSubmitEvent{Prompt: "hi"}))
	assert.Nil(t, p.RunPostToolUse(context.Background(), PostToolUseEvent{}))
}

func TestPipeline_Nil(t *testing.T) {
	var p *Pipeline
	ctx := context.Background()
	assert.Nil(t, p.RunUserPromptSubmit(ctx, UserPromptSubmitEvent{}))
	assert.Nil(t, p.RunPreToolUse(ctx, PreToolUseEvent{}))
	assert.Nil(t, p.RunPostToolUse(ctx, PostToolUseEvent{}))
	assert.Equal(t, 0, p.Len())
}

func TestPipeline_EventsCarryPayload(t *testing.T) {
	history := []ai.Message{ai.NewUserMessage("What is 2+2?")}
	var got PostToolUseEvent
	p := New().PostToolUse(PostToolFunc(func(_ context.Context, ev PostToolUseEvent) *Decision {
		got = ev
		return ModifyInput(map[string]any{"value": 5.0}, "override")
	}))

	ev := PostToolUseEvent{
		ToolName:  "add",
		ToolUseID: "call_1",
		Input:     map[string]any{"a": 2.0, "b": 2.0},
		Result:    ai.ToolResultBlock{ToolUseID: "call_1", Name: "add", Content: 4.0},
		History:   history,
	}
	d := p.RunPostToolUse(context.Background(), ev)
	require.NotNil(t, d)
	assert.Equal(t, ActionModifyInput, d.Action)
	assert.Equal(t, ev, got)
}

func TestForToolsAndDenyTools(t *testing.T) {
	ctx := context.Background()
	p := New().PreToolUse(DenyTools("destructive", "delete_file", "rm"))

	d := p.RunPreToolUse(ctx, PreToolUseEvent{ToolName: "rm"})
	require.True(t, d.Blocked())
	assert.Equal(t, "destructive", d.Reason)

	assert.Nil(t, p.RunPreToolUse(ctx, PreToolUseEvent{ToolName: "add"}))
}

func TestApprovalBroker(t *testing.T) {
	t.Run("approve", func(t *testing.T) {
		submitted := make(chan string, 1)
		b := NewApprovalBroker(WithOnSubmit(func(ev PreToolUseEvent) { submitted <- ev.ToolUseID }))

		result := make(chan *Decision, 1)
		go func() {
			result <- b.OnPreToolUse(context.Background(), PreToolUseEvent{ToolName: "add", ToolUseID: "call_1"})
		}()

		id := <-submitted
		assert.Equal(t, 1, b.PendingCount())
		require.NoError(t, b.Approve(id))

		d := <-result
		assert.Equal(t, ActionContinue, d.Action)
		assert.Eventually(t, func() bool { return b.PendingCount() == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("reject", func(t *testing.T) {
		submitted := make(chan string, 1)
		b := NewApprovalBroker(WithOnSubmit(func(ev PreToolUseEvent) { submitted <- ev.ToolUseID }))

		result := make(chan *Decision, 1)
		go func() {
			result <- b.OnPreToolUse(context.Background(), PreToolUseEvent{ToolName: "rm", ToolUseID: "call_2"})
		}()

		require.NoError(t, b.Reject(<-submitted, "not today"))
		d := <-result
		assert.True(t, d.Blocked())
		assert.Equal(t, "not today", d.Reason)
	})

	t.Run("timeout", func(t *testing.T) {
		b := NewApprovalBroker(WithApprovalTimeout(10 * time.Millisecond))
		d := b.OnPreToolUse(context.Background(), PreToolUseEvent{ToolUseID: "call_3"})
		assert.True(t, d.Blocked())
		assert.Equal(t, "approval timeout", d.Reason)
	})

	t.Run("cancelled", func(t *testing.T) {
		b := NewApprovalBroker()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d := b.OnPreToolUse(ctx, PreToolUseEvent{ToolUseID: "call_4"})
		assert.True(t, d.Blocked())
		assert.Equal(t, "approval cancelled", d.Reason)
	})

	t.Run("decide without pending", func(t *testing.T) {
		assert.Error(t, NewApprovalBroker().Approve("missing"))
	})

	t.Run("as pipeline handler", func(t *testing.T) {
		var submitted atomic.Int32
		b := NewApprovalBroker(
			WithApprovalTimeout(10*time.Millisecond),
			WithOnSubmit(func(PreToolUseEvent) { submitted.Add(1) }),
		)
		p := New().PreToolUse(ForTools(b, "rm"))

		assert.Nil(t, p.RunPreToolUse(context.Background(), PreToolUseEvent{ToolName: "add", ToolUseID: "a"}))
		assert.True(t, p.RunPreToolUse(context.Background(), PreToolUseEvent{ToolName: "rm", ToolUseID: "b"}).Blocked())
		assert.Equal(t, int32(1), submitted.Load())
	})
}
