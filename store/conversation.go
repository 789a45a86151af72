package store

import (
	"context"
	"encoding/json"
	"sync"

	ai "github.com/spetersoncode/openagent"
)

// Conversation is the ordered history of one session. Turns are immutable
// once appended; the only way to remove turns is a wholesale Replace or Clear.
type Conversation struct {
	mu       sync.RWMutex
	messages []ai.Message
	adapter  Adapter
}

// NewConversation creates an empty conversation with the given adapter.
// If adapter is nil, a default in-memory adapter is used.
func NewConversation(adapter Adapter) *Conversation {
	if adapter == nil {
		adapter = NewMemoryAdapter()
	}
	return &Conversation{
		messages: make([]ai.Message, 0),
		adapter:  adapter,
	}
}

// NewConversationFrom creates a conversation initialized with existing turns.
func NewConversationFrom(messages []ai.Message, adapter Adapter) *Conversation {
	c := NewConversation(adapter)
	c.messages = cloneMessages(messages)
	return c
}

// Messages returns a copy of all turns.
func (c *Conversation) Messages() []ai.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneMessages(c.messages)
}

// Append adds turns in order.
func (c *Conversation) Append(msgs ...ai.Message) {
	if len(msgs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, cloneMessages(msgs)...)
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Last returns the last n turns. If n > Len(), returns all turns.
func (c *Conversation) Last(n int) []ai.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	start := max(len(c.messages)-n, 0)
	return cloneMessages(c.messages[start:])
}

// Replace swaps the whole history, typically with a truncated copy.
func (c *Conversation) Replace(msgs []ai.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = cloneMessages(msgs)
}

// Clear removes all turns.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make([]ai.Message, 0)
}

// Clone creates an independent copy sharing the adapter.
func (c *Conversation) Clone() *Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return NewConversationFrom(c.messages, c.adapter)
}

// Sync persists the turns to the adapter under the given key.
func (c *Conversation) Sync(ctx context.Context, key string) error {
	c.mu.RLock()
	raw, err := json.Marshal(c.messages)
	c.mu.RUnlock()
	if err != nil {
		return &SerializationError{Key: key, Err: err}
	}
	return c.adapter.Set(ctx, key, raw)
}

// Reload replaces the turns with those stored under key.
func (c *Conversation) Reload(ctx context.Context, key string) error {
	raw, ok, err := c.adapter.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return ErrKeyNotFound
	}

	var messages []ai.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return &SerializationError{Key: key, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = messages
	return nil
}

// Adapter returns the underlying adapter.
func (c *Conversation) Adapter() Adapter {
	return c.adapter
}

func cloneMessages(msgs []ai.Message) []ai.Message {
	out := make([]ai.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		out[i].Content = append([]ai.ContentBlock(nil), m.Content...)
	}
	return out
}
