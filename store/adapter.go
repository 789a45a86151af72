// Package store holds conversation history with pluggable persistence.
//
// A [Conversation] is the ordered, append-only list of turns owned by one
// session. Persistence is optional and goes through the [Adapter] interface;
// [MemoryAdapter] is the default.
//
//	conv := store.NewConversation(nil)
//	conv.Append(ai.NewUserMessage("hello"))
//	if err := conv.Sync(ctx, "session-1"); err != nil {
//	    return err
//	}
package store

import (
	"context"
	"encoding/json"
)

// Adapter defines the interface for persistence backends.
// Implementations must be thread-safe.
type Adapter interface {
	// Get retrieves a value by key. Returns nil, false, nil if not found.
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)

	// Set stores a value by key.
	Set(ctx context.Context, key string, value json.RawMessage) error

	// Delete removes a key. No error if key doesn't exist.
	Delete(ctx context.Context, key string) error

	// Keys returns all keys.
	Keys(ctx context.Context) ([]string, error)
}
