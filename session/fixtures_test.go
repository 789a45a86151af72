package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/retry"
)

func chunk(delta map[string]any, finish string) string {
	choice := map[string]any{"index": 0, "delta": delta, "finish_reason": nil}
	if finish != "" {
		choice["finish_reason"] = finish
	}
	payload, err := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "test-model",
		"choices": []any{choice},
	})
	if err != nil {
		panic(err)
	}
	return "data: " + string(payload) + "\n\n"
}

func textEvent(text string) string {
	return chunk(map[string]any{"content": text}, "")
}

func toolEvent(index int, id, name, args string) string {
	return chunk(map[string]any{"tool_calls": []any{map[string]any{
		"index":    index,
		"id":       id,
		"type":     "function",
		"function": map[string]any{"name": name, "arguments": args},
	}}}, "")
}

func finishEvent(reason string) string {
	return chunk(map[string]any{}, reason)
}

const doneEvent = "data: [DONE]\n\n"

func textStream(text string) string {
	return textEvent(text) + finishEvent("stop") + doneEvent
}

func toolStream(id, name, args string) string {
	return toolEvent(0, id, name, args) + finishEvent("tool_calls") + doneEvent
}

// reply is one scripted transport response.
type reply struct {
	body string
	err  error
	// open, when set, produces the body instead.
	open func() io.ReadCloser
}

// fakeTransport replays scripted replies and records requests. When the
// script runs out the last reply repeats.
type fakeTransport struct {
	mu       sync.Mutex
	replies  []reply
	requests []Request
}

func newFakeTransport(replies ...reply) *fakeTransport {
	return &fakeTransport{replies: replies}
}

func (f *fakeTransport) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.replies) == 0 {
		return nil, fmt.Errorf("fake transport: no reply scripted")
	}
	r := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.open != nil {
		return r.open(), nil
	}
	return io.NopCloser(strings.NewReader(r.body)), nil
}

func (f *fakeTransport) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.requests...)
}

// noRetry keeps failure tests fast.
var noRetry = retry.Disabled()

func newTestSession(t *testing.T, cfg Config, transport Transport, opts ...Option) *Session {
	t.Helper()
	if cfg.Model == "" {
		cfg.Model = "test-model"
	}
	opts = append([]Option{WithTransport(transport), WithRetry(noRetry)}, opts...)
	s, err := New(cfg, opts...)
	require.NoError(t, err)
	return s
}

// drain collects every block of the current turn.
func drain(t *testing.T, s *Session) ([]ai.ContentBlock, error) {
	t.Helper()
	var blocks []ai.ContentBlock
	for {
		block, err := s.Receive(context.Background())
		if err == io.EOF {
			return blocks, nil
		}
		if err != nil {
			return blocks, err
		}
		blocks = append(blocks, block)
	}
}
