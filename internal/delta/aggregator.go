// Package delta turns streamed chat completion chunks into finalized content blocks.
//
// Text fragments are surfaced as soon as they arrive. Tool call fragments are
// accumulated by their positional index and only surfaced once the turn
// signals completion, at which point each buffered argument string is parsed
// as JSON and emitted in ascending index order.
package delta

import (
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/tidwall/gjson"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/internal/sse"
)

// Finish reasons reported by OpenAI-compatible endpoints.
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
	// FinishFunctionCall is the legacy reason some local servers still send.
	FinishFunctionCall = "function_call"
)

// Source yields framed records. *sse.Reader implements it.
type Source interface {
	Next() (sse.Record, error)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithMalformedHandler registers a callback for malformed stream lines.
// The lines are skipped either way.
func WithMalformedHandler(fn func(line string)) Option {
	return func(a *Aggregator) {
		a.onMalformed = fn
	}
}

type entry struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// Aggregator consumes one assistant turn. It is not safe for concurrent use.
type Aggregator struct {
	src         Source
	onMalformed func(string)

	entries  map[int]*entry
	pending  []ai.ContentBlock
	toolUses []ai.ToolUseBlock
	text     strings.Builder
	finish   string
	usage    ai.Usage
	done     bool
	err      error
}

// New creates an Aggregator reading from src.
func New(src Source, opts ...Option) *Aggregator {
	a := &Aggregator{
		src:     src,
		entries: make(map[int]*entry),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Next returns the next finalized block. It returns io.EOF when the turn is
// complete. After a decode or transport error has been returned once, the
// turn is over and Next returns io.EOF.
func (a *Aggregator) Next() (ai.ContentBlock, error) {
	for {
		if len(a.pending) > 0 {
			block := a.pending[0]
			a.pending = a.pending[1:]
			return block, nil
		}
		if a.done {
			return nil, io.EOF
		}

		rec, err := a.src.Next()
		if errors.Is(err, io.EOF) {
			a.done = true
			if err := a.finalize(); err != nil {
				return nil, a.fail(err)
			}
			continue
		}
		if err != nil {
			return nil, a.fail(err)
		}
		if rec.IsMalformed() {
			if a.onMalformed != nil {
				a.onMalformed(rec.Malformed)
			}
			continue
		}
		if err := a.apply(rec.Data); err != nil {
			return nil, a.fail(err)
		}
	}
}

// Discard drops open accumulator entries and undelivered blocks without
// finalizing them. The aggregator reports io.EOF afterwards.
func (a *Aggregator) Discard() {
	a.done = true
	a.pending = nil
	a.entries = make(map[int]*entry)
}

// Err returns the error that ended the turn, if any.
func (a *Aggregator) Err() error { return a.err }

// FinishReason returns the termination reason reported by the endpoint.
func (a *Aggregator) FinishReason() string { return a.finish }

// Text returns all text received so far.
func (a *Aggregator) Text() string { return a.text.String() }

// ToolUses returns the finalized tool invocations in index order.
func (a *Aggregator) ToolUses() []ai.ToolUseBlock { return a.toolUses }

// Usage returns token counts if the endpoint reported them.
func (a *Aggregator) Usage() ai.Usage { return a.usage }

// Message builds the assistant turn from everything finalized so far.
func (a *Aggregator) Message() ai.Message {
	var blocks []ai.ContentBlock
	if a.text.Len() > 0 {
		blocks = append(blocks, ai.TextBlock{Text: a.text.String()})
	}
	for _, tu := range a.toolUses {
		blocks = append(blocks, tu)
	}
	return ai.NewAssistantMessage(blocks...)
}

func (a *Aggregator) fail(err error) error {
	a.err = err
	a.done = true
	a.pending = nil
	a.entries = make(map[int]*entry)
	return err
}

func (a *Aggregator) apply(payload string) error {
	if !gjson.Valid(payload) {
		return &ai.ProtocolDecodeError{Msg: "payload is not valid JSON", Index: -1, Raw: payload}
	}
	if e := gjson.Get(payload, "error"); e.IsObject() || e.Type == gjson.String {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.String()
		}
		return &ai.TransportError{Op: "stream", Code: int(e.Get("code").Int()), Err: errors.New(msg)}
	}

	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return &ai.ProtocolDecodeError{Msg: "invalid chunk", Index: -1, Raw: payload, Err: err}
	}

	if chunk.Usage.TotalTokens > 0 {
		a.usage = ai.Usage{
			InputTokens:  int(chunk.Usage.PromptTokens),
			OutputTokens: int(chunk.Usage.CompletionTokens),
		}
	}
	if len(chunk.Choices) == 0 {
		return nil
	}

	choice := chunk.Choices[0]
	if text := choice.Delta.Content; text != "" {
		a.text.WriteString(text)
		a.pending = append(a.pending, ai.TextBlock{Text: text})
	}

	for _, tc := range choice.Delta.ToolCalls {
		idx := int(tc.Index)
		e, ok := a.entries[idx]
		if !ok {
			e = &entry{index: idx}
			a.entries[idx] = e
		}
		if e.id == "" && tc.ID != "" {
			e.id = tc.ID
		}
		if e.name == "" && tc.Function.Name != "" {
			e.name = tc.Function.Name
		}
		e.args.WriteString(tc.Function.Arguments)
	}

	if reason := string(choice.FinishReason); reason != "" {
		a.finish = reason
		return a.finalize()
	}
	return nil
}

// finalize parses every open entry. A single invalid entry fails the turn so
// no partial set of tool calls is surfaced.
func (a *Aggregator) finalize() error {
	if len(a.entries) == 0 {
		return nil
	}

	indices := make([]int, 0, len(a.entries))
	for idx := range a.entries {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	blocks := make([]ai.ToolUseBlock, 0, len(indices))
	for _, idx := range indices {
		e := a.entries[idx]
		block, err := e.finalize()
		if err != nil {
			return err
		}
		blocks = append(blocks, block)
	}

	a.entries = make(map[int]*entry)
	for _, b := range blocks {
		a.toolUses = append(a.toolUses, b)
		a.pending = append(a.pending, b)
	}
	return nil
}

func (e *entry) finalize() (ai.ToolUseBlock, error) {
	raw := e.args.String()
	if e.name == "" {
		return ai.ToolUseBlock{}, &ai.ProtocolDecodeError{
			Msg: "tool call has no name", Index: e.index, Raw: raw,
			Err: errors.New("missing function name"),
		}
	}

	var input any = map[string]any{}
	if strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return ai.ToolUseBlock{}, &ai.ProtocolDecodeError{
				Msg: "invalid tool call arguments", Index: e.index, Tool: e.name, Raw: raw, Err: err,
			}
		}
	}

	id := e.id
	if id == "" {
		id = "call_" + uuid.NewString()
	}
	return ai.ToolUseBlock{ID: id, Name: e.name, Input: input}, nil
}
