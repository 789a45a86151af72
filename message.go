package openagent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// BlockType identifies the variant of a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one typed unit of model output or tool interaction.
// The concrete types are TextBlock, ImageBlock, ToolUseBlock and ToolResultBlock.
type ContentBlock interface {
	Type() BlockType
	isBlock()
}

// TextBlock holds plain text.
type TextBlock struct {
	Text string `json:"text"`
}

// ToolUseBlock is a finalized tool invocation requested by the model.
// Input is a decoded JSON value, usually map[string]any.
type ToolUseBlock struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input any    `json:"input"`
}

// ToolResultBlock carries the output of a tool invocation back to the model.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Name      string `json:"name"`
	Content   any    `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

func (TextBlock) Type() BlockType       { return BlockText }
func (ImageBlock) Type() BlockType      { return BlockImage }
func (ToolUseBlock) Type() BlockType    { return BlockToolUse }
func (ToolResultBlock) Type() BlockType { return BlockToolResult }

func (TextBlock) isBlock()       {}
func (ImageBlock) isBlock()      {}
func (ToolUseBlock) isBlock()    {}
func (ToolResultBlock) isBlock() {}

// ContentString renders the result content as the text sent to the model.
// Strings pass through unchanged; other values are JSON encoded.
func (b ToolResultBlock) ContentString() string {
	switch v := b.Content.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.RawMessage:
		return string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// Message represents a single turn in a conversation.
type Message struct {
	// ID uniquely identifies the turn within a history.
	ID      string         `json:"id,omitempty"`
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
	// ToolCallID links a tool turn to the ToolUseBlock it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// NewUserMessage creates a user turn from text and optional extra blocks such as images.
func NewUserMessage(text string, blocks ...ContentBlock) Message {
	content := make([]ContentBlock, 0, len(blocks)+1)
	if text != "" {
		content = append(content, TextBlock{Text: text})
	}
	content = append(content, blocks...)
	return Message{ID: uuid.NewString(), Role: RoleUser, Content: content}
}

// NewSystemMessage creates a system turn.
func NewSystemMessage(text string) Message {
	return Message{ID: uuid.NewString(), Role: RoleSystem, Content: []ContentBlock{TextBlock{Text: text}}}
}

// NewAssistantMessage creates an assistant turn from blocks in order.
func NewAssistantMessage(blocks ...ContentBlock) Message {
	return Message{ID: uuid.NewString(), Role: RoleAssistant, Content: blocks}
}

// NewToolMessage creates a tool turn carrying a single result.
func NewToolMessage(result ToolResultBlock) Message {
	return Message{
		ID:         uuid.NewString(),
		Role:       RoleTool,
		Content:    []ContentBlock{result},
		ToolCallID: result.ToolUseID,
	}
}

// Text returns the concatenated text of all text blocks.
func (m Message) Text() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the tool invocations in the turn, in order.
func (m Message) ToolUses() []ToolUseBlock {
	var out []ToolUseBlock
	for _, b := range m.Content {
		if tu, ok := b.(ToolUseBlock); ok {
			out = append(out, tu)
		}
	}
	return out
}

// HasToolUses reports whether the turn requests any tool invocations.
func (m Message) HasToolUses() bool {
	for _, b := range m.Content {
		if _, ok := b.(ToolUseBlock); ok {
			return true
		}
	}
	return false
}

// ToolResult returns the result block of a tool turn.
func (m Message) ToolResult() (ToolResultBlock, bool) {
	for _, b := range m.Content {
		if tr, ok := b.(ToolResultBlock); ok {
			return tr, true
		}
	}
	return ToolResultBlock{}, false
}

type blockEnvelope struct {
	Type BlockType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

type messageJSON struct {
	ID         string          `json:"id,omitempty"`
	Role       Role            `json:"role"`
	Content    []blockEnvelope `json:"content"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// MarshalJSON encodes the content blocks with a type tag so histories can be persisted.
func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{ID: m.ID, Role: m.Role, ToolCallID: m.ToolCallID}
	out.Content = make([]blockEnvelope, 0, len(m.Content))
	for _, b := range m.Content {
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, blockEnvelope{Type: b.Type(), Data: data})
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a message produced by MarshalJSON.
func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	m.ID, m.Role, m.ToolCallID = in.ID, in.Role, in.ToolCallID
	m.Content = make([]ContentBlock, 0, len(in.Content))
	for _, env := range in.Content {
		var (
			block ContentBlock
			err   error
		)
		switch env.Type {
		case BlockText:
			var b TextBlock
			err = json.Unmarshal(env.Data, &b)
			block = b
		case BlockImage:
			var b ImageBlock
			err = json.Unmarshal(env.Data, &b)
			block = b
		case BlockToolUse:
			var b ToolUseBlock
			err = json.Unmarshal(env.Data, &b)
			block = b
		case BlockToolResult:
			var b ToolResultBlock
			err = json.Unmarshal(env.Data, &b)
			block = b
		default:
			return fmt.Errorf("unknown content block type %q", env.Type)
		}
		if err != nil {
			return fmt.Errorf("decode %s block: %w", env.Type, err)
		}
		m.Content = append(m.Content, block)
	}
	return nil
}

// Usage reports token counts for one request, when the endpoint provides them.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.InputTokens += u2.InputTokens
	u.OutputTokens += u2.OutputTokens
}
