package openagent

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageConstructors(t *testing.T) {
	t.Run("user message with text", func(t *testing.T) {
		msg := NewUserMessage("hello")
		assert.Equal(t, RoleUser, msg.Role)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "hello", msg.Text())
	})

	t.Run("user message with image only", func(t *testing.T) {
		img := ImageBlock{URL: "https://example.com/cat.png", Detail: ImageDetailLow}
		msg := NewUserMessage("", img)
		require.Len(t, msg.Content, 1)
		assert.Equal(t, BlockImage, msg.Content[0].Type())
	})

	t.Run("tool message links call id", func(t *testing.T) {
		msg := NewToolMessage(ToolResultBlock{ToolUseID: "call_1", Name: "add", Content: 3})
		assert.Equal(t, RoleTool, msg.Role)
		assert.Equal(t, "call_1", msg.ToolCallID)
		tr, ok := msg.ToolResult()
		require.True(t, ok)
		assert.Equal(t, "add", tr.Name)
	})

	t.Run("unique ids", func(t *testing.T) {
		assert.NotEqual(t, NewSystemMessage("a").ID, NewSystemMessage("a").ID)
	})
}

func TestMessageToolUses(t *testing.T) {
	msg := NewAssistantMessage(
		TextBlock{Text: "let me check"},
		ToolUseBlock{ID: "a", Name: "search"},
		ToolUseBlock{ID: "b", Name: "fetch"},
	)
	assert.True(t, msg.HasToolUses())
	uses := msg.ToolUses()
	require.Len(t, uses, 2)
	assert.Equal(t, "a", uses[0].ID)
	assert.Equal(t, "b", uses[1].ID)
	assert.Equal(t, "let me check", msg.Text())

	assert.False(t, NewAssistantMessage(TextBlock{Text: "done"}).HasToolUses())
}

func TestToolResultContentString(t *testing.T) {
	tests := []struct {
		name     string
		content  any
		expected string
	}{
		{"nil", nil, ""},
		{"string", "plain", "plain"},
		{"number", 4, "4"},
		{"map", map[string]any{"sum": 4}, `{"sum":4}`},
		{"raw", json.RawMessage(`{"a":1}`), `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToolResultBlock{Content: tt.content}.ContentString())
		})
	}
}

func TestMessageJSONRoundTrip(t *testing.T) {
	original := Message{
		ID:   "m1",
		Role: RoleAssistant,
		Content: []ContentBlock{
			TextBlock{Text: "calling"},
			ToolUseBlock{ID: "call_1", Name: "add", Input: map[string]any{"a": 2.0, "b": 2.0}},
			ImageBlock{URL: "https://example.com/x.png", Detail: ImageDetailHigh},
			ToolResultBlock{ToolUseID: "call_1", Name: "add", Content: "4", IsError: true},
		},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestMessageUnmarshalUnknownBlock(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"role":"user","content":[{"type":"audio","data":{}}]}`), &msg)
	assert.ErrorContains(t, err, "unknown content block type")
}
