package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/config"
)

// echoServer answers every chat completion with "echo: <first user prompt>"
// and rejects prompts containing "fail" with a 400.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		prompt := gjson.GetBytes(body, `messages.#(role=="user").content`)
		if prompt.IsArray() {
			prompt = prompt.Get("0.text")
		}
		if strings.Contains(prompt.String(), "fail") {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":{"message":"bad prompt","type":"invalid_request_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseText("echo: "+prompt.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func sseText(text string) string {
	event := func(delta map[string]any, finish any) string {
		data, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion.chunk",
			"created": 1,
			"model":   "test-model",
			"choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": finish}},
		})
		return "data: " + string(data) + "\n\n"
	}
	return event(map[string]any{"content": text}, nil) + event(map[string]any{}, "stop") + "data: [DONE]\n\n"
}

// useTestConfig points the command globals at srv and restores them afterwards.
func useTestConfig(t *testing.T, srv *httptest.Server) {
	t.Helper()
	prevCfg, prevLog, prevNoTools := cfg, log, noTools
	t.Cleanup(func() { cfg, log, noTools = prevCfg, prevLog, prevNoTools })

	cfg = config.Default()
	cfg.Model = "test-model"
	cfg.BaseURL = srv.URL + "/v1"
	cfg.Retry.MaxAttempts = 1
	log = zerolog.Nop()
	noTools = true
}

func TestBatchWritesJSONLinesInInputOrder(t *testing.T) {
	useTestConfig(t, echoServer(t))
	batchConcurrency = 2
	t.Cleanup(func() { batchConcurrency = 0 })

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetIn(strings.NewReader("alpha\nplease fail\n\ngamma\n"))
	cmd.SetOut(&out)

	require.NoError(t, runBatch(cmd, nil))

	var lines []batchLine
	sc := bufio.NewScanner(&out)
	for sc.Scan() {
		var line batchLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 3)

	assert.Equal(t, "line-1", lines[0].Name)
	assert.Equal(t, "echo: alpha", lines[0].Text)
	assert.Empty(t, lines[0].Error)

	assert.Equal(t, "line-2", lines[1].Name)
	assert.Equal(t, "please fail", lines[1].Prompt)
	assert.Empty(t, lines[1].Text)
	assert.Contains(t, lines[1].Error, "400")

	assert.Equal(t, "line-3", lines[2].Name)
	assert.Equal(t, "echo: gamma", lines[2].Text)
}

func TestBatchRejectsEmptyInput(t *testing.T) {
	useTestConfig(t, echoServer(t))

	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	cmd.SetIn(strings.NewReader("\n  \n"))
	cmd.SetOut(io.Discard)

	assert.Error(t, runBatch(cmd, nil))
}

func TestChatExchangeAndCommands(t *testing.T) {
	useTestConfig(t, echoServer(t))

	s, err := newSession(cfg, &toolset{})
	require.NoError(t, err)
	defer s.Close()

	var out bytes.Buffer
	in := bufio.NewScanner(strings.NewReader(""))
	require.NoError(t, exchange(context.Background(), s, "hello", in, &out))
	assert.Contains(t, out.String(), "echo: hello")
	require.Len(t, s.History(), 2)

	out.Reset()
	assert.False(t, chatCommand(s, "/history", &out))
	assert.Contains(t, out.String(), "echo: hello")

	out.Reset()
	assert.False(t, chatCommand(s, "/tokens", &out))
	assert.Contains(t, out.String(), "history ~")

	assert.False(t, chatCommand(s, "/clear", &out))
	assert.Empty(t, s.History())

	assert.True(t, chatCommand(s, "/exit", &out))
}

func TestTrimHistory(t *testing.T) {
	useTestConfig(t, echoServer(t))
	prevLimit, prevKeep := contextLimit, keepTurns
	t.Cleanup(func() { contextLimit, keepTurns = prevLimit, prevKeep })

	s, err := newSession(cfg, &toolset{})
	require.NoError(t, err)
	defer s.Close()

	long := strings.Repeat("x", 400)
	var msgs []ai.Message
	for i := 0; i < 3; i++ {
		msgs = append(msgs, ai.NewUserMessage(long), ai.NewAssistantMessage(ai.TextBlock{Text: long}))
	}
	require.NoError(t, s.ReplaceHistory(msgs))

	contextLimit = 0
	trimHistory(s)
	assert.Len(t, s.History(), 6)

	contextLimit, keepTurns = 100, 2
	trimHistory(s)
	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, ai.RoleUser, history[0].Role)
}

func TestReadPrompts(t *testing.T) {
	prompts, err := readPrompts(strings.NewReader("first\n\n  second  \r\n\nthird"))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, prompts)
}

func TestParseResult(t *testing.T) {
	assert.Equal(t, map[string]any{"sum": 5.0}, parseResult(`{"sum": 5}`))
	assert.Equal(t, 42.0, parseResult("42"))
	assert.Equal(t, "sunny, 21C", parseResult("sunny, 21C"))
}

func TestSummarize(t *testing.T) {
	assistant := ai.NewAssistantMessage(
		ai.TextBlock{Text: "let me add "},
		ai.ToolUseBlock{ID: "call_1", Name: "add", Input: map[string]any{"a": 1.0}},
	)
	assert.Equal(t, "let me add  [call add]", summarize(assistant))

	result := ai.NewToolMessage(ai.ToolResultBlock{ToolUseID: "call_1", Name: "add", Content: 3.0})
	assert.Equal(t, "[add] 3", summarize(result))
}
