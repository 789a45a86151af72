// Package openagent is a client engine for streaming, tool-calling chat
// completion endpoints such as LM Studio, Ollama, llama.cpp and vLLM.
//
// The root package holds the shared data model: conversation turns
// ([Message]), content blocks ([TextBlock], [ImageBlock], [ToolUseBlock],
// [ToolResultBlock]) and the error taxonomy. The engine itself lives in
// subpackages:
//
//   - [github.com/spetersoncode/openagent/session]: send/receive conversations
//     with an optional automatic tool execution loop
//   - [github.com/spetersoncode/openagent/tool]: local tool registry
//   - [github.com/spetersoncode/openagent/hook]: prompt and tool policy hooks
//   - [github.com/spetersoncode/openagent/cancel]: shareable cancellation token
//   - [github.com/spetersoncode/openagent/retry]: exponential backoff driver
//   - [github.com/spetersoncode/openagent/mux]: many sessions with bounded concurrency
//   - [github.com/spetersoncode/openagent/window]: token estimation and truncation
//
// # Basic Usage
//
//	s, err := session.New(session.Config{
//	    Model:   "qwen2.5-7b-instruct",
//	    BaseURL: "http://localhost:1234/v1",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := s.Send(ctx, "What is the capital of France?"); err != nil {
//	    log.Fatal(err)
//	}
//	for {
//	    block, err := s.Receive(ctx)
//	    if errors.Is(err, io.EOF) {
//	        break
//	    }
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if t, ok := block.(openagent.TextBlock); ok {
//	        fmt.Print(t.Text)
//	    }
//	}
//
// # Error Handling
//
// Errors implement [CategorizedError] where a retry decision is meaningful:
//
//	if openagent.IsTransient(err) {
//	    // safe to retry the exchange
//	}
//
//	var unknown *openagent.UnknownToolError
//	if errors.As(err, &unknown) {
//	    log.Printf("model called %s", unknown.Name)
//	}
package openagent
