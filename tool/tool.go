// Package tool provides the local tool registry and executor.
//
// Tools declare their input as a JSON schema. Inputs arrive from the model as
// decoded JSON values (map[string]any and friends) and are validated against
// that schema before the handler runs. A validation failure or a handler
// error becomes an error result the model can react to; only a call to an
// unregistered tool is a hard failure.
//
// # Basic Usage
//
// Define tool arguments as a struct; the schema is generated from it:
//
//	type AddArgs struct {
//	    A float64 `json:"a" jsonschema:"first addend"`
//	    B float64 `json:"b" jsonschema:"second addend"`
//	}
//
//	registry := tool.NewRegistry().Add(
//	    tool.Func("add", "Add two numbers", func(ctx context.Context, args AddArgs) (any, error) {
//	        return args.A + args.B, nil
//	    }),
//	)
//
// Tools with a hand-written schema register directly:
//
//	registry.MustRegister(tool.Tool{
//	    Name:        "echo",
//	    Description: "Echo the input",
//	    Parameters:  json.RawMessage(`{"type":"object"}`),
//	}, func(ctx context.Context, input any) (any, error) {
//	    return input, nil
//	})
package tool

import (
	"context"
	"encoding/json"
	"errors"

	ai "github.com/spetersoncode/openagent"
)

// Tool declares a callable capability to the model.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Handler executes a tool with a decoded JSON input and returns a JSON-encodable output.
type Handler func(ctx context.Context, input any) (any, error)

// TypedHandler executes a tool with its input decoded into T.
type TypedHandler[T any] func(ctx context.Context, args T) (any, error)

// Capability is a tool that can be invoked.
type Capability interface {
	Definition() Tool
	Invoke(ctx context.Context, input any) (any, error)
}

// Executor looks up capabilities by name. *Registry and mcp.RemoteRegistry
// implement it.
type Executor interface {
	Lookup(name string) (Capability, bool)
	Tools() []Tool
}

// Execute runs use against exec. An unregistered tool name returns
// *ai.UnknownToolError. Any failure inside the capability, including input
// validation, is reported in the returned block with IsError set.
func Execute(ctx context.Context, exec Executor, use ai.ToolUseBlock) (ai.ToolResultBlock, error) {
	capability, ok := exec.Lookup(use.Name)
	if !ok {
		return ai.ToolResultBlock{}, &ai.UnknownToolError{Name: use.Name, ToolUseID: use.ID}
	}

	out, err := capability.Invoke(ctx, use.Input)
	if err != nil {
		return ErrorResult(use, &ai.ToolExecutionError{Name: use.Name, ToolUseID: use.ID, Err: err}), nil
	}
	return ai.ToolResultBlock{ToolUseID: use.ID, Name: use.Name, Content: out}, nil
}

// ErrorResult builds the error payload returned to the model for a failed call.
func ErrorResult(use ai.ToolUseBlock, err error) ai.ToolResultBlock {
	msg := err.Error()
	var execErr *ai.ToolExecutionError
	if errors.As(err, &execErr) && execErr.Err != nil {
		msg = execErr.Err.Error()
	}
	return ai.ToolResultBlock{
		ToolUseID: use.ID,
		Name:      use.Name,
		IsError:   true,
		Content: map[string]any{
			"error": msg,
			"tool":  use.Name,
			"id":    use.ID,
		},
	}
}

// BlockedResult builds the payload returned to the model when a policy hook
// denies a call.
func BlockedResult(use ai.ToolUseBlock, reason string) ai.ToolResultBlock {
	return ai.ToolResultBlock{
		ToolUseID: use.ID,
		Name:      use.Name,
		IsError:   true,
		Content: map[string]any{
			"error":  "Tool execution blocked by hook",
			"reason": reason,
			"tool":   use.Name,
			"id":     use.ID,
		},
	}
}

// decodeInto converts a decoded JSON value into T.
func decodeInto[T any](input any) (T, error) {
	var args T
	if input == nil {
		return args, nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return args, err
	}
	err = json.Unmarshal(raw, &args)
	return args, err
}
