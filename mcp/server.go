package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/tool"
)

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name    string
	version string
}

// WithName sets the server name reported to MCP clients.
func WithName(name string) ServerOption {
	return func(c *serverConfig) {
		c.name = name
	}
}

// WithVersion sets the server version reported to MCP clients.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) {
		c.version = version
	}
}

// NewServer creates an MCP server exposing every tool of exec. Inputs are
// validated by the executor exactly as for model-issued calls.
//
//	registry := tool.NewRegistry().Add(tool.Builtins()...)
//	s := mcp.NewServer(registry, mcp.WithName("my-tools"))
//	server.ServeStdio(s)
func NewServer(exec tool.Executor, opts ...ServerOption) *server.MCPServer {
	cfg := &serverConfig{
		name:    "openagent-mcp-server",
		version: "1.0.0",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := server.NewMCPServer(
		cfg.name,
		cfg.version,
		server.WithToolCapabilities(true),
	)
	for _, t := range exec.Tools() {
		s.AddTool(ToMCPTool(t), handlerFor(exec, t.Name))
	}
	return s
}

// handlerFor routes an MCP call through tool.Execute so failures become
// MCP error results rather than protocol errors.
func handlerFor(exec tool.Executor, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		use := ai.ToolUseBlock{Name: name, Input: req.GetArguments()}
		result, err := tool.Execute(ctx, exec, use)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return ToMCPResult(result), nil
	}
}

// ServeStdio serves exec over stdin/stdout, the usual transport for MCP
// servers run as subprocesses. It blocks until stdin is closed.
func ServeStdio(exec tool.Executor, opts ...ServerOption) error {
	return server.ServeStdio(NewServer(exec, opts...))
}
