package mcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/spetersoncode/openagent/tool"
)

// ClientName is reported to MCP servers during initialization.
const ClientName = "openagent-mcp-client"

// RemoteRegistry exposes the tools of an MCP server as a [tool.Executor].
// Calls are proxied to the server; the tool list is cached and can be
// refreshed with [RemoteRegistry.Refresh].
//
// RemoteRegistry is safe for concurrent use.
type RemoteRegistry struct {
	client *client.Client
	mu     sync.RWMutex
	tools  map[string]tool.Tool
}

var _ tool.Executor = (*RemoteRegistry)(nil)

// NewRemoteRegistry starts command as an MCP server over stdio and connects
// to it. env entries have the form KEY=VALUE.
func NewRemoteRegistry(ctx context.Context, command string, env []string, args ...string) (*RemoteRegistry, error) {
	c, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("mcp: create stdio client: %w", err)
	}
	return NewRemoteRegistryFromClient(ctx, c)
}

// NewRemoteRegistrySSE connects to an MCP server over SSE.
func NewRemoteRegistrySSE(ctx context.Context, baseURL string) (*RemoteRegistry, error) {
	c, err := client.NewSSEMCPClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("mcp: create SSE client: %w", err)
	}
	return NewRemoteRegistryFromClient(ctx, c)
}

// NewRemoteRegistryFromClient starts and initializes c, then fetches the
// tool list. The client is closed if any step fails.
func NewRemoteRegistryFromClient(ctx context.Context, c *client.Client) (*RemoteRegistry, error) {
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp: start client: %w", err)
	}

	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    ClientName,
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: initialize session: %w", err)
	}

	r := &RemoteRegistry{
		client: c,
		tools:  make(map[string]tool.Tool),
	}
	if err := r.Refresh(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("mcp: list tools: %w", err)
	}
	return r, nil
}

// Close closes the connection to the MCP server.
func (r *RemoteRegistry) Close() error {
	return r.client.Close()
}

// Refresh fetches the current tool list from the server.
func (r *RemoteRegistry) Refresh(ctx context.Context) error {
	result, err := r.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = make(map[string]tool.Tool, len(result.Tools))
	for _, t := range result.Tools {
		r.tools[t.Name] = FromMCPTool(t)
	}
	return nil
}

// Tools returns the remote tool definitions sorted by name.
func (r *RemoteRegistry) Tools() []tool.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]tool.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Lookup returns a capability that forwards calls to the server.
func (r *RemoteRegistry) Lookup(name string) (tool.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, false
	}
	return remoteTool{registry: r, def: t}, true
}

// Names returns the names of all available tools, sorted.
func (r *RemoteRegistry) Names() []string {
	tools := r.Tools()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

// Len returns the number of available tools.
func (r *RemoteRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// remoteTool is a Capability backed by an MCP call.
type remoteTool struct {
	registry *RemoteRegistry
	def      tool.Tool
}

func (t remoteTool) Definition() tool.Tool { return t.def }

// Invoke calls the remote tool. A result flagged as an error by the server
// is returned as an error so it reaches the model as an error result.
func (t remoteTool) Invoke(ctx context.Context, input any) (any, error) {
	if input == nil {
		input = map[string]any{}
	}
	result, err := t.registry.client.CallTool(ctx, ToCallToolRequest(t.def.Name, input))
	if err != nil {
		return nil, fmt.Errorf("mcp: call %s: %w", t.def.Name, err)
	}
	text := ResultText(result)
	if result.IsError {
		if text == "" {
			text = "remote tool reported an error"
		}
		return nil, errors.New(text)
	}
	return text, nil
}
