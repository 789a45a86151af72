// Package mcp connects the tool layer to the Model Context Protocol.
//
// The integration works both ways:
//
//   - Server: expose a [tool.Executor], typically a *tool.Registry, to MCP
//     clients with [NewServer] or [ServeStdio].
//   - Client: use the tools of a remote MCP server through [RemoteRegistry],
//     which implements [tool.Executor] and plugs into session.WithTools.
//
// # Consuming MCP Servers
//
//	remote, err := mcp.NewRemoteRegistry(ctx, "./my-mcp-server", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer remote.Close()
//
//	s, err := session.New(cfg, session.WithTools(remote))
package mcp

import (
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	ai "github.com/spetersoncode/openagent"
	"github.com/spetersoncode/openagent/tool"
)

// emptySchema is advertised for tools declared without parameters.
var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// ToMCPTool converts a tool definition. Its JSON schema becomes the MCP
// tool's RawInputSchema.
func ToMCPTool(t tool.Tool) mcp.Tool {
	schema := t.Parameters
	if len(schema) == 0 {
		schema = emptySchema
	}
	return mcp.NewToolWithRawSchema(t.Name, t.Description, schema)
}

// ToMCPTools converts a slice of tool definitions.
func ToMCPTools(tools []tool.Tool) []mcp.Tool {
	result := make([]mcp.Tool, len(tools))
	for i, t := range tools {
		result[i] = ToMCPTool(t)
	}
	return result
}

// FromMCPTool converts an MCP tool into a definition the model can see.
// RawInputSchema is preferred over the structured InputSchema.
func FromMCPTool(t mcp.Tool) tool.Tool {
	var schema json.RawMessage
	if len(t.RawInputSchema) > 0 {
		schema = t.RawInputSchema
	} else if data, err := json.Marshal(t.InputSchema); err == nil {
		schema = data
	}
	return tool.Tool{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  schema,
	}
}

// FromMCPTools converts a slice of MCP tools.
func FromMCPTools(tools []mcp.Tool) []tool.Tool {
	result := make([]tool.Tool, len(tools))
	for i, t := range tools {
		result[i] = FromMCPTool(t)
	}
	return result
}

// ToCallToolRequest builds the MCP request for a tool invocation.
func ToCallToolRequest(name string, input any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: input,
		},
	}
}

// ResultText flattens an MCP result into text. Text parts are joined by
// newlines; other parts and structured content are JSON encoded.
func ResultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	var parts []string
	for _, c := range result.Content {
		switch content := c.(type) {
		case mcp.TextContent:
			parts = append(parts, content.Text)
		case *mcp.TextContent:
			parts = append(parts, content.Text)
		default:
			if data, err := json.Marshal(content); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	if result.StructuredContent != nil {
		if data, err := json.Marshal(result.StructuredContent); err == nil {
			parts = append(parts, string(data))
		}
	}
	return strings.Join(parts, "\n")
}

// ToMCPResult converts a tool result block into an MCP result.
func ToMCPResult(result ai.ToolResultBlock) *mcp.CallToolResult {
	if result.IsError {
		return mcp.NewToolResultError(result.ContentString())
	}
	return mcp.NewToolResultText(result.ContentString())
}
