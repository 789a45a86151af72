package main

import (
	"github.com/spf13/cobra"

	"github.com/spetersoncode/openagent/mcp"
	"github.com/spetersoncode/openagent/tool"
)

var mcpServeCmd = &cobra.Command{
	Use:   "mcp-serve",
	Short: "Expose the built-in tools as an MCP server over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := tool.NewRegistry().Add(tool.Builtins()...)
		if len(mcpAllowHosts) > 0 {
			registry.Add(tool.HTTPRequest(tool.WithAllowedHosts(mcpAllowHosts...)))
		}
		log.Info().Strs("tools", registry.Names()).Msg("serving MCP on stdio")
		return mcp.ServeStdio(registry, mcp.WithName("openagent"), mcp.WithVersion(Version))
	},
}

var mcpAllowHosts []string

func init() {
	mcpServeCmd.Flags().StringSliceVar(&mcpAllowHosts, "allow-host", nil, "Enable http_request for these hosts (repeatable)")
}
