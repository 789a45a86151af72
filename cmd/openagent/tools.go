package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spetersoncode/openagent/config"
	"github.com/spetersoncode/openagent/hook"
	"github.com/spetersoncode/openagent/mcp"
	"github.com/spetersoncode/openagent/session"
	"github.com/spetersoncode/openagent/tool"
)

// Session flags shared by query, chat and batch.
var (
	systemPrompt string
	manualTools  bool
	noTools      bool
	denyTools    []string
	allowHosts   []string
	mcpServers   []string
)

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&systemPrompt, "system", "", "System prompt")
	cmd.Flags().BoolVar(&noTools, "no-tools", false, "Do not offer any tools")
	cmd.Flags().StringSliceVar(&denyTools, "deny-tool", nil, "Block a tool by name (repeatable)")
	cmd.Flags().StringSliceVar(&allowHosts, "allow-host", nil, "Enable http_request for these hosts (repeatable)")
	cmd.Flags().StringSliceVar(&mcpServers, "mcp", nil, "Add tools from an MCP server command line (repeatable)")
}

// toolset bundles the executor and the MCP connections it owns.
type toolset struct {
	exec    tool.Executor
	remotes []*mcp.RemoteRegistry
}

func (ts *toolset) Close() {
	for _, r := range ts.remotes {
		_ = r.Close()
	}
}

func buildTools(ctx context.Context) (*toolset, error) {
	ts := &toolset{}
	if noTools {
		return ts, nil
	}

	registry := tool.NewRegistry().Add(tool.Builtins()...)
	if len(allowHosts) > 0 {
		registry.Add(tool.HTTPRequest(tool.WithAllowedHosts(allowHosts...)))
	}
	execs := []tool.Executor{registry}

	for _, line := range mcpServers {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		remote, err := mcp.NewRemoteRegistry(ctx, fields[0], nil, fields[1:]...)
		if err != nil {
			ts.Close()
			return nil, fmt.Errorf("connect %q: %w", line, err)
		}
		log.Info().Str("server", fields[0]).Strs("tools", remote.Names()).Msg("connected MCP server")
		ts.remotes = append(ts.remotes, remote)
		execs = append(execs, remote)
	}
	ts.exec = tool.Chain(execs...)
	return ts, nil
}

func buildHooks() *hook.Pipeline {
	p := hook.New()
	if len(denyTools) > 0 {
		p.PreToolUse(hook.DenyTools("tool disabled by operator", denyTools...))
	}
	return p
}

// newSession builds a session from the loaded configuration and flags.
func newSession(c config.Config, ts *toolset, extra ...session.Option) (*session.Session, error) {
	if systemPrompt != "" {
		c.SystemPrompt = systemPrompt
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sc := c.Session()
	if manualTools {
		sc.AutoExecute = false
	}

	opts := append(c.SessionOptions(),
		session.WithLogger(log),
		session.WithHooks(buildHooks()),
	)
	if ts != nil && ts.exec != nil {
		opts = append(opts, session.WithTools(ts.exec))
	}
	return session.New(sc, append(opts, extra...)...)
}
