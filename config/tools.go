package config

import (
	"context"
	"errors"
	"sort"

	"github.com/echolabsdev/prism-sub001/mcp"
	"github.com/echolabsdev/prism-sub001/tools"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ToolSet is the tool registry built from configuration and the MCP
// connections backing it.
type ToolSet struct {
	Registry *tools.Registry
	clients  []mcp.Client
}

// Close closes every MCP connection.
func (s *ToolSet) Close() error {
	errs := lo.Map(s.clients, func(c mcp.Client, _ int) error { return c.Close() })
	return errors.Join(errs...)
}

// mcpConnect is swapped in tests.
var mcpConnect = connectMCP

// BuildTools registers the workspace filesystem tools, when a workspace is
// configured, and the tools of every MCP server. A server that fails to
// start is logged and skipped.
func BuildTools(ctx context.Context, cfg *Config, logger zerolog.Logger) (*ToolSet, error) {
	set := &ToolSet{Registry: tools.NewRegistry(logger)}

	if cfg.Workspace != "" {
		if err := set.Registry.RegisterAll(tools.WorkspaceTools(cfg.Workspace)); err != nil {
			return nil, err
		}
	}

	names := mcp.NewNameAdapter()
	serverNames := lo.Keys(cfg.MCPServers)
	sort.Strings(serverNames)
	for _, server := range serverNames {
		sc := cfg.MCPServers[server]
		if sc == nil {
			continue
		}
		log := logger.With().Str("mcp_server", server).Logger()

		client, err := mcpConnect(ctx, sc, log)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to start MCP server, skipping")
			continue
		}
		n, err := mcp.Register(ctx, set.Registry, server, client, names)
		if err != nil {
			_ = client.Close()
			log.Warn().Err(err).Msg("Failed to register MCP tools, skipping")
			continue
		}
		set.clients = append(set.clients, client)
		log.Info().Int("tools", n).Msg("MCP server connected")
	}
	return set, nil
}

func connectMCP(ctx context.Context, sc *MCPServerConfig, logger zerolog.Logger) (mcp.Client, error) {
	var (
		client mcp.Client
		err    error
	)
	switch {
	case sc.URL != "":
		client, err = mcp.NewHTTPClient(logger, sc.URL)
	case sc.Command != "":
		client, err = mcp.NewStdioClient(logger, sc.Command, sc.Args, sc.Env)
	default:
		return nil, errors.New("mcp server needs a url or a command")
	}
	if err != nil {
		return nil, err
	}
	if err := client.Start(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
