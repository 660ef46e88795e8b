package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// StdioClient implements Client for a server run as a subprocess.
type StdioClient struct {
	session
	command string
}

// NewStdioClient spawns command and connects to it over stdio. A command
// containing spaces is split into the executable and leading arguments.
func NewStdioClient(logger zerolog.Logger, command string, args, env []string) (*StdioClient, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("command is required for STDIO MCP client")
	}
	cmd := parts[0]
	cmdArgs := append(append([]string{}, parts[1:]...), args...)

	mcpClient, err := client.NewStdioMCPClient(cmd, env, cmdArgs...)
	if err != nil {
		return nil, fmt.Errorf("failed to create stdio MCP client: %w", err)
	}

	return &StdioClient{
		session: session{
			client: mcpClient,
			logger: logger.With().Str("component", "stdioMCPClient").Str("command", cmd).Logger(),
		},
		command: cmd,
	}, nil
}

// Start performs the initialize handshake. The subprocess is already
// running, and a server that is still booting can hang the handshake, so
// it is bounded by ctx.
func (c *StdioClient) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before initialize: %w", err)
	}

	initDone := make(chan error, 1)
	go func() {
		initDone <- c.initialize(ctx, mcp.LATEST_PROTOCOL_VERSION)
	}()

	select {
	case err := <-initDone:
		if err != nil {
			return fmt.Errorf("failed to initialize stdio MCP client %s: %w", c.command, err)
		}
	case <-ctx.Done():
		c.logger.Error().Err(ctx.Err()).Msg("Timed out waiting for MCP server to initialize")
		return fmt.Errorf("initialize %s: %w", c.command, ctx.Err())
	}

	c.logger.Info().Msg("MCP client started")
	return nil
}

var _ Client = (*StdioClient)(nil)
