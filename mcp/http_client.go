package mcp

import (
	"context"
	"fmt"
	"net/url"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// HTTPClient implements Client over the streamable HTTP transport.
type HTTPClient struct {
	session
	baseURL string
}

// NewHTTPClient creates a new HTTP MCP client.
func NewHTTPClient(logger zerolog.Logger, baseURL string) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required for HTTP MCP client")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}

	mcpClient, err := client.NewStreamableHttpClient(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP MCP client: %w", err)
	}

	return &HTTPClient{
		session: session{
			client: mcpClient,
			logger: logger.With().Str("component", "httpMCPClient").Str("base_url", baseURL).Logger(),
		},
		baseURL: baseURL,
	}, nil
}

// Start opens the transport and performs the initialize handshake, falling
// back to the older stable protocol version when the server rejects the
// latest one.
func (c *HTTPClient) Start(ctx context.Context) error {
	if err := c.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start HTTP MCP client: %w", err)
	}

	var lastErr error
	for _, protocolVersion := range []string{mcp.LATEST_PROTOCOL_VERSION, "2024-11-05"} {
		if err := c.initialize(ctx, protocolVersion); err != nil {
			lastErr = err
			c.logger.Warn().Str("protocol_version", protocolVersion).Err(err).Msg("Initialize failed, trying next protocol version")
			continue
		}
		c.logger.Info().Str("protocol_version", protocolVersion).Msg("MCP client started")
		return nil
	}
	return fmt.Errorf("failed to initialize HTTP MCP client: %w", lastErr)
}

var _ Client = (*HTTPClient)(nil)
