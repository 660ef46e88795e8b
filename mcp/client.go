// Package mcp exposes the tools of Model Context Protocol servers as
// caller-side tools.
package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	clientName    = "prism"
	clientVersion = "1.0.0"
)

// ToolDefinition represents an MCP tool definition.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// CallResult is the text content returned by a tool call.
type CallResult struct {
	Texts   []string
	IsError bool
}

// Text joins the text content of the result.
func (r *CallResult) Text() string {
	return strings.Join(r.Texts, "\n")
}

// Client is the interface for interacting with MCP servers.
type Client interface {
	// Start initializes the connection.
	Start(ctx context.Context) error

	// ListTools returns all tools available from the server.
	ListTools(ctx context.Context) ([]ToolDefinition, error)

	// CallTool invokes a tool by its original server-side name.
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)

	// Close closes the connection to the server.
	Close() error
}

// session holds the protocol operations shared by every transport.
type session struct {
	client *client.Client
	logger zerolog.Logger
}

func (s *session) initialize(ctx context.Context, protocolVersion string) error {
	_, err := s.client.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: clientVersion,
			},
		},
	})
	return err
}

// ListTools implements Client.ListTools.
func (s *session) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}
	s.logger.Debug().Int("tool_count", len(result.Tools)).Msg("Listed MCP tools")

	return lo.Map(result.Tools, func(tool mcp.Tool, _ int) ToolDefinition {
		inputSchema := map[string]any{"type": tool.InputSchema.Type}
		if tool.InputSchema.Properties != nil {
			inputSchema["properties"] = tool.InputSchema.Properties
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema["required"] = tool.InputSchema.Required
		}
		if len(tool.InputSchema.Defs) > 0 {
			inputSchema["$defs"] = tool.InputSchema.Defs
		}
		return ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: inputSchema,
		}
	}), nil
}

// CallTool implements Client.CallTool.
func (s *session) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	result, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke tool %s: %w", name, err)
	}

	out := &CallResult{IsError: result.IsError}
	for _, content := range result.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			out.Texts = append(out.Texts, textContent.Text)
		} else if text := mcp.GetTextFromContent(content); text != "" {
			out.Texts = append(out.Texts, text)
		}
	}
	return out, nil
}

// Close implements Client.Close.
func (s *session) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
