package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/tools"
	"github.com/samber/lo"
)

// NameAdapter handles mapping between MCP tool names (which may contain dots)
// and safe tool names (which several provider APIs reject).
type NameAdapter struct {
	mu             sync.RWMutex
	safeToOriginal map[string]string
	originalToSafe map[string]string
}

// NewNameAdapter creates a new name adapter.
func NewNameAdapter() *NameAdapter {
	return &NameAdapter{
		safeToOriginal: make(map[string]string),
		originalToSafe: make(map[string]string),
	}
}

// ToSafeName converts an MCP tool name to a safe name by replacing dots with underscores.
// Example: "gmail.messages.list" -> "gmail_messages_list"
func ToSafeName(original string) string {
	return strings.ReplaceAll(original, ".", "_")
}

// ToOriginalName converts a safe name back to the original MCP tool name.
func (a *NameAdapter) ToOriginalName(safe string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	original, ok := a.safeToOriginal[safe]
	return original, ok
}

// RegisterMapping registers a bidirectional mapping between original and safe names.
func (a *NameAdapter) RegisterMapping(original, safe string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.originalToSafe[original] = safe
	a.safeToOriginal[safe] = original
}

// GetSafeName returns the safe name for an original name, creating the mapping if needed.
func (a *NameAdapter) GetSafeName(original string) string {
	a.mu.RLock()
	safe, ok := a.originalToSafe[original]
	a.mu.RUnlock()
	if ok {
		return safe
	}
	safe = ToSafeName(original)
	a.RegisterMapping(original, safe)
	return safe
}

// Tools lists the server's tools as caller-side tools. Each tool keeps the
// server's input schema and calls back into c under its original name. A
// result the server flags as an error is returned as a Go error, which the
// invoker reports as a tool execution failure.
func Tools(ctx context.Context, c Client, names *NameAdapter) ([]tools.Tool, error) {
	if names == nil {
		names = NewNameAdapter()
	}
	defs, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(defs, func(def ToolDefinition, _ int) tools.Tool {
		original := def.Name
		schema := schemaFromDefinition(def.InputSchema)
		return tools.Tool{
			Name:        names.GetSafeName(original),
			Description: def.Description,
			InputSchema: &schema,
			Fn: func(ctx context.Context, args map[string]any) (any, error) {
				res, err := c.CallTool(ctx, original, args)
				if err != nil {
					return nil, err
				}
				if res.IsError {
					msg := res.Text()
					if msg == "" {
						msg = "tool reported an error"
					}
					return nil, errors.New(msg)
				}
				return res.Text(), nil
			},
		}
	}), nil
}

// Register adds every tool of the named server to registry.
func Register(ctx context.Context, registry *tools.Registry, server string, c Client, names *NameAdapter) (int, error) {
	serverTools, err := Tools(ctx, c, names)
	if err != nil {
		return 0, fmt.Errorf("list tools of %s: %w", server, err)
	}
	for _, t := range serverTools {
		if err := registry.RegisterFrom(server, t); err != nil {
			return 0, fmt.Errorf("register tool of %s: %w", server, err)
		}
	}
	return len(serverTools), nil
}

func schemaFromDefinition(in map[string]any) llm.ToolSchema {
	schema := llm.ToolSchema{Type: "object"}
	for k, v := range in {
		switch k {
		case "type":
			if s, ok := v.(string); ok && s != "" {
				schema.Type = s
			}
		case "properties":
			if props, ok := v.(map[string]any); ok {
				schema.Properties = props
			}
		case "required":
			switch req := v.(type) {
			case []string:
				schema.Required = req
			case []any:
				schema.Required = lo.FilterMap(req, func(r any, _ int) (string, bool) {
					s, ok := r.(string)
					return s, ok
				})
			}
		default:
			if schema.ExtraFields == nil {
				schema.ExtraFields = map[string]any{}
			}
			schema.ExtraFields[k] = v
		}
	}
	return schema
}
