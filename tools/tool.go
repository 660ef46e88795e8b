// Package tools declares caller-defined tools and resolves model tool calls
// against them.
package tools

import (
	"context"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/samber/lo"
)

// Func is the callable behind a tool. It returns a string, a number or a
// mapping; returning an error marks the call as failed.
type Func func(ctx context.Context, args map[string]any) (any, error)

// ParameterType is the JSON schema type tag of a parameter.
type ParameterType string

const (
	TypeString  ParameterType = "string"
	TypeNumber  ParameterType = "number"
	TypeInteger ParameterType = "integer"
	TypeBoolean ParameterType = "boolean"
	TypeObject  ParameterType = "object"
	TypeArray   ParameterType = "array"
)

// Parameter declares one tool argument.
type Parameter struct {
	Name        string
	Type        ParameterType
	Description string
	Required    bool
	Enum        []string
	// Items describes array elements.
	Items *Parameter
	// Properties describes nested object fields.
	Properties []Parameter
}

// Schema renders the parameter as a JSON schema property.
func (p Parameter) Schema() map[string]any {
	s := map[string]any{"type": string(p.Type)}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		s["enum"] = p.Enum
	}
	if p.Items != nil {
		s["items"] = p.Items.Schema()
	}
	if p.Type == TypeObject {
		props, required := objectSchema(p.Properties)
		s["properties"] = props
		if len(required) > 0 {
			s["required"] = required
		}
	}
	return s
}

func objectSchema(params []Parameter) (map[string]any, []string) {
	props := make(map[string]any, len(params))
	for _, p := range params {
		props[p.Name] = p.Schema()
	}
	required := lo.FilterMap(params, func(p Parameter, _ int) (string, bool) {
		return p.Name, p.Required
	})
	return props, required
}

// Tool is a named, described callable with declared parameters.
// Tools are values; the With* methods return modified copies.
type Tool struct {
	Name        string
	Description string
	Parameters  []Parameter
	// InputSchema, when set, is declared instead of the schema built from
	// Parameters. Tools discovered over MCP arrive with one.
	InputSchema *llm.ToolSchema
	Fn          Func
}

// New creates a tool with no parameters.
func New(name, description string) Tool {
	return Tool{Name: name, Description: description}
}

// WithParameter returns a copy of t with an extra parameter.
func (t Tool) WithParameter(p Parameter) Tool {
	t.Parameters = append(append([]Parameter(nil), t.Parameters...), p)
	return t
}

// WithString adds a string parameter.
func (t Tool) WithString(name, description string, required bool) Tool {
	return t.WithParameter(Parameter{Name: name, Type: TypeString, Description: description, Required: required})
}

// WithNumber adds a number parameter.
func (t Tool) WithNumber(name, description string, required bool) Tool {
	return t.WithParameter(Parameter{Name: name, Type: TypeNumber, Description: description, Required: required})
}

// WithBoolean adds a boolean parameter.
func (t Tool) WithBoolean(name, description string, required bool) Tool {
	return t.WithParameter(Parameter{Name: name, Type: TypeBoolean, Description: description, Required: required})
}

// WithEnum adds a string parameter restricted to values.
func (t Tool) WithEnum(name, description string, values []string, required bool) Tool {
	return t.WithParameter(Parameter{Name: name, Type: TypeString, Description: description, Enum: values, Required: required})
}

// Using returns a copy of t bound to fn.
func (t Tool) Using(fn Func) Tool {
	t.Fn = fn
	return t
}

// Spec returns the declaration sent to providers.
func (t Tool) Spec() llm.ToolSpec {
	if t.InputSchema != nil {
		return llm.ToolSpec{Name: t.Name, Description: t.Description, Schema: *t.InputSchema}
	}
	props, required := objectSchema(t.Parameters)
	return llm.ToolSpec{
		Name:        t.Name,
		Description: t.Description,
		Schema: llm.ToolSchema{
			Type:       "object",
			Properties: props,
			Required:   required,
		},
	}
}

// Specs returns the declarations of a tool set, in order.
func Specs(tools []Tool) []llm.ToolSpec {
	return lo.Map(tools, func(t Tool, _ int) llm.ToolSpec { return t.Spec() })
}
