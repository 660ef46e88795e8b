package llm

import (
	"encoding/json"
	"strings"
	"time"
)

// ToolSpec represents a tool definition that can be provided to an LLM.
type ToolSpec struct {
	Name        string
	Description string
	Schema      ToolSchema
}

// ToolSchema represents the JSON schema for a tool's input parameters.
type ToolSchema struct {
	Type        string
	Properties  map[string]any
	Required    []string
	ExtraFields map[string]any // For any additional schema fields
}

// Map renders the schema as a JSON schema object.
func (s ToolSchema) Map() map[string]any {
	out := make(map[string]any, len(s.ExtraFields)+3)
	for k, v := range s.ExtraFields {
		out[k] = v
	}
	typ := s.Type
	if typ == "" {
		typ = "object"
	}
	out["type"] = typ
	props := s.Properties
	if props == nil {
		props = map[string]any{}
	}
	out["properties"] = props
	if len(s.Required) > 0 {
		out["required"] = s.Required
	}
	return out
}

// Schema describes the object shape requested from a structured call.
type Schema struct {
	Name        string
	Description string
	Properties  map[string]any
	Required    []string
	Strict      bool
}

// Map renders the schema as a JSON schema object.
func (s Schema) Map() map[string]any {
	out := ToolSchema{Type: "object", Properties: s.Properties, Required: s.Required}.Map()
	if s.Strict {
		out["additionalProperties"] = false
	}
	return out
}

// JSON returns the schema as encoded JSON.
func (s Schema) JSON() json.RawMessage {
	b, err := json.Marshal(s.Map())
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return b
}

// ToolChoice steers whether and which tool the model calls.
// Values other than the constants name a specific tool.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = ""
	ToolChoiceRequired ToolChoice = "required"
	ToolChoiceNone     ToolChoice = "none"
)

// Request is the normalized request handed to a provider.
// It is built once per round-trip and never modified by providers.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	ToolChoice  ToolChoice
	MaxTokens   int64
	Temperature *float64
	TopP        *float64
	// Schema is only read by structured calls.
	Schema          *Schema
	ProviderOptions map[string]any
}

// ResponseMeta identifies a provider response.
type ResponseMeta struct {
	ID         string
	Model      string
	RateLimits []RateLimit
}

// RateLimit describes one rate-limit window reported by a provider.
type RateLimit struct {
	Name      string
	Limit     *int64
	Remaining *int64
	ResetsAt  *time.Time
}

// Response is the normalized provider response for a single round-trip.
type Response struct {
	Text            string
	ToolCalls       []ToolCall
	Usage           Usage
	FinishReason    FinishReason
	RawFinishReason string
	Meta            ResponseMeta
	// AdditionalContent holds provider extras such as citations.
	AdditionalContent map[string]any
	// Structured is populated by structured calls.
	Structured map[string]any
}

// EmbeddingsRequest asks a provider to embed one or more inputs.
type EmbeddingsRequest struct {
	Model           string
	Inputs          []string
	ProviderOptions map[string]any
}

// EmbeddingsResponse holds one vector per input, in input order.
type EmbeddingsResponse struct {
	Embeddings [][]float64
	Usage      EmbeddingsUsage
	Meta       ResponseMeta
}

// EmbeddingsUsage represents token usage of an embeddings call.
type EmbeddingsUsage struct {
	Tokens int64
}

// DecodeStructured parses the JSON object a model returned for a structured call.
// Markdown code fences around the object are tolerated.
func DecodeStructured(text string) (map[string]any, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OptionString returns a string provider option, or def when unset.
func OptionString(opts map[string]any, key, def string) string {
	if v, ok := opts[key].(string); ok && v != "" {
		return v
	}
	return def
}

// StructuredInstruction tells a model without native schema support which
// JSON object to produce.
func StructuredInstruction(s *Schema) string {
	if s == nil {
		return ""
	}
	return "Respond only with a JSON object that matches this JSON schema, without any other text:\n" + string(s.JSON())
}

// ParseStructured fills resp.Structured from resp.Text. Responses that stop
// to call tools carry no object yet and are left alone.
func ParseStructured(provider string, resp *Response) error {
	if resp.FinishReason == FinishReasonToolCalls || resp.Structured != nil {
		return nil
	}
	obj, err := DecodeStructured(resp.Text)
	if err != nil {
		return NewResponseError(provider, 0, "", "structured output is not a JSON object", err)
	}
	resp.Structured = obj
	return nil
}

// OptionInt returns an integer provider option, or def when unset.
func OptionInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
