package ollama

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/ollama/ollama/api"
	"github.com/samber/lo"
)

// FinishReasons maps Ollama done reasons. Ollama reports "stop" for tool
// calls as well; FinishReason corrects that from the message content.
var FinishReasons = llm.FinishReasonMap{
	"stop":   llm.FinishReasonStop,
	"length": llm.FinishReasonLength,
	"load":   llm.FinishReasonOther,
	"unload": llm.FinishReasonOther,
}

// FinishReason maps a done reason, reporting ToolCalls when the final
// message requested tools.
func FinishReason(doneReason string, hasToolCalls bool) llm.FinishReason {
	if hasToolCalls {
		return llm.FinishReasonToolCalls
	}
	return FinishReasons.Lookup(doneReason)
}

// coerceArguments converts argument values to the types declared in the
// tool schema. Local models often send numbers and booleans as strings and
// reject their own echoed calls when the types disagree.
func coerceArguments(toolName string, args map[string]any, schema llm.ToolSchema) (api.ToolCallFunctionArguments, error) {
	result := make(api.ToolCallFunctionArguments, len(args))
	for k, v := range args {
		prop, ok := schema.Properties[k]
		if !ok {
			result[k] = v
			continue
		}
		converted, err := convertValueToType(v, propertyType(prop))
		if err != nil {
			return nil, fmt.Errorf("argument %q of tool %s: %w", k, toolName, err)
		}
		result[k] = converted
	}
	return result, nil
}

func propertyType(prop any) string {
	if m, ok := prop.(map[string]any); ok {
		if t, ok := m["type"].(string); ok {
			return t
		}
	}
	return ""
}

func convertValueToType(v any, targetType string) (any, error) {
	switch targetType {
	case "integer":
		return convertToInteger(v)
	case "number":
		return convertToNumber(v)
	case "boolean":
		return convertToBoolean(v)
	case "string":
		if s, ok := v.(string); ok || v == nil {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil
	}
	return v, nil
}

func convertToInteger(v any) (any, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to integer", val)
		}
		return i, nil
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func convertToNumber(v any) (any, error) {
	switch val := v.(type) {
	case float64:
		return val, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %q to number", val)
		}
		return f, nil
	}
	return nil, fmt.Errorf("cannot convert %T to number", v)
}

func convertToBoolean(v any) (any, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("cannot convert %q to boolean", val)
	case int:
		return val != 0, nil
	case float64:
		return val != 0, nil
	}
	return nil, fmt.Errorf("cannot convert %T to boolean", v)
}

// ToOllamaMessages converts llm.Messages to Ollama chat messages. Tool call
// arguments echoed back from history are coerced to the types in specs.
func ToOllamaMessages(msgs []llm.Message, specs []llm.ToolSpec) ([]api.Message, error) {
	specsByName := lo.KeyBy(specs, func(s llm.ToolSpec) string { return s.Name })

	result := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case llm.SystemMessage:
			result = append(result, api.Message{Role: "system", Content: m.Content})
		case llm.UserMessage:
			images, err := toImages(m.Attachments)
			if err != nil {
				return nil, err
			}
			result = append(result, api.Message{Role: "user", Content: m.Content, Images: images})
		case llm.AssistantMessage:
			calls := make([]api.ToolCall, 0, len(m.ToolCalls))
			for i, c := range m.ToolCalls {
				args, err := c.DecodeArguments()
				if err != nil {
					return nil, llm.NewInvalidRequestError(llm.ProviderOllama, "%v", err)
				}
				converted := api.ToolCallFunctionArguments(args)
				if spec, ok := specsByName[c.Name]; ok {
					if converted, err = coerceArguments(c.Name, args, spec.Schema); err != nil {
						return nil, llm.NewInvalidRequestError(llm.ProviderOllama, "%v", err)
					}
				}
				calls = append(calls, api.ToolCall{Function: api.ToolCallFunction{
					Index:     i,
					Name:      c.Name,
					Arguments: converted,
				}})
			}
			result = append(result, api.Message{Role: "assistant", Content: m.Content, ToolCalls: calls})
		case llm.ToolResultMessage:
			for _, r := range m.Results {
				result = append(result, api.Message{Role: "tool", Content: r.ResultString(), ToolName: r.ToolName})
			}
		default:
			return nil, llm.NewInvalidRequestError(llm.ProviderOllama, "unsupported message type %T", msg)
		}
	}
	return result, nil
}

func toImages(attachments []llm.Attachment) ([]api.ImageData, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	images := make([]api.ImageData, 0, len(attachments))
	for _, a := range attachments {
		if a.Kind != llm.AttachmentImage {
			return nil, llm.NewInvalidRequestError(llm.ProviderOllama, "unsupported attachment kind %s", a.Kind)
		}
		if a.IsURL() {
			return nil, llm.NewInvalidRequestError(llm.ProviderOllama, "image URLs are not supported, send base64 data")
		}
		data, err := base64.StdEncoding.DecodeString(a.Data)
		if err != nil {
			return nil, llm.NewInvalidRequestError(llm.ProviderOllama, "decode image: %v", err)
		}
		images = append(images, api.ImageData(data))
	}
	return images, nil
}

// ToOllamaTools converts llm.ToolSpecs to Ollama function definitions.
func ToOllamaTools(specs []llm.ToolSpec) api.Tools {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) api.Tool {
		properties := make(map[string]api.ToolProperty, len(spec.Schema.Properties))
		for name, v := range spec.Schema.Properties {
			prop := api.ToolProperty{Type: []string{"string"}}
			if m, ok := v.(map[string]any); ok {
				if t := propertyType(m); t != "" {
					prop.Type = []string{t}
				}
				if d, ok := m["description"].(string); ok {
					prop.Description = d
				}
				if enum, ok := m["enum"].([]any); ok {
					prop.Enum = enum
				}
				if items, ok := m["items"]; ok {
					prop.Items = items
				}
			}
			properties[name] = prop
		}

		typ := spec.Schema.Type
		if typ == "" {
			typ = "object"
		}
		fn := api.ToolFunction{Name: spec.Name, Description: spec.Description}
		fn.Parameters.Type = typ
		fn.Parameters.Required = spec.Schema.Required
		fn.Parameters.Properties = properties
		return api.Tool{Type: "function", Function: fn}
	})
}

// FromOllamaToolCalls converts returned tool calls. Ollama assigns no call
// IDs, so each call is named after its position in the response, starting
// at offset.
func FromOllamaToolCalls(calls []api.ToolCall, offset int) []llm.ToolCall {
	return lo.Map(calls, func(c api.ToolCall, i int) llm.ToolCall {
		args := map[string]any(c.Function.Arguments)
		if args == nil {
			args = map[string]any{}
		}
		return llm.ToolCall{
			ID:        fmt.Sprintf("call_%d", offset+i),
			Name:      c.Function.Name,
			Arguments: args,
		}
	})
}

// FromUsage converts the eval counters of a final response.
func FromUsage(m api.Metrics) llm.Usage {
	return llm.Usage{
		PromptTokens:     int64(m.PromptEvalCount),
		CompletionTokens: int64(m.EvalCount),
	}
}
