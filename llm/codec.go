package llm

import (
	"encoding/json"
	"fmt"
)

// messageEnvelope is the stored form of a Message.
type messageEnvelope struct {
	Role              MessageRole      `json:"role"`
	Content           string           `json:"content,omitempty"`
	Attachments       []attachmentJSON `json:"attachments,omitempty"`
	ToolCalls         []toolCallJSON   `json:"tool_calls,omitempty"`
	Results           []toolResultJSON `json:"results,omitempty"`
	AdditionalContent map[string]any   `json:"additional_content,omitempty"`
	ProviderOptions   map[string]any   `json:"provider_options,omitempty"`
}

type attachmentJSON struct {
	Kind      AttachmentKind `json:"kind"`
	MediaType string         `json:"media_type,omitempty"`
	Data      string         `json:"data,omitempty"`
	URL       string         `json:"url,omitempty"`
	Title     string         `json:"title,omitempty"`
}

type toolCallJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolResultJSON struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	Args       map[string]any `json:"args,omitempty"`
	Result     any            `json:"result"`
}

// MarshalMessage encodes a message as JSON with a role discriminator.
func MarshalMessage(m Message) ([]byte, error) {
	env := messageEnvelope{Role: m.Role()}
	switch msg := m.(type) {
	case SystemMessage:
		env.Content = msg.Content
		env.ProviderOptions = msg.ProviderOptions
	case UserMessage:
		env.Content = msg.Content
		env.ProviderOptions = msg.ProviderOptions
		for _, a := range msg.Attachments {
			env.Attachments = append(env.Attachments, attachmentJSON(a))
		}
	case AssistantMessage:
		env.Content = msg.Content
		env.AdditionalContent = msg.AdditionalContent
		env.ProviderOptions = msg.ProviderOptions
		for _, tc := range msg.ToolCalls {
			env.ToolCalls = append(env.ToolCalls, toolCallJSON{ID: tc.ID, Name: tc.Name, Arguments: tc.ArgumentsJSON()})
		}
	case ToolResultMessage:
		for _, r := range msg.Results {
			env.Results = append(env.Results, toolResultJSON(r))
		}
	default:
		return nil, fmt.Errorf("unsupported message type %T", m)
	}
	return json.Marshal(env)
}

// UnmarshalMessage decodes a message produced by MarshalMessage.
func UnmarshalMessage(data []byte) (Message, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch env.Role {
	case RoleSystem:
		return SystemMessage{Content: env.Content, ProviderOptions: env.ProviderOptions}, nil
	case RoleUser:
		msg := UserMessage{Content: env.Content, ProviderOptions: env.ProviderOptions}
		for _, a := range env.Attachments {
			msg.Attachments = append(msg.Attachments, Attachment(a))
		}
		return msg, nil
	case RoleAssistant:
		msg := AssistantMessage{
			Content:           env.Content,
			AdditionalContent: env.AdditionalContent,
			ProviderOptions:   env.ProviderOptions,
		}
		for _, tc := range env.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Name, RawArguments: tc.Arguments})
		}
		return msg, nil
	case RoleTool:
		msg := ToolResultMessage{}
		for _, r := range env.Results {
			msg.Results = append(msg.Results, ToolResult(r))
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("unknown message role %q", env.Role)
	}
}
