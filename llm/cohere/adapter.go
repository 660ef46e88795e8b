package cohere

import (
	"encoding/json"
	"strings"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// FinishReasons maps Cohere v2 finish reasons.
var FinishReasons = llm.FinishReasonMap{
	"COMPLETE":      llm.FinishReasonStop,
	"STOP_SEQUENCE": llm.FinishReasonStop,
	"MAX_TOKENS":    llm.FinishReasonLength,
	"TOOL_CALL":     llm.FinishReasonToolCalls,
	"ERROR":         llm.FinishReasonError,
	"TIMEOUT":       llm.FinishReasonError,
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitempty"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatToolFunction `json:"function"`
}

type chatToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type toolDefinition struct {
	Type     string             `json:"type"`
	Function functionDefinition `json:"function"`
}

type functionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema map[string]any `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []chatMessage    `json:"messages"`
	Tools          []toolDefinition `json:"tools,omitempty"`
	ToolChoice     string           `json:"tool_choice,omitempty"`
	MaxTokens      int64            `json:"max_tokens,omitempty"`
	Temperature    *float64         `json:"temperature,omitempty"`
	P              *float64         `json:"p,omitempty"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

// toMessages converts the conversation. Each tool result becomes its own
// tool message, and user images become image_url content parts.
func toMessages(msgs []llm.Message) ([]chatMessage, error) {
	out := make([]chatMessage, 0, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case llm.SystemMessage:
			out = append(out, chatMessage{Role: "system", Content: m.Content})
		case llm.UserMessage:
			if len(m.Attachments) == 0 {
				out = append(out, chatMessage{Role: "user", Content: m.Content})
				continue
			}
			parts := make([]contentPart, 0, len(m.Attachments)+1)
			if m.Content != "" {
				parts = append(parts, contentPart{Type: "text", Text: m.Content})
			}
			for _, a := range m.Attachments {
				if a.Kind != llm.AttachmentImage {
					return nil, llm.NewInvalidRequestError(llm.ProviderCohere, "unsupported attachment kind %s", a.Kind)
				}
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: a.DataURL()}})
			}
			out = append(out, chatMessage{Role: "user", Content: parts})
		case llm.AssistantMessage:
			cm := chatMessage{Role: "assistant"}
			if m.Content != "" {
				cm.Content = m.Content
			}
			cm.ToolCalls = lo.Map(m.ToolCalls, func(c llm.ToolCall, _ int) chatToolCall {
				return chatToolCall{ID: c.ID, Type: "function", Function: chatToolFunction{Name: c.Name, Arguments: c.ArgumentsJSON()}}
			})
			out = append(out, cm)
		case llm.ToolResultMessage:
			for _, r := range m.Results {
				out = append(out, chatMessage{Role: "tool", ToolCallID: r.ToolCallID, Content: r.ResultString()})
			}
		default:
			return nil, llm.NewInvalidRequestError(llm.ProviderCohere, "unsupported message type %T", msg)
		}
	}
	return out, nil
}

// toTools converts tool specs. Cohere cannot force a specific tool, so a
// named choice narrows the declared tools to that one and requires a call.
func toTools(specs []llm.ToolSpec, choice llm.ToolChoice) ([]toolDefinition, string) {
	toolChoice := ""
	switch choice {
	case llm.ToolChoiceAuto:
	case llm.ToolChoiceRequired:
		toolChoice = "REQUIRED"
	case llm.ToolChoiceNone:
		toolChoice = "NONE"
	default:
		specs = lo.Filter(specs, func(s llm.ToolSpec, _ int) bool { return s.Name == string(choice) })
		toolChoice = "REQUIRED"
	}
	defs := lo.Map(specs, func(s llm.ToolSpec, _ int) toolDefinition {
		return toolDefinition{Type: "function", Function: functionDefinition{Name: s.Name, Description: s.Description, Parameters: s.Schema.Map()}}
	})
	return defs, toolChoice
}

// parseChatResponse normalizes a v2/chat payload.
func parseChatResponse(body []byte) *llm.Response {
	doc := gjson.ParseBytes(body)

	var text strings.Builder
	doc.Get("message.content").ForEach(func(_, c gjson.Result) bool {
		if c.Get("type").String() == "text" {
			text.WriteString(c.Get("text").String())
		}
		return true
	})

	raw := doc.Get("finish_reason").String()
	resp := &llm.Response{
		Text:            text.String(),
		FinishReason:    FinishReasons.Lookup(raw),
		RawFinishReason: raw,
		Usage:           usageFrom(doc),
		Meta:            llm.ResponseMeta{ID: doc.Get("id").String()},
	}
	doc.Get("message.tool_calls").ForEach(func(_, c gjson.Result) bool {
		resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
			ID:           c.Get("id").String(),
			Name:         c.Get("function.name").String(),
			RawArguments: c.Get("function.arguments").String(),
		})
		return true
	})

	extra := map[string]any{}
	if plan := doc.Get("message.tool_plan").String(); plan != "" {
		extra["tool_plan"] = plan
	}
	if citations := doc.Get("message.citations"); citations.IsArray() && len(citations.Array()) > 0 {
		var decoded []any
		if err := json.Unmarshal([]byte(citations.Raw), &decoded); err == nil {
			extra["citations"] = decoded
		}
	}
	if len(extra) > 0 {
		resp.AdditionalContent = extra
	}
	return resp
}

// usageFrom prefers billed units and falls back to raw token counts.
func usageFrom(doc gjson.Result) llm.Usage {
	in := doc.Get("usage.billed_units.input_tokens")
	out := doc.Get("usage.billed_units.output_tokens")
	if !in.Exists() && !out.Exists() {
		in = doc.Get("usage.tokens.input_tokens")
		out = doc.Get("usage.tokens.output_tokens")
	}
	return llm.Usage{PromptTokens: in.Int(), CompletionTokens: out.Int()}
}
