package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/samber/lo"
)

type chatCompletionRequest struct {
	Model               string         `json:"model"`
	Messages            []chatMessage  `json:"messages"`
	MaxTokens           *int64         `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int64         `json:"max_completion_tokens,omitempty"`
	Temperature         *float64       `json:"temperature,omitempty"`
	TopP                *float64       `json:"top_p,omitempty"`
	Stream              bool           `json:"stream,omitempty"`
	User                string         `json:"user,omitempty"`
	Metadata            map[string]any `json:"metadata,omitempty"`
}

type chatMessage struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []chatToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
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
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type responseMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type choice struct {
	Index        int              `json:"index"`
	Message      *responseMessage `json:"message,omitempty"`
	Delta        *responseMessage `json:"delta,omitempty"`
	FinishReason string           `json:"finish_reason"`
}

type usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type chatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   *usage   `json:"usage,omitempty"`
}

type model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string  `json:"object"`
	Data   []model `json:"data"`
}

var finishReasons = map[llm.FinishReason]string{
	llm.FinishReasonStop:          "stop",
	llm.FinishReasonLength:        "length",
	llm.FinishReasonContentFilter: "content_filter",
	llm.FinishReasonToolCalls:     "tool_calls",
}

// openAIFinishReason maps a normalized finish reason onto the closest value
// OpenAI clients understand.
func openAIFinishReason(r llm.FinishReason) string {
	if s, ok := finishReasons[r]; ok {
		return s
	}
	return "stop"
}

// toMessages maps OpenAI chat messages onto the message model. Consecutive
// tool messages become a single tool result message, and tool names are
// recovered from the assistant call they answer.
func toMessages(in []chatMessage) ([]llm.Message, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("messages must not be empty")
	}

	callNames := map[string]string{}
	out := make([]llm.Message, 0, len(in))
	var pending []llm.ToolResult
	flush := func() {
		if len(pending) > 0 {
			out = append(out, llm.NewToolResultMessage(pending...))
			pending = nil
		}
	}

	for i, m := range in {
		if m.Role != "tool" {
			flush()
		}
		switch m.Role {
		case "system", "developer":
			text, _, err := decodeContent(m.Content)
			if err != nil {
				return nil, fmt.Errorf("messages[%d]: %w", i, err)
			}
			out = append(out, llm.NewSystemMessage(text))
		case "user":
			text, attachments, err := decodeContent(m.Content)
			if err != nil {
				return nil, fmt.Errorf("messages[%d]: %w", i, err)
			}
			out = append(out, llm.NewUserMessage(text, attachments...))
		case "assistant":
			text, _, err := decodeContent(m.Content)
			if err != nil {
				return nil, fmt.Errorf("messages[%d]: %w", i, err)
			}
			calls := lo.Map(m.ToolCalls, func(c chatToolCall, _ int) llm.ToolCall {
				callNames[c.ID] = c.Function.Name
				return llm.ToolCall{ID: c.ID, Name: c.Function.Name, RawArguments: c.Function.Arguments}
			})
			out = append(out, llm.NewAssistantMessage(text, calls...))
		case "tool":
			if m.ToolCallID == "" {
				return nil, fmt.Errorf("messages[%d]: tool message requires tool_call_id", i)
			}
			name, ok := callNames[m.ToolCallID]
			if !ok {
				return nil, fmt.Errorf("messages[%d]: tool_call_id %s does not answer an earlier tool call", i, m.ToolCallID)
			}
			text, _, err := decodeContent(m.Content)
			if err != nil {
				return nil, fmt.Errorf("messages[%d]: %w", i, err)
			}
			pending = append(pending, llm.ToolResult{ToolCallID: m.ToolCallID, ToolName: name, Result: text})
		default:
			return nil, fmt.Errorf("messages[%d]: unsupported role %q", i, m.Role)
		}
	}
	flush()
	return out, nil
}

// decodeContent accepts either a string or an array of content parts.
func decodeContent(raw json.RawMessage) (string, []llm.Attachment, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil, nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return "", nil, fmt.Errorf("content must be a string or an array of parts")
	}
	var (
		texts       []string
		attachments []llm.Attachment
	)
	for _, p := range parts {
		switch p.Type {
		case "text":
			texts = append(texts, p.Text)
		case "image_url":
			if p.ImageURL == nil || p.ImageURL.URL == "" {
				return "", nil, fmt.Errorf("image_url part requires a url")
			}
			attachments = append(attachments, imageAttachment(p.ImageURL.URL))
		default:
			return "", nil, fmt.Errorf("unsupported content part %q", p.Type)
		}
	}
	return strings.Join(texts, "\n"), attachments, nil
}

// imageAttachment turns a data URL into an inline image and anything else
// into a URL reference.
func imageAttachment(url string) llm.Attachment {
	if rest, ok := strings.CutPrefix(url, "data:"); ok {
		if meta, data, ok := strings.Cut(rest, ","); ok && strings.HasSuffix(meta, ";base64") {
			return llm.NewImage(strings.TrimSuffix(meta, ";base64"), data)
		}
	}
	return llm.NewImageURL(url)
}

func fromToolCalls(calls []llm.ToolCall) []chatToolCall {
	return lo.Map(calls, func(c llm.ToolCall, _ int) chatToolCall {
		return chatToolCall{ID: c.ID, Type: "function", Function: chatToolFunction{Name: c.Name, Arguments: c.ArgumentsJSON()}}
	})
}
