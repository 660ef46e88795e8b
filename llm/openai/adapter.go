package openai

import (
	"github.com/echolabsdev/prism-sub001/llm"
	openai "github.com/sashabaranov/go-openai"
	"github.com/samber/lo"
)

// ToOpenAIMessages converts llm.Messages to OpenAI chat message format.
// A tool result message expands into one "tool" message per result.
func ToOpenAIMessages(provider string, msgs []llm.Message) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case llm.SystemMessage:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: m.Content,
			})
		case llm.UserMessage:
			userMsg, err := toUserMessage(provider, m)
			if err != nil {
				return nil, err
			}
			result = append(result, userMsg)
		case llm.AssistantMessage:
			result = append(result, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   m.Content,
				ToolCalls: ToOpenAIToolCalls(m.ToolCalls),
			})
		case llm.ToolResultMessage:
			for _, r := range m.Results {
				result = append(result, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    r.ResultString(),
					ToolCallID: r.ToolCallID,
				})
			}
		default:
			return nil, llm.NewInvalidRequestError(provider, "unsupported message type %T", msg)
		}
	}
	return result, nil
}

func toUserMessage(provider string, m llm.UserMessage) (openai.ChatCompletionMessage, error) {
	if len(m.Attachments) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content}, nil
	}

	parts := make([]openai.ChatMessagePart, 0, len(m.Attachments)+1)
	if m.Content != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: m.Content})
	}
	for _, a := range m.Attachments {
		if a.Kind != llm.AttachmentImage {
			return openai.ChatCompletionMessage{}, llm.NewInvalidRequestError(provider, "%s does not accept %s attachments", provider, a.Kind)
		}
		url := a.URL
		if !a.IsURL() {
			url = a.DataURL()
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}, nil
}

// ToOpenAIToolCalls converts assistant tool calls to the wire format.
func ToOpenAIToolCalls(calls []llm.ToolCall) []openai.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return lo.Map(calls, func(c llm.ToolCall, _ int) openai.ToolCall {
		return openai.ToolCall{
			ID:   c.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      c.Name,
				Arguments: c.ArgumentsJSON(),
			},
		}
	})
}

// ToOpenAITools converts llm.ToolSpecs to OpenAI function format.
func ToOpenAITools(specs []llm.ToolSpec) []openai.Tool {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) openai.Tool {
		return openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Schema.Map(),
			},
		}
	})
}

// ToOpenAIToolChoice maps a tool choice; nil leaves the backend default.
func ToOpenAIToolChoice(choice llm.ToolChoice) any {
	switch choice {
	case llm.ToolChoiceAuto:
		return nil
	case llm.ToolChoiceRequired, llm.ToolChoiceNone:
		return string(choice)
	}
	return openai.ToolChoice{
		Type:     openai.ToolTypeFunction,
		Function: openai.ToolFunction{Name: string(choice)},
	}
}

// FromOpenAIToolCalls converts response tool calls. Arguments are kept raw
// and decoded by the tool invoker.
func FromOpenAIToolCalls(calls []openai.ToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return lo.Map(calls, func(c openai.ToolCall, _ int) llm.ToolCall {
		return llm.ToolCall{
			ID:           c.ID,
			Name:         c.Function.Name,
			RawArguments: c.Function.Arguments,
		}
	})
}

// FromOpenAIUsage converts token usage. Cached prompt tokens are reported
// as cache reads.
func FromOpenAIUsage(u openai.Usage) llm.Usage {
	usage := llm.Usage{
		PromptTokens:     int64(u.PromptTokens),
		CompletionTokens: int64(u.CompletionTokens),
	}
	if u.PromptTokensDetails != nil && u.PromptTokensDetails.CachedTokens > 0 {
		cached := int64(u.PromptTokensDetails.CachedTokens)
		usage.CacheReadInputTokens = &cached
	}
	return usage
}
