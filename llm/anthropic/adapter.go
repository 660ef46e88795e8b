package anthropic

import (
	"encoding/json"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/samber/lo"
)

// FinishReasons maps Anthropic stop reasons.
var FinishReasons = llm.FinishReasonMap{
	"end_turn":      llm.FinishReasonStop,
	"stop_sequence": llm.FinishReasonStop,
	"max_tokens":    llm.FinishReasonLength,
	"tool_use":      llm.FinishReasonToolCalls,
	"refusal":       llm.FinishReasonContentFilter,
	"pause_turn":    llm.FinishReasonOther,
}

// ToMessageParams converts llm.Messages to Anthropic MessageParams. System
// messages are not part of the message list and must be split off first
// with llm.SplitSystem.
func ToMessageParams(msgs []llm.Message) ([]anthropic.MessageParam, error) {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case llm.UserMessage:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Attachments)+1)
			for _, a := range m.Attachments {
				block, err := toAttachmentBlock(a)
				if err != nil {
					return nil, err
				}
				blocks = append(blocks, block)
			}
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			result = append(result, anthropic.NewUserMessage(blocks...))
		case llm.AssistantMessage:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, c := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ID, json.RawMessage(c.ArgumentsJSON()), c.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case llm.ToolResultMessage:
			blocks := lo.Map(m.Results, func(r llm.ToolResult, _ int) anthropic.ContentBlockParamUnion {
				return anthropic.NewToolResultBlock(r.ToolCallID, r.ResultString(), false)
			})
			result = append(result, anthropic.NewUserMessage(blocks...))
		case llm.SystemMessage:
			return nil, llm.NewInvalidRequestError(llm.ProviderAnthropic, "system messages must be passed as the system prompt")
		default:
			return nil, llm.NewInvalidRequestError(llm.ProviderAnthropic, "unsupported message type %T", msg)
		}
	}
	return result, nil
}

func toAttachmentBlock(a llm.Attachment) (anthropic.ContentBlockParamUnion, error) {
	switch a.Kind {
	case llm.AttachmentImage:
		if a.IsURL() {
			return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: a.URL}), nil
		}
		return anthropic.NewImageBlockBase64(a.MediaType, a.Data), nil
	case llm.AttachmentDocument:
		if a.MediaType != "" && a.MediaType != "application/pdf" {
			return anthropic.ContentBlockParamUnion{}, llm.NewInvalidRequestError(llm.ProviderAnthropic, "unsupported document type %s", a.MediaType)
		}
		if a.IsURL() {
			return anthropic.NewDocumentBlock(anthropic.URLPDFSourceParam{URL: a.URL}), nil
		}
		return anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{Data: a.Data}), nil
	}
	return anthropic.ContentBlockParamUnion{}, llm.NewInvalidRequestError(llm.ProviderAnthropic, "unsupported attachment kind %s", a.Kind)
}

// ToToolUnionParams converts llm.ToolSpecs to Anthropic ToolUnionParams.
func ToToolUnionParams(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	return lo.Map(specs, func(spec llm.ToolSpec, _ int) anthropic.ToolUnionParam {
		toolParam := anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:        "object",
				Properties:  spec.Schema.Properties,
				Required:    spec.Schema.Required,
				ExtraFields: spec.Schema.ExtraFields,
			},
		}
		return anthropic.ToolUnionParam{OfTool: &toolParam}
	})
}

// ToToolChoice maps a tool choice. The zero value leaves the backend default.
func ToToolChoice(choice llm.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice {
	case llm.ToolChoiceAuto:
		return anthropic.ToolChoiceUnionParam{}
	case llm.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case llm.ToolChoiceNone:
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	}
	return anthropic.ToolChoiceParamOfTool(string(choice))
}

// FromUsage converts Anthropic usage. Prompt tokens exclude cached tokens,
// which are reported separately.
func FromUsage(inputTokens, outputTokens, cacheCreation, cacheRead int64) llm.Usage {
	usage := llm.Usage{
		PromptTokens:     inputTokens,
		CompletionTokens: outputTokens,
	}
	if cacheCreation > 0 {
		usage.CacheWriteInputTokens = &cacheCreation
	}
	if cacheRead > 0 {
		usage.CacheReadInputTokens = &cacheRead
	}
	return usage
}

// FromMessage converts a complete Anthropic message to a normalized response.
func FromMessage(message *anthropic.Message) *llm.Response {
	resp := &llm.Response{
		FinishReason:    FinishReasons.Lookup(string(message.StopReason)),
		RawFinishReason: string(message.StopReason),
		Usage: FromUsage(
			message.Usage.InputTokens,
			message.Usage.OutputTokens,
			message.Usage.CacheCreationInputTokens,
			message.Usage.CacheReadInputTokens,
		),
		Meta: llm.ResponseMeta{
			ID:    message.ID,
			Model: string(message.Model),
		},
	}

	var text string
	var thinking string
	var citations []any
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			text += block.Text
			for _, c := range block.Citations {
				var citation map[string]any
				if err := json.Unmarshal([]byte(c.RawJSON()), &citation); err == nil {
					citations = append(citations, citation)
				}
			}
		case anthropic.ToolUseBlock:
			raw := string(block.Input)
			if raw == "" || raw == "null" {
				raw = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:           block.ID,
				Name:         block.Name,
				RawArguments: raw,
			})
		case anthropic.ThinkingBlock:
			thinking += block.Thinking
		}
	}
	resp.Text = text

	if thinking != "" || len(citations) > 0 {
		resp.AdditionalContent = map[string]any{}
		if thinking != "" {
			resp.AdditionalContent["thinking"] = thinking
		}
		if len(citations) > 0 {
			resp.AdditionalContent["citations"] = citations
		}
	}
	return resp
}
