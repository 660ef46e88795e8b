package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// FinishReasons maps Gemini candidate finish reasons.
var FinishReasons = llm.FinishReasonMap{
	"STOP":                    llm.FinishReasonStop,
	"MAX_TOKENS":              llm.FinishReasonLength,
	"SAFETY":                  llm.FinishReasonContentFilter,
	"RECITATION":              llm.FinishReasonContentFilter,
	"BLOCKLIST":               llm.FinishReasonContentFilter,
	"PROHIBITED_CONTENT":      llm.FinishReasonContentFilter,
	"SPII":                    llm.FinishReasonContentFilter,
	"MALFORMED_FUNCTION_CALL": llm.FinishReasonError,
	"OTHER":                   llm.FinishReasonOther,
	"LANGUAGE":                llm.FinishReasonOther,
}

type part struct {
	Text             string            `json:"text,omitempty"`
	InlineData       *blob             `json:"inlineData,omitempty"`
	FileData         *fileData         `json:"fileData,omitempty"`
	FunctionCall     *functionCall     `json:"functionCall,omitempty"`
	FunctionResponse *functionResponse `json:"functionResponse,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type fileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri"`
}

type functionCall struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

type functionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type functionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type tool struct {
	FunctionDeclarations []functionDeclaration `json:"functionDeclarations"`
}

type functionCallingConfig struct {
	Mode                 string   `json:"mode"`
	AllowedFunctionNames []string `json:"allowedFunctionNames,omitempty"`
}

type toolConfig struct {
	FunctionCallingConfig functionCallingConfig `json:"functionCallingConfig"`
}

type generationConfig struct {
	MaxOutputTokens  int64          `json:"maxOutputTokens,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"topP,omitempty"`
	ResponseMimeType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Tools             []tool            `json:"tools,omitempty"`
	ToolConfig        *toolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

// toContents converts the conversation. Tool results answer by function
// name, and assistant turns use the "model" role.
func toContents(msgs []llm.Message) ([]content, error) {
	out := make([]content, 0, len(msgs))
	for _, msg := range msgs {
		switch m := msg.(type) {
		case llm.UserMessage:
			parts := make([]part, 0, len(m.Attachments)+1)
			for _, a := range m.Attachments {
				if a.IsURL() {
					parts = append(parts, part{FileData: &fileData{MimeType: a.MediaType, FileURI: a.URL}})
					continue
				}
				parts = append(parts, part{InlineData: &blob{MimeType: a.MediaType, Data: a.Data}})
			}
			if m.Content != "" {
				parts = append(parts, part{Text: m.Content})
			}
			out = append(out, content{Role: "user", Parts: parts})
		case llm.AssistantMessage:
			parts := make([]part, 0, len(m.ToolCalls)+1)
			if m.Content != "" {
				parts = append(parts, part{Text: m.Content})
			}
			for _, c := range m.ToolCalls {
				parts = append(parts, part{FunctionCall: &functionCall{Name: c.Name, Args: json.RawMessage(c.ArgumentsJSON())}})
			}
			out = append(out, content{Role: "model", Parts: parts})
		case llm.ToolResultMessage:
			parts := lo.Map(m.Results, func(r llm.ToolResult, _ int) part {
				return part{FunctionResponse: &functionResponse{Name: r.ToolName, Response: resultObject(r.Result)}}
			})
			out = append(out, content{Role: "user", Parts: parts})
		case llm.SystemMessage:
			return nil, llm.NewInvalidRequestError(llm.ProviderGemini, "system messages must be passed as the system instruction")
		default:
			return nil, llm.NewInvalidRequestError(llm.ProviderGemini, "unsupported message type %T", msg)
		}
	}
	return out, nil
}

// resultObject wraps scalar tool results; functionResponse.response must be an object.
func resultObject(result any) map[string]any {
	if m, ok := result.(map[string]any); ok {
		return m
	}
	return map[string]any{"content": result}
}

func toTools(specs []llm.ToolSpec) []tool {
	if len(specs) == 0 {
		return nil
	}
	return []tool{{FunctionDeclarations: lo.Map(specs, func(s llm.ToolSpec, _ int) functionDeclaration {
		return functionDeclaration{Name: s.Name, Description: s.Description, Parameters: s.Schema.Map()}
	})}}
}

func toToolConfig(choice llm.ToolChoice) *toolConfig {
	switch choice {
	case llm.ToolChoiceAuto:
		return nil
	case llm.ToolChoiceRequired:
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "ANY"}}
	case llm.ToolChoiceNone:
		return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "NONE"}}
	}
	return &toolConfig{FunctionCallingConfig: functionCallingConfig{Mode: "ANY", AllowedFunctionNames: []string{string(choice)}}}
}

// responseSchema drops keywords the Gemini schema subset rejects.
func responseSchema(s *llm.Schema) map[string]any {
	out := s.Map()
	delete(out, "additionalProperties")
	return out
}

// syntheticCallID derives a call id from the response so the same payload
// always normalizes to the same calls.
func syntheticCallID(responseID string, index int) string {
	if responseID == "" {
		return fmt.Sprintf("call_%d", index)
	}
	return fmt.Sprintf("call_%s_%d", responseID, index)
}

// parseGenerateResponse normalizes a generateContent payload.
func parseGenerateResponse(body []byte) (*llm.Response, error) {
	doc := gjson.ParseBytes(body)
	resp := &llm.Response{
		Usage: llm.Usage{
			PromptTokens:     doc.Get("usageMetadata.promptTokenCount").Int(),
			CompletionTokens: doc.Get("usageMetadata.candidatesTokenCount").Int() + doc.Get("usageMetadata.thoughtsTokenCount").Int(),
		},
		Meta: llm.ResponseMeta{
			ID:    doc.Get("responseId").String(),
			Model: doc.Get("modelVersion").String(),
		},
	}
	if cached := doc.Get("usageMetadata.cachedContentTokenCount"); cached.Exists() {
		n := cached.Int()
		resp.Usage.CacheReadInputTokens = &n
	}

	candidate := doc.Get("candidates.0")
	if !candidate.Exists() {
		if reason := doc.Get("promptFeedback.blockReason").String(); reason != "" {
			resp.FinishReason = llm.FinishReasonContentFilter
			resp.RawFinishReason = reason
			return resp, nil
		}
		return nil, llm.NewResponseError(llm.ProviderGemini, 0, "", "response contains no candidates", nil)
	}

	var text strings.Builder
	var thoughts strings.Builder
	candidate.Get("content.parts").ForEach(func(_, p gjson.Result) bool {
		switch {
		case p.Get("functionCall").Exists():
			id := p.Get("functionCall.id").String()
			if id == "" {
				id = syntheticCallID(resp.Meta.ID, len(resp.ToolCalls))
			}
			args := p.Get("functionCall.args").Raw
			if args == "" {
				args = "{}"
			}
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:           id,
				Name:         p.Get("functionCall.name").String(),
				RawArguments: args,
			})
		case p.Get("thought").Bool():
			thoughts.WriteString(p.Get("text").String())
		default:
			text.WriteString(p.Get("text").String())
		}
		return true
	})
	resp.Text = text.String()

	raw := candidate.Get("finishReason").String()
	resp.RawFinishReason = raw
	resp.FinishReason = FinishReasons.Lookup(raw)
	if len(resp.ToolCalls) > 0 && resp.FinishReason == llm.FinishReasonStop {
		resp.FinishReason = llm.FinishReasonToolCalls
	}

	if thoughts.Len() > 0 {
		resp.AdditionalContent = map[string]any{"thinking": thoughts.String()}
	}
	if grounding := candidate.Get("groundingMetadata"); grounding.Exists() {
		var meta map[string]any
		if err := json.Unmarshal([]byte(grounding.Raw), &meta); err == nil {
			if resp.AdditionalContent == nil {
				resp.AdditionalContent = map[string]any{}
			}
			resp.AdditionalContent["grounding"] = meta
		}
	}
	return resp, nil
}
