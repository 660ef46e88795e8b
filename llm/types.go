package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MessageRole represents the role of a message in a conversation.
type MessageRole string

const (
	RoleSystem    MessageRole = "system"
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message represents a single entry of a conversation.
//
// The set of implementations is closed: SystemMessage, UserMessage,
// AssistantMessage and ToolResultMessage. Code that switches over messages
// should return an error from its default branch so that a missing case
// is caught the first time it is exercised.
type Message interface {
	Role() MessageRole
	isMessage()
}

// SystemMessage carries instructions for the model.
type SystemMessage struct {
	Content         string
	ProviderOptions map[string]any
}

// UserMessage is a message authored by the caller, optionally with attachments.
type UserMessage struct {
	Content         string
	Attachments     []Attachment
	ProviderOptions map[string]any
}

// AssistantMessage is a model turn. It may request tool invocations.
type AssistantMessage struct {
	Content           string
	ToolCalls         []ToolCall
	AdditionalContent map[string]any // citations, reasoning and other extras
	ProviderOptions   map[string]any
}

// ToolResultMessage answers every tool call of the preceding assistant message.
type ToolResultMessage struct {
	Results []ToolResult
}

func (SystemMessage) Role() MessageRole     { return RoleSystem }
func (UserMessage) Role() MessageRole       { return RoleUser }
func (AssistantMessage) Role() MessageRole  { return RoleAssistant }
func (ToolResultMessage) Role() MessageRole { return RoleTool }

func (SystemMessage) isMessage()     {}
func (UserMessage) isMessage()       {}
func (AssistantMessage) isMessage()  {}
func (ToolResultMessage) isMessage() {}

// AttachmentKind identifies the type of a user attachment.
type AttachmentKind string

const (
	AttachmentImage    AttachmentKind = "image"
	AttachmentDocument AttachmentKind = "document"
)

// Attachment is an image or document sent along with a user message.
// Either Data (base64) or URL is set.
type Attachment struct {
	Kind      AttachmentKind
	MediaType string
	Data      string
	URL       string
	Title     string
}

// IsURL reports whether the attachment references remote content.
func (a Attachment) IsURL() bool {
	return a.URL != "" && a.Data == ""
}

// DataURL renders the attachment as a data: URL, or returns URL as is.
func (a Attachment) DataURL() string {
	if a.IsURL() {
		return a.URL
	}
	return "data:" + a.MediaType + ";base64," + a.Data
}

// ToolCall is a tool invocation requested by the model.
//
// Providers either return arguments as a JSON string (RawArguments) or as
// an already decoded object (Arguments).
type ToolCall struct {
	ID           string
	Name         string
	RawArguments string
	Arguments    map[string]any
}

// DecodeArguments returns the call arguments as a mapping.
// A malformed argument string is an error, never an empty map.
func (c ToolCall) DecodeArguments() (map[string]any, error) {
	if c.Arguments != nil {
		return c.Arguments, nil
	}
	if strings.TrimSpace(c.RawArguments) == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(c.RawArguments), &args); err != nil {
		return nil, fmt.Errorf("decode arguments of tool call %q (%s): %w", c.ID, c.Name, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// ArgumentsJSON returns the arguments encoded as a JSON object string.
func (c ToolCall) ArgumentsJSON() string {
	if c.Arguments == nil {
		if strings.TrimSpace(c.RawArguments) == "" {
			return "{}"
		}
		return c.RawArguments
	}
	b, err := json.Marshal(c.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ToolResult is the outcome of one tool call.
// Result holds a string, a number or a mapping.
type ToolResult struct {
	ToolCallID string
	ToolName   string
	Args       map[string]any
	Result     any
}

// ResultString renders the result for the wire. Strings pass through
// unchanged, everything else is JSON encoded.
func (r ToolResult) ResultString() string {
	switch v := r.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	b, err := json.Marshal(r.Result)
	if err != nil {
		return fmt.Sprintf("%v", r.Result)
	}
	return string(b)
}

// Usage represents token usage information from an LLM response.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	// Only reported by providers with prompt caching.
	CacheWriteInputTokens *int64
	CacheReadInputTokens  *int64
}

// Add returns the element-wise sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:          u.PromptTokens + other.PromptTokens,
		CompletionTokens:      u.CompletionTokens + other.CompletionTokens,
		CacheWriteInputTokens: addOptional(u.CacheWriteInputTokens, other.CacheWriteInputTokens),
		CacheReadInputTokens:  addOptional(u.CacheReadInputTokens, other.CacheReadInputTokens),
	}
}

// TotalTokens returns prompt plus completion tokens.
func (u Usage) TotalTokens() int64 {
	return u.PromptTokens + u.CompletionTokens
}

func addOptional(a, b *int64) *int64 {
	if a == nil && b == nil {
		return nil
	}
	var sum int64
	if a != nil {
		sum += *a
	}
	if b != nil {
		sum += *b
	}
	return &sum
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) SystemMessage {
	return SystemMessage{Content: content}
}

// NewUserMessage creates a user message with optional attachments.
func NewUserMessage(content string, attachments ...Attachment) UserMessage {
	return UserMessage{Content: content, Attachments: attachments}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string, toolCalls ...ToolCall) AssistantMessage {
	return AssistantMessage{Content: content, ToolCalls: toolCalls}
}

// NewToolResultMessage creates a message answering a batch of tool calls.
func NewToolResultMessage(results ...ToolResult) ToolResultMessage {
	return ToolResultMessage{Results: results}
}

// NewImage creates a base64 image attachment.
func NewImage(mediaType, base64Data string) Attachment {
	return Attachment{Kind: AttachmentImage, MediaType: mediaType, Data: base64Data}
}

// NewImageURL creates an image attachment that references a URL.
func NewImageURL(url string) Attachment {
	return Attachment{Kind: AttachmentImage, URL: url}
}

// NewDocument creates a base64 document attachment.
func NewDocument(mediaType, base64Data, title string) Attachment {
	return Attachment{Kind: AttachmentDocument, MediaType: mediaType, Data: base64Data, Title: title}
}

// SplitSystem separates system messages from the rest of the conversation,
// for providers that take instructions outside the message list.
func SplitSystem(messages []Message) ([]string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if sm, ok := m.(SystemMessage); ok {
			system = append(system, sm.Content)
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
