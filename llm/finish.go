package llm

import "strings"

// FinishReason is the provider-neutral reason generation stopped.
// It is the only input the orchestration loop uses to decide whether to continue.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonError         FinishReason = "error"
	FinishReasonOther         FinishReason = "other"
	FinishReasonUnknown       FinishReason = "unknown"
)

// FinishReasonMap translates a backend's stop reason strings.
type FinishReasonMap map[string]FinishReason

// Lookup maps a raw stop reason. Matching is case-insensitive, and empty or
// unrecognized values map to FinishReasonUnknown.
func (m FinishReasonMap) Lookup(raw string) FinishReason {
	if raw == "" {
		return FinishReasonUnknown
	}
	if fr, ok := m[raw]; ok {
		return fr
	}
	if fr, ok := m[strings.ToLower(raw)]; ok {
		return fr
	}
	return FinishReasonUnknown
}

// OpenAIFinishReasons is shared by the OpenAI-compatible backends.
var OpenAIFinishReasons = FinishReasonMap{
	"stop":           FinishReasonStop,
	"length":         FinishReasonLength,
	"content_filter": FinishReasonContentFilter,
	"tool_calls":     FinishReasonToolCalls,
	"function_call":  FinishReasonToolCalls,
}

// Extend returns a copy of m with extra entries.
func (m FinishReasonMap) Extend(extra FinishReasonMap) FinishReasonMap {
	out := make(FinishReasonMap, len(m)+len(extra))
	for k, v := range m {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
