package openai

import "github.com/echolabsdev/prism-sub001/llm"

// StructuredMode selects how a backend is asked for JSON output.
type StructuredMode int

const (
	// StructuredJSONSchema sends the schema as a json_schema response format.
	StructuredJSONSchema StructuredMode = iota
	// StructuredJSONObject requests json_object and describes the schema in a
	// system message.
	StructuredJSONObject
)

// Profile describes one OpenAI-compatible backend.
type Profile struct {
	Name           string
	BaseURL        string
	DefaultModel   string
	FinishReasons  llm.FinishReasonMap
	Structured     StructuredMode
	Embeddings     bool
	EmbeddingModel string
	// StreamUsage asks for a trailing usage chunk when streaming.
	StreamUsage bool
}

// OpenAIProfile is the OpenAI API.
var OpenAIProfile = Profile{
	Name:           llm.ProviderOpenAI,
	BaseURL:        "https://api.openai.com/v1",
	DefaultModel:   "gpt-4o-mini",
	FinishReasons:  llm.OpenAIFinishReasons,
	Structured:     StructuredJSONSchema,
	Embeddings:     true,
	EmbeddingModel: "text-embedding-3-small",
	StreamUsage:    true,
}

// DeepSeekProfile is the DeepSeek API.
var DeepSeekProfile = Profile{
	Name:         llm.ProviderDeepSeek,
	BaseURL:      "https://api.deepseek.com",
	DefaultModel: "deepseek-chat",
	FinishReasons: llm.OpenAIFinishReasons.Extend(llm.FinishReasonMap{
		"insufficient_system_resource": llm.FinishReasonError,
	}),
	Structured:  StructuredJSONObject,
	StreamUsage: true,
}

// MistralProfile is La Plateforme.
var MistralProfile = Profile{
	Name:         llm.ProviderMistral,
	BaseURL:      "https://api.mistral.ai/v1",
	DefaultModel: "mistral-small-latest",
	FinishReasons: llm.OpenAIFinishReasons.Extend(llm.FinishReasonMap{
		"model_length": llm.FinishReasonLength,
		"error":        llm.FinishReasonError,
	}),
	Structured:     StructuredJSONObject,
	Embeddings:     true,
	EmbeddingModel: "mistral-embed",
}

// GroqProfile is GroqCloud.
var GroqProfile = Profile{
	Name:          llm.ProviderGroq,
	BaseURL:       "https://api.groq.com/openai/v1",
	DefaultModel:  "llama-3.3-70b-versatile",
	FinishReasons: llm.OpenAIFinishReasons,
	Structured:    StructuredJSONObject,
}

// XAIProfile is the xAI API.
var XAIProfile = Profile{
	Name:          llm.ProviderXAI,
	BaseURL:       "https://api.x.ai/v1",
	DefaultModel:  "grok-3-mini",
	FinishReasons: llm.OpenAIFinishReasons,
	Structured:    StructuredJSONSchema,
	StreamUsage:   true,
}

// Profiles lists every OpenAI-compatible backend by provider name.
var Profiles = map[string]Profile{
	OpenAIProfile.Name:   OpenAIProfile,
	DeepSeekProfile.Name: DeepSeekProfile,
	MistralProfile.Name:  MistralProfile,
	GroqProfile.Name:     GroqProfile,
	XAIProfile.Name:      XAIProfile,
}
