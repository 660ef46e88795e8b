package agent

import (
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/tools"
)

// DefaultMaxSteps allows a single provider round-trip.
const DefaultMaxSteps = 1

// Request is a frozen generation request. Build it with NewRequest.
type Request struct {
	Provider        llm.Provider
	Model           string
	SystemPrompts   []string
	Prompt          string
	Messages        []llm.Message
	Tools           []tools.Tool
	ToolChoice      llm.ToolChoice
	MaxSteps        int
	MaxTokens       int64
	Temperature     *float64
	TopP            *float64
	Schema          *llm.Schema
	ProviderOptions map[string]any
	ParallelTools   bool
	// ReturnToolCalls ends the run at the first tool call response and
	// hands the calls back unexecuted.
	ReturnToolCalls bool

	promptSet bool
}

// Option configures a Request.
type Option func(*Request)

// WithProvider selects the backend adapter.
func WithProvider(p llm.Provider) Option {
	return func(r *Request) {
		r.Provider = p
	}
}

// WithModel sets the backend model identifier.
func WithModel(model string) Option {
	return func(r *Request) {
		r.Model = model
	}
}

// WithSystemPrompt appends a system prompt. It may be given more than once.
func WithSystemPrompt(prompt string) Option {
	return func(r *Request) {
		r.SystemPrompts = append(r.SystemPrompts, prompt)
	}
}

// WithPrompt seeds the conversation with a single user message.
// It cannot be combined with WithMessages.
func WithPrompt(prompt string) Option {
	return func(r *Request) {
		r.Prompt = prompt
		r.promptSet = true
	}
}

// WithMessages seeds the conversation with an existing history.
func WithMessages(messages ...llm.Message) Option {
	return func(r *Request) {
		r.Messages = append(r.Messages, messages...)
	}
}

// WithTools declares the tools the model may call.
func WithTools(ts ...tools.Tool) Option {
	return func(r *Request) {
		r.Tools = append(r.Tools, ts...)
	}
}

// WithToolChoice constrains whether the model must, may or must not call tools.
func WithToolChoice(choice llm.ToolChoice) Option {
	return func(r *Request) {
		r.ToolChoice = choice
	}
}

// WithMaxSteps bounds the number of provider round-trips.
func WithMaxSteps(n int) Option {
	return func(r *Request) {
		r.MaxSteps = n
	}
}

// WithMaxTokens caps the completion length of each round-trip.
func WithMaxTokens(n int64) Option {
	return func(r *Request) {
		r.MaxTokens = n
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(r *Request) {
		r.Temperature = &t
	}
}

// WithTopP sets nucleus sampling.
func WithTopP(p float64) Option {
	return func(r *Request) {
		r.TopP = &p
	}
}

// WithSchema sets the output schema for structured generation.
func WithSchema(schema llm.Schema) Option {
	return func(r *Request) {
		r.Schema = &schema
	}
}

// WithProviderOptions passes backend-specific settings through to the adapter.
func WithProviderOptions(opts map[string]any) Option {
	return func(r *Request) {
		if r.ProviderOptions == nil {
			r.ProviderOptions = make(map[string]any, len(opts))
		}
		for k, v := range opts {
			r.ProviderOptions[k] = v
		}
	}
}

// WithParallelTools runs the tool calls of a step concurrently.
// Results keep the order of the calls either way.
func WithParallelTools(parallel bool) Option {
	return func(r *Request) {
		r.ParallelTools = parallel
	}
}

// WithReturnToolCalls declares the tools to the model but leaves executing
// them to the caller. A run then makes a single round-trip.
func WithReturnToolCalls() Option {
	return func(r *Request) {
		r.ReturnToolCalls = true
	}
}

// NewRequest applies opts and validates the result.
func NewRequest(opts ...Option) (*Request, error) {
	r := &Request{MaxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate reports configuration errors.
func (r *Request) Validate() error {
	if r.Provider == nil {
		return llm.NewConfigurationError("a provider is required")
	}
	if r.Model == "" {
		return llm.NewConfigurationError("a model is required for provider %s", r.Provider.Name())
	}
	if r.promptSet && len(r.Messages) > 0 {
		return llm.NewConfigurationError("you can only use prompt or messages, not both")
	}
	if !r.promptSet && len(r.Messages) == 0 {
		return llm.NewConfigurationError("a prompt or messages are required")
	}
	if r.MaxSteps < 1 {
		return llm.NewConfigurationError("max steps must be at least 1, got %d", r.MaxSteps)
	}
	return nil
}

// seedMessages returns the system prompts followed by the prompt or history.
func (r *Request) seedMessages() []llm.Message {
	seed := make([]llm.Message, 0, len(r.SystemPrompts)+len(r.Messages)+1)
	for _, p := range r.SystemPrompts {
		seed = append(seed, llm.NewSystemMessage(p))
	}
	if r.promptSet {
		return append(seed, llm.NewUserMessage(r.Prompt))
	}
	return append(seed, r.Messages...)
}

// providerRequest builds the frozen request for one round-trip.
func (r *Request) providerRequest(messages []llm.Message) *llm.Request {
	snapshot := make([]llm.Message, len(messages))
	copy(snapshot, messages)
	return &llm.Request{
		Model:           r.Model,
		Messages:        snapshot,
		Tools:           tools.Specs(r.Tools),
		ToolChoice:      r.ToolChoice,
		MaxTokens:       r.MaxTokens,
		Temperature:     r.Temperature,
		TopP:            r.TopP,
		Schema:          r.Schema,
		ProviderOptions: r.ProviderOptions,
	}
}
