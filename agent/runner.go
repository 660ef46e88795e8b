package agent

import (
	"context"
	"fmt"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/tools"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunPersister provides an interface for persisting completed runs.
type RunPersister interface {
	// SaveRun stores the run and its conversation.
	SaveRun(ctx context.Context, provider string, resp *Response) error
}

// Runner drives the multi-step tool-calling loop.
type Runner struct {
	persister RunPersister // Optional run persister
	logger    zerolog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithRunPersister stores every successful run.
func WithRunPersister(p RunPersister) RunnerOption {
	return func(r *Runner) {
		r.persister = p
	}
}

// NewRunner creates a new Runner.
func NewRunner(logger zerolog.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		logger: logger.With().Str("component", "runner").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes a text generation with tool calls handled automatically,
// up to req.MaxSteps provider round-trips.
func (r *Runner) Run(ctx context.Context, req *Request) (*Response, error) {
	return r.run(ctx, req, false)
}

// Structured is like Run but asks every round-trip for a JSON object
// matching req.Schema. The last step's object is in Response.Structured.
func (r *Runner) Structured(ctx context.Context, req *Request) (*Response, error) {
	if req != nil && req.Schema == nil {
		return nil, llm.NewConfigurationError("structured generation requires a schema")
	}
	return r.run(ctx, req, true)
}

// Stream opens a single streaming round-trip. Tools are declared to the
// model but not invoked; callers read tool call deltas from the stream.
func (r *Runner) Stream(ctx context.Context, req *Request) (llm.Stream, error) {
	if req == nil {
		return nil, llm.NewConfigurationError("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r.logger.Debug().
		Str("provider", req.Provider.Name()).
		Str("model", req.Model).
		Msg("Opening stream")
	return req.Provider.Stream(ctx, req.providerRequest(req.seedMessages()))
}

// Embed returns one vector per input.
func (r *Runner) Embed(ctx context.Context, provider llm.Provider, model string, inputs ...string) (*llm.EmbeddingsResponse, error) {
	if provider == nil {
		return nil, llm.NewConfigurationError("a provider is required")
	}
	if model == "" {
		return nil, llm.NewConfigurationError("a model is required for provider %s", provider.Name())
	}
	if len(inputs) == 0 {
		return nil, llm.NewConfigurationError("at least one input is required")
	}
	resp, err := provider.Embeddings(ctx, &llm.EmbeddingsRequest{Model: model, Inputs: inputs})
	if err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(inputs) {
		return nil, llm.NewResponseError(provider.Name(), 0, "", fmt.Sprintf("expected %d embeddings, got %d", len(inputs), len(resp.Embeddings)), nil)
	}
	return resp, nil
}

func (r *Runner) run(ctx context.Context, req *Request, structured bool) (*Response, error) {
	if req == nil {
		return nil, llm.NewConfigurationError("request is nil")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := r.logger.With().
		Str("runID", runID).
		Str("provider", req.Provider.Name()).
		Str("model", req.Model).
		Logger()

	loop := newToolLoop(req, structured, tools.NewInvoker(logger, req.ParallelTools), logger)
	if err := loop.run(ctx); err != nil {
		return nil, err
	}

	resp := newResponse(runID, loop.steps, loop.messages, loop.seedCount)
	logger.Info().
		Int("steps", len(resp.Steps)).
		Str("finishReason", string(resp.FinishReason)).
		Int64("promptTokens", resp.Usage.PromptTokens).
		Int64("completionTokens", resp.Usage.CompletionTokens).
		Bool("truncated", resp.Truncated()).
		Msg("Run completed")

	if r.persister != nil {
		if err := r.persister.SaveRun(ctx, req.Provider.Name(), resp); err != nil {
			logger.Warn().Err(err).Msg("failed to persist run")
		}
	}
	return resp, nil
}
