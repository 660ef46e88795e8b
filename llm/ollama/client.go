package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/transport"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

const (
	// DefaultHost is used when neither the config nor OLLAMA_HOST name one.
	DefaultHost = "http://localhost:11434"
	// DefaultModel is used when a request names no model.
	DefaultModel = "llama3.2"
	// DefaultEmbeddingModel is used when an embeddings request names no model.
	DefaultEmbeddingModel = "nomic-embed-text"
)

// Config holds the server address. Ollama needs no credentials.
type Config struct {
	Host       string
	HTTPClient *http.Client
}

// Client implements llm.Provider for a local or remote Ollama server.
type Client struct {
	client *api.Client
	logger zerolog.Logger
}

// New creates a new Client for cfg.Host.
func New(logger zerolog.Logger, cfg Config) (*Client, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	baseURL, err := parseHost(host)
	if err != nil {
		return nil, llm.NewConfigurationError("ollama: invalid host %q: %v", host, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(transport.DefaultTimeout)
	}
	return &Client{
		client: api.NewClient(baseURL, httpClient),
		logger: logger.With().Str("component", "ollamaClient").Logger(),
	}, nil
}

// parseHost parses a host string into a URL, adding http:// when the
// scheme is missing.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Name implements llm.Provider.Name.
func (c *Client) Name() string {
	return llm.ProviderOllama
}

// Text implements llm.Provider.Text.
func (c *Client) Text(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	chatReq, err := buildChatRequest(req, false)
	if err != nil {
		return nil, err
	}
	return c.chat(ctx, chatReq)
}

// Structured implements llm.Provider.Structured using the format parameter,
// which constrains decoding to the schema.
func (c *Client) Structured(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil || req.Schema == nil {
		return nil, llm.NewConfigurationError("ollama: structured request requires a schema")
	}
	chatReq, err := buildChatRequest(req, false)
	if err != nil {
		return nil, err
	}
	chatReq.Format = req.Schema.JSON()

	resp, err := c.chat(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	if err := llm.ParseStructured(llm.ProviderOllama, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Embeddings implements llm.Provider.Embeddings via /api/embed.
func (c *Client) Embeddings(ctx context.Context, req *llm.EmbeddingsRequest) (*llm.EmbeddingsResponse, error) {
	if req == nil || len(req.Inputs) == 0 {
		return nil, llm.NewConfigurationError("ollama: embeddings request requires inputs")
	}
	model := req.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	resp, err := c.client.Embed(ctx, &api.EmbedRequest{Model: model, Input: req.Inputs})
	if err != nil {
		return nil, convertError(err, model)
	}
	if len(resp.Embeddings) != len(req.Inputs) {
		return nil, llm.NewResponseError(llm.ProviderOllama, 0, "", fmt.Sprintf("expected %d embeddings, got %d", len(req.Inputs), len(resp.Embeddings)), nil)
	}

	vectors := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		v := make([]float64, len(e))
		for j, x := range e {
			v[j] = float64(x)
		}
		vectors[i] = v
	}
	return &llm.EmbeddingsResponse{
		Embeddings: vectors,
		Usage:      llm.EmbeddingsUsage{Tokens: int64(resp.PromptEvalCount)},
		Meta:       llm.ResponseMeta{Model: resp.Model},
	}, nil
}

// Stream implements llm.Provider.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	chatReq, err := buildChatRequest(req, true)
	if err != nil {
		return nil, err
	}
	return newStream(ctx, c.client, chatReq), nil
}

func buildChatRequest(req *llm.Request, stream bool) (*api.ChatRequest, error) {
	if req == nil {
		return nil, llm.NewConfigurationError("ollama: request is required")
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	msgs, err := ToOllamaMessages(req.Messages, req.Tools)
	if err != nil {
		return nil, err
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &stream,
		Options:  make(map[string]any),
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOllamaTools(req.Tools)
	}
	if extra, ok := req.ProviderOptions["options"].(map[string]any); ok {
		for k, v := range extra {
			chatReq.Options[k] = v
		}
	}
	if req.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		chatReq.Options["top_p"] = *req.TopP
	}
	return chatReq, nil
}

func (c *Client) chat(ctx context.Context, chatReq *api.ChatRequest) (*llm.Response, error) {
	var final api.ChatResponse
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		final = resp
		return nil
	})
	if err != nil {
		return nil, convertError(err, chatReq.Model)
	}
	if !final.Done {
		return nil, llm.NewResponseError(llm.ProviderOllama, 0, "", "response ended before completion", nil)
	}

	toolCalls := FromOllamaToolCalls(final.Message.ToolCalls, 0)
	resp := &llm.Response{
		Text:            final.Message.Content,
		ToolCalls:       toolCalls,
		Usage:           FromUsage(final.Metrics),
		FinishReason:    FinishReason(final.DoneReason, len(toolCalls) > 0),
		RawFinishReason: final.DoneReason,
		Meta:            llm.ResponseMeta{Model: final.Model},
	}
	if final.Message.Thinking != "" {
		resp.AdditionalContent = map[string]any{"thinking": final.Message.Thinking}
	}

	c.logger.Debug().
		Str("model", final.Model).
		Str("done_reason", final.DoneReason).
		Int("prompt_eval_count", final.PromptEvalCount).
		Int("eval_count", final.EvalCount).
		Msg("Ollama chat completed")
	return resp, nil
}

// convertError maps Ollama client errors. The server reports failures as a
// status code with a plain error message and sends no rate-limit headers.
func convertError(err error, model string) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		e := transport.ErrorFromStatus(llm.ProviderOllama, statusErr.StatusCode, nil, "", statusErr.ErrorMessage, err)
		e.Model = model
		return e
	}
	return llm.NewRequestError(llm.ProviderOllama, model, err)
}

var _ llm.Provider = (*Client)(nil)
