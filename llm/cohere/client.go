// Package cohere implements llm.Provider for the Cohere v2 API over plain HTTP.
package cohere

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/transport"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the public Cohere endpoint.
	DefaultBaseURL = "https://api.cohere.com"
	// DefaultModel is used when a request names no model.
	DefaultModel = "command-r-plus"
	// DefaultEmbeddingModel is used when an embeddings request names no model.
	DefaultEmbeddingModel = "embed-english-v3.0"
	// DefaultInputType is required by v3 embedding models.
	DefaultInputType = "search_document"
)

var nowFunc = time.Now

// Config holds credentials and endpoint overrides.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Retry      *transport.RetryPolicy
}

// Client implements llm.Provider. Streaming is not supported.
type Client struct {
	llm.Unsupported
	http    *transport.Client
	baseURL string
	apiKey  string
	logger  zerolog.Logger
}

// New creates a new Client.
func New(logger zerolog.Logger, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewConfigurationError("cohere: api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	policy := transport.DefaultRetryPolicy()
	if cfg.Retry != nil {
		policy = *cfg.Retry
	}
	return &Client{
		Unsupported: llm.Unsupported{Provider: llm.ProviderCohere},
		http:        transport.New(logger, policy, cfg.HTTPClient),
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      cfg.APIKey,
		logger:      logger.With().Str("component", "cohereClient").Logger(),
	}, nil
}

// Name implements llm.Provider.Name.
func (c *Client) Name() string {
	return llm.ProviderCohere
}

// Text implements llm.Provider.Text.
func (c *Client) Text(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	body, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	return c.chat(ctx, body)
}

// Structured implements llm.Provider.Structured with a json_object
// response format constrained by the schema.
func (c *Client) Structured(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil || req.Schema == nil {
		return nil, llm.NewConfigurationError("cohere: structured request requires a schema")
	}
	body, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	body.ResponseFormat = &responseFormat{Type: "json_object", JSONSchema: req.Schema.Map()}

	resp, err := c.chat(ctx, body)
	if err != nil {
		return nil, err
	}
	if err := llm.ParseStructured(llm.ProviderCohere, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Embeddings implements llm.Provider.Embeddings via v2/embed.
func (c *Client) Embeddings(ctx context.Context, req *llm.EmbeddingsRequest) (*llm.EmbeddingsResponse, error) {
	if req == nil || len(req.Inputs) == 0 {
		return nil, llm.NewConfigurationError("cohere: embeddings request requires inputs")
	}
	model := req.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	body := map[string]any{
		"model":           model,
		"texts":           req.Inputs,
		"input_type":      llm.OptionString(req.ProviderOptions, "input_type", DefaultInputType),
		"embedding_types": []string{"float"},
	}
	if truncate := llm.OptionString(req.ProviderOptions, "truncate", ""); truncate != "" {
		body["truncate"] = truncate
	}

	resp, err := c.send(ctx, model, "/v2/embed", body)
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(resp.Body)
	embeddings := doc.Get("embeddings.float").Array()
	if len(embeddings) != len(req.Inputs) {
		return nil, llm.NewResponseError(llm.ProviderCohere, resp.StatusCode, "", fmt.Sprintf("expected %d embeddings, got %d", len(req.Inputs), len(embeddings)), nil)
	}
	return &llm.EmbeddingsResponse{
		Embeddings: lo.Map(embeddings, func(e gjson.Result, _ int) []float64 {
			return lo.Map(e.Array(), func(v gjson.Result, _ int) float64 { return v.Float() })
		}),
		Usage: llm.EmbeddingsUsage{Tokens: doc.Get("meta.billed_units.input_tokens").Int()},
		Meta:  llm.ResponseMeta{ID: doc.Get("id").String(), Model: model},
	}, nil
}

func buildRequest(req *llm.Request) (*chatRequest, error) {
	if req == nil {
		return nil, llm.NewConfigurationError("cohere: request is required")
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	msgs, err := toMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	body := &chatRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		P:           req.TopP,
	}
	if len(req.Tools) > 0 {
		body.Tools, body.ToolChoice = toTools(req.Tools, req.ToolChoice)
	}
	return body, nil
}

func (c *Client) chat(ctx context.Context, body *chatRequest) (*llm.Response, error) {
	resp, err := c.send(ctx, body.Model, "/v2/chat", body)
	if err != nil {
		return nil, err
	}
	out := parseChatResponse(resp.Body)
	out.Meta.Model = body.Model
	out.Meta.RateLimits = transport.RateLimitsFromHeader(resp.Header, nowFunc())
	if out.FinishReason == llm.FinishReasonError {
		c.logger.Warn().Str("finish_reason", out.RawFinishReason).Str("model", body.Model).Msg("Cohere reported a generation error")
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, model, path string, body any) (*transport.Response, error) {
	resp, err := c.http.Send(ctx, transport.Request{
		URL: c.baseURL + path,
		Header: http.Header{
			"Authorization": {"Bearer " + c.apiKey},
			"Accept":        {"application/json"},
		},
		Body: body,
	})
	if err != nil {
		return nil, llm.NewRequestError(llm.ProviderCohere, model, err)
	}
	if !resp.OK() {
		e := transport.ErrorFromStatus(llm.ProviderCohere, resp.StatusCode, resp.Header, "", gjson.GetBytes(resp.Body, "message").String(), nil)
		e.Model = model
		return nil, e
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, llm.NewResponseError(llm.ProviderCohere, resp.StatusCode, "", "response is not valid JSON", nil)
	}
	return resp, nil
}

var _ llm.Provider = (*Client)(nil)
