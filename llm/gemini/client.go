// Package gemini implements llm.Provider for the Google Gemini API over
// plain HTTP.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/transport"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the public Generative Language endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	// DefaultModel is used when a request names no model.
	DefaultModel = "gemini-2.5-flash"
	// DefaultEmbeddingModel is used when an embeddings request names no model.
	DefaultEmbeddingModel = "text-embedding-004"
)

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
		return nil, llm.NewConfigurationError("gemini: api key is required")
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
		Unsupported: llm.Unsupported{Provider: llm.ProviderGemini},
		http:        transport.New(logger, policy, cfg.HTTPClient),
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      cfg.APIKey,
		logger:      logger.With().Str("component", "geminiClient").Logger(),
	}, nil
}

// Name implements llm.Provider.Name.
func (c *Client) Name() string {
	return llm.ProviderGemini
}

// Text implements llm.Provider.Text.
func (c *Client) Text(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	body, model, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	return c.generate(ctx, model, body)
}

// Structured implements llm.Provider.Structured with a JSON response
// schema in the generation config.
func (c *Client) Structured(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil || req.Schema == nil {
		return nil, llm.NewConfigurationError("gemini: structured request requires a schema")
	}
	body, model, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	if body.GenerationConfig == nil {
		body.GenerationConfig = &generationConfig{}
	}
	body.GenerationConfig.ResponseMimeType = "application/json"
	body.GenerationConfig.ResponseSchema = responseSchema(req.Schema)

	resp, err := c.generate(ctx, model, body)
	if err != nil {
		return nil, err
	}
	if err := llm.ParseStructured(llm.ProviderGemini, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Embeddings implements llm.Provider.Embeddings via batchEmbedContents.
func (c *Client) Embeddings(ctx context.Context, req *llm.EmbeddingsRequest) (*llm.EmbeddingsResponse, error) {
	if req == nil || len(req.Inputs) == 0 {
		return nil, llm.NewConfigurationError("gemini: embeddings request requires inputs")
	}
	model := req.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	taskType := llm.OptionString(req.ProviderOptions, "task_type", "")
	dims := llm.OptionInt(req.ProviderOptions, "dimensions", 0)

	requests := lo.Map(req.Inputs, func(input string, _ int) map[string]any {
		r := map[string]any{
			"model":   "models/" + model,
			"content": content{Parts: []part{{Text: input}}},
		}
		if taskType != "" {
			r["taskType"] = taskType
		}
		if dims > 0 {
			r["outputDimensionality"] = dims
		}
		return r
	})

	resp, err := c.send(ctx, model, "batchEmbedContents", map[string]any{"requests": requests})
	if err != nil {
		return nil, err
	}

	embeddings := gjson.GetBytes(resp.Body, "embeddings").Array()
	if len(embeddings) != len(req.Inputs) {
		return nil, llm.NewResponseError(llm.ProviderGemini, resp.StatusCode, "", fmt.Sprintf("expected %d embeddings, got %d", len(req.Inputs), len(embeddings)), nil)
	}
	vectors := lo.Map(embeddings, func(e gjson.Result, _ int) []float64 {
		return lo.Map(e.Get("values").Array(), func(v gjson.Result, _ int) float64 { return v.Float() })
	})
	return &llm.EmbeddingsResponse{
		Embeddings: vectors,
		Meta:       llm.ResponseMeta{Model: model},
	}, nil
}

func buildRequest(req *llm.Request) (*generateRequest, string, error) {
	if req == nil {
		return nil, "", llm.NewConfigurationError("gemini: request is required")
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	system, rest := llm.SplitSystem(req.Messages)
	contents, err := toContents(rest)
	if err != nil {
		return nil, "", err
	}

	body := &generateRequest{Contents: contents}
	if len(system) > 0 {
		body.SystemInstruction = &content{Parts: lo.Map(system, func(s string, _ int) part { return part{Text: s} })}
	}
	if len(req.Tools) > 0 {
		body.Tools = toTools(req.Tools)
		body.ToolConfig = toToolConfig(req.ToolChoice)
	}
	if req.MaxTokens > 0 || req.Temperature != nil || req.TopP != nil {
		body.GenerationConfig = &generationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
			TopP:            req.TopP,
		}
	}
	return body, model, nil
}

func (c *Client) generate(ctx context.Context, model string, body *generateRequest) (*llm.Response, error) {
	resp, err := c.send(ctx, model, "generateContent", body)
	if err != nil {
		return nil, err
	}
	out, err := parseGenerateResponse(resp.Body)
	if err != nil {
		return nil, err
	}
	if out.Meta.Model == "" {
		out.Meta.Model = model
	}
	return out, nil
}

// send posts to models/{model}:{method} and classifies failures.
func (c *Client) send(ctx context.Context, model, method string, body any) (*transport.Response, error) {
	endpoint := fmt.Sprintf("%s/models/%s:%s", c.baseURL, url.PathEscape(model), method)
	resp, err := c.http.Send(ctx, transport.Request{
		URL:    endpoint,
		Header: http.Header{"x-goog-api-key": {c.apiKey}},
		Body:   body,
	})
	if err != nil {
		return nil, llm.NewRequestError(llm.ProviderGemini, model, err)
	}
	if !resp.OK() {
		e := transport.ErrorFromStatus(
			llm.ProviderGemini,
			resp.StatusCode,
			resp.Header,
			gjson.GetBytes(resp.Body, "error.status").String(),
			gjson.GetBytes(resp.Body, "error.message").String(),
			nil,
		)
		e.Model = model
		return nil, e
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, llm.NewResponseError(llm.ProviderGemini, resp.StatusCode, "", "response is not valid JSON", nil)
	}
	return resp, nil
}

var _ llm.Provider = (*Client)(nil)
