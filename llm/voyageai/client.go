// Package voyageai implements the embeddings-only VoyageAI backend.
package voyageai

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/transport"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// DefaultBaseURL is the public VoyageAI endpoint.
	DefaultBaseURL = "https://api.voyageai.com/v1"
	// DefaultModel is used when a request names no model.
	DefaultModel = "voyage-3.5"
)

// Config holds credentials and endpoint overrides.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Retry      *transport.RetryPolicy
}

// Client implements llm.Provider. Only embeddings are supported.
type Client struct {
	llm.Unsupported
	http    *transport.Client
	baseURL string
	apiKey  string
}

// New creates a new Client.
func New(logger zerolog.Logger, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewConfigurationError("voyageai: api key is required")
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
		Unsupported: llm.Unsupported{Provider: llm.ProviderVoyageAI},
		http:        transport.New(logger.With().Str("provider", llm.ProviderVoyageAI).Logger(), policy, cfg.HTTPClient),
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      cfg.APIKey,
	}, nil
}

// Name implements llm.Provider.Name.
func (c *Client) Name() string {
	return llm.ProviderVoyageAI
}

// Embeddings implements llm.Provider.Embeddings. Vectors are returned in
// input order regardless of the order of the response items.
func (c *Client) Embeddings(ctx context.Context, req *llm.EmbeddingsRequest) (*llm.EmbeddingsResponse, error) {
	if req == nil || len(req.Inputs) == 0 {
		return nil, llm.NewConfigurationError("voyageai: embeddings request requires inputs")
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	body := map[string]any{
		"input": req.Inputs,
		"model": model,
	}
	if inputType := llm.OptionString(req.ProviderOptions, "input_type", ""); inputType != "" {
		body["input_type"] = inputType
	}
	if dims := llm.OptionInt(req.ProviderOptions, "dimensions", 0); dims > 0 {
		body["output_dimension"] = dims
	}

	resp, err := c.http.Send(ctx, transport.Request{
		URL:    c.baseURL + "/embeddings",
		Header: http.Header{"Authorization": {"Bearer " + c.apiKey}},
		Body:   body,
	})
	if err != nil {
		return nil, llm.NewRequestError(llm.ProviderVoyageAI, model, err)
	}
	if !resp.OK() {
		e := transport.ErrorFromStatus(llm.ProviderVoyageAI, resp.StatusCode, resp.Header, "", gjson.GetBytes(resp.Body, "detail").String(), nil)
		e.Model = model
		return nil, e
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, llm.NewResponseError(llm.ProviderVoyageAI, resp.StatusCode, "", "response is not valid JSON", nil)
	}

	doc := gjson.ParseBytes(resp.Body)
	items := doc.Get("data").Array()
	if len(items) != len(req.Inputs) {
		return nil, llm.NewResponseError(llm.ProviderVoyageAI, resp.StatusCode, "", fmt.Sprintf("expected %d embeddings, got %d", len(req.Inputs), len(items)), nil)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].Get("index").Int() < items[j].Get("index").Int() })

	vectors := make([][]float64, len(items))
	for i, item := range items {
		values := item.Get("embedding").Array()
		v := make([]float64, len(values))
		for j, x := range values {
			v[j] = x.Float()
		}
		vectors[i] = v
	}

	responseModel := doc.Get("model").String()
	if responseModel == "" {
		responseModel = model
	}
	return &llm.EmbeddingsResponse{
		Embeddings: vectors,
		Usage:      llm.EmbeddingsUsage{Tokens: doc.Get("usage.total_tokens").Int()},
		Meta:       llm.ResponseMeta{Model: responseModel},
	}, nil
}

var _ llm.Provider = (*Client)(nil)
