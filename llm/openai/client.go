package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/transport"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// Config holds credentials and endpoint overrides for one backend.
type Config struct {
	APIKey       string
	BaseURL      string // Overrides the profile's endpoint
	Organization string
	// HTTPClient should route through transport.CapturingTransport so
	// rate-limit headers survive SDK errors. Nil uses transport.NewHTTPClient.
	HTTPClient *http.Client
}

// Client implements llm.Provider for an OpenAI-compatible backend.
type Client struct {
	client  *openai.Client
	profile Profile
	logger  zerolog.Logger
}

// New creates a Client for the given profile.
func New(logger zerolog.Logger, profile Profile, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewConfigurationError("%s: api key is required", profile.Name)
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = profile.BaseURL
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Organization != "" {
		config.OrgID = cfg.Organization
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(transport.DefaultTimeout)
	}
	config.HTTPClient = httpClient

	if profile.FinishReasons == nil {
		profile.FinishReasons = llm.OpenAIFinishReasons
	}

	return &Client{
		client:  openai.NewClientWithConfig(config),
		profile: profile,
		logger:  logger.With().Str("component", "openaiClient").Str("provider", profile.Name).Logger(),
	}, nil
}

// Name implements llm.Provider.Name.
func (c *Client) Name() string {
	return c.profile.Name
}

// Text implements llm.Provider.Text.
func (c *Client) Text(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	chatReq, err := c.buildRequest(req, false)
	if err != nil {
		return nil, err
	}
	return c.complete(ctx, req, chatReq)
}

// Structured implements llm.Provider.Structured.
func (c *Client) Structured(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil || req.Schema == nil {
		return nil, llm.NewConfigurationError("%s: structured request requires a schema", c.profile.Name)
	}
	chatReq, err := c.buildRequest(req, false)
	if err != nil {
		return nil, err
	}
	c.applySchema(&chatReq, req.Schema)

	resp, err := c.complete(ctx, req, chatReq)
	if err != nil {
		return nil, err
	}
	if err := llm.ParseStructured(c.profile.Name, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Embeddings implements llm.Provider.Embeddings.
func (c *Client) Embeddings(ctx context.Context, req *llm.EmbeddingsRequest) (*llm.EmbeddingsResponse, error) {
	if !c.profile.Embeddings {
		return nil, llm.NewUnsupportedError(c.profile.Name, llm.CapabilityEmbeddings)
	}
	if req == nil || len(req.Inputs) == 0 {
		return nil, llm.NewConfigurationError("%s: embeddings request requires inputs", c.profile.Name)
	}
	model := req.Model
	if model == "" {
		model = c.profile.EmbeddingModel
	}

	embReq := openai.EmbeddingRequest{
		Input: req.Inputs,
		Model: openai.EmbeddingModel(model),
	}
	if dims := llm.OptionInt(req.ProviderOptions, "dimensions", 0); dims > 0 {
		embReq.Dimensions = dims
	}

	ctx, captured := transport.CaptureHeaders(ctx)
	resp, err := c.client.CreateEmbeddings(ctx, embReq)
	if err != nil {
		return nil, c.convertError(err, model, captured)
	}

	out := &llm.EmbeddingsResponse{
		Embeddings: make([][]float64, len(resp.Data)),
		Usage:      llm.EmbeddingsUsage{Tokens: int64(resp.Usage.TotalTokens)},
		Meta: llm.ResponseMeta{
			Model:      string(resp.Model),
			RateLimits: transport.RateLimitsFromHeader(captured.Header(), nowFunc()),
		},
	}
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out.Embeddings) {
			idx = i
		}
		vec := make([]float64, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float64(v)
		}
		out.Embeddings[idx] = vec
	}
	return out, nil
}

// Stream implements llm.Provider.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	chatReq, err := c.buildRequest(req, true)
	if err != nil {
		return nil, err
	}

	ctx, captured := transport.CaptureHeaders(ctx)
	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, c.convertError(err, chatReq.Model, captured)
	}
	return newStream(c, stream, chatReq.Model, captured), nil
}

func (c *Client) buildRequest(req *llm.Request, stream bool) (openai.ChatCompletionRequest, error) {
	if req == nil {
		return openai.ChatCompletionRequest{}, llm.NewConfigurationError("%s: request is required", c.profile.Name)
	}
	model := req.Model
	if model == "" {
		model = c.profile.DefaultModel
	}
	if model == "" {
		return openai.ChatCompletionRequest{}, llm.NewConfigurationError("%s: model is required", c.profile.Name)
	}

	msgs, err := ToOpenAIMessages(c.profile.Name, req.Messages)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
		Stream:   stream,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = ToOpenAITools(req.Tools)
		chatReq.ToolChoice = ToOpenAIToolChoice(req.ToolChoice)
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
		// go-openai omits a zero temperature from the request body.
		if chatReq.Temperature == 0 {
			chatReq.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if req.TopP != nil {
		chatReq.TopP = float32(*req.TopP)
	}
	if user := llm.OptionString(req.ProviderOptions, "user", ""); user != "" {
		chatReq.User = user
	}
	if effort := llm.OptionString(req.ProviderOptions, "reasoning_effort", ""); effort != "" {
		chatReq.ReasoningEffort = effort
	}
	if stream && c.profile.StreamUsage {
		chatReq.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	}
	return chatReq, nil
}

func (c *Client) applySchema(chatReq *openai.ChatCompletionRequest, schema *llm.Schema) {
	switch c.profile.Structured {
	case StructuredJSONSchema:
		name := schema.Name
		if name == "" {
			name = "output"
		}
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        name,
				Description: schema.Description,
				Schema:      schema.JSON(),
				Strict:      schema.Strict,
			},
		}
	default:
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
		chatReq.Messages = append([]openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleSystem,
			Content: llm.StructuredInstruction(schema),
		}}, chatReq.Messages...)
	}
}

func (c *Client) complete(ctx context.Context, req *llm.Request, chatReq openai.ChatCompletionRequest) (*llm.Response, error) {
	ctx, captured := transport.CaptureHeaders(ctx)
	chatResp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, c.convertError(err, chatReq.Model, captured)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.NewResponseError(c.profile.Name, captured.Status(), "", "no choices in response", nil)
	}

	choice := chatResp.Choices[0]
	resp := &llm.Response{
		Text:            choice.Message.Content,
		ToolCalls:       FromOpenAIToolCalls(choice.Message.ToolCalls),
		Usage:           FromOpenAIUsage(chatResp.Usage),
		FinishReason:    c.profile.FinishReasons.Lookup(string(choice.FinishReason)),
		RawFinishReason: string(choice.FinishReason),
		Meta: llm.ResponseMeta{
			ID:         chatResp.ID,
			Model:      chatResp.Model,
			RateLimits: transport.RateLimitsFromHeader(captured.Header(), nowFunc()),
		},
	}

	extra := map[string]any{}
	if choice.Message.ReasoningContent != "" {
		extra["reasoning"] = choice.Message.ReasoningContent
	}
	if choice.Message.Refusal != "" {
		extra["refusal"] = choice.Message.Refusal
	}
	if len(extra) > 0 {
		resp.AdditionalContent = extra
	}

	c.logger.Debug().
		Str("model", chatResp.Model).
		Str("finishReason", resp.RawFinishReason).
		Int("toolCalls", len(resp.ToolCalls)).
		Msg("Chat completion received")
	return resp, nil
}

// convertError converts OpenAI SDK errors to llm.Error types.
func (c *Client) convertError(err error, model string, captured *transport.Captured) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		status := apiErr.HTTPStatusCode
		if status == 0 {
			status = captured.Status()
		}
		e := transport.ErrorFromStatus(c.profile.Name, status, captured.Header(), apiErr.Type, apiErr.Message, err)
		e.Model = model
		return e
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e := transport.ErrorFromStatus(c.profile.Name, reqErr.HTTPStatusCode, captured.Header(), "", fmt.Sprint(reqErr.Err), err)
		e.Model = model
		return e
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return llm.NewResponseError(c.profile.Name, captured.Status(), "", "malformed response payload", err)
	}

	return llm.NewRequestError(c.profile.Name, model, err)
}

var _ llm.Provider = (*Client)(nil)
