package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/transport"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// DefaultModel is used when a request names no model.
	DefaultModel = "claude-sonnet-4-5"
	// DefaultMaxTokens is sent when a request sets no limit; the API requires one.
	DefaultMaxTokens = 4096
)

var nowFunc = time.Now

// Config holds credentials and endpoint overrides.
type Config struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Client implements llm.Provider for Anthropic's Messages API.
type Client struct {
	llm.Unsupported
	client anthropic.Client
	logger zerolog.Logger
}

// New creates a new Client with the given API key.
func New(logger zerolog.Logger, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, llm.NewConfigurationError("anthropic: api key is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(transport.DefaultTimeout)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		// Rate limits are surfaced to the caller rather than retried here.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		Unsupported: llm.Unsupported{Provider: llm.ProviderAnthropic},
		client:      anthropic.NewClient(opts...),
		logger:      logger.With().Str("component", "anthropicClient").Logger(),
	}, nil
}

// Name implements llm.Provider.Name.
func (c *Client) Name() string {
	return llm.ProviderAnthropic
}

// Text implements llm.Provider.Text.
func (c *Client) Text(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	params, err := c.buildParams(req, "")
	if err != nil {
		return nil, err
	}
	return c.send(ctx, params)
}

// Structured implements llm.Provider.Structured. Anthropic has no native
// response format, so the schema is appended to the system prompt and the
// text is parsed as JSON.
func (c *Client) Structured(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req == nil || req.Schema == nil {
		return nil, llm.NewConfigurationError("anthropic: structured request requires a schema")
	}
	params, err := c.buildParams(req, llm.StructuredInstruction(req.Schema))
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := llm.ParseStructured(llm.ProviderAnthropic, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream implements llm.Provider.Stream.
func (c *Client) Stream(ctx context.Context, req *llm.Request) (llm.Stream, error) {
	params, err := c.buildParams(req, "")
	if err != nil {
		return nil, err
	}
	ctx, captured := transport.CaptureHeaders(ctx)
	stream := c.client.Messages.NewStreaming(ctx, params)
	return newStream(stream, string(params.Model), captured), nil
}

func (c *Client) buildParams(req *llm.Request, extraSystem string) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, llm.NewConfigurationError("anthropic: request is required")
	}
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	system, rest := llm.SplitSystem(req.Messages)
	if extraSystem != "" {
		system = append(system, extraSystem)
	}
	msgs, err := ToMessageParams(rest)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = int64(llm.OptionInt(req.ProviderOptions, "max_tokens", DefaultMaxTokens))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
		System:    buildSystemBlocks(system),
	}
	if len(req.Tools) > 0 {
		params.Tools = ToToolUnionParams(req.Tools)
		params.ToolChoice = ToToolChoice(req.ToolChoice)
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	return params, nil
}

// buildSystemBlocks creates system text blocks with prompt caching on the
// last block. Placing cache_control on the system block caches the full
// prefix: tools, system, and messages up to that block.
func buildSystemBlocks(system []string) []anthropic.TextBlockParam {
	if len(system) == 0 {
		return nil
	}
	blocks := make([]anthropic.TextBlockParam, 0, len(system))
	for _, s := range system {
		blocks = append(blocks, anthropic.TextBlockParam{Text: s})
	}
	blocks[len(blocks)-1].CacheControl = anthropic.NewCacheControlEphemeralParam()
	return blocks
}

func (c *Client) send(ctx context.Context, params anthropic.MessageNewParams) (*llm.Response, error) {
	ctx, captured := transport.CaptureHeaders(ctx)
	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, convertError(err, string(params.Model), captured)
	}

	resp := FromMessage(message)
	resp.Meta.RateLimits = transport.RateLimitsFromHeader(captured.Header(), nowFunc())

	// Log prompt cache information for tracking efficacy
	if resp.Usage.CacheWriteInputTokens != nil || resp.Usage.CacheReadInputTokens != nil {
		ev := c.logger.Debug().Int64("input_tokens", resp.Usage.PromptTokens)
		if resp.Usage.CacheWriteInputTokens != nil {
			ev = ev.Int64("cache_creation_tokens", *resp.Usage.CacheWriteInputTokens)
		}
		if resp.Usage.CacheReadInputTokens != nil {
			ev = ev.Int64("cache_read_tokens", *resp.Usage.CacheReadInputTokens)
		}
		ev.Msg("Prompt cache stats")
	}
	return resp, nil
}

// convertError converts Anthropic SDK errors to llm.Error types.
func convertError(err error, model string, captured *transport.Captured) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		header := captured.Header()
		if apiErr.Response != nil {
			header = apiErr.Response.Header
		}
		raw := apiErr.RawJSON()
		errType := gjson.Get(raw, "error.type").String()
		message := gjson.Get(raw, "error.message").String()
		if message == "" {
			message = strings.TrimSpace(http.StatusText(apiErr.StatusCode))
		}
		e := transport.ErrorFromStatus(llm.ProviderAnthropic, apiErr.StatusCode, header, errType, message, err)
		if errType == "overloaded_error" {
			e.Type = llm.ErrorTypeProvider
			e.Retryable = true
		}
		e.Model = model
		return e
	}
	return llm.NewRequestError(llm.ProviderAnthropic, model, err)
}

var _ llm.Provider = (*Client)(nil)
