package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/rs/zerolog"
)

// LoggingMiddleware logs every provider round-trip.
type LoggingMiddleware struct {
	logger zerolog.Logger
}

// NewLoggingMiddleware creates a new LoggingMiddleware.
func NewLoggingMiddleware(logger zerolog.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{
		logger: logger.With().Str("component", "llmMiddleware").Logger(),
	}
}

// BeforeRequest implements llm.Middleware.BeforeRequest.
func (m *LoggingMiddleware) BeforeRequest(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	m.logger.Debug().
		Str("model", req.Model).
		Int("messages", len(req.Messages)).
		Int("tools", len(req.Tools)).
		Bool("structured", req.Schema != nil).
		Msg("LLM request")
	return req, nil
}

// AfterResponse implements llm.Middleware.AfterResponse.
func (m *LoggingMiddleware) AfterResponse(ctx context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	m.logger.Debug().
		Str("model", req.Model).
		Str("responseID", resp.Meta.ID).
		Str("finishReason", string(resp.FinishReason)).
		Str("rawFinishReason", resp.RawFinishReason).
		Int("toolCalls", len(resp.ToolCalls)).
		Int64("promptTokens", resp.Usage.PromptTokens).
		Int64("completionTokens", resp.Usage.CompletionTokens).
		Msg("LLM response")
	return resp, nil
}

// OnError implements llm.Middleware.OnError.
func (m *LoggingMiddleware) OnError(ctx context.Context, req *llm.Request, err error) error {
	ev := m.logger.Warn().Err(err).Str("model", req.Model)
	if ra := llm.ExtractRetryAfter(err); ra != nil {
		ev = ev.Dur("retryAfter", *ra)
	}
	ev.Bool("retryable", llm.IsRetryableError(err)).Msg("LLM request failed")
	return err
}

// BeforeStream implements llm.StreamMiddleware.BeforeStream.
func (m *LoggingMiddleware) BeforeStream(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	m.logger.Debug().Str("model", req.Model).Int("messages", len(req.Messages)).Msg("LLM stream")
	return req, nil
}

// OnChunk implements llm.StreamMiddleware.OnChunk.
func (m *LoggingMiddleware) OnChunk(ctx context.Context, req *llm.Request, chunk *llm.Chunk) (*llm.Chunk, error) {
	if chunk.Type == llm.ChunkTypeFinish {
		m.logger.Debug().Str("model", req.Model).Str("finishReason", string(chunk.FinishReason)).Msg("LLM stream finished")
	}
	return chunk, nil
}

// OnStreamError implements llm.StreamMiddleware.OnStreamError.
func (m *LoggingMiddleware) OnStreamError(ctx context.Context, req *llm.Request, err error) error {
	return m.OnError(ctx, req, err)
}

// DefaultMaxRateLimitWait bounds how long RateLimitMiddleware blocks a request.
const DefaultMaxRateLimitWait = time.Minute

// RateLimitMiddleware delays requests while the provider has reported an
// exhausted rate-limit window. It learns windows from response metadata and
// from the Retry-After of rate-limit errors.
type RateLimitMiddleware struct {
	logger  zerolog.Logger
	maxWait time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	blockedUntil time.Time
}

// NewRateLimitMiddleware creates a new RateLimitMiddleware. A request that
// would wait longer than maxWait fails fast with a rate-limit error.
func NewRateLimitMiddleware(logger zerolog.Logger, maxWait time.Duration) *RateLimitMiddleware {
	if maxWait <= 0 {
		maxWait = DefaultMaxRateLimitWait
	}
	return &RateLimitMiddleware{
		logger:  logger.With().Str("component", "rateLimitMiddleware").Logger(),
		maxWait: maxWait,
		now:     time.Now,
		sleep:   waitFor,
	}
}

func waitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BeforeRequest implements llm.Middleware.BeforeRequest.
func (m *RateLimitMiddleware) BeforeRequest(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return req, nil
}

// AfterResponse implements llm.Middleware.AfterResponse.
func (m *RateLimitMiddleware) AfterResponse(ctx context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	m.observe(resp.Meta.RateLimits, nil)
	return resp, nil
}

// OnError implements llm.Middleware.OnError.
func (m *RateLimitMiddleware) OnError(ctx context.Context, req *llm.Request, err error) error {
	if llm.IsRateLimitError(err) {
		m.observe(llm.ExtractRateLimits(err), llm.ExtractRetryAfter(err))
	}
	return err
}

// BeforeStream implements llm.StreamMiddleware.BeforeStream.
func (m *RateLimitMiddleware) BeforeStream(ctx context.Context, req *llm.Request) (*llm.Request, error) {
	return m.BeforeRequest(ctx, req)
}

// OnChunk implements llm.StreamMiddleware.OnChunk.
func (m *RateLimitMiddleware) OnChunk(ctx context.Context, req *llm.Request, chunk *llm.Chunk) (*llm.Chunk, error) {
	if chunk.Meta != nil {
		m.observe(chunk.Meta.RateLimits, nil)
	}
	return chunk, nil
}

// OnStreamError implements llm.StreamMiddleware.OnStreamError.
func (m *RateLimitMiddleware) OnStreamError(ctx context.Context, req *llm.Request, err error) error {
	return m.OnError(ctx, req, err)
}

// BlockedUntil returns the time before which requests are delayed.
func (m *RateLimitMiddleware) BlockedUntil() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockedUntil
}

func (m *RateLimitMiddleware) observe(limits []llm.RateLimit, retryAfter *time.Duration) {
	now := m.now()
	until := time.Time{}
	if retryAfter != nil {
		until = now.Add(*retryAfter)
	}
	for _, l := range limits {
		if l.Remaining == nil || *l.Remaining > 0 || l.ResetsAt == nil {
			continue
		}
		if l.ResetsAt.After(until) {
			until = *l.ResetsAt
		}
	}
	if !until.After(now) {
		return
	}

	m.mu.Lock()
	if until.After(m.blockedUntil) {
		m.blockedUntil = until
	}
	m.mu.Unlock()
	m.logger.Info().Time("blockedUntil", until).Msg("Rate limit window exhausted")
}

func (m *RateLimitMiddleware) wait(ctx context.Context) error {
	delay := m.BlockedUntil().Sub(m.now())
	if delay <= 0 {
		return nil
	}
	if delay > m.maxWait {
		return llm.NewRateLimitError(fmt.Sprintf("rate limited for another %s", delay.Round(time.Second)), &delay, nil)
	}
	m.logger.Info().Dur("delay", delay).Msg("Waiting for rate limit window to reset")
	if err := m.sleep(ctx, delay); err != nil {
		return fmt.Errorf("context cancelled while waiting for rate limit reset: %w", err)
	}
	return nil
}
