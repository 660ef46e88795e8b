package llm

import (
	"context"
)

// Provider is the capability set every backend adapter implements.
// Implementations handle provider-specific details internally and return
// an UnsupportedProviderAction error (see NewUnsupportedError) for
// capabilities the backend lacks.
type Provider interface {
	// Name returns the registry name of the backend, e.g. "openai".
	Name() string

	// Text sends a generation request and returns the normalized response.
	Text(ctx context.Context, req *Request) (*Response, error)

	// Structured is like Text but asks for a JSON object matching req.Schema
	// and fills Response.Structured.
	Structured(ctx context.Context, req *Request) (*Response, error)

	// Embeddings returns one vector per input.
	Embeddings(ctx context.Context, req *EmbeddingsRequest) (*EmbeddingsResponse, error)

	// Stream sends a request and returns a stream of chunks.
	// The caller should read from the returned Stream until it's done or an error occurs.
	Stream(ctx context.Context, req *Request) (Stream, error)
}

// Unsupported implements every capability as UnsupportedProviderAction.
// Adapters embed it and override what the backend supports.
type Unsupported struct {
	Provider string
}

// Text implements Provider.Text.
func (u Unsupported) Text(context.Context, *Request) (*Response, error) {
	return nil, NewUnsupportedError(u.Provider, CapabilityText)
}

// Structured implements Provider.Structured.
func (u Unsupported) Structured(context.Context, *Request) (*Response, error) {
	return nil, NewUnsupportedError(u.Provider, CapabilityStructured)
}

// Embeddings implements Provider.Embeddings.
func (u Unsupported) Embeddings(context.Context, *EmbeddingsRequest) (*EmbeddingsResponse, error) {
	return nil, NewUnsupportedError(u.Provider, CapabilityEmbeddings)
}

// Stream implements Provider.Stream.
func (u Unsupported) Stream(context.Context, *Request) (Stream, error) {
	return nil, NewUnsupportedError(u.Provider, CapabilityStream)
}

// Middleware provides hooks for decorating Text and Structured calls.
// This allows adding cross-cutting concerns like logging or rate limiting.
type Middleware interface {
	// BeforeRequest is called before making an API request.
	// It can replace the request or return an error to abort the request.
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)

	// AfterResponse is called after receiving a response.
	// It can modify the response or return an error.
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)

	// OnError is called when an error occurs.
	// It can return a modified error or nil to use the original error.
	OnError(ctx context.Context, req *Request, err error) error
}

// StreamMiddleware provides hooks for decorating streaming calls.
type StreamMiddleware interface {
	// BeforeStream is called before starting a stream.
	BeforeStream(ctx context.Context, req *Request) (*Request, error)

	// OnChunk is called for each chunk.
	// It can modify the chunk or return an error to abort the stream.
	OnChunk(ctx context.Context, req *Request, chunk *Chunk) (*Chunk, error)

	// OnStreamError is called when a stream error occurs.
	OnStreamError(ctx context.Context, req *Request, err error) error
}

// MiddlewareFunc is a function type that implements Middleware.
type MiddlewareFunc struct {
	BeforeRequestFunc func(ctx context.Context, req *Request) (*Request, error)
	AfterResponseFunc func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnErrorFunc       func(ctx context.Context, req *Request, err error) error
}

// BeforeRequest calls the BeforeRequestFunc if set.
func (f MiddlewareFunc) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeRequestFunc != nil {
		return f.BeforeRequestFunc(ctx, req)
	}
	return req, nil
}

// AfterResponse calls the AfterResponseFunc if set.
func (f MiddlewareFunc) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if f.AfterResponseFunc != nil {
		return f.AfterResponseFunc(ctx, req, resp)
	}
	return resp, nil
}

// OnError calls the OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, req *Request, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, req, err)
	}
	return err
}

// WrapWithMiddleware wraps a Provider with middleware and returns a new Provider.
// Embeddings calls pass through untouched.
func WrapWithMiddleware(provider Provider, middleware ...Middleware) Provider {
	if len(middleware) == 0 {
		return provider
	}
	return &providerWithMiddleware{
		provider:   provider,
		middleware: middleware,
	}
}

// providerWithMiddleware wraps a Provider with middleware.
type providerWithMiddleware struct {
	provider   Provider
	middleware []Middleware
}

// Name implements Provider.Name.
func (p *providerWithMiddleware) Name() string {
	return p.provider.Name()
}

// Text implements Provider.Text with middleware support.
func (p *providerWithMiddleware) Text(ctx context.Context, req *Request) (*Response, error) {
	return p.call(ctx, req, p.provider.Text)
}

// Structured implements Provider.Structured with middleware support.
func (p *providerWithMiddleware) Structured(ctx context.Context, req *Request) (*Response, error) {
	return p.call(ctx, req, p.provider.Structured)
}

// Embeddings implements Provider.Embeddings.
func (p *providerWithMiddleware) Embeddings(ctx context.Context, req *EmbeddingsRequest) (*EmbeddingsResponse, error) {
	return p.provider.Embeddings(ctx, req)
}

func (p *providerWithMiddleware) call(
	ctx context.Context,
	req *Request,
	next func(context.Context, *Request) (*Response, error),
) (*Response, error) {
	// Apply BeforeRequest middleware
	for _, mw := range p.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	resp, err := next(ctx, req)
	if err != nil {
		// Apply OnError middleware
		original := err
		for _, mw := range p.middleware {
			err = mw.OnError(ctx, req, err)
			if err == nil {
				err = original
				break
			}
		}
		return nil, err
	}

	// Apply AfterResponse middleware in reverse order
	for i := len(p.middleware) - 1; i >= 0; i-- {
		resp, err = p.middleware[i].AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Stream implements Provider.Stream with middleware support.
func (p *providerWithMiddleware) Stream(ctx context.Context, req *Request) (Stream, error) {
	// Apply BeforeStream middleware (if any middleware implements StreamMiddleware)
	for _, mw := range p.middleware {
		if smw, ok := mw.(StreamMiddleware); ok {
			var err error
			req, err = smw.BeforeStream(ctx, req)
			if err != nil {
				return nil, err
			}
		}
	}

	stream, err := p.provider.Stream(ctx, req)
	if err != nil {
		original := err
		for _, mw := range p.middleware {
			if smw, ok := mw.(StreamMiddleware); ok {
				err = smw.OnStreamError(ctx, req, err)
				if err == nil {
					err = original
					break
				}
			}
		}
		return nil, err
	}

	return &streamWithMiddleware{
		stream:     stream,
		middleware: p.middleware,
		req:        req,
		ctx:        ctx,
	}, nil
}

// streamWithMiddleware wraps a Stream with middleware.
type streamWithMiddleware struct {
	stream     Stream
	middleware []Middleware
	req        *Request
	ctx        context.Context
	chunk      *Chunk
	err        error
}

// Next implements Stream.Next with middleware support.
func (s *streamWithMiddleware) Next() bool {
	if !s.stream.Next() {
		return false
	}

	chunk := s.stream.Chunk()
	if chunk == nil {
		return false
	}

	for _, mw := range s.middleware {
		if smw, ok := mw.(StreamMiddleware); ok {
			var err error
			chunk, err = smw.OnChunk(s.ctx, s.req, chunk)
			if err != nil {
				s.err = err
				return false
			}
			if chunk == nil {
				return false
			}
		}
	}

	s.chunk = chunk
	return true
}

// Chunk implements Stream.Chunk.
func (s *streamWithMiddleware) Chunk() *Chunk {
	return s.chunk
}

// Err implements Stream.Err.
func (s *streamWithMiddleware) Err() error {
	if s.err != nil {
		return s.err
	}
	err := s.stream.Err()
	if err != nil {
		original := err
		for _, mw := range s.middleware {
			if smw, ok := mw.(StreamMiddleware); ok {
				err = smw.OnStreamError(s.ctx, s.req, err)
				if err == nil {
					err = original
					break
				}
			}
		}
	}
	return err
}

// Close implements Stream.Close.
func (s *streamWithMiddleware) Close() error {
	return s.stream.Close()
}

// Ensure streamWithMiddleware implements Stream
var _ Stream = (*streamWithMiddleware)(nil)

// Ensure providerWithMiddleware implements Provider
var _ Provider = (*providerWithMiddleware)(nil)
