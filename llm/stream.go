package llm

import (
	"errors"
	"io"
)

// ChunkType represents the type of a streamed chunk.
type ChunkType string

const (
	ChunkTypeText     ChunkType = "text"
	ChunkTypeToolCall ChunkType = "tool_call"
	ChunkTypeFinish   ChunkType = "finish"
)

// Chunk is a single increment of a streamed response.
type Chunk struct {
	Type     ChunkType
	Text     string         // For text chunks
	ToolCall *ToolCallDelta // For tool call chunks
	// Set on the terminal chunk only.
	FinishReason FinishReason
	Usage        *Usage
	Meta         *ResponseMeta
}

// ToolCallDelta is a fragment of a tool call. Fragments sharing an Index
// belong to the same call; ID and Name arrive with the first fragment.
type ToolCallDelta struct {
	Index          int
	ID             string
	Name           string
	ArgumentsDelta string
}

// Stream represents a streaming response from an LLM.
type Stream interface {
	// Next advances to the next chunk in the stream.
	// Returns false when the stream is complete or an error occurs.
	Next() bool

	// Chunk returns the current chunk.
	// Should only be called after Next() returns true.
	Chunk() *Chunk

	// Err returns any error that occurred during streaming.
	Err() error

	// Close closes the stream and releases resources.
	Close() error
}

// StreamAccumulator folds chunks back into a normalized response.
type StreamAccumulator struct {
	text      []byte
	toolCalls []ToolCall
	byIndex   map[int]int
	resp      Response
}

// NewStreamAccumulator creates an empty accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{byIndex: make(map[int]int)}
}

// Add folds one chunk into the accumulated response.
func (a *StreamAccumulator) Add(c *Chunk) {
	if c == nil {
		return
	}
	switch c.Type {
	case ChunkTypeText:
		a.text = append(a.text, c.Text...)
	case ChunkTypeToolCall:
		if c.ToolCall == nil {
			return
		}
		i, ok := a.byIndex[c.ToolCall.Index]
		if !ok {
			i = len(a.toolCalls)
			a.byIndex[c.ToolCall.Index] = i
			a.toolCalls = append(a.toolCalls, ToolCall{})
		}
		tc := &a.toolCalls[i]
		if c.ToolCall.ID != "" {
			tc.ID = c.ToolCall.ID
		}
		if c.ToolCall.Name != "" {
			tc.Name = c.ToolCall.Name
		}
		tc.RawArguments += c.ToolCall.ArgumentsDelta
	case ChunkTypeFinish:
		a.resp.FinishReason = c.FinishReason
		if c.Usage != nil {
			a.resp.Usage = *c.Usage
		}
		if c.Meta != nil {
			a.resp.Meta = *c.Meta
		}
	}
}

// Response returns the response assembled so far.
func (a *StreamAccumulator) Response() *Response {
	resp := a.resp
	resp.Text = string(a.text)
	resp.ToolCalls = append([]ToolCall(nil), a.toolCalls...)
	if resp.FinishReason == "" {
		resp.FinishReason = FinishReasonUnknown
	}
	return &resp
}

// ChunkReader adapts a pull function to Stream. read returns the chunks
// decoded from one backend event and io.EOF once the backend is done.
type ChunkReader struct {
	read    func() ([]*Chunk, error)
	close   func() error
	pending []*Chunk
	current *Chunk
	err     error
	done    bool
}

// NewChunkReader creates a ChunkReader. close may be nil.
func NewChunkReader(read func() ([]*Chunk, error), close func() error) *ChunkReader {
	return &ChunkReader{read: read, close: close}
}

// Next implements Stream.Next.
func (r *ChunkReader) Next() bool {
	for len(r.pending) == 0 {
		if r.done || r.err != nil {
			r.current = nil
			return false
		}
		chunks, err := r.read()
		r.pending = append(r.pending, chunks...)
		if errors.Is(err, io.EOF) {
			r.done = true
		} else if err != nil {
			r.err = err
		}
	}
	r.current = r.pending[0]
	r.pending = r.pending[1:]
	return true
}

// Chunk implements Stream.Chunk.
func (r *ChunkReader) Chunk() *Chunk {
	return r.current
}

// Err implements Stream.Err.
func (r *ChunkReader) Err() error {
	return r.err
}

// Close implements Stream.Close.
func (r *ChunkReader) Close() error {
	if r.done && r.close == nil {
		return nil
	}
	r.done = true
	r.pending = nil
	if r.close != nil {
		c := r.close
		r.close = nil
		return c()
	}
	return nil
}

var _ Stream = (*ChunkReader)(nil)
