package openai

import (
	"errors"
	"io"
	"time"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/transport"
	openai "github.com/sashabaranov/go-openai"
)

var nowFunc = time.Now

// streamState turns SDK stream responses into chunks. The finish chunk is
// held back until the stream ends so a trailing usage chunk can be merged.
type streamState struct {
	client   *Client
	stream   *openai.ChatCompletionStream
	captured *transport.Captured

	meta     llm.ResponseMeta
	finish   string
	usage    *llm.Usage
	finished bool
}

func newStream(c *Client, stream *openai.ChatCompletionStream, model string, captured *transport.Captured) llm.Stream {
	s := &streamState{
		client:   c,
		stream:   stream,
		captured: captured,
		meta:     llm.ResponseMeta{Model: model},
	}
	return llm.NewChunkReader(s.read, stream.Close)
}

func (s *streamState) read() ([]*llm.Chunk, error) {
	if s.finished {
		return nil, io.EOF
	}

	response, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		s.finished = true
		return []*llm.Chunk{s.finishChunk()}, io.EOF
	}
	if err != nil {
		return nil, s.client.convertError(err, s.meta.Model, s.captured)
	}

	if response.ID != "" {
		s.meta.ID = response.ID
	}
	if response.Model != "" {
		s.meta.Model = response.Model
	}
	if response.Usage != nil {
		u := FromOpenAIUsage(*response.Usage)
		s.usage = &u
	}
	if len(response.Choices) == 0 {
		return nil, nil
	}

	choice := response.Choices[0]
	var chunks []*llm.Chunk
	if choice.Delta.Content != "" {
		chunks = append(chunks, &llm.Chunk{Type: llm.ChunkTypeText, Text: choice.Delta.Content})
	}
	for i, tc := range choice.Delta.ToolCalls {
		index := i
		if tc.Index != nil {
			index = *tc.Index
		}
		chunks = append(chunks, &llm.Chunk{
			Type: llm.ChunkTypeToolCall,
			ToolCall: &llm.ToolCallDelta{
				Index:          index,
				ID:             tc.ID,
				Name:           tc.Function.Name,
				ArgumentsDelta: tc.Function.Arguments,
			},
		})
	}
	if choice.FinishReason != "" {
		s.finish = string(choice.FinishReason)
	}
	return chunks, nil
}

func (s *streamState) finishChunk() *llm.Chunk {
	meta := s.meta
	meta.RateLimits = transport.RateLimitsFromHeader(s.captured.Header(), nowFunc())
	return &llm.Chunk{
		Type:         llm.ChunkTypeFinish,
		FinishReason: s.client.profile.FinishReasons.Lookup(s.finish),
		Usage:        s.usage,
		Meta:         &meta,
	}
}
