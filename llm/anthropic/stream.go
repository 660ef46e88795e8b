package anthropic

import (
	"io"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/transport"
)

// streamState turns Anthropic stream events into chunks. Tool call deltas
// are indexed by the content block they arrive in.
type streamState struct {
	stream   *ssestream.Stream[anthropic.MessageStreamEventUnion]
	captured *transport.Captured
	model    string

	meta       llm.ResponseMeta
	stopReason string
	usage      llm.Usage
	toolBlocks map[int64]int
	finished   bool
}

func newStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], model string, captured *transport.Captured) llm.Stream {
	s := &streamState{
		stream:     stream,
		captured:   captured,
		model:      model,
		meta:       llm.ResponseMeta{Model: model},
		toolBlocks: make(map[int64]int),
	}
	return llm.NewChunkReader(s.read, stream.Close)
}

func (s *streamState) read() ([]*llm.Chunk, error) {
	if s.finished {
		return nil, io.EOF
	}
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return nil, convertError(err, s.model, s.captured)
		}
		// The server closed the stream without message_stop.
		s.finished = true
		return []*llm.Chunk{s.finishChunk()}, io.EOF
	}

	switch evt := s.stream.Current().AsAny().(type) {
	case anthropic.MessageStartEvent:
		s.meta.ID = evt.Message.ID
		if evt.Message.Model != "" {
			s.meta.Model = string(evt.Message.Model)
		}
		s.usage = FromUsage(
			evt.Message.Usage.InputTokens,
			evt.Message.Usage.OutputTokens,
			evt.Message.Usage.CacheCreationInputTokens,
			evt.Message.Usage.CacheReadInputTokens,
		)

	case anthropic.ContentBlockStartEvent:
		if block, ok := evt.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
			index := len(s.toolBlocks)
			s.toolBlocks[evt.Index] = index
			return []*llm.Chunk{{
				Type:     llm.ChunkTypeToolCall,
				ToolCall: &llm.ToolCallDelta{Index: index, ID: block.ID, Name: block.Name},
			}}, nil
		}

	case anthropic.ContentBlockDeltaEvent:
		switch d := evt.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			if d.Text != "" {
				return []*llm.Chunk{{Type: llm.ChunkTypeText, Text: d.Text}}, nil
			}
		case anthropic.InputJSONDelta:
			index, ok := s.toolBlocks[evt.Index]
			if ok && d.PartialJSON != "" {
				return []*llm.Chunk{{
					Type:     llm.ChunkTypeToolCall,
					ToolCall: &llm.ToolCallDelta{Index: index, ArgumentsDelta: d.PartialJSON},
				}}, nil
			}
		}

	case anthropic.MessageDeltaEvent:
		s.stopReason = string(evt.Delta.StopReason)
		// Output tokens in message_delta are cumulative.
		s.usage.CompletionTokens = evt.Usage.OutputTokens
		if evt.Usage.InputTokens > 0 {
			s.usage.PromptTokens = evt.Usage.InputTokens
		}

	case anthropic.MessageStopEvent:
		s.finished = true
		return []*llm.Chunk{s.finishChunk()}, io.EOF
	}
	return nil, nil
}

func (s *streamState) finishChunk() *llm.Chunk {
	meta := s.meta
	meta.RateLimits = transport.RateLimitsFromHeader(s.captured.Header(), nowFunc())
	usage := s.usage
	return &llm.Chunk{
		Type:         llm.ChunkTypeFinish,
		FinishReason: FinishReasons.Lookup(s.stopReason),
		Usage:        &usage,
		Meta:         &meta,
	}
}
