package ollama

import (
	"context"
	"encoding/json"
	"io"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/ollama/ollama/api"
)

// streamBatch carries the chunks decoded from one Ollama response line.
type streamBatch struct {
	chunks []*llm.Chunk
	err    error
}

// streamState runs the callback-based Chat call in a goroutine and hands
// its output to a ChunkReader. Cancelling the derived context on Close
// stops the request and unblocks the goroutine.
type streamState struct {
	batches  chan streamBatch
	cancel   context.CancelFunc
	finished bool
	nextCall int
}

func newStream(ctx context.Context, client *api.Client, chatReq *api.ChatRequest) llm.Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &streamState{
		batches: make(chan streamBatch),
		cancel:  cancel,
	}
	go s.run(ctx, client, chatReq)
	return llm.NewChunkReader(s.read, s.close)
}

func (s *streamState) run(ctx context.Context, client *api.Client, chatReq *api.ChatRequest) {
	defer close(s.batches)

	send := func(b streamBatch) error {
		select {
		case s.batches <- b:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var done bool
	err := client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		chunks := s.decode(resp)
		if resp.Done {
			done = true
		}
		if len(chunks) == 0 {
			return nil
		}
		return send(streamBatch{chunks: chunks})
	})
	if err != nil {
		_ = send(streamBatch{err: convertError(err, chatReq.Model)})
		return
	}
	if !done {
		_ = send(streamBatch{err: llm.NewResponseError(llm.ProviderOllama, 0, "", "stream ended before completion", nil)})
	}
}

// decode converts one response line. Ollama sends tool calls whole, so each
// call becomes a single delta with the full argument object.
func (s *streamState) decode(resp api.ChatResponse) []*llm.Chunk {
	var chunks []*llm.Chunk
	if resp.Message.Content != "" {
		chunks = append(chunks, &llm.Chunk{Type: llm.ChunkTypeText, Text: resp.Message.Content})
	}
	for _, tc := range FromOllamaToolCalls(resp.Message.ToolCalls, s.nextCall) {
		chunks = append(chunks, &llm.Chunk{
			Type: llm.ChunkTypeToolCall,
			ToolCall: &llm.ToolCallDelta{
				Index:          s.nextCall,
				ID:             tc.ID,
				Name:           tc.Name,
				ArgumentsDelta: argumentsJSON(tc.Arguments),
			},
		})
		s.nextCall++
	}
	if resp.Done {
		usage := FromUsage(resp.Metrics)
		chunks = append(chunks, &llm.Chunk{
			Type:         llm.ChunkTypeFinish,
			FinishReason: FinishReason(resp.DoneReason, s.nextCall > 0),
			Usage:        &usage,
			Meta:         &llm.ResponseMeta{Model: resp.Model},
		})
	}
	return chunks
}

func argumentsJSON(args map[string]any) string {
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func (s *streamState) read() ([]*llm.Chunk, error) {
	if s.finished {
		return nil, io.EOF
	}
	b, ok := <-s.batches
	if !ok {
		s.finished = true
		return nil, io.EOF
	}
	if b.err != nil {
		return nil, b.err
	}
	for _, c := range b.chunks {
		if c.Type == llm.ChunkTypeFinish {
			s.finished = true
			return b.chunks, io.EOF
		}
	}
	return b.chunks, nil
}

func (s *streamState) close() error {
	s.cancel()
	// Drain so the producer goroutine can exit.
	for range s.batches {
	}
	return nil
}
