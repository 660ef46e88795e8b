package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/echolabsdev/prism-sub001/agent"
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/tools"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// handleChatCompletions runs one round-trip for an OpenAI chat completion
// request. The model field names either "provider/model", a
// bare provider, or a configured profile.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, "invalid_request_error", "model is required")
		return
	}
	messages, err := toMessages(req.Messages)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	opts, err := s.modelOptions(req.Model)
	if err != nil {
		writeError(w, http.StatusNotFound, "invalid_request_error", err.Error())
		return
	}
	// Tool calls go back to the client, which answers them with tool messages.
	opts = append(opts, agent.WithMessages(messages...), agent.WithReturnToolCalls())
	if req.MaxCompletionTokens != nil {
		opts = append(opts, agent.WithMaxTokens(*req.MaxCompletionTokens))
	} else if req.MaxTokens != nil {
		opts = append(opts, agent.WithMaxTokens(*req.MaxTokens))
	}
	if req.Temperature != nil {
		opts = append(opts, agent.WithTemperature(*req.Temperature))
	}
	if req.TopP != nil {
		opts = append(opts, agent.WithTopP(*req.TopP))
	}

	runReq, err := agent.NewRequest(opts...)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}

	resp, err := s.crew.Runner.Run(r.Context(), runReq)
	if err != nil {
		s.logger.Warn().Err(err).Str("model", req.Model).Msg("Chat completion failed")
		status, errType := errorStatus(err)
		writeError(w, status, errType, err.Error())
		return
	}

	completion := s.completion(req.Model, resp)
	if !req.Stream {
		writeJSON(w, http.StatusOK, completion)
		return
	}
	writeCompletionStream(w, completion)
}

func (s *Server) modelOptions(id string) ([]agent.Option, error) {
	if !strings.Contains(id, "/") {
		if _, ok := s.crew.Profile(id); ok {
			return s.crew.ProfileOptions(id)
		}
	}
	return s.crew.ModelOptions(id)
}

func (s *Server) completion(modelID string, resp *agent.Response) *chatCompletion {
	id := resp.Meta.ID
	if id == "" {
		id = "chatcmpl-" + uuid.NewString()
	}
	return &chatCompletion{
		ID:      id,
		Object:  "chat.completion",
		Created: nowFunc().Unix(),
		Model:   modelID,
		Choices: []choice{{
			Index: 0,
			Message: &responseMessage{
				Role:      "assistant",
				Content:   resp.Text,
				ToolCalls: fromToolCalls(resp.ToolCalls),
			},
			FinishReason: openAIFinishReason(resp.FinishReason),
		}},
		Usage: &usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens(),
		},
	}
}

// writeCompletionStream sends the finished completion as one terminal
// chunk followed by the [DONE] marker.
func writeCompletionStream(w http.ResponseWriter, c *chatCompletion) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	chunk := *c
	chunk.Object = "chat.completion.chunk"
	chunk.Choices = lo.Map(c.Choices, func(ch choice, _ int) choice {
		return choice{Index: ch.Index, Delta: ch.Message, FinishReason: ch.FinishReason}
	})

	var b strings.Builder
	b.WriteString("data: ")
	payload, _ := json.Marshal(chunk)
	b.Write(payload)
	b.WriteString("\n\ndata: [DONE]\n\n")
	_, _ = fmt.Fprint(w, b.String())
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// errorStatus picks the HTTP status and OpenAI error type for a run failure.
func errorStatus(err error) (int, string) {
	var (
		notFound  *tools.ToolNotFoundError
		multiple  *tools.MultipleToolsFoundError
		invalid   *tools.InvalidArgumentsError
		execution *tools.ToolExecutionError
	)
	switch {
	case llm.IsRateLimitError(err):
		return http.StatusTooManyRequests, "rate_limit_error"
	case llm.IsConfigurationError(err), llm.IsRequestTooLargeError(err), llm.IsUnsupportedError(err):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.As(err, &notFound), errors.As(err, &multiple), errors.As(err, &invalid), errors.As(err, &execution):
		return http.StatusBadGateway, "tool_error"
	default:
		return http.StatusBadGateway, "api_error"
	}
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	data := lo.Map(s.models, func(id string, _ int) model {
		owner, _, _ := strings.Cut(id, "/")
		return model{ID: id, Object: "model", OwnedBy: owner}
	})
	for _, name := range s.crew.ProfileNames() {
		data = append(data, model{ID: name, Object: "model", OwnedBy: "profile"})
	}
	writeJSON(w, http.StatusOK, modelList{Object: "list", Data: data})
}
