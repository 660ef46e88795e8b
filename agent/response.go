package agent

import (
	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/samber/lo"
)

// Step records one provider round-trip and the tool invocations it caused.
type Step struct {
	Text              string
	FinishReason      llm.FinishReason
	RawFinishReason   string
	ToolCalls         []llm.ToolCall
	ToolResults       []llm.ToolResult
	Usage             llm.Usage
	Meta              llm.ResponseMeta
	AdditionalContent map[string]any
	Structured        map[string]any
	// Messages is the conversation as it stood when the step completed.
	Messages []llm.Message
}

// Response aggregates every step of a run.
type Response struct {
	RunID string
	Steps []Step

	// Text, FinishReason, ToolCalls, ToolResults, Meta and Structured are
	// taken from the last step. Earlier results are in Steps.
	Text              string
	FinishReason      llm.FinishReason
	ToolCalls         []llm.ToolCall
	ToolResults       []llm.ToolResult
	Meta              llm.ResponseMeta
	AdditionalContent map[string]any
	Structured        map[string]any
	Usage             llm.Usage

	// Messages is the full conversation including the seed messages.
	Messages []llm.Message
	// ResponseMessages holds only the assistant and tool messages this run produced.
	ResponseMessages []llm.Message
}

// Truncated reports whether the run ended while the model was still asking
// for tools, on the step bound or because the calls were returned unexecuted.
func (r *Response) Truncated() bool {
	return r.FinishReason == llm.FinishReasonToolCalls
}

func newResponse(runID string, steps []Step, messages []llm.Message, seedCount int) *Response {
	resp := &Response{
		RunID:    runID,
		Steps:    steps,
		Messages: messages,
	}
	if len(steps) == 0 {
		return resp
	}

	last := steps[len(steps)-1]
	resp.Text = last.Text
	resp.FinishReason = last.FinishReason
	resp.ToolCalls = last.ToolCalls
	resp.ToolResults = last.ToolResults
	resp.Meta = last.Meta
	resp.AdditionalContent = last.AdditionalContent
	resp.Structured = last.Structured

	for _, s := range steps {
		resp.Usage = resp.Usage.Add(s.Usage)
	}

	if seedCount < len(messages) {
		resp.ResponseMessages = lo.Filter(messages[seedCount:], func(m llm.Message, _ int) bool {
			switch m.(type) {
			case llm.AssistantMessage, llm.ToolResultMessage:
				return true
			}
			return false
		})
	}
	return resp
}
