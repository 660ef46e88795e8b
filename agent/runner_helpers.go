package agent

import (
	"context"
	"fmt"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/echolabsdev/prism-sub001/tools"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// loopPhase is the state of a tool loop.
type loopPhase int

const (
	phaseAwaitingResponse loopPhase = iota
	phaseHandlingToolCalls
	phaseDone
)

func (p loopPhase) String() string {
	switch p {
	case phaseAwaitingResponse:
		return "awaiting_response"
	case phaseHandlingToolCalls:
		return "handling_tool_calls"
	case phaseDone:
		return "done"
	}
	return "unknown"
}

// toolLoop holds the mutable state of a single run. It is owned by one
// goroutine and discarded when the run ends.
type toolLoop struct {
	req        *Request
	structured bool
	invoker    *tools.Invoker
	logger     zerolog.Logger

	phase     loopPhase
	messages  []llm.Message
	seedCount int
	steps     []Step
	pending   *llm.Response
}

func newToolLoop(req *Request, structured bool, invoker *tools.Invoker, logger zerolog.Logger) *toolLoop {
	seed := req.seedMessages()
	return &toolLoop{
		req:        req,
		structured: structured,
		invoker:    invoker,
		logger:     logger.With().Str("component", "toolLoop").Logger(),
		phase:      phaseAwaitingResponse,
		messages:   seed,
		seedCount:  len(seed),
	}
}

func (l *toolLoop) run(ctx context.Context) error {
	for l.phase != phaseDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch l.phase {
		case phaseAwaitingResponse:
			err = l.awaitResponse(ctx)
		case phaseHandlingToolCalls:
			err = l.handleToolCalls(ctx)
		default:
			err = fmt.Errorf("unexpected loop phase %s", l.phase)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// awaitResponse sends one round-trip and decides the next phase from the
// normalized finish reason alone.
func (l *toolLoop) awaitResponse(ctx context.Context) error {
	providerReq := l.req.providerRequest(l.messages)
	stepNumber := len(l.steps) + 1

	l.logger.Debug().
		Int("step", stepNumber).
		Int("messages", len(providerReq.Messages)).
		Int("tools", len(providerReq.Tools)).
		Msg("Sending provider request")

	var (
		resp *llm.Response
		err  error
	)
	if l.structured {
		resp, err = l.req.Provider.Structured(ctx, providerReq)
	} else {
		resp, err = l.req.Provider.Text(ctx, providerReq)
	}
	if err != nil {
		return err
	}
	if err := validateResponse(l.req.Provider.Name(), resp); err != nil {
		return err
	}

	l.messages = append(l.messages, llm.AssistantMessage{
		Content:           resp.Text,
		ToolCalls:         resp.ToolCalls,
		AdditionalContent: resp.AdditionalContent,
	})
	l.pending = resp

	if resp.FinishReason == llm.FinishReasonToolCalls && !l.req.ReturnToolCalls {
		l.phase = phaseHandlingToolCalls
		return nil
	}
	l.recordStep(resp, nil)
	l.phase = phaseDone
	return nil
}

// handleToolCalls invokes the pending tool calls. When the step bound is
// reached the results are still recorded, but no further round-trip is made.
func (l *toolLoop) handleToolCalls(ctx context.Context) error {
	resp := l.pending
	l.logger.Debug().
		Int("step", len(l.steps)+1).
		Strs("tools", lo.Map(resp.ToolCalls, func(c llm.ToolCall, _ int) string { return c.Name })).
		Msg("Invoking tools")

	results, err := l.invoker.Invoke(ctx, l.req.Tools, resp.ToolCalls)
	if err != nil {
		return err
	}
	l.messages = append(l.messages, llm.NewToolResultMessage(results...))
	l.recordStep(resp, results)

	if len(l.steps) >= l.req.MaxSteps {
		l.logger.Warn().
			Int("maxSteps", l.req.MaxSteps).
			Msg("Step limit reached while the model requested tools")
		l.phase = phaseDone
		return nil
	}
	l.phase = phaseAwaitingResponse
	return nil
}

func (l *toolLoop) recordStep(resp *llm.Response, results []llm.ToolResult) {
	snapshot := make([]llm.Message, len(l.messages))
	copy(snapshot, l.messages)
	l.steps = append(l.steps, Step{
		Text:              resp.Text,
		FinishReason:      resp.FinishReason,
		RawFinishReason:   resp.RawFinishReason,
		ToolCalls:         resp.ToolCalls,
		ToolResults:       results,
		Usage:             resp.Usage,
		Meta:              resp.Meta,
		AdditionalContent: resp.AdditionalContent,
		Structured:        resp.Structured,
		Messages:          snapshot,
	})
	l.pending = nil
}

// validateResponse rejects responses the loop cannot act on.
func validateResponse(provider string, resp *llm.Response) error {
	if resp == nil {
		return llm.NewResponseError(provider, 0, "", "empty response", nil)
	}
	if resp.FinishReason == llm.FinishReasonToolCalls && len(resp.ToolCalls) == 0 {
		return llm.NewResponseError(provider, 0, "", fmt.Sprintf("finish reason %s without tool calls", resp.FinishReason), nil)
	}
	return nil
}
