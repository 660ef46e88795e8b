package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/echolabsdev/prism-sub001/llm"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Invoker resolves tool calls against a declared tool set and runs them.
type Invoker struct {
	// Parallel runs the calls of one batch concurrently. Results keep call order.
	Parallel bool
	logger   zerolog.Logger
}

// NewInvoker creates an Invoker.
func NewInvoker(logger zerolog.Logger, parallel bool) *Invoker {
	return &Invoker{
		Parallel: parallel,
		logger:   logger.With().Str("component", "tool_invoker").Logger(),
	}
}

// Invoke runs calls sequentially against tools without logging.
func Invoke(ctx context.Context, tools []Tool, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	return NewInvoker(zerolog.Nop(), false).Invoke(ctx, tools, calls)
}

type preparedCall struct {
	call llm.ToolCall
	tool Tool
	args map[string]any
}

// Invoke returns one ToolResult per call, in call order.
//
// Every call is resolved and its arguments decoded before any tool runs, so
// a batch with an unknown tool or malformed arguments has no side effects.
func (inv *Invoker) Invoke(ctx context.Context, tools []Tool, calls []llm.ToolCall) ([]llm.ToolResult, error) {
	byName := lo.GroupBy(tools, func(t Tool) string { return t.Name })

	prepared := make([]preparedCall, 0, len(calls))
	for _, call := range calls {
		matches := byName[call.Name]
		switch {
		case len(matches) == 0:
			inv.logger.Error().Str("tool", call.Name).Str("call_id", call.ID).Msg("Unknown tool requested")
			return nil, &ToolNotFoundError{Call: call}
		case len(matches) > 1:
			inv.logger.Error().Str("tool", call.Name).Int("count", len(matches)).Msg("Ambiguous tool declaration")
			return nil, &MultipleToolsFoundError{Call: call, Count: len(matches)}
		}

		args, err := call.DecodeArguments()
		if err != nil {
			inv.logger.Warn().Str("tool", call.Name).Str("call_id", call.ID).Err(err).Msg("Failed to decode tool arguments")
			return nil, &InvalidArgumentsError{Call: call, Cause: err}
		}
		prepared = append(prepared, preparedCall{call: call, tool: matches[0], args: args})
	}

	results := make([]llm.ToolResult, len(prepared))
	if !inv.Parallel || len(prepared) < 2 {
		for i, p := range prepared {
			res, err := inv.run(ctx, p)
			if err != nil {
				return nil, err
			}
			results[i] = res
		}
		return results, nil
	}

	errs := make([]error, len(prepared))
	var wg sync.WaitGroup
	for i, p := range prepared {
		wg.Add(1)
		go func(i int, p preparedCall) {
			defer wg.Done()
			results[i], errs[i] = inv.run(ctx, p)
		}(i, p)
	}
	wg.Wait()

	// Report the failure of the earliest call, as a sequential run would.
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (inv *Invoker) run(ctx context.Context, p preparedCall) (res llm.ToolResult, err error) {
	if p.tool.Fn == nil {
		return llm.ToolResult{}, &ToolExecutionError{Call: p.call, Cause: fmt.Errorf("tool has no implementation")}
	}

	defer func() {
		if r := recover(); r != nil {
			inv.logger.Error().Str("tool", p.call.Name).Interface("panic", r).Msg("Tool panicked")
			err = &ToolExecutionError{Call: p.call, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	inv.logger.Info().Str("tool", p.call.Name).Str("call_id", p.call.ID).Msg("Executing tool")
	if inv.logger.GetLevel() <= zerolog.DebugLevel {
		if b, e := json.Marshal(p.args); e == nil {
			inv.logger.Debug().Str("tool", p.call.Name).RawJSON("args", b).Msg("Tool called with arguments")
		}
	}

	out, err := p.tool.Fn(ctx, p.args)
	if err != nil {
		inv.logger.Warn().Str("tool", p.call.Name).Str("call_id", p.call.ID).Err(err).Msg("Tool returned error")
		return llm.ToolResult{}, &ToolExecutionError{Call: p.call, Cause: err}
	}

	res = llm.ToolResult{
		ToolCallID: p.call.ID,
		ToolName:   p.call.Name,
		Args:       p.args,
		Result:     out,
	}
	inv.logger.Debug().Str("tool", p.call.Name).Str("result", truncate(res.ResultString(), 500)).Msg("Tool returned result")
	return res, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary so the log line stays valid UTF-8.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "... (truncated)"
}
