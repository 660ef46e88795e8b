package tools

import (
	"errors"
	"fmt"

	"github.com/echolabsdev/prism-sub001/llm"
)

// ToolNotFoundError is returned when no declared tool matches a call.
type ToolNotFoundError struct {
	Call llm.ToolCall
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %s not found (call %s)", e.Call.Name, e.Call.ID)
}

// MultipleToolsFoundError is returned when more than one declared tool
// shares the called name.
type MultipleToolsFoundError struct {
	Call  llm.ToolCall
	Count int
}

func (e *MultipleToolsFoundError) Error() string {
	return fmt.Sprintf("%d tools named %s declared (call %s)", e.Count, e.Call.Name, e.Call.ID)
}

// InvalidArgumentsError is returned when call arguments cannot be decoded.
// The tool is not invoked.
type InvalidArgumentsError struct {
	Call  llm.ToolCall
	Cause error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %v", e.Call.Name, e.Cause)
}

func (e *InvalidArgumentsError) Unwrap() error { return e.Cause }

// ToolExecutionError wraps a failure raised by the tool itself.
type ToolExecutionError struct {
	Call  llm.ToolCall
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed (call %s): %v", e.Call.Name, e.Call.ID, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// IsToolNotFound reports whether err is a ToolNotFoundError.
func IsToolNotFound(err error) bool {
	var target *ToolNotFoundError
	return errors.As(err, &target)
}

// IsMultipleToolsFound reports whether err is a MultipleToolsFoundError.
func IsMultipleToolsFound(err error) bool {
	var target *MultipleToolsFoundError
	return errors.As(err, &target)
}

// IsInvalidArguments reports whether err is an InvalidArgumentsError.
func IsInvalidArguments(err error) bool {
	var target *InvalidArgumentsError
	return errors.As(err, &target)
}

// IsExecutionFailed reports whether err is a ToolExecutionError.
func IsExecutionFailed(err error) bool {
	var target *ToolExecutionError
	return errors.As(err, &target)
}
