package tools

import (
	"fmt"
	"strings"
	"time"
)

// UnknownToolError is returned when a model calls a tool which isn't
// registered for the session.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: '%v'", e.Name)
}

// InvalidArgumentsError is returned when the arguments of a call don't match
// the declared parameter schema.
type InvalidArgumentsError struct {
	Tool     string
	Problems []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool '%v': %v", e.Tool, strings.Join(e.Problems, "; "))
}

// ToolTimeoutError is returned when a tool doesn't finish within the
// executor timeout.
type ToolTimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("tool '%v' timed out after %v", e.Tool, e.Timeout)
}

// ToolExecutionError wraps a failure returned (or panicked) by a tool.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("failed to run tool: '%v', error: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}
