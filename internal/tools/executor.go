package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"
	"unicode/utf8"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/debug"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxOutputRunes = 20000
	EmptyResponse         = "<EMPTY-RESPONSE>"
)

// Executor runs tool calls. Failures never escape as errors, they are folded
// into the output so that the model may retry.
type Executor struct {
	Timeout        time.Duration
	MaxOutputRunes int
	debug          bool
}

// Result of one executed call. Output is what's sent back to the model, Err
// is the typed failure, if any.
type Result struct {
	Call   pub_models.Call
	Output string
	Err    error
	Tool   pub_models.LLMTool
}

func NewExecutor() *Executor {
	return &Executor{
		Timeout:        DefaultTimeout,
		MaxOutputRunes: DefaultMaxOutputRunes,
		debug:          misc.Truthy(os.Getenv("DEBUG_CALL")),
	}
}

// Execute the call using tools resolved from lookup. The returned error is
// only non-nil if ctx was cancelled, meaning that the caller is gone.
func (e *Executor) Execute(ctx context.Context, lookup Lookup, call pub_models.Call) (Result, error) {
	res := Result{Call: call}
	if e.debug {
		ancli.Noticef("invoke call: %v", debug.IndentedJsonFmt(call))
	}
	t, exists := lookup.Get(call.Name)
	if !exists {
		return e.fold(res, &UnknownToolError{Name: call.Name}), nil
	}
	res.Tool = t
	if err := Validate(t.Specification(), call.Args()); err != nil {
		return e.fold(res, err), nil
	}

	out, err := e.run(ctx, t, call)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return e.fold(res, err), nil
	}
	if out == "" {
		out = EmptyResponse
	}
	res.Output = limitToolOutput(out, e.MaxOutputRunes)
	return res, nil
}

func (e *Executor) run(ctx context.Context, t pub_models.LLMTool, call pub_models.Call) (string, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		out string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &ToolExecutionError{Tool: call.Name, Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		out, err := t.Call(runCtx, call.Args())
		if err != nil {
			err = &ToolExecutionError{Tool: call.Name, Err: err}
		}
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &ToolTimeoutError{Tool: call.Name, Timeout: timeout}
		}
		return o.out, o.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &ToolTimeoutError{Tool: call.Name, Timeout: timeout}
	}
}

func (e *Executor) fold(res Result, err error) Result {
	ancli.Warnf("tool call '%v' failed: %v\n", res.Call.Name, err)
	res.Err = err
	res.Output = limitToolOutput("ERROR: "+err.Error(), e.MaxOutputRunes)
	return res
}

// Validate checks the input against the required fields, primitive types and
// enums of the specification.
func Validate(spec pub_models.Specification, in pub_models.Input) error {
	if spec.Inputs == nil {
		return nil
	}
	var problems []string
	for _, req := range spec.Inputs.Required {
		v, ok := in[req]
		if !ok || v == nil {
			problems = append(problems, fmt.Sprintf("missing required field '%v'", req))
		}
	}
	for name, v := range in {
		param, ok := spec.Inputs.Properties[name]
		if !ok || v == nil {
			continue
		}
		if !typeMatches(param.Type, v) {
			problems = append(problems, fmt.Sprintf("field '%v' should be of type %v, got %T", name, param.Type, v))
			continue
		}
		if param.Enum != nil && len(*param.Enum) > 0 {
			s, isStr := v.(string)
			if isStr && !slices.Contains(*param.Enum, s) {
				problems = append(problems, fmt.Sprintf("field '%v' must be one of %v", name, *param.Enum))
			}
		}
	}
	if len(problems) == 0 {
		return nil
	}
	// Map iteration order is random
	slices.Sort(problems)
	return &InvalidArgumentsError{Tool: spec.Name, Problems: problems}
}

// typeMatches reports if v fits the json schema type typ. Untyped and
// unknown types accept anything.
func typeMatches(typ string, v any) bool {
	switch typ {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch n := v.(type) {
		case float64:
			return n == float64(int64(n))
		case int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	}
	return true
}

func limitToolOutput(out string, limit int) string {
	if limit <= 0 {
		return out
	}
	amRunes := utf8.RuneCountInString(out)
	if amRunes <= limit {
		return out
	}
	return fmt.Sprintf("%v... and %v more characters. The tool's output has been restricted as it's too long. Please concentrate your tool calls to reduce the amount of tokens used!", string([]rune(out)[:limit]), amRunes-limit)
}
