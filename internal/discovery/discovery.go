// Package discovery decides whether a tool result is final or if a follow
// up call has to be chained before the model sees it.
package discovery

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/baalimago/chatmux/internal/tools"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

const DefaultMaxDepth = 5

type State int

const (
	// Direct results are returned to the model as-is.
	Direct State = iota
	// NeedsChaining results require Next to be called first.
	NeedsChaining
)

func (s State) String() string {
	if s == NeedsChaining {
		return "needs_chaining"
	}
	return "direct"
}

// Decision for one tool result.
type Decision struct {
	State    State
	Next     *pub_models.Call
	Guidance string
}

// Rule inspects a completed call. ok is false if the rule doesn't apply.
type Rule interface {
	Inspect(call pub_models.Call, output string) (d Decision, ok bool)
}

// Outcome of a resolved chain.
type Outcome struct {
	// Output is what's sent back to the model for the original call.
	Output string
	// Chained holds the results of the automatically executed calls.
	Chained  []tools.Result
	Guidance string
	// Truncated is true if the chain stopped at the depth bound.
	Truncated bool
}

type Controller struct {
	MaxDepth int
	rules    []Rule
	debug    bool
}

// NewController with the given rules. Without rules, the built-in rules are
// used.
func NewController(rules ...Rule) *Controller {
	if len(rules) == 0 {
		rules = []Rule{StrataRule{}}
	}
	return &Controller{
		MaxDepth: DefaultMaxDepth,
		rules:    rules,
		debug:    misc.Truthy(os.Getenv("DEBUG_DISCOVERY")),
	}
}

// Inspect returns the decision of the first matching rule, Direct if none
// matches.
func (c *Controller) Inspect(call pub_models.Call, output string) Decision {
	for _, r := range c.rules {
		if d, ok := r.Inspect(call, output); ok {
			return d
		}
	}
	return Decision{State: Direct}
}

// Resolve follows the chain started by res until a Direct result, a failed
// call or the depth bound. The returned error is only non-nil if ctx is
// cancelled.
func (c *Controller) Resolve(ctx context.Context, exec *tools.Executor, lookup tools.Lookup, res tools.Result) (Outcome, error) {
	out := Outcome{Output: res.Output}
	if res.Err != nil {
		return out, nil
	}
	maxDepth := c.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	var guidance []string
	seen := map[string]bool{callKey(res.Call): true}
	current := res
	for depth := 0; ; depth++ {
		d := c.Inspect(current.Call, current.Output)
		if d.Guidance != "" {
			guidance = append(guidance, d.Guidance)
		}
		if d.State != NeedsChaining || d.Next == nil {
			break
		}
		if depth >= maxDepth {
			ancli.Warnf("discovery chain of '%v' stopped at depth %v\n", res.Call.Name, maxDepth)
			out.Truncated = true
			guidance = append(guidance, fmt.Sprintf("Automatic discovery stopped after %v chained calls. Continue by calling '%v' yourself if needed.", maxDepth, d.Next.Name))
			break
		}
		next := *d.Next
		next.Patch()
		key := callKey(next)
		if seen[key] {
			ancli.Warnf("discovery chain of '%v' is cyclic, stopping at '%v'\n", res.Call.Name, next.Name)
			break
		}
		seen[key] = true
		if c.debug {
			ancli.Noticef("discovery: chaining '%v' -> '%v'\n", current.Call.Name, next.Name)
		}
		chained, err := exec.Execute(ctx, lookup, next)
		if err != nil {
			return out, err
		}
		out.Chained = append(out.Chained, chained)
		current = chained
		if chained.Err != nil {
			break
		}
	}

	out.Guidance = strings.Join(guidance, "\n")
	if len(out.Chained) > 0 {
		out.Output = combine(res, out.Chained)
	}
	if out.Guidance != "" {
		out.Output += "\n\n" + out.Guidance
	}
	return out, nil
}

func combine(first tools.Result, chained []tools.Result) string {
	var sb strings.Builder
	sb.WriteString(first.Output)
	for _, r := range chained {
		fmt.Fprintf(&sb, "\n\nResult of automatically called '%v' with arguments %v:\n%v", r.Call.Name, r.Call.ArgumentsJSON(), r.Output)
	}
	return sb.String()
}

func callKey(c pub_models.Call) string {
	return c.Name + c.ArgumentsJSON()
}

// sibling returns the name of the tool remote on the same integration as
// name. Integration tools are prefixed, so the remote name is a suffix.
func sibling(name, remote, wanted string) string {
	return strings.TrimSuffix(name, remote) + wanted
}

func matchesRemote(name, remote string) bool {
	return name == remote || strings.HasSuffix(name, "_"+remote)
}
