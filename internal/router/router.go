// Package router resolves chat requests to a provider, drives the tool loop
// and emits the unified chunk stream.
package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/baalimago/chatmux/internal/discovery"
	"github.com/baalimago/chatmux/internal/models"
	"github.com/baalimago/chatmux/internal/ratelimit"
	"github.com/baalimago/chatmux/internal/tools"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	pub_tools "github.com/baalimago/chatmux/pkg/tools"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/debug"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

// DefaultMaxRounds is the amount of tool rounds before the model is asked
// to answer without calling tools.
const DefaultMaxRounds = 8

// Request is one chat turn.
type Request struct {
	ModelID  string               `json:"modelId"`
	Messages []pub_models.Message `json:"messages"`
	UserID   string               `json:"userId,omitempty"`
	Tier     ratelimit.Tier       `json:"tier,omitempty"`
}

type Router struct {
	catalog   *Catalog
	providers Providers
	limiter   *ratelimit.Limiter
	sessions  *tools.Sessions
	executor  *tools.Executor
	discovery *discovery.Controller
	maxRounds int
	debug     bool
}

type Option func(*Router)

// WithLimiter enables usage limits. Without it every request is allowed.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(r *Router) {
		r.limiter = l
	}
}

func WithSessions(s *tools.Sessions) Option {
	return func(r *Router) {
		r.sessions = s
	}
}

func WithExecutor(e *tools.Executor) Option {
	return func(r *Router) {
		r.executor = e
	}
}

func WithDiscovery(d *discovery.Controller) Option {
	return func(r *Router) {
		r.discovery = d
	}
}

func WithMaxRounds(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxRounds = n
		}
	}
}

func New(catalog *Catalog, providers Providers, opts ...Option) *Router {
	r := &Router{
		catalog:   catalog,
		providers: providers,
		sessions:  tools.NewSessions(tools.NewRegistry()),
		executor:  tools.NewExecutor(),
		discovery: discovery.NewController(),
		maxRounds: DefaultMaxRounds,
		debug:     misc.Truthy(os.Getenv("DEBUG")) || misc.Truthy(os.Getenv("DEBUG_ROUTER")),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Router) Catalog() *Catalog {
	return r.catalog
}

func (r *Router) Sessions() *tools.Sessions {
	return r.sessions
}

// Available reports if the provider of m passed setup.
func (r *Router) Available(m Model) bool {
	return r.providers.IsConfigured(m.Provider)
}

// StreamChat runs the request and streams the result. The channel is
// closed once the model has answered, after a terminal error chunk, or
// when ctx is cancelled.
func (r *Router) StreamChat(ctx context.Context, req Request) <-chan pub_models.Chunk {
	out := make(chan pub_models.Chunk)
	go func() {
		defer close(out)
		emit := func(c pub_models.Chunk) bool {
			select {
			case out <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}
		err := r.streamChat(ctx, req, emit)
		if err == nil || ctx.Err() != nil {
			return
		}
		ancli.Warnf("chat with model '%v' failed: %v\n", req.ModelID, err)
		emit(pub_models.ErrorChunk(err.Error()))
	}()
	return out
}

type emitFunc func(pub_models.Chunk) bool

func (r *Router) streamChat(ctx context.Context, req Request, emit emitFunc) error {
	model, err := r.catalog.Resolve(req.ModelID)
	if err != nil {
		return err
	}
	if r.limiter != nil {
		d, err := r.limiter.CheckLimit(ctx, req.UserID, model.ID, ratelimit.ParseTier(string(req.Tier)))
		if err != nil {
			return fmt.Errorf("failed to check rate limit: %w", err)
		}
		if !d.Allowed {
			return d.Err()
		}
	}
	sc, err := r.providers.get(model.Provider)
	if err != nil {
		return err
	}

	history := sanitize(req.Messages)
	lookup := tools.NewRegistry()
	if model.Capabilities.Tools {
		lookup = r.sessions.View(req.UserID)
	}
	specs := lookup.Specifications()
	if r.debug {
		ancli.Noticef("router: model: '%v', provider: '%v', messages: %v, tools: %v\n", model.ID, model.Provider, len(history), len(specs))
	}

	for round := 0; ; round++ {
		last := round >= r.maxRounds
		text, calls, err := r.streamRound(ctx, sc, model, history, specs, last, emit)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			return nil
		}
		if last {
			ancli.Warnf("model '%v' requested %v tool calls after the last tool round, ignoring\n", model.ID, len(calls))
			return nil
		}
		history, err = r.runTools(ctx, lookup, history, text, calls, emit)
		if err != nil {
			return err
		}
	}
}

// streamRound is one provider round trip. Text is emitted as it arrives,
// tool calls are collected and returned once the provider is done. The
// last round keeps the tools declared but forbids calling them.
func (r *Router) streamRound(ctx context.Context, sc models.StreamCompleter, model Model, history []pub_models.Message, specs []pub_models.Specification, last bool, emit emitFunc) (string, []pub_models.Call, error) {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	ch, err := sc.StreamCompletions(roundCtx, models.Request{
		Model:           model.upstream(),
		Chat:            pub_models.Chat{Messages: history},
		Tools:           specs,
		ForbidToolCalls: last && len(specs) > 0,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to stream completions: %w", err)
	}
	var sb strings.Builder
	var calls []pub_models.Call
	seen := map[string]bool{}
	for ev := range ch {
		switch e := ev.(type) {
		case string:
			sb.WriteString(e)
			if !emit(pub_models.TextChunk(e)) {
				return "", nil, ctx.Err()
			}
		case pub_models.Call:
			if seen[e.ID] {
				e.ID = ""
			}
			e.Patch()
			seen[e.ID] = true
			calls = append(calls, e)
		case error:
			return "", nil, e
		case models.StopEvent, models.NoopEvent:
		default:
			ancli.Warnf("unexpected completion event: %T\n", ev)
		}
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	return sb.String(), calls, nil
}

// runTools executes calls in order and returns history extended with the
// assistant message holding the calls, followed by one tool message per
// call.
func (r *Router) runTools(ctx context.Context, lookup tools.Lookup, history []pub_models.Message, text string, calls []pub_models.Call, emit emitFunc) ([]pub_models.Message, error) {
	assistant := pub_models.Message{
		Role:      pub_models.RoleAssistant,
		Content:   text,
		ToolCalls: calls,
	}
	results := make([]pub_models.Message, 0, len(calls))
	for _, call := range calls {
		if r.debug {
			ancli.PrintOK(fmt.Sprintf("router: tool call: %v\n", debug.IndentedJsonFmt(call)))
		}
		if !emit(pub_models.ToolCallChunk(call)) {
			return nil, ctx.Err()
		}
		res, err := r.executor.Execute(ctx, lookup, call)
		if err != nil {
			return nil, err
		}
		outcome, err := r.discovery.Resolve(ctx, r.executor, lookup, res)
		if err != nil {
			return nil, err
		}
		if cs, ok := res.Tool.(pub_tools.CitationSource); ok && res.Err == nil {
			assistant.Citations = append(assistant.Citations, cs.Citations(res.Output)...)
		}
		if !emit(pub_models.ToolResultChunk(call, outcome.Output)) {
			return nil, ctx.Err()
		}
		results = append(results, pub_models.Message{
			Role:       pub_models.RoleTool,
			Content:    outcome.Output,
			ToolCallID: call.ID,
		})
	}
	// New slice, the caller's history may share its backing array
	next := make([]pub_models.Message, 0, len(history)+1+len(results))
	next = append(next, history...)
	next = append(next, assistant)
	return append(next, results...), nil
}

// IsClientError reports if err stems from the request itself rather than
// from the router or a provider.
func IsClientError(err error) bool {
	var unknown *models.UnknownModelError
	var limited *models.RateLimitExceededError
	return errors.As(err, &unknown) || errors.As(err, &limited)
}
