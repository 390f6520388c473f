package tools

import (
	"os"
	"strings"
	"sync"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

// Registry is a threadsafe, insertion ordered storage for LLMTools.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]pub_models.LLMTool
	debug bool
}

// NewRegistry returns an empty tools registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]pub_models.LLMTool),
		debug: misc.Truthy(os.Getenv("DEBUG")),
	}
}

// Register upserts t under its specification name. Re-registering a name
// replaces the tool but keeps its original position.
func (r *Registry) Register(t pub_models.LLMTool) {
	name := t.Specification().Name
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.debug {
		ancli.Okf("adding tool to registry, name: %v\n", name)
	}
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (pub_models.LLMTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns the tools in registration order.
func (r *Registry) List() []pub_models.LLMTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]pub_models.LLMTool, 0, len(r.order))
	for _, name := range r.order {
		ret = append(ret, r.tools[name])
	}
	return ret
}

// Specifications returns the specification of every tool, in registration
// order, ready to be sent to a provider.
func (r *Registry) Specifications() []pub_models.Specification {
	tools := r.List()
	ret := make([]pub_models.Specification, 0, len(tools))
	for _, t := range tools {
		ret = append(ret, t.Specification())
	}
	return ret
}

// Remove unregisters name, if present.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the amount of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// WildcardGet returns all tools with names matching pattern, in
// registration order.
func (r *Registry) WildcardGet(pattern string) []pub_models.LLMTool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []pub_models.LLMTool
	for _, name := range r.order {
		if wildcardMatch(pattern, name) {
			matches = append(matches, r.tools[name])
		}
	}
	return matches
}

func wildcardMatch(pattern, name string) bool {
	if pattern == "*" {
		return true
	}

	// Simple wildcard matching - supports * at start, end, or both
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") {
		substr := pattern[1 : len(pattern)-1]
		return strings.Contains(name, substr)
	} else if strings.HasPrefix(pattern, "*") {
		suffix := pattern[1:]
		return strings.HasSuffix(name, suffix)
	} else if strings.HasSuffix(pattern, "*") {
		prefix := pattern[:len(pattern)-1]
		return strings.HasPrefix(name, prefix)
	}

	return pattern == name
}

// Filter returns a new registry holding only the tools matching any of the
// patterns. No patterns keeps everything.
func (r *Registry) Filter(patterns []string) *Registry {
	ret := NewRegistry()
	if len(patterns) == 0 {
		for _, t := range r.List() {
			ret.Register(t)
		}
		return ret
	}
	for _, t := range r.List() {
		name := t.Specification().Name
		for _, p := range patterns {
			if wildcardMatch(p, name) {
				ret.Register(t)
				break
			}
		}
	}
	return ret
}
