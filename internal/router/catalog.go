package router

import (
	"slices"
	"sync"

	"github.com/baalimago/chatmux/internal/models"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMistral   = "mistral"
	ProviderGemini    = "gemini"
	ProviderDeepSeek  = "deepseek"
)

// Model is one entry of the catalog.
type Model struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"`
	// Upstream is the name sent to the vendor. Defaults to ID.
	Upstream     string              `json:"upstream,omitempty" mapstructure:"upstream"`
	Capabilities models.Capabilities `json:"capabilities" mapstructure:"capabilities"`
}

func (m Model) upstream() string {
	if m.Upstream != "" {
		return m.Upstream
	}
	return m.ID
}

var (
	toolsOnly   = models.Capabilities{Tools: true}
	toolsVision = models.Capabilities{Tools: true, Vision: true}
)

// DefaultModels lists the models available without any configuration.
func DefaultModels() []Model {
	return []Model{
		{ID: "gpt-4o", Provider: ProviderOpenAI, Capabilities: toolsVision},
		{ID: "gpt-4o-mini", Provider: ProviderOpenAI, Capabilities: toolsVision},
		{ID: "gpt-4.1", Provider: ProviderOpenAI, Capabilities: toolsVision},
		{ID: "o3-mini", Provider: ProviderOpenAI, Capabilities: toolsOnly},
		{ID: "claude-sonnet-4-0", Provider: ProviderAnthropic, Capabilities: toolsVision},
		{ID: "claude-3-7-sonnet-latest", Provider: ProviderAnthropic, Capabilities: toolsVision},
		{ID: "claude-3-5-haiku-latest", Provider: ProviderAnthropic, Capabilities: toolsOnly},
		{ID: "mistral-large-latest", Provider: ProviderMistral, Capabilities: toolsOnly},
		{ID: "mistral-small-latest", Provider: ProviderMistral, Capabilities: toolsVision},
		{ID: "gemini-2.5-flash", Provider: ProviderGemini, Capabilities: toolsVision},
		{ID: "gemini-2.5-pro", Provider: ProviderGemini, Capabilities: toolsVision},
		{ID: "deepseek-chat", Provider: ProviderDeepSeek, Capabilities: toolsOnly},
		{ID: "deepseek-reasoner", Provider: ProviderDeepSeek},
	}
}

// Catalog maps model ids to providers and capabilities. It is safe for
// concurrent use and may be replaced while requests are in flight.
type Catalog struct {
	mu     sync.RWMutex
	order  []string
	models map[string]Model
}

func NewCatalog(ms []Model) *Catalog {
	c := &Catalog{}
	c.Replace(ms)
	return c
}

// Replace swaps the full content of the catalog. Later duplicates win.
func (c *Catalog) Replace(ms []Model) {
	order := make([]string, 0, len(ms))
	byID := make(map[string]Model, len(ms))
	for _, m := range ms {
		if m.ID == "" {
			continue
		}
		if _, exists := byID[m.ID]; !exists {
			order = append(order, m.ID)
		}
		byID[m.ID] = m
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = order
	c.models = byID
}

// Resolve returns the model with id, or *models.UnknownModelError.
func (c *Catalog) Resolve(id string) (Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[id]
	if !ok {
		return Model{}, &models.UnknownModelError{ModelID: id}
	}
	return m, nil
}

// List the models in the order they were configured.
func (c *Catalog) List() []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ret := make([]Model, 0, len(c.order))
	for _, id := range c.order {
		ret = append(ret, c.models[id])
	}
	return ret
}

// Providers returns the distinct providers referenced by the catalog.
func (c *Catalog) Providers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ret []string
	for _, m := range c.models {
		if !slices.Contains(ret, m.Provider) {
			ret = append(ret, m.Provider)
		}
	}
	slices.Sort(ret)
	return ret
}
