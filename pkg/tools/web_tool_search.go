package tools

import (
	"context"
	"fmt"
	"strings"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	lc_tools "github.com/tmc/langchaingo/tools"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

type queryArgs struct {
	Query string `json:"query" jsonschema_description:"The search query."`
}

// LangchainTool exposes a single input langchaingo tool as an LLMTool with a
// 'query' argument.
type LangchainTool struct {
	spec  pub_models.Specification
	inner lc_tools.Tool
}

// FromLangchain wraps t. An empty name falls back to the name of t.
func FromLangchain(name string, t lc_tools.Tool) *LangchainTool {
	if name == "" {
		name = strings.ReplaceAll(strings.ToLower(t.Name()), " ", "_")
	}
	return &LangchainTool{
		spec: pub_models.Specification{
			Name:        name,
			Description: t.Description(),
			Inputs:      schemaOf[queryArgs](),
		},
		inner: t,
	}
}

// NewWebSearch returns the web_search tool, backed by DuckDuckGo.
func NewWebSearch(maxResults int) (*LangchainTool, error) {
	ddg, err := duckduckgo.New(maxResults, duckduckgo.DefaultUserAgent)
	if err != nil {
		return nil, fmt.Errorf("failed to create duckduckgo tool: %w", err)
	}
	t := FromLangchain("web_search", ddg)
	t.spec.Description = "Search the web. Returns a list of results with title, link and a short description. " +
		"Use website_text to read a result in full."
	return t, nil
}

func (l *LangchainTool) Call(ctx context.Context, input pub_models.Input) (string, error) {
	args, err := decodeInput[queryArgs](input)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	out, err := l.inner.Call(ctx, args.Query)
	if err != nil {
		return "", fmt.Errorf("failed to call %v: %w", l.inner.Name(), err)
	}
	return out, nil
}

func (l *LangchainTool) Specification() pub_models.Specification {
	return l.spec
}
