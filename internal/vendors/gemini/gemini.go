package gemini

import (
	"fmt"

	"github.com/baalimago/chatmux/internal/text/generic"
)

const ChatURL = "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions"

var Default = Gemini{
	Temperature: 1.0,
	TopP:        1.0,
	URL:         ChatURL,
}

// Gemini streams through Google's OpenAI compatible endpoint.
type Gemini struct {
	generic.StreamCompleter

	MaxTokens         *int    `json:"max_tokens" mapstructure:"max_tokens"` // Use a pointer to allow null value
	Temperature       float64 `json:"temperature" mapstructure:"temperature"`
	TopP              float64 `json:"top_p" mapstructure:"top_p"`
	URL               string  `json:"url" mapstructure:"url"`
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
}

func (g *Gemini) Setup() error {
	err := g.StreamCompleter.Setup("GEMINI_API_KEY", g.URL, "GEMINI_DEBUG")
	if err != nil {
		return fmt.Errorf("failed to setup stream completer: %w", err)
	}
	g.StreamCompleter.Provider = "gemini"
	g.StreamCompleter.MaxTokens = g.MaxTokens
	g.StreamCompleter.Temperature = &g.Temperature
	g.StreamCompleter.TopP = &g.TopP
	g.StreamCompleter.Limiter = generic.NewRateLimiter("").WithPacing(g.RequestsPerSecond, 1)
	toolChoice := "auto"
	g.ToolChoice = &toolChoice
	return nil
}
