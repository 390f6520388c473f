package openai

import (
	"fmt"

	"github.com/baalimago/chatmux/internal/text/generic"
)

var GptDefault = ChatGPT{
	Temperature: 1.0,
	TopP:        1.0,
	URL:         ChatURL,
}

type ChatGPT struct {
	generic.StreamCompleter

	FrequencyPenalty  float64 `json:"frequency_penalty" mapstructure:"frequency_penalty"`
	MaxTokens         *int    `json:"max_tokens" mapstructure:"max_tokens"` // Use a pointer to allow null value
	PresencePenalty   float64 `json:"presence_penalty" mapstructure:"presence_penalty"`
	Temperature       float64 `json:"temperature" mapstructure:"temperature"`
	TopP              float64 `json:"top_p" mapstructure:"top_p"`
	URL               string  `json:"url" mapstructure:"url"`
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
}

func (g *ChatGPT) Setup() error {
	err := g.StreamCompleter.Setup("OPENAI_API_KEY", g.URL, "DEBUG_OPENAI")
	if err != nil {
		return fmt.Errorf("failed to setup stream completer: %w", err)
	}
	g.StreamCompleter.Provider = "openai"
	g.StreamCompleter.FrequencyPenalty = &g.FrequencyPenalty
	g.StreamCompleter.PresencePenalty = &g.PresencePenalty
	g.StreamCompleter.MaxTokens = g.MaxTokens
	g.StreamCompleter.Temperature = &g.Temperature
	g.StreamCompleter.TopP = &g.TopP
	g.StreamCompleter.Limiter = generic.NewRateLimiter("x-ratelimit-reset-requests").
		WithPacing(g.RequestsPerSecond, 1)
	toolChoice := "auto"
	g.ToolChoice = &toolChoice
	return nil
}
