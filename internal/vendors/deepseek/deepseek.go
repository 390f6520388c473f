package deepseek

import (
	"fmt"

	"github.com/baalimago/chatmux/internal/text/generic"
)

const ChatURL = "https://api.deepseek.com/chat/completions"

var Default = Deepseek{
	Temperature: 1.0,
	TopP:        1.0,
	URL:         ChatURL,
}

type Deepseek struct {
	generic.StreamCompleter

	FrequencyPenalty  float64 `json:"frequency_penalty" mapstructure:"frequency_penalty"`
	MaxTokens         *int    `json:"max_tokens" mapstructure:"max_tokens"` // Use a pointer to allow null value
	PresencePenalty   float64 `json:"presence_penalty" mapstructure:"presence_penalty"`
	Temperature       float64 `json:"temperature" mapstructure:"temperature"`
	TopP              float64 `json:"top_p" mapstructure:"top_p"`
	URL               string  `json:"url" mapstructure:"url"`
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
}

func (g *Deepseek) Setup() error {
	err := g.StreamCompleter.Setup("DEEPSEEK_API_KEY", g.URL, "DEEPSEEK_DEBUG")
	if err != nil {
		return fmt.Errorf("failed to setup stream completer: %w", err)
	}
	g.StreamCompleter.Provider = "deepseek"
	g.StreamCompleter.FrequencyPenalty = &g.FrequencyPenalty
	g.StreamCompleter.PresencePenalty = &g.PresencePenalty
	g.StreamCompleter.MaxTokens = g.MaxTokens
	g.StreamCompleter.Temperature = &g.Temperature
	g.StreamCompleter.TopP = &g.TopP
	g.StreamCompleter.Limiter = generic.NewRateLimiter("").WithPacing(g.RequestsPerSecond, 1)
	toolChoice := "auto"
	g.ToolChoice = &toolChoice
	return nil
}
