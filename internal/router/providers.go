package router

import (
	"errors"
	"fmt"

	"github.com/baalimago/chatmux/internal/models"
	"github.com/baalimago/chatmux/internal/vendors/anthropic"
	"github.com/baalimago/chatmux/internal/vendors/deepseek"
	"github.com/baalimago/chatmux/internal/vendors/gemini"
	"github.com/baalimago/chatmux/internal/vendors/mistral"
	"github.com/baalimago/chatmux/internal/vendors/openai"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
)

// ProviderConfig holds the vendor specific settings. API keys are never
// part of it, they're read from the environment during setup.
type ProviderConfig struct {
	OpenAI    openai.ChatGPT    `mapstructure:"openai"`
	Anthropic anthropic.Claude  `mapstructure:"anthropic"`
	Mistral   mistral.Mistral   `mapstructure:"mistral"`
	Gemini    gemini.Gemini     `mapstructure:"gemini"`
	DeepSeek  deepseek.Deepseek `mapstructure:"deepseek"`
}

func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		OpenAI:    openai.GptDefault,
		Anthropic: anthropic.Default,
		Mistral:   mistral.Default,
		Gemini:    gemini.Default,
		DeepSeek:  deepseek.Default,
	}
}

// Providers keyed by provider name.
type Providers map[string]models.StreamCompleter

// SetupProviders runs Setup on every vendor of conf. Vendors which fail,
// typically since the API key is missing, are left out and reported with
// a warning. Models of those vendors resolve to ErrProviderNotConfigured.
func SetupProviders(conf ProviderConfig) Providers {
	all := map[string]models.StreamCompleter{
		ProviderOpenAI:    &conf.OpenAI,
		ProviderAnthropic: &conf.Anthropic,
		ProviderMistral:   &conf.Mistral,
		ProviderGemini:    &conf.Gemini,
		ProviderDeepSeek:  &conf.DeepSeek,
	}
	ret := make(Providers)
	for name, p := range all {
		if err := p.Setup(); err != nil {
			ancli.Warnf("provider '%v' disabled: %v\n", name, err)
			continue
		}
		ret[name] = p
	}
	return ret
}

func (p Providers) get(name string) (models.StreamCompleter, error) {
	sc, ok := p[name]
	if !ok || sc == nil {
		return nil, fmt.Errorf("%w: '%v'", models.ErrProviderNotConfigured, name)
	}
	return sc, nil
}

// IsConfigured reports if the provider passed setup.
func (p Providers) IsConfigured(name string) bool {
	_, err := p.get(name)
	return !errors.Is(err, models.ErrProviderNotConfigured)
}
