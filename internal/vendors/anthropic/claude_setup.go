package anthropic

import (
	"fmt"
	"net/http"
	"os"

	"github.com/baalimago/chatmux/internal/text/generic"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

func (c *Claude) Setup() error {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return fmt.Errorf("environment variable 'ANTHROPIC_API_KEY' not set")
	}
	if c.client == nil {
		c.client = &http.Client{}
	}
	if c.URL == "" {
		c.URL = ClaudeURL
	}
	if c.AnthropicVersion == "" {
		c.AnthropicVersion = Default.AnthropicVersion
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = Default.MaxTokens
	}
	c.apiKey = apiKey
	c.limiter = generic.NewRateLimiter("anthropic-ratelimit-requests-reset").
		WithPacing(c.RequestsPerSecond, 1)
	if misc.Truthy(os.Getenv("DEBUG")) || misc.Truthy(os.Getenv("ANTHROPIC_DEBUG")) {
		c.debug = true
	}
	return nil
}
