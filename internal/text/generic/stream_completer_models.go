package generic

import (
	"net/http"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

// StreamCompleter is a struct which follows the model for OpenAI compatible
// chat completion APIs: OpenAI, Mistral, DeepSeek and Gemini's OpenAI
// endpoint.
type StreamCompleter struct {
	// Provider names the vendor in errors and logs.
	Provider         string
	FrequencyPenalty *float64
	MaxTokens        *int
	PresencePenalty  *float64
	Temperature      *float64
	TopP             *float64
	ToolChoice       *string
	// Clean shapes the messages for vendors with stricter validation. It
	// receives a copy and may mutate it.
	Clean            func([]pub_models.Message) []pub_models.Message
	Limiter          RateLimiter
	url              string
	client           *http.Client
	apiKey           string
	debug            bool
}

type ToolSuper struct {
	Type     string `json:"type"`
	Function Tool   `json:"function"`
}

type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Inputs      pub_models.InputSchema `json:"parameters"`
}

type chatCompletionChunk struct {
	ID      string    `json:"id"`
	Object  string    `json:"object"`
	Created int       `json:"created"`
	Model   string    `json:"model"`
	Choices []Choice  `json:"choices"`
	Error   *apiError `json:"error,omitempty"`
}

type Choice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

type Delta struct {
	// Content is usually a string, some vendors send a list of typed parts.
	Content   any         `json:"content"`
	Role      string      `json:"role"`
	ToolCalls []ToolsCall `json:"tool_calls"`
}

type ToolsCall struct {
	Function Func   `json:"function"`
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Type     string `json:"type"`
}

type Func struct {
	Arguments string `json:"arguments"`
	Name      string `json:"name"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

type wireMessage struct {
	Role       string      `json:"role"`
	Content    string      `json:"content"`
	ToolCalls  []ToolsCall `json:"tool_calls,omitempty"`
	ToolCallID string      `json:"tool_call_id,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type req struct {
	Model            string         `json:"model,omitempty"`
	Messages         []wireMessage  `json:"messages"`
	Stream           bool           `json:"stream"`
	StreamOptions    *streamOptions `json:"stream_options,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	ToolChoice       *string        `json:"tool_choice,omitempty"`
	Tools            []ToolSuper    `json:"tools,omitempty"`
}
