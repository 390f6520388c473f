package anthropic

import (
	"net/http"
	"strings"

	"github.com/baalimago/chatmux/internal/text/generic"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

const ClaudeURL = "https://api.anthropic.com/v1/messages"

type Claude struct {
	MaxTokens         int     `json:"max_tokens" mapstructure:"max_tokens"`
	URL               string  `json:"url" mapstructure:"url"`
	AnthropicVersion  string  `json:"anthropic-version" mapstructure:"anthropic_version"`
	AnthropicBeta     string  `json:"anthropic-beta" mapstructure:"anthropic_beta"`
	Temperature       float64 `json:"temperature" mapstructure:"temperature"`
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`

	client  *http.Client
	apiKey  string
	limiter generic.RateLimiter
	debug   bool
}

var Default = Claude{
	URL:              ClaudeURL,
	AnthropicVersion: "2023-06-01",
	Temperature:      0.7,
	MaxTokens:        4096,
}

type claudeReq struct {
	Model       string              `json:"model"`
	Messages    []ClaudeConvMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens"`
	Stream      bool                `json:"stream"`
	System      string              `json:"system,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	Tools       []claudeTool        `json:"tools,omitempty"`
	ToolChoice  *toolChoice         `json:"tool_choice,omitempty"`
}

type claudeTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema pub_models.InputSchema `json:"input_schema"`
}

type toolChoice struct {
	Type string `json:"type"`
}

func toClaudeTools(specs []pub_models.Specification) []claudeTool {
	ret := make([]claudeTool, 0, len(specs))
	for _, s := range specs {
		var is pub_models.InputSchema
		if s.Inputs != nil {
			is = *s.Inputs
		}
		is.Patch()
		ret = append(ret, claudeTool{Name: s.Name, Description: s.Description, InputSchema: is})
	}
	return ret
}

// systemPrompt joins all system messages, Claude only accepts one top level
// system prompt.
func systemPrompt(msgs []pub_models.Message) string {
	var parts []string
	for _, m := range msgs {
		if m.Role == pub_models.RoleSystem && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// claudifyMessages converts from the canonical openai chat format into the
// block format claude wants: tool calls become tool_use blocks, tool
// messages become tool_result blocks inside user turns and consecutive
// turns of the same role are merged.
func claudifyMessages(msgs []pub_models.Message) []ClaudeConvMessage {
	claudeMsgs := make([]ClaudeConvMessage, 0, len(msgs))
	for _, msg := range msgs {
		var cm ClaudeConvMessage
		switch msg.Role {
		case pub_models.RoleSystem:
			continue
		case pub_models.RoleTool:
			cm.Role = pub_models.RoleUser
			cm.Content = append(cm.Content, ToolResultContentBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolCallID,
				Content:   msg.Content,
				IsError:   strings.HasPrefix(msg.Content, "ERROR:"),
			})
		default:
			cm.Role = msg.Role
			if msg.Content != "" {
				cm.Content = append(cm.Content, TextContentBlock{Type: "text", Text: msg.Content})
			}
			for _, c := range msg.ToolCalls {
				input := map[string]any(c.Args())
				cm.Content = append(cm.Content, ToolUseContentBlock{
					Type:  "tool_use",
					ID:    c.ID,
					Name:  c.Name,
					Input: &input,
				})
			}
		}
		if len(cm.Content) == 0 {
			continue
		}
		if n := len(claudeMsgs); n > 0 && claudeMsgs[n-1].Role == cm.Role {
			claudeMsgs[n-1].Content = append(claudeMsgs[n-1].Content, cm.Content...)
			continue
		}
		claudeMsgs = append(claudeMsgs, cm)
	}
	return claudeMsgs
}
