package mistral

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"

	"github.com/baalimago/chatmux/internal/text/generic"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

const MistralURL = "https://api.mistral.ai/v1/chat/completions"

var Default = Mistral{
	Temperature: 0.7,
	TopP:        1.0,
	URL:         MistralURL,
}

type Mistral struct {
	generic.StreamCompleter

	URL               string  `json:"url" mapstructure:"url"`
	TopP              float64 `json:"top_p" mapstructure:"top_p"`
	Temperature       float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens         *int    `json:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `json:"requests_per_second" mapstructure:"requests_per_second"`
}

func (m *Mistral) Setup() error {
	err := m.StreamCompleter.Setup("MISTRAL_API_KEY", m.URL, "DEBUG_MISTRAL")
	if err != nil {
		return fmt.Errorf("failed to setup stream completer: %w", err)
	}
	m.StreamCompleter.Provider = "mistral"
	m.StreamCompleter.MaxTokens = m.MaxTokens
	m.StreamCompleter.Temperature = &m.Temperature
	m.StreamCompleter.TopP = &m.TopP
	m.StreamCompleter.Limiter = generic.NewRateLimiter("ratelimitbysize-reset").
		WithPacing(m.RequestsPerSecond, 1)
	toolChoice := "auto"
	m.StreamCompleter.ToolChoice = &toolChoice
	m.StreamCompleter.Clean = clean
	return nil
}

// Mistral only accepts tool call ids of exactly nine alphanumerics.
var validID = regexp.MustCompile(`^[a-zA-Z0-9]{9}$`)

func mistralID(id string) string {
	if validID.MatchString(id) {
		return id
	}
	h := fnv.New64a()
	h.Write([]byte(id))
	s := strconv.FormatUint(h.Sum64(), 36)
	for len(s) < 9 {
		s = "0" + s
	}
	return s[len(s)-9:]
}

func clean(msg []pub_models.Message) []pub_models.Message {
	for i, m := range msg {
		switch m.Role {
		case pub_models.RoleAssistant:
			if len(m.ToolCalls) > 0 {
				m.Content = ""
			}
			for j, tc := range m.ToolCalls {
				tc.ID = mistralID(tc.ID)
				m.ToolCalls[j] = tc
			}
		case pub_models.RoleTool:
			m.ToolCallID = mistralID(m.ToolCallID)
		}
		msg[i] = m
	}

	for i := 0; i < len(msg)-1; i++ {
		if msg[i].Role == pub_models.RoleTool && msg[i+1].Role == pub_models.RoleSystem {
			msg[i+1].Role = pub_models.RoleAssistant
		}
	}

	// Merge consequtive assistant messages
	for i := 1; i < len(msg); i++ {
		if msg[i].Role == pub_models.RoleAssistant && msg[i-1].Role == pub_models.RoleAssistant {
			prev := msg[i-1]
			if len(prev.ToolCalls) > 0 || len(msg[i].ToolCalls) > 0 {
				prev.ToolCalls = append(prev.ToolCalls, msg[i].ToolCalls...)
				prev.Content = ""
			} else {
				prev.Content = strings.TrimPrefix(prev.Content+"\n"+msg[i].Content, "\n")
			}
			msg[i-1] = prev
			msg = append(msg[:i], msg[i+1:]...)
			i--
		}
	}

	return msg
}
