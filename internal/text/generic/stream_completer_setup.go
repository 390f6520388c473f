package generic

import (
	"fmt"
	"net/http"
	"os"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

// Setup reads the API key from apiKeyEnv and points the completer at url.
func (s *StreamCompleter) Setup(apiKeyEnv, url, debugEnv string) error {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return fmt.Errorf("environment variable '%v' not set", apiKeyEnv)
	}
	if s.client == nil {
		s.client = &http.Client{}
	}
	s.apiKey = apiKey
	s.url = url

	if misc.Truthy(os.Getenv("DEBUG")) || misc.Truthy(os.Getenv(debugEnv)) {
		s.debug = true
	}
	return nil
}

// SetHTTPClient replaces the client used for outbound requests.
func (s *StreamCompleter) SetHTTPClient(c *http.Client) {
	s.client = c
}

// URL returns the endpoint the completer streams from.
func (s *StreamCompleter) URL() string {
	return s.url
}

func convertToGenericTools(specs []pub_models.Specification) []ToolSuper {
	ret := make([]ToolSuper, 0, len(specs))
	for _, spec := range specs {
		var inputs pub_models.InputSchema
		if spec.Inputs != nil {
			inputs = *spec.Inputs
		}
		inputs.Patch()
		ret = append(ret, ToolSuper{
			Type: "function",
			Function: Tool{
				Name:        spec.Name,
				Description: spec.Description,
				Inputs:      inputs,
			},
		})
	}
	return ret
}

// toWireMessages converts canonical messages into the OpenAI chat format.
func toWireMessages(msgs []pub_models.Message) []wireMessage {
	ret := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for i, c := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, ToolsCall{
				ID:    c.ID,
				Index: i,
				Type:  "function",
				Function: Func{
					Name:      c.Name,
					Arguments: c.ArgumentsJSON(),
				},
			})
		}
		ret = append(ret, wm)
	}
	return ret
}
