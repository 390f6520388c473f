package router

import (
	"strings"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

// unansweredCall is the output of the synthetic tool message added for
// calls which never got a result.
const unansweredCall = "ERROR: tool call was interrupted and produced no result"

// sanitize returns a copy of msgs which every provider accepts:
//   - messages with no content and no tool calls are dropped, tool messages excepted
//   - messages with tool calls are always kept
//   - tool messages which don't answer a call of the assistant message
//     opening their block are dropped
//   - calls which aren't answered get a synthetic error tool message
func sanitize(msgs []pub_models.Message) []pub_models.Message {
	ret := make([]pub_models.Message, 0, len(msgs))
	// Calls of the latest assistant message, and whether they've been answered.
	var open []pub_models.Call
	answered := map[string]bool{}

	closeBlock := func() {
		for _, c := range open {
			if !answered[c.ID] {
				ret = append(ret, pub_models.Message{
					Role:       pub_models.RoleTool,
					Content:    unansweredCall,
					ToolCallID: c.ID,
				})
			}
		}
		open = nil
		answered = map[string]bool{}
	}

	for _, m := range msgs {
		if m.Role == pub_models.RoleTool {
			if !isOpen(open, m.ToolCallID) || answered[m.ToolCallID] {
				continue
			}
			answered[m.ToolCallID] = true
			ret = append(ret, m)
			continue
		}
		closeBlock()
		if !m.HasToolCalls() && strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.HasToolCalls() {
			m.ToolCalls = patchedCalls(m.ToolCalls)
			open = m.ToolCalls
		}
		ret = append(ret, m)
	}
	closeBlock()
	return ret
}

func isOpen(open []pub_models.Call, id string) bool {
	if id == "" {
		return false
	}
	for _, c := range open {
		if c.ID == id {
			return true
		}
	}
	return false
}

func patchedCalls(calls []pub_models.Call) []pub_models.Call {
	ret := make([]pub_models.Call, len(calls))
	for i, c := range calls {
		c.Patch()
		ret[i] = c
	}
	return ret
}
