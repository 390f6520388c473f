package router

import (
	"fmt"
	"testing"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
)

func describe(msgs []pub_models.Message) string {
	var ret string
	for _, m := range msgs {
		ret += fmt.Sprintf("%v(%v|%v|%v) ", m.Role, m.Content, len(m.ToolCalls), m.ToolCallID)
	}
	return ret
}

func TestSanitize(t *testing.T) {
	call := func(id string) pub_models.Call {
		return pub_models.Call{ID: id, Name: "echo", Inputs: &pub_models.Input{}}
	}
	user := func(c string) pub_models.Message { return pub_models.Message{Role: pub_models.RoleUser, Content: c} }
	tool := func(id, c string) pub_models.Message {
		return pub_models.Message{Role: pub_models.RoleTool, Content: c, ToolCallID: id}
	}
	assistant := func(c string, calls ...pub_models.Call) pub_models.Message {
		return pub_models.Message{Role: pub_models.RoleAssistant, Content: c, ToolCalls: calls}
	}

	tests := []struct {
		name string
		in   []pub_models.Message
		want []pub_models.Message
	}{
		{
			name: "drops empty messages",
			in:   []pub_models.Message{user("hi"), assistant("  "), user("")},
			want: []pub_models.Message{user("hi")},
		},
		{
			name: "keeps empty content with tool calls",
			in:   []pub_models.Message{user("hi"), assistant("", call("a")), tool("a", "out")},
			want: []pub_models.Message{user("hi"), assistant("", call("a")), tool("a", "out")},
		},
		{
			name: "keeps empty tool output",
			in:   []pub_models.Message{assistant("", call("a")), tool("a", "")},
			want: []pub_models.Message{assistant("", call("a")), tool("a", "")},
		},
		{
			name: "drops orphan tool message",
			in:   []pub_models.Message{user("hi"), tool("x", "out"), user("again")},
			want: []pub_models.Message{user("hi"), user("again")},
		},
		{
			name: "drops tool message answering an earlier block",
			in:   []pub_models.Message{assistant("", call("a")), tool("a", "1"), user("next"), tool("a", "2")},
			want: []pub_models.Message{assistant("", call("a")), tool("a", "1"), user("next")},
		},
		{
			name: "drops duplicate answers",
			in:   []pub_models.Message{assistant("", call("a")), tool("a", "1"), tool("a", "2")},
			want: []pub_models.Message{assistant("", call("a")), tool("a", "1")},
		},
		{
			name: "answers unanswered calls",
			in:   []pub_models.Message{assistant("", call("a"), call("b")), tool("b", "ok"), user("next")},
			want: []pub_models.Message{
				assistant("", call("a"), call("b")),
				tool("b", "ok"),
				tool("a", unansweredCall),
				user("next"),
			},
		},
		{
			name: "answers trailing calls",
			in:   []pub_models.Message{user("hi"), assistant("sure", call("a"))},
			want: []pub_models.Message{user("hi"), assistant("sure", call("a")), tool("a", unansweredCall)},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := sanitize(tc.in)
			testboil.FailTestIfDiff(t, describe(got), describe(tc.want))
		})
	}
}

func TestSanitize_GeneratesMissingCallIDs(t *testing.T) {
	in := []pub_models.Message{
		{Role: pub_models.RoleAssistant, ToolCalls: []pub_models.Call{{Name: "echo"}}},
	}
	got := sanitize(in)
	testboil.FailTestIfDiff(t, len(got), 2)
	id := got[0].ToolCalls[0].ID
	if id == "" {
		t.Fatal("expected generated call id")
	}
	testboil.FailTestIfDiff(t, got[1].ToolCallID, id)
	// Input untouched
	testboil.FailTestIfDiff(t, in[0].ToolCalls[0].ID, "")
}
