package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageJSON(t *testing.T) {
	in := `{"role":"assistant","content":null,"toolCalls":[{"id":"c1","name":"get_stock","arguments":{"query":"AAPL"}}]}`
	var m Message
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if m.Content != "" {
		t.Fatalf("expected null content to decode as empty string, got %q", m.Content)
	}
	if !m.HasToolCalls() {
		t.Fatal("expected tool calls")
	}
	if got := m.ToolCalls[0].Args()["query"]; got != "AAPL" {
		t.Fatalf("expected query AAPL, got %v", got)
	}

	tool := Message{Role: RoleTool, ToolCallID: "c1", Content: "{}"}
	b, err := json.Marshal(tool)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	if string(b) != `{"role":"tool","content":"{}","toolCallId":"c1"}` {
		t.Fatalf("unexpected encoding: %s", b)
	}
}

func TestChatHelpers(t *testing.T) {
	c := Chat{
		Created: time.Now(),
		ID:      "id1",
		Messages: []Message{
			{Role: "system", Content: "sys"},
			{Role: "user", Content: "u1"},
			{Role: "assistant", Content: "a"},
			{Role: "user", Content: "u2"},
		},
	}

	if m, err := c.FirstSystemMessage(); err != nil || m.Content != "sys" {
		t.Fatalf("FirstSystemMessage unexpected: %v, %v", m, err)
	}
	if m, err := c.FirstUserMessage(); err != nil || m.Content != "u1" {
		t.Fatalf("FirstUserMessage unexpected: %v, %v", m, err)
	}
	m, idx, err := c.LastOfRole("user")
	if err != nil || m.Content != "u2" || idx != 3 {
		t.Fatalf("LastOfRole unexpected: %v, %v, %d", m, err, idx)
	}
	if _, _, err := c.LastOfRole("none"); err == nil {
		t.Fatalf("expected error for missing role")
	}
}

func TestChatCopyDoesNotShareToolCalls(t *testing.T) {
	orig := Chat{Messages: []Message{{Role: RoleAssistant, ToolCalls: []Call{{ID: "a", Name: "x"}}}}}
	cpy := orig.Copy()
	cpy.Messages[0].ToolCalls[0].Name = "mutated"
	cpy.Messages[0].Content = "mutated"
	if orig.Messages[0].ToolCalls[0].Name != "x" || orig.Messages[0].Content != "" {
		t.Fatalf("original mutated: %+v", orig.Messages[0])
	}
}
