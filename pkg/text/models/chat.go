package models

import (
	"errors"
	"fmt"
	"time"
)

// Role of a message author.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type Chat struct {
	Created  time.Time `json:"created,omitempty"`
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
}

type Message struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []Call         `json:"toolCalls,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`
	Citations  []SearchResult `json:"citations,omitempty"`
}

// SearchResult is a citation produced by a retrieval tool.
type SearchResult struct {
	ID      string  `json:"id"`
	Title   string  `json:"title,omitempty"`
	URL     string  `json:"url,omitempty"`
	Content string  `json:"content"`
	Score   float32 `json:"score"`
}

// HasToolCalls reports if the message requests at least one tool call.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// FirstSystemMessage returns the first encountered Message with role 'system'
func (c *Chat) FirstSystemMessage() (Message, error) {
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			return msg, nil
		}
	}
	return Message{}, errors.New("failed to find any system message")
}

func (c *Chat) FirstUserMessage() (Message, error) {
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			return msg, nil
		}
	}
	return Message{}, errors.New("failed to find any user message")
}

func (c *Chat) LastOfRole(role string) (Message, int, error) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		msg := c.Messages[i]
		if msg.Role == role {
			return msg, i, nil
		}
	}
	return Message{}, -1, fmt.Errorf("failed to find any %v message", role)
}

// Copy returns a deep enough copy of the chat for callers that must not
// observe mutations: messages, tool calls and citations are new slices.
func (c Chat) Copy() Chat {
	cpy := c
	cpy.Messages = make([]Message, len(c.Messages))
	for i, m := range c.Messages {
		if m.ToolCalls != nil {
			m.ToolCalls = append([]Call(nil), m.ToolCalls...)
		}
		if m.Citations != nil {
			m.Citations = append([]SearchResult(nil), m.Citations...)
		}
		cpy.Messages[i] = m
	}
	return cpy
}
