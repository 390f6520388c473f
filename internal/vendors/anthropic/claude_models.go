package anthropic

type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// streamEvent is the union of all data payloads sent on the stream. Only
// the fields relevant for Type are set.
type streamEvent struct {
	Type         string              `json:"type"`
	Index        int                 `json:"index"`
	Delta        Delta               `json:"delta"`
	ContentBlock ToolUseContentBlock `json:"content_block"`
	Error        *streamError        `json:"error,omitempty"`
}

type streamError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ToolUseContentBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input *map[string]any `json:"input,omitempty"`
}

type ToolResultContentBlock struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	ToolUseID string `json:"tool_use_id"`
	IsError   bool   `json:"is_error,omitempty"`
}

type TextContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ClaudeConvMessage struct {
	Role string `json:"role"`
	// Content may be either ToolUseContentBlock, ToolResultContentBlock or
	// TextContentBlock
	Content []any `json:"content"`
}
