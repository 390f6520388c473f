package models

import (
	"bytes"
	"encoding/json"
)

// ChunkType discriminates the variants of a Chunk.
type ChunkType string

const (
	ChunkText       ChunkType = "text"
	ChunkToolCall   ChunkType = "tool_call"
	ChunkToolResult ChunkType = "tool_result"
	ChunkError      ChunkType = "error"
)

// Chunk is one unit of the streamed response. Only the fields belonging to
// the variant named by Type are set.
type Chunk struct {
	Type    ChunkType       `json:"type"`
	Content string          `json:"content,omitempty"`
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Args    *Input          `json:"args,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

func TextChunk(content string) Chunk {
	return Chunk{Type: ChunkText, Content: content}
}

func ToolCallChunk(c Call) Chunk {
	args := c.Args()
	return Chunk{Type: ChunkToolCall, ID: c.ID, Name: c.Name, Args: &args}
}

// ToolResultChunk embeds the output as JSON when it already is valid JSON,
// otherwise as a JSON string.
func ToolResultChunk(c Call, output string) Chunk {
	return Chunk{Type: ChunkToolResult, ID: c.ID, Name: c.Name, Result: ResultJSON(output)}
}

func ErrorChunk(msg string) Chunk {
	return Chunk{Type: ChunkError, Message: msg}
}

// ResultJSON returns output verbatim if it is a JSON object or array, else
// the output encoded as a JSON string.
func ResultJSON(output string) json.RawMessage {
	b := bytes.TrimSpace([]byte(output))
	if len(b) > 0 && (b[0] == '{' || b[0] == '[') && json.Valid(b) {
		return json.RawMessage(b)
	}
	enc, _ := json.Marshal(output)
	return json.RawMessage(enc)
}
