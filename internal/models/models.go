package models

import (
	"context"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

// CompletionEvent is emitted by a StreamCompleter. It is one of:
// string (text delta), pub_models.Call (complete tool call), error,
// NoopEvent or StopEvent.
type CompletionEvent any

// NoopEvent carries nothing and is skipped by consumers.
type NoopEvent struct{}

// StopEvent signals that the provider finished the turn.
type StopEvent struct{}

// Capabilities are static per model and consulted before tools or image
// content are offered to a provider.
type Capabilities struct {
	Tools  bool `json:"tools" mapstructure:"tools"`
	Vision bool `json:"vision" mapstructure:"vision"`
}

// Request is one provider round trip.
type Request struct {
	Model string
	Chat  pub_models.Chat
	// Tools offered to the model. Empty means no function calling.
	Tools []pub_models.Specification
	// MaxTokens overrides the vendor default when > 0.
	MaxTokens int
	// ForbidToolCalls keeps Tools declared, so that earlier tool traffic in
	// the chat stays valid, but asks the model to answer in text.
	ForbidToolCalls bool
}

// StreamCompleter is implemented by every provider adapter.
type StreamCompleter interface {
	// Setup reads credentials from the environment and prepares the client.
	Setup() error

	// StreamCompletions issues the request and returns a channel of
	// events. The channel is closed when the provider ends the turn, on
	// error, or when ctx is cancelled. Errors before streaming starts are
	// returned directly.
	StreamCompletions(ctx context.Context, req Request) (chan CompletionEvent, error)
}
