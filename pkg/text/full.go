package text

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/baalimago/chatmux/internal/router"
	"github.com/baalimago/chatmux/internal/tools"
	"github.com/baalimago/chatmux/pkg/text/models"
	"github.com/google/uuid"
)

const DefaultModel = "gpt-4o-mini"

// FullResponse text querier, as opposed to returning a stream or something
type FullResponse interface {
	Setup(context.Context) error

	// Query the underlying llm with some prompt. Will cancel on context cancel.
	Query(context.Context, models.Chat) (models.Chat, error)
}

type publicQuerier struct {
	model        string
	systemPrompt string
	maxRounds    int
	llmTools     []models.LLMTool
	providers    router.Providers

	router *router.Router
}

// Option configures a publicQuerier.
type Option func(*publicQuerier)

func WithModel(model string) Option {
	return func(pq *publicQuerier) {
		pq.model = model
	}
}

// WithSystemPrompt is prepended to chats lacking a system message.
func WithSystemPrompt(prompt string) Option {
	return func(pq *publicQuerier) {
		pq.systemPrompt = prompt
	}
}

// WithLLMTools offers the given tools to models supporting tool calls.
func WithLLMTools(tools ...models.LLMTool) Option {
	return func(pq *publicQuerier) {
		pq.llmTools = append(pq.llmTools, tools...)
	}
}

// WithMaxRounds bounds the amount of model calls per query.
func WithMaxRounds(n int) Option {
	return func(pq *publicQuerier) {
		pq.maxRounds = n
	}
}

func withProviders(p router.Providers) Option {
	return func(pq *publicQuerier) {
		pq.providers = p
	}
}

// NewFullResponseQuerier constructs a FullResponse using the default
// model catalog and provider settings. API keys are read from the
// environment during Setup.
func NewFullResponseQuerier(opts ...Option) FullResponse {
	pq := &publicQuerier{
		model:     DefaultModel,
		maxRounds: router.DefaultMaxRounds,
	}
	for _, opt := range opts {
		opt(pq)
	}
	return pq
}

// Setup the providers and the router. Called by Query if needed.
func (pq *publicQuerier) Setup(ctx context.Context) error {
	if pq.router != nil {
		return nil
	}
	providers := pq.providers
	if providers == nil {
		providers = router.SetupProviders(router.DefaultProviderConfig())
	}
	catalog := router.NewCatalog(router.DefaultModels())
	model, err := catalog.Resolve(pq.model)
	if err != nil {
		return err
	}
	if !providers.IsConfigured(model.Provider) {
		return fmt.Errorf("provider of model '%v' isn't configured: '%v'", pq.model, model.Provider)
	}
	reg := tools.NewRegistry()
	for _, t := range pq.llmTools {
		reg.Register(t)
	}
	pq.router = router.New(catalog, providers,
		router.WithSessions(tools.NewSessions(reg)),
		router.WithMaxRounds(pq.maxRounds),
	)
	return nil
}

// Query the model with some input chat. Will return a chat containing updated responses. The returning chat may
// append multiple messages to the chat, if the model decided to use tools.
func (pq *publicQuerier) Query(ctx context.Context, inpChat models.Chat) (models.Chat, error) {
	if err := pq.Setup(ctx); err != nil {
		return models.Chat{}, fmt.Errorf("failed to setup: %w", err)
	}
	chat := inpChat.Copy()
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	if chat.Created.IsZero() {
		chat.Created = time.Now()
	}
	if _, err := chat.FirstSystemMessage(); err != nil && pq.systemPrompt != "" {
		chat.Messages = append([]models.Message{{Role: models.RoleSystem, Content: pq.systemPrompt}}, chat.Messages...)
	}
	stream := pq.router.StreamChat(ctx, router.Request{ModelID: pq.model, Messages: chat.Messages})
	answer, err := collectMessages(stream)
	if err != nil {
		return models.Chat{}, err
	}
	if ctx.Err() != nil {
		return models.Chat{}, ctx.Err()
	}
	chat.Messages = append(chat.Messages, answer...)
	return chat, nil
}

// collectMessages folds a chunk stream back into messages. Text preceding
// tool calls becomes the assistant message requesting them, each result a
// tool message. Calls are grouped until the model answers with text again.
func collectMessages(stream <-chan models.Chunk) ([]models.Message, error) {
	var (
		msgs []models.Message
		text strings.Builder
		err  error
	)
	pending := -1
	for chunk := range stream {
		switch chunk.Type {
		case models.ChunkText:
			pending = -1
			text.WriteString(chunk.Content)
		case models.ChunkToolCall:
			if pending < 0 {
				msgs = append(msgs, models.Message{Role: models.RoleAssistant, Content: text.String()})
				text.Reset()
				pending = len(msgs) - 1
			}
			input := models.Input{}
			if chunk.Args != nil {
				input = *chunk.Args
			}
			msgs[pending].ToolCalls = append(msgs[pending].ToolCalls, models.Call{ID: chunk.ID, Name: chunk.Name, Inputs: &input})
		case models.ChunkToolResult:
			msgs = append(msgs, models.Message{
				Role:       models.RoleTool,
				Content:    resultText(chunk.Result),
				ToolCallID: chunk.ID,
			})
		case models.ChunkError:
			err = errors.New(chunk.Message)
		}
	}
	if text.Len() > 0 {
		msgs = append(msgs, models.Message{Role: models.RoleAssistant, Content: text.String()})
	}
	return msgs, err
}

func resultText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
