package generic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/baalimago/chatmux/internal/models"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/debug"
)

var dataPrefix = []byte("data:")

// StreamCompletions sends the chat and streams the answer. Tool call
// arguments are accumulated across deltas and emitted as one
// pub_models.Call once the vendor signals the end of the choice.
func (s *StreamCompleter) StreamCompletions(ctx context.Context, r models.Request) (chan models.CompletionEvent, error) {
	msgs := r.Chat.Copy().Messages
	if s.Clean != nil {
		msgs = s.Clean(msgs)
	}
	req, err := s.createRequest(ctx, r, msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if err := s.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		return nil, s.upstreamError(res)
	}
	return s.handleStreamResponse(ctx, res), nil
}

func (s *StreamCompleter) createRequest(ctx context.Context, r models.Request, msgs []pub_models.Message) (*http.Request, error) {
	reqData := req{
		Model:            r.Model,
		FrequencyPenalty: s.FrequencyPenalty,
		MaxTokens:        s.MaxTokens,
		PresencePenalty:  s.PresencePenalty,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		Messages:         toWireMessages(msgs),
		Stream:           true,
	}
	if r.MaxTokens > 0 {
		mt := r.MaxTokens
		reqData.MaxTokens = &mt
	}
	if len(r.Tools) > 0 {
		reqData.Tools = convertToGenericTools(r.Tools)
		reqData.ToolChoice = s.ToolChoice
		if r.ForbidToolCalls {
			none := "none"
			reqData.ToolChoice = &none
		}
	}
	if s.debug {
		ancli.PrintOK(fmt.Sprintf("%v streamcompleter request: %v\n", s.Provider, debug.IndentedJsonFmt(reqData)))
	}
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %v", s.apiKey))
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Connection", "keep-alive")
	return req, nil
}

// upstreamError reads the vendor error body into an UpstreamProviderError.
func (s *StreamCompleter) upstreamError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	upErr := &models.UpstreamProviderError{
		Provider:   s.Provider,
		StatusCode: res.StatusCode,
		Message:    VendorErrorMessage(body, res.Status),
	}
	if res.StatusCode == http.StatusTooManyRequests {
		upErr.ResetAt = s.Limiter.ResetHint(res.Header)
	}
	if s.debug {
		ancli.Warnf("%v responded with status: %v, body: %s\n", s.Provider, res.Status, body)
	}
	return upErr
}

// VendorErrorMessage extracts a human readable message from the error
// bodies used by the supported vendors, falling back to fallback.
func VendorErrorMessage(body []byte, fallback string) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		switch {
		case nested.Error.Message != "":
			return nested.Error.Message
		case nested.Message != "":
			return nested.Message
		case nested.Detail != "":
			return nested.Detail
		}
	}
	// Gemini wraps errors in a list
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		return VendorErrorMessage(list[0], fallback)
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return fallback
	}
	if len(trimmed) > 500 {
		trimmed = trimmed[:500] + "..."
	}
	return trimmed
}

// pendingCall is a tool call under construction. The arguments are streamed
// as a stringified json, chunk by chunk.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

type streamState struct {
	pending []*pendingCall
	byIndex map[int]int
}

func (s *StreamCompleter) handleStreamResponse(ctx context.Context, res *http.Response) chan models.CompletionEvent {
	outChan := make(chan models.CompletionEvent)
	go func() {
		defer func() {
			res.Body.Close()
			close(outChan)
		}()
		send := func(ev models.CompletionEvent) bool {
			select {
			case outChan <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		state := &streamState{byIndex: make(map[int]int)}
		br := bufio.NewReader(res.Body)
		for {
			if ctx.Err() != nil {
				return
			}
			token, err := br.ReadBytes('\n')
			if len(token) > 0 {
				events, done := s.handleStreamChunk(state, token)
				for _, ev := range events {
					if !send(ev) {
						return
					}
				}
				if done {
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					// Some vendors close the stream without [DONE]
					for _, c := range s.flush(state) {
						if !send(c) {
							return
						}
					}
					send(models.StopEvent{})
					return
				}
				if ctx.Err() == nil {
					send(fmt.Errorf("failed to read line: %w", err))
				}
				return
			}
		}
	}()
	return outChan
}

// handleStreamChunk returns the events produced by one SSE line and whether
// the stream is done.
func (s *StreamCompleter) handleStreamChunk(state *streamState, token []byte) ([]models.CompletionEvent, bool) {
	token = bytes.TrimSpace(token)
	if !bytes.HasPrefix(token, dataPrefix) {
		// Blank keep-alives, comments and event names
		return nil, false
	}
	token = bytes.TrimSpace(bytes.TrimPrefix(token, dataPrefix))
	if string(token) == "[DONE]" {
		return append(s.flush(state), models.StopEvent{}), true
	}
	if s.debug {
		ancli.PrintOK(fmt.Sprintf("token: %+v\n", string(token)))
	}
	var chunk chatCompletionChunk
	if err := json.Unmarshal(token, &chunk); err != nil {
		if s.debug {
			ancli.PrintWarn(fmt.Sprintf("failed to unmarshal token: %s, err: %v\n", token, err))
		}
		return nil, false
	}
	if chunk.Error != nil {
		return []models.CompletionEvent{&models.UpstreamProviderError{
			Provider: s.Provider,
			Message:  chunk.Error.Message,
		}}, true
	}
	var events []models.CompletionEvent
	for _, choice := range chunk.Choices {
		// Only the first choice is requested
		if choice.Index != 0 {
			continue
		}
		events = append(events, s.handleChoice(state, choice)...)
	}
	return events, false
}

func (s *StreamCompleter) handleChoice(state *streamState, choice Choice) []models.CompletionEvent {
	var events []models.CompletionEvent
	if text := deltaText(choice.Delta.Content); text != "" {
		events = append(events, text)
	}
	for _, tc := range choice.Delta.ToolCalls {
		state.accumulate(tc)
	}
	if choice.FinishReason != "" {
		events = append(events, s.flush(state)...)
	}
	return events
}

func (st *streamState) accumulate(tc ToolsCall) {
	pos, ok := st.byIndex[tc.Index]
	// A new id on a known index is a new call, some vendors send every
	// call with index 0.
	if ok && tc.ID != "" && st.pending[pos].id != "" && st.pending[pos].id != tc.ID {
		ok = false
	}
	if !ok {
		st.pending = append(st.pending, &pendingCall{})
		pos = len(st.pending) - 1
		st.byIndex[tc.Index] = pos
	}
	p := st.pending[pos]
	if tc.ID != "" {
		p.id = tc.ID
	}
	if tc.Function.Name != "" {
		p.name = tc.Function.Name
	}
	p.args.WriteString(tc.Function.Arguments)
}

// flush converts all pending calls into events and resets the state.
func (s *StreamCompleter) flush(state *streamState) []models.CompletionEvent {
	events := make([]models.CompletionEvent, 0, len(state.pending))
	for _, p := range state.pending {
		if p.name == "" {
			continue
		}
		input := pub_models.Input{}
		raw := strings.TrimSpace(p.args.String())
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &input); err != nil {
				ancli.Warnf("%v: failed to unmarshal arguments of call '%v': %v, args: %v\n", s.Provider, p.name, err, raw)
				input = pub_models.Input{}
			}
		}
		if input == nil {
			input = pub_models.Input{}
		}
		call := pub_models.Call{ID: p.id, Name: p.name, Inputs: &input}
		call.Patch()
		events = append(events, call)
	}
	state.pending = nil
	state.byIndex = make(map[int]int)
	return events
}

// deltaText handles both plain string content and lists of typed parts.
func deltaText(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var sb strings.Builder
		for _, part := range c {
			m, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				sb.WriteString(t)
			}
		}
		return sb.String()
	}
	return ""
}
