package anthropic

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
	"github.com/baalimago/chatmux/internal/text/generic"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/debug"
)

const provider = "anthropic"

func (c *Claude) StreamCompletions(ctx context.Context, r models.Request) (chan models.CompletionEvent, error) {
	req, err := c.constructRequest(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("failed to construct request: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to do request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		upErr := &models.UpstreamProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    generic.VendorErrorMessage(body, resp.Status),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			upErr.ResetAt = c.limiter.ResetHint(resp.Header)
		}
		return nil, upErr
	}
	return c.handleStreamResponse(ctx, resp), nil
}

// blockState tracks one content block. Tool use input is streamed as
// partial json and only parseable once the block stops.
type blockState struct {
	typ  string
	id   string
	name string
	json strings.Builder
}

func (c *Claude) handleStreamResponse(ctx context.Context, resp *http.Response) chan models.CompletionEvent {
	outChan := make(chan models.CompletionEvent)
	go func() {
		defer func() {
			resp.Body.Close()
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
		blocks := make(map[int]*blockState)
		br := bufio.NewReader(resp.Body)
		for {
			if ctx.Err() != nil {
				return
			}
			line, err := br.ReadBytes('\n')
			if len(line) > 0 {
				ev, done := c.handleLine(blocks, line)
				if ev != nil && !send(ev) {
					return
				}
				if done {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					send(fmt.Errorf("failed to read line: %w", err))
					return
				}
				send(fmt.Errorf("stream ended before message_stop: %w", io.ErrUnexpectedEOF))
				return
			}
		}
	}()
	return outChan
}

// handleLine processes one line of the event stream. Only data lines carry
// information, the event name is repeated as the payload type.
func (c *Claude) handleLine(blocks map[int]*blockState, line []byte) (models.CompletionEvent, bool) {
	line = bytes.TrimSpace(line)
	if !bytes.HasPrefix(line, []byte("data:")) {
		return nil, false
	}
	data := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
	if c.debug {
		ancli.PrintOK(fmt.Sprintf("claude data: %s\n", data))
	}
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("failed to unmarshal event: '%s', err: %w", data, err), true
	}
	switch ev.Type {
	case "content_block_start":
		blocks[ev.Index] = &blockState{
			typ:  ev.ContentBlock.Type,
			id:   ev.ContentBlock.ID,
			name: ev.ContentBlock.Name,
		}
	case "content_block_delta":
		return c.handleContentBlockDelta(blocks, ev), false
	case "content_block_stop":
		b, ok := blocks[ev.Index]
		delete(blocks, ev.Index)
		if ok && b.typ == "tool_use" {
			return b.toCall(), false
		}
	case "message_stop":
		return models.StopEvent{}, true
	case "error":
		msg := "unknown stream error"
		if ev.Error != nil {
			msg = fmt.Sprintf("%v: %v", ev.Error.Type, ev.Error.Message)
		}
		return &models.UpstreamProviderError{Provider: provider, Message: msg}, true
	}
	// message_start, message_delta and ping carry nothing for the stream
	return nil, false
}

func (c *Claude) handleContentBlockDelta(blocks map[int]*blockState, ev streamEvent) models.CompletionEvent {
	switch ev.Delta.Type {
	case "text_delta":
		if ev.Delta.Text == "" {
			return nil
		}
		return ev.Delta.Text
	case "input_json_delta":
		if b, ok := blocks[ev.Index]; ok {
			b.json.WriteString(ev.Delta.PartialJSON)
		}
	}
	return nil
}

func (b *blockState) toCall() models.CompletionEvent {
	input := pub_models.Input{}
	raw := strings.TrimSpace(b.json.String())
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return fmt.Errorf("failed to unmarshal tool input: %v, error is: %w", raw, err)
		}
	}
	if input == nil {
		input = pub_models.Input{}
	}
	call := pub_models.Call{ID: b.id, Name: b.name, Inputs: &input}
	call.Patch()
	return call
}

func (c *Claude) constructRequest(ctx context.Context, r models.Request) (*http.Request, error) {
	msgs := r.Chat.Copy().Messages
	reqData := claudeReq{
		Model:     r.Model,
		Messages:  claudifyMessages(msgs),
		MaxTokens: c.MaxTokens,
		Stream:    true,
		System:    systemPrompt(msgs),
	}
	if r.MaxTokens > 0 {
		reqData.MaxTokens = r.MaxTokens
	}
	if c.Temperature > 0 {
		temp := c.Temperature
		reqData.Temperature = &temp
	}
	if len(r.Tools) > 0 {
		reqData.Tools = toClaudeTools(r.Tools)
		reqData.ToolChoice = &toolChoice{Type: "auto"}
		if r.ForbidToolCalls {
			reqData.ToolChoice = &toolChoice{Type: "none"}
		}
	}
	if c.debug {
		ancli.PrintOK(fmt.Sprintf("claude request: %v\n", debug.IndentedJsonFmt(reqData)))
	}
	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ClaudeReq: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", c.AnthropicVersion)
	if c.AnthropicBeta != "" {
		req.Header.Set("anthropic-beta", c.AnthropicBeta)
	}
	return req, nil
}
