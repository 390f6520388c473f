// This package contains tests intended to be used by the implementations of
// the StreamCompleter interface
package models

import (
	"context"
	"testing"
	"time"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
)

// StreamCompleter_Test verifies that s gives up once the context is
// cancelled, regardless of whether the upstream ever answers.
func StreamCompleter_Test(t *testing.T, s StreamCompleter) {
	testboil.ReturnsOnContextCancel(t, func(ctx context.Context) {
		ch, err := s.StreamCompletions(ctx, Request{
			Chat: pub_models.Chat{Messages: []pub_models.Message{{Role: "user", Content: "hi"}}},
		})
		if err != nil {
			return
		}
		for range ch {
		}
	}, time.Second)
}

// CollectText drains ch and returns the concatenated text, the tool calls
// and the first error seen.
func CollectText(ch chan CompletionEvent) (string, []pub_models.Call, error) {
	var text string
	var calls []pub_models.Call
	var firstErr error
	for ev := range ch {
		switch e := ev.(type) {
		case string:
			text += e
		case pub_models.Call:
			calls = append(calls, e)
		case error:
			if firstErr == nil {
				firstErr = e
			}
		}
	}
	return text, calls, firstErr
}
