package router

import (
	"context"
	"sync"

	"github.com/baalimago/chatmux/internal/models"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

// scriptedCompleter replays one slice of events per StreamCompletions call
// and records the requests it received.
type scriptedCompleter struct {
	mu       sync.Mutex
	rounds   [][]models.CompletionEvent
	repeat   []models.CompletionEvent
	startErr error
	hang     bool
	requests []models.Request
}

func (s *scriptedCompleter) Setup() error { return nil }

func (s *scriptedCompleter) StreamCompletions(ctx context.Context, req models.Request) (chan models.CompletionEvent, error) {
	s.mu.Lock()
	s.requests = append(s.requests, models.Request{
		Model:           req.Model,
		Chat:            req.Chat.Copy(),
		Tools:           req.Tools,
		MaxTokens:       req.MaxTokens,
		ForbidToolCalls: req.ForbidToolCalls,
	})
	if s.startErr != nil {
		s.mu.Unlock()
		return nil, s.startErr
	}
	evs := s.repeat
	if len(s.rounds) > 0 {
		evs = s.rounds[0]
		s.rounds = s.rounds[1:]
	}
	s.mu.Unlock()

	ch := make(chan models.CompletionEvent)
	go func() {
		defer close(ch)
		for _, ev := range evs {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
		if s.hang {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

func (s *scriptedCompleter) calls() []models.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Request(nil), s.requests...)
}

type funcTool struct {
	spec pub_models.Specification
	fn   func(ctx context.Context, in pub_models.Input) (string, error)
}

func (f *funcTool) Call(ctx context.Context, in pub_models.Input) (string, error) {
	return f.fn(ctx, in)
}

func (f *funcTool) Specification() pub_models.Specification {
	return f.spec
}

func echoTool() *funcTool {
	return &funcTool{
		spec: pub_models.Specification{
			Name:        "echo",
			Description: "Echoes text",
			Inputs: &pub_models.InputSchema{
				Type:     "object",
				Required: []string{"text"},
				Properties: map[string]pub_models.ParameterObject{
					"text": {Type: "string"},
				},
			},
		},
		fn: func(_ context.Context, in pub_models.Input) (string, error) {
			s, _ := in["text"].(string)
			return s, nil
		},
	}
}

func collect(ch <-chan pub_models.Chunk) []pub_models.Chunk {
	var ret []pub_models.Chunk
	for c := range ch {
		ret = append(ret, c)
	}
	return ret
}

func chunkTypes(chunks []pub_models.Chunk) []pub_models.ChunkType {
	ret := make([]pub_models.ChunkType, 0, len(chunks))
	for _, c := range chunks {
		ret = append(ret, c.Type)
	}
	return ret
}
