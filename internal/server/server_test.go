package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/baalimago/chatmux/internal/models"
	"github.com/baalimago/chatmux/internal/ratelimit"
	"github.com/baalimago/chatmux/internal/router"
	"github.com/baalimago/chatmux/internal/tools"
	"github.com/baalimago/chatmux/internal/tools/mcp"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCompleter answers every request with the same events.
type fakeCompleter struct {
	events   []models.CompletionEvent
	startErr error
}

func (f *fakeCompleter) Setup() error { return nil }

func (f *fakeCompleter) StreamCompletions(ctx context.Context, _ models.Request) (chan models.CompletionEvent, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	ch := make(chan models.CompletionEvent)
	go func() {
		defer close(ch)
		for _, ev := range f.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

type testEnv struct {
	srv      *Server
	sessions *tools.Sessions
}

func newTestEnv(t *testing.T, sc models.StreamCompleter, opts ...router.Option) testEnv {
	t.Helper()
	return newTestEnvWith(t, sc, nil, opts...)
}

func newTestEnvWith(t *testing.T, sc models.StreamCompleter, serverOpts []Option, opts ...router.Option) testEnv {
	t.Helper()
	sessions := tools.NewSessions(tools.NewRegistry())
	opts = append(opts, router.WithSessions(sessions))
	r := router.New(router.NewCatalog(router.DefaultModels()), router.Providers{router.ProviderOpenAI: sc}, opts...)
	manager := mcp.NewManager(sessions)
	t.Cleanup(manager.Close)
	return testEnv{srv: New(r, manager, serverOpts...), sessions: sessions}
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeChunks(t *testing.T, body string) []pub_models.Chunk {
	t.Helper()
	var chunks []pub_models.Chunk
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var c pub_models.Chunk
		require.NoError(t, json.Unmarshal([]byte(line), &c), "line: %v", line)
		chunks = append(chunks, c)
	}
	return chunks
}

const chatBody = `{"modelId":"gpt-4o","messages":[{"role":"user","content":"What's 2+2?"}]}`

func TestChat_Streams(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{events: []models.CompletionEvent{"2+2 ", "is 4", models.StopEvent{}}})

	rec := do(t, env.srv, http.MethodPost, "/api/chat", chatBody)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	chunks := decodeChunks(t, rec.Body.String())
	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, pub_models.ChunkText, c.Type)
	}
	assert.Equal(t, "2+2 is 4", chunks[0].Content+chunks[1].Content)
}

func TestChat_KeepsCallerRequestID(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{events: []models.CompletionEvent{"hi"}})
	rec := do(t, env.srv, http.MethodPost, "/api/chat", chatBody, "X-Request-ID", "abc123")
	assert.Equal(t, "abc123", rec.Header().Get("X-Request-Id"))
}

func TestChat_BadRequests(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{})
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "malformed", body: `{"messages": [`, want: "malformed request body"},
		{name: "no messages", body: `{"modelId":"gpt-4o"}`, want: "messages are required"},
		{name: "bad role", body: `{"modelId":"gpt-4o","messages":[{"role":"robot","content":"x"}]}`, want: "invalid role: 'robot'"},
		{name: "no model", body: `{"messages":[{"role":"user","content":"x"}]}`, want: "modelId is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, env.srv, http.MethodPost, "/api/chat", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestChat_UnknownModelIsOneErrorChunk(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{events: []models.CompletionEvent{"never"}})
	rec := do(t, env.srv, http.MethodPost, "/api/chat", `{"modelId":"not-a-real-model","messages":[{"role":"user","content":"hi"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	chunks := decodeChunks(t, rec.Body.String())
	require.Len(t, chunks, 1)
	assert.Equal(t, pub_models.ChunkError, chunks[0].Type)
	assert.Contains(t, chunks[0].Message, "unknown model")
}

func TestChat_RateLimitByHeader(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.Config{Window: time.Hour, Free: 1})
	env := newTestEnvWith(t, &fakeCompleter{events: []models.CompletionEvent{"ok"}}, []Option{WithTrustedTier()}, router.WithLimiter(limiter))

	first := decodeChunks(t, do(t, env.srv, http.MethodPost, "/api/chat", chatBody, HeaderUserID, "alice").Body.String())
	require.Len(t, first, 1)
	assert.Equal(t, pub_models.ChunkText, first[0].Type)

	second := decodeChunks(t, do(t, env.srv, http.MethodPost, "/api/chat", chatBody, HeaderUserID, "alice").Body.String())
	require.Len(t, second, 1)
	assert.Equal(t, pub_models.ChunkError, second[0].Type)
	assert.Contains(t, second[0].Message, "rate limit exceeded")

	// Other users and pro users aren't affected
	other := decodeChunks(t, do(t, env.srv, http.MethodPost, "/api/chat", chatBody, HeaderUserID, "bob").Body.String())
	assert.Equal(t, pub_models.ChunkText, other[0].Type)
	pro := decodeChunks(t, do(t, env.srv, http.MethodPost, "/api/chat", chatBody, HeaderUserID, "alice", HeaderTier, "pro").Body.String())
	assert.Equal(t, pub_models.ChunkText, pro[0].Type)
}

func TestChat_UntrustedTierIsFree(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), ratelimit.Config{Window: time.Hour, Free: 1, Pro: 100})
	env := newTestEnv(t, &fakeCompleter{events: []models.CompletionEvent{"ok"}}, router.WithLimiter(limiter))

	first := decodeChunks(t, do(t, env.srv, http.MethodPost, "/api/chat", chatBody, HeaderUserID, "mallory", HeaderTier, "pro").Body.String())
	require.Len(t, first, 1)
	assert.Equal(t, pub_models.ChunkText, first[0].Type)

	body := `{"modelId":"gpt-4o","userId":"mallory","tier":"pro","messages":[{"role":"user","content":"hi"}]}`
	second := decodeChunks(t, do(t, env.srv, http.MethodPost, "/api/chat", body).Body.String())
	require.Len(t, second, 1)
	assert.Equal(t, pub_models.ChunkError, second[0].Type)
	assert.Contains(t, second[0].Message, "rate limit exceeded")
}

func TestTitle(t *testing.T) {
	body := `{"modelId":"gpt-4o","messages":[{"role":"user","content":"How do I bake bread?"}]}`

	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(t, &fakeCompleter{events: []models.CompletionEvent{`"baking bread at home"`}})
		rec := do(t, env.srv, http.MethodPost, "/api/title", body)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp titleResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Baking Bread At Home", resp.Title)
	})

	t.Run("bad input", func(t *testing.T) {
		env := newTestEnv(t, &fakeCompleter{})
		rec := do(t, env.srv, http.MethodPost, "/api/title", `{"modelId":"gpt-4o","messages":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"messages are required"}`, rec.Body.String())
	})

	t.Run("unknown model", func(t *testing.T) {
		env := newTestEnv(t, &fakeCompleter{})
		rec := do(t, env.srv, http.MethodPost, "/api/title", `{"modelId":"nope","messages":[{"role":"user","content":"x"}]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("provider failure", func(t *testing.T) {
		env := newTestEnv(t, &fakeCompleter{startErr: errors.New("upstream down")})
		rec := do(t, env.srv, http.MethodPost, "/api/title", body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, "upstream down")
	})
}

func TestModels(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{})
	rec := do(t, env.srv, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp modelsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Models, len(router.DefaultModels()))

	byID := map[string]modelInfo{}
	for _, m := range resp.Models {
		byID[m.ID] = m
	}
	assert.True(t, byID["gpt-4o"].Available)
	assert.True(t, byID["gpt-4o"].Capabilities.Tools)
	assert.Equal(t, router.ProviderAnthropic, byID["claude-sonnet-4-0"].Provider)
	assert.False(t, byID["claude-sonnet-4-0"].Available)
}

func TestHealthAndNotFound(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{})
	rec := do(t, env.srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, env.srv, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())
}

func newIntegrationServer() *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("notes", "1.0.0", mcpserver.WithToolCapabilities(true))
	s.AddTool(mcpgo.NewTool("list_notes", mcpgo.WithDescription("list notes")),
		func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
			return mcpgo.NewToolResultText(`["buy milk"]`), nil
		})
	return s
}

func TestIntegrations(t *testing.T) {
	ts := mcpserver.NewTestStreamableHTTPServer(newIntegrationServer())
	defer ts.Close()
	env := newTestEnv(t, &fakeCompleter{})

	body := `{"userId":"alice","name":"notes","url":"` + ts.URL + `/mcp"}`
	rec := do(t, env.srv, http.MethodPost, "/api/integrations", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp integrationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"mcp_notes_list_notes"}, resp.Tools)

	_, ok := env.sessions.View("alice").Get("mcp_notes_list_notes")
	assert.True(t, ok)
	_, ok = env.sessions.View("bob").Get("mcp_notes_list_notes")
	assert.False(t, ok)

	rec = do(t, env.srv, http.MethodDelete, "/api/integrations?userId=alice", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, ok = env.sessions.View("alice").Get("mcp_notes_list_notes")
	assert.False(t, ok)
}

func TestIntegrations_BadRequests(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{})
	tests := []struct {
		name    string
		body    string
		headers []string
		want    string
	}{
		{name: "no user", body: `{"name":"x","url":"http://localhost"}`, want: "userId is required"},
		{name: "no name", body: `{"userId":"a","url":"http://localhost"}`, want: "name is required"},
		{name: "bad url", body: `{"name":"x","url":"file:///etc/passwd"}`, headers: []string{HeaderUserID, "a"}, want: "url must be http or https"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, env.srv, http.MethodPost, "/api/integrations", tc.body, tc.headers...)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.want)
		})
	}
}

func TestIntegrations_Disabled(t *testing.T) {
	r := router.New(router.NewCatalog(router.DefaultModels()), router.Providers{})
	rec := do(t, New(r, nil), http.MethodPost, "/api/integrations", `{"userId":"a","name":"x","url":"http://localhost"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, &fakeCompleter{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- env.srv.Run(ctx, "127.0.0.1:0")
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
