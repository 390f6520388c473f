package vendorstest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/baalimago/chatmux/internal/models"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

const testAPIKey = "test-key"

// RunSetupTests runs common Setup tests for vendors.
func RunSetupTests(t *testing.T, envVar string, requiresEnv bool, newVendor func() models.StreamCompleter) {
	t.Helper()

	t.Run("with_env", func(t *testing.T) {
		v := newVendor()
		t.Setenv(envVar, "some-key")
		if err := v.Setup(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	if requiresEnv {
		t.Run("no_env", func(t *testing.T) {
			v := newVendor()
			t.Setenv(envVar, "")
			if err := v.Setup(); err == nil {
				t.Fatalf("expected error when %s unset", envVar)
			}
		})
	}
}

// OpenAICompatServer sets envVar to a test key and starts a server speaking
// the OpenAI streaming format. It answers "Hello world" when the bearer
// token matches and 401 otherwise.
func OpenAICompatServer(t *testing.T, envVar string) *httptest.Server {
	t.Helper()
	t.Setenv(envVar, testAPIKey)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testAPIKey {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range []string{
			`{"choices":[{"index":0,"delta":{"role":"assistant","content":"Hello"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":" world"}}]}`,
			`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
			`[DONE]`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", l)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// RunOpenAICompatStream streams from a vendor pointed at an
// OpenAICompatServer and verifies the text and the context handling.
func RunOpenAICompatStream(t *testing.T, v models.StreamCompleter, srv *httptest.Server) {
	t.Helper()
	ch, err := v.StreamCompletions(context.Background(), models.Request{
		Model: "test-model",
		Chat:  pub_models.Chat{Messages: []pub_models.Message{{Role: "user", Content: "hi"}}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text, calls, err := models.CollectText(ch)
	if err != nil {
		t.Fatalf("unexpected stream error: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("got %q, want %q", text, "Hello world")
	}
	if len(calls) != 0 {
		t.Fatalf("expected no calls, got %+v", calls)
	}
	models.StreamCompleter_Test(t, v)
}
