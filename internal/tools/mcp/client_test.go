package mcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/baalimago/chatmux/internal/tools"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func newEchoServer() *server.MCPServer {
	s := server.NewMCPServer("echo", "1.0.0", server.WithToolCapabilities(true))
	s.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("echo text"),
		mcp.WithString("text", mcp.Required(), mcp.Description("text to echo")),
		mcp.WithArray("tags", mcp.WithStringItems()),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, _ := req.GetArguments()["text"].(string)
		if text == "error" {
			return mcp.NewToolResultError("you asked for it"), nil
		}
		return mcp.NewToolResultText(text), nil
	})
	return s
}

func TestConnectClient_InProcess(t *testing.T) {
	ctx := context.Background()
	c, err := client.NewInProcessClient(newEchoServer())
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	integ, err := connectClient(ctx, "echo", c)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer integ.Close()

	if len(integ.Tools) != 1 {
		t.Fatalf("expected 1 tool, got: %v", len(integ.Tools))
	}
	tool := integ.Tools[0]
	spec := tool.Specification()
	testboil.FailTestIfDiff(t, spec.Name, "mcp_echo_echo")
	testboil.FailTestIfDiff(t, spec.Description, "echo text")
	testboil.FailTestIfDiff(t, spec.Inputs.Properties["text"].Type, "string")
	testboil.FailTestIfDiff(t, spec.Inputs.Properties["tags"].Items.Type, "string")
	testboil.FailTestIfDiff(t, len(spec.Inputs.Required), 1)

	res, err := tool.Call(ctx, pub_models.Input{"text": "hello"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	testboil.FailTestIfDiff(t, res, "hello")

	_, err = tool.Call(ctx, pub_models.Input{"text": "error"})
	if err == nil {
		t.Fatal("expected error on isError=true")
	}
	testboil.AssertStringContains(t, err.Error(), "you asked for it")
}

func TestManager_ConnectHTTP(t *testing.T) {
	var mu sync.Mutex
	var gotAuth string
	mcpSrv := server.NewStreamableHTTPServer(newEchoServer())
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a := r.Header.Get("Authorization"); a != "" {
			mu.Lock()
			gotAuth = a
			mu.Unlock()
		}
		mcpSrv.ServeHTTP(w, r)
	}))
	defer ts.Close()

	t.Setenv("ECHO_TOKEN", "secret")
	sessions := tools.NewSessions(tools.NewRegistry())
	m := NewManager(sessions)
	defer m.Close()

	names, err := m.Connect(context.Background(), "alice", Server{
		Name:    "echo",
		URL:     ts.URL + "/mcp",
		Headers: map[string]string{"Authorization": "Bearer $ECHO_TOKEN"},
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	testboil.FailTestIfDiff(t, strings.Join(names, ","), "mcp_echo_echo")
	mu.Lock()
	testboil.FailTestIfDiff(t, gotAuth, "Bearer secret")
	mu.Unlock()

	if _, ok := sessions.View("alice").Get("mcp_echo_echo"); !ok {
		t.Fatal("expected tool in alice's view")
	}
	if _, ok := sessions.View("bob").Get("mcp_echo_echo"); ok {
		t.Fatal("bob must not see alice's tool")
	}

	// Reconnecting replaces, never duplicates
	if _, err := m.Connect(context.Background(), "alice", Server{Name: "echo", URL: ts.URL + "/mcp"}); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	testboil.FailTestIfDiff(t, sessions.UserRegistry("alice").Len(), 1)

	m.Disconnect("alice")
	if _, ok := sessions.View("alice").Get("mcp_echo_echo"); ok {
		t.Fatal("expected tools to be dropped on disconnect")
	}
}

func TestManager_ConnectAll(t *testing.T) {
	ts := server.NewTestStreamableHTTPServer(newEchoServer())
	defer ts.Close()
	sessions := tools.NewSessions(tools.NewRegistry())
	m := NewManager(sessions)
	defer m.Close()

	names, err := m.ConnectAll(context.Background(), "alice", []Server{
		{Name: "echo", URL: ts.URL + "/mcp"},
		{Name: "broken"},
	})
	if err != nil {
		t.Fatalf("connect all: %v", err)
	}
	testboil.FailTestIfDiff(t, len(names), 1)

	_, err = m.ConnectAll(context.Background(), "bob", []Server{{Name: "broken"}})
	if err == nil {
		t.Fatal("expected error when no server connects")
	}
}

func TestManager_CloseDropsAllSessions(t *testing.T) {
	ts := server.NewTestStreamableHTTPServer(newEchoServer())
	defer ts.Close()
	sessions := tools.NewSessions(tools.NewRegistry())
	m := NewManager(sessions)

	if _, err := m.Connect(context.Background(), "alice", Server{Name: "echo", URL: ts.URL + "/mcp"}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := m.ConnectAll(context.Background(), "bob", []Server{{Name: "broken"}}); err == nil {
		t.Fatal("expected error when no server connects")
	}
	testboil.FailTestIfDiff(t, len(sessions.Users()), 2)

	m.Close()
	testboil.FailTestIfDiff(t, len(sessions.Users()), 0)
	if _, ok := sessions.View("alice").Get("mcp_echo_echo"); ok {
		t.Fatal("expected alice's tools to be gone after close")
	}
}

func TestManager_VerbatimHeaders(t *testing.T) {
	var mu sync.Mutex
	var gotAuth string
	mcpSrv := server.NewStreamableHTTPServer(newEchoServer())
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a := r.Header.Get("Authorization"); a != "" {
			mu.Lock()
			gotAuth = a
			mu.Unlock()
		}
		mcpSrv.ServeHTTP(w, r)
	}))
	defer ts.Close()

	t.Setenv("ECHO_TOKEN", "secret")
	m := NewManager(tools.NewSessions(tools.NewRegistry()))
	defer m.Close()
	_, err := m.Connect(context.Background(), "mallory", Server{
		Name:     "echo",
		URL:      ts.URL + "/mcp",
		Headers:  map[string]string{"Authorization": "Bearer $ECHO_TOKEN"},
		EnvFile:  "/etc/passwd",
		Verbatim: true,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	testboil.FailTestIfDiff(t, gotAuth, "Bearer $ECHO_TOKEN")
}

func TestManager_ConnectShared(t *testing.T) {
	ts := server.NewTestStreamableHTTPServer(newEchoServer())
	defer ts.Close()
	sessions := tools.NewSessions(tools.NewRegistry())
	m := NewManager(sessions)

	names, err := m.ConnectShared(context.Background(), []Server{{Name: "echo", URL: ts.URL + "/mcp"}})
	if err != nil {
		t.Fatalf("connect shared: %v", err)
	}
	testboil.FailTestIfDiff(t, strings.Join(names, ","), "mcp_echo_echo")
	for _, user := range []string{"", "alice", "bob"} {
		if _, ok := sessions.View(user).Get("mcp_echo_echo"); !ok {
			t.Fatalf("expected shared tool to be visible to '%v'", user)
		}
	}
	// Disconnecting a user leaves shared tools alone
	m.Disconnect("alice")
	testboil.FailTestIfDiff(t, sessions.Static().Len(), 1)

	m.Close()
	testboil.FailTestIfDiff(t, sessions.Static().Len(), 0)
}

func TestToolName(t *testing.T) {
	testboil.FailTestIfDiff(t, ToolName("my server", "do.thing"), "mcp_my_server_do_thing")

	// Long server names give way to the tool name
	server := strings.Repeat("s", 40)
	got := ToolName(server, "discover_server_categories_or_actions")
	testboil.FailTestIfDiff(t, got, "mcp_"+strings.Repeat("s", 20)+"_discover_server_categories_or_actions")
	if ToolName(server+"a", "x") != ToolName(server+"b", "x") {
		t.Fatal("expected servers sharing a long prefix to share the shortened name")
	}

	long := ToolName(server, strings.Repeat("t", 60))
	testboil.FailTestIfDiff(t, len(long), 64)
}

func TestConnectClient_SkipsCollidingNames(t *testing.T) {
	s := server.NewMCPServer("dup", "1.0.0", server.WithToolCapabilities(true))
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}
	s.AddTool(mcp.NewTool("do.thing"), handler)
	s.AddTool(mcp.NewTool("do_thing"), handler)
	c, err := client.NewInProcessClient(s)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	integ, err := connectClient(context.Background(), "dup", c)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer integ.Close()
	testboil.FailTestIfDiff(t, len(integ.Tools), 1)
	testboil.FailTestIfDiff(t, integ.Tools[0].Specification().Name, "mcp_dup_do_thing")
}
