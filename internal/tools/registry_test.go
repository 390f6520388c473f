package tools

import (
	"context"
	"testing"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/testboil"
)

type mockLLMTool struct {
	spec pub_models.Specification
	out  string
}

func (m *mockLLMTool) Call(_ context.Context, input pub_models.Input) (string, error) {
	return m.out, nil
}

func (m *mockLLMTool) Specification() pub_models.Specification {
	return m.spec
}

func newMockTool(name string) *mockLLMTool {
	return &mockLLMTool{
		spec: pub_models.Specification{Name: name},
		out:  "mock output",
	}
}

func names(tools []pub_models.LLMTool) []string {
	ret := make([]string, 0, len(tools))
	for _, t := range tools {
		ret = append(ret, t.Specification().Name)
	}
	return ret
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	first := newMockTool("get_stock")
	second := newMockTool("get_stock")
	second.out = "replaced"

	r.Register(first)
	r.Register(newMockTool("get_time"))
	r.Register(second)

	testboil.FailTestIfDiff(t, r.Len(), 2)
	testboil.FailTestIfDiff(t, len(r.List()), 2)
	got, ok := r.Get("get_stock")
	if !ok {
		t.Fatal("expected get_stock to be registered")
	}
	if got != second {
		t.Fatal("expected re-registration to replace the tool")
	}
	// Position of the first registration is kept
	testboil.FailTestIfDiff(t, names(r.List())[0], "get_stock")
}

func TestRegistry_ListIsInsertionOrdered(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"c", "a", "b"} {
		r.Register(newMockTool(n))
	}
	got := names(r.List())
	want := []string{"c", "a", "b"}
	for i := range want {
		testboil.FailTestIfDiff(t, got[i], want[i])
	}

	specs := r.Specifications()
	testboil.FailTestIfDiff(t, specs[2].Name, "b")
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get() returned true for non-existent tool")
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Register(newMockTool("a"))
	r.Register(newMockTool("b"))
	r.Remove("a")
	r.Remove("not-there")

	testboil.FailTestIfDiff(t, r.Len(), 1)
	testboil.FailTestIfDiff(t, names(r.List())[0], "b")
}

func TestRegistry_WildcardGet(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"mcp_gmail_send", "mcp_gmail_list", "mcp_slack_post", "get_time"} {
		r.Register(newMockTool(n))
	}

	tests := []struct {
		pattern string
		want    int
	}{
		{"*", 4},
		{"mcp_*", 3},
		{"*_send", 1},
		{"*gmail*", 2},
		{"get_time", 1},
		{"nothing*", 0},
	}
	for _, tc := range tests {
		t.Run(tc.pattern, func(t *testing.T) {
			testboil.FailTestIfDiff(t, len(r.WildcardGet(tc.pattern)), tc.want)
		})
	}
}

func TestRegistry_Filter(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"web_search", "get_stock", "get_time"} {
		r.Register(newMockTool(n))
	}

	testboil.FailTestIfDiff(t, r.Filter(nil).Len(), 3)
	filtered := r.Filter([]string{"get_*"})
	testboil.FailTestIfDiff(t, filtered.Len(), 2)
	if _, ok := filtered.Get("web_search"); ok {
		t.Fatal("expected web_search to be filtered out")
	}
}
