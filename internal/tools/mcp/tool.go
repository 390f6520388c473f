package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/debug"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpTool wraps a tool provided by an MCP server and implements
// pub_models.LLMTool.
type mcpTool struct {
	remoteName string
	spec       pub_models.Specification
	client     *client.Client
}

func (m *mcpTool) Call(ctx context.Context, input pub_models.Input) (string, error) {
	args := map[string]any{}
	if len(input) != 0 {
		args = input
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = m.remoteName
	req.Params.Arguments = args
	if misc.Truthy(os.Getenv("DEBUG_CALL")) {
		ancli.Noticef("mcpTool.Call req: %v", debug.IndentedJsonFmt(req.Params))
	}

	res, err := m.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to call '%v': %w", m.remoteName, err)
	}
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := mcp.AsTextContent(c); ok {
			sb.WriteString(tc.Text)
		}
	}
	if res.IsError {
		return "", errors.New(sb.String())
	}
	return sb.String(), nil
}

func (m *mcpTool) Specification() pub_models.Specification {
	return m.spec
}
