package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/debug"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	clientName     = "chatmux"
	connectTimeout = 30 * time.Second
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Integration is a connected MCP server and the tools it offers.
type Integration struct {
	Name   string
	client *client.Client
	Tools  []pub_models.LLMTool
}

// Connect to the streamable HTTP server srv and list its tools.
func Connect(ctx context.Context, srv Server) (*Integration, error) {
	if srv.URL == "" {
		return nil, fmt.Errorf("mcp server '%v' has no url", srv.Name)
	}
	headers := srv.Headers
	if !srv.Verbatim {
		resolved, err := resolveHeaders(srv.Headers, srv.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve headers: %w", err)
		}
		headers = resolved
	}
	c, err := client.NewStreamableHttpClient(srv.URL,
		transport.WithHTTPHeaders(headers),
		transport.WithHTTPTimeout(connectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp client: %w", err)
	}
	integ, err := connectClient(ctx, srv.Name, c)
	if err != nil {
		c.Close()
		return nil, err
	}
	return integ, nil
}

// connectClient initializes an already created client. Split from Connect
// so that in-process servers may be used.
func connectClient(ctx context.Context, name string, c *client.Client) (*Integration, error) {
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start mcp client '%v': %w", name, err)
	}
	initRes, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    clientName,
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mcp server '%v': %w", name, err)
	}
	if misc.Truthy(os.Getenv("DEBUG")) {
		ancli.Okf("mcp_%v: connected to %v %v\n", name, initRes.ServerInfo.Name, initRes.ServerInfo.Version)
	}
	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools of '%v': %w", name, err)
	}

	integ := &Integration{Name: name, client: c}
	seen := make(map[string]string, len(listed.Tools))
	for _, t := range listed.Tools {
		spec, err := specification(name, t)
		if err != nil {
			ancli.Warnf("mcp_%v: skipping tool '%v': %v\n", name, t.Name, err)
			continue
		}
		if prev, ok := seen[spec.Name]; ok {
			ancli.Warnf("mcp_%v: skipping tool '%v', its name '%v' collides with tool '%v'\n", name, t.Name, spec.Name, prev)
			continue
		}
		seen[spec.Name] = t.Name
		integ.Tools = append(integ.Tools, &mcpTool{
			remoteName: t.Name,
			spec:       spec,
			client:     c,
		})
	}
	return integ, nil
}

// Close the connection to the server.
func (i *Integration) Close() error {
	return i.client.Close()
}

// maxServerNameLen caps the server part of tool names. The cap doesn't
// depend on the tool, so all tools of a server share the same prefix.
const maxServerNameLen = 20

// ToolName returns the local name of a remote tool. Vendors only accept
// [a-zA-Z0-9_-]{1,64}. Long server names are shortened first, the tool
// part is only cut when it alone doesn't fit.
func ToolName(server, tool string) string {
	server = invalidNameChars.ReplaceAllString(server, "_")
	if len(server) > maxServerNameLen {
		server = server[:maxServerNameLen]
	}
	name := "mcp_" + server + "_" + invalidNameChars.ReplaceAllString(tool, "_")
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

func specification(server string, t mcp.Tool) (pub_models.Specification, error) {
	// Tool.MarshalJSON picks between the raw and structured schema
	b, err := json.Marshal(t)
	if err != nil {
		return pub_models.Specification{}, fmt.Errorf("failed to marshal tool: %w", err)
	}
	var wire struct {
		InputSchema json.RawMessage `json:"inputSchema"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return pub_models.Specification{}, fmt.Errorf("failed to unmarshal tool: %w", err)
	}
	is, err := pub_models.InputSchemaFromRaw(wire.InputSchema)
	if err != nil {
		return pub_models.Specification{}, err
	}
	if misc.Truthy(os.Getenv("DEBUG")) {
		ancli.Noticef("mcp_%v: tool schema: %v\n", server, debug.IndentedJsonFmt(is))
	}
	return pub_models.Specification{
		Name:        ToolName(server, t.Name),
		Description: t.Description,
		Inputs:      &is,
	}, nil
}
