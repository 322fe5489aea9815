package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/NERVsystems/geoquery/pkg/version"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// DefaultServerURL is the hosted Mapbox MCP server.
const DefaultServerURL = "https://server.smithery.ai/@ngoiyaeric/mapbox-mcp-server/mcp"

// Endpoint builds the tool host URL: base plus api_key and profile query
// parameters and a base64 JSON config carrying the mapping token.
func Endpoint(base, apiKey, profile, mapboxToken string) (string, error) {
	if base == "" {
		base = DefaultServerURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server URL: %w", err)
	}
	q := u.Query()
	if apiKey != "" {
		q.Set("api_key", apiKey)
	}
	if profile != "" {
		q.Set("profile", profile)
	}
	if mapboxToken != "" {
		cfg, err := json.Marshal(map[string]string{"mapboxAccessToken": mapboxToken})
		if err != nil {
			return "", fmt.Errorf("encode server config: %w", err)
		}
		q.Set("config", base64.StdEncoding.EncodeToString(cfg))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedactURL strips the query string, which carries credentials.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}

// MCPDialer dials a tool host over the streamable HTTP MCP transport.
type MCPDialer struct {
	URL     string
	Headers map[string]string
}

// NewMCPDialer returns a dialer for serverURL that identifies itself with
// the program's User-Agent.
func NewMCPDialer(serverURL string) *MCPDialer {
	return &MCPDialer{
		URL:     serverURL,
		Headers: map[string]string{"User-Agent": version.UserAgent()},
	}
}

func (d *MCPDialer) Dial(ctx context.Context) (Session, error) {
	c, err := client.NewStreamableHttpClient(d.URL, transport.WithHTTPHeaders(d.Headers))
	if err != nil {
		return nil, fmt.Errorf("create MCP client: %w", err)
	}
	return startSession(ctx, c)
}

// InProcessDialer connects to an MCP server running in the same process.
type InProcessDialer struct {
	Server *server.MCPServer
}

func (d *InProcessDialer) Dial(ctx context.Context) (Session, error) {
	c, err := client.NewInProcessClient(d.Server)
	if err != nil {
		return nil, fmt.Errorf("create in-process MCP client: %w", err)
	}
	return startSession(ctx, c)
}

func startSession(ctx context.Context, c *client.Client) (Session, error) {
	success := false
	defer func() {
		if !success {
			_ = c.Close()
		}
	}()

	// The transport outlives the connect deadline.
	if err := c.Start(context.WithoutCancel(ctx)); err != nil {
		return nil, fmt.Errorf("start MCP transport: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    version.Name,
		Version: version.BuildVersion,
	}
	if _, err := c.Initialize(ctx, req); err != nil {
		return nil, fmt.Errorf("initialize MCP session: %w", err)
	}

	success = true
	return &mcpSession{c: c}, nil
}

type mcpSession struct {
	c *client.Client
}

func (s *mcpSession) ListTools(ctx context.Context) ([]string, error) {
	res, err := s.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, t := range res.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (*Response, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := s.c.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	return convertResult(res), nil
}

func (s *mcpSession) Close() error { return s.c.Close() }

func convertResult(res *mcp.CallToolResult) *Response {
	if res == nil {
		return nil
	}
	out := &Response{IsError: res.IsError}
	for _, c := range res.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			out.Content = append(out.Content, Block{Type: "text", Text: tc.Text})
		case *mcp.TextContent:
			out.Content = append(out.Content, Block{Type: "text", Text: tc.Text})
		default:
			out.Content = append(out.Content, Block{Type: "other"})
		}
	}
	return out
}
