// Package server exposes the geospatial query pipeline as an MCP server so a
// chat model can call it as a tool.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/NERVsystems/geoquery/pkg/logging"
	"github.com/NERVsystems/geoquery/pkg/orchestrator"
	"github.com/NERVsystems/geoquery/pkg/query"
	"github.com/NERVsystems/geoquery/pkg/status"
	"github.com/NERVsystems/geoquery/pkg/tools/prompts"
	"github.com/NERVsystems/geoquery/pkg/version"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	// ServerName is the name of the MCP server
	ServerName = "geoquery-mcp-server"

	ToolGeospatialQuery = "geospatial_query"
	ToolClassifyQuery   = "classify_location_query"
)

// Server encapsulates the MCP server with the geospatial query tools.
type Server struct {
	srv    *server.MCPServer
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
	sink   status.Sink
}

// Option configures a Server.
type Option func(*Server)

// WithStatusSink also sends progress text to sink, e.g. a Redis publisher.
func WithStatusSink(sink status.Sink) Option {
	return func(s *Server) { s.sink = sink }
}

// NewServer creates an MCP server with the geospatial tools and prompts
// registered.
func NewServer(orch *orchestrator.Orchestrator, logger *slog.Logger, opts ...Option) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("initializing geospatial MCP server",
		"name", ServerName,
		"version", version.BuildVersion)

	srv := server.NewMCPServer(
		ServerName,
		version.BuildVersion,
		server.WithToolCapabilities(false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{srv: srv, orch: orch, logger: logger.With("component", "mcp_server")}
	for _, o := range opts {
		o(s)
	}

	srv.AddTool(geospatialQueryTool(), s.handleGeospatialQuery)
	srv.AddTool(classifyTool(), s.handleClassify)
	prompts.Register(srv)

	return s, nil
}

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer { return s.srv }

// Run starts the MCP server using stdin/stdout for communication.
func (s *Server) Run() error {
	return server.ServeStdio(s.srv)
}

func typeNames() []string {
	names := make([]string, 0, len(query.Types))
	for _, t := range query.Types {
		names = append(names, string(t))
	}
	return names
}

func geospatialQueryTool() mcp.Tool {
	return mcp.NewTool(ToolGeospatialQuery,
		mcp.WithDescription("Answer a location question: find a place, reverse geocode coordinates, get directions or distance, search nearby or show a map"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The location question in plain language, e.g. 'directions from Paris to Lyon'"),
		),
		mcp.WithString("queryType",
			mcp.Description("Override the detected intent: "+strings.Join(typeNames(), ", ")),
			mcp.Enum(typeNames()...),
		),
		mcp.WithBoolean("includeMap",
			mcp.Description("Include a map URL in the result"),
			mcp.DefaultBool(true),
		),
	)
}

func classifyTool() mcp.Tool {
	return mcp.NewTool(ToolClassifyQuery,
		mcp.WithDescription("Classify a location question without calling the mapping service and show the structured query it becomes"),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The location question in plain language"),
		),
	)
}

func (s *Server) handleGeospatialQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := strings.TrimSpace(mcp.ParseString(req, "text", ""))
	if text == "" {
		return mcp.NewToolResultError("text parameter is required"), nil
	}
	explicit, err := query.ParseType(mcp.ParseString(req, "queryType", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	includeMap := mcp.ParseBoolean(req, "includeMap", true)

	ctx = logging.WithRequestID(ctx, "")
	sink := status.Multi{status.Func(s.notify), s.sink}

	var res orchestrator.ToolResult
	if q, err := query.FromText(text, explicit); err == nil {
		res = s.orch.Run(ctx, q.WithIncludeMap(includeMap), sink)
	} else {
		res = s.orch.RunText(ctx, text, explicit, sink)
	}

	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	out := mcp.NewToolResultText(string(b))
	out.IsError = !res.OK()
	return out, nil
}

type classification struct {
	QueryType query.Type             `json:"queryType"`
	Query     *query.GeospatialQuery `json:"query,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

func (s *Server) handleClassify(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text := strings.TrimSpace(mcp.ParseString(req, "text", ""))
	if text == "" {
		return mcp.NewToolResultError("text parameter is required"), nil
	}

	c := classification{QueryType: query.Classify(text)}
	if q, err := query.FromText(text, c.QueryType); err != nil {
		c.Error = err.Error()
	} else {
		c.Query = &q
	}

	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode classification: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// notify forwards status text to the calling client as a log message
// notification. Clients that ignore notifications lose nothing.
func (s *Server) notify(ctx context.Context, text string) {
	err := s.srv.SendNotificationToClient(ctx, "notifications/message", map[string]any{
		"level":  "info",
		"logger": ServerName,
		"data":   text,
	})
	if err != nil {
		s.logger.DebugContext(ctx, "status notification not sent", "error", err)
	}
}
