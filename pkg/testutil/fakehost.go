package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/NERVsystems/geoquery/pkg/remote"
	"github.com/NERVsystems/geoquery/pkg/tools"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Reply is a scripted tool answer. Texts become one text content block
// each; IsError marks the reply as a tool error.
type Reply struct {
	Texts   []string
	IsError bool
}

// JSONReply encodes v as the single block of a reply.
func JSONReply(v any) Reply {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return Reply{Texts: []string{string(b)}}
}

// FencedReply wraps v in prose and a fenced json block, the way hosted
// mapping servers often answer.
func FencedReply(v any) Reply {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		panic(err)
	}
	return Reply{Texts: []string{
		"Here is what I found.",
		"```json\n" + string(b) + "\n```",
	}}
}

// ErrorReply is a tool error carrying msg.
func ErrorReply(msg string) Reply {
	return Reply{Texts: []string{msg}, IsError: true}
}

// FakeHost is an in-process MCP mapping host. Tools are registered from
// the tool registry's schemas and answer with scripted replies.
type FakeHost struct {
	Server *server.MCPServer

	mu      sync.Mutex
	replies map[string]Reply
	calls   map[string]int
	args    map[string]map[string]any
}

// NewFakeHost registers the named tools.
func NewFakeHost(names ...string) *FakeHost {
	h := &FakeHost{
		Server:  server.NewMCPServer("fake-mapbox-host", "1.0.0", server.WithToolCapabilities(false)),
		replies: map[string]Reply{},
		calls:   map[string]int{},
		args:    map[string]map[string]any{},
	}
	tools.NewRegistry(DiscardLogger()).RegisterTools(h.Server, h.handlerFor, names...)
	return h
}

// Script sets the reply for tool.
func (h *FakeHost) Script(tool string, r Reply) *FakeHost {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replies[tool] = r
	return h
}

// Calls returns how often tool was called.
func (h *FakeHost) Calls(tool string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[tool]
}

// Args returns the arguments of the last call to tool.
func (h *FakeHost) Args(tool string) map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.args[tool])
}

// Dialer returns a dialer connected to the host.
func (h *FakeHost) Dialer() *remote.InProcessDialer {
	return &remote.InProcessDialer{Server: h.Server}
}

func (h *FakeHost) handlerFor(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		h.mu.Lock()
		h.calls[name]++
		h.args[name] = maps.Clone(req.Params.Arguments)
		r, ok := h.replies[name]
		h.mu.Unlock()

		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("no reply scripted for %s", name)), nil
		}
		res := &mcp.CallToolResult{IsError: r.IsError}
		for _, t := range r.Texts {
			res.Content = append(res.Content, mcp.NewTextContent(t))
		}
		return res, nil
	}
}

// CountingDialer counts Dial calls before delegating.
type CountingDialer struct {
	Dialer remote.Dialer
	n      atomic.Int32
}

func (d *CountingDialer) Dial(ctx context.Context) (remote.Session, error) {
	d.n.Add(1)
	return d.Dialer.Dial(ctx)
}

// Dials returns the number of Dial calls so far.
func (d *CountingDialer) Dials() int { return int(d.n.Load()) }
