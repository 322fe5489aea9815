// Package remote manages connections to the remote MCP tool host: connect
// with a timeout, list tools, invoke one tool with bounded retry, close.
// Connections are never pooled; each query owns one Handle.
package remote

import (
	"context"
	"strings"
)

// Block is one content block of a tool reply. Non-text blocks keep their
// type and carry no text.
type Block struct {
	Type string
	Text string
}

// Response is the raw reply of a tool call.
type Response struct {
	Content []Block
	IsError bool
}

// Texts returns the text of every block, in order.
func (r *Response) Texts() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Content))
	for _, b := range r.Content {
		out = append(out, b.Text)
	}
	return out
}

// ErrorText returns the first non-empty text block, which is where tool
// hosts put the message of an error reply.
func (r *Response) ErrorText() string {
	for _, t := range r.Texts() {
		if t = strings.TrimSpace(t); t != "" {
			return t
		}
	}
	return ""
}

// TextResponse builds a successful reply from text blocks.
func TextResponse(texts ...string) *Response {
	r := &Response{}
	for _, t := range texts {
		r.Content = append(r.Content, Block{Type: "text", Text: t})
	}
	return r
}

// Session is an open, initialized connection to a tool host.
type Session interface {
	ListTools(ctx context.Context) ([]string, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*Response, error)
	Close() error
}

// Dialer opens sessions to a tool host.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context) (Session, error)

func (f DialerFunc) Dial(ctx context.Context) (Session, error) { return f(ctx) }

// State is the lifecycle state of a Handle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}
