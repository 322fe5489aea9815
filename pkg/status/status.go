// Package status carries user-facing progress text out of a query run.
//
// Sinks are fire-and-forget: Emit must not block the caller for longer than
// it takes to hand the text off.
package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Sink receives status text.
type Sink interface {
	Emit(ctx context.Context, text string)
}

// Func adapts a function to a Sink.
type Func func(ctx context.Context, text string)

func (f Func) Emit(ctx context.Context, text string) { f(ctx, text) }

// Discard drops everything.
var Discard Sink = Func(func(context.Context, string) {})

// Multi fans text out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, text string) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, text)
		}
	}
}

// Send emits text on s and recovers a panicking sink. It reports whether
// the sink returned normally.
func Send(ctx context.Context, s Sink, text string, logger *slog.Logger) (ok bool) {
	if s == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if logger != nil {
				logger.WarnContext(ctx, "status sink panicked", "panic", fmt.Sprint(r))
			}
		}
	}()
	s.Emit(ctx, text)
	return true
}

// Recorder keeps every text it receives. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *Recorder) Emit(_ context.Context, text string) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
}

// Texts returns a copy of the received texts in order.
func (r *Recorder) Texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

// Last returns the most recent text, or "".
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.texts) == 0 {
		return ""
	}
	return r.texts[len(r.texts)-1]
}

// Channel delivers text on a buffered channel and drops it when the buffer
// is full.
type Channel struct {
	ch     chan string
	onDrop func()

	mu     sync.RWMutex
	closed bool
}

// NewChannel returns a Channel with the given buffer. onDrop, if set, is
// called for every dropped text.
func NewChannel(buffer int, onDrop func()) *Channel {
	if buffer < 0 {
		buffer = 0
	}
	return &Channel{ch: make(chan string, buffer), onDrop: onDrop}
}

// C returns the receive side.
func (c *Channel) C() <-chan string { return c.ch }

func (c *Channel) Emit(_ context.Context, text string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- text:
	default:
		if c.onDrop != nil {
			c.onDrop()
		}
	}
}

// Close closes the channel. Later Emits are ignored.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
