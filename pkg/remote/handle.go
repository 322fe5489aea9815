package remote

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Handle is a short-lived wrapper around one open session. It is created
// by Client.Connect, used for one invoke and closed exactly once.
type Handle struct {
	session    Session
	state      atomic.Int32
	tools      map[string]struct{}
	toolsKnown bool
	closeOnce  sync.Once
}

func newHandle() *Handle {
	h := &Handle{}
	h.setState(StateConnecting)
	return h
}

func (h *Handle) setState(s State) { h.state.Store(int32(s)) }

// State returns the current lifecycle state.
func (h *Handle) State() State {
	if h == nil {
		return StateDisconnected
	}
	return State(h.state.Load())
}

// Ready reports whether the handle can be invoked.
func (h *Handle) Ready() bool { return h.State() == StateReady }

// ToolsKnown reports whether the host's tool list was retrieved.
func (h *Handle) ToolsKnown() bool { return h != nil && h.toolsKnown }

// Tools returns the sorted tool names advertised by the host.
func (h *Handle) Tools() []string {
	if h == nil {
		return nil
	}
	names := make([]string, 0, len(h.tools))
	for n := range h.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Has reports whether the host advertised name. It is false when the tool
// list is unknown.
func (h *Handle) Has(name string) bool {
	if h == nil {
		return false
	}
	_, ok := h.tools[name]
	return ok
}

func (h *Handle) setTools(names []string) {
	h.tools = make(map[string]struct{}, len(names))
	for _, n := range names {
		h.tools[n] = struct{}{}
	}
	h.toolsKnown = true
}
