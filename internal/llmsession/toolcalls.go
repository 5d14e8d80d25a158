package llmsession

import (
	"strings"
	"sync"
)

// pendingCall accumulates streamed argument deltas for one tool call. The
// remote may interleave argument deltas for several tool calls within a
// single response, so accumulation MUST be keyed by call_id rather than a
// single pending slot — a single-slot implementation loses every call but
// the last and hangs the LLM waiting for a function result it will never
// send.
type pendingCall struct {
	name string
	args strings.Builder
}

type toolCallAccumulator struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{calls: make(map[string]*pendingCall)}
}

func (a *toolCallAccumulator) start(callID, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[callID] = &pendingCall{name: name}
}

func (a *toolCallAccumulator) appendDelta(callID, delta string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.calls[callID]
	if !ok {
		p = &pendingCall{}
		a.calls[callID] = p
	}
	p.args.WriteString(delta)
}

// done finalizes a call_id, returning its name and accumulated argument
// JSON, and removes it from the accumulator.
func (a *toolCallAccumulator) done(callID string) (name, args string, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, found := a.calls[callID]
	if !found {
		return "", "", false
	}
	delete(a.calls, callID)
	return p.name, p.args.String(), true
}

func (a *toolCallAccumulator) reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = make(map[string]*pendingCall)
}
