package tools

import (
	"encoding/json"

	"pfagent/model"
)

// pendingCall holds a tool call mid-assembly. The raw argument buffer is
// concatenated fragment by fragment and parsed once at finalization.
type pendingCall struct {
	call    model.ToolCall
	rawArgs string
}

// Accumulator reassembles fragmented tool-call deltas into complete
// calls, keyed by wire index. Insertion order of first-seen indexes is
// preserved so finalized calls come back in stream order.
type Accumulator struct {
	order []int
	calls map[int]*pendingCall
}

func NewAccumulator() *Accumulator {
	return &Accumulator{calls: make(map[int]*pendingCall)}
}

// Add merges a batch of deltas. ID and Name overwrite when present (they
// arrive once, typically on the first delta for an index); argument
// fragments are appended, never JSON-merged.
func (a *Accumulator) Add(deltas []model.ToolCallDelta) {
	for _, delta := range deltas {
		current, ok := a.calls[delta.Index]
		if !ok {
			current = &pendingCall{call: model.ToolCall{Arguments: map[string]any{}}}
			a.calls[delta.Index] = current
			a.order = append(a.order, delta.Index)
		}
		if delta.ID != "" {
			current.call.ID = delta.ID
		}
		if delta.Name != "" {
			current.call.Name = delta.Name
		}
		current.rawArgs += delta.Arguments
	}
}

// Finalize parses every buffered argument string and returns the
// completed calls. A buffer that is not valid JSON yields empty
// arguments instead of an error: a malformed call must not crash the
// turn, it fails schema validation downstream with a clear message.
func (a *Accumulator) Finalize() []model.ToolCall {
	calls := make([]model.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		pending := a.calls[idx]
		if pending.rawArgs != "" {
			var args map[string]any
			if err := json.Unmarshal([]byte(pending.rawArgs), &args); err == nil {
				pending.call.Arguments = args
			} else {
				pending.call.Arguments = map[string]any{}
			}
		}
		pending.rawArgs = ""
		calls = append(calls, pending.call)
	}
	return calls
}

// Len reports how many distinct calls are being assembled.
func (a *Accumulator) Len() int {
	return len(a.order)
}
