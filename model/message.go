package model

// Chat roles. Messages are replayed to the model verbatim, so ordering
// and role fidelity matter.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents one entry in a conversation transcript.
// Tool-role messages carry ToolCallID correlating them to the assistant
// message that requested the call.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"toolCallId,omitempty"`
	ToolCalls  []ToolCall `json:"toolCalls,omitempty"`
}

// ToolCall is one complete invocation request. It is only ever produced
// by accumulating streamed deltas, never hand-built mid-stream.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCallDelta is a fragment of a tool call as it arrives on the wire.
// Deltas sharing an Index belong to the same call; Arguments fragments
// are concatenated, not merged.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Stream event types emitted by providers.
const (
	EventContent       = "content"
	EventToolCallDelta = "tool_call_delta"
	EventDone          = "done"
)

// StreamEvent is the provider-agnostic streaming event. Every backend's
// wire protocol is normalized into this one shape.
type StreamEvent struct {
	Type      string
	Delta     string
	ToolCalls []ToolCallDelta
}
