package model

import "encoding/json"

// Schema is the JSON-Schema-like contract attached to a tool. It is a
// deliberate structural subset: type (single or union), enum, required,
// properties and items are enough to validate tool arguments; anyOf and
// format validators are not needed for the tool contract.
type Schema struct {
	// Type holds either a string or a list of strings (union types).
	// It is `any` so remote inputSchema documents decode as-is.
	Type                 any                `json:"type,omitempty"`
	Description          string             `json:"description,omitempty"`
	Enum                 []any              `json:"enum,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	AdditionalProperties *bool              `json:"additionalProperties,omitempty"`
}

// Types returns the allowed type names regardless of whether the schema
// declared a single type or a union.
func (s *Schema) Types() []string {
	switch t := s.Type.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, v := range t {
			if str, ok := v.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// AsMap renders the schema as a plain map for provider wire formats
// (OpenAI function parameters, Anthropic input_schema, Ollama tools).
func (s *Schema) AsMap() map[string]any {
	if s == nil {
		return map[string]any{"type": "object"}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// ToolHandler executes a validated tool call.
type ToolHandler func(args map[string]any) (any, error)

// ToolDefinition binds a tool name and argument schema to its handler.
// The registry is rebuilt per turn because the capability set can depend
// on run-time configuration (reachable remote servers).
type ToolDefinition struct {
	Name        string
	Description string
	Schema      *Schema
	// ReadOnly marks informational tools usable during planning.
	ReadOnly bool
	Handler  ToolHandler
}
