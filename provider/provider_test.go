package provider

import (
	"strings"
	"testing"

	"pfagent/model"
)

func TestNewUnknownProviderType(t *testing.T) {
	_, err := New(Config{Type: "watson"})
	if err == nil {
		t.Fatal("expected error for unknown provider type")
	}
	if !strings.Contains(err.Error(), "watson") {
		t.Errorf("error should name the unknown type, got: %v", err)
	}
}

func TestNewAnthropicRequiresKey(t *testing.T) {
	_, err := NewAnthropicProvider("", "", "claude-3-5-sonnet-latest")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewOpenAIRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider("", "", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNewOllamaNoCredential(t *testing.T) {
	p, err := NewOllamaProvider("", "qwen3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != "qwen3" {
		t.Errorf("expected model qwen3, got %s", p.Model())
	}
}

func TestConvertToAnthropicMessages(t *testing.T) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: "be helpful"},
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "checking", ToolCalls: []model.ToolCall{
			{ID: "call-1", Name: "listProjects", Arguments: map[string]any{}},
		}},
		{Role: model.RoleTool, Content: `{"ok":true}`, Name: "listProjects", ToolCallID: "call-1"},
	}

	msgs, system := convertToAnthropicMessages(messages)

	if len(system) != 1 || system[0].Text != "be helpful" {
		t.Errorf("system prompt not extracted: %+v", system)
	}
	// user, assistant-with-tool-use, tool result (as user)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[1].Role != "assistant" {
		t.Errorf("expected assistant role, got %s", msgs[1].Role)
	}
	if msgs[2].Role != "user" {
		t.Errorf("tool results must travel as user messages, got %s", msgs[2].Role)
	}
}

func TestConvertToAnthropicMessagesEmptyAssistantDropped(t *testing.T) {
	messages := []model.Message{
		{Role: model.RoleAssistant, Content: ""},
	}
	msgs, _ := convertToAnthropicMessages(messages)
	if len(msgs) != 0 {
		t.Errorf("assistant message with no content and no tool calls should be dropped, got %d", len(msgs))
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	messages := []model.Message{
		{Role: model.RoleSystem, Content: "be helpful"},
		{Role: model.RoleUser, Content: "hi"},
		{Role: model.RoleAssistant, Content: "", ToolCalls: []model.ToolCall{
			{ID: "call-1", Name: "resolveProject", Arguments: map[string]any{"tag": "ai"}},
		}},
		{Role: model.RoleTool, Content: `{"id":"p1"}`, ToolCallID: "call-1"},
	}

	result := convertToOpenAIMessages(messages)
	if len(result) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(result))
	}
	if result[2].OfAssistant == nil {
		t.Fatal("expected assistant variant for tool-call message")
	}
	calls := result[2].OfAssistant.ToolCalls
	if len(calls) != 1 || calls[0].OfFunction == nil {
		t.Fatalf("expected one function tool call, got %+v", calls)
	}
	if calls[0].OfFunction.Function.Arguments != `{"tag":"ai"}` {
		t.Errorf("arguments not serialized: %s", calls[0].OfFunction.Function.Arguments)
	}
	if result[3].OfTool == nil {
		t.Fatal("expected tool variant for tool result message")
	}
}

func TestConvertToOllamaTools(t *testing.T) {
	defs := []model.ToolDefinition{
		{
			Name:        "patchMarker",
			Description: "Update a marker field",
			Schema: &model.Schema{
				Type:     "object",
				Required: []string{"mode"},
				Properties: map[string]*model.Schema{
					"mode": {Type: "string", Enum: []any{"lenient", "strict"}},
				},
			},
		},
	}

	tools := convertToOllamaTools(defs)
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(tools))
	}
	fn := tools[0].Function
	if fn.Name != "patchMarker" {
		t.Errorf("name mismatch: %s", fn.Name)
	}
	if len(fn.Parameters.Required) != 1 || fn.Parameters.Required[0] != "mode" {
		t.Errorf("required not carried: %+v", fn.Parameters.Required)
	}
	prop, ok := fn.Parameters.Properties["mode"]
	if !ok {
		t.Fatal("mode property missing")
	}
	if len(prop.Enum) != 2 {
		t.Errorf("enum not carried: %+v", prop.Enum)
	}
}

func TestMarshalArguments(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"nil map", nil, "{}"},
		{"empty map", map[string]any{}, "{}"},
		{"simple", map[string]any{"tag": "ai"}, `{"tag":"ai"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := marshalArguments(tt.args); got != tt.want {
				t.Errorf("marshalArguments() = %s, want %s", got, tt.want)
			}
		})
	}
}
