package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"pfagent/model"
)

func echoTool(name string) model.ToolDefinition {
	return model.ToolDefinition{
		Name:   name,
		Schema: &model.Schema{Type: "object"},
		Handler: func(args map[string]any) (any, error) {
			return args, nil
		},
	}
}

func failingTool(name, message string) model.ToolDefinition {
	return model.ToolDefinition{
		Name:   name,
		Schema: &model.Schema{Type: "object"},
		Handler: func(args map[string]any) (any, error) {
			return nil, errors.New(message)
		},
	}
}

func toolCallEvents(name, args string) []model.StreamEvent {
	return []model.StreamEvent{
		{Type: model.EventToolCallDelta, ToolCalls: []model.ToolCallDelta{
			{Index: 0, ID: "call-0", Name: name, Arguments: args},
		}},
	}
}

func TestRunLoopNaturalCompletion(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents("All done, nothing to execute.")},
	}}
	ui := &fakeUI{}
	store := &fakeStore{}

	err := RunLoop(context.Background(), LoopOptions{
		Provider: p,
		UI:       ui,
		Store:    store,
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("RunLoop: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("stream calls = %d, want exactly one step", p.calls)
	}
	if !ui.contains(model.RoleAssistant, "All done") {
		t.Error("streamed content not surfaced")
	}
	for _, msg := range store.messages {
		if msg.Role == model.RoleTool {
			t.Errorf("unexpected tool message persisted: %+v", msg)
		}
	}
}

func TestRunLoopExecutesToolThenFinishes(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: toolCallEvents("createEntity", `{"title":"Alpha"}`)},
		{events: contentEvents("Created.")},
	}}
	ui := &fakeUI{}
	store := &fakeStore{}
	audit := &fakeAudit{}

	err := RunLoop(context.Background(), LoopOptions{
		Provider: p,
		UI:       ui,
		Store:    store,
		Audit:    audit,
		Messages: []model.Message{{Role: model.RoleUser, Content: "create Alpha"}},
		Tools:    []model.ToolDefinition{echoTool("createEntity")},
	})
	if err != nil {
		t.Fatalf("RunLoop: %v", err)
	}
	if !ui.contains(model.RoleTool, "Using tool: createEntity") {
		t.Error("missing one-time tool notice")
	}
	if !ui.contains(model.RoleTool, "Tool call: createEntity") {
		t.Error("missing tool call line")
	}
	if !ui.contains(model.RoleTool, "Tool result (createEntity)") {
		t.Error("missing tool result line")
	}
	if len(audit.entries) != 1 || !audit.entries[0].ok {
		t.Errorf("audit entries = %+v, want one success", audit.entries)
	}

	var toolMsgs int
	for _, msg := range store.messages {
		if msg.Role == model.RoleTool {
			toolMsgs++
			if msg.ToolCallID != "call-0" {
				t.Errorf("tool message ToolCallID = %q", msg.ToolCallID)
			}
		}
	}
	if toolMsgs != 1 {
		t.Errorf("persisted tool messages = %d, want 1", toolMsgs)
	}
}

func TestRunLoopRetriesTransientFailure(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{err: errors.New("connection reset")},
		{events: contentEvents("Recovered.")},
	}}
	ui := &fakeUI{}

	err := RunLoop(context.Background(), LoopOptions{
		Provider:     p,
		UI:           ui,
		Store:        &fakeStore{},
		Messages:     []model.Message{{Role: model.RoleUser, Content: "hi"}},
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("RunLoop: %v", err)
	}
	if !ui.contains(model.RoleTool, "Retrying LLM request (1/2)...") {
		t.Error("missing retry notice")
	}
	if !ui.contains(model.RoleAssistant, "Recovered.") {
		t.Error("missing recovered content")
	}
}

func TestRunLoopGivesUpAfterMaxRetries(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{err: errors.New("down")},
		{err: errors.New("down")},
		{err: errors.New("down")},
	}}

	err := RunLoop(context.Background(), LoopOptions{
		Provider:     p,
		UI:           &fakeUI{},
		Store:        &fakeStore{},
		Messages:     []model.Message{{Role: model.RoleUser, Content: "hi"}},
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if p.calls != 3 {
		t.Errorf("stream calls = %d, want initial + 2 retries", p.calls)
	}
}

func TestRunLoopStrictModeAbortsOnFailure(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: toolCallEvents("patchByMarker", `{}`)},
	}}
	ui := &fakeUI{}

	err := RunLoop(context.Background(), LoopOptions{
		Provider: p,
		UI:       ui,
		Store:    &fakeStore{},
		Messages: []model.Message{{Role: model.RoleUser, Content: "patch"}},
		Tools:    []model.ToolDefinition{failingTool("patchByMarker", "File not found: a.md")},
		Strict:   true,
	})
	if err != nil {
		t.Fatalf("RunLoop: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("stream calls = %d, strict failure should not advance", p.calls)
	}
	if !ui.contains(model.RoleAssistant, "Strict mode: tool execution failed. Please adjust input and try again.") {
		t.Error("missing strict mode abort message")
	}
}

func TestRunLoopMissingFieldsShortCircuit(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: []model.StreamEvent{
			{Type: model.EventToolCallDelta, ToolCalls: []model.ToolCallDelta{
				{Index: 0, ID: "c0", Name: "createEntity", Arguments: `{}`},
				{Index: 1, ID: "c1", Name: "createEntity", Arguments: `{}`},
			}},
		}},
	}}
	ui := &fakeUI{}

	err := RunLoop(context.Background(), LoopOptions{
		Provider: p,
		UI:       ui,
		Store:    &fakeStore{},
		Messages: []model.Message{{Role: model.RoleUser, Content: "create"}},
		Tools:    []model.ToolDefinition{failingTool("createEntity", "Missing required fields: title, description")},
	})
	if err != nil {
		t.Fatalf("RunLoop: %v", err)
	}
	if p.calls != 1 {
		t.Errorf("stream calls = %d, missing fields should end the loop", p.calls)
	}
	want := "Missing required fields: title, description. Please provide them and try again."
	if ui.count(model.RoleAssistant, want) != 1 {
		t.Errorf("want exactly one deduplicated missing-fields message %q, messages: %+v", want, ui.messages)
	}
}

func TestRunLoopStepBudget(t *testing.T) {
	var steps []providerStep
	for i := 0; i < 10; i++ {
		steps = append(steps, providerStep{events: []model.StreamEvent{
			{Type: model.EventToolCallDelta, ToolCalls: []model.ToolCallDelta{
				{Index: 0, ID: fmt.Sprintf("c%d", i), Name: "listProjects", Arguments: `{}`},
			}},
		}})
	}
	p := &scriptedProvider{steps: steps}
	ui := &fakeUI{}

	err := RunLoop(context.Background(), LoopOptions{
		Provider: p,
		UI:       ui,
		Store:    &fakeStore{},
		Messages: []model.Message{{Role: model.RoleUser, Content: "loop"}},
		Tools:    []model.ToolDefinition{echoTool("listProjects")},
		MaxSteps: 3,
	})
	if err != nil {
		t.Fatalf("RunLoop: %v", err)
	}
	if p.calls != 3 {
		t.Errorf("stream calls = %d, want step budget of 3", p.calls)
	}
	if !ui.contains(model.RoleAssistant, "Stopped after reaching max tool steps.") {
		t.Error("missing step budget message")
	}
}

func TestRunLoopOneTimeToolNotice(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: []model.StreamEvent{
			{Type: model.EventToolCallDelta, ToolCalls: []model.ToolCallDelta{
				{Index: 0, ID: "c0", Name: "listProjects", Arguments: `{`},
			}},
			{Type: model.EventToolCallDelta, ToolCalls: []model.ToolCallDelta{
				{Index: 0, Name: "listProjects", Arguments: `}`},
			}},
		}},
		{events: contentEvents("done")},
	}}
	ui := &fakeUI{}

	err := RunLoop(context.Background(), LoopOptions{
		Provider: p,
		UI:       ui,
		Store:    &fakeStore{},
		Messages: []model.Message{{Role: model.RoleUser, Content: "list"}},
		Tools:    []model.ToolDefinition{echoTool("listProjects")},
	})
	if err != nil {
		t.Fatalf("RunLoop: %v", err)
	}
	if got := ui.count(model.RoleTool, "Using tool: listProjects"); got != 1 {
		t.Errorf("tool notices = %d, want exactly one per tool name", got)
	}
}
