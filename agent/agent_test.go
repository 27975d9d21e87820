package agent

import (
	"context"
	"strings"
	"testing"

	"pfagent/model"
)

// providerStep scripts one Stream call: events pushed in order, then an
// optional terminal error.
type providerStep struct {
	events []model.StreamEvent
	err    error
}

type scriptedProvider struct {
	steps []providerStep
	calls int
	// seen records the message list of every Stream call for
	// assertions on what the model was shown.
	seen [][]model.Message
}

func (p *scriptedProvider) Stream(ctx context.Context, messages []model.Message, tools []model.ToolDefinition, fn model.StreamFunc) error {
	copied := make([]model.Message, len(messages))
	copy(copied, messages)
	p.seen = append(p.seen, copied)

	if p.calls >= len(p.steps) {
		return fn(model.StreamEvent{Type: model.EventDone})
	}
	step := p.steps[p.calls]
	p.calls++
	for _, evt := range step.events {
		if err := fn(evt); err != nil {
			return err
		}
	}
	if step.err != nil {
		return step.err
	}
	return fn(model.StreamEvent{Type: model.EventDone})
}

func (p *scriptedProvider) Model() string { return "scripted" }

func contentEvents(text string) []model.StreamEvent {
	return []model.StreamEvent{{Type: model.EventContent, Delta: text}}
}

type recordedMessage struct {
	role    string
	content string
}

type fakeUI struct {
	messages []recordedMessage
	busy     bool
}

func (u *fakeUI) AppendMessage(role, content string) model.MessageHandle {
	u.messages = append(u.messages, recordedMessage{role, content})
	return model.MessageHandle(len(u.messages) - 1)
}

func (u *fakeUI) UpdateMessage(handle model.MessageHandle, content string) {
	idx := int(handle)
	if idx >= 0 && idx < len(u.messages) {
		u.messages[idx].content = content
	}
}

func (u *fakeUI) AppendConfirmationActions() {
	u.messages = append(u.messages, recordedMessage{model.RoleTool, "CONFIRM_ACTIONS"})
}

func (u *fakeUI) ClearMessages() { u.messages = nil }

func (u *fakeUI) SetBusy(busy bool) { u.busy = busy }

func (u *fakeUI) contains(role, substr string) bool {
	for _, m := range u.messages {
		if m.role == role && strings.Contains(m.content, substr) {
			return true
		}
	}
	return false
}

func (u *fakeUI) count(role, substr string) int {
	n := 0
	for _, m := range u.messages {
		if m.role == role && strings.Contains(m.content, substr) {
			n++
		}
	}
	return n
}

type fakeStore struct {
	messages []model.Message
	pending  *model.PendingPlan
}

func (s *fakeStore) Append(msg model.Message)               { s.messages = append(s.messages, msg) }
func (s *fakeStore) Window() []model.Message                { return s.messages }
func (s *fakeStore) PendingPlan() *model.PendingPlan        { return s.pending }
func (s *fakeStore) SetPendingPlan(plan *model.PendingPlan) { s.pending = plan }
func (s *fakeStore) Clear()                                 { s.messages = nil; s.pending = nil }
func (s *fakeStore) Flush() error                           { return nil }

type auditEntry struct {
	tool string
	ok   bool
	err  string
}

type fakeAudit struct {
	entries []auditEntry
}

func (a *fakeAudit) Record(tool string, ok bool, errText string) error {
	a.entries = append(a.entries, auditEntry{tool, ok, errText})
	return nil
}

func TestClassifyIntentParsesWrappedJSON(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents("Sure, here you go: {\"intent\":\"action\",\"reason\":\"create request\",\"confidence\":0.9} hope that helps")},
	}}
	result := ClassifyIntent(context.Background(), p, "create a project")
	if result.Intent != model.IntentAction {
		t.Fatalf("intent = %q, want action", result.Intent)
	}
	if result.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", result.Confidence)
	}
}

func TestClassifyIntentDefaultsOnGarbage(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents("I think you want to chat about things.")},
	}}
	result := ClassifyIntent(context.Background(), p, "hello")
	if result.Intent != model.IntentChat {
		t.Fatalf("intent = %q, want chat default", result.Intent)
	}
	if result.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", result.Confidence)
	}
}

func TestClassifyIntentDefaultsOnStreamError(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{err: context.DeadlineExceeded},
	}}
	result := ClassifyIntent(context.Background(), p, "hello")
	if result.Intent != model.IntentChat {
		t.Fatalf("intent = %q, want chat default", result.Intent)
	}
}

func TestParseIntentJSON(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantOK     bool
		wantIntent string
		wantConf   float64
	}{
		{"plain", `{"intent":"unclear","reason":"","confidence":0.4}`, true, model.IntentUnclear, 0.4},
		{"uppercase label", `{"intent":"ACTION","confidence":1}`, true, model.IntentAction, 1},
		{"unknown label", `{"intent":"banter","confidence":1}`, false, "", 0},
		{"confidence above range", `{"intent":"chat","confidence":3}`, true, model.IntentChat, 0},
		{"confidence below range", `{"intent":"chat","confidence":-0.5}`, true, model.IntentChat, 0},
		{"no braces", `chat`, false, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := parseIntentJSON(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if result.Intent != tt.wantIntent {
				t.Errorf("intent = %q, want %q", result.Intent, tt.wantIntent)
			}
			if result.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", result.Confidence, tt.wantConf)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		raw    string
		want   string
		wantOK bool
	}{
		{"prefix {\"a\":1} suffix", `{"a":1}`, true},
		{"{\"a\":{\"b\":2}}", `{"a":{"b":2}}`, true},
		{"no json here", "", false},
		{"} backwards {", "", false},
	}
	for _, tt := range tests {
		got, ok := extractJSON(tt.raw)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("extractJSON(%q) = %q, %v; want %q, %v", tt.raw, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPlanningStageParsesStructuredPlan(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents(`{"needsFollowup":false,"question":"","plan":"Create project Alpha","context":"user wants a project","fields":{"NAME":"Alpha","COUNT":3}}`)},
	}}
	result, err := RunPlanningStage(context.Background(), PlanningOptions{
		Provider: p,
		Messages: []model.Message{{Role: model.RoleUser, Content: "create Alpha"}},
	})
	if err != nil {
		t.Fatalf("RunPlanningStage: %v", err)
	}
	if result.NeedsFollowup {
		t.Error("needsFollowup = true, want false")
	}
	if result.Plan != "Create project Alpha" {
		t.Errorf("plan = %q", result.Plan)
	}
	if result.Fields["NAME"] != "Alpha" {
		t.Errorf("fields[NAME] = %q", result.Fields["NAME"])
	}
	if result.Fields["COUNT"] != "3" {
		t.Errorf("fields[COUNT] = %q, want scalar coerced to string", result.Fields["COUNT"])
	}
}

func TestPlanningStageDegradesOnGarbage(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents("I will do various things for you.")},
	}}
	result, err := RunPlanningStage(context.Background(), PlanningOptions{
		Provider: p,
		Messages: []model.Message{{Role: model.RoleUser, Content: "do things"}},
	})
	if err != nil {
		t.Fatalf("RunPlanningStage: %v", err)
	}
	if result.NeedsFollowup || result.Plan != "" || result.Question != "" {
		t.Errorf("expected empty degraded result, got %+v", result)
	}
	if result.Fields == nil {
		t.Error("fields map should be non-nil")
	}
}

func TestPlanningStageStripsToolMessages(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents(`{"needsFollowup":false,"plan":"p","context":"","fields":{}}`)},
	}}
	_, err := RunPlanningStage(context.Background(), PlanningOptions{
		Provider: p,
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "hi"},
			{Role: model.RoleTool, Name: "listProjects", Content: `{"ok":true}`},
			{Role: model.RoleAssistant, Content: "done"},
		},
	})
	if err != nil {
		t.Fatalf("RunPlanningStage: %v", err)
	}
	if len(p.seen) != 1 {
		t.Fatalf("stream calls = %d, want 1", len(p.seen))
	}
	for _, msg := range p.seen[0] {
		if msg.Role == model.RoleTool {
			t.Errorf("tool message leaked into planning transcript: %+v", msg)
		}
	}
	if p.seen[0][0].Role != model.RoleSystem {
		t.Error("planning transcript should start with the planner system prompt")
	}
}

func TestPlanningStagePropagatesStreamError(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{err: context.DeadlineExceeded},
	}}
	_, err := RunPlanningStage(context.Background(), PlanningOptions{
		Provider: p,
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error from failed planning stream")
	}
}
