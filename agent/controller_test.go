package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"pfagent/config"
	"pfagent/model"
	"pfagent/workspace"
)

func testWorkspace() *workspace.Memory {
	mem := workspace.NewMemory()
	mem.AddProject(workspace.ProjectEntry{
		FullName:    "work.dev.alpha",
		ProjectID:   "alpha",
		ProjectTag:  "alpha",
		ProjectName: "Alpha",
		Path:        "work/dev/alpha",
		Dimension:   "work",
		Category:    "dev",
	})
	return mem
}

func newTestController(p model.Provider, store *fakeStore) (*Controller, *fakeUI) {
	ui := &fakeUI{}
	ctl := NewController(config.DefaultConfig(), p, ui, store, &fakeAudit{}, testWorkspace())
	return ctl, ui
}

const actionIntentJSON = `{"intent":"action","reason":"","confidence":1}`

func planJSON(plan string) string {
	return `{"needsFollowup":false,"question":"","plan":"` + plan + `","context":"","fields":{}}`
}

func TestControllerRoutesChatIntent(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents(`{"intent":"chat","reason":"","confidence":1}`)},
		{events: contentEvents("Hello there.")},
	}}
	store := &fakeStore{}
	ctl, ui := newTestController(p, store)

	ctl.HandleSend(context.Background(), "Hi")

	if !ui.contains(model.RoleAssistant, "Hello there.") {
		t.Error("chat reply not streamed to UI")
	}
	if store.pending != nil {
		t.Error("chat turn must not create a pending plan")
	}
	var persisted int
	for _, msg := range store.messages {
		if msg.Role == model.RoleAssistant && msg.Content == "Hello there." {
			persisted++
		}
	}
	if persisted != 1 {
		t.Errorf("persisted chat replies = %d, want 1", persisted)
	}
}

func TestControllerRoutesActionIntent(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents(actionIntentJSON)},
		{events: contentEvents(planJSON("Create project Alpha"))},
	}}
	store := &fakeStore{}
	ctl, ui := newTestController(p, store)

	ctl.HandleSend(context.Background(), "Create project Alpha")

	if !ui.contains(model.RoleAssistant, "Planned steps: Create project Alpha") {
		t.Error("missing plan summary")
	}
	if !ui.contains(model.RoleTool, "CONFIRM_ACTIONS") {
		t.Error("missing confirmation actions")
	}
	if !ui.contains(model.RoleAssistant, "Please confirm to proceed with these actions.") {
		t.Error("missing confirmation prompt")
	}
	if store.pending == nil || store.pending.Status != model.PlanAwaitingConfirmation {
		t.Fatalf("pending plan = %+v, want awaiting_confirmation", store.pending)
	}
	if store.pending.OriginalInput != "Create project Alpha" {
		t.Errorf("pending original input = %q", store.pending.OriginalInput)
	}
}

func TestControllerRoutesUnclearIntent(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents(`{"intent":"unclear","reason":"","confidence":0.4}`)},
	}}
	store := &fakeStore{}
	ctl, ui := newTestController(p, store)

	ctl.HandleSend(context.Background(), "Maybe")

	if !ui.contains(model.RoleAssistant, "Could you clarify what you'd like me to do?") {
		t.Error("missing clarification prompt")
	}
	if store.pending != nil {
		t.Error("unclear turn must not create a pending plan")
	}
}

func TestControllerClarifyingFlow(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents(actionIntentJSON)},
		{events: contentEvents(`{"needsFollowup":true,"question":"What category?","plan":"","context":"","fields":{}}`)},
		{events: contentEvents(planJSON("Create project Alpha in R&D"))},
	}}
	store := &fakeStore{}
	ctl, ui := newTestController(p, store)

	ctl.HandleSend(context.Background(), "Create a project")
	if !ui.contains(model.RoleAssistant, "What category?") {
		t.Fatal("missing clarifying question")
	}
	if store.pending == nil || store.pending.Status != model.PlanClarifying {
		t.Fatalf("pending plan = %+v, want clarifying", store.pending)
	}

	ctl.HandleSend(context.Background(), "R&D")
	if store.pending == nil || store.pending.Status != model.PlanAwaitingConfirmation {
		t.Fatalf("pending plan = %+v, want awaiting_confirmation after answer", store.pending)
	}
	if len(store.pending.Clarifications) != 1 || store.pending.Clarifications[0] != "R&D" {
		t.Errorf("clarifications = %v", store.pending.Clarifications)
	}
	if !ui.contains(model.RoleAssistant, "Planned steps: Create project Alpha in R&D") {
		t.Error("missing re-planned summary")
	}

	// The re-planning transcript carries the accumulated context.
	last := p.seen[len(p.seen)-1]
	final := last[len(last)-1]
	for _, want := range []string{"Original request: Create a project", "User clarification: R&D"} {
		if !containsLine(final.Content, want) {
			t.Errorf("followup message missing %q:\n%s", want, final.Content)
		}
	}
}

func TestControllerAffirmativeRunsLoop(t *testing.T) {
	p := &scriptedProvider{steps: []providerStep{
		{events: contentEvents("Done. Project created.")},
	}}
	store := &fakeStore{pending: &model.PendingPlan{
		OriginalInput:  "Create project Alpha",
		Plan:           "create Alpha",
		Fields:         map[string]string{"NAME": "Alpha"},
		Clarifications: []string{"R&D"},
		CreatedAt:      time.Now(),
		Status:         model.PlanAwaitingConfirmation,
	}}
	ctl, ui := newTestController(p, store)

	ctl.HandleSend(context.Background(), "yes")

	if store.pending != nil {
		t.Error("pending plan should be cleared after confirmation")
	}
	if !ui.contains(model.RoleAssistant, "Done. Project created.") {
		t.Error("execution output not surfaced")
	}

	instruction := p.seen[0][len(p.seen[0])-1]
	for _, want := range []string{
		"Original request: Create project Alpha",
		"Plan: create Alpha",
		`Fields: {"NAME":"Alpha"}`,
		"Clarifications: R&D",
		"User confirmed to proceed.",
	} {
		if !containsLine(instruction.Content, want) {
			t.Errorf("synthetic instruction missing %q:\n%s", want, instruction.Content)
		}
	}
}

func TestControllerNegativeCancels(t *testing.T) {
	p := &scriptedProvider{}
	store := &fakeStore{pending: &model.PendingPlan{
		OriginalInput: "Create project Alpha",
		Status:        model.PlanAwaitingConfirmation,
	}}
	ctl, ui := newTestController(p, store)

	ctl.HandleSend(context.Background(), "cancel")

	if store.pending != nil {
		t.Error("pending plan should be cleared on cancellation")
	}
	if !ui.contains(model.RoleAssistant, "Cancelled. Tell me if you want to try a different action.") {
		t.Error("missing cancellation message")
	}
	if p.calls != 0 {
		t.Errorf("stream calls = %d, cancellation must not hit the provider", p.calls)
	}
}

func TestControllerRepromptLeavesPlanUnchanged(t *testing.T) {
	p := &scriptedProvider{}
	pending := &model.PendingPlan{
		OriginalInput: "Create project Alpha",
		Plan:          "create Alpha",
		Status:        model.PlanAwaitingConfirmation,
	}
	store := &fakeStore{pending: pending}
	ctl, ui := newTestController(p, store)

	ctl.HandleSend(context.Background(), "what will this do?")

	if store.pending == nil || store.pending.Plan != "create Alpha" || store.pending.Status != model.PlanAwaitingConfirmation {
		t.Errorf("pending plan changed: %+v", store.pending)
	}
	if ui.count(model.RoleAssistant, "Please confirm to proceed with these actions.") != 1 {
		t.Error("missing confirmation re-prompt")
	}
	if p.calls != 0 {
		t.Errorf("stream calls = %d, re-prompt must not re-plan", p.calls)
	}
}

func TestControllerIgnoresBusyAndBlankInput(t *testing.T) {
	p := &scriptedProvider{}
	ctl, ui := newTestController(p, &fakeStore{})

	ctl.HandleSend(context.Background(), "   ")
	if len(ui.messages) != 0 {
		t.Errorf("blank input produced messages: %+v", ui.messages)
	}
}

func TestControllerOfflineTagLookup(t *testing.T) {
	store := &fakeStore{}
	ui := &fakeUI{}
	ctl := NewController(config.DefaultConfig(), nil, ui, store, &fakeAudit{}, testWorkspace())

	ctl.HandleSend(context.Background(), "alpha")
	if !ui.contains(model.RoleAssistant, "Resolved project: work.dev.alpha (alpha)") {
		t.Errorf("tag lookup failed: %+v", ui.messages)
	}

	ctl.HandleSend(context.Background(), "nosuchproject")
	if !ui.contains(model.RoleAssistant, "Project not found.") {
		t.Errorf("missing not-found message: %+v", ui.messages)
	}
}

func TestControllerClearConversation(t *testing.T) {
	store := &fakeStore{
		messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
		pending:  &model.PendingPlan{Status: model.PlanAwaitingConfirmation},
	}
	ctl, ui := newTestController(&scriptedProvider{}, store)

	ctl.ClearConversation()

	if len(store.messages) != 0 || store.pending != nil {
		t.Errorf("store not cleared: messages=%d pending=%+v", len(store.messages), store.pending)
	}
	if !ui.contains(model.RoleAssistant, "Conversation cleared.") {
		t.Error("missing cleared confirmation")
	}
}

func containsLine(text, line string) bool {
	for _, l := range strings.Split(text, "\n") {
		if l == line {
			return true
		}
	}
	return false
}
