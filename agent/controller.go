package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pfagent/config"
	"pfagent/mcp"
	"pfagent/model"
	"pfagent/tools"
	"pfagent/workspace"
)

const (
	confirmPrompt    = "Please confirm to proceed with these actions."
	cancelledMessage = "Cancelled. Tell me if you want to try a different action."
	clarifyPrompt    = "Could you clarify what you'd like me to do?"
)

// Controller owns one conversation's turn handling. It is not safe for
// concurrent HandleSend calls; the busy guard drops re-entrant sends
// the way a UI double-click should be dropped.
type Controller struct {
	cfg      *config.Config
	provider model.Provider
	ui       model.ChatUI
	store    Store
	audit    ToolRecorder
	api      workspace.API

	busy        bool
	pendingPlan *model.PendingPlan
}

// NewController wires a controller. provider may be nil when no
// credential is configured; sends then fall back to the offline tag
// lookup path.
func NewController(cfg *config.Config, provider model.Provider, ui model.ChatUI, store Store, audit ToolRecorder, api workspace.API) *Controller {
	return &Controller{
		cfg:         cfg,
		provider:    provider,
		ui:          ui,
		store:       store,
		audit:       audit,
		api:         api,
		pendingPlan: store.PendingPlan(),
	}
}

// HandleSend processes one user input. Busy turns and blank input are
// ignored.
func (c *Controller) HandleSend(ctx context.Context, inputRaw string) {
	if c.busy {
		return
	}
	input := strings.TrimSpace(inputRaw)
	if input == "" {
		return
	}

	c.ui.AppendMessage(model.RoleUser, input)

	if c.provider == nil {
		c.handleTagLookup(input)
		return
	}

	c.busy = true
	c.ui.SetBusy(true)
	defer func() {
		c.busy = false
		c.ui.SetBusy(false)
	}()

	var err error
	if c.pendingPlan != nil {
		err = c.handleFollowup(ctx, input)
	} else {
		err = c.handleNewRequest(ctx, input)
	}
	if err != nil {
		c.ui.AppendMessage(model.RoleAssistant, err.Error())
	}
}

// Flush forces pending persistence; called on shutdown.
func (c *Controller) Flush() {
	if err := c.store.Flush(); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("[controller] flush failed: %v", err)
	}
}

// ClearConversation wipes the transcript and any staged plan.
func (c *Controller) ClearConversation() {
	c.setPendingPlan(nil)
	c.store.Clear()
	c.ui.ClearMessages()
	c.ui.AppendMessage(model.RoleAssistant, "Conversation cleared.")
}

// handleTagLookup is the no-credential path: treat the input as a
// project handle and resolve it locally.
func (c *Controller) handleTagLookup(input string) {
	result, err := c.api.ResolveProject(workspace.ProjectRef{Tag: input})
	if err != nil {
		c.ui.AppendMessage(model.RoleAssistant, err.Error())
		return
	}
	if result != nil {
		c.ui.AppendMessage(model.RoleAssistant,
			fmt.Sprintf("Resolved project: %s (%s)", result.FullName, result.ProjectTag))
		return
	}

	entries, err := c.api.ListProjects()
	if err != nil {
		c.ui.AppendMessage(model.RoleAssistant, err.Error())
		return
	}
	matches := workspace.MatchProjects(entries, input, 5)
	switch len(matches) {
	case 0:
		c.ui.AppendMessage(model.RoleAssistant, "Project not found.")
	case 1:
		c.ui.AppendMessage(model.RoleAssistant,
			fmt.Sprintf("Resolved project: %s (%s)", matches[0].FullName, matches[0].ProjectTag))
	default:
		var list []string
		for _, m := range matches {
			list = append(list, fmt.Sprintf("- %s (%s)", m.ProjectTag, m.FullName))
		}
		c.ui.AppendMessage(model.RoleAssistant, "Multiple matches found:\n"+strings.Join(list, "\n"))
	}
}

func (c *Controller) handleNewRequest(ctx context.Context, input string) error {
	intent := ClassifyIntent(ctx, c.provider, input)
	if config.DebugLog != nil {
		config.DebugLog.Printf("[controller] intent=%s confidence=%.2f reason=%q", intent.Intent, intent.Confidence, intent.Reason)
	}

	switch intent.Intent {
	case model.IntentChat:
		return c.handleChat(ctx, input)
	case model.IntentUnclear:
		c.store.Append(model.Message{Role: model.RoleUser, Content: input})
		c.appendAssistant(clarifyPrompt)
		return nil
	default: // action and mixed both go through planning
		return c.handlePlanning(ctx, input)
	}
}

// handleChat streams a plain conversational reply with no tools
// exposed.
func (c *Controller) handleChat(ctx context.Context, input string) error {
	snapshot := workspace.BuildSnapshot(c.api)
	messages := []model.Message{{Role: model.RoleSystem, Content: BuildSystemPrompt(snapshot)}}
	messages = append(messages, c.historyWindow()...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: input})
	c.store.Append(model.Message{Role: model.RoleUser, Content: input})

	handle := c.ui.AppendMessage(model.RoleAssistant, "")
	content := ""
	err := c.provider.Stream(ctx, messages, nil, func(evt model.StreamEvent) error {
		if evt.Type == model.EventContent {
			content += evt.Delta
			c.ui.UpdateMessage(handle, content)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("LLM request failed: %w", err)
	}
	c.store.Append(model.Message{Role: model.RoleAssistant, Content: content})
	return nil
}

func (c *Controller) handlePlanning(ctx context.Context, input string) error {
	allTools := c.buildTools()
	safeTools := tools.FilterSafe(allTools)
	snapshot := workspace.BuildSnapshot(c.api)

	messages := []model.Message{{Role: model.RoleSystem, Content: BuildSystemPrompt(snapshot)}}
	messages = append(messages, c.historyWindow()...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: input})
	c.store.Append(model.Message{Role: model.RoleUser, Content: input})

	planResult, err := RunPlanningStage(ctx, PlanningOptions{
		Provider: c.provider,
		Messages: messages,
		Tools:    safeTools,
		MaxSteps: c.cfg.PlannerMaxSteps,
	})
	if err != nil {
		return err
	}

	if planResult.NeedsFollowup && planResult.Question != "" {
		c.setPendingPlan(&model.PendingPlan{
			OriginalInput:  input,
			Plan:           planResult.Plan,
			Context:        planResult.Context,
			Question:       planResult.Question,
			Fields:         planResult.Fields,
			CreatedAt:      time.Now(),
			Status:         model.PlanClarifying,
			Clarifications: []string{},
		})
		c.appendAssistant(planResult.Question)
		return nil
	}

	c.announcePlan(planResult)
	c.setPendingPlan(&model.PendingPlan{
		OriginalInput:  input,
		Plan:           planResult.Plan,
		Context:        planResult.Context,
		Fields:         planResult.Fields,
		CreatedAt:      time.Now(),
		Status:         model.PlanAwaitingConfirmation,
		Clarifications: []string{},
	})
	c.ui.AppendConfirmationActions()
	c.appendAssistant(confirmPrompt)
	return nil
}

func (c *Controller) handleFollowup(ctx context.Context, input string) error {
	pending := c.pendingPlan
	c.store.Append(model.Message{Role: model.RoleUser, Content: input})

	if pending.Status == model.PlanAwaitingConfirmation {
		switch {
		case tools.IsAffirmative(input):
			return c.runConfirmedPlan(ctx, pending)
		case tools.IsNegative(input):
			c.setPendingPlan(nil)
			c.appendAssistant(cancelledMessage)
			return nil
		default:
			// Anything else re-prompts without re-planning; the staged
			// plan stays exactly as it was.
			c.ui.AppendConfirmationActions()
			c.appendAssistant(confirmPrompt)
			return nil
		}
	}

	// Clarifying: fold the answer in and re-plan.
	pending.Clarifications = append(pending.Clarifications, input)
	c.setPendingPlan(pending)

	allTools := c.buildTools()
	safeTools := tools.FilterSafe(allTools)
	snapshot := workspace.BuildSnapshot(c.api)

	parts := []string{fmt.Sprintf("Original request: %s", pending.OriginalInput)}
	if pending.Plan != "" {
		parts = append(parts, fmt.Sprintf("Plan so far: %s", pending.Plan))
	}
	if pending.Context != "" {
		parts = append(parts, fmt.Sprintf("Context so far: %s", pending.Context))
	}
	parts = append(parts, fmt.Sprintf("User clarification: %s", input))

	messages := []model.Message{{Role: model.RoleSystem, Content: BuildSystemPrompt(snapshot)}}
	messages = append(messages, c.historyWindow()...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: strings.Join(parts, "\n")})

	planResult, err := RunPlanningStage(ctx, PlanningOptions{
		Provider: c.provider,
		Messages: messages,
		Tools:    safeTools,
		MaxSteps: c.cfg.PlannerMaxSteps,
	})
	if err != nil {
		return err
	}

	if planResult.NeedsFollowup && planResult.Question != "" {
		pending.Plan = planResult.Plan
		pending.Context = planResult.Context
		pending.Question = planResult.Question
		pending.Fields = planResult.Fields
		pending.Status = model.PlanClarifying
		c.setPendingPlan(pending)
		c.appendAssistant(planResult.Question)
		return nil
	}

	pending.Plan = planResult.Plan
	pending.Context = planResult.Context
	pending.Fields = planResult.Fields
	pending.Status = model.PlanAwaitingConfirmation
	c.setPendingPlan(pending)
	c.announcePlan(planResult)
	c.ui.AppendConfirmationActions()
	c.appendAssistant(confirmPrompt)
	return nil
}

// runConfirmedPlan builds the synthetic instruction message from the
// staged plan and hands it to the execution loop with the full
// unfiltered registry.
func (c *Controller) runConfirmedPlan(ctx context.Context, pending *model.PendingPlan) error {
	allTools := c.buildTools()
	snapshot := workspace.BuildSnapshot(c.api)

	parts := []string{fmt.Sprintf("Original request: %s", pending.OriginalInput)}
	if pending.Plan != "" {
		parts = append(parts, fmt.Sprintf("Plan: %s", pending.Plan))
	}
	if pending.Context != "" {
		parts = append(parts, fmt.Sprintf("Context: %s", pending.Context))
	}
	if len(pending.Fields) > 0 {
		if data, err := json.Marshal(pending.Fields); err == nil {
			parts = append(parts, fmt.Sprintf("Fields: %s", data))
		}
	}
	if len(pending.Clarifications) > 0 {
		parts = append(parts, fmt.Sprintf("Clarifications: %s", strings.Join(pending.Clarifications, " | ")))
	}
	parts = append(parts, "User confirmed to proceed.")

	messages := []model.Message{{Role: model.RoleSystem, Content: BuildSystemPrompt(snapshot)}}
	messages = append(messages, c.historyWindow()...)
	messages = append(messages, model.Message{Role: model.RoleUser, Content: strings.Join(parts, "\n")})

	c.setPendingPlan(nil)

	return RunLoop(ctx, LoopOptions{
		Provider:     c.provider,
		UI:           c.ui,
		Store:        c.store,
		Audit:        c.audit,
		Messages:     messages,
		Tools:        allTools,
		MaxSteps:     c.cfg.MaxToolSteps,
		Strict:       c.cfg.StrictExecution,
		MaxRetries:   c.cfg.MaxRetries,
		RetryBackoff: time.Duration(c.cfg.RetryBackoffMS) * time.Millisecond,
	})
}

// announcePlan surfaces the planner's output before asking for
// confirmation.
func (c *Controller) announcePlan(result model.PlanningResult) {
	var parts []string
	if result.Plan != "" {
		parts = append(parts, fmt.Sprintf("Planned steps: %s", result.Plan))
	}
	if result.Context != "" {
		parts = append(parts, fmt.Sprintf("Planner context: %s", result.Context))
	}
	if len(result.Fields) > 0 {
		if data, err := json.Marshal(result.Fields); err == nil {
			parts = append(parts, fmt.Sprintf("Fields: %s", data))
		}
	}
	if len(parts) > 0 {
		c.appendAssistant(strings.Join(parts, "\n"))
	}
}

// buildTools assembles the per-turn registry: local workspace tools
// plus whatever remote servers are reachable right now.
func (c *Controller) buildTools() []model.ToolDefinition {
	defs := workspace.BuildRegistry(c.api)
	defs = append(defs, mcp.LoadRemoteTools(c.cfg.ToolServers)...)
	return defs
}

// historyWindow returns the persisted window with tool messages
// stripped; replayed tool payloads confuse planning and confirmation
// turns.
func (c *Controller) historyWindow() []model.Message {
	var out []model.Message
	for _, msg := range c.store.Window() {
		if msg.Role == model.RoleTool {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// appendAssistant surfaces a message and persists it in one step.
func (c *Controller) appendAssistant(content string) {
	c.ui.AppendMessage(model.RoleAssistant, content)
	c.store.Append(model.Message{Role: model.RoleAssistant, Content: content})
}

func (c *Controller) setPendingPlan(pending *model.PendingPlan) {
	c.pendingPlan = pending
	c.store.SetPendingPlan(pending)
}
