package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"pfagent/workspace"
)

var intentPrompt = strings.Join([]string{
	"You are an intent classifier for a project management assistant.",
	"Classify the user input into exactly one of: chat, action, mixed, unclear.",
	"Definitions:",
	"chat: user is asking a question or discussing concepts. No execution requested.",
	"action: user explicitly requests operations such as creating, updating, deleting projects, tasks, notes, or structures.",
	"mixed: user asks a question AND requests an action in the same message.",
	"unclear: not enough information to decide.",
	"Respond ONLY with valid JSON:",
	`{"intent":"...","reason":"...","confidence":0.0}`,
	"Do not include markdown.",
}, "\n")

var plannerPrompt = strings.Join([]string{
	"You are a planner for a project management assistant.",
	"Return ONLY valid JSON with keys: needsFollowup (boolean), question (string), plan (string), context (string), fields (object).",
	"fields must include required values for createEntity/createProject when applicable (e.g., TITLE, DESCRIPTION).",
	"If you need more info, set needsFollowup=true and ask a concise question.",
	"If you have enough info, set needsFollowup=false and provide a short plan, context summary, and fields.",
	"Do NOT call tools in this stage.",
	"Format text in `question` and `plan` keys as markdown",
}, "\n")

// BuildSystemPrompt renders the execution-stage system message: hard
// rules first, then the workspace context the model needs to reference
// projects and entity types by their real identifiers.
func BuildSystemPrompt(snap workspace.Snapshot) string {
	lines := []string{
		"You are a project management assistant. You must use tools to perform any actions.",
		"Never edit files directly; use tools only.",
		"Respond with tool calls when an action is required.",
		"If required fields are missing, ask the user for them instead of calling tools.",
		"Use camelCase fields in createEntity (e.g., fields.title, fields.description).",
		`Example tool call: createEntity { projectRef:{tag:"my-tag"}, entityTypeId:"task", fields:{ title:"...", description:"..." } }`,
		"Context:",
		fmt.Sprintf("Selected text: %s", orNone(snap.Selection)),
		fmt.Sprintf("Active file: %s", orNone(snap.ActiveFile)),
		fmt.Sprintf("Active file content (truncated): %s", orNone(truncate(snap.ActiveFileContent, 1000))),
		fmt.Sprintf("Active project: %s", formatActiveProject(snap.ActiveProject)),
		fmt.Sprintf("Entity required fields: %s", formatJSONOr(snap.EntityRequirements, "{}")),
		fmt.Sprintf("Project index snapshot: %s", formatJSONOr(snap.Projects, "(none)")),
	}
	return strings.Join(lines, "\n")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func formatActiveProject(entry *workspace.ProjectEntry) string {
	if entry == nil {
		return "(none)"
	}
	return fmt.Sprintf("%s (%s)", entry.ProjectTag, entry.FullName)
}

func formatJSONOr(value any, fallback string) string {
	switch v := value.(type) {
	case map[string][]string:
		if len(v) == 0 {
			return fallback
		}
	case []workspace.ProjectEntry:
		if len(v) == 0 {
			return fallback
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fallback
	}
	return string(data)
}

// FormatResult renders a tool result for display: strings pass through,
// everything else is JSON.
func FormatResult(result any) string {
	if result == nil {
		return "(no result)"
	}
	if s, ok := result.(string); ok {
		return s
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(data)
}
