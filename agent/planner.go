package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pfagent/model"
	"pfagent/tools"
)

// PlanningOptions configures one planning stage run.
type PlanningOptions struct {
	Provider model.Provider
	Messages []model.Message
	Tools    []model.ToolDefinition
	// AllowToolCalls lets the planner execute safe tools between
	// iterations. The callers in this repo keep it false; the plan
	// must come from the transcript alone.
	AllowToolCalls bool
	MaxSteps       int
}

// RunPlanningStage asks the model to produce a structured plan. The
// transcript is prefixed with the planner prompt and stripped of
// tool-role messages: planning reasons over what was said, not over
// raw tool payloads. Unparseable output degrades to an empty plan with
// no followup, which downstream treats as "nothing to confirm beyond
// the original request".
func RunPlanningStage(ctx context.Context, opts PlanningOptions) (model.PlanningResult, error) {
	planningMessages := []model.Message{{Role: model.RoleSystem, Content: plannerPrompt}}
	for _, msg := range opts.Messages {
		if msg.Role == model.RoleTool {
			continue
		}
		planningMessages = append(planningMessages, msg)
	}

	content, err := runPlannerLoop(ctx, opts, planningMessages)
	if err != nil {
		return model.PlanningResult{}, err
	}

	result, ok := parsePlannerJSON(content)
	if !ok {
		return model.PlanningResult{Fields: map[string]string{}}, nil
	}
	return result, nil
}

func runPlannerLoop(ctx context.Context, opts PlanningOptions, messages []model.Message) (string, error) {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 6
	}
	var toolDefs []model.ToolDefinition
	if opts.AllowToolCalls {
		toolDefs = opts.Tools
	}

	var content string
	for step := 0; step < maxSteps; step++ {
		acc := tools.NewAccumulator()
		var buf strings.Builder

		err := opts.Provider.Stream(ctx, messages, toolDefs, func(evt model.StreamEvent) error {
			switch evt.Type {
			case model.EventContent:
				buf.WriteString(evt.Delta)
			case model.EventToolCallDelta:
				acc.Add(evt.ToolCalls)
			}
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("planning stream failed: %w", err)
		}

		content = buf.String()
		calls := acc.Finalize()
		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   content,
			ToolCalls: calls,
		})
		if len(calls) == 0 || !opts.AllowToolCalls {
			return strings.TrimSpace(content), nil
		}

		results := tools.Execute(calls, opts.Tools)
		for i, res := range results {
			var callID string
			if i < len(calls) {
				callID = calls[i].ID
			}
			messages = append(messages, model.Message{
				Role:       model.RoleTool,
				Name:       res.ToolName,
				ToolCallID: callID,
				Content:    encodeToolPayload(res),
			})
		}
	}
	return strings.TrimSpace(content), nil
}

func encodeToolPayload(res tools.Result) string {
	var payload map[string]any
	if res.OK {
		payload = map[string]any{"ok": true, "result": res.Result}
	} else {
		payload = map[string]any{"ok": false, "error": res.Error}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return `{"ok":false,"error":"unencodable tool result"}`
	}
	return string(data)
}

func parsePlannerJSON(raw string) (model.PlanningResult, bool) {
	slice, ok := extractJSON(raw)
	if !ok {
		return model.PlanningResult{}, false
	}

	var obj struct {
		NeedsFollowup bool            `json:"needsFollowup"`
		Question      string          `json:"question"`
		Plan          string          `json:"plan"`
		Context       string          `json:"context"`
		Fields        json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal([]byte(slice), &obj); err != nil {
		return model.PlanningResult{}, false
	}

	fields := map[string]string{}
	if len(obj.Fields) > 0 {
		// fields values may be any scalar type; coerce to strings.
		var loose map[string]any
		if err := json.Unmarshal(obj.Fields, &loose); err == nil {
			for key, value := range loose {
				switch v := value.(type) {
				case string:
					fields[key] = v
				case nil:
				default:
					fields[key] = fmt.Sprintf("%v", v)
				}
			}
		}
	}

	return model.PlanningResult{
		NeedsFollowup: obj.NeedsFollowup,
		Question:      obj.Question,
		Plan:          obj.Plan,
		Context:       obj.Context,
		Fields:        fields,
	}, true
}
