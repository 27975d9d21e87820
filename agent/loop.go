package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pfagent/config"
	"pfagent/model"
	"pfagent/tools"
)

// Store is the conversation persistence surface the engine needs. The
// storage package's ConversationStore satisfies it; tests use an
// in-memory fake.
type Store interface {
	Append(msg model.Message)
	Window() []model.Message
	PendingPlan() *model.PendingPlan
	SetPendingPlan(plan *model.PendingPlan)
	Clear()
	Flush() error
}

// ToolRecorder receives one entry per executed tool call. Nil-safe at
// the call sites so the loop runs without an audit database.
type ToolRecorder interface {
	Record(tool string, ok bool, errText string) error
}

// LoopOptions configures one execution-stage run.
type LoopOptions struct {
	Provider     model.Provider
	UI           model.ChatUI
	Store        Store
	Audit        ToolRecorder
	Messages     []model.Message
	Tools        []model.ToolDefinition
	MaxSteps     int
	Strict       bool
	MaxRetries   int
	RetryBackoff time.Duration
}

// RunLoop drives the bounded execute-observe cycle: stream a model
// turn (with retries), surface text into one growing assistant
// message, execute any tool calls, feed results back, repeat. Four
// exits: a turn with no tool calls (natural completion), a strict-mode
// failure, a missing-required-fields report, or the step budget.
func RunLoop(ctx context.Context, opts LoopOptions) error {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = 6
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = 300 * time.Millisecond
	}

	messages := opts.Messages

	for step := 0; step < maxSteps; step++ {
		assistantHandle := opts.UI.AppendMessage(model.RoleAssistant, "")
		assistantContent := ""
		noticed := make(map[string]bool)
		acc := tools.NewAccumulator()

		attempt := 0
		for {
			err := opts.Provider.Stream(ctx, messages, opts.Tools, func(evt model.StreamEvent) error {
				switch evt.Type {
				case model.EventContent:
					assistantContent += evt.Delta
					opts.UI.UpdateMessage(assistantHandle, assistantContent)
				case model.EventToolCallDelta:
					acc.Add(evt.ToolCalls)
					for _, delta := range evt.ToolCalls {
						if delta.Name == "" || noticed[delta.Name] {
							continue
						}
						noticed[delta.Name] = true
						opts.UI.AppendMessage(model.RoleTool, fmt.Sprintf("Using tool: %s", delta.Name))
					}
				}
				return nil
			})
			if err == nil {
				break
			}
			attempt++
			if attempt > maxRetries {
				return err
			}
			opts.UI.AppendMessage(model.RoleTool, fmt.Sprintf("Retrying LLM request (%d/%d)...", attempt, maxRetries))
			if config.DebugLog != nil {
				config.DebugLog.Printf("[loop] stream attempt %d failed: %v", attempt, err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}

		calls := acc.Finalize()
		messages = append(messages, model.Message{
			Role:      model.RoleAssistant,
			Content:   assistantContent,
			ToolCalls: calls,
		})
		opts.Store.Append(model.Message{Role: model.RoleAssistant, Content: assistantContent})

		if len(calls) == 0 {
			return nil
		}

		for _, call := range calls {
			opts.UI.AppendMessage(model.RoleTool, fmt.Sprintf("Tool call: %s %s", call.Name, FormatResult(call.Arguments)))
		}

		results := tools.Execute(calls, opts.Tools)
		missingFields := tools.ExtractMissingFields(results)

		for i, res := range results {
			var callID string
			if i < len(calls) {
				callID = calls[i].ID
			}
			var display string
			if res.OK {
				display = fmt.Sprintf("Tool result (%s): %s", res.ToolName, FormatResult(res.Result))
			} else {
				display = fmt.Sprintf("Tool error (%s): %s", res.ToolName, res.Error)
			}
			opts.UI.AppendMessage(model.RoleTool, display)

			toolMsg := model.Message{
				Role:       model.RoleTool,
				Name:       res.ToolName,
				ToolCallID: callID,
				Content:    encodeToolPayload(res),
			}
			opts.Store.Append(toolMsg)
			messages = append(messages, toolMsg)

			if opts.Audit != nil {
				if err := opts.Audit.Record(res.ToolName, res.OK, res.Error); err != nil && config.DebugLog != nil {
					config.DebugLog.Printf("[loop] audit record failed: %v", err)
				}
			}
		}

		if opts.Strict {
			failed := false
			for _, res := range results {
				if !res.OK {
					failed = true
					break
				}
			}
			if failed {
				opts.UI.AppendMessage(model.RoleAssistant, "Strict mode: tool execution failed. Please adjust input and try again.")
				return nil
			}
		}

		if len(missingFields) > 0 {
			unique := dedupe(missingFields)
			opts.UI.AppendMessage(model.RoleAssistant, fmt.Sprintf(
				"Missing required fields: %s. Please provide them and try again.", strings.Join(unique, ", ")))
			return nil
		}
	}

	opts.UI.AppendMessage(model.RoleAssistant, "Stopped after reaching max tool steps.")
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
