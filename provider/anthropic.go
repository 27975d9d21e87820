package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"pfagent/model"
)

// AnthropicProvider adapts Anthropic's message-events stream to the
// normalized event shape using the official Go SDK.
type AnthropicProvider struct {
	client  *anthropic.Client
	model   anthropic.Model
	baseURL string
}

// NewAnthropicProvider creates an Anthropic provider instance.
// Returns an error if the API key is missing.
func NewAnthropicProvider(baseURL, apiKey, modelName string) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}
	if modelName == "" {
		modelName = "claude-3-5-sonnet-latest"
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:  &client,
		model:   anthropic.Model(modelName),
		baseURL: baseURL,
	}, nil
}

func (p *AnthropicProvider) Model() string {
	return string(p.model)
}

// Stream implements model.Provider.
//
// Anthropic frames tool calls as content blocks: content_block_start
// carries the id/name (and sometimes a pre-populated input object),
// input_json_delta frames carry partial JSON argument fragments for that
// block index. Both are normalized to ToolCallDelta; when the start
// block already contains the full input, later input deltas for that
// index are suppressed so arguments are not emitted twice.
func (p *AnthropicProvider) Stream(ctx context.Context, messages []model.Message, defs []model.ToolDefinition, fn model.StreamFunc) error {
	anthropicMessages, systemBlocks := convertToAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  anthropicMessages,
		MaxTokens: 4096, // Required by Anthropic API
	}
	if len(systemBlocks) > 0 {
		params.System = systemBlocks
	}
	if len(defs) > 0 {
		params.Tools = convertToAnthropicTools(defs)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	suppressInputDelta := make(map[int]bool)

	for stream.Next() {
		event := stream.Current()

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			toolUse, ok := eventVariant.ContentBlock.AsAny().(anthropic.ToolUseBlock)
			if !ok {
				continue
			}
			index := int(eventVariant.Index)
			delta := model.ToolCallDelta{
				Index: index,
				ID:    toolUse.ID,
				Name:  toolUse.Name,
			}
			// Some models place the whole input on the start block.
			if hasInput(toolUse.Input) {
				suppressInputDelta[index] = true
				delta.Arguments = string(toolUse.Input)
			}
			if err := fn(model.StreamEvent{Type: model.EventToolCallDelta, ToolCalls: []model.ToolCallDelta{delta}}); err != nil {
				return err
			}

		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if err := fn(model.StreamEvent{Type: model.EventContent, Delta: deltaVariant.Text}); err != nil {
					return err
				}
			case anthropic.InputJSONDelta:
				index := int(eventVariant.Index)
				if suppressInputDelta[index] {
					continue
				}
				delta := model.ToolCallDelta{Index: index, Arguments: deltaVariant.PartialJSON}
				if err := fn(model.StreamEvent{Type: model.EventToolCallDelta, ToolCalls: []model.ToolCallDelta{delta}}); err != nil {
					return err
				}
			}

		case anthropic.MessageStopEvent:
			return fn(model.StreamEvent{Type: model.EventDone})
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("Anthropic streaming error: %w", err)
	}

	return fn(model.StreamEvent{Type: model.EventDone})
}

func hasInput(raw json.RawMessage) bool {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	return len(obj) > 0
}

// convertToAnthropicMessages converts the transcript to Anthropic
// format. System messages move to the separate system parameter;
// assistant tool calls become tool_use blocks; tool results become
// tool_result blocks inside user messages.
func convertToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var systemBlocks []anthropic.TextBlockParam
	anthropicMsgs := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: msg.Content})

		case model.RoleUser:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
			)

		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				id := call.ID
				if id == "" {
					id = "tool-" + call.Name
				}
				args := call.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(id, args, call.Name))
			}
			if len(blocks) > 0 {
				anthropicMsgs = append(anthropicMsgs, anthropic.NewAssistantMessage(blocks...))
			}

		case model.RoleTool:
			id := msg.ToolCallID
			if id == "" {
				id = msg.Name
			}
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewToolResultBlock(id, msg.Content, false)),
			)

		default:
			anthropicMsgs = append(anthropicMsgs,
				anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)),
			)
		}
	}

	return anthropicMsgs, systemBlocks
}

func convertToAnthropicTools(defs []model.ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		schema := def.Schema.AsMap()
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schema["properties"],
		}
		if required, ok := schema["required"].([]any); ok && len(required) > 0 {
			names := make([]string, 0, len(required))
			for _, r := range required {
				if s, ok := r.(string); ok {
					names = append(names, s)
				}
			}
			inputSchema.Required = names
		}
		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
		if def.Description != "" {
			result[i].OfTool.Description = anthropic.String(def.Description)
		}
	}
	return result
}
