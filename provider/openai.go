package provider

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"pfagent/model"
)

// OpenAIProvider adapts the chat-completions streaming protocol. It
// also serves OpenAI-compatible endpoints when a base URL is set.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI provider instance. Returns an
// error if the API key is missing.
func NewOpenAIProvider(baseURL, apiKey, modelName string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIProvider{client: &client, model: modelName}, nil
}

func (p *OpenAIProvider) Model() string {
	return p.model
}

// Stream implements model.Provider. Chunk deltas carry either content
// text or tool-call fragments; each fragment names the call slot via
// its index, so the deltas map directly to the normalized shape.
func (p *OpenAIProvider) Stream(ctx context.Context, messages []model.Message, defs []model.ToolDefinition, fn model.StreamFunc) error {
	params := openai.ChatCompletionNewParams{
		Model:    p.model,
		Messages: convertToOpenAIMessages(messages),
	}
	if len(defs) > 0 {
		params.Tools = convertToOpenAITools(defs)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			if err := fn(model.StreamEvent{Type: model.EventContent, Delta: delta.Content}); err != nil {
				return err
			}
		}

		if len(delta.ToolCalls) > 0 {
			deltas := make([]model.ToolCallDelta, 0, len(delta.ToolCalls))
			for _, tc := range delta.ToolCalls {
				deltas = append(deltas, model.ToolCallDelta{
					Index:     int(tc.Index),
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
			if err := fn(model.StreamEvent{Type: model.EventToolCallDelta, ToolCalls: deltas}); err != nil {
				return err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("OpenAI streaming error: %w", err)
	}

	return fn(model.StreamEvent{Type: model.EventDone})
}

func convertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case model.RoleUser:
			result = append(result, openai.UserMessage(msg.Content))
		case model.RoleAssistant:
			if len(msg.ToolCalls) > 0 {
				result = append(result, assistantWithToolCalls(msg))
			} else {
				result = append(result, openai.AssistantMessage(msg.Content))
			}
		case model.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

func assistantWithToolCalls(msg model.Message) openai.ChatCompletionMessageParamUnion {
	calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(msg.ToolCalls))
	for _, call := range msg.ToolCalls {
		calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      call.Name,
					Arguments: marshalArguments(call.Arguments),
				},
			},
		})
	}

	assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if msg.Content != "" {
		assistant.Content.OfString = openai.String(msg.Content)
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func convertToOpenAITools(defs []model.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, len(defs))
	for i, def := range defs {
		fn := openai.FunctionDefinitionParam{
			Name:       def.Name,
			Parameters: openai.FunctionParameters(def.Schema.AsMap()),
		}
		if def.Description != "" {
			fn.Description = openai.String(def.Description)
		}
		result[i] = openai.ChatCompletionFunctionTool(fn)
	}
	return result
}
