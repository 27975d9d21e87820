package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"pfagent/model"
)

// OllamaProvider talks to a local Ollama server. No credential needed.
type OllamaProvider struct {
	client *api.Client
	model  string
}

// NewOllamaProvider creates an Ollama provider instance.
func NewOllamaProvider(baseURL, modelName string) (*OllamaProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "qwen3"
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama base URL: %w", err)
	}

	return &OllamaProvider{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  modelName,
	}, nil
}

func (p *OllamaProvider) Model() string {
	return p.model
}

// Stream implements model.Provider. Ollama delivers tool calls whole
// rather than fragmented, so each one becomes a single complete delta
// with its arguments already serialized.
func (p *OllamaProvider) Stream(ctx context.Context, messages []model.Message, defs []model.ToolDefinition, fn model.StreamFunc) error {
	stream := true
	req := &api.ChatRequest{
		Model:    p.model,
		Messages: convertToOllamaMessages(messages),
		Stream:   &stream,
	}
	if len(defs) > 0 {
		req.Tools = convertToOllamaTools(defs)
	}

	// Ollama has no per-call id and no fragment index, so slots are
	// assigned in arrival order.
	nextIndex := 0

	err := p.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content != "" {
			if err := fn(model.StreamEvent{Type: model.EventContent, Delta: resp.Message.Content}); err != nil {
				return err
			}
		}

		if len(resp.Message.ToolCalls) > 0 {
			deltas := make([]model.ToolCallDelta, 0, len(resp.Message.ToolCalls))
			for _, call := range resp.Message.ToolCalls {
				deltas = append(deltas, model.ToolCallDelta{
					Index:     nextIndex,
					ID:        fmt.Sprintf("call-%d", nextIndex),
					Name:      call.Function.Name,
					Arguments: marshalArguments(call.Function.Arguments),
				})
				nextIndex++
			}
			if err := fn(model.StreamEvent{Type: model.EventToolCallDelta, ToolCalls: deltas}); err != nil {
				return err
			}
		}

		if resp.Done {
			return fn(model.StreamEvent{Type: model.EventDone})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("Ollama streaming error: %w", err)
	}
	return nil
}

func convertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, 0, len(messages))
	for _, msg := range messages {
		result = append(result, api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	return result
}

func convertToOllamaTools(defs []model.ToolDefinition) []api.Tool {
	result := make([]api.Tool, 0, len(defs))
	for _, def := range defs {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Properties: map[string]api.ToolProperty{},
		}
		if def.Schema != nil {
			params.Required = def.Schema.Required
			for name, prop := range def.Schema.Properties {
				tp := api.ToolProperty{Description: prop.Description}
				if types := prop.Types(); len(types) > 0 {
					tp.Type = api.PropertyType(types)
				}
				if len(prop.Enum) > 0 {
					tp.Enum = prop.Enum
				}
				params.Properties[name] = tp
			}
		}
		result = append(result, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		})
	}
	return result
}

// marshalArguments serializes tool-call arguments back to the JSON
// string shape the accumulator consumes.
func marshalArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
