package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"pfagent/config"
	"pfagent/model"
)

const sseConnectTimeout = 15 * time.Second

// loadSSETools connects to an MCP server over SSE, initializes the
// session, and wraps each advertised tool. The client connection stays
// open for the life of the process; calls reuse it.
func loadSSETools(server config.ToolServer) ([]model.ToolDefinition, error) {
	var opts []transport.ClientOption
	if server.APIKey != "" {
		opts = append(opts, transport.WithHeaders(map[string]string{"x-api-key": server.APIKey}))
	}

	mcpClient, err := client.NewSSEMCPClient(server.URL, opts...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), sseConnectTimeout)
	defer cancel()

	// SSE transport must be started before Initialize/ListTools.
	if err := mcpClient.GetTransport().Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start SSE transport: %w", err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: "2025-06-18",
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "pfagent",
				Version: "1.0.0",
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("failed to initialize %s: %w", server.Name, err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools for %s: %w", server.Name, err)
	}

	defs := make([]model.ToolDefinition, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		description := tool.Description
		if description == "" {
			description = "MCP tool"
		}
		localName := tool.Name
		defs = append(defs, model.ToolDefinition{
			Name:        server.Name + ":" + localName,
			Description: description,
			Schema:      convertInputSchema(tool.InputSchema),
			Handler: func(args map[string]any) (any, error) {
				return callSSETool(mcpClient, localName, args)
			},
		})
	}
	return defs, nil
}

func callSSETool(mcpClient *client.Client, name string, args map[string]any) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	result, err := mcpClient.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, err
	}
	if result.IsError {
		return nil, fmt.Errorf("tool %s reported an error: %s", name, flattenContent(result.Content))
	}
	if len(result.Content) == 0 {
		return map[string]any{}, nil
	}

	// Content items are heterogeneous; marshal the array and hand the
	// model whatever shape came back.
	var payload any
	data, err := json.Marshal(result.Content)
	if err != nil {
		return nil, fmt.Errorf("tool result marshal: %w", err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func flattenContent(content []mcptypes.Content) string {
	for _, item := range content {
		if text, ok := item.(mcptypes.TextContent); ok {
			return text.Text
		}
	}
	data, err := json.Marshal(content)
	if err != nil {
		return "unknown error"
	}
	return string(data)
}

// convertInputSchema maps an MCP input schema onto the validator's
// schema shape through a JSON round trip; the two are the same subset
// of JSON Schema.
func convertInputSchema(in mcptypes.ToolInputSchema) *model.Schema {
	data, err := json.Marshal(in)
	if err != nil {
		return openSchema()
	}
	var schema model.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return openSchema()
	}
	if schema.Type == nil {
		schema.Type = "object"
	}
	return &schema
}

func openSchema() *model.Schema {
	yes := true
	return &model.Schema{Type: "object", Properties: map[string]*model.Schema{}, AdditionalProperties: &yes}
}
