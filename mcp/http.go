// Package mcp loads tool definitions from remote tool servers. Two
// transports are supported: a plain HTTP contract (GET /tools to
// discover, POST /call to invoke, optional x-api-key header) and MCP
// over SSE via the mcp-go client. Tools from either transport are
// namespaced "server:tool" so the safety filter can recognize them and
// calls can be routed back to their server.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pfagent/config"
	"pfagent/model"
)

type toolDescriptor struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	InputSchema *model.Schema `json:"inputSchema,omitempty"`
}

type toolsResponse struct {
	Tools []toolDescriptor `json:"tools"`
}

// HTTPClient talks the plain HTTP tool-server contract.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// DiscoverTools fetches the server's tool list.
func (c *HTTPClient) DiscoverTools() ([]toolDescriptor, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/tools", nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool discovery failed: %s", resp.Status)
	}

	var parsed toolsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("invalid tools response: %w", err)
	}
	return parsed.Tools, nil
}

// Call invokes a tool by its unqualified name.
func (c *HTTPClient) Call(name string, args map[string]any) (any, error) {
	payload, err := json.Marshal(map[string]any{"name": name, "args": args})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/call", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = resp.Status
		}
		return nil, fmt.Errorf("MCP call failed: %d %s", resp.StatusCode, detail)
	}

	var result any
	if err := json.Unmarshal(body, &result); err != nil {
		// Non-JSON responses are tolerated; the tool message carries
		// whatever came back.
		return map[string]any{}, nil
	}
	return result, nil
}

func (c *HTTPClient) definitions(serverName string) ([]model.ToolDefinition, error) {
	descriptors, err := c.DiscoverTools()
	if err != nil {
		return nil, err
	}

	defs := make([]model.ToolDefinition, 0, len(descriptors))
	for _, desc := range descriptors {
		schema := desc.InputSchema
		if schema == nil {
			yes := true
			schema = &model.Schema{Type: "object", Properties: map[string]*model.Schema{}, AdditionalProperties: &yes}
		}
		description := desc.Description
		if description == "" {
			description = "MCP tool"
		}
		localName := desc.Name
		defs = append(defs, model.ToolDefinition{
			Name:        serverName + ":" + localName,
			Description: description,
			Schema:      schema,
			Handler: func(args map[string]any) (any, error) {
				return c.Call(localName, args)
			},
		})
	}
	return defs, nil
}

// LoadRemoteTools discovers tools from every configured server.
// Unreachable or misbehaving servers are skipped with a debug-log line
// so one dead server never blocks a turn.
func LoadRemoteTools(servers []config.ToolServer) []model.ToolDefinition {
	var all []model.ToolDefinition
	for _, server := range servers {
		if server.Name == "" || server.URL == "" {
			continue
		}

		var defs []model.ToolDefinition
		var err error
		switch server.Transport {
		case "sse":
			defs, err = loadSSETools(server)
		default:
			defs, err = NewHTTPClient(server.URL, server.APIKey).definitions(server.Name)
		}
		if err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[MCP] Skipping server %s: %v", server.Name, err)
			}
			continue
		}
		all = append(all, defs...)
	}
	return all
}
