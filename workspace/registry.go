package workspace

import (
	"encoding/json"
	"fmt"
	"strings"

	"pfagent/model"
)

func projectRefSchema() *model.Schema {
	no := false
	return &model.Schema{
		Type:        "object",
		Description: "Reference to a project by tag, id, or full name.",
		Properties: map[string]*model.Schema{
			"tag":      {Type: "string"},
			"id":       {Type: "string"},
			"fullName": {Type: "string"},
		},
		AdditionalProperties: &no,
	}
}

func fieldsSchema() *model.Schema {
	yes := true
	return &model.Schema{
		Type:        "object",
		Description: "Fields to set on the entity (camelCase, e.g. title, description).",
		Properties: map[string]*model.Schema{
			"title":       {Type: "string"},
			"description": {Type: "string"},
		},
		AdditionalProperties: &yes,
	}
}

// BuildRegistry wraps the API one tool per operation. Lookup and graph
// tools carry the ReadOnly hint the planner's safety filter honors.
func BuildRegistry(api API) []model.ToolDefinition {
	no := false

	return []model.ToolDefinition{
		{
			Name:        "resolveProject",
			Description: "Resolve a project by tag, id, or full name.",
			ReadOnly:    true,
			Schema: &model.Schema{
				Type: "object",
				Properties: map[string]*model.Schema{
					"projectRef": projectRefSchema(),
				},
				Required:             []string{"projectRef"},
				AdditionalProperties: &no,
			},
			Handler: func(args map[string]any) (any, error) {
				ref, err := decodeProjectRef(args["projectRef"])
				if err != nil {
					return nil, err
				}
				return api.ResolveProject(ref)
			},
		},
		{
			Name:        "listProjects",
			Description: "List all projects in the index.",
			ReadOnly:    true,
			Schema:      emptyObjectSchema(),
			Handler: func(args map[string]any) (any, error) {
				return api.ListProjects()
			},
		},
		{
			Name:        "listEntityTypes",
			Description: "List available entity types.",
			ReadOnly:    true,
			Schema:      emptyObjectSchema(),
			Handler: func(args map[string]any) (any, error) {
				return api.ListEntityTypes()
			},
		},
		{
			Name:        "describeEntityType",
			Description: "Describe a single entity type, including its required fields.",
			ReadOnly:    true,
			Schema: &model.Schema{
				Type: "object",
				Properties: map[string]*model.Schema{
					"id": {Type: "string"},
				},
				Required:             []string{"id"},
				AdditionalProperties: &no,
			},
			Handler: func(args map[string]any) (any, error) {
				id, _ := args["id"].(string)
				return api.DescribeEntityType(id)
			},
		},
		{
			Name:        "listProjectTypes",
			Description: "List available project types.",
			ReadOnly:    true,
			Schema:      emptyObjectSchema(),
			Handler: func(args map[string]any) (any, error) {
				return api.ListProjectTypes()
			},
		},
		{
			Name:        "describeProjectType",
			Description: "Describe a single project type.",
			ReadOnly:    true,
			Schema: &model.Schema{
				Type: "object",
				Properties: map[string]*model.Schema{
					"id": {Type: "string"},
				},
				Required:             []string{"id"},
				AdditionalProperties: &no,
			},
			Handler: func(args map[string]any) (any, error) {
				id, _ := args["id"].(string)
				return api.DescribeProjectType(id)
			},
		},
		{
			Name:        "createProject",
			Description: "Create a project with the required metadata.",
			Schema: &model.Schema{
				Type: "object",
				Properties: map[string]*model.Schema{
					"name":          {Type: "string"},
					"tag":           {Type: "string"},
					"id":            {Type: "string"},
					"dimension":     {Type: "string"},
					"category":      {Type: "string"},
					"parent":        {Type: "string"},
					"projectTypeId": {Type: "string"},
				},
				Required:             []string{"name", "tag", "id", "dimension", "category"},
				AdditionalProperties: &no,
			},
			Handler: func(args map[string]any) (any, error) {
				var req CreateProjectRequest
				if err := decodeArgs(args, &req); err != nil {
					return nil, err
				}
				return api.CreateProject(req)
			},
		},
		{
			Name:        "createEntity",
			Description: "Create an entity inside a project using a template.",
			Schema: &model.Schema{
				Type: "object",
				Properties: map[string]*model.Schema{
					"projectRef":   projectRefSchema(),
					"entityTypeId": {Type: "string"},
					"fields":       fieldsSchema(),
				},
				Required:             []string{"projectRef", "entityTypeId"},
				AdditionalProperties: &no,
			},
			Handler: func(args map[string]any) (any, error) {
				var req CreateEntityRequest
				if err := decodeArgs(args, &req); err != nil {
					return nil, err
				}
				return api.CreateEntity(req)
			},
		},
		{
			Name:        "patchMarker",
			Description: "Patch content into a file at an AI marker.",
			Schema: &model.Schema{
				Type: "object",
				Properties: map[string]*model.Schema{
					"path":    {Type: "string"},
					"marker":  {Type: "string"},
					"content": {Type: "string"},
					"mode":    {Type: "string", Enum: []any{PatchModeLenient, PatchModeStrict}},
				},
				Required:             []string{"path", "marker", "content"},
				AdditionalProperties: &no,
			},
			Handler: func(args map[string]any) (any, error) {
				var req PatchMarkerRequest
				if err := decodeArgs(args, &req); err != nil {
					return nil, err
				}
				return api.PatchMarker(req)
			},
		},
		{
			Name:        "patchSection",
			Description: "Patch content into a file by heading.",
			Schema: &model.Schema{
				Type: "object",
				Properties: map[string]*model.Schema{
					"path":    {Type: "string"},
					"heading": {Type: "string"},
					"content": {Type: "string"},
					"mode":    {Type: "string", Enum: []any{PatchModeLenient, PatchModeStrict}},
				},
				Required:             []string{"path", "heading", "content"},
				AdditionalProperties: &no,
			},
			Handler: func(args map[string]any) (any, error) {
				var req PatchSectionRequest
				if err := decodeArgs(args, &req); err != nil {
					return nil, err
				}
				return api.PatchSection(req)
			},
		},
		{
			Name:        "getChildren",
			Description: "Get child projects for a given project.",
			ReadOnly:    true,
			Schema:      graphSchema(),
			Handler: func(args map[string]any) (any, error) {
				ref, err := decodeProjectRef(args["projectRef"])
				if err != nil {
					return nil, err
				}
				archived, _ := args["archived"].(bool)
				return api.GetChildren(ref, archived)
			},
		},
		{
			Name:        "getParents",
			Description: "Get parent projects for a given project.",
			ReadOnly:    true,
			Schema:      graphSchema(),
			Handler: func(args map[string]any) (any, error) {
				ref, err := decodeProjectRef(args["projectRef"])
				if err != nil {
					return nil, err
				}
				archived, _ := args["archived"].(bool)
				return api.GetParents(ref, archived)
			},
		},
	}
}

func emptyObjectSchema() *model.Schema {
	no := false
	return &model.Schema{
		Type:                 "object",
		Properties:           map[string]*model.Schema{},
		AdditionalProperties: &no,
	}
}

func graphSchema() *model.Schema {
	no := false
	return &model.Schema{
		Type: "object",
		Properties: map[string]*model.Schema{
			"projectRef": projectRefSchema(),
			"archived":   {Type: "boolean"},
		},
		Required:             []string{"projectRef"},
		AdditionalProperties: &no,
	}
}

// decodeProjectRef accepts both the object form and the bare string
// form models sometimes produce: "project/x" is a tag, a value with a
// dot is a full name, anything else is an id.
func decodeProjectRef(value any) (ProjectRef, error) {
	switch v := value.(type) {
	case string:
		return normalizeRefString(v), nil
	case map[string]any:
		var ref ProjectRef
		if err := decodeArgs(v, &ref); err != nil {
			return ProjectRef{}, err
		}
		if ref.IsZero() {
			return ProjectRef{}, fmt.Errorf("projectRef must include fullName, id, or tag")
		}
		return ref, nil
	}
	return ProjectRef{}, fmt.Errorf("projectRef is required")
}

func normalizeRefString(s string) ProjectRef {
	trimmed := strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(trimmed, "project/"):
		return ProjectRef{Tag: trimmed}
	case strings.Contains(trimmed, "."):
		return ProjectRef{FullName: trimmed}
	default:
		return ProjectRef{ID: trimmed}
	}
}

// decodeArgs maps loosely-typed tool arguments onto a typed request
// via a JSON round trip. Validation of required members happened
// against the schema before the handler ran.
func decodeArgs(args map[string]any, dst any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
