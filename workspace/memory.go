package workspace

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process API implementation backed by maps. It is the
// workspace the REPL runs against and the fixture the agent tests use;
// a vault- or filesystem-backed implementation plugs in behind the same
// interface.
type Memory struct {
	mu           sync.Mutex
	projects     map[string]ProjectEntry // keyed by fullName
	entityTypes  map[string]EntityType
	projectTypes map[string]ProjectType
	files        map[string]string
	children     map[string][]string // fullName -> child fullNames
	archived     map[string]ProjectEntry
}

// NewMemory creates an empty workspace with the default entity and
// project types registered.
func NewMemory() *Memory {
	return &Memory{
		projects: make(map[string]ProjectEntry),
		entityTypes: map[string]EntityType{
			"task": {
				ID:             "task",
				Name:           "Task",
				Description:    "A unit of work inside a project.",
				RequiredFields: []string{"title"},
			},
			"note": {
				ID:   "note",
				Name: "Note",
			},
		},
		projectTypes: map[string]ProjectType{
			"default": {ID: "default", Name: "Default", Description: "Plain project with no template."},
		},
		files:    make(map[string]string),
		children: make(map[string][]string),
		archived: make(map[string]ProjectEntry),
	}
}

// AddEntityType registers or replaces an entity type.
func (m *Memory) AddEntityType(et EntityType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entityTypes[et.ID] = et
}

// AddProject inserts an index entry directly, bypassing create
// validation. Used for seeding.
func (m *Memory) AddProject(entry ProjectEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(entry)
}

// WriteFile seeds a file for patch operations.
func (m *Memory) WriteFile(path, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = content
}

// ReadFile returns a file's current content.
func (m *Memory) ReadFile(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[path]
	return content, ok
}

func (m *Memory) insertLocked(entry ProjectEntry) {
	m.projects[entry.FullName] = entry
	if entry.Parent != "" {
		m.children[entry.Parent] = append(m.children[entry.Parent], entry.FullName)
	}
}

func (m *Memory) ResolveProject(ref ProjectRef) (*ProjectEntry, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("projectRef must include fullName, id, or tag")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.lookupLocked(m.projects, ref); ok {
		return &entry, nil
	}
	return nil, nil
}

func (m *Memory) lookupLocked(pool map[string]ProjectEntry, ref ProjectRef) (ProjectEntry, bool) {
	if ref.FullName != "" {
		if entry, ok := pool[ref.FullName]; ok {
			return entry, true
		}
	}
	for _, entry := range pool {
		if ref.ID != "" && entry.ProjectID == ref.ID {
			return entry, true
		}
		if ref.Tag != "" && entry.ProjectTag == ref.Tag {
			return entry, true
		}
	}
	return ProjectEntry{}, false
}

func (m *Memory) ListProjects() ([]ProjectEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := make([]ProjectEntry, 0, len(m.projects))
	for _, entry := range m.projects {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FullName < entries[j].FullName })
	return entries, nil
}

func (m *Memory) ListEntityTypes() ([]EntityType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]EntityType, 0, len(m.entityTypes))
	for _, et := range m.entityTypes {
		types = append(types, et)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
	return types, nil
}

func (m *Memory) DescribeEntityType(id string) (*EntityType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if et, ok := m.entityTypes[id]; ok {
		return &et, nil
	}
	return nil, nil
}

func (m *Memory) ListProjectTypes() ([]ProjectType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]ProjectType, 0, len(m.projectTypes))
	for _, pt := range m.projectTypes {
		types = append(types, pt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
	return types, nil
}

func (m *Memory) DescribeProjectType(id string) (*ProjectType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pt, ok := m.projectTypes[id]; ok {
		return &pt, nil
	}
	return nil, nil
}

func (m *Memory) CreateProject(req CreateProjectRequest) (CreateProjectResult, error) {
	if err := validateCreateProject(req); err != nil {
		return CreateProjectResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	fullName := req.Dimension + "." + req.Category + "." + req.ID
	if _, exists := m.projects[fullName]; exists {
		return CreateProjectResult{}, fmt.Errorf("project already exists: %s", fullName)
	}

	path := fmt.Sprintf("%s/%s/%s", req.Dimension, req.Category, req.Name)
	m.insertLocked(ProjectEntry{
		FullName:    fullName,
		ProjectID:   req.ID,
		ProjectTag:  req.Tag,
		ProjectName: req.Name,
		Path:        path,
		Dimension:   req.Dimension,
		Category:    req.Category,
		Parent:      req.Parent,
	})
	m.files[path+"/index.md"] = fmt.Sprintf("# %s\n", req.Name)
	return CreateProjectResult{Created: true, Path: path}, nil
}

func (m *Memory) CreateEntity(req CreateEntityRequest) (CreateEntityResult, error) {
	if req.ProjectRef.IsZero() {
		return CreateEntityResult{}, fmt.Errorf("projectRef is required")
	}
	if req.EntityTypeID == "" {
		return CreateEntityResult{}, fmt.Errorf("entityTypeId is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookupLocked(m.projects, req.ProjectRef)
	if !ok {
		return CreateEntityResult{}, fmt.Errorf("project not found")
	}
	et, ok := m.entityTypes[req.EntityTypeID]
	if !ok {
		return CreateEntityResult{}, fmt.Errorf("unknown entity type: %s", req.EntityTypeID)
	}

	var missing []string
	for _, field := range et.RequiredFields {
		value, present := req.Fields[field]
		if !present || value == nil || value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return CreateEntityResult{}, fmt.Errorf("Missing required fields: %s", strings.Join(missing, ", "))
	}

	title, _ := req.Fields["title"].(string)
	if title == "" {
		title = et.Name
	}
	path := fmt.Sprintf("%s/%s-%d.md", entry.Path, req.EntityTypeID, len(m.files))
	m.files[path] = fmt.Sprintf("# %s\n", title)
	return CreateEntityResult{Path: path}, nil
}

func (m *Memory) PatchMarker(req PatchMarkerRequest) (PatchResult, error) {
	if err := requireFields(map[string]string{"path": req.Path, "marker": req.Marker, "content": req.Content}); err != nil {
		return PatchResult{}, err
	}
	mode := req.Mode
	if mode == "" {
		mode = PatchModeLenient
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.files[req.Path]
	if !ok {
		return PatchResult{}, fmt.Errorf("File not found: %s", req.Path)
	}
	patched, updated := PatchTextByMarker(text, req.Marker, req.Content, mode, "")
	if !updated {
		return PatchResult{}, fmt.Errorf("Marker or heading not found in strict mode.")
	}
	m.files[req.Path] = patched
	return PatchResult{OK: true}, nil
}

func (m *Memory) PatchSection(req PatchSectionRequest) (PatchResult, error) {
	if err := requireFields(map[string]string{"path": req.Path, "heading": req.Heading, "content": req.Content}); err != nil {
		return PatchResult{}, err
	}
	mode := req.Mode
	if mode == "" {
		mode = PatchModeLenient
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	text, ok := m.files[req.Path]
	if !ok {
		return PatchResult{}, fmt.Errorf("File not found: %s", req.Path)
	}
	patched, updated := PatchTextByHeading(text, req.Heading, req.Content, mode)
	if !updated {
		return PatchResult{}, fmt.Errorf("Heading not found in strict mode.")
	}
	m.files[req.Path] = patched
	return PatchResult{OK: true}, nil
}

func (m *Memory) GetChildren(ref ProjectRef, archived bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.projects
	if archived {
		pool = m.archived
	}
	entry, ok := m.lookupLocked(pool, ref)
	if !ok {
		return []string{}, nil
	}
	kids := m.children[entry.FullName]
	result := make([]string, len(kids))
	copy(result, kids)
	return result, nil
}

func (m *Memory) GetParents(ref ProjectRef, archived bool) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool := m.projects
	if archived {
		pool = m.archived
	}
	entry, ok := m.lookupLocked(pool, ref)
	if !ok {
		return []string{}, nil
	}
	var parents []string
	for current := entry.Parent; current != ""; {
		parents = append(parents, current)
		next, ok := pool[current]
		if !ok {
			break
		}
		current = next.Parent
	}
	if parents == nil {
		parents = []string{}
	}
	return parents, nil
}

func validateCreateProject(req CreateProjectRequest) error {
	fields := map[string]string{
		"name":      req.Name,
		"tag":       req.Tag,
		"id":        req.ID,
		"dimension": req.Dimension,
		"category":  req.Category,
	}
	return requireFields(fields)
}

func requireFields(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("Missing required fields: %s", strings.Join(missing, ", "))
	}
	return nil
}
