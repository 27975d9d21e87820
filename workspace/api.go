// Package workspace defines the capability seam between the agent and
// the project store it operates on: a typed API for project and entity
// operations, the tool registry that exposes it to models, and the
// scored project matcher behind the offline lookup path.
package workspace

// ProjectRef identifies a project by any of its three handles. At
// least one must be set.
type ProjectRef struct {
	Tag      string `json:"tag,omitempty"`
	ID       string `json:"id,omitempty"`
	FullName string `json:"fullName,omitempty"`
}

// IsZero reports whether no handle is set.
func (r ProjectRef) IsZero() bool {
	return r.Tag == "" && r.ID == "" && r.FullName == ""
}

// ProjectEntry is one row of the project index.
type ProjectEntry struct {
	FullName    string `json:"fullName"`
	ProjectID   string `json:"projectId"`
	ProjectTag  string `json:"projectTag"`
	ProjectName string `json:"projectName"`
	Path        string `json:"path"`
	Dimension   string `json:"dimension"`
	Category    string `json:"category"`
	Parent      string `json:"parent,omitempty"`
}

// EntityType describes a template for entities created inside projects.
type EntityType struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	RequiredFields []string `json:"requiredFields,omitempty"`
}

// ProjectType describes a project template.
type ProjectType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CreateProjectRequest struct {
	Name          string `json:"name"`
	Tag           string `json:"tag"`
	ID            string `json:"id"`
	Dimension     string `json:"dimension"`
	Category      string `json:"category"`
	Parent        string `json:"parent,omitempty"`
	ProjectTypeID string `json:"projectTypeId,omitempty"`
}

type CreateProjectResult struct {
	Created bool   `json:"created"`
	Path    string `json:"path"`
}

type CreateEntityRequest struct {
	ProjectRef   ProjectRef     `json:"projectRef"`
	EntityTypeID string         `json:"entityTypeId"`
	Fields       map[string]any `json:"fields,omitempty"`
}

type CreateEntityResult struct {
	Path string `json:"path"`
}

// Patch modes. Lenient appends when the anchor is missing; strict
// fails instead.
const (
	PatchModeLenient = "lenient"
	PatchModeStrict  = "strict"
)

type PatchMarkerRequest struct {
	Path    string `json:"path"`
	Marker  string `json:"marker"`
	Content string `json:"content"`
	Mode    string `json:"mode,omitempty"`
}

type PatchSectionRequest struct {
	Path    string `json:"path"`
	Heading string `json:"heading"`
	Content string `json:"content"`
	Mode    string `json:"mode,omitempty"`
}

type PatchResult struct {
	OK bool `json:"ok"`
}

// API is the full capability surface the tool registry wraps. Methods
// return a nil value (not an error) when a lookup finds nothing;
// errors are reserved for invalid requests and failed mutations.
type API interface {
	ResolveProject(ref ProjectRef) (*ProjectEntry, error)
	ListProjects() ([]ProjectEntry, error)
	ListEntityTypes() ([]EntityType, error)
	DescribeEntityType(id string) (*EntityType, error)
	ListProjectTypes() ([]ProjectType, error)
	DescribeProjectType(id string) (*ProjectType, error)
	CreateProject(req CreateProjectRequest) (CreateProjectResult, error)
	CreateEntity(req CreateEntityRequest) (CreateEntityResult, error)
	PatchMarker(req PatchMarkerRequest) (PatchResult, error)
	PatchSection(req PatchSectionRequest) (PatchResult, error)
	GetChildren(ref ProjectRef, archived bool) ([]string, error)
	GetParents(ref ProjectRef, archived bool) ([]string, error)
}

// Snapshot is the workspace context the system prompt embeds: the
// current selection and file, the inferred active project, and enough
// of the index for the model to reference projects by tag.
type Snapshot struct {
	Selection          string
	ActiveFile         string
	ActiveFileContent  string
	ActiveProject      *ProjectEntry
	EntityRequirements map[string][]string
	Projects           []ProjectEntry
}

// BuildSnapshot assembles the prompt context from the API. Lookup
// failures leave the affected section empty rather than failing the
// whole snapshot.
func BuildSnapshot(api API) Snapshot {
	var snap Snapshot
	if projects, err := api.ListProjects(); err == nil {
		snap.Projects = projects
	}
	if types, err := api.ListEntityTypes(); err == nil {
		reqs := make(map[string][]string)
		for _, et := range types {
			if len(et.RequiredFields) > 0 {
				reqs[et.ID] = et.RequiredFields
			}
		}
		if len(reqs) > 0 {
			snap.EntityRequirements = reqs
		}
	}
	return snap
}
