package model

import "time"

// Schema versions of the on-disk documents. Migrations upgrade older
// documents additively; unknown fields are preserved by the migration layer.
const (
	TodoSchemaVersion     = "3.0"
	ArchiveSchemaVersion  = "3.0"
	SessionsSchemaVersion = "2.0"
)

// Meta is the integrity envelope every document carries. Readers tolerate a
// missing Meta and synthesize defaults; writers always emit it with a fresh
// checksum (first 16 hex chars of SHA-256 over the canonical JSON of the
// document with Checksum blanked).
type Meta struct {
	SchemaVersion string    `json:"schemaVersion"`
	LastUpdated   time.Time `json:"lastUpdated"`
	Checksum      string    `json:"checksum,omitempty"`
}

// TodoFile is the active tasks document (.cleo/todo.json).
type TodoFile struct {
	Schema  string  `json:"$schema,omitempty"`
	Version string  `json:"version"`
	Meta    *Meta   `json:"_meta,omitempty"`
	Project Project `json:"project"`
	Tasks   []*Task `json:"tasks"`
}

// ArchiveFile is the archived/cancelled tasks document (.cleo/todo-archive.json).
type ArchiveFile struct {
	Schema  string  `json:"$schema,omitempty"`
	Version string  `json:"version"`
	Meta    *Meta   `json:"_meta,omitempty"`
	Tasks   []*Task `json:"tasks"`
}

// SessionsFile is the sessions document (.cleo/sessions.json).
type SessionsFile struct {
	Schema   string     `json:"$schema,omitempty"`
	Version  string     `json:"version"`
	Meta     *Meta      `json:"_meta,omitempty"`
	Sessions []*Session `json:"sessions"`
}

// NewTodoFile returns an empty tasks document for a project.
func NewTodoFile(projectName string) *TodoFile {
	return &TodoFile{
		Version: TodoSchemaVersion,
		Project: Project{Name: projectName},
		Tasks:   []*Task{},
	}
}

// NewArchiveFile returns an empty archive document.
func NewArchiveFile() *ArchiveFile {
	return &ArchiveFile{Version: ArchiveSchemaVersion, Tasks: []*Task{}}
}

// NewSessionsFile returns an empty sessions document.
func NewSessionsFile() *SessionsFile {
	return &SessionsFile{Version: SessionsSchemaVersion, Sessions: []*Session{}}
}

// FindTask returns the task with the given id, or nil.
func (f *TodoFile) FindTask(id string) *Task {
	for _, t := range f.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Children returns the direct children of a task, in document order.
func (f *TodoFile) Children(id string) []*Task {
	var out []*Task
	for _, t := range f.Tasks {
		if t.ParentID == id {
			out = append(out, t)
		}
	}
	return out
}

// Descendants returns every task under root (excluding root itself).
func (f *TodoFile) Descendants(rootID string) []*Task {
	var out []*Task
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range f.Children(id) {
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out
}

// Depth returns the hierarchy depth of a task (root = 0). A broken parent
// chain counts as far as it resolves; cycle detection belongs to validation,
// so Depth bails out after len(Tasks) hops.
func (f *TodoFile) Depth(id string) int {
	depth := 0
	cur := f.FindTask(id)
	for cur != nil && cur.ParentID != "" && depth <= len(f.Tasks) {
		cur = f.FindTask(cur.ParentID)
		depth++
	}
	return depth
}

// FindSession returns the session with the given id, or nil.
func (f *SessionsFile) FindSession(id string) *Session {
	for _, s := range f.Sessions {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// ActiveSessions returns sessions with status active.
func (f *SessionsFile) ActiveSessions() []*Session {
	var out []*Session
	for _, s := range f.Sessions {
		if s.Status == SessionActive {
			out = append(out, s)
		}
	}
	return out
}

// FindArchived returns the archived task with the given id, or nil.
func (f *ArchiveFile) FindArchived(id string) *Task {
	for _, t := range f.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
