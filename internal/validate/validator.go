// Package validate is the multi-layer write gate. Every document passes four
// layers in order: structural schema, field semantics, cross-entity
// invariants, then (for status changes) the state machine. The first failing
// layer aborts; later layers never run against structurally broken input.
package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/model"
)

// Issue is one validation finding.
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result aggregates findings from a validation pass.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

func (r *Result) addError(field, code, format string, args ...any) {
	r.Errors = append(r.Errors, Issue{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	r.Valid = false
}

func (r *Result) addWarning(field, code, format string, args ...any) {
	r.Warnings = append(r.Warnings, Issue{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Err converts a failed result into the typed validation error, carrying the
// first finding's field path.
func (r *Result) Err() error {
	if r.Valid {
		return nil
	}
	first := r.Errors[0]
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return model.NewError(model.ErrValidation, "%s", strings.Join(msgs, "; ")).
		WithField(first.Field).
		WithFix("run `cleo validate` for the full report")
}

// Validator runs the validation layers. Construct once per process; the
// compiled schemas are immutable.
type Validator struct {
	cfg      config.Config
	todo     *jsonschema.Schema
	archive  *jsonschema.Schema
	sessions *jsonschema.Schema
}

// New compiles the document schemas.
func New(cfg config.Config) (*Validator, error) {
	v := &Validator{cfg: cfg}
	var err error
	if v.todo, err = compile("todo.schema.json", todoSchema); err != nil {
		return nil, err
	}
	if v.archive, err = compile("archive.schema.json", archiveSchema); err != nil {
		return nil, err
	}
	if v.sessions, err = compile("sessions.schema.json", sessionsSchema); err != nil {
		return nil, err
	}
	return v, nil
}

func compile(name, src string) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(src), &doc); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	s, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return s, nil
}

// schemaCheck runs layer 1 against a document value.
func schemaCheck(s *jsonschema.Schema, doc any, res *Result) {
	raw, err := json.Marshal(doc)
	if err != nil {
		res.addError("", "SCHEMA_MARSHAL", "document not serializable: %v", err)
		return
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		res.addError("", "SCHEMA_MARSHAL", "document not round-trippable: %v", err)
		return
	}
	if err := s.Validate(generic); err != nil {
		res.addError("", "SCHEMA", "%v", err)
	}
}

// ValidateTodo runs layers 1-3 over the active tasks document. The archive
// participates in cross-document id uniqueness; pass nil when unavailable
// (uniqueness against the archive is then skipped, not assumed).
func (v *Validator) ValidateTodo(doc *model.TodoFile, archive *model.ArchiveFile, now time.Time) *Result {
	res := &Result{Valid: true}

	schemaCheck(v.todo, doc, res)
	if !res.Valid {
		return res
	}

	v.semanticTasks(doc, now, res)
	if !res.Valid {
		return res
	}

	v.crossTodo(doc, archive, res)
	return res
}

// ValidateArchive runs layers 1-2 over the archive document.
func (v *Validator) ValidateArchive(doc *model.ArchiveFile, now time.Time) *Result {
	res := &Result{Valid: true}
	schemaCheck(v.archive, doc, res)
	if !res.Valid {
		return res
	}
	for i, t := range doc.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		if !model.ValidTaskID(t.ID) {
			res.addError(field+".id", "ID_FORMAT", "malformed task id %q", t.ID)
		}
		if t.Status == model.StatusCancelled && t.CancellationReason == "" {
			res.addError(field+".cancellationReason", "REASON_REQUIRED",
				"archived cancelled task %s has no cancellation reason", t.ID)
		}
	}
	return res
}

// ValidateSessions runs layers 1-3 over the sessions document. The todo
// document resolves scope and focus references.
func (v *Validator) ValidateSessions(doc *model.SessionsFile, todo *model.TodoFile, now time.Time) *Result {
	res := &Result{Valid: true}
	schemaCheck(v.sessions, doc, res)
	if !res.Valid {
		return res
	}
	v.semanticSessions(doc, now, res)
	if !res.Valid {
		return res
	}
	v.crossSessions(doc, todo, res)
	return res
}
