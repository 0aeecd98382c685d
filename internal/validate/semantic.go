package validate

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dsj7419/cleo/internal/model"
)

// Layer 2: per-field semantic rules that a structural schema cannot express.

// shellMetaChars in a related-file path are rejected outright; task file
// lists end up in spawn prompts and must never be shell-interpretable.
const shellMetaChars = "$`;|&<>(){}!*?~#"

// zero-width and bidi control characters banned from titles.
var forbiddenTitleRunes = []rune{
	'\u200b', '\u200c', '\u200d', '\u2060', '\ufeff',
	'\u202a', '\u202b', '\u202c', '\u202d', '\u202e',
}

func (v *Validator) semanticTasks(doc *model.TodoFile, now time.Time, res *Result) {
	for i, t := range doc.Tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		v.semanticTask(t, field, now, res)
	}
	v.semanticProject(&doc.Project, now, res)
}

func (v *Validator) semanticTask(t *model.Task, field string, now time.Time, res *Result) {
	title := t.Title
	if strings.TrimSpace(title) == "" {
		res.addError(field+".title", "TITLE_EMPTY", "task %s has an empty title", t.ID)
	}
	if len(title) > v.cfg.MaxTitleLength {
		res.addError(field+".title", "TITLE_TOO_LONG",
			"task %s title exceeds %d characters", t.ID, v.cfg.MaxTitleLength)
	}
	if strings.ContainsAny(title, "\n\r") {
		res.addError(field+".title", "TITLE_MULTILINE", "task %s title spans multiple lines", t.ID)
	}
	for _, r := range forbiddenTitleRunes {
		if strings.ContainsRune(title, r) {
			res.addError(field+".title", "TITLE_HIDDEN_CHARS",
				"task %s title contains zero-width or control characters", t.ID)
			break
		}
	}

	if len(t.Description) > v.cfg.MaxDescriptionLength {
		res.addError(field+".description", "DESCRIPTION_TOO_LONG",
			"task %s description exceeds %d characters", t.ID, v.cfg.MaxDescriptionLength)
	}

	// Timestamps: never in the future, completion after creation.
	grace := now.Add(time.Minute) // clock skew tolerance across processes
	if t.CreatedAt.After(grace) {
		res.addError(field+".createdAt", "TS_FUTURE", "task %s createdAt is in the future", t.ID)
	}
	if t.UpdatedAt.After(grace) {
		res.addError(field+".updatedAt", "TS_FUTURE", "task %s updatedAt is in the future", t.ID)
	}
	if t.CompletedAt != nil && t.CompletedAt.Before(t.CreatedAt) {
		res.addError(field+".completedAt", "TS_ORDER",
			"task %s completedAt precedes createdAt", t.ID)
	}

	// Terminal-state metadata.
	if t.Status == model.StatusDone && t.CompletedAt == nil {
		res.addError(field+".completedAt", "DONE_NO_TIMESTAMP",
			"task %s is done without completedAt", t.ID)
	}
	if t.Status == model.StatusCancelled {
		if t.CancelledAt == nil {
			res.addError(field+".cancelledAt", "CANCELLED_NO_TIMESTAMP",
				"task %s is cancelled without cancelledAt", t.ID)
		}
		if err := checkReason(t.CancellationReason, v.cfg.MinReasonLength); err != "" {
			res.addError(field+".cancellationReason", "REASON_INVALID",
				"task %s: %s", t.ID, err)
		}
	}

	// Labels must already be in normalized form.
	if norm := model.NormalizeLabels(t.Labels); !equalStrings(norm, t.Labels) {
		res.addError(field+".labels", "LABELS_NOT_NORMALIZED",
			"task %s labels are not normalized", t.ID)
	}

	for _, f := range t.Files {
		if strings.ContainsAny(f, shellMetaChars) {
			res.addError(field+".files", "FILE_PATH_UNSAFE",
				"task %s file path %q contains shell metacharacters", t.ID, f)
		}
	}

	for j, rel := range t.Relates {
		if !rel.Type.Valid() {
			res.addError(fmt.Sprintf("%s.relates[%d].type", field, j), "RELATION_TYPE",
				"task %s has unknown relation type %q", t.ID, rel.Type)
		}
	}
}

func (v *Validator) semanticProject(p *model.Project, now time.Time, res *Result) {
	orders := map[int]string{}
	for name, ph := range p.Phases {
		if other, dup := orders[ph.Order]; dup {
			res.addError("project.phases", "PHASE_ORDER_DUP",
				"phases %q and %q share order %d", other, name, ph.Order)
		}
		orders[ph.Order] = name
	}
}

func (v *Validator) semanticSessions(doc *model.SessionsFile, now time.Time, res *Result) {
	grace := now.Add(time.Minute)
	for i, s := range doc.Sessions {
		field := fmt.Sprintf("sessions[%d]", i)
		if s.StartedAt.After(grace) {
			res.addError(field+".startedAt", "TS_FUTURE", "session %s startedAt is in the future", s.ID)
		}
		if s.EndedAt != nil && s.EndedAt.Before(s.StartedAt) {
			res.addError(field+".endedAt", "TS_ORDER", "session %s endedAt precedes startedAt", s.ID)
		}
		if s.Status == model.SessionEnded && s.EndedAt == nil {
			res.addError(field+".endedAt", "ENDED_NO_TIMESTAMP",
				"session %s ended without endedAt", s.ID)
		}
		if s.Status == model.SessionEnded && s.Focus.TaskID != "" {
			res.addError(field+".focus", "ENDED_WITH_FOCUS",
				"session %s ended but still holds focus on %s", s.ID, s.Focus.TaskID)
		}
	}
}

// checkReason enforces the minimum length and character class for free-text
// reasons (cancellation, gate failures). Returns "" when acceptable.
func checkReason(reason string, minLen int) string {
	trimmed := strings.TrimSpace(reason)
	if len(trimmed) < minLen {
		return fmt.Sprintf("reason must be at least %d characters", minLen)
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return "reason contains control characters"
		}
	}
	return ""
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
