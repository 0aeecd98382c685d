package compliance

import (
	"context"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/model"
)

// Integrity classifies a manifest entry by completeness.
type Integrity string

const (
	IntegrityValid   Integrity = "valid"   // every required field present
	IntegrityPartial Integrity = "partial" // at most 2 missing
	IntegrityInvalid Integrity = "invalid" // 3 or more missing
	IntegrityMissing Integrity = "missing" // no entry at all
)

// Severity ranks a scoring event's worst finding.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rule names the three compliance rules.
type Rule string

const (
	RuleManifest Rule = "manifest" // entry present and structurally valid
	RuleLinkage  Rule = "linkage"  // linked_tasks names the spawning task
	RuleFormat   Rule = "format"   // return text matches the required phrase
)

// returnFormat is the phrase a compliant subagent return must contain: a
// completion line naming the task followed by a manifest reference.
var returnFormat = regexp.MustCompile(`(?im)^(RESEARCH|TASK|WORK)\s+COMPLETE\b.*\bT\d+\b[\s\S]*\bmanifest\b`)

// CheckReturnFormat reports whether the raw return text is phrased per the
// contract.
func CheckReturnFormat(output string) bool {
	return returnFormat.MatchString(output)
}

// Violation is one broken rule inside a scoring event.
type Violation struct {
	Rule     Rule     `json:"rule"`
	Severity Severity `json:"severity"`
	Detail   string   `json:"detail"`
}

// Record is one scoring event in the compliance stream.
type Record struct {
	Timestamp          time.Time   `json:"timestamp"`
	SourceID           string      `json:"sourceId"` // manifest entry id, or the task id when missing
	TaskID             string      `json:"taskId"`
	Integrity          Integrity   `json:"integrity"`
	MissingFields      []string    `json:"missingFields,omitempty"`
	RuleAdherenceScore float64     `json:"ruleAdherenceScore"`
	Severity           Severity    `json:"severity"`
	Violations         []Violation `json:"violations,omitempty"`
}

// Passed reports whether the event broke no rules.
func (r Record) Passed() bool { return len(r.Violations) == 0 }

// Scorer evaluates subagent returns and appends the result to the compliance
// and violations streams.
type Scorer struct {
	store  *fsstore.Store
	logger *zap.Logger
	paths  config.Paths
	clock  model.Clock
}

// NewScorer constructs a Scorer.
func NewScorer(store *fsstore.Store, paths config.Paths, clock model.Clock, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{store: store, logger: logger, paths: paths, clock: clock}
}

// Score evaluates one subagent return for the given spawning task. entry may
// be nil when the subagent produced no manifest entry at all.
func (s *Scorer) Score(taskID string, entry *ManifestEntry, returnText string) Record {
	rec := Record{
		Timestamp: s.clock.Now(),
		TaskID:    taskID,
	}

	if entry == nil {
		rec.SourceID = taskID
		rec.Integrity = IntegrityMissing
		rec.Violations = append(rec.Violations, Violation{
			Rule: RuleManifest, Severity: SeverityHigh, Detail: "no manifest entry produced",
		})
	} else {
		rec.SourceID = entry.ID
		missing := entry.missingFields()
		rec.MissingFields = missing
		switch {
		case len(missing) == 0:
			rec.Integrity = IntegrityValid
		case len(missing) <= 2:
			rec.Integrity = IntegrityPartial
			rec.Violations = append(rec.Violations, Violation{
				Rule: RuleManifest, Severity: SeverityLow,
				Detail: "manifest entry incomplete: " + joinFields(missing),
			})
		default:
			rec.Integrity = IntegrityInvalid
			rec.Violations = append(rec.Violations, Violation{
				Rule: RuleManifest, Severity: SeverityMedium,
				Detail: "manifest entry invalid: " + joinFields(missing),
			})
		}
		if !entry.LinksTask(taskID) {
			rec.Violations = append(rec.Violations, Violation{
				Rule: RuleLinkage, Severity: SeverityMedium,
				Detail: "linked_tasks does not name " + taskID,
			})
		}
	}

	if !CheckReturnFormat(returnText) {
		rec.Violations = append(rec.Violations, Violation{
			Rule: RuleFormat, Severity: SeverityLow,
			Detail: "return text does not match the required completion phrase",
		})
	}

	rec.RuleAdherenceScore = float64(3-brokenRules(rec.Violations)) / 3
	rec.Severity = worstSeverity(rec)
	return rec
}

// Append writes the record to the compliance stream and, when rules broke, to
// the violations stream as well.
func (s *Scorer) Append(ctx context.Context, rec Record) error {
	if err := s.store.AppendJSONL(ctx, s.paths.ComplianceLog(), rec); err != nil {
		return err
	}
	if !rec.Passed() {
		if err := s.store.AppendJSONL(ctx, s.paths.ViolationsLog(), rec); err != nil {
			return err
		}
		s.logger.Warn("compliance violation recorded",
			zap.String("taskId", rec.TaskID),
			zap.String("severity", string(rec.Severity)),
			zap.Int("rulesBroken", brokenRules(rec.Violations)))
	}
	return nil
}

// PassRate is the fraction of events with zero violations; 1.0 iff every
// event passed.
func PassRate(records []Record) float64 {
	if len(records) == 0 {
		return 1.0
	}
	passes := 0
	for _, r := range records {
		if r.Passed() {
			passes++
		}
	}
	return float64(passes) / float64(len(records))
}

// ReadRecords returns every event in the compliance stream.
func (s *Scorer) ReadRecords() ([]Record, error) {
	raw, err := fsstore.ReadLogEntries(s.paths.ComplianceLog())
	if err != nil {
		return nil, model.AsError(err)
	}
	return fsstore.DecodeLogEntries[Record](raw), nil
}

// brokenRules counts distinct rules violated.
func brokenRules(violations []Violation) int {
	seen := map[Rule]bool{}
	for _, v := range violations {
		seen[v.Rule] = true
	}
	if n := len(seen); n <= 3 {
		return n
	}
	return 3
}

// worstSeverity escalates with the number of broken rules; a missing
// manifest is the worst single failure and always reports high.
func worstSeverity(rec Record) Severity {
	if rec.Integrity == IntegrityMissing {
		return SeverityHigh
	}
	switch brokenRules(rec.Violations) {
	case 0:
		return SeverityNone
	case 1:
		return SeverityLow
	case 2:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

func joinFields(fields []string) string {
	out := ""
	for i, f := range fields {
		if i > 0 {
			out += ", "
		}
		out += f
	}
	return out
}
