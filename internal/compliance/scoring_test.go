package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/model"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testScorer(t *testing.T) (*Scorer, config.Paths) {
	t.Helper()
	root := t.TempDir()
	paths := config.Paths{ProjectRoot: root, StateDir: root + "/.cleo", GlobalDir: root + "/global"}
	require.NoError(t, paths.EnsureStateDir())
	return NewScorer(fsstore.New(), paths, model.FixedClock{T: testNow}, nil), paths
}

func fullEntry(taskID string) *ManifestEntry {
	e := NewManifestEntry(testNow)
	e.Title = "Findings on retry semantics"
	e.File = "research/retry-semantics.md"
	e.Topics = []string{"retries", "idempotence"}
	e.LinkedTasks = []string{taskID}
	e.FindingsSummary = "exponential backoff with jitter is required"
	e.AgentType = "research"
	return &e
}

const goodReturn = "RESEARCH COMPLETE for T042\nmanifest entry appended"

func TestScoreFullyCompliantReturn(t *testing.T) {
	s, _ := testScorer(t)

	rec := s.Score("T042", fullEntry("T042"), goodReturn)
	assert.Equal(t, IntegrityValid, rec.Integrity)
	assert.True(t, rec.Passed())
	assert.Equal(t, 1.0, rec.RuleAdherenceScore)
	assert.Equal(t, SeverityNone, rec.Severity)
}

func TestScorePartialManifest(t *testing.T) {
	s, _ := testScorer(t)
	e := fullEntry("T042")
	e.File = ""
	e.Topics = nil

	rec := s.Score("T042", e, goodReturn)
	assert.Equal(t, IntegrityPartial, rec.Integrity)
	assert.ElementsMatch(t, []string{"file", "topics"}, rec.MissingFields)
	assert.InDelta(t, 2.0/3.0, rec.RuleAdherenceScore, 1e-9)
	assert.Equal(t, SeverityLow, rec.Severity)
}

func TestScoreInvalidManifest(t *testing.T) {
	s, _ := testScorer(t)
	e := fullEntry("T042")
	e.File = ""
	e.Topics = nil
	e.FindingsSummary = ""

	rec := s.Score("T042", e, goodReturn)
	assert.Equal(t, IntegrityInvalid, rec.Integrity)
	assert.Equal(t, SeverityLow, rec.Severity, "single broken rule stays low")
}

func TestScoreMissingManifestIsWorstSingleFailure(t *testing.T) {
	s, _ := testScorer(t)

	rec := s.Score("T042", nil, goodReturn)
	assert.Equal(t, IntegrityMissing, rec.Integrity)
	assert.Equal(t, SeverityHigh, rec.Severity)
	assert.InDelta(t, 2.0/3.0, rec.RuleAdherenceScore, 1e-9)
}

func TestScoreLinkageAndFormatViolations(t *testing.T) {
	s, _ := testScorer(t)
	e := fullEntry("T099") // links the wrong task

	rec := s.Score("T042", e, "done, see the file")
	assert.False(t, rec.Passed())
	assert.InDelta(t, 1.0/3.0, rec.RuleAdherenceScore, 1e-9)
	assert.Equal(t, SeverityMedium, rec.Severity)

	rules := map[Rule]bool{}
	for _, v := range rec.Violations {
		rules[v.Rule] = true
	}
	assert.True(t, rules[RuleLinkage])
	assert.True(t, rules[RuleFormat])
}

func TestAppendRoutesViolationsToBothStreams(t *testing.T) {
	s, paths := testScorer(t)
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, s.Score("T042", fullEntry("T042"), goodReturn)))
	require.NoError(t, s.Append(ctx, s.Score("T042", nil, goodReturn)))

	records, err := s.ReadRecords()
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.InDelta(t, 0.5, PassRate(records), 1e-9)

	raw, err := fsstore.ReadLogEntries(paths.ViolationsLog())
	require.NoError(t, err)
	assert.Len(t, raw, 1)
}

func TestAnalyzeGaps(t *testing.T) {
	e1 := *fullEntry("T042")
	e1.Status = ManifestReview
	e1.Topics = []string{"Retries", "circuit breaker"}
	e2 := *fullEntry("T043")
	e2.Status = ManifestAccepted // not in review, skipped

	corpus := map[string]string{
		"docs/resilience.md": "We use RETRIES with exponential backoff.",
	}
	reports := AnalyzeGaps([]ManifestEntry{e1, e2}, corpus)
	require.Len(t, reports, 1)
	assert.Equal(t, []string{"circuit breaker"}, reports[0].MissingTopics)
	assert.False(t, reports[0].ReadyToArchive)

	corpus["docs/breaker.md"] = "The Circuit Breaker pattern trips after N failures."
	reports = AnalyzeGaps([]ManifestEntry{e1}, corpus)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].ReadyToArchive)
}
