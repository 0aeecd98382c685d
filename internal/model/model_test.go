package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestNextTaskIDNeverReuses(t *testing.T) {
	active := NewTodoFile("proj")
	active.Tasks = []*Task{{ID: "T001"}, {ID: "T007"}}

	archive := NewArchiveFile()
	archive.Tasks = []*Task{{ID: "T042"}}

	// The archive holds the high-water mark, so allocation continues past it.
	assert.Equal(t, "T043", NextTaskID(active, archive))
	assert.Equal(t, "T008", NextTaskID(active, nil))
	assert.Equal(t, "T001", NextTaskID(NewTodoFile(""), nil))
}

func TestTaskIDFormatAndParse(t *testing.T) {
	assert.Equal(t, "T003", FormatTaskID(3))
	assert.Equal(t, "T1234", FormatTaskID(1234))

	assert.True(t, ValidTaskID("T001"))
	assert.True(t, ValidTaskID("T1234"))
	assert.False(t, ValidTaskID("t001"))
	assert.False(t, ValidTaskID("T"))
	assert.False(t, ValidTaskID("T01x"))

	assert.Equal(t, 42, TaskIDNumber("T042"))
	assert.Equal(t, -1, TaskIDNumber("X042"))
}

func TestNewSessionIDShape(t *testing.T) {
	id := NewSessionID(testNow)
	assert.True(t, ValidSessionID(id), "minted id %q must satisfy its own pattern", id)
	assert.Contains(t, id, "session_20260314_120000_")

	assert.False(t, ValidSessionID("session_2026_bad"))
}

func TestNormalizeLabels(t *testing.T) {
	got := NormalizeLabels([]string{" backend", "api", "backend", "", "  "})
	assert.Equal(t, []string{"api", "backend"}, got)

	// Idempotent on already-normal input.
	assert.Equal(t, got, NormalizeLabels(got))
}

func TestVerificationPassed(t *testing.T) {
	v := NewVerification("alpha")
	assert.False(t, v.Passed(DefaultRequiredGates))
	assert.False(t, v.Passed(nil), "an empty gate set can never count as verified")

	for _, g := range DefaultRequiredGates {
		v.Gates[g] = true
	}
	assert.True(t, v.Passed(DefaultRequiredGates))

	v.Gates[GateQAPassed] = false
	assert.False(t, v.Passed(DefaultRequiredGates))
}

func TestGateIndexFollowsChain(t *testing.T) {
	assert.Equal(t, 0, GateIndex(GateImplemented))
	assert.Equal(t, 5, GateIndex(GateDocumented))
	assert.Equal(t, -1, GateIndex(Gate("shipped")))
}

func TestTaskCloneIsDeep(t *testing.T) {
	done := testNow
	orig := &Task{
		ID:          "T001",
		Title:       "original",
		Status:      StatusDone,
		Depends:     []string{"T002"},
		Labels:      []string{"api"},
		CompletedAt: &done,
		Verification: &Verification{
			Gates:     map[Gate]bool{GateImplemented: true},
			CreatedBy: "alpha",
		},
	}

	c := orig.Clone()
	c.Depends[0] = "T999"
	c.Labels = append(c.Labels, "extra")
	*c.CompletedAt = testNow.Add(time.Hour)
	c.Verification.Gates[GateTestsPassed] = true

	assert.Equal(t, []string{"T002"}, orig.Depends)
	assert.Equal(t, []string{"api"}, orig.Labels)
	assert.Equal(t, testNow, *orig.CompletedAt)
	_, set := orig.Verification.GateState(GateTestsPassed)
	assert.False(t, set)
}

func TestLastActivityPicksLatestTimestamp(t *testing.T) {
	created := testNow.Add(-48 * time.Hour)
	updated := testNow.Add(-24 * time.Hour)
	completed := testNow.Add(-time.Hour)

	task := &Task{CreatedAt: created, UpdatedAt: updated}
	assert.Equal(t, updated, task.LastActivity())

	task.CompletedAt = &completed
	assert.Equal(t, completed, task.LastActivity())
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusBlocked.Terminal())
}

func TestPriorityRankOrdering(t *testing.T) {
	require.Less(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	require.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	require.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
}
