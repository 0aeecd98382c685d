package metrics

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsj7419/cleo/internal/compliance"
	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/fsstore"
	"github.com/dsj7419/cleo/internal/model"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testPaths(t *testing.T) config.Paths {
	t.Helper()
	root := t.TempDir()
	paths := config.Paths{
		ProjectRoot: root,
		StateDir:    filepath.Join(root, ".cleo"),
		GlobalDir:   filepath.Join(root, "global"),
	}
	require.NoError(t, paths.EnsureStateDir())
	return paths
}

func testRecorder(t *testing.T, cfg config.Config) (*Recorder, config.Paths) {
	t.Helper()
	paths := testPaths(t)
	return NewRecorder(fsstore.New(), paths, cfg, model.FixedClock{T: testNow}, nil), paths
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}

func TestRecorderDisabledIsNoOp(t *testing.T) {
	cfg := config.Default()
	cfg.TrackTokens = false
	r, paths := testRecorder(t, cfg)

	require.NoError(t, r.RecordSpawn(context.Background(), "T001", 500))
	require.NoError(t, r.SessionStart(context.Background(), "session_20260314_120000_abcdef"))
	_, err := os.Stat(paths.TokenUsageLog())
	assert.True(t, os.IsNotExist(err))
}

func TestSpawnAndReturnEvents(t *testing.T) {
	r, _ := testRecorder(t, config.Default())
	ctx := context.Background()

	require.NoError(t, r.RecordSpawn(ctx, "T001", 500))
	require.NoError(t, r.RecordReturn(ctx, "T001", 1200))

	events, err := r.ReadEvents()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, EventSpawnPrompt, events[0].Event)
	assert.Equal(t, 500, events[0].Tokens)
	assert.Equal(t, EventSpawnReturn, events[1].Event)
	assert.Equal(t, testNow, events[0].Timestamp)
}

func TestReadOTelUsageSumsByAttribute(t *testing.T) {
	dir := t.TempDir()
	export := `{
	  "resourceMetrics": [{"scopeMetrics": [{"metrics": [{
	    "name": "claude_code.token.usage",
	    "sum": {"dataPoints": [
	      {"asInt": "100", "attributes": [{"key": "type", "value": {"stringValue": "input"}}]},
	      {"asInt": "40",  "attributes": [{"key": "type", "value": {"stringValue": "output"}}]},
	      {"asInt": "7",   "attributes": [{"key": "type", "value": {"stringValue": "cacheRead"}}]},
	      {"asInt": "3",   "attributes": [{"key": "type", "value": {"stringValue": "cacheCreation"}}]},
	      {"asInt": "60",  "attributes": [{"key": "type", "value": {"stringValue": "input"}}]}
	    ]}
	  }]}]}]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metrics.json"), []byte(export), 0o644))

	usage, ok, err := ReadOTelUsage(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Usage{Input: 160, Output: 40, CacheRead: 7, CacheCreation: 3}, usage)
	assert.Equal(t, 210, usage.Total())
}

func TestReadOTelUsageMissingDir(t *testing.T) {
	_, ok, err := ReadOTelUsage(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionDeltaFromOTelSnapshots(t *testing.T) {
	otelDir := t.TempDir()
	cfg := config.Default()
	cfg.OtelMetricsDir = otelDir
	r, _ := testRecorder(t, cfg)
	ctx := context.Background()
	const sid = "session_20260314_120000_abcdef"

	writeExport := func(input int) {
		export := `{"resourceMetrics":[{"scopeMetrics":[{"metrics":[{"name":"claude_code.token.usage",` +
			`"sum":{"dataPoints":[{"asInt":"` + strconv.Itoa(input) + `","attributes":[{"key":"type","value":{"stringValue":"input"}}]}]}}]}]}]}`
		require.NoError(t, os.WriteFile(filepath.Join(otelDir, "metrics.json"), []byte(export), 0o644))
	}

	writeExport(1000)
	require.NoError(t, r.SessionStart(ctx, sid))
	writeExport(1800)
	require.NoError(t, r.SessionEnd(ctx, sid))

	records, err := r.ReadSessionRecords()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "delta", records[2].Kind)
	assert.Equal(t, 800, records[2].Consumed)
	assert.Equal(t, SourceOTel, records[2].Source)
}

func TestCompareABVerdicts(t *testing.T) {
	cleo := ABSample{SessionID: "a", Consumed: 4000, TasksCompleted: 10}
	baseline := ABSample{SessionID: "b", Consumed: 6000, TasksCompleted: 10}

	res := CompareAB("pilot", cleo, baseline, DefaultABThresholds, testNow)
	assert.Equal(t, "cleo_wins", res.Verdict)
	assert.Equal(t, -2000, res.TokenDelta)
	assert.InDelta(t, 4.0/6.0, res.Efficiency, 1e-9)

	res = CompareAB("pilot", baseline, cleo, DefaultABThresholds, testNow)
	assert.Equal(t, "baseline_wins", res.Verdict)

	close1 := ABSample{SessionID: "a", Consumed: 5000, TasksCompleted: 10}
	close2 := ABSample{SessionID: "b", Consumed: 5100, TasksCompleted: 10}
	res = CompareAB("pilot", close1, close2, DefaultABThresholds, testNow)
	assert.Equal(t, "inconclusive", res.Verdict)
}

func TestSyncDeduplicatesGlobalStream(t *testing.T) {
	r, paths := testRecorder(t, config.Default())
	ctx := context.Background()
	require.NoError(t, r.SessionStart(ctx, "session_20260314_120000_abcdef"))

	records := []compliance.Record{{
		Timestamp: testNow, SourceID: "entry-1", TaskID: "T001",
		Integrity: compliance.IntegrityValid, RuleAdherenceScore: 1.0,
	}}

	n, err := r.Sync(ctx, "demo", records)
	require.NoError(t, err)
	assert.Equal(t, 2, n) // one compliance + one session row

	n, err = r.Sync(ctx, "demo", records)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second sync appends nothing")

	raw, err := fsstore.ReadLogEntries(paths.GlobalMetricsLog())
	require.NoError(t, err)
	assert.Len(t, raw, 2)
}
