package metrics

import (
	"context"
	"time"
)

// ABSample summarizes one arm of an A/B comparison after its session ended.
type ABSample struct {
	SessionID          string  `json:"sessionId"`
	Consumed           int     `json:"consumed"`
	TasksCompleted     int     `json:"tasksCompleted"`
	ValidationPassRate float64 `json:"validationPassRate"`
}

// tokensPerTask is consumption normalized by completed work; lower is better.
func (s ABSample) tokensPerTask() float64 {
	if s.TasksCompleted == 0 {
		return float64(s.Consumed)
	}
	return float64(s.Consumed) / float64(s.TasksCompleted)
}

// ABThresholds key the verdict: the managed arm wins when its per-task
// consumption is below Win times the baseline's, loses above Lose times.
type ABThresholds struct {
	Win  float64 `json:"win"`
	Lose float64 `json:"lose"`
}

// DefaultABThresholds is the compiled-in verdict keying.
var DefaultABThresholds = ABThresholds{Win: 0.9, Lose: 1.1}

// ABResult is one completed comparison, appended to the AB_TESTS stream.
type ABResult struct {
	Timestamp  time.Time `json:"timestamp"`
	Label      string    `json:"label"`
	Cleo       ABSample  `json:"cleo"`
	Baseline   ABSample  `json:"baseline"`
	TokenDelta int       `json:"tokenDelta"` // cleo minus baseline
	Efficiency float64   `json:"efficiency"` // cleo tokens/task over baseline tokens/task
	Verdict    string    `json:"verdict"`    // cleo_wins | baseline_wins | inconclusive
}

// CompareAB computes the verdict for a labeled pair of ended sessions.
func CompareAB(label string, cleo, baseline ABSample, th ABThresholds, now time.Time) ABResult {
	res := ABResult{
		Timestamp:  now,
		Label:      label,
		Cleo:       cleo,
		Baseline:   baseline,
		TokenDelta: cleo.Consumed - baseline.Consumed,
	}

	base := baseline.tokensPerTask()
	if base > 0 {
		res.Efficiency = cleo.tokensPerTask() / base
	}
	switch {
	case base == 0:
		res.Verdict = "inconclusive"
	case res.Efficiency <= th.Win:
		res.Verdict = "cleo_wins"
	case res.Efficiency >= th.Lose:
		res.Verdict = "baseline_wins"
	default:
		res.Verdict = "inconclusive"
	}
	return res
}

// RecordABTest appends a completed comparison to the AB_TESTS stream.
func (r *Recorder) RecordABTest(ctx context.Context, res ABResult) error {
	if !r.Enabled() {
		return nil
	}
	return r.store.AppendJSONL(ctx, r.paths.ABTestsLog(), res)
}
