// Package metrics implements token accounting: estimation, OpenTelemetry
// measurement, per-event and per-session streams, A/B comparisons, and
// global aggregation. Every write honors the single trackTokens opt-out and
// degrades to a no-op when tracking is disabled.
package metrics

import "os"

// EstimateTokens approximates the token count of a text as ceil(chars/4).
// The universal fallback when no measured usage is available.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// EstimateFileTokens approximates the token count of a file by its size.
func EstimateFileTokens(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return int(info.Size() / 4), nil
}
