package compliance

import "strings"

// GapReport lists, per review-status manifest entry, the topics not covered
// by the docs corpus.
type GapReport struct {
	EntryID        string   `json:"entryId"`
	Title          string   `json:"title"`
	MissingTopics  []string `json:"missingTopics,omitempty"`
	ReadyToArchive bool     `json:"readyToArchive"`
}

// AnalyzeGaps compares every review-status entry's topics against the docs
// corpus (file path to content). A topic is covered when any document
// contains it case-insensitively. ReadyToArchive is true iff no topic is
// missing.
func AnalyzeGaps(entries []ManifestEntry, corpus map[string]string) []GapReport {
	lowered := make([]string, 0, len(corpus))
	for _, content := range corpus {
		lowered = append(lowered, strings.ToLower(content))
	}

	var out []GapReport
	for _, e := range entries {
		if e.Status != ManifestReview {
			continue
		}
		report := GapReport{EntryID: e.ID, Title: e.Title}
		for _, topic := range e.Topics {
			needle := strings.ToLower(strings.TrimSpace(topic))
			if needle == "" {
				continue
			}
			covered := false
			for _, doc := range lowered {
				if strings.Contains(doc, needle) {
					covered = true
					break
				}
			}
			if !covered {
				report.MissingTopics = append(report.MissingTopics, topic)
			}
		}
		report.ReadyToArchive = len(report.MissingTopics) == 0
		out = append(out, report)
	}
	return out
}
