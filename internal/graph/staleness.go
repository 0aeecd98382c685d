package graph

import (
	"time"

	"github.com/dsj7419/cleo/internal/config"
	"github.com/dsj7419/cleo/internal/model"
)

// StalenessClass buckets a task by days since last activity.
type StalenessClass string

const (
	Fresh     StalenessClass = "fresh"
	Stale     StalenessClass = "stale"
	Critical  StalenessClass = "critical"
	Abandoned StalenessClass = "abandoned"
)

// StalenessReport is the per-task staleness row.
type StalenessReport struct {
	TaskID       string         `json:"taskId"`
	Class        StalenessClass `json:"class"`
	DaysInactive int            `json:"daysInactive"`
}

// Staleness classifies every task against the configured thresholds.
// Terminal tasks always report fresh: they need no attention.
func Staleness(tasks []*model.Task, cfg config.Config, now time.Time) []StalenessReport {
	out := make([]StalenessReport, 0, len(tasks))
	for _, t := range tasks {
		days := int(now.Sub(t.LastActivity()).Hours() / 24)
		if days < 0 {
			days = 0
		}
		class := Fresh
		if !t.Status.Terminal() {
			switch {
			case days >= cfg.AbandonedDays:
				class = Abandoned
			case days >= cfg.CriticalDays:
				class = Critical
			case days >= cfg.StaleDays:
				class = Stale
			}
		}
		out = append(out, StalenessReport{TaskID: t.ID, Class: class, DaysInactive: days})
	}
	return out
}
