package model

import "time"

// PhaseStatus is the lifecycle state of a project phase.
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseActive    PhaseStatus = "active"
	PhaseCompleted PhaseStatus = "completed"
)

// Phase is one ordered stage of a project roadmap.
type Phase struct {
	Name        string      `json:"name"`
	Order       int         `json:"order"`
	Status      PhaseStatus `json:"status"`
	StartedAt   *time.Time  `json:"startedAt,omitempty"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

// PhaseTransition records one phase change for the project history.
type PhaseTransition struct {
	Phase string    `json:"phase"`
	From  string    `json:"from,omitempty"`
	At    time.Time `json:"at"`
}

// Project holds the per-project metadata stored on the tasks document.
// At most one phase is active, and CurrentPhase names it iff it exists.
type Project struct {
	Name         string            `json:"name"`
	Phases       map[string]Phase  `json:"phases,omitempty"`
	CurrentPhase string            `json:"currentPhase,omitempty"`
	PhaseHistory []PhaseTransition `json:"phaseHistory,omitempty"`
}

// PhaseOrder returns the order of the named phase, or -1 if unknown.
func (p *Project) PhaseOrder(name string) int {
	if ph, ok := p.Phases[name]; ok {
		return ph.Order
	}
	return -1
}

// AdjacentPhases reports whether two phases sit next to each other in order.
func (p *Project) AdjacentPhases(a, b string) bool {
	oa, ob := p.PhaseOrder(a), p.PhaseOrder(b)
	if oa < 0 || ob < 0 {
		return false
	}
	d := oa - ob
	return d == 1 || d == -1
}
