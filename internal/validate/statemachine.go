package validate

import "github.com/dsj7419/cleo/internal/model"

// Layer 4: the task status state machine. Same-state transitions are always
// legal (operations are idempotent); cancellation is reachable from any
// state; uncancel restores the remembered pre-cancel status.

// legalTransitions maps from-status to the set of allowed to-statuses.
var legalTransitions = map[model.Status]map[model.Status]bool{
	model.StatusPending: {
		model.StatusActive:    true,
		model.StatusBlocked:   true,
		model.StatusDone:      true, // auto-complete may finish a pending parent
		model.StatusCancelled: true,
	},
	model.StatusActive: {
		model.StatusPending:   true,
		model.StatusBlocked:   true,
		model.StatusDone:      true,
		model.StatusCancelled: true,
	},
	model.StatusBlocked: {
		model.StatusPending:   true,
		model.StatusActive:    true,
		model.StatusCancelled: true,
	},
	model.StatusDone: {
		model.StatusPending:   true, // reopen
		model.StatusCancelled: true,
	},
	model.StatusCancelled: {
		// uncancel restores the pre-cancel status; every non-terminal target
		// is reachable, done only when it was the pre-cancel state.
		model.StatusPending: true,
		model.StatusActive:  true,
		model.StatusBlocked: true,
		model.StatusDone:    true,
	},
}

// CheckTransition validates one status change. A nil return means legal.
func CheckTransition(taskID string, from, to model.Status) error {
	if !to.Valid() {
		return model.NewError(model.ErrInvalidInput, "unknown status %q", to)
	}
	if from == to {
		return nil
	}
	if legalTransitions[from][to] {
		return nil
	}
	return model.NewError(model.ErrStateConflict,
		"illegal status transition for %s: %s -> %s", taskID, from, to).
		WithAlternatives(transitionTargets(from)...)
}

func transitionTargets(from model.Status) []string {
	var out []string
	for to := range legalTransitions[from] {
		out = append(out, string(to))
	}
	return out
}
