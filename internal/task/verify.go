package task

import (
	"github.com/dsj7419/cleo/internal/model"
	"github.com/dsj7419/cleo/internal/validate"
)

// GateRequest sets one verification gate on a task.
type GateRequest struct {
	ID     string
	Gate   model.Gate
	Value  bool
	Agent  string
	Reason string // required when Value is false
}

// UpdateGate writes one gate, enforcing the chain order, the
// circular-validation rules, and the bounded verification rounds. Setting a
// gate false resets every later gate to unset, records a failure entry, and
// advances the round counter; at the configured maximum the task flips to
// blocked instead of looping.
func (m *Mutator) UpdateGate(todo *model.TodoFile, req GateRequest) (*model.Task, error) {
	t := todo.FindTask(req.ID)
	if t == nil {
		return nil, model.NewError(model.ErrNotFound, "task %s not found", req.ID)
	}
	if t.Type == model.TypeEpic {
		return nil, model.NewError(model.ErrStateConflict,
			"task %s is an epic; epics carry no verification gates", t.ID)
	}
	if t.Status.Terminal() {
		return nil, model.NewError(model.ErrStateConflict,
			"task %s is %s and its gates are frozen", t.ID, t.Status)
	}
	idx := model.GateIndex(req.Gate)
	if idx < 0 {
		return nil, model.NewError(model.ErrInvalidInput, "unknown gate %q", req.Gate).
			WithField("gate").WithAlternatives(gateNames()...)
	}
	if t.Verification == nil {
		t.Verification = model.NewVerification("")
	}
	ver := t.Verification

	if err := validate.CheckGateAgent(t, req.Gate, req.Agent); err != nil {
		return nil, err
	}

	now := m.clock.Now()

	if req.Value {
		// A gate may only pass once every earlier gate has passed.
		for _, g := range model.GateChain[:idx] {
			if !ver.Gates[g] {
				return nil, model.NewError(model.ErrLifecycleGate,
					"gate %s cannot pass while %s has not", req.Gate, g).
					WithFix("pass the earlier gates in chain order first")
			}
		}
		ver.Gates[req.Gate] = true
		if req.Agent != "" {
			ver.Agents[req.Gate] = req.Agent
		}
		t.UpdatedAt = now
		return t, nil
	}

	if req.Reason == "" {
		return nil, model.NewError(model.ErrInvalidInput,
			"failing gate %s requires a reason", req.Gate).WithField("reason")
	}

	ver.Round++
	ver.Failures = append(ver.Failures, model.GateFailure{
		Gate:      req.Gate,
		Agent:     req.Agent,
		Reason:    req.Reason,
		Timestamp: now,
		Round:     ver.Round,
	})
	ver.Gates[req.Gate] = false
	if req.Agent != "" {
		ver.Agents[req.Gate] = req.Agent
	}
	// Later gates lose their state: the failure invalidates everything built
	// on top of the failed gate.
	for _, g := range model.GateChain[idx+1:] {
		delete(ver.Gates, g)
		delete(ver.Agents, g)
	}

	if ver.Round >= m.cfg.MaxVerifyRounds {
		applyStatus(t, model.StatusBlocked, now)
		return t, model.NewError(model.ErrLifecycleGate,
			"task %s failed verification %d times and is now blocked", t.ID, ver.Round).
			WithFix("review the recorded failures, then unblock the task to retry")
	}

	t.UpdatedAt = now
	return t, nil
}

// Verified reports whether the task has passed the default required gates.
func Verified(t *model.Task) bool {
	if t.Type == model.TypeEpic {
		return true
	}
	if t.Verification == nil {
		return false
	}
	return t.Verification.Passed(model.DefaultRequiredGates)
}

func gateNames() []string {
	out := make([]string, len(model.GateChain))
	for i, g := range model.GateChain {
		out[i] = string(g)
	}
	return out
}
