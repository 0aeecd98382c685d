package validate

import "github.com/dsj7419/cleo/internal/model"

// Circular-validation prevention for verification gate writes: the agent
// that created a task may never validate or test that task's own gates, and
// the validator and tester must be distinct identities.

// bypassAgents are trusted identities exempt from the circular check.
var bypassAgents = map[string]bool{
	"user":   true,
	"system": true,
	"legacy": true,
}

// validatorGates and testerGates partition the chain into the roles the
// distinctness rule applies to.
var (
	testerGates    = map[model.Gate]bool{model.GateTestsPassed: true}
	validatorGates = map[model.Gate]bool{
		model.GateQAPassed:       true,
		model.GateSecurityPassed: true,
	}
)

// CheckGateAgent enforces the circular-validation rules for one gate write.
func CheckGateAgent(t *model.Task, gate model.Gate, agent string) error {
	if agent == "" || bypassAgents[agent] {
		return nil
	}
	ver := t.Verification
	if ver == nil {
		return nil
	}

	if ver.CreatedBy != "" && !bypassAgents[ver.CreatedBy] && agent == ver.CreatedBy &&
		(testerGates[gate] || validatorGates[gate]) {
		return model.NewError(model.ErrCircularValidation,
			"agent %q created task %s and may not act as its validator or tester", agent, t.ID).
			WithFix("have a different agent run this gate")
	}

	// Validator and tester must be different identities.
	if validatorGates[gate] {
		for tg := range testerGates {
			if other, ok := ver.Agents[tg]; ok && other == agent && !bypassAgents[other] {
				return model.NewError(model.ErrCircularValidation,
					"agent %q tested task %s and may not also validate it", agent, t.ID).
					WithFix("have a different agent run this gate")
			}
		}
	}
	if testerGates[gate] {
		for vg := range validatorGates {
			if other, ok := ver.Agents[vg]; ok && other == agent && !bypassAgents[other] {
				return model.NewError(model.ErrCircularValidation,
					"agent %q validated task %s and may not also test it", agent, t.ID).
					WithFix("have a different agent run this gate")
			}
		}
	}
	return nil
}
