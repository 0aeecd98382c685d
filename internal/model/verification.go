package model

import "time"

// Gate names the ordered quality checks a non-epic task passes before it is
// considered verified. The chain order is fixed; a gate may only be set true
// when every earlier gate is already true.
type Gate string

const (
	GateImplemented    Gate = "implemented"
	GateTestsPassed    Gate = "testsPassed"
	GateQAPassed       Gate = "qaPassed"
	GateCleanupDone    Gate = "cleanupDone"
	GateSecurityPassed Gate = "securityPassed"
	GateDocumented     Gate = "documented"
)

// GateChain is the canonical gate order.
var GateChain = []Gate{
	GateImplemented,
	GateTestsPassed,
	GateQAPassed,
	GateCleanupDone,
	GateSecurityPassed,
	GateDocumented,
}

// GateIndex returns the position of g in the chain, or -1 if unknown.
func GateIndex(g Gate) int {
	for i, c := range GateChain {
		if c == g {
			return i
		}
	}
	return -1
}

// GateFailure records one failed verification attempt on a gate.
type GateFailure struct {
	Gate      Gate      `json:"gate"`
	Agent     string    `json:"agent"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	Round     int       `json:"round"`
}

// Verification tracks gate state for a task. Gates holds a tri-state per
// gate: absent means never attempted, false means explicitly failed, true
// means passed. Agents records which agent identifier last wrote each gate,
// feeding the circular-validation check.
type Verification struct {
	Gates    map[Gate]bool   `json:"gates"`
	Agents   map[Gate]string `json:"agents,omitempty"`
	Round    int             `json:"round"`
	Failures []GateFailure   `json:"failures,omitempty"`

	// CreatedBy is the agent identifier that created the owning task.
	CreatedBy string `json:"createdBy,omitempty"`
}

// NewVerification returns an empty verification object for a task created by
// the given agent.
func NewVerification(createdBy string) *Verification {
	return &Verification{
		Gates:     map[Gate]bool{},
		Agents:    map[Gate]string{},
		CreatedBy: createdBy,
	}
}

// Clone returns a deep copy.
func (v *Verification) Clone() *Verification {
	c := &Verification{
		Round:     v.Round,
		CreatedBy: v.CreatedBy,
		Gates:     make(map[Gate]bool, len(v.Gates)),
		Agents:    make(map[Gate]string, len(v.Agents)),
		Failures:  append([]GateFailure(nil), v.Failures...),
	}
	for g, b := range v.Gates {
		c.Gates[g] = b
	}
	for g, a := range v.Agents {
		c.Agents[g] = a
	}
	return c
}

// GateState reports the tri-state of a gate: value and whether it was set.
func (v *Verification) GateState(g Gate) (val, set bool) {
	val, set = v.Gates[g]
	return val, set
}

// Passed reports whether every gate in required is true.
func (v *Verification) Passed(required []Gate) bool {
	for _, g := range required {
		if !v.Gates[g] {
			return false
		}
	}
	return len(required) > 0
}

// DefaultRequiredGates is the gate subset that must pass for a task to count
// as verified: the full chain minus cleanupDone.
var DefaultRequiredGates = []Gate{
	GateImplemented,
	GateTestsPassed,
	GateQAPassed,
	GateSecurityPassed,
	GateDocumented,
}
