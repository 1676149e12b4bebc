package engine

import "github.com/roach88/circuit/internal/ir"

// DefaultBaseDT is the nominal tick length in seconds (30 Hz).
const DefaultBaseDT = 1.0 / 30.0

// EffectiveDT scales the nominal tick length by the speed record:
// speedup multiplies, slowdown divides. An invalid record leaves base
// unscaled.
func EffectiveDT(base float64, s ir.Speed) float64 {
	if s.Validate() != nil {
		return base
	}
	if s.Type == ir.SlowDown {
		return base / s.Multiplier
	}
	return base * s.Multiplier
}

// requestSpeed records a speed change from the speed-control node. It takes
// effect at the start of the next tick.
func (m *Machine) requestSpeed(owner ir.BlockID, s ir.Speed) {
	m.pendingSpeed = &s
	m.speedOwner = owner
}

// releaseSpeed reverts to normal speed from the next tick when owner was
// the contributing node.
func (m *Machine) releaseSpeed(owner ir.BlockID) {
	if m.speedOwner != owner {
		return
	}
	normal := ir.NormalSpeed
	m.pendingSpeed = &normal
	m.speedOwner = ""
}
