package scan

import "sync/atomic"

// Gate accepts at most one candidate per armed period.
//
// The armed flag is cleared with a compare-and-swap, so the guarantee holds
// even if Observe is reached from more than one goroutine.
type Gate struct {
	armed atomic.Bool
}

// NewGate returns a disarmed gate.
func NewGate() *Gate {
	return &Gate{}
}

// Arm readies the gate for the next candidate. Re-arming is a no-op.
func (g *Gate) Arm() {
	g.armed.Store(true)
}

// Disarm drops any pending arm without accepting anything.
func (g *Gate) Disarm() {
	g.armed.Store(false)
}

// Armed reports whether the next candidate would be accepted.
func (g *Gate) Armed() bool {
	return g.armed.Load()
}

// Observe accepts c if the gate is armed, disarming it in the same step.
// While disarmed the candidate is discarded.
func (g *Gate) Observe(c Candidate) (Candidate, bool) {
	if !g.armed.CompareAndSwap(true, false) {
		return Candidate{}, false
	}
	return c, true
}

// ObserveBatch walks one frame's candidates in order. Only the first one
// seen while armed is accepted; the flag is already clear when the rest of
// the batch is examined.
func (g *Gate) ObserveBatch(b Batch) (Candidate, bool) {
	for _, c := range b {
		if accepted, ok := g.Observe(c); ok {
			return accepted, true
		}
	}
	return Candidate{}, false
}
