// Package staged defines the stage-then-commit write discipline shared
// by every stateful resource in the model.
//
// During a cycle, writes are recorded as pending and are visible to
// subsequent reads in the same cycle. At the single decision point at
// the end of the cycle, the orchestrator either commits the pending
// writes (making them permanent) or aborts them (reverting the resource
// to its last committed value). An instruction that faults must leave
// no partial side effect, so abort is a full rollback of the cycle's
// staged writes, never of committed history.
package staged

// A Resource buffers writes and exposes a single commit/abort decision
// point per cycle.
type Resource interface {
	// Commit makes all staged writes permanent and clears staging.
	Commit()

	// Abort discards all staged writes.
	Abort()
}

// A Wipeable resource can be forced to its fixed erasure pattern. The
// wipe itself goes through the staged path, so it only becomes visible
// at the next commit.
type Wipeable interface {
	Resource

	Wipe()
}

// Reg32 is a 32-bit cell with a single staged write slot.
type Reg32 struct {
	committed uint32
	pending   uint32
	hasStaged bool
}

// NewReg32 creates a cell holding the given committed value.
func NewReg32(value uint32) *Reg32 {
	return &Reg32{committed: value}
}

// Read returns the staged value if a write is pending, else the
// committed value.
func (r *Reg32) Read() uint32 {
	if r.hasStaged {
		return r.pending
	}
	return r.committed
}

// Committed returns the last committed value, ignoring staging.
func (r *Reg32) Committed() uint32 {
	return r.committed
}

// Write stages a write. It replaces any previously staged value.
func (r *Reg32) Write(value uint32) {
	r.pending = value
	r.hasStaged = true
}

// SetBits stages an OR of the given mask into the current read value.
func (r *Reg32) SetBits(mask uint32) {
	r.Write(r.Read() | mask)
}

// Pending reports the staged value, if any.
func (r *Reg32) Pending() (uint32, bool) {
	return r.pending, r.hasStaged
}

// Commit makes the staged write, if any, permanent.
func (r *Reg32) Commit() {
	if r.hasStaged {
		r.committed = r.pending
		r.hasStaged = false
	}
}

// Abort discards the staged write, if any.
func (r *Reg32) Abort() {
	r.hasStaged = false
}
