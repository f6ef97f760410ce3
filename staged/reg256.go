package staged

import "github.com/holiman/uint256"

// Reg256 is a 256-bit cell with a single staged write slot. It is used
// for wide data registers, wide special registers and entropy words.
type Reg256 struct {
	committed uint256.Int
	pending   uint256.Int
	hasStaged bool
}

// NewReg256 creates a cell committed to zero.
func NewReg256() *Reg256 {
	return &Reg256{}
}

// Read returns the staged value if a write is pending, else the
// committed value. The returned value must not be mutated.
func (r *Reg256) Read() *uint256.Int {
	if r.hasStaged {
		return &r.pending
	}
	return &r.committed
}

// Committed returns the last committed value, ignoring staging.
func (r *Reg256) Committed() *uint256.Int {
	return &r.committed
}

// Write stages a write. It replaces any previously staged value.
func (r *Reg256) Write(value *uint256.Int) {
	r.pending.Set(value)
	r.hasStaged = true
}

// Pending reports the staged value, if any.
func (r *Reg256) Pending() (*uint256.Int, bool) {
	if !r.hasStaged {
		return nil, false
	}
	return &r.pending, true
}

// Commit makes the staged write, if any, permanent.
func (r *Reg256) Commit() {
	if r.hasStaged {
		r.committed.Set(&r.pending)
		r.hasStaged = false
	}
}

// Abort discards the staged write, if any.
func (r *Reg256) Abort() {
	r.hasStaged = false
}
