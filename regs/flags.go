package regs

import (
	"github.com/holiman/uint256"

	"github.com/sarchlab/bnsim/trace"
)

// NumFlagGroups is the number of independent flag groups.
const NumFlagGroups = 2

// FlagGroup holds the carry, MSB, LSB and zero flags of one group.
type FlagGroup struct {
	C bool
	M bool
	L bool
	Z bool
}

// MLZForResult computes a flag group from a 256-bit result, keeping the
// given carry: M is bit 255, L is bit 0, Z is result == 0.
func MLZForResult(carry bool, result *uint256.Int) FlagGroup {
	return FlagGroup{
		C: carry,
		M: result[3]>>63 == 1,
		L: result[0]&1 == 1,
		Z: result.IsZero(),
	}
}

// Pack returns the group as a 4-bit value in C, M, L, Z bit order.
func (f FlagGroup) Pack() uint32 {
	var v uint32
	if f.C {
		v |= 1
	}
	if f.M {
		v |= 2
	}
	if f.L {
		v |= 4
	}
	if f.Z {
		v |= 8
	}
	return v
}

// UnpackFlagGroup builds a group from its 4-bit packed form.
func UnpackFlagGroup(v uint32) FlagGroup {
	return FlagGroup{
		C: v&1 != 0,
		M: v&2 != 0,
		L: v&4 != 0,
		Z: v&8 != 0,
	}
}

// FlagsFile is the staged file of flag groups.
type FlagsFile struct {
	groups  [NumFlagGroups]FlagGroup
	pending [NumFlagGroups]FlagGroup
	staged  [NumFlagGroups]bool
}

// NewFlagsFile creates a flags file with all flags clear.
func NewFlagsFile() *FlagsFile {
	return &FlagsFile{}
}

// Read reads a flag group, seeing same-cycle staged writes.
func (f *FlagsFile) Read(group int) FlagGroup {
	if f.staged[group] {
		return f.pending[group]
	}
	return f.groups[group]
}

// Write stages a flag-group write.
func (f *FlagsFile) Write(group int, fg FlagGroup) {
	f.pending[group] = fg
	f.staged[group] = true
}

// Wipe stages clearing of all groups.
func (f *FlagsFile) Wipe() {
	for g := 0; g < NumFlagGroups; g++ {
		f.Write(g, FlagGroup{})
	}
}

// Changes returns this cycle's pending commits in group order.
func (f *FlagsFile) Changes() []trace.Entry {
	var c []trace.Entry
	for g := 0; g < NumFlagGroups; g++ {
		if f.staged[g] {
			fg := f.pending[g]
			c = append(c, trace.Flags{Group: g, C: fg.C, M: fg.M, L: fg.L, Z: fg.Z})
		}
	}
	return c
}

// Commit applies all staged writes.
func (f *FlagsFile) Commit() {
	for g := 0; g < NumFlagGroups; g++ {
		if f.staged[g] {
			f.groups[g] = f.pending[g]
			f.staged[g] = false
		}
	}
}

// Abort discards all staged writes.
func (f *FlagsFile) Abort() {
	for g := 0; g < NumFlagGroups; g++ {
		f.staged[g] = false
	}
}
