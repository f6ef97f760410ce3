package regs

import (
	"github.com/holiman/uint256"

	"github.com/sarchlab/bnsim/trace"
)

// CSR indices in the control/status register space.
const (
	CSRFlags       = 0x7C0
	CSRFlagGroup0  = 0x7C1
	CSRFlagGroup1  = 0x7C2
	CSRModBase     = 0x7D0 // MOD0..MOD7 at 0x7D0..0x7D7
	CSRRndPrefetch = 0xFC0
	CSRRnd         = 0xFC1
	CSRUrnd        = 0xFC2
)

// CSRFile maps the 32-bit CSR index space onto the flag groups and the
// wide special registers. It owns the flags; MOD and URND accesses are
// views onto the WSR file passed into each call. The RND register is
// not served here: reading it consumes the cached entropy value and
// has machine-level side effects, so the owning state handles it.
type CSRFile struct {
	Flags *FlagsFile
}

// NewCSRFile creates a CSR file with all flags clear.
func NewCSRFile() *CSRFile {
	return &CSRFile{Flags: NewFlagsFile()}
}

// Read reads the CSR with the given index. The second return value is
// false for an unknown index.
func (c *CSRFile) Read(idx uint32, wsrs *WSRFile) (uint32, bool) {
	switch {
	case idx == CSRFlags:
		return c.Flags.Read(0).Pack() | c.Flags.Read(1).Pack()<<4, true
	case idx == CSRFlagGroup0:
		return c.Flags.Read(0).Pack(), true
	case idx == CSRFlagGroup1:
		return c.Flags.Read(1).Pack(), true
	case idx >= CSRModBase && idx < CSRModBase+8:
		return modWord(wsrs.Mod.Read(), int(idx-CSRModBase)), true
	case idx == CSRRndPrefetch:
		// Write-only prefetch trigger.
		return 0, true
	case idx == CSRUrnd:
		return uint32(wsrs.URND.Value().Uint64()), true
	default:
		return 0, false
	}
}

// Write stages a write to the CSR with the given index. The return
// value is false for an unknown or read-only index.
func (c *CSRFile) Write(idx uint32, value uint32, wsrs *WSRFile) bool {
	switch {
	case idx == CSRFlags:
		c.Flags.Write(0, UnpackFlagGroup(value&0xF))
		c.Flags.Write(1, UnpackFlagGroup((value>>4)&0xF))
		return true
	case idx == CSRFlagGroup0:
		c.Flags.Write(0, UnpackFlagGroup(value&0xF))
		return true
	case idx == CSRFlagGroup1:
		c.Flags.Write(1, UnpackFlagGroup(value&0xF))
		return true
	case idx >= CSRModBase && idx < CSRModBase+8:
		mod := new(uint256.Int).Set(wsrs.Mod.Read())
		setModWord(mod, int(idx-CSRModBase), value)
		wsrs.Mod.Write(mod)
		return true
	case idx == CSRRndPrefetch:
		// The prefetch side effect (issuing an entropy request) is the
		// caller's responsibility; the write itself has no state.
		return true
	default:
		return false
	}
}

// Wipe stages clearing of the flag groups.
func (c *CSRFile) Wipe() {
	c.Flags.Wipe()
}

// Changes returns this cycle's pending flag commits.
func (c *CSRFile) Changes() []trace.Entry {
	return c.Flags.Changes()
}

// Commit applies all staged flag writes.
func (c *CSRFile) Commit() {
	c.Flags.Commit()
}

// Abort discards all staged flag writes.
func (c *CSRFile) Abort() {
	c.Flags.Abort()
}

func modWord(mod *uint256.Int, i int) uint32 {
	v := new(uint256.Int).Rsh(mod, uint(32*i))
	return uint32(v.Uint64())
}

func setModWord(mod *uint256.Int, i int, value uint32) {
	mask := new(uint256.Int).SetUint64(0xFFFFFFFF)
	mask.Lsh(mask, uint(32*i))
	mod.And(mod, new(uint256.Int).Not(mask))

	word := new(uint256.Int).SetUint64(uint64(value))
	word.Lsh(word, uint(32*i))
	mod.Or(mod, word)
}
