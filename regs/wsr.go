package regs

import (
	"math/bits"

	"github.com/holiman/uint256"

	"github.com/sarchlab/bnsim/staged"
	"github.com/sarchlab/bnsim/trace"
)

// WSRFile holds the wide special registers. MOD and the sideload keys
// persist across runs; ACC and the RND cache are reset by the start
// protocol. URND is committed unconditionally every cycle so that it
// keeps running even in otherwise idle states.
type WSRFile struct {
	Mod *staged.Reg256
	Acc *staged.Reg256

	URND *URND

	// RND cache. A value arrives from the entropy source together with
	// FIPS and repetition health-check flags and stays cached until it
	// is consumed.
	rndValue   staged.Reg256
	rndValid   bool
	rndPending bool
	rndFips    bool
	rndRep     bool

	// Sideload keys. They are driven from outside the machine, so they
	// are not staged; a secure wipe erases them and the provider must
	// supply them again.
	key0, key1 uint256.Int
	keysValid  bool
}

// NewWSRFile creates a wide special register file.
func NewWSRFile() *WSRFile {
	return &WSRFile{
		Mod:  staged.NewReg256(),
		Acc:  staged.NewReg256(),
		URND: NewURND(),
	}
}

// OnStart resets the registers that do not persist across runs.
func (w *WSRFile) OnStart() {
	w.Acc.Abort()
	w.Acc.Write(new(uint256.Int))
	w.Acc.Commit()
	w.rndValid = false
	w.rndPending = false
	w.rndFips = false
	w.rndRep = false
}

// SetRnd stages a fresh entropy value with its health-check flags.
func (w *WSRFile) SetRnd(value *uint256.Int, fipsErr, repErr bool) {
	w.rndValue.Write(value)
	w.rndPending = true
	w.rndFips = fipsErr
	w.rndRep = repErr
}

// TakeRnd consumes the cached entropy value, returning it along with
// the FIPS and repetition health-check flags that arrived with it.
func (w *WSRFile) TakeRnd() (value *uint256.Int, ok, fipsErr, repErr bool) {
	if !w.rndValid {
		return nil, false, false, false
	}
	w.rndValid = false
	return w.rndValue.Committed(), true, w.rndFips, w.rndRep
}

// SetKeys loads the sideload keys from the external provider.
func (w *WSRFile) SetKeys(k0, k1 *uint256.Int) {
	w.key0.Set(k0)
	w.key1.Set(k1)
	w.keysValid = true
}

// ClearKeys withdraws the sideload keys.
func (w *WSRFile) ClearKeys() {
	w.key0.SetUint64(0)
	w.key1.SetUint64(0)
	w.keysValid = false
}

// KeysValid reports whether the sideload keys are present.
func (w *WSRFile) KeysValid() bool {
	return w.keysValid
}

// ReadKey returns sideload key half 0 or 1. The second return value is
// false when no valid keys are present.
func (w *WSRFile) ReadKey(half int) (*uint256.Int, bool) {
	if !w.keysValid {
		return nil, false
	}
	if half == 0 {
		return w.key0.Clone(), true
	}
	return w.key1.Clone(), true
}

// Wipe stages the fixed erasure pattern into the wipeable registers.
// The sideload keys are overwritten in place and marked invalid until
// the provider supplies them again. URND is deliberately left running;
// it is the erasure entropy source.
func (w *WSRFile) Wipe() {
	w.Mod.Write(wideWipePattern)
	w.Acc.Write(wideWipePattern)
	w.rndValid = false
	w.rndPending = false
	w.key0.Set(wideWipePattern)
	w.key1.Set(wideWipePattern)
	w.keysValid = false
}

// Changes returns this cycle's pending commits.
func (w *WSRFile) Changes() []trace.Entry {
	var c []trace.Entry
	if v, ok := w.Mod.Pending(); ok {
		c = append(c, trace.WSR{Name: "MOD", Value: v.Clone()})
	}
	if v, ok := w.Acc.Pending(); ok {
		c = append(c, trace.WSR{Name: "ACC", Value: v.Clone()})
	}
	if w.rndPending {
		if v, ok := w.rndValue.Pending(); ok {
			c = append(c, trace.WSR{Name: "RND", Value: v.Clone()})
		}
	}
	return c
}

// Commit applies all staged writes except URND, which has its own
// unconditional per-cycle commit.
func (w *WSRFile) Commit() {
	w.Mod.Commit()
	w.Acc.Commit()
	if w.rndPending {
		w.rndValue.Commit()
		w.rndValid = true
		w.rndPending = false
	}
}

// Abort discards all staged writes except URND.
func (w *WSRFile) Abort() {
	w.Mod.Abort()
	w.Acc.Abort()
	if w.rndPending {
		w.rndValue.Abort()
		w.rndPending = false
	}
}

// URND models the xoshiro256++ pseudo-random generator that supplies
// per-cycle randomness. It is reseeded from a 256-bit entropy word and
// produces a fresh 256-bit output each committed cycle.
type URND struct {
	state  [4]uint64
	seeded bool

	pendingSeed [4]uint64
	seedStaged  bool

	out uint256.Int
}

// NewURND creates an unseeded generator. Its output is all zeros until
// the first seed arrives.
func NewURND() *URND {
	return &URND{}
}

// SetSeed stages a reseed from four 64-bit entropy words.
func (u *URND) SetSeed(words [4]uint64) {
	u.pendingSeed = words
	u.seedStaged = true
}

// Seeded reports whether a seed has ever been committed.
func (u *URND) Seeded() bool {
	return u.seeded
}

// Value returns the current 256-bit output. It is stable within a
// cycle.
func (u *URND) Value() *uint256.Int {
	return &u.out
}

// Commit applies a staged reseed, or advances the generator by one
// cycle if it is already running. Called unconditionally every cycle.
func (u *URND) Commit() {
	if u.seedStaged {
		u.state = u.pendingSeed
		u.seedStaged = false
		u.seeded = true
		u.refreshOut()
		return
	}
	if u.seeded {
		u.refreshOut()
	}
}

// Abort discards a staged reseed.
func (u *URND) Abort() {
	u.seedStaged = false
}

func (u *URND) refreshOut() {
	var words [4]uint64
	for i := range words {
		words[i] = u.next()
	}
	u.out.SetUint64(0)
	for i := 3; i >= 0; i-- {
		u.out.Lsh(&u.out, 64)
		u.out.Or(&u.out, new(uint256.Int).SetUint64(words[i]))
	}
}

// next advances the xoshiro256++ state and returns the next output.
func (u *URND) next() uint64 {
	s := &u.state
	result := bits.RotateLeft64(s[0]+s[3], 23) + s[0]

	t := s[1] << 17
	s[2] ^= s[0]
	s[3] ^= s[1]
	s[1] ^= s[2]
	s[0] ^= s[3]
	s[2] ^= t
	s[3] = bits.RotateLeft64(s[3], 45)

	return result
}
