// Package extregs models the externally visible register file: the
// registers a host and a lock-step checker observe (status, error
// bits, final PC, wipe-start pulse, instruction count), plus the
// entropy feed that is delivered through this file with the full
// poison/forget recovery protocol.
package extregs

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/sarchlab/bnsim/edn"
	"github.com/sarchlab/bnsim/staged"
	"github.com/sarchlab/bnsim/trace"
)

// Register names.
const (
	Status          = "STATUS"
	ErrBits         = "ERR_BITS"
	StopPC          = "STOP_PC"
	WipeStart       = "WIPE_START"
	IntrState       = "INTR_STATE"
	InsnCnt         = "INSN_CNT"
	FatalAlertCause = "FATAL_ALERT_CAUSE"
)

// names fixes the trace order of register commits.
var names = []string{
	Status, ErrBits, StopPC, WipeStart, IntrState, InsnCnt, FatalAlertCause,
}

// File is the staged externally visible register file.
type File struct {
	regs map[string]*staged.Reg32

	// pulses records values that were committed mid-cycle with
	// CommitReg, so the change trace still shows them.
	pulses []trace.Entry

	rnd *edn.Client
}

// New creates the register file with all registers zero.
func New() *File {
	f := &File{
		regs: make(map[string]*staged.Reg32, len(names)),
		rnd:  edn.NewClient(),
	}
	for _, n := range names {
		f.regs[n] = staged.NewReg32(0)
	}
	return f
}

func (f *File) reg(name string) *staged.Reg32 {
	r, ok := f.regs[name]
	if !ok {
		panic(fmt.Sprintf("extregs: unknown register %q", name))
	}
	return r
}

// Read returns a register's committed value.
func (f *File) Read(name string) uint32 {
	return f.reg(name).Committed()
}

// Write stages a register write.
func (f *File) Write(name string, value uint32) {
	f.reg(name).Write(value)
}

// SetBits stages an OR of mask into the register.
func (f *File) SetBits(name string, mask uint32) {
	f.reg(name).SetBits(mask)
}

// CommitReg commits a single register immediately. The wipe-start
// pulse uses this: it must be visible for exactly one cycle, starting
// in the cycle the stop protocol raises it. The committed value is
// logged so it still appears in the cycle's change trace.
func (f *File) CommitReg(name string) {
	r := f.reg(name)
	if v, ok := r.Pending(); ok {
		f.pulses = append(f.pulses, trace.ExtReg{Name: name, Value: v})
	}
	r.Commit()
}

// IncrementInsnCnt stages a saturating increment of the instruction
// counter.
func (f *File) IncrementInsnCnt() {
	r := f.reg(InsnCnt)
	v := r.Read()
	if v != 0xFFFFFFFF {
		r.Write(v + 1)
	}
}

// Step advances the entropy feed's crossing timer. Called once per
// cycle regardless of FSM state.
func (f *File) Step() {
	f.rnd.Step()
}

// RndRequest issues an entropy request on the feed.
func (f *File) RndRequest() {
	f.rnd.Request()
}

// RndTakeWord accepts one delivered entropy word.
func (f *File) RndTakeWord(word uint32, fipsErr bool) {
	f.rnd.TakeWord(word, fipsErr)
}

// RndPoison marks any in-flight entropy value as stale.
func (f *File) RndPoison() {
	f.rnd.Poison()
}

// RndForget abandons any outstanding entropy request.
func (f *File) RndForget() {
	f.rnd.Forget()
}

// RndReset abandons in-flight state after an entropy-source reset.
func (f *File) RndReset() {
	f.rnd.EdnReset()
}

// RndPending reports whether an entropy request is outstanding.
func (f *File) RndPending() bool {
	return f.rnd.Pending()
}

// RndCDCReady reports whether a crossed entropy value awaits
// collection.
func (f *File) RndCDCReady() bool {
	return f.rnd.CDCReady()
}

// RndCDCComplete collects the crossed entropy value. A nil value means
// the request was poisoned; the request is re-issued here so the
// consumer eventually gets a fresh value without acting on the retry.
func (f *File) RndCDCComplete() (value *uint256.Int, fipsErr, repErr bool) {
	v, retry, fips, rep := f.rnd.CDCComplete()
	if retry {
		f.rnd.Request()
		return nil, false, false
	}
	return v, fips, rep
}

// Changes returns this cycle's already-committed pulses followed by
// the pending commits in fixed register order.
func (f *File) Changes() []trace.Entry {
	c := append([]trace.Entry(nil), f.pulses...)
	for _, n := range names {
		if v, ok := f.regs[n].Pending(); ok {
			c = append(c, trace.ExtReg{Name: n, Value: v})
		}
	}
	return c
}

// Commit applies all staged writes and closes the cycle's pulse log.
func (f *File) Commit() {
	f.pulses = nil
	for _, n := range names {
		f.regs[n].Commit()
	}
}

// Abort discards all staged writes.
func (f *File) Abort() {
	for _, n := range names {
		f.regs[n].Abort()
	}
}
