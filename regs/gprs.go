// Package regs provides the staged register files of the accelerator:
// general registers with the x1 hardware call stack, wide data
// registers, flag groups, CSRs and wide special registers.
package regs

import (
	"github.com/sarchlab/bnsim/staged"
	"github.com/sarchlab/bnsim/trace"
)

// NumGPRs is the number of general-purpose registers.
const NumGPRs = 32

// CallStackDepth is the depth of the x1 hardware call stack.
const CallStackDepth = 8

// wipePattern is the fixed erasure value for 32-bit registers.
const wipePattern = 0xFFFFFFFF

// GPRs is the general-purpose register file. x0 is hardwired to zero
// and x1 is the top of an 8-deep hardware call stack: reading x1 pops,
// writing x1 pushes. Both operations are staged and only take effect at
// commit, so a faulting instruction leaves the stack untouched.
type GPRs struct {
	regs [NumGPRs]*staged.Reg32

	// Committed call stack, bottom first.
	stack []uint32

	popStaged  bool
	pushStaged bool
	pushValue  uint32
	wipeStaged bool

	callStackErr bool
}

// NewGPRs creates an empty register file with an empty call stack.
func NewGPRs() *GPRs {
	g := &GPRs{}
	for i := range g.regs {
		g.regs[i] = staged.NewReg32(0)
	}
	return g
}

// ReadReg reads a register. x0 reads as zero. Reading x1 stages a pop
// of the call stack; reading from an empty stack flags a call-stack
// error and returns zero.
func (g *GPRs) ReadReg(idx int) uint32 {
	switch idx {
	case 0:
		return 0
	case 1:
		if len(g.stack) == 0 {
			g.callStackErr = true
			return 0
		}
		g.popStaged = true
		return g.stack[len(g.stack)-1]
	default:
		return g.regs[idx].Read()
	}
}

// WriteReg stages a register write. Writes to x0 are ignored. Writing
// x1 stages a push; pushing onto a full stack flags a call-stack error.
func (g *GPRs) WriteReg(idx int, value uint32) {
	switch idx {
	case 0:
		return
	case 1:
		depth := len(g.stack)
		if g.popStaged {
			depth--
		}
		if depth >= CallStackDepth {
			g.callStackErr = true
			return
		}
		g.pushStaged = true
		g.pushValue = value
	default:
		g.regs[idx].Write(value)
	}
}

// CallStackErr reports whether this cycle's accesses under- or
// overflowed the call stack. The flag is cleared at commit or abort.
func (g *GPRs) CallStackErr() bool {
	return g.callStackErr
}

// PeekCallStack returns a copy of the committed call stack, bottom
// first.
func (g *GPRs) PeekCallStack() []uint32 {
	out := make([]uint32, len(g.stack))
	copy(out, g.stack)
	return out
}

// EmptyCallStack discards the committed call stack. This is a hard
// control reset used by the start protocol, not a staged operation.
func (g *GPRs) EmptyCallStack() {
	g.stack = nil
	g.popStaged = false
	g.pushStaged = false
}

// Wipe stages the fixed erasure pattern into every register and an
// erasure of the call stack.
func (g *GPRs) Wipe() {
	for i := 2; i < NumGPRs; i++ {
		g.regs[i].Write(wipePattern)
	}
	g.wipeStaged = true
}

// Changes returns this cycle's pending commits in trace order.
func (g *GPRs) Changes() []trace.Entry {
	var c []trace.Entry
	for i := 2; i < NumGPRs; i++ {
		if v, ok := g.regs[i].Pending(); ok {
			c = append(c, trace.GPR{Index: i, Value: v})
		}
	}
	if g.popStaged {
		c = append(c, trace.CallStackPop{})
	}
	if g.pushStaged {
		c = append(c, trace.CallStackPush{Value: g.pushValue})
	}
	return c
}

// Commit applies all staged writes and the staged call-stack pop/push.
func (g *GPRs) Commit() {
	for i := 2; i < NumGPRs; i++ {
		g.regs[i].Commit()
	}
	if g.wipeStaged {
		g.stack = nil
		g.wipeStaged = false
		g.popStaged = false
		g.pushStaged = false
		g.callStackErr = false
		return
	}
	if g.popStaged {
		g.stack = g.stack[:len(g.stack)-1]
		g.popStaged = false
	}
	if g.pushStaged {
		g.stack = append(g.stack, g.pushValue)
		g.pushStaged = false
	}
	g.callStackErr = false
}

// Abort discards all staged writes and call-stack operations.
func (g *GPRs) Abort() {
	for i := 2; i < NumGPRs; i++ {
		g.regs[i].Abort()
	}
	g.popStaged = false
	g.pushStaged = false
	g.wipeStaged = false
	g.callStackErr = false
}
