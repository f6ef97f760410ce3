// Package trace defines the commit-event entries that the model emits
// once per cycle. A lock-step checker diffs the rendered entries against
// the reference design's trace, so both the rendering and the order in
// which entries are collected must be deterministic.
package trace

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Entry is a single committed state change.
type Entry interface {
	// String renders the entry in its canonical trace form.
	String() string
}

// PC records the committed program counter after a jump or branch.
type PC struct {
	Value uint32
}

func (e PC) String() string {
	return fmt.Sprintf("pc = %#010x", e.Value)
}

// GPR records a committed write to a general-purpose register.
type GPR struct {
	Index int
	Value uint32
}

func (e GPR) String() string {
	return fmt.Sprintf("x%d = %#010x", e.Index, e.Value)
}

// WDR records a committed write to a wide data register.
type WDR struct {
	Index int
	Value *uint256.Int
}

func (e WDR) String() string {
	return fmt.Sprintf("w%d = %#066x", e.Index, e.Value)
}

// WSR records a committed write to a wide special register.
type WSR struct {
	Name  string
	Value *uint256.Int
}

func (e WSR) String() string {
	return fmt.Sprintf("%s = %#066x", e.Name, e.Value)
}

// Mem records a committed 32-bit data-memory write.
type Mem struct {
	Addr  uint32
	Value uint32
}

func (e Mem) String() string {
	return fmt.Sprintf("dmem[%#x] = %#010x", e.Addr, e.Value)
}

// MemWipe records a whole-memory erasure.
type MemWipe struct{}

func (e MemWipe) String() string {
	return "dmem wiped"
}

// ExtReg records a committed write to an externally visible register.
type ExtReg struct {
	Name  string
	Value uint32
}

func (e ExtReg) String() string {
	return fmt.Sprintf("%s = %#010x", e.Name, e.Value)
}

// Flags records a committed write to one flag group.
type Flags struct {
	Group int
	C     bool
	M     bool
	L     bool
	Z     bool
}

func (e Flags) String() string {
	return fmt.Sprintf("FG%d = {C: %d, M: %d, L: %d, Z: %d}",
		e.Group, b2i(e.C), b2i(e.M), b2i(e.L), b2i(e.Z))
}

// LoopPush records a committed push of a hardware-loop frame.
type LoopPush struct {
	StartPC    uint32
	EndPC      uint32
	Iterations uint32
}

func (e LoopPush) String() string {
	return fmt.Sprintf("loop push [%#x..%#x] x %d",
		e.StartPC, e.EndPC, e.Iterations)
}

// LoopIter records a committed iteration-count update of the top frame.
type LoopIter struct {
	Remaining uint32
}

func (e LoopIter) String() string {
	return fmt.Sprintf("loop iterations = %d", e.Remaining)
}

// LoopPop records a committed pop of the finished top frame.
type LoopPop struct{}

func (e LoopPop) String() string {
	return "loop pop"
}

// CallStackPush records a committed push onto the x1 call stack.
type CallStackPush struct {
	Value uint32
}

func (e CallStackPush) String() string {
	return fmt.Sprintf("call stack push %#010x", e.Value)
}

// CallStackPop records a committed pop from the x1 call stack.
type CallStackPop struct{}

func (e CallStackPop) String() string {
	return "call stack pop"
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
