package regs

import (
	"github.com/holiman/uint256"

	"github.com/sarchlab/bnsim/staged"
	"github.com/sarchlab/bnsim/trace"
)

// NumWDRs is the number of wide data registers.
const NumWDRs = 32

// wideWipePattern is the fixed erasure value for 256-bit registers.
var wideWipePattern = func() *uint256.Int {
	v := new(uint256.Int)
	v.Not(v)
	return v
}()

// WDRs is the wide (256-bit) data register file.
type WDRs struct {
	regs [NumWDRs]*staged.Reg256
}

// NewWDRs creates a wide register file committed to zero.
func NewWDRs() *WDRs {
	w := &WDRs{}
	for i := range w.regs {
		w.regs[i] = staged.NewReg256()
	}
	return w
}

// ReadReg reads a wide register, seeing same-cycle staged writes.
func (w *WDRs) ReadReg(idx int) *uint256.Int {
	return w.regs[idx].Read()
}

// WriteReg stages a wide register write.
func (w *WDRs) WriteReg(idx int, value *uint256.Int) {
	w.regs[idx].Write(value)
}

// Wipe stages the fixed erasure pattern into every register.
func (w *WDRs) Wipe() {
	for i := range w.regs {
		w.regs[i].Write(wideWipePattern)
	}
}

// Changes returns this cycle's pending commits in index order.
func (w *WDRs) Changes() []trace.Entry {
	var c []trace.Entry
	for i := range w.regs {
		if v, ok := w.regs[i].Pending(); ok {
			c = append(c, trace.WDR{Index: i, Value: v.Clone()})
		}
	}
	return c
}

// Commit applies all staged writes.
func (w *WDRs) Commit() {
	for i := range w.regs {
		w.regs[i].Commit()
	}
}

// Abort discards all staged writes.
func (w *WDRs) Abort() {
	for i := range w.regs {
		w.regs[i].Abort()
	}
}
