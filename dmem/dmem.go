// Package dmem models the accelerator's data memory with staged writes
// and 256-bit-granule validity tracking. A granule becomes invalid when
// the memory is securely wiped; loads from invalid granules report an
// integrity fault instead of data.
package dmem

import (
	"github.com/holiman/uint256"

	"github.com/sarchlab/bnsim/trace"
)

// DefaultSizeBytes is the data-memory size used when none is given.
const DefaultSizeBytes = 4096

// granuleBytes is the validity-tracking granularity.
const granuleBytes = 32

// wordWipePattern is the erasure value observed per 32-bit word.
const wordWipePattern = 0xFFFFFFFF

type pendingWrite struct {
	addr  uint32
	value uint32
}

// Dmem is the staged data memory.
type Dmem struct {
	words []uint32
	valid []bool // one per 256-bit granule

	pending    []pendingWrite
	wipeStaged bool
}

// New creates a memory of the given size in bytes, which must be a
// positive multiple of the 32-byte granule size. All granules start
// valid and zeroed.
func New(sizeBytes uint32) *Dmem {
	if sizeBytes == 0 || sizeBytes%granuleBytes != 0 {
		panic("dmem: size must be a positive multiple of 32 bytes")
	}
	m := &Dmem{
		words: make([]uint32, sizeBytes/4),
		valid: make([]bool, sizeBytes/granuleBytes),
	}
	for i := range m.valid {
		m.valid[i] = true
	}
	return m
}

// SizeBytes returns the memory size in bytes.
func (m *Dmem) SizeBytes() uint32 {
	return uint32(len(m.words)) * 4
}

// LoadWord reads the aligned 32-bit word at addr, seeing same-cycle
// staged writes. ok is false for an out-of-range or unaligned address
// or a load from a wiped granule.
func (m *Dmem) LoadWord(addr uint32) (value uint32, ok bool) {
	if !m.wordAddrOK(addr) || !m.valid[addr/granuleBytes] {
		return 0, false
	}
	for i := len(m.pending) - 1; i >= 0; i-- {
		if m.pending[i].addr == addr {
			return m.pending[i].value, true
		}
	}
	return m.words[addr/4], true
}

// StoreWord stages a 32-bit store. ok is false for an out-of-range or
// unaligned address.
func (m *Dmem) StoreWord(addr, value uint32) (ok bool) {
	if !m.wordAddrOK(addr) {
		return false
	}
	m.pending = append(m.pending, pendingWrite{addr: addr, value: value})
	return true
}

// LoadWide reads the aligned 256-bit value at addr.
func (m *Dmem) LoadWide(addr uint32) (value *uint256.Int, ok bool) {
	if addr%granuleBytes != 0 || addr+granuleBytes > m.SizeBytes() {
		return nil, false
	}
	out := new(uint256.Int)
	for i := granuleBytes - 4; i >= 0; i -= 4 {
		w, wOK := m.LoadWord(addr + uint32(i))
		if !wOK {
			return nil, false
		}
		out.Lsh(out, 32)
		out.Or(out, new(uint256.Int).SetUint64(uint64(w)))
	}
	return out, true
}

// StoreWide stages an aligned 256-bit store.
func (m *Dmem) StoreWide(addr uint32, value *uint256.Int) (ok bool) {
	if addr%granuleBytes != 0 || addr+granuleBytes > m.SizeBytes() {
		return false
	}
	v := new(uint256.Int).Set(value)
	for i := 0; i < granuleBytes; i += 4 {
		m.StoreWord(addr+uint32(i), uint32(v.Uint64()))
		v.Rsh(v, 32)
	}
	return true
}

// Wipe stages a whole-memory erasure: every word takes the erasure
// pattern and every granule becomes invalid at commit.
func (m *Dmem) Wipe() {
	m.wipeStaged = true
}

// Changes returns this cycle's pending commits in store order.
func (m *Dmem) Changes() []trace.Entry {
	var c []trace.Entry
	for _, w := range m.pending {
		c = append(c, trace.Mem{Addr: w.addr, Value: w.value})
	}
	if m.wipeStaged {
		c = append(c, trace.MemWipe{})
	}
	return c
}

// Commit applies staged stores, then a staged wipe if one is pending.
func (m *Dmem) Commit() {
	for _, w := range m.pending {
		m.words[w.addr/4] = w.value
		m.valid[w.addr/granuleBytes] = true
	}
	m.pending = nil
	if m.wipeStaged {
		m.eraseNow()
		m.wipeStaged = false
	}
}

// Abort discards staged stores and a staged wipe.
func (m *Dmem) Abort() {
	m.pending = nil
	m.wipeStaged = false
}

// EraseNow performs an immediate, unstaged erasure. It is used by the
// explicit wipe-memory command, which runs outside any instruction and
// therefore outside the staged path.
func (m *Dmem) EraseNow() {
	m.pending = nil
	m.wipeStaged = false
	m.eraseNow()
}

func (m *Dmem) eraseNow() {
	for i := range m.words {
		m.words[i] = wordWipePattern
	}
	for i := range m.valid {
		m.valid[i] = false
	}
}

func (m *Dmem) wordAddrOK(addr uint32) bool {
	return addr%4 == 0 && addr+4 <= m.SizeBytes()
}
