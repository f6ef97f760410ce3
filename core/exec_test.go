package core_test

import (
	"github.com/holiman/uint256"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bnsim/core"
	"github.com/sarchlab/bnsim/extregs"
	"github.com/sarchlab/bnsim/regs"
)

var _ = Describe("Sim with an executor", func() {
	var (
		m    *core.Sim
		pump *ednPump
		exec *scriptedExec
	)

	reachExec := func() {
		settleToIdle(m, pump)
		m.StartRun()
		ok := runUntil(m, pump, 100, func() bool {
			return m.State.FsmState() == core.StateExec
		})
		ExpectWithOffset(1, ok).To(BeTrue())
	}

	BeforeEach(func() {
		exec = &scriptedExec{fn: func(s *core.State) bool { return false }}
		m = core.NewSim(exec)
		pump = &ednPump{}
	})

	It("should commit an instruction's writes and advance the PC", func() {
		exec.fn = func(s *core.State) bool {
			s.GPRs.WriteReg(5, 42)
			s.PostInsn(nil)
			return false
		}
		reachExec()
		pump.tick(m.State)
		m.StepCycle()

		Expect(m.State.GPRs.ReadReg(5)).To(Equal(uint32(42)))
		Expect(m.State.PC()).To(Equal(uint32(4)))
	})

	It("should hold the PC on a stall", func() {
		exec.fn = func(s *core.State) bool { return true }
		reachExec()
		pump.tick(m.State)
		m.StepCycle()

		Expect(m.State.PC()).To(Equal(uint32(0)))
	})

	It("should roll back a faulting instruction's writes", func() {
		exec.fn = func(s *core.State) bool {
			s.GPRs.WriteReg(5, 42)
			s.StopAtEndOfCycle(core.ErrIllegalInsn)
			return false
		}
		reachExec()
		before := m.State.GPRs.ReadReg(5)
		pump.tick(m.State)
		m.StepCycle()

		Expect(m.State.GPRs.ReadReg(5)).To(Equal(before))
		Expect(m.State.ExtRegs.Read(extregs.ErrBits)).
			To(Equal(uint32(core.ErrIllegalInsn)))
	})

	It("should count retired instructions", func() {
		exec.fn = func(s *core.State) bool {
			s.PostInsn(nil)
			return false
		}
		reachExec()
		for i := 0; i < 3; i++ {
			pump.tick(m.State)
			m.StepCycle()
		}

		Expect(m.State.ExtRegs.Read(extregs.InsnCnt)).To(Equal(uint32(3)))
	})

	It("should fault when execution runs off instruction memory", func() {
		m = core.NewSim(exec, core.WithImemSize(8))
		exec.fn = func(s *core.State) bool {
			s.PostInsn(nil)
			return false
		}
		reachExec()

		ok := runUntil(m, pump, 1000, func() bool {
			return m.State.FsmState() == core.StateIdle &&
				m.State.ExtRegs.Read(extregs.ErrBits) != 0
		})
		Expect(ok).To(BeTrue())
		Expect(m.State.ExtRegs.Read(extregs.ErrBits)).
			To(Equal(uint32(core.ErrBadInsnAddr)))
	})

	It("should fault on a call-stack underflow", func() {
		exec.fn = func(s *core.State) bool {
			s.GPRs.ReadReg(1)
			s.PostInsn(nil)
			return false
		}
		reachExec()
		pump.tick(m.State)
		m.StepCycle()

		Expect(m.State.ExtRegs.Read(extregs.ErrBits)).
			To(Equal(uint32(core.ErrCallStack)))
		Expect(m.State.FsmState()).To(Equal(core.StatePreWipe))
	})

	It("should run a hardware loop back to its start", func() {
		step := 0
		exec.fn = func(s *core.State) bool {
			if step == 0 {
				// LOOPI 2, body of one instruction at PC+4.
				s.LoopStart(2, 1)
			}
			step++
			s.PostInsn(nil)
			return false
		}
		reachExec()

		pump.tick(m.State)
		m.StepCycle() // loop setup at pc 0
		Expect(m.State.PC()).To(Equal(uint32(4)))

		pump.tick(m.State)
		m.StepCycle() // body end, first iteration: jump back
		Expect(m.State.PC()).To(Equal(uint32(4)))
		Expect(m.State.InLoop()).To(BeTrue())

		pump.tick(m.State)
		m.StepCycle() // body end, last iteration: fall through
		Expect(m.State.PC()).To(Equal(uint32(8)))
		Expect(m.State.InLoop()).To(BeFalse())
	})

	Describe("entropy consumption", func() {
		// readRnd stalls until the entropy value arrives, issuing the
		// request underneath via the CSR read.
		readRnd := func(got *uint64) func(s *core.State) bool {
			return func(s *core.State) bool {
				v, ok := s.ReadCSR(regs.CSRRnd)
				if !ok {
					return true
				}
				*got = uint64(v)
				s.PostInsn(nil)
				return false
			}
		}

		It("should deliver a healthy value without error", func() {
			var got uint64
			exec.fn = readRnd(&got)
			reachExec()

			ok := runUntil(m, pump, 100, func() bool {
				return m.State.PC() == 4
			})
			Expect(ok).To(BeTrue())
			Expect(got).NotTo(BeZero())
			Expect(m.State.ErrBitsAccum()).To(BeZero())
		})

		It("should lock when consuming a FIPS-flagged value", func() {
			var got uint64
			exec.fn = readRnd(&got)
			pump.rndFips = true
			reachExec()

			ok := runUntil(m, pump, 1000, func() bool {
				return m.State.FsmState() == core.StateLocked
			})
			Expect(ok).To(BeTrue())
			Expect(got).NotTo(BeZero())
			Expect(m.State.ExtRegs.Read(extregs.ErrBits)).
				To(Equal(uint32(core.ErrRndFipsChkFail)))
		})

		It("should stop the run when consuming a repeated-word value", func() {
			exec.fn = func(s *core.State) bool {
				if _, ok := s.ReadWsrRnd(); !ok {
					return true
				}
				s.PostInsn(nil)
				return false
			}
			reachExec()
			m.State.WSRs.SetRnd(uint256.NewInt(9), false, true)
			m.State.WSRs.Commit()

			ok := runUntil(m, pump, 1000, func() bool {
				return m.State.FsmState() == core.StateIdle
			})
			Expect(ok).To(BeTrue())
			Expect(m.State.ExtRegs.Read(extregs.ErrBits)).
				To(Equal(uint32(core.ErrRndRepChkFail)))
		})
	})

	Describe("sideload keys", func() {
		It("should fault a key read when no valid keys are present", func() {
			exec.fn = func(s *core.State) bool {
				s.ReadWsrKey(0)
				s.PostInsn(nil)
				return false
			}
			reachExec()

			ok := runUntil(m, pump, 1000, func() bool {
				return m.State.FsmState() == core.StateIdle &&
					m.State.ExtRegs.Read(extregs.ErrBits) != 0
			})
			Expect(ok).To(BeTrue())
			Expect(m.State.ExtRegs.Read(extregs.ErrBits)).
				To(Equal(uint32(core.ErrKeyInvalid)))
		})

		It("should read both key halves while they are valid", func() {
			var k0, k1 uint64
			exec.fn = func(s *core.State) bool {
				if v, ok := s.ReadWsrKey(0); ok {
					k0 = v.Uint64()
				}
				if v, ok := s.ReadWsrKey(1); ok {
					k1 = v.Uint64()
				}
				s.StopAtEndOfCycle(0)
				return false
			}
			reachExec()
			m.State.WSRs.SetKeys(uint256.NewInt(0x11), uint256.NewInt(0x22))
			pump.tick(m.State)
			m.StepCycle()

			Expect(k0).To(Equal(uint64(0x11)))
			Expect(k1).To(Equal(uint64(0x22)))
			Expect(m.State.ErrBitsAccum()).To(BeZero())
		})
	})

	It("should fault on a control-flow instruction ending a loop body", func() {
		step := 0
		exec.fn = func(s *core.State) bool {
			if step == 0 {
				s.LoopStart(2, 1)
			} else {
				// The body's only instruction claims to branch.
				s.PreInsn(true)
			}
			step++
			s.PostInsn(nil)
			return false
		}
		reachExec()

		pump.tick(m.State)
		m.StepCycle()
		pump.tick(m.State)
		m.StepCycle()

		Expect(m.State.ExtRegs.Read(extregs.ErrBits)).
			To(Equal(uint32(core.ErrLoop)))
	})
})
