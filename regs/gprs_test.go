package regs_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bnsim/regs"
)

func TestRegs(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Regs Suite")
}

var _ = Describe("GPRs", func() {
	var g *regs.GPRs

	BeforeEach(func() {
		g = regs.NewGPRs()
	})

	It("should read x0 as zero", func() {
		Expect(g.ReadReg(0)).To(Equal(uint32(0)))
	})

	It("should ignore writes to x0", func() {
		g.WriteReg(0, 42)
		g.Commit()

		Expect(g.ReadReg(0)).To(Equal(uint32(0)))
	})

	It("should see a staged write before commit", func() {
		g.WriteReg(5, 42)

		Expect(g.ReadReg(5)).To(Equal(uint32(42)))
	})

	It("should discard a staged write at abort", func() {
		g.WriteReg(5, 42)
		g.Abort()

		Expect(g.ReadReg(5)).To(Equal(uint32(0)))
	})

	Describe("call stack", func() {
		It("should pop what was pushed", func() {
			g.WriteReg(1, 0x100)
			g.Commit()

			Expect(g.ReadReg(1)).To(Equal(uint32(0x100)))
		})

		It("should flag underflow on an empty stack", func() {
			Expect(g.ReadReg(1)).To(Equal(uint32(0)))
			Expect(g.CallStackErr()).To(BeTrue())
		})

		It("should clear the error flag at commit", func() {
			g.ReadReg(1)
			g.Commit()

			Expect(g.CallStackErr()).To(BeFalse())
		})

		It("should flag overflow when full", func() {
			for i := 0; i < regs.CallStackDepth; i++ {
				g.WriteReg(1, uint32(i))
				g.Commit()
			}

			g.WriteReg(1, 99)
			Expect(g.CallStackErr()).To(BeTrue())
		})

		It("should allow a push in the cycle that also pops", func() {
			for i := 0; i < regs.CallStackDepth; i++ {
				g.WriteReg(1, uint32(i))
				g.Commit()
			}

			// Full stack: a same-cycle pop makes room for the push.
			Expect(g.ReadReg(1)).To(Equal(uint32(regs.CallStackDepth - 1)))
			g.WriteReg(1, 0xAB)
			Expect(g.CallStackErr()).To(BeFalse())
			g.Commit()

			Expect(g.ReadReg(1)).To(Equal(uint32(0xAB)))
		})

		It("should not change the stack on abort", func() {
			g.WriteReg(1, 0x100)
			g.Commit()

			g.ReadReg(1)
			g.WriteReg(1, 0x200)
			g.Abort()

			Expect(g.PeekCallStack()).To(Equal([]uint32{0x100}))
		})

		It("should apply pop before push at commit", func() {
			g.WriteReg(1, 0x100)
			g.Commit()

			g.ReadReg(1)
			g.WriteReg(1, 0x200)
			g.Commit()

			Expect(g.PeekCallStack()).To(Equal([]uint32{0x200}))
		})
	})

	Describe("wipe", func() {
		It("should erase registers and the stack at commit", func() {
			g.WriteReg(5, 42)
			g.WriteReg(1, 0x100)
			g.Commit()

			g.Wipe()
			g.Commit()

			Expect(g.ReadReg(5)).To(Equal(uint32(0xFFFFFFFF)))
			Expect(g.PeekCallStack()).To(BeEmpty())
		})

		It("should not erase before commit", func() {
			g.WriteReg(1, 0x100)
			g.Commit()

			g.Wipe()

			Expect(g.PeekCallStack()).To(Equal([]uint32{0x100}))
		})
	})
})
