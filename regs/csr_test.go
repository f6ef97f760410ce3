package regs_test

import (
	"github.com/holiman/uint256"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bnsim/regs"
)

var _ = Describe("CSRFile", func() {
	var (
		c *regs.CSRFile
		w *regs.WSRFile
	)

	BeforeEach(func() {
		c = regs.NewCSRFile()
		w = regs.NewWSRFile()
	})

	It("should reject an unknown index", func() {
		_, ok := c.Read(0x123, w)
		Expect(ok).To(BeFalse())
		Expect(c.Write(0x123, 1, w)).To(BeFalse())
	})

	Describe("flag access", func() {
		It("should pack both groups into the combined register", func() {
			c.Flags.Write(0, regs.FlagGroup{C: true})
			c.Flags.Write(1, regs.FlagGroup{Z: true})

			v, ok := c.Read(regs.CSRFlags, w)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(0x81)))
		})

		It("should write one group without touching the other", func() {
			c.Flags.Write(1, regs.FlagGroup{Z: true})

			Expect(c.Write(regs.CSRFlagGroup0, 0x3, w)).To(BeTrue())

			Expect(c.Flags.Read(0)).To(Equal(regs.FlagGroup{C: true, M: true}))
			Expect(c.Flags.Read(1)).To(Equal(regs.FlagGroup{Z: true}))
		})
	})

	Describe("MOD limb access", func() {
		It("should read the limbs of MOD", func() {
			mod := new(uint256.Int).SetUint64(0xDEADBEEF_12345678)
			w.Mod.Write(mod)
			w.Mod.Commit()

			lo, ok := c.Read(regs.CSRModBase, w)
			Expect(ok).To(BeTrue())
			Expect(lo).To(Equal(uint32(0x12345678)))

			hi, ok := c.Read(regs.CSRModBase+1, w)
			Expect(ok).To(BeTrue())
			Expect(hi).To(Equal(uint32(0xDEADBEEF)))
		})

		It("should write a single limb in place", func() {
			w.Mod.Write(new(uint256.Int).Not(new(uint256.Int)))
			w.Mod.Commit()

			Expect(c.Write(regs.CSRModBase+2, 0x5555AAAA, w)).To(BeTrue())

			v, _ := c.Read(regs.CSRModBase+2, w)
			Expect(v).To(Equal(uint32(0x5555AAAA)))
			v, _ = c.Read(regs.CSRModBase+3, w)
			Expect(v).To(Equal(uint32(0xFFFFFFFF)))
		})
	})

	It("should read the prefetch trigger as zero", func() {
		v, ok := c.Read(regs.CSRRndPrefetch, w)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(uint32(0)))
	})
})
