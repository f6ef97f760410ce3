package extregs_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bnsim/edn"
	"github.com/sarchlab/bnsim/extregs"
	"github.com/sarchlab/bnsim/trace"
)

func TestExtRegs(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ExtRegs Suite")
}

var _ = Describe("File", func() {
	var f *extregs.File

	BeforeEach(func() {
		f = extregs.New()
	})

	It("should read a staged write only after commit", func() {
		f.Write(extregs.Status, 0x01)

		Expect(f.Read(extregs.Status)).To(Equal(uint32(0)))
		f.Commit()
		Expect(f.Read(extregs.Status)).To(Equal(uint32(0x01)))
	})

	It("should OR bits into a register", func() {
		f.Write(extregs.IntrState, 0x2)
		f.Commit()

		f.SetBits(extregs.IntrState, 0x1)
		f.Commit()

		Expect(f.Read(extregs.IntrState)).To(Equal(uint32(0x3)))
	})

	It("should commit a single register immediately", func() {
		f.Write(extregs.WipeStart, 1)
		f.CommitReg(extregs.WipeStart)

		Expect(f.Read(extregs.WipeStart)).To(Equal(uint32(1)))
	})

	It("should keep an immediately committed value in the change trace", func() {
		f.Write(extregs.WipeStart, 1)
		f.CommitReg(extregs.WipeStart)
		f.Write(extregs.WipeStart, 0)

		Expect(f.Changes()).To(ContainElement(
			trace.ExtReg{Name: extregs.WipeStart, Value: 1}))
		Expect(f.Changes()).To(ContainElement(
			trace.ExtReg{Name: extregs.WipeStart, Value: 0}))

		f.Commit()
		Expect(f.Changes()).To(BeEmpty())
	})

	It("should discard staged writes on abort", func() {
		f.Write(extregs.StopPC, 0x40)
		f.Abort()
		f.Commit()

		Expect(f.Read(extregs.StopPC)).To(Equal(uint32(0)))
	})

	Describe("instruction counter", func() {
		It("should increment across commits", func() {
			f.IncrementInsnCnt()
			f.Commit()
			f.IncrementInsnCnt()
			f.Commit()

			Expect(f.Read(extregs.InsnCnt)).To(Equal(uint32(2)))
		})

		It("should saturate at the maximum", func() {
			f.Write(extregs.InsnCnt, 0xFFFFFFFF)
			f.Commit()

			f.IncrementInsnCnt()
			f.Commit()

			Expect(f.Read(extregs.InsnCnt)).To(Equal(uint32(0xFFFFFFFF)))
		})
	})

	Describe("direct entropy feed", func() {
		deliverPacket := func() {
			for i := 0; i < edn.PacketWords; i++ {
				f.RndTakeWord(uint32(i+1), false)
			}
		}

		It("should cross after the delay", func() {
			f.RndRequest()
			deliverPacket()

			f.Step()
			Expect(f.RndCDCReady()).To(BeFalse())
			f.Step()
			Expect(f.RndCDCReady()).To(BeTrue())

			v, fips, rep := f.RndCDCComplete()
			Expect(v).NotTo(BeNil())
			Expect(fips).To(BeFalse())
			Expect(rep).To(BeFalse())
		})

		It("should return nil after poisoning", func() {
			f.RndRequest()
			deliverPacket()
			f.RndPoison()
			f.Step()
			f.Step()

			v, _, _ := f.RndCDCComplete()
			Expect(v).To(BeNil())
		})

		It("should keep a poisoned request alive", func() {
			f.RndRequest()
			deliverPacket()
			f.RndPoison()
			f.Step()
			f.Step()
			f.RndCDCComplete()

			Expect(f.RndPending()).To(BeTrue())
			deliverPacket()
			f.Step()
			f.Step()

			v, _, _ := f.RndCDCComplete()
			Expect(v).NotTo(BeNil())
		})

		It("should abandon the request on forget", func() {
			f.RndRequest()
			f.RndForget()

			Expect(f.RndPending()).To(BeFalse())
		})

		It("should abandon in-flight state on a source reset", func() {
			f.RndRequest()
			deliverPacket()
			f.RndReset()

			Expect(f.RndPending()).To(BeFalse())
			f.Step()
			f.Step()
			Expect(f.RndCDCReady()).To(BeFalse())
		})
	})
})
