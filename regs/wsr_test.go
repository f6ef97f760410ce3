package regs_test

import (
	"github.com/holiman/uint256"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/bnsim/regs"
)

var _ = Describe("WSRFile", func() {
	var w *regs.WSRFile

	BeforeEach(func() {
		w = regs.NewWSRFile()
	})

	Describe("RND cache", func() {
		It("should have no value before one arrives", func() {
			_, ok, _, _ := w.TakeRnd()
			Expect(ok).To(BeFalse())
		})

		It("should cache a value after commit", func() {
			w.SetRnd(uint256.NewInt(7), false, false)
			w.Commit()

			v, ok, _, _ := w.TakeRnd()
			Expect(ok).To(BeTrue())
			Expect(v.Uint64()).To(Equal(uint64(7)))
		})

		It("should consume the value exactly once", func() {
			w.SetRnd(uint256.NewInt(7), true, false)
			w.Commit()

			v, ok, fips, rep := w.TakeRnd()
			Expect(ok).To(BeTrue())
			Expect(v.Uint64()).To(Equal(uint64(7)))
			Expect(fips).To(BeTrue())
			Expect(rep).To(BeFalse())

			_, ok, _, _ = w.TakeRnd()
			Expect(ok).To(BeFalse())
		})

		It("should drop a staged value on abort", func() {
			w.SetRnd(uint256.NewInt(7), false, false)
			w.Abort()

			_, ok, _, _ := w.TakeRnd()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("sideload keys", func() {
		It("should be absent until loaded", func() {
			Expect(w.KeysValid()).To(BeFalse())
			_, ok := w.ReadKey(0)
			Expect(ok).To(BeFalse())
		})

		It("should return both halves once loaded", func() {
			w.SetKeys(uint256.NewInt(0x11), uint256.NewInt(0x22))

			k0, ok := w.ReadKey(0)
			Expect(ok).To(BeTrue())
			Expect(k0.Uint64()).To(Equal(uint64(0x11)))

			k1, ok := w.ReadKey(1)
			Expect(ok).To(BeTrue())
			Expect(k1.Uint64()).To(Equal(uint64(0x22)))
		})

		It("should be withdrawable", func() {
			w.SetKeys(uint256.NewInt(0x11), uint256.NewInt(0x22))
			w.ClearKeys()

			_, ok := w.ReadKey(0)
			Expect(ok).To(BeFalse())
		})

		It("should survive the start protocol", func() {
			w.SetKeys(uint256.NewInt(0x11), uint256.NewInt(0x22))
			w.OnStart()

			Expect(w.KeysValid()).To(BeTrue())
		})

		It("should be erased and invalidated by a wipe", func() {
			w.SetKeys(uint256.NewInt(0x11), uint256.NewInt(0x22))
			w.Wipe()

			Expect(w.KeysValid()).To(BeFalse())
			_, ok := w.ReadKey(0)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("OnStart", func() {
		It("should clear ACC and the RND cache", func() {
			w.Acc.Write(uint256.NewInt(5))
			w.Acc.Commit()
			w.SetRnd(uint256.NewInt(7), false, false)
			w.Commit()

			w.OnStart()

			Expect(w.Acc.Read().IsZero()).To(BeTrue())
			_, ok, _, _ := w.TakeRnd()
			Expect(ok).To(BeFalse())
		})

		It("should keep MOD", func() {
			w.Mod.Write(uint256.NewInt(5))
			w.Mod.Commit()

			w.OnStart()

			Expect(w.Mod.Read().Uint64()).To(Equal(uint64(5)))
		})
	})

	Describe("Wipe", func() {
		It("should stage the erasure pattern into MOD and ACC", func() {
			w.Mod.Write(uint256.NewInt(5))
			w.Mod.Commit()

			w.Wipe()
			w.Commit()

			allOnes := new(uint256.Int).Not(new(uint256.Int))
			Expect(w.Mod.Read().Eq(allOnes)).To(BeTrue())
			Expect(w.Acc.Read().Eq(allOnes)).To(BeTrue())
		})
	})
})

var _ = Describe("URND", func() {
	var u *regs.URND

	BeforeEach(func() {
		u = regs.NewURND()
	})

	It("should output zero until seeded", func() {
		u.Commit()
		Expect(u.Value().IsZero()).To(BeTrue())
		Expect(u.Seeded()).To(BeFalse())
	})

	It("should produce output once a seed commits", func() {
		u.SetSeed([4]uint64{1, 2, 3, 4})
		u.Commit()

		Expect(u.Seeded()).To(BeTrue())
		Expect(u.Value().IsZero()).To(BeFalse())
	})

	It("should advance every commit", func() {
		u.SetSeed([4]uint64{1, 2, 3, 4})
		u.Commit()
		first := u.Value().Clone()
		u.Commit()

		Expect(u.Value().Eq(first)).To(BeFalse())
	})

	It("should be deterministic for a given seed", func() {
		other := regs.NewURND()
		u.SetSeed([4]uint64{1, 2, 3, 4})
		other.SetSeed([4]uint64{1, 2, 3, 4})
		u.Commit()
		other.Commit()

		Expect(u.Value().Eq(other.Value())).To(BeTrue())
	})

	It("should discard a staged seed on abort", func() {
		u.SetSeed([4]uint64{1, 2, 3, 4})
		u.Abort()
		u.Commit()

		Expect(u.Seeded()).To(BeFalse())
	})
})
