package nodeset

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/circuitid/selection"
)

var _ = Describe("NodeSet", func() {
	var (
		ctx context.Context
		reg *Registry
	)

	BeforeEach(func() {
		ctx = context.Background()
		reg = MakeBuilder().Build()
	})

	It("should track ids without registration", func() {
		set1 := New(1, 2, 3)
		Expect(set1.Offset()).To(Equal(uint64(0)))
		Expect(set1.MaxRawID()).To(Equal(uint64(3)))
		Expect(set1.PopulationName()).To(BeEmpty())

		set2 := New()
		Expect(set2.MaxRawID()).To(Equal(uint64(0)))
		Expect(set2.AddIDs(ctx, []uint64{1, 2, 3}, nil)).To(Succeed())
		Expect(set2.MaxRawID()).To(Equal(uint64(3)))
		Expect(set2.Len()).To(Equal(3))
	})

	It("should union ids idempotently", func() {
		s := New(1, 2, 3)
		Expect(s.AddIDs(ctx, []uint64{2, 3, 4}, nil)).To(Succeed())
		Expect(s.AddIDs(ctx, []uint64{2, 3, 4}, nil)).To(Succeed())

		Expect(s.IDs(true)).To(Equal([]uint64{1, 2, 3, 4}))
		Expect(s.MaxRawID()).To(Equal(uint64(4)))
	})

	It("should panic on id 0", func() {
		Expect(func() { New(0, 1) }).To(Panic())
		Expect(func() {
			_ = New(1).AddIDs(ctx, []uint64{0}, nil)
		}).To(Panic())
	})

	It("should shift zero-based selections", func() {
		s := FromZeroBased(selection.FromRanges(selection.Range{Start: 0, Stop: 3}))

		Expect(s.IDs(true)).To(Equal([]uint64{1, 2, 3}))
	})

	It("should iterate ids with metadata and offsets", func() {
		s := FromSelection(selection.FromIDs(1, 2), map[uint64]any{2: "L5_TPC"})
		s.offset = 1000

		type pair struct {
			id   uint64
			info any
		}

		collect := func(raw bool) []pair {
			out := []pair{}
			for id, info := range s.All(raw) {
				out = append(out, pair{id, info})
			}

			return out
		}

		Expect(collect(true)).To(Equal([]pair{{1, nil}, {2, "L5_TPC"}}))
		Expect(collect(false)).To(Equal([]pair{{1001, nil}, {1002, "L5_TPC"}}))
		Expect(collect(false)).To(HaveLen(2))
	})

	It("should extend with ids and metadata of another set", func() {
		a := New(1)
		b := FromSelection(selection.FromIDs(7), map[uint64]any{7: "x"})

		Expect(a.Extend(ctx, b)).To(Succeed())

		Expect(a.IDs(true)).To(Equal([]uint64{1, 7}))
		info, ok := a.Info(7)
		Expect(ok).To(BeTrue())
		Expect(info).To(Equal("x"))

		a.ClearInfo()
		_, ok = a.Info(7)
		Expect(ok).To(BeFalse())
	})

	It("should panic when extending or intersecting with nil", func() {
		Expect(func() { _ = New(1).Extend(ctx, nil) }).To(Panic())
		Expect(func() { New(1).Intersection(nil, true) }).To(Panic())
		Expect(func() { New(1).Intersects(nil) }).To(Panic())
	})

	Context("intersection", func() {
		It("should intersect sets of the same population", func() {
			a, err := New(1, 2, 3).RegisterGlobal(ctx, reg, "pop")
			Expect(err).NotTo(HaveOccurred())
			b, err := New(2, 3, 4).RegisterGlobal(ctx, reg, "pop")
			Expect(err).NotTo(HaveOccurred())

			Expect(a.Intersection(b, true)).To(Equal([]uint64{2, 3}))
			Expect(a.Intersects(b)).To(BeTrue())
		})

		It("should not intersect sets of different populations", func() {
			a, _ := New(1, 2, 3).RegisterGlobal(ctx, reg, "popA")
			b, _ := New(2, 3, 4).RegisterGlobal(ctx, reg, "popB")

			Expect(a.Intersection(b, true)).To(BeEmpty())
			Expect(a.Intersects(b)).To(BeFalse())
		})

		It("should not intersect a registered set with an unregistered one", func() {
			a, _ := New(1, 2, 3).RegisterGlobal(ctx, reg, "pop")

			Expect(a.Intersects(New(1, 2, 3))).To(BeFalse())
		})

		It("should apply the offset unless raw", func() {
			a, _ := New(1, 2, 3).RegisterGlobal(ctx, reg, "pop")
			b, _ := New(2, 3, 4).RegisterGlobal(ctx, reg, "pop")
			a.offset = 10
			b.offset = 10

			Expect(a.Intersection(b, false)).To(Equal([]uint64{12, 13}))
		})
	})

	It("should return the shifted selection", func() {
		s := FromSelection(selection.FromRanges(
			selection.Range{Start: 3, Stop: 9},
			selection.Range{Start: 11, Stop: 12},
		), nil)
		s.offset = 3

		Expect(s.Selection(true).String()).To(Equal("3-8,11"))
		Expect(s.Selection(false).String()).To(Equal("6-11,14"))
	})
})
