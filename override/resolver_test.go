package override_test

import (
	"context"
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/circuitid/configerr"
	"github.com/sarchlab/circuitid/hooking"
	"github.com/sarchlab/circuitid/nodeset"
	"github.com/sarchlab/circuitid/override"
	"github.com/sarchlab/circuitid/target"
	gomock "go.uber.org/mock/gomock"
)

func conn(name, src, dst string, weight, delay float64) override.Connection {
	return override.Connection{
		Name:        name,
		Source:      src,
		Destination: dst,
		Weight:      weight,
		Delay:       delay,
	}
}

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		manager  *target.Manager
		resolver *override.Resolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		reg := nodeset.MakeBuilder().Build()
		manager = target.MakeBuilder().Build()

		define := func(name, pop string, ids ...uint64) {
			ns, err := nodeset.New(ids...).RegisterGlobal(ctx, reg, pop)
			Expect(err).NotTo(HaveOccurred())
			manager.Register(target.NewNodesetTarget(name, ns))
		}

		define("X", "cortex", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
		define("Y", "thalamus", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
		define("Yp", "thalamus", 5, 6, 7, 8, 9, 10, 11, 12)
		define("Z", "thalamus", 50, 51)

		resolver = override.MakeBuilder().WithOracle(manager).Build()
	})

	It("should reject a partial override of a weight=0 connection", func() {
		report, err := resolver.Resolve(ctx, []override.Connection{
			conn("A", "X", "Y", 0, 0),
			conn("B", "X", "Yp", 5, 1),
		})

		var ce *configerr.ConfigurationError
		Expect(errors.As(err, &ce)).To(BeTrue())
		Expect(ce.Subject).To(Equal("A"))
		Expect(err).To(MatchError(configerr.ErrPartialOverride))
		Expect(report.Rule("A").OverriddenBy).To(ConsistOf(report.Rule("B")))
	})

	It("should accept an exact override of a weight=0 connection", func() {
		report, err := resolver.Resolve(ctx, []override.Connection{
			conn("A", "X", "Y", 0, 0),
			conn("B", "X", "Y", 5, 1),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Rule("A").FullyOverridden).To(BeTrue())
		Expect(report.ZeroWeight).To(HaveLen(1))
		Expect(report.DiagnosticsOf(override.KindZeroWeightUnused)).To(BeEmpty())
		Expect(report.DiagnosticsOf(override.KindDelayedOverridesNothing)).To(BeEmpty())
	})

	It("should accept a partial override completed by an exact one", func() {
		_, err := resolver.Resolve(ctx, []override.Connection{
			conn("A", "X", "Y", 0, 0),
			conn("B", "X", "Yp", 5, 1),
			conn("C", "X", "Y", 5, 2),
		})

		Expect(err).NotTo(HaveOccurred())
	})

	It("should warn about weight=0 connections never overridden", func() {
		report, err := resolver.Resolve(ctx, []override.Connection{
			conn("A", "X", "Y", 0, 0),
			conn("B", "X", "Z", 5, 1),
		})

		Expect(err).NotTo(HaveOccurred())

		unused := report.DiagnosticsOf(override.KindZeroWeightUnused)
		Expect(unused).To(HaveLen(1))
		Expect(unused[0].Rule).To(Equal("A"))

		nothing := report.DiagnosticsOf(override.KindDelayedOverridesNothing)
		Expect(nothing).To(HaveLen(1))
		Expect(nothing[0].Rule).To(Equal("B"))
	})

	It("should only let delayed connections override weight=0 ones", func() {
		report, err := resolver.Resolve(ctx, []override.Connection{
			conn("A", "X", "Y", 1, 0),
			conn("B", "X", "Y", 2, 3),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Rule("A").OverriddenBy).To(BeEmpty())
		Expect(report.DiagnosticsOf(override.KindDelayedOverridesNothing)).To(HaveLen(1))
	})

	It("should link to the nearest overlapping connection", func() {
		report, err := resolver.Resolve(ctx, []override.Connection{
			conn("R1", "X", "Y", 1, 0),
			conn("R2", "X", "Z", 1, 0),
			conn("R3", "X", "Y", 2, 0),
		})

		Expect(err).NotTo(HaveOccurred())

		r1, r2, r3 := report.Rule("R1"), report.Rule("R2"), report.Rule("R3")
		Expect(r3.Overrides).To(BeIdenticalTo(r1))
		Expect(r2.Overrides).To(BeNil())
		Expect(r1.FullyOverridden).To(BeTrue())
		Expect(report.Chains).To(Equal([][]*override.Rule{{r3, r1}}))
		Expect(report.DiagnosticsOf(override.KindOverrideChain)).To(HaveLen(1))
		Expect(report.DiagnosticsOf(override.KindOverrideChain)[0].Message).
			To(ContainSubstring("(base)"))
	})

	It("should report a chain once", func() {
		report, err := resolver.Resolve(ctx, []override.Connection{
			conn("R1", "X", "Y", 1, 0),
			conn("R2", "X", "Yp", 1, 0),
			conn("R3", "X", "Y", 2, 0),
		})

		Expect(err).NotTo(HaveOccurred())

		r1, r2, r3 := report.Rule("R1"), report.Rule("R2"), report.Rule("R3")
		Expect(r3.Overrides).To(BeIdenticalTo(r2))
		Expect(r2.FullyOverridden).To(BeFalse())
		Expect(report.Chains).To(Equal([][]*override.Rule{{r3, r2, r1}}))
		Expect(r3.Chain()).To(Equal([]*override.Rule{r3, r2, r1}))
	})

	It("should never build cycles", func() {
		specs := []string{"X", "Y", "Yp", "Z", "cortex:X", "thalamus:Y", ""}
		rnd := rand.New(rand.NewSource(42))

		for round := 0; round < 20; round++ {
			conns := make([]override.Connection, 12)
			for i := range conns {
				conns[i] = conn(
					string(rune('a'+i)),
					specs[rnd.Intn(len(specs))],
					specs[rnd.Intn(len(specs))],
					float64(rnd.Intn(2)),
					float64(rnd.Intn(3)/2),
				)
			}

			report, err := resolver.Resolve(ctx, conns)
			if err != nil {
				Expect(configerr.Is(err)).To(BeTrue())
			}

			for _, rule := range report.Rules {
				steps := 0
				for cur := rule; cur.Overrides != nil; cur = cur.Overrides {
					steps++
					Expect(steps).To(BeNumerically("<=", len(conns)))
				}
			}
		}
	})

	It("should report global variables", func() {
		c := conn("A", "X", "Y", 1, 0)
		c.SynapseConfigure = "%s.tau_d_AMPA = 2 gmax *= 3"

		report, err := resolver.Resolve(ctx, []override.Connection{c})

		Expect(err).NotTo(HaveOccurred())
		Expect(report.GlobalVars).To(Equal([]override.GlobalVarUse{
			{Rule: "A", Vars: []string{"gmax"}},
		}))
		Expect(report.DiagnosticsOf(override.KindGlobalVars)).To(HaveLen(1))
	})

	It("should invoke hooks for every diagnostic", func() {
		seen := []override.Diagnostic{}
		resolver.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			Expect(ctx.Pos).To(BeIdenticalTo(override.HookPosDiagnostic))
			seen = append(seen, ctx.Item.(override.Diagnostic))
		}))

		report, err := resolver.Resolve(ctx, []override.Connection{
			conn("A", "X", "Y", 0, 0),
			conn("B", "X", "Z", 5, 1),
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(Equal(report.Diagnostics))
	})

	It("should fail on unknown targets", func() {
		_, err := resolver.Resolve(ctx, []override.Connection{
			conn("A", "X", "Y", 1, 0),
			conn("B", "Ghost", "Y", 1, 0),
		})

		Expect(err).To(MatchError(configerr.ErrTargetNotFound))
	})

	It("should require an oracle", func() {
		Expect(func() { override.MakeBuilder().Build() }).To(Panic())
	})

	Context("with a mocked oracle", func() {
		var (
			mockCtrl *gomock.Controller
			oracle   *MockOracle
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			oracle = NewMockOracle(mockCtrl)
			resolver = override.MakeBuilder().WithOracle(oracle).Build()
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should not compare destinations of disjoint sources", func() {
			oracle.EXPECT().Intersecting(gomock.Any(), "X", "W").Return(false, nil)

			report, err := resolver.Resolve(ctx, []override.Connection{
				conn("A", "X", "Y", 1, 0),
				conn("B", "W", "Y", 1, 0),
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(report.Rule("B").Overrides).To(BeNil())
		})

		It("should stop on oracle failures", func() {
			failure := errors.New("collective aborted")
			oracle.EXPECT().Intersecting(gomock.Any(), "X", "W").Return(false, failure)

			report, err := resolver.Resolve(ctx, []override.Connection{
				conn("A", "X", "Y", 1, 0),
				conn("B", "W", "Y", 1, 0),
			})

			Expect(err).To(MatchError(failure))
			Expect(report).To(BeNil())
		})
	})
})
