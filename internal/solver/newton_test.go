package solver_test

import (
	"context"
	"errors"
	"fmt"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/solver"
	"github.com/san-kum/cosim/internal/system"
)

func mustBuild(b *system.Builder) *system.Assembly {
	GinkgoHelper()
	asm, err := b.Build()
	Expect(err).NotTo(HaveOccurred())
	return asm
}

// identity builds y = x with x solved for y == c.
func identity(c float64) *system.Assembly {
	b := system.NewBuilder("id")
	n := b.Root().Child("n").Inward("x", "", system.Value(1)).Outward("y", "")
	n.Compute(func(v *system.Vars) error {
		v.Set("y", v.Get("x"))
		return nil
	})
	n.Unknown("x").Equation(fmt.Sprintf("y == %g", c))
	return mustBuild(b)
}

// heatsink balances 20 W against Q = 0.03 T (T - 20).
func heatsink(init float64) *system.Assembly {
	b := system.NewBuilder("cpu")
	hs := b.Root().Child("hs").Inward("T", "C", system.Value(init)).Outward("Q", "W")
	hs.Compute(func(v *system.Vars) error {
		T := v.Get("T")
		v.Set("Q", 0.03*T*(T-20))
		return nil
	})
	hs.Unknown("T").Equation("Q == 20")
	return mustBuild(b)
}

func solve(ctx context.Context, asm *system.Assembly) *solver.Result {
	GinkgoHelper()
	x0 := make([]float64, asm.NumUnknowns())
	for i, u := range asm.Unknowns() {
		x0[i] = u.Init
	}
	res, err := solver.NewNewton(dynamo.DefaultSolverConfig()).Solve(ctx, asm, x0)
	Expect(err).NotTo(HaveOccurred())
	return res
}

var _ = Describe("Newton", func() {
	It("evaluates once when there is nothing to solve", func(ctx SpecContext) {
		b := system.NewBuilder("plain")
		b.Root().Child("a").Inward("x", "", system.Value(3)).Outward("y", "").Compute(func(v *system.Vars) error {
			v.Set("y", 2*v.Get("x"))
			return nil
		})
		asm := mustBuild(b)

		res := solve(ctx, asm)
		Expect(res.Converged).To(BeTrue())
		Expect(res.Iterations).To(Equal(0))
		Expect(res.GraphPasses).To(Equal(1))
		Expect(asm.MustValue("a.y")).To(Equal(6.0))
	})

	DescribeTable("solves x == c",
		func(ctx SpecContext, c float64) {
			asm := identity(c)
			res := solve(ctx, asm)
			Expect(res.Converged).To(BeTrue())
			Expect(res.MaxResidual()).To(BeNumerically("<", 1e-8))
			Expect(asm.MustValue("n.x")).To(BeNumerically("~", c, 1e-8*math.Max(1, math.Abs(c))))
		},
		Entry("zero", 0.0),
		Entry("one", 1.0),
		Entry("negative", -5.0),
		Entry("large", 1000.0),
	)

	DescribeTable("balances the heat sink",
		func(ctx SpecContext, init float64) {
			asm := heatsink(init)
			res := solve(ctx, asm)
			Expect(res.Converged).To(BeTrue())
			Expect(res.Iterations).To(BeNumerically("<=", 10))
			Expect(asm.MustValue("hs.T")).To(BeNumerically("~", 10+math.Sqrt(100+20/0.03), 1e-6))
			Expect(res.UnknownPaths).To(Equal([]string{"hs.T"}))
		},
		Entry("from ambient", 20.0),
		Entry("from near the answer", 35.0),
	)

	It("reports a bound that holds the root out of reach", func(ctx SpecContext) {
		b := system.NewBuilder("pinned")
		n := b.Root().Child("n").Inward("x", "", system.Value(1)).Outward("y", "")
		n.Compute(func(v *system.Vars) error {
			v.Set("y", v.Get("x")+5)
			return nil
		})
		n.Unknown("x", system.Lower(0)).Equation("y == 0")
		asm := mustBuild(b)

		res := solve(ctx, asm)
		Expect(res.Converged).To(BeFalse())
		Expect(res.Err).To(MatchError(dynamo.ErrBoundPinned))
		Expect(res.Unknowns[0]).To(BeNumerically(">=", 0))
		Expect(asm.MustValue("n.x")).To(Equal(res.Unknowns[0]))

		var ce *dynamo.ConvergenceError
		Expect(res.AsError()).To(BeAssignableToTypeOf(ce))
		Expect(res.AsError()).To(MatchError(dynamo.ErrBoundPinned))
	})

	It("gives up on a flat residual", func(ctx SpecContext) {
		b := system.NewBuilder("flat")
		n := b.Root().Child("n").Inward("x", "", system.Value(1)).Outward("y", "")
		n.Compute(func(v *system.Vars) error {
			v.Set("y", 1+0*v.Get("x"))
			return nil
		})
		n.Unknown("x").Equation("y == 2")
		asm := mustBuild(b)

		res := solve(ctx, asm)
		Expect(res.Converged).To(BeFalse())
		Expect(res.Err).To(MatchError(dynamo.ErrSingularJacobian))
		Expect(res.Residuals).To(Equal([]float64{-1}))
	})

	It("stops at the iteration limit", func(ctx SpecContext) {
		cfg := dynamo.DefaultSolverConfig()
		cfg.MaxIter = 1
		asm := heatsink(20)
		res, err := solver.NewNewton(cfg).Solve(ctx, asm, []float64{20})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeFalse())
		Expect(res.Iterations).To(Equal(1))
		Expect(res.Err).To(MatchError(dynamo.ErrNotConverged))
	})

	It("rejects an initial guess of the wrong size", func(ctx SpecContext) {
		_, err := solver.NewNewton(dynamo.DefaultSolverConfig()).Solve(ctx, identity(1), []float64{1, 2})
		Expect(err).To(MatchError(dynamo.ErrDimensionMismatch))
	})

	It("propagates compute failures", func(ctx SpecContext) {
		b := system.NewBuilder("broken")
		n := b.Root().Child("n").Inward("x", "", system.Value(1)).Outward("y", "")
		n.Compute(func(v *system.Vars) error {
			return errors.New("pump stalled")
		})
		n.Unknown("x").Equation("y == 1")
		_, err := solver.NewNewton(dynamo.DefaultSolverConfig()).Solve(ctx, mustBuild(b), []float64{1})

		var ee *dynamo.EvaluationError
		Expect(err).To(BeAssignableToTypeOf(ee))
		Expect(err).To(MatchError(ContainSubstring("pump stalled")))
	})
})
