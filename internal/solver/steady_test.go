package solver_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/recorder"
	"github.com/san-kum/cosim/internal/solver"
	"github.com/san-kum/cosim/internal/system"
)

// gain closes a two-component loop: a.y = 0.5 a.x + u and b.y = a.y feeds
// back into a.x, so the settled a.y is 2u.
func gain() *system.Assembly {
	b := system.NewBuilder("loop")
	r := b.Root()
	r.Child("a").Inward("x", "").Inward("u", "", system.Value(1)).Outward("y", "").Compute(func(v *system.Vars) error {
		v.Set("y", 0.5*v.Get("x")+v.Get("u"))
		return nil
	})
	r.Child("b").Inward("x", "").Outward("y", "").Compute(func(v *system.Vars) error {
		v.Set("y", v.Get("x"))
		return nil
	})
	r.Connect("a.y", "b.x")
	r.Connect("b.y", "a.x")
	r.Unknown("a.u").Equation("a.y == 4")
	return mustBuild(b)
}

var _ = Describe("Steady", func() {
	It("solves through a feedback loop", func(ctx SpecContext) {
		asm := gain()
		Expect(asm.Feedback()).To(HaveLen(1))

		res, err := solver.NewSteady(asm, dynamo.DefaultSolverConfig()).Run(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())
		Expect(asm.MustValue("a.u")).To(BeNumerically("~", 2, 1e-6))
	})

	It("leaves a solved point where it is", func(ctx SpecContext) {
		asm := gain()
		steady := solver.NewSteady(asm, dynamo.DefaultSolverConfig())
		_, err := steady.Run(ctx, nil)
		Expect(err).NotTo(HaveOccurred())

		settled := map[string]float64{}
		for _, p := range asm.Paths() {
			settled[p] = asm.MustValue(p)
		}
		res, err := steady.SolveFrom(ctx, asm.UnknownValues(nil))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Converged).To(BeTrue())
		Expect(res.Iterations).To(Equal(0))
		for p, v := range settled {
			Expect(math.Abs(asm.MustValue(p)-v)).To(BeNumerically("<", 1e-8), p)
		}
	})

	It("applies overrides before solving", func(ctx SpecContext) {
		asm := heatsink(20)
		res, err := solver.NewSteady(asm, dynamo.DefaultSolverConfig()).Run(ctx, map[string]float64{"hs.T": 35})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Iterations).To(BeNumerically("<=", 5))
	})

	It("rejects overrides of driven variables", func(ctx SpecContext) {
		_, err := solver.NewSteady(heatsink(20), dynamo.DefaultSolverConfig()).Run(ctx, map[string]float64{"hs.Q": 1})
		Expect(err).To(MatchError(dynamo.ErrDriven))
	})

	It("records the converged point", func(ctx SpecContext) {
		asm := heatsink(20)
		rec, err := recorder.New(asm, "hs.*")
		Expect(err).NotTo(HaveOccurred())
		steady := solver.NewSteady(asm, dynamo.DefaultSolverConfig())
		steady.SetRecorder(rec)

		_, err = steady.Run(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		traj := rec.Trajectory()
		Expect(traj.Len()).To(Equal(1))
		Expect(traj.Value(0, "hs.Q")).To(BeNumerically("~", 20, 1e-6))
	})

	It("starts every run from the declared guesses", func(ctx SpecContext) {
		asm := heatsink(20)
		rec, err := recorder.New(asm, "hs.T")
		Expect(err).NotTo(HaveOccurred())
		steady := solver.NewSteady(asm, dynamo.DefaultSolverConfig())
		steady.SetRecorder(rec)

		fresh, err := steady.Run(ctx, nil)
		Expect(err).NotTo(HaveOccurred())
		_, err = steady.Run(ctx, map[string]float64{"hs.T": 100})
		Expect(err).NotTo(HaveOccurred())
		again, err := steady.Run(ctx, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(asm.Unknowns()[0].Init).To(Equal(20.0))
		Expect(again.Iterations).To(Equal(fresh.Iterations))
		Expect(rec.Trajectory().Len()).To(Equal(1))
		Expect(rec.Trajectory().At(0).Index).To(Equal(0))
	})

	It("returns a convergence error with the partial result", func(ctx SpecContext) {
		cfg := dynamo.DefaultSolverConfig()
		cfg.MaxIter = 1
		res, err := solver.NewSteady(heatsink(20), cfg).Run(ctx, nil)

		var ce *dynamo.ConvergenceError
		Expect(err).To(BeAssignableToTypeOf(ce))
		Expect(res).NotTo(BeNil())
		Expect(res.Converged).To(BeFalse())
	})

	It("honours cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := solver.NewSteady(heatsink(20), dynamo.DefaultSolverConfig()).Run(ctx, nil)
		Expect(err).To(MatchError(dynamo.ErrContextCanceled))
	})
})
