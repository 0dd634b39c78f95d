package sim_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/integrators"
	"github.com/san-kum/cosim/internal/recorder"
	"github.com/san-kum/cosim/internal/sim"
	"github.com/san-kum/cosim/internal/system"
)

func mustBuild(b *system.Builder) *system.Assembly {
	GinkgoHelper()
	asm, err := b.Build()
	Expect(err).NotTo(HaveOccurred())
	return asm
}

// cooling is dT/dt = -k (T - T_amb) without any unknowns.
func cooling() *system.Assembly {
	b := system.NewBuilder("cooling")
	b.Root().
		Inward("T", "K", system.Value(80)).
		Inward("k", "1/s", system.Value(1)).
		Inward("T_amb", "K", system.Value(20)).
		Outward("dT", "K/s").
		Compute(func(v *system.Vars) error {
			v.Set("dT", -v.Get("k")*(v.Get("T")-v.Get("T_amb")))
			return nil
		}).
		Transient("T", "dT")
	return mustBuild(b)
}

// tracker follows x with an unknown y >= 0 and decays at dx = -10 y, so a
// large step drives a stage below zero where y cannot follow.
func tracker() *system.Assembly {
	b := system.NewBuilder("tracker")
	b.Root().
		Inward("x", "", system.Value(1)).
		Inward("y", "", system.Value(1)).
		Outward("dx", "").
		Compute(func(v *system.Vars) error {
			v.Set("dx", -10*v.Get("y"))
			return nil
		}).
		Unknown("y", system.Lower(0)).
		Equation("y == x").
		Transient("x", "dx")
	return mustBuild(b)
}

func transient(t1, dt float64, policy dynamo.FailurePolicy) dynamo.TransientConfig {
	cfg := dynamo.DefaultTransientConfig()
	cfg.T1, cfg.Dt, cfg.OnFailure = t1, dt, policy
	return cfg
}

func final(res *sim.Result, path string) float64 {
	GinkgoHelper()
	v, err := res.Trajectory.Value(res.Trajectory.Len()-1, path)
	Expect(err).NotTo(HaveOccurred())
	return v
}

func newSim(asm *system.Assembly) *sim.Simulator {
	return sim.New(asm, integrators.NewRK4(), dynamo.DefaultSolverConfig())
}

var _ = Describe("Simulator", func() {
	It("keeps a state with zero derivative", func(ctx SpecContext) {
		b := system.NewBuilder("still")
		r := b.Root()
		r.Inward("x", "", system.Value(7)).Inward("u", "", system.Value(0)).Outward("dx", "").Outward("y", "").
			Compute(func(v *system.Vars) error {
				v.Set("dx", 0*v.Get("x"))
				v.Set("y", 2*v.Get("u"))
				return nil
			})
		r.Unknown("u").Equation("y == 4").Transient("x", "dx")

		res, err := newSim(mustBuild(b)).Run(ctx, transient(3, 0.7, dynamo.PolicyAbort), sim.Options{})
		Expect(err).NotTo(HaveOccurred())
		x, err := res.Trajectory.Column("x")
		Expect(err).NotTo(HaveOccurred())
		for _, v := range x {
			Expect(v).To(BeNumerically("~", 7, 1e-12))
		}
		Expect(res.Solves).To(BeNumerically(">", res.Steps))
	})

	It("matches the exponential solution with fourth order accuracy", func(ctx SpecContext) {
		exact := 20 + 60*math.Exp(-1)
		var errs []float64
		for _, dt := range []float64{0.1, 0.05} {
			res, err := newSim(cooling()).Run(ctx, transient(1, dt, dynamo.PolicyAbort), sim.Options{})
			Expect(err).NotTo(HaveOccurred())
			errs = append(errs, math.Abs(final(res, "T")-exact))
		}
		Expect(errs[0]).To(BeNumerically("<", 1e-4))
		Expect(errs[0] / errs[1]).To(BeNumerically("~", 16, 3))
	})

	It("lands the last step on t1", func(ctx SpecContext) {
		res, err := newSim(cooling()).Run(ctx, transient(1, 0.3, dynamo.PolicyAbort), sim.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Steps).To(Equal(4))
		Expect(res.Time).To(Equal(1.0))
		times := res.Trajectory.Times()
		Expect(times).To(HaveLen(5))
		Expect(times[0]).To(Equal(0.0))
		Expect(times[4]).To(Equal(1.0))
		Expect(times[3]).To(BeNumerically("~", 0.9, 1e-12))
	})

	It("closes algebraic unknowns inside every stage", func(ctx SpecContext) {
		b := system.NewBuilder("root")
		b.Root().
			Inward("x", "", system.Value(4)).
			Inward("y", "", system.Value(2)).
			Outward("dx", "").
			Outward("y2", "").
			Compute(func(v *system.Vars) error {
				y := v.Get("y")
				v.Set("y2", y*y)
				v.Set("dx", -y)
				return nil
			}).
			Unknown("y", system.Lower(0)).
			Equation("y2 == x").
			Transient("x", "dx")

		res, err := newSim(mustBuild(b)).Run(ctx, transient(1, 0.1, dynamo.PolicyAbort), sim.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(final(res, "x")).To(BeNumerically("~", 2.25, 1e-6))
	})

	Describe("failure policies", func() {
		It("halves the step until the nested solve converges", func(ctx SpecContext) {
			res, err := newSim(tracker()).Run(ctx, transient(1, 1, dynamo.PolicyHalve), sim.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Rejected).To(BeNumerically(">=", 3))
			Expect(res.Time).To(Equal(1.0))
			Expect(res.Failures).To(BeEmpty())
			x := final(res, "x")
			Expect(x).To(BeNumerically(">", 0))
			Expect(x).To(BeNumerically("<", 1e-3))
		})

		It("gives up when halving would go below the minimum step", func(ctx SpecContext) {
			cfg := transient(1, 1, dynamo.PolicyHalve)
			cfg.MinDt = 0.2
			_, err := newSim(tracker()).Run(ctx, cfg, sim.Options{})
			Expect(err).To(MatchError(dynamo.ErrStepTooSmall))
		})

		It("aborts with a convergence error", func(ctx SpecContext) {
			res, err := newSim(tracker()).Run(ctx, transient(1, 1, dynamo.PolicyAbort), sim.Options{})
			var ce *dynamo.ConvergenceError
			Expect(err).To(HaveOccurred())
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Err).To(MatchError(dynamo.ErrBoundPinned))

			var se *dynamo.SimulationError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Step).To(Equal(1))
			Expect(res.Trajectory.Len()).To(Equal(1))
		})

		It("continues past a failed solve and reports it", func(ctx SpecContext) {
			res, err := newSim(tracker()).Run(ctx, transient(1, 1, dynamo.PolicyContinue), sim.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Steps).To(Equal(1))
			Expect(res.Failures).NotTo(BeEmpty())
			Expect(res.Failures[0].Step).To(Equal(1))
		})
	})

	Describe("schedules", func() {
		ramp := func() *system.Assembly {
			b := system.NewBuilder("ramp")
			b.Root().Inward("x", "").Inward("u", "").Outward("dx", "").
				Compute(func(v *system.Vars) error {
					v.Set("dx", v.Get("u"))
					return nil
				}).
				Transient("x", "dx").
				Set("x", 0).Set("u", 0)
			return mustBuild(b)
		}

		It("holds constant assignments", func(ctx SpecContext) {
			res, err := newSim(ramp()).Run(ctx, transient(1, 0.25, dynamo.PolicyAbort), sim.Options{
				Schedule: sim.Constant{"u": 3},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(final(res, "x")).To(BeNumerically("~", 3, 1e-12))
		})

		It("interpolates tables at stage times", func(ctx SpecContext) {
			res, err := newSim(ramp()).Run(ctx, transient(1, 0.1, dynamo.PolicyAbort), sim.Options{
				Schedule: &sim.Table{Path: "u", Times: []float64{0, 1}, Points: []float64{0, 2}, Interp: sim.InterpLinear},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(final(res, "x")).To(BeNumerically("~", 1, 1e-12))
		})

		It("rejects driven or missing paths before running", func(ctx SpecContext) {
			_, err := newSim(ramp()).Run(ctx, transient(1, 0.1, dynamo.PolicyAbort), sim.Options{
				Schedule: sim.Constant{"dx": 1},
			})
			Expect(err).To(MatchError(dynamo.ErrDriven))
			_, err = newSim(ramp()).Run(ctx, transient(1, 0.1, dynamo.PolicyAbort), sim.Options{
				Schedule: sim.Constant{"v": 1},
			})
			Expect(err).To(MatchError(dynamo.ErrUnknownPath))
		})
	})

	It("applies initial values and records chosen columns", func(ctx SpecContext) {
		asm := cooling()
		rec, err := recorder.New(asm, "T", "dT")
		Expect(err).NotTo(HaveOccurred())
		res, err := newSim(asm).Run(ctx, transient(0.5, 0.1, dynamo.PolicyAbort), sim.Options{
			Init:     map[string]float64{"T": 30},
			Recorder: rec,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Trajectory.Columns()).To(Equal([]string{"T", "dT"}))
		first := res.Trajectory.Row(0)
		Expect(first["T"]).To(Equal(30.0))
		Expect(first["dT"]).To(Equal(-10.0))
	})

	It("starts every run from the declared states", func(ctx SpecContext) {
		s := newSim(cooling())
		first, err := s.Run(ctx, transient(1, 0.1, dynamo.PolicyAbort), sim.Options{})
		Expect(err).NotTo(HaveOccurred())
		second, err := s.Run(ctx, transient(1, 0.1, dynamo.PolicyAbort), sim.Options{})
		Expect(err).NotTo(HaveOccurred())

		Expect(second.Trajectory.Row(0)["T"]).To(Equal(80.0))
		Expect(final(second, "T")).To(Equal(final(first, "T")))

		withInit, err := s.Run(ctx, transient(1, 0.1, dynamo.PolicyAbort), sim.Options{Init: map[string]float64{"T": 30}})
		Expect(err).NotTo(HaveOccurred())
		Expect(withInit.Trajectory.Row(0)["T"]).To(Equal(30.0))
		again, err := s.Run(ctx, transient(1, 0.1, dynamo.PolicyAbort), sim.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Trajectory.Row(0)["T"]).To(Equal(80.0))
	})

	It("notifies observers and metrics on every recorded row", func(ctx SpecContext) {
		s := newSim(cooling())
		var seen []dynamo.StepInfo
		s.AddObserver(dynamo.ObserverFunc(func(info dynamo.StepInfo) { seen = append(seen, info) }))
		m := &countMetric{}
		s.AddMetric(m)

		res, err := s.Run(ctx, transient(1, 0.25, dynamo.PolicyAbort), sim.Options{})
		Expect(err).NotTo(HaveOccurred())
		Expect(seen).To(HaveLen(5))
		Expect(seen[4].Progress).To(Equal(1.0))
		Expect(seen[2].Dt).To(Equal(0.25))
		Expect(res.Metrics).To(HaveKeyWithValue("count", 5.0))
	})

	It("validates the run configuration", func(ctx SpecContext) {
		s := newSim(cooling())
		for _, cfg := range []dynamo.TransientConfig{
			transient(1, 0, dynamo.PolicyAbort),
			transient(0, 0.1, dynamo.PolicyAbort),
			transient(1, 0.1, "retry"),
			func() dynamo.TransientConfig {
				cfg := transient(1, 0.1, dynamo.PolicyHalve)
				cfg.MinDt = 0
				return cfg
			}(),
		} {
			_, err := s.Run(ctx, cfg, sim.Options{})
			Expect(err).To(HaveOccurred())
		}
		_, err := s.Run(ctx, transient(1, 0.1, dynamo.PolicyAbort), sim.Options{Init: map[string]float64{"dT": 1}})
		Expect(err).To(MatchError(dynamo.ErrDriven))
	})

	It("stops at the step budget", func(ctx SpecContext) {
		cfg := transient(1, 0.1, dynamo.PolicyAbort)
		cfg.MaxSteps = 3
		res, err := newSim(cooling()).Run(ctx, cfg, sim.Options{})
		Expect(err).To(MatchError(dynamo.ErrStepBudget))
		Expect(res.Steps).To(Equal(3))
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newSim(cooling()).Run(ctx, transient(1, 0.1, dynamo.PolicyAbort), sim.Options{})
		Expect(err).To(MatchError(dynamo.ErrContextCanceled))
	})
})

type countMetric struct{ n int }

func (c *countMetric) Name() string                 { return "count" }
func (c *countMetric) Observe(info dynamo.StepInfo) { c.n++ }
func (c *countMetric) Value() float64               { return float64(c.n) }
func (c *countMetric) Reset()                       { c.n = 0 }
