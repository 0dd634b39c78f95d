// Package sim advances an assembly through time. Every integration stage
// closes the algebraic unknowns with a nested steady solve before the state
// derivatives are read.
package sim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/integrators"
	"github.com/san-kum/cosim/internal/recorder"
	"github.com/san-kum/cosim/internal/solver"
	"github.com/san-kum/cosim/internal/system"
)

type Simulator struct {
	asm        *system.Assembly
	integrator integrators.Integrator
	steady     *solver.Steady
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

func New(asm *system.Assembly, integrator integrators.Integrator, cfg dynamo.SolverConfig) *Simulator {
	return &Simulator{
		asm:        asm,
		integrator: integrator,
		steady:     solver.NewSteady(asm, cfg),
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// run carries the state of one Run call.
type run struct {
	*Simulator
	ctx    context.Context
	log    *zerolog.Logger
	cfg    dynamo.TransientConfig
	sched  Schedule
	rec    *recorder.Recorder
	result *Result

	// warm holds the unknowns of the last accepted solve.
	warm []float64
}

// attempt collects what happens during one try at a step.
type attempt struct {
	warm   []float64
	stats  dynamo.SolveStats
	failed error
}

func (s *Simulator) Run(ctx context.Context, cfg dynamo.TransientConfig, opts Options) (*Result, error) {
	if err := s.validate(cfg, opts); err != nil {
		return nil, err
	}

	r := &run{
		Simulator: s,
		ctx:       ctx,
		log:       zerolog.Ctx(ctx),
		cfg:       cfg,
		sched:     opts.Schedule,
		rec:       opts.Recorder,
		result:    &Result{Metrics: make(map[string]float64)},
	}
	if r.rec == nil {
		var paths []string
		for _, st := range s.asm.States() {
			paths = append(paths, st.Path)
		}
		rec, err := recorder.New(s.asm, paths...)
		if err != nil {
			return nil, err
		}
		r.rec = rec
	}
	r.rec.Reset()
	for _, m := range s.metrics {
		m.Reset()
	}

	err := r.loop(opts.Init)
	r.result.Trajectory = r.rec.Trajectory()
	for _, m := range s.metrics {
		r.result.Metrics[m.Name()] = m.Value()
	}
	r.log.Debug().
		Int("steps", r.result.Steps).
		Int("rejected", r.result.Rejected).
		Int("solves", r.result.Solves).
		Int("failures", len(r.result.Failures)).
		Float64("time", r.result.Time).
		Err(err).
		Msg("transient run finished")
	return r.result, err
}

func (s *Simulator) validate(cfg dynamo.TransientConfig, opts Options) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", cfg.Dt)
	}
	if cfg.T1 <= cfg.T0 {
		return fmt.Errorf("t1 must be after t0, got t0=%f t1=%f", cfg.T0, cfg.T1)
	}
	if cfg.MinDt <= 0 {
		return fmt.Errorf("min dt must be positive, got %g", cfg.MinDt)
	}
	if cfg.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be positive, got %d", cfg.MaxSteps)
	}
	switch cfg.OnFailure {
	case dynamo.PolicyAbort, dynamo.PolicyHalve, dynamo.PolicyContinue:
	default:
		return fmt.Errorf("unknown failure policy %q", cfg.OnFailure)
	}
	for p := range opts.Init {
		if err := s.asm.Assignable(p); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	if opts.Schedule != nil {
		if v, ok := opts.Schedule.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return err
			}
		}
		for _, p := range opts.Schedule.Paths() {
			if err := s.asm.Assignable(p); err != nil {
				return fmt.Errorf("schedule: %w", err)
			}
		}
	}
	return nil
}

// loop starts from the declared states and guesses, whatever an earlier run
// left in the assembly, then applies init on top.
func (r *run) loop(init map[string]float64) error {
	r.asm.ResetStates()
	r.warm = r.asm.InitialUnknowns(nil)

	paths := make([]string, 0, len(init))
	for p := range init {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if i, ok := r.asm.UnknownIndex(p); ok {
			r.warm[i] = init[p]
			continue
		}
		if err := r.asm.SetValue(p, init[p]); err != nil {
			return err
		}
	}

	t := r.cfg.T0
	x := r.asm.StateValues(nil)
	r.result.Time = t

	a := r.newAttempt()
	if err := r.settle(a, t); err != nil {
		if !isConvergence(err) || r.cfg.OnFailure != dynamo.PolicyContinue {
			return &dynamo.SimulationError{Step: 0, Time: t, State: x.Clone(), Wrapped: err}
		}
		r.result.Failures = append(r.result.Failures, StepFailure{Step: 0, Time: t, Err: err})
	}
	r.warm = a.warm
	if err := r.accept(0, t, 0, x, a, 0); err != nil {
		return err
	}

	for step := 1; r.cfg.T1-t > snap*r.cfg.Dt; step++ {
		select {
		case <-r.ctx.Done():
			return &dynamo.SimulationError{Step: step, Time: t, State: x.Clone(),
				Wrapped: fmt.Errorf("%w: %v", dynamo.ErrContextCanceled, r.ctx.Err())}
		default:
		}
		if step > r.cfg.MaxSteps {
			return &dynamo.SimulationError{Step: step, Time: t, State: x.Clone(),
				Wrapped: fmt.Errorf("%w: %d steps taken, t=%g of %g", dynamo.ErrStepBudget, r.cfg.MaxSteps, t, r.cfg.T1)}
		}

		h := math.Min(r.cfg.Dt, r.cfg.T1-t)
		retries := 0
		for {
			next, tn, a, err := r.try(t, x, h)
			if err == nil {
				if a.failed != nil {
					r.result.Failures = append(r.result.Failures, StepFailure{Step: step, Time: tn, Err: a.failed})
				}
				r.warm = a.warm
				x, t = next, tn
				if err := r.accept(step, t, h, x, a, retries); err != nil {
					return err
				}
				break
			}
			if !isConvergence(err) || r.cfg.OnFailure == dynamo.PolicyAbort {
				return &dynamo.SimulationError{Step: step, Time: t, State: x.Clone(), Wrapped: err}
			}
			if h/2 < r.cfg.MinDt {
				return &dynamo.SimulationError{Step: step, Time: t, State: x.Clone(),
					Wrapped: fmt.Errorf("%w: %g below %g: %w", dynamo.ErrStepTooSmall, h/2, r.cfg.MinDt, err)}
			}
			h /= 2
			retries++
			r.result.Rejected++
			r.log.Warn().Int("step", step).Float64("t", t).Float64("dt", h).Err(err).Msg("step rejected, halving")
		}
	}
	return nil
}

// snap is the fraction of Dt below which the remaining interval is merged
// into the current step.
const snap = 1e-9

// try integrates one step of size h from (t, x) and closes the system at
// the new time. The assembly is left at the new point only on success.
func (r *run) try(t float64, x dynamo.State, h float64) (dynamo.State, float64, *attempt, error) {
	tn := t + h
	if r.cfg.T1-tn <= snap*r.cfg.Dt {
		tn = r.cfg.T1
	}

	a := r.newAttempt()
	f := func(ts float64, xs, dx dynamo.State) error {
		if err := r.asm.SetStateValues(xs); err != nil {
			return err
		}
		if err := r.settle(a, ts); err != nil {
			return err
		}
		r.asm.Derivatives(dx)
		return nil
	}

	next, err := r.integrator.Step(f, t, x, tn-t)
	if err == nil && !next.IsValid() {
		err = fmt.Errorf("%w: state after step to t=%g", dynamo.ErrInvalidState, tn)
	}
	if err == nil {
		if err = r.asm.SetStateValues(next); err == nil {
			err = r.settle(a, tn)
		}
	}
	if err != nil {
		return nil, t, nil, err
	}
	return next, tn, a, nil
}

func (r *run) newAttempt() *attempt {
	return &attempt{
		warm:  append([]float64(nil), r.warm...),
		stats: dynamo.SolveStats{Converged: true},
	}
}

// settle applies the schedule at t and runs the nested solve. Under
// PolicyContinue a solve that does not converge is remembered on the
// attempt instead of failing it.
func (r *run) settle(a *attempt, t float64) error {
	if err := r.apply(t); err != nil {
		return err
	}
	res, err := r.steady.SolveFrom(r.ctx, a.warm)
	if err != nil {
		return err
	}
	r.result.Solves++
	r.result.Iterations += res.Iterations
	a.stats.Iterations += res.Iterations
	a.stats.Passes += res.GraphPasses
	a.stats.MaxResidual = math.Max(a.stats.MaxResidual, res.MaxResidual())
	if res.Converged {
		copy(a.warm, res.Unknowns)
		return nil
	}
	a.stats.Converged = false
	cerr := fmt.Errorf("t=%g: %w", t, res.AsError())
	if r.cfg.OnFailure != dynamo.PolicyContinue {
		return cerr
	}
	if a.failed == nil {
		a.failed = cerr
	}
	return nil
}

func (r *run) apply(t float64) error {
	if r.sched == nil {
		return nil
	}
	values := r.sched.Values(t)
	paths := make([]string, 0, len(values))
	for p := range values {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := r.asm.SetValue(p, values[p]); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) accept(step int, t, h float64, x dynamo.State, a *attempt, retries int) error {
	if err := r.rec.Record(step, t); err != nil {
		return err
	}
	r.result.Steps = step
	r.result.Time = t

	info := dynamo.StepInfo{
		Step:     step,
		Time:     t,
		Dt:       h,
		State:    x.Clone(),
		Solve:    a.stats,
		Retries:  retries,
		Failed:   a.failed != nil,
		Progress: (t - r.cfg.T0) / (r.cfg.T1 - r.cfg.T0),
	}
	for _, m := range r.metrics {
		m.Observe(info)
	}
	for _, o := range r.observers {
		o.OnStep(info)
	}
	return nil
}
