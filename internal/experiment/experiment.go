// Package experiment turns a run file into a solved or simulated assembly.
package experiment

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/san-kum/cosim/internal/config"
	"github.com/san-kum/cosim/internal/dynamo"
	"github.com/san-kum/cosim/internal/models"
	"github.com/san-kum/cosim/internal/recorder"
	"github.com/san-kum/cosim/internal/sim"
	"github.com/san-kum/cosim/internal/solver"
	"github.com/san-kum/cosim/internal/storage"
	"github.com/san-kum/cosim/internal/system"
)

type Experiment struct {
	cfg       *config.Config
	reg       *Registry
	model     models.Model
	asm       *system.Assembly
	mode      dynamo.Mode
	observers []dynamo.Observer
}

// Outcome is what one run produced. Exactly one of Steady and Transient is
// set, matching Mode.
type Outcome struct {
	Mode       dynamo.Mode
	Trajectory *recorder.Trajectory
	Steady     *solver.Result
	Transient  *sim.Result
	Metrics    map[string]float64
}

// New validates cfg and builds its model. The configuration is not copied;
// callers must not change it while the experiment is in use.
func New(cfg *config.Config, reg *Registry) (*Experiment, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, err := reg.GetModel(cfg.Model)
	if err != nil {
		return nil, err
	}
	asm, err := model.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", cfg.Model, err)
	}

	mode := cfg.Mode
	if mode == "" {
		mode = model.Mode()
	}
	if mode == dynamo.ModeTransient && len(asm.States()) == 0 {
		return nil, fmt.Errorf("model %s has no states to integrate", cfg.Model)
	}

	return &Experiment{cfg: cfg, reg: reg, model: model, asm: asm, mode: mode}, nil
}

func (e *Experiment) Assembly() *system.Assembly { return e.asm }
func (e *Experiment) Mode() dynamo.Mode          { return e.mode }
func (e *Experiment) Config() *config.Config     { return e.cfg }

// AddObserver is notified after every accepted transient step.
func (e *Experiment) AddObserver(o dynamo.Observer) { e.observers = append(e.observers, o) }

// RecordPaths is the configured record list, or the model's own choice.
func (e *Experiment) RecordPaths() []string {
	if len(e.cfg.Record) > 0 {
		return e.cfg.Record
	}
	return e.model.Record()
}

func (e *Experiment) Run(ctx context.Context) (*Outcome, error) {
	log := zerolog.Ctx(ctx).With().Str("model", e.cfg.Model).Str("mode", string(e.mode)).Logger()
	ctx = log.WithContext(ctx)

	rec, err := recorder.New(e.asm, e.RecordPaths()...)
	if err != nil {
		return nil, err
	}

	if e.mode == dynamo.ModeSteady {
		return e.runSteady(ctx, rec)
	}
	return e.runTransient(ctx, rec)
}

func (e *Experiment) runSteady(ctx context.Context, rec *recorder.Recorder) (*Outcome, error) {
	steady := solver.NewSteady(e.asm, e.cfg.Solver)
	steady.SetRecorder(rec)

	res, err := steady.Run(ctx, e.cfg.Overrides())
	out := &Outcome{Mode: dynamo.ModeSteady, Trajectory: rec.Trajectory(), Steady: res, Metrics: map[string]float64{}}
	if res != nil {
		out.Metrics["iterations"] = float64(res.Iterations)
		out.Metrics["max_residual"] = res.MaxResidual()
	}
	return out, err
}

func (e *Experiment) runTransient(ctx context.Context, rec *recorder.Recorder) (*Outcome, error) {
	if err := e.applyParams(); err != nil {
		return nil, err
	}
	integ, err := e.reg.GetIntegrator(e.cfg.Integrator)
	if err != nil {
		return nil, err
	}
	sched, err := e.cfg.BuildSchedule()
	if err != nil {
		return nil, err
	}

	s := sim.New(e.asm, integ, e.cfg.Solver)
	if len(e.cfg.Metrics) == 0 {
		for _, m := range e.reg.DefaultMetrics() {
			s.AddMetric(m)
		}
	}
	for _, name := range e.cfg.Metrics {
		m, err := e.reg.GetMetric(name)
		if err != nil {
			return nil, err
		}
		s.AddMetric(m)
	}
	for _, o := range e.observers {
		s.AddObserver(o)
	}

	res, err := s.Run(ctx, e.cfg.Transient, sim.Options{Init: e.cfg.Init, Schedule: sched, Recorder: rec})
	out := &Outcome{Mode: dynamo.ModeTransient, Trajectory: rec.Trajectory(), Transient: res}
	if res != nil {
		out.Metrics = res.Metrics
	}
	return out, err
}

func (e *Experiment) applyParams() error {
	keys := make([]string, 0, len(e.cfg.Params))
	for k := range e.cfg.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.asm.SetValue(k, e.cfg.Params[k]); err != nil {
			return fmt.Errorf("param %s: %w", k, err)
		}
	}
	return nil
}

// Converged reports whether the steady solve converged, or whether every
// transient step did.
func (o *Outcome) Converged() bool {
	switch {
	case o.Steady != nil:
		return o.Steady.Converged
	case o.Transient != nil:
		return len(o.Transient.Failures) == 0
	}
	return false
}

// Metadata describes the outcome for the run store.
func (o *Outcome) Metadata(cfg *config.Config) storage.RunMetadata {
	meta := storage.RunMetadata{
		Model:     cfg.Model,
		Mode:      o.Mode,
		Converged: o.Converged(),
		Metrics:   o.Metrics,
	}
	if o.Steady != nil {
		meta.Iterations = o.Steady.Iterations
	}
	if o.Transient != nil {
		meta.Integrator = cfg.Integrator
		meta.T0, meta.T1, meta.Dt = cfg.Transient.T0, cfg.Transient.T1, cfg.Transient.Dt
		meta.Steps = o.Transient.Steps
		meta.Rejected = o.Transient.Rejected
		meta.Failures = len(o.Transient.Failures)
		meta.Iterations = o.Transient.Iterations
	}
	return meta
}
