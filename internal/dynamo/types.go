package dynamo

import "math"

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every component is finite.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// MaxAbs is the infinity norm, used for residual convergence checks.
func (s State) MaxAbs() float64 {
	m := 0.0
	for _, v := range s {
		if a := math.Abs(v); a > m || math.IsNaN(a) {
			m = a
		}
	}
	return m
}

type Mode string

const (
	ModeSteady    Mode = "steady"
	ModeTransient Mode = "transient"
)

// FailurePolicy selects what the transient driver does when the nested
// solve inside a step does not converge.
type FailurePolicy string

const (
	PolicyAbort    FailurePolicy = "abort"
	PolicyHalve    FailurePolicy = "halve"
	PolicyContinue FailurePolicy = "continue"
)

// SolveStats summarises one nested or top-level solve.
type SolveStats struct {
	Converged   bool
	Iterations  int
	Passes      int
	MaxResidual float64
}

// StepInfo is handed to metrics and observers after every recorded row: the
// initial point as step 0, then every accepted step.
type StepInfo struct {
	Step     int
	Time     float64
	Dt       float64
	State    State
	Solve    SolveStats
	Retries  int
	Failed   bool
	Progress float64
}

type Metric interface {
	Name() string
	Observe(info StepInfo)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(info StepInfo)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(info StepInfo)

func (f ObserverFunc) OnStep(info StepInfo) { f(info) }

type SolverConfig struct {
	Tol               float64 `yaml:"tol" validate:"gt=0"`
	MaxIter           int     `yaml:"max_iter" validate:"gt=0"`
	FDStep            float64 `yaml:"fd_step" validate:"gt=0"`
	Relax             float64 `yaml:"relax" validate:"gt=0,lte=1"`
	FeedbackTol       float64 `yaml:"feedback_tol" validate:"gt=0"`
	MaxFeedbackPasses int     `yaml:"max_feedback_passes" validate:"gt=0"`
}

func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		Tol:               1e-8,
		MaxIter:           100,
		FDStep:            1e-7,
		Relax:             1.0,
		FeedbackTol:       1e-12,
		MaxFeedbackPasses: 200,
	}
}

type TransientConfig struct {
	T0        float64       `yaml:"t0"`
	T1        float64       `yaml:"t1" validate:"gtfield=T0"`
	Dt        float64       `yaml:"dt" validate:"gt=0"`
	MinDt     float64       `yaml:"min_dt" validate:"gt=0"`
	MaxSteps  int           `yaml:"max_steps" validate:"gt=0"`
	OnFailure FailurePolicy `yaml:"on_failure" validate:"oneof=abort halve continue"`
}

func DefaultTransientConfig() TransientConfig {
	return TransientConfig{
		T0:        0,
		T1:        10,
		Dt:        0.01,
		MinDt:     1e-8,
		MaxSteps:  1_000_000,
		OnFailure: PolicyHalve,
	}
}
