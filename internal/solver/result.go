package solver

import "github.com/san-kum/cosim/internal/dynamo"

// Result describes a solve. A solve that gives up is still a Result: the
// residuals and the last iterate are kept for inspection.
type Result struct {
	Converged    bool
	Iterations   int
	Residuals    []float64
	Unknowns     []float64
	UnknownPaths []string
	Equations    []string
	GraphPasses  int
	Err          error
}

func (r *Result) MaxResidual() float64 {
	return dynamo.State(r.Residuals).MaxAbs()
}

func (r *Result) Stats() dynamo.SolveStats {
	return dynamo.SolveStats{
		Converged:   r.Converged,
		Iterations:  r.Iterations,
		Passes:      r.GraphPasses,
		MaxResidual: r.MaxResidual(),
	}
}

// AsError returns nil for a converged result and a *dynamo.ConvergenceError
// otherwise.
func (r *Result) AsError() error {
	if r.Converged {
		return nil
	}
	err := r.Err
	if err == nil {
		err = dynamo.ErrNotConverged
	}
	return &dynamo.ConvergenceError{
		Iterations: r.Iterations,
		Residuals:  append([]float64(nil), r.Residuals...),
		Equations:  r.Equations,
		Err:        err,
	}
}
