package dynamo

import (
	"errors"
	"fmt"
	"strings"
)

// Assembly errors. They are reported by Build with the offending path.
var (
	ErrDanglingInput   = errors.New("dynamo: input has no connection, default or assignment")
	ErrUnknownPath     = errors.New("dynamo: path does not name a variable")
	ErrNotSquare       = errors.New("dynamo: number of unknowns differs from number of equations")
	ErrMultipleWriters = errors.New("dynamo: variable written by more than one component")
	ErrDrivenTwice     = errors.New("dynamo: input is the destination of more than one connection")
	ErrDriven          = errors.New("dynamo: variable is driven and cannot be assigned")
	ErrDuplicateName   = errors.New("dynamo: name already declared")
	ErrBadConnection   = errors.New("dynamo: invalid connection")
	ErrBadEquation     = errors.New("dynamo: invalid equation")
	ErrFrozen          = errors.New("dynamo: structure is frozen after build")
)

// Evaluation errors abort the run that produced them.
var (
	// ErrInvalidState indicates a state vector with invalid dimensions or values.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrContextCanceled indicates the simulation was interrupted.
	ErrContextCanceled = errors.New("dynamo: simulation canceled by context")

	// ErrDimensionMismatch indicates mismatched state or unknown vector lengths.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")
)

// Convergence failures. These travel as data inside solver results and are
// only turned into errors by callers that choose to.
var (
	ErrNotConverged      = errors.New("dynamo: solver did not converge")
	ErrSingularJacobian  = errors.New("dynamo: jacobian is singular")
	ErrBoundPinned       = errors.New("dynamo: unknown pinned at a bound with nonzero residual")
	ErrFeedbackUnsettled = errors.New("dynamo: feedback loop did not settle")
	ErrStepTooSmall      = errors.New("dynamo: timestep halved below minimum")
	ErrStepBudget        = errors.New("dynamo: step budget exhausted before end time")
)

// AssemblyError ties an assembly problem to the variable or component path
// that caused it.
type AssemblyError struct {
	Path string
	Err  error
	Hint string
}

func (e *AssemblyError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Path, e.Err)
	if e.Hint != "" {
		msg += " (" + e.Hint + ")"
	}
	return msg
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

// EvaluationError reports a component update that failed.
type EvaluationError struct {
	Component string
	Err       error
}

func (e *EvaluationError) Error() string {
	name := e.Component
	if name == "" {
		name = "<root>"
	}
	return fmt.Sprintf("evaluating %s: %v", name, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// ConvergenceError carries the state of a solve that gave up.
type ConvergenceError struct {
	Iterations int
	Residuals  []float64
	Equations  []string
	Err        error
}

func (e *ConvergenceError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v after %d iterations", e.Err, e.Iterations)
	worst, idx := 0.0, -1
	for i, r := range e.Residuals {
		if a := abs(r); a >= worst {
			worst, idx = a, i
		}
	}
	if idx >= 0 && idx < len(e.Equations) {
		fmt.Fprintf(&b, ", worst residual %.3g in %q", worst, e.Equations[idx])
	}
	return b.String()
}

func (e *ConvergenceError) Unwrap() error {
	return e.Err
}

// SimulationError wraps an error with simulation context.
type SimulationError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("step %d (t=%.6g): %v", e.Step, e.Time, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
